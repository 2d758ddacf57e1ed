package record

// Event sources and detail types as they appear on the bus. Consumers filter
// by source + detail type + detail.status.
const (
	SourceIngestor = "health.data.ingestor"
	SourceAnalyzer = "health.data.analyzer"

	DetailTypeProcessingComplete = "Data Processing Complete"
	DetailTypeAnalysisComplete   = "Data Analysis Complete"

	StatusSuccess = "success"
	StatusFailure = "failure"
)

// ProcessingCompleteDetail is the payload of a "Data Processing Complete"
// event emitted by the ingestion stage.
type ProcessingCompleteDetail struct {
	Status        string `json:"status"`
	Bucket        string `json:"bucket"`
	SourceKey     string `json:"source_key"`
	ProcessedKey  string `json:"processed_key,omitempty"`
	RejectedKey   string `json:"rejected_key,omitempty"`
	ManifestKey   string `json:"manifest_key,omitempty"`
	CorrelationID string `json:"correlation_id"`
	Counts        Counts `json:"counts"`
	ErrorReason   string `json:"error_reason,omitempty"`
}

// AnalysisCompleteDetail is the payload of a "Data Analysis Complete" event
// emitted by the analysis stage.
type AnalysisCompleteDetail struct {
	Status        string `json:"status"`
	Bucket        string `json:"bucket"`
	ProcessedKey  string `json:"processed_key"`
	AnalysisKey   string `json:"analysis_key,omitempty"`
	CorrelationID string `json:"correlation_id"`
	RowCount      int    `json:"row_count"`
	AnomalyCount  int    `json:"anomaly_count"`
	Summary       string `json:"summary,omitempty"`
	ErrorReason   string `json:"error_reason,omitempty"`
}
