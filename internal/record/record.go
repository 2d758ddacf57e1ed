// Package record defines the data model shared by the pipeline stages:
// raw batches, rows, validation outcomes, anomaly flags and analysis results.
package record

import (
	"fmt"
	"strings"
	"time"
)

// Row is one tabular record, field name -> raw string value as read from CSV.
// Column order is carried separately by the batch header.
type Row map[string]string

// Clone returns a copy of the row that can be mutated independently.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// BatchRef points at a raw object before its content is known.
type BatchRef struct {
	Bucket  string
	Key     string
	Version string

	// CorrelationID threads one logical run across the stages.
	// Left empty, the ingestion stage generates one.
	CorrelationID string
}

// BatchIdentity uniquely identifies one ingested raw object instance.
// The content hash is part of the identity: re-uploading different content
// under the same key/version is a distinct batch.
type BatchIdentity struct {
	Bucket      string
	Key         string
	Version     string
	ContentHash string
}

// MarkerID returns the idempotency-ledger key for this identity.
func (id BatchIdentity) MarkerID() string {
	safeKey := strings.ReplaceAll(id.Key, "/", "__")
	return fmt.Sprintf("%s__%s__%s__%s", id.Bucket, safeKey, id.Version, id.ContentHash)
}

// RejectedRow pairs a row with the reason it failed validation.
type RejectedRow struct {
	Row    Row
	Reason string
}

// Counts summarizes the row partitioning of one ingested batch.
type Counts struct {
	Input    int `json:"input"`
	Valid    int `json:"valid"`
	Rejected int `json:"rejected"`
}

// Manifest is the per-batch processing record written next to the processed
// partition. The notifier reads it back to aggregate processing statistics.
type Manifest struct {
	CorrelationID string   `json:"correlation_id"`
	SourceBucket  string   `json:"source_bucket"`
	SourceKey     string   `json:"source_key"`
	SourceVersion string   `json:"source_version"`
	ContentHash   string   `json:"content_hash"`
	ProcessedKey  string   `json:"processed_key,omitempty"`
	RejectedKey   string   `json:"rejected_key,omitempty"`
	Counts        Counts   `json:"counts"`
	TimestampUTC  string   `json:"timestamp_utc"`
	SchemaFields  []string `json:"schema_fields"`
}

// AnomalyFlag marks a single row as anomalous. Reasons lists every metric
// band the row violated; Deviation is the largest absolute distance from a
// violated bound, in that metric's own unit.
type AnomalyFlag struct {
	Row       Row      `json:"row"`
	Reasons   []string `json:"reasons"`
	Deviation float64  `json:"deviation"`
}

// Statistics aggregates the tracked metrics over the analyzed rows.
type Statistics struct {
	AvgHeartRate float64 `json:"avg_heart_rate"`
	AvgSpO2      float64 `json:"avg_spo2"`
	AvgTemp      float64 `json:"avg_temp"`
	AvgSystolic  float64 `json:"avg_systolic"`
	AvgDiastolic float64 `json:"avg_diastolic"`
	AvgSteps     float64 `json:"avg_steps"`
	MaxHeartRate float64 `json:"max_heart_rate"`
	MinHeartRate float64 `json:"min_heart_rate"`
	MaxTemp      float64 `json:"max_temp"`
	MinSpO2      float64 `json:"min_spo2"`
}

// AnalysisResult is one persisted analysis run, keyed by
// (correlation_id, analysis_timestamp). Notified starts false and is flipped
// exactly once by the notification stage via a conditional write.
type AnalysisResult struct {
	CorrelationID     string        `json:"correlation_id" dynamodbav:"correlation_id"`
	AnalysisTimestamp string        `json:"analysis_timestamp" dynamodbav:"analysis_timestamp"`
	AnalysisID        string        `json:"analysis_id" dynamodbav:"analysis_id"`
	SourceBucket      string        `json:"source_bucket" dynamodbav:"source_bucket"`
	ProcessedKey      string        `json:"processed_key" dynamodbav:"processed_key"`
	ManifestKey       string        `json:"manifest_key" dynamodbav:"manifest_key"`
	AnalysisKey       string        `json:"analysis_key" dynamodbav:"analysis_key"`
	RecordsAnalyzed   int           `json:"records_analyzed" dynamodbav:"records_analyzed"`
	Anomalies         []AnomalyFlag `json:"anomalies" dynamodbav:"anomalies"`
	Statistics        Statistics    `json:"statistics" dynamodbav:"statistics"`
	Insights          []string      `json:"insights" dynamodbav:"insights"`
	Recommendations   []string      `json:"recommendations" dynamodbav:"recommendations"`
	Summary           string        `json:"summary" dynamodbav:"summary"`
	Notified          bool          `json:"notified" dynamodbav:"notified"`
	NotifiedAt        string        `json:"notified_at,omitempty" dynamodbav:"notified_at,omitempty"`
	TTL               int64         `json:"ttl" dynamodbav:"ttl"`
}

// AnomalyCount returns the number of anomalous rows in this result.
func (r AnalysisResult) AnomalyCount() int {
	return len(r.Anomalies)
}

// Timestamp formats t the way the pipeline stores timestamps: ISO-8601 UTC
// with a trailing Z, sortable lexicographically.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z")
}
