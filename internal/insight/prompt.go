package insight

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BuildPrompt renders the analysis context into the inference prompt. The
// anomaly sample is capped at maxSample entries to bound request size.
func BuildPrompt(pc PromptContext, maxSample int) string {
	sample := pc.Anomalies
	if len(sample) > maxSample {
		sample = sample[:maxSample]
	}
	sampleJSON, err := json.Marshal(sample)
	if err != nil {
		sampleJSON = []byte("[]")
	}

	var b strings.Builder
	b.WriteString("You are a health data analysis assistant. ")
	b.WriteString("Analyze the health metrics and provide insights about trends, patterns, and health risks.\n\n")

	fmt.Fprintf(&b, "Dataset Overview:\n")
	fmt.Fprintf(&b, "- Total records: %d\n", pc.RecordCount)
	fmt.Fprintf(&b, "- %d anomalies detected in %d records.\n", pc.AnomalyCount, pc.RecordCount)
	fmt.Fprintf(&b, "- Statistics: Avg HR %.1f bpm, Avg SpO2 %.1f%%, Avg Temp %.1f C, Avg BP %.0f/%.0f, Avg Steps %.0f\n\n",
		pc.Stats.AvgHeartRate, pc.Stats.AvgSpO2, pc.Stats.AvgTemp,
		pc.Stats.AvgSystolic, pc.Stats.AvgDiastolic, pc.Stats.AvgSteps)

	fmt.Fprintf(&b, "Sample of flagged anomalies:\n%s\n\n", sampleJSON)

	b.WriteString("Provide analysis in JSON format with these keys:\n")
	b.WriteString("- insights: Array of specific health observations\n")
	b.WriteString("- recommendations: Array of actionable health advice\n")
	b.WriteString("- summary: Executive summary of key findings and health status\n\n")

	b.WriteString("Focus on:\n")
	b.WriteString("1. Cardiovascular health patterns\n")
	b.WriteString("2. Respiratory health (SpO2 trends)\n")
	b.WriteString("3. Temperature anomalies and fever patterns\n")
	b.WriteString("4. Blood pressure health risks\n")
	b.WriteString("5. Activity level assessment\n\n")

	b.WriteString("Return only valid JSON.")
	return b.String()
}
