// Package report renders the notification report. Text and HTML bodies are
// two renderings of the same ReportData; neither sources anything the other
// does not.
package report

import (
	"fmt"
	"html/template"
	"strings"
	texttemplate "text/template"
	"time"
)

// AnomalyCount is one row of the anomaly frequency table.
type AnomalyCount struct {
	Reason string
	Count  int
}

// ReportData is everything that goes into one notification.
type ReportData struct {
	GeneratedAt    time.Time
	LatestAnalysis string
	RunCount       int

	TotalInput    int
	TotalValid    int
	TotalRejected int

	RecordsAnalyzed int
	TotalAnomalies  int

	TopAnomalies    []AnomalyCount
	Insights        []string
	Recommendations []string
	Summary         string
}

// DataQualityPct is the share of input rows that passed validation. An empty
// scope counts as fully clean.
func (d ReportData) DataQualityPct() float64 {
	if d.TotalInput == 0 {
		return 100
	}
	return float64(d.TotalValid) / float64(d.TotalInput) * 100
}

// GeneratedStamp formats the generation time for display.
func (d ReportData) GeneratedStamp() string {
	return d.GeneratedAt.UTC().Format("January 2, 2006 at 3:04 PM UTC")
}

// Subject builds the report subject line.
func Subject(t time.Time) string {
	return fmt.Sprintf("Health Data Analysis Report - %s", t.UTC().Format("January 2, 2006"))
}

var textTmpl = texttemplate.Must(texttemplate.New("report").Parse(`Health Data Analysis Report
Generated on: {{.GeneratedStamp}}
Analysis period: {{.RunCount}} recent runs

=== DATA PROCESSING OVERVIEW ===
Total Raw Records: {{.TotalInput}}
Valid Records: {{.TotalValid}}
Rejected Records: {{.TotalRejected}}
Data Quality: {{printf "%.1f" .DataQualityPct}}%

=== ANALYSIS OVERVIEW ===
Records Analyzed: {{.RecordsAnalyzed}}
Total Anomalies Detected: {{.TotalAnomalies}}

=== TOP HEALTH ANOMALIES ===
{{range .TopAnomalies}}  - {{.Reason}}: {{.Count}} occurrences
{{else}}  - No anomalies detected
{{end}}
=== KEY HEALTH INSIGHTS ===
{{range .Insights}}  - {{.}}
{{else}}  - Continuing to monitor health patterns
{{end}}
=== RECOMMENDATIONS ===
{{range .Recommendations}}  - {{.}}
{{else}}  - Continue regular health monitoring
{{end}}
=== EXECUTIVE SUMMARY ===
{{.Summary}}

This report is automatically generated from your health monitoring system.
If you have concerns about any anomalies, please consult with a healthcare professional.
`))

var htmlTmpl = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<style>
body { font-family: 'Segoe UI', Tahoma, sans-serif; line-height: 1.6; color: #333; max-width: 800px; margin: 0 auto; padding: 20px; }
h1 { color: #2C3E50; }
h2 { color: #2980B9; border-bottom: 2px solid #ECF0F1; padding-bottom: 8px; }
table { border-collapse: collapse; width: 100%; margin: 15px 0; }
th { background: #2980B9; color: white; padding: 10px; text-align: left; }
td { padding: 10px; border-bottom: 1px solid #ECF0F1; }
.subtitle { color: #7F8C8D; font-size: 14px; }
.summary-box { background: #0984e3; color: white; padding: 20px; border-radius: 8px; margin: 20px 0; }
.footer { margin-top: 30px; border-top: 1px solid #ECF0F1; color: #7F8C8D; font-size: 12px; }
</style>
</head>
<body>
<h1>Health Data Analysis Report</h1>
<p class="subtitle">Generated on {{.GeneratedStamp}}<br>
Latest analysis: {{.LatestAnalysis}}<br>
Analysis period: {{.RunCount}} recent runs</p>

<h2>Data Processing Summary</h2>
<table>
<tr><td>Total Raw Records</td><td>{{.TotalInput}}</td></tr>
<tr><td>Valid Records</td><td>{{.TotalValid}}</td></tr>
<tr><td>Rejected Records</td><td>{{.TotalRejected}}</td></tr>
<tr><td>Data Quality</td><td>{{printf "%.1f" .DataQualityPct}}%</td></tr>
</table>

<h2>Analysis Overview</h2>
<table>
<tr><td>Records Analyzed</td><td>{{.RecordsAnalyzed}}</td></tr>
<tr><td>Anomalies Detected</td><td>{{.TotalAnomalies}}</td></tr>
</table>

<h2>Top Health Anomalies</h2>
<table>
<tr><th>Health Anomaly</th><th>Frequency</th></tr>
{{range .TopAnomalies}}<tr><td>{{.Reason}}</td><td><strong>{{.Count}}</strong></td></tr>
{{else}}<tr><td colspan="2">No anomalies detected</td></tr>
{{end}}</table>

<h2>Key Health Insights</h2>
<ul>
{{range .Insights}}<li>{{.}}</li>
{{else}}<li>Continuing to monitor health patterns</li>
{{end}}</ul>

<h2>Recommended Actions</h2>
<ul>
{{range .Recommendations}}<li>{{.}}</li>
{{else}}<li>Continue regular health monitoring</li>
{{end}}</ul>

<div class="summary-box">
<h3>Executive Summary</h3>
<p>{{.Summary}}</p>
</div>

<div class="footer">
<p><strong>Important:</strong> This report is automatically generated from your health monitoring system.<br>
If you have concerns about any anomalies, please consult with a healthcare professional.</p>
</div>
</body>
</html>
`))

// RenderText renders the plain-text body.
func RenderText(d ReportData) (string, error) {
	var b strings.Builder
	if err := textTmpl.Execute(&b, d); err != nil {
		return "", fmt.Errorf("render text report: %w", err)
	}
	return b.String(), nil
}

// RenderHTML renders the HTML body.
func RenderHTML(d ReportData) (string, error) {
	var b strings.Builder
	if err := htmlTmpl.Execute(&b, d); err != nil {
		return "", fmt.Errorf("render html report: %w", err)
	}
	return b.String(), nil
}
