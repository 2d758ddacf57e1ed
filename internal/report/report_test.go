package report

import (
	"strings"
	"testing"
	"time"
)

func sampleData() ReportData {
	return ReportData{
		GeneratedAt:     time.Date(2026, 3, 14, 15, 9, 0, 0, time.UTC),
		LatestAnalysis:  "2026-03-14T15:08:12.000000Z",
		RunCount:        1,
		TotalInput:      1000,
		TotalValid:      850,
		TotalRejected:   150,
		RecordsAnalyzed: 850,
		TotalAnomalies:  402,
		TopAnomalies: []AnomalyCount{
			{Reason: "high heart_rate", Count: 300},
			{Reason: "low spo2", Count: 102},
		},
		Insights:        []string{"Average heart rate indicates elevated cardiovascular activity"},
		Recommendations: []string{"Consult cardiologist for persistent high readings"},
		Summary:         "Several cardiovascular anomalies were found.",
	}
}

func TestBothRenderingsCarrySameData(t *testing.T) {
	d := sampleData()

	text, err := RenderText(d)
	if err != nil {
		t.Fatalf("RenderText: %v", err)
	}
	html, err := RenderHTML(d)
	if err != nil {
		t.Fatalf("RenderHTML: %v", err)
	}

	for _, want := range []string{
		"1000", "850", "150", "402",
		"high heart_rate", "low spo2",
		"elevated cardiovascular activity",
		"Consult cardiologist",
		"Several cardiovascular anomalies were found.",
		"85.0%",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("text body missing %q", want)
		}
		if !strings.Contains(html, want) {
			t.Errorf("html body missing %q", want)
		}
	}
}

func TestEmptySectionsFallBackToPlaceholders(t *testing.T) {
	d := ReportData{GeneratedAt: time.Now()}

	text, err := RenderText(d)
	if err != nil {
		t.Fatalf("RenderText: %v", err)
	}
	for _, want := range []string{
		"No anomalies detected",
		"Continuing to monitor health patterns",
		"Continue regular health monitoring",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("text body missing placeholder %q", want)
		}
	}
	if !strings.Contains(text, "100.0%") {
		t.Errorf("empty scope should report full data quality, got:\n%s", text)
	}
}

func TestSubjectCarriesDate(t *testing.T) {
	got := Subject(time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))
	want := "Health Data Analysis Report - March 14, 2026"
	if got != want {
		t.Errorf("Subject = %q, want %q", got, want)
	}
}
