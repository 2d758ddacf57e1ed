package insight

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/pulsepipe/pulsepipe/internal/record"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scriptedModel struct {
	responses []string
	errs      []error
	calls     int
}

func (m *scriptedModel) Generate(ctx context.Context, prompt string) (string, Usage, error) {
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return "", Usage{}, m.errs[i]
	}
	var resp string
	if i < len(m.responses) {
		resp = m.responses[i]
	}
	return resp, Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}, nil
}

func (m *scriptedModel) Name() string { return "scripted" }

func newTestClient(m Model, attempts int) *Client {
	c := NewClient(m, RetryConfig{Attempts: attempts, BaseBackoff: time.Millisecond}, 20, nil, testLogger())
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func TestGenerateInsightsParsesFencedJSON(t *testing.T) {
	model := &scriptedModel{responses: []string{
		"```json\n{\"insights\": [\"a\", \"b\"], \"recommendations\": [\"c\"], \"summary\": \"all good\"}\n```",
	}}
	c := newTestClient(model, 3)

	res, err := c.GenerateInsights(context.Background(), PromptContext{RecordCount: 10})
	if err != nil {
		t.Fatalf("GenerateInsights: %v", err)
	}
	if len(res.Insights) != 2 || len(res.Recommendations) != 1 || res.Summary != "all good" {
		t.Errorf("result = %+v", res)
	}
	if res.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", res.Usage)
	}
}

func TestGenerateInsightsRetriesThenSucceeds(t *testing.T) {
	model := &scriptedModel{
		errs:      []error{errors.New("throttled: 429"), nil},
		responses: []string{"", `{"insights": [], "recommendations": [], "summary": "ok"}`},
	}
	c := newTestClient(model, 3)

	res, err := c.GenerateInsights(context.Background(), PromptContext{})
	if err != nil {
		t.Fatalf("GenerateInsights: %v", err)
	}
	if model.calls != 2 {
		t.Errorf("model called %d times, want 2", model.calls)
	}
	if res.Summary != "ok" {
		t.Errorf("summary = %q", res.Summary)
	}
}

func TestGenerateInsightsExhaustsRetries(t *testing.T) {
	model := &scriptedModel{errs: []error{
		errors.New("timeout"), errors.New("timeout"), errors.New("timeout"),
	}}
	c := newTestClient(model, 3)

	_, err := c.GenerateInsights(context.Background(), PromptContext{})
	if !errors.Is(err, ErrInference) {
		t.Fatalf("err = %v, want ErrInference", err)
	}
	if model.calls != 3 {
		t.Errorf("model called %d times, want full budget of 3", model.calls)
	}
}

func TestGenerateInsightsDoesNotRetryAuthFailures(t *testing.T) {
	model := &scriptedModel{errs: []error{
		errors.New("403 forbidden"), nil,
	}}
	c := newTestClient(model, 3)

	_, err := c.GenerateInsights(context.Background(), PromptContext{})
	if !errors.Is(err, ErrInference) {
		t.Fatalf("err = %v, want ErrInference", err)
	}
	if model.calls != 1 {
		t.Errorf("model called %d times, want 1 (no retry on auth failure)", model.calls)
	}
}

func TestGenerateInsightsMalformedResponseIsInferenceError(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"not json", "The patient seems fine overall."},
		{"truncated", `{"insights": ["a"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &scriptedModel{responses: []string{tt.response, tt.response}}
			c := newTestClient(model, 2)

			_, err := c.GenerateInsights(context.Background(), PromptContext{})
			if !errors.Is(err, ErrInference) {
				t.Fatalf("err = %v, want ErrInference", err)
			}
		})
	}
}

func TestParseResponseFlattensObjectSummary(t *testing.T) {
	res, err := parseResponse(`{
		"insights": ["i"],
		"recommendations": [],
		"summary": {"health_status": "Stable overall.", "key_findings": "Two anomalies."}
	}`)
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if res.Summary != "Stable overall. Two anomalies." {
		t.Errorf("summary = %q", res.Summary)
	}
}

func TestBuildPromptBoundsAnomalySample(t *testing.T) {
	anomalies := make([]record.AnomalyFlag, 100)
	for i := range anomalies {
		anomalies[i] = record.AnomalyFlag{
			Row:     record.Row{"user_id": "u", "heart_rate": "170"},
			Reasons: []string{"high heart_rate"},
		}
	}
	pc := PromptContext{RecordCount: 1000, AnomalyCount: 100, Anomalies: anomalies}

	small := BuildPrompt(pc, 5)
	large := BuildPrompt(pc, 50)
	if len(small) >= len(large) {
		t.Error("sample cap should bound prompt size")
	}
	if !strings.Contains(small, "100 anomalies detected in 1000 records") {
		t.Errorf("prompt missing overview: %s", small)
	}
	if !strings.Contains(small, "Return only valid JSON.") {
		t.Error("prompt missing response contract")
	}
}
