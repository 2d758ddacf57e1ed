// Package insight wraps the external LLM inference call that turns
// quantitative analysis output into natural-language insights. The call is
// treated as unreliable: bounded, jittered retries, and any failure mode
// (transport, rate limit, malformed response) surfaces as ErrInference so
// the analysis stage can degrade gracefully.
package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"time"

	"github.com/pulsepipe/pulsepipe/internal/metrics"
	"github.com/pulsepipe/pulsepipe/internal/record"
)

// ErrInference covers timeouts, rate limiting and malformed responses from
// the inference service. Use errors.Is in calling code.
var ErrInference = errors.New("insight inference failed")

// Pricing used for the usage log line, USD per 1k tokens.
const costPer1kTokens = 0.00006

// Usage reports token consumption of one inference call.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Result is the parsed inference output.
type Result struct {
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
	Summary         string   `json:"summary"`
	Usage           Usage    `json:"-"`
}

// PromptContext carries the bounded inputs the prompt is built from. The raw
// row set never goes into the prompt; only aggregates and a sample of the
// anomaly flags do, which keeps request size independent of batch size.
type PromptContext struct {
	RecordCount  int
	AnomalyCount int
	Stats        record.Statistics
	Anomalies    []record.AnomalyFlag
}

// Model is a single inference backend.
type Model interface {
	Generate(ctx context.Context, prompt string) (string, Usage, error)
	Name() string
}

// RetryConfig bounds the retry loop around the inference call.
type RetryConfig struct {
	Attempts    int
	BaseBackoff time.Duration
	Timeout     time.Duration
}

// Client drives a Model with retries and response validation.
type Client struct {
	model     Model
	retry     RetryConfig
	maxSample int
	collector *metrics.Collector
	log       *slog.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient builds an insight client around a model backend.
func NewClient(model Model, retry RetryConfig, maxSample int, collector *metrics.Collector, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	if maxSample <= 0 {
		maxSample = 20
	}
	return &Client{
		model:     model,
		retry:     retry,
		maxSample: maxSample,
		collector: collector,
		log:       log,
		sleep:     sleepCtx,
	}
}

// GenerateInsights runs the inference call with bounded retries and parses
// the response. Every failure path returns an error wrapping ErrInference.
func (c *Client) GenerateInsights(ctx context.Context, pc PromptContext) (*Result, error) {
	prompt := BuildPrompt(pc, c.maxSample)

	var lastErr error
	for attempt := 0; attempt < c.retry.Attempts; attempt++ {
		if attempt > 0 {
			backoff := jitteredBackoff(c.retry.BaseBackoff, attempt)
			c.log.Warn("inference_retry",
				"attempt", attempt+1,
				"max_attempts", c.retry.Attempts,
				"backoff_ms", backoff.Milliseconds(),
				"error", lastErr)
			if err := c.sleep(ctx, backoff); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInference, err)
			}
		}

		result, err := c.attempt(ctx, prompt)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isRetriable(err) {
			break
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrInference, lastErr)
}

func (c *Client) attempt(ctx context.Context, prompt string) (*Result, error) {
	attemptCtx := ctx
	if c.retry.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.retry.Timeout)
		defer cancel()
	}

	start := time.Now()
	text, usage, err := c.model.Generate(attemptCtx, prompt)
	duration := time.Since(start)

	if c.collector != nil {
		c.collector.Record(metrics.OpInference, duration, err != nil)
	}
	if err != nil {
		return nil, fmt.Errorf("generate (%s): %w", c.model.Name(), err)
	}

	if c.collector != nil {
		c.collector.RecordTokens(metrics.OpInference, usage.PromptTokens, usage.CompletionTokens)
	}
	c.log.Info("inference_usage",
		"model", c.model.Name(),
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"total_tokens", usage.TotalTokens,
		"estimated_cost_usd", float64(usage.TotalTokens)/1000*costPer1kTokens,
		"duration_ms", duration.Milliseconds())

	result, err := parseResponse(text)
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	result.Usage = usage

	c.log.Info("inference_success",
		"insights_count", len(result.Insights),
		"recommendations_count", len(result.Recommendations))
	return result, nil
}

// parseResponse validates the expected structure of the model output.
// Models wrap JSON in markdown fences often enough that stripping them is
// part of the contract.
func parseResponse(text string) (*Result, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var payload struct {
		Insights        []string        `json:"insights"`
		Recommendations []string        `json:"recommendations"`
		Summary         json.RawMessage `json:"summary"`
	}
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	return &Result{
		Insights:        payload.Insights,
		Recommendations: payload.Recommendations,
		Summary:         decodeSummary(payload.Summary),
	}, nil
}

// decodeSummary accepts the summary as a plain string or, as some models
// insist, a nested object; objects are flattened to their string values in
// key order.
func decodeSummary(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var parts []string
		for _, k := range keys {
			if v, ok := obj[k].(string); ok && v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}

// isRetriable reports whether a failed attempt is worth repeating. Client
// errors that cannot succeed on retry are not.
func isRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	for _, fatal := range []string{"401", "403", "invalid api key", "authentication"} {
		if strings.Contains(msg, fatal) {
			return false
		}
	}
	return true
}

func jitteredBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	backoff := base << (attempt - 1)
	// Half fixed, half random, so concurrent retries spread out.
	return backoff/2 + rand.N(backoff/2+1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
