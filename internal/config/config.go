// Package config holds the typed runtime configuration for the pipeline.
// Every tunable has a named field; Validate runs at startup so a malformed
// configuration is a fatal error, never a mid-batch surprise.
package config

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// Insight providers.
const (
	ProviderBedrock   = "bedrock"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// Config holds all configuration values.
type Config struct {
	// Object storage
	Bucket          string
	RawPrefix       string
	ProcessedPrefix string
	RejectedPrefix  string
	AnalysisPrefix  string

	// Key-value stores
	MarkerTable  string
	ResultsTable string

	// Event bus
	EventBusName string

	// AWS
	AWSRegion string

	// Insight synthesis
	InsightProvider    string
	InsightModelID     string
	AnthropicAPIKey    string
	OpenAIAPIKey       string
	OllamaHost         string
	InsightMaxTokens   int
	InsightRetries     int
	InsightBaseBackoff time.Duration
	InsightTimeout     time.Duration
	MaxPromptAnomalies int

	// Notification
	MailSender      string
	MailRecipients  []string
	MailRetries     int
	MailBaseBackoff time.Duration
	NotifyLimit     int

	// Result retention
	ResultTTL time.Duration

	// Row validation / anomaly schema
	SchemaFile string
	Schema     Schema

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// LookupFunc resolves one environment variable; os.LookupEnv in production,
// a map lookup in tests.
type LookupFunc func(string) (string, bool)

// Load reads configuration, applying defaults that match the original
// deployment.
func Load(lookup LookupFunc) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		Bucket:          get("PULSEPIPE_BUCKET", ""),
		RawPrefix:       get("PULSEPIPE_RAW_PREFIX", "raw/"),
		ProcessedPrefix: get("PULSEPIPE_PROCESSED_PREFIX", "processed/"),
		RejectedPrefix:  get("PULSEPIPE_REJECTED_PREFIX", "rejected/"),
		AnalysisPrefix:  get("PULSEPIPE_ANALYSIS_PREFIX", "analyzed/"),

		MarkerTable:  get("PULSEPIPE_MARKER_TABLE", "health_markers"),
		ResultsTable: get("PULSEPIPE_RESULTS_TABLE", "health_analysis"),

		EventBusName: get("PULSEPIPE_EVENT_BUS", "default"),
		AWSRegion:    get("AWS_REGION", "us-east-1"),

		InsightProvider:    get("PULSEPIPE_INSIGHT_PROVIDER", ProviderBedrock),
		InsightModelID:     get("PULSEPIPE_INSIGHT_MODEL", "anthropic.claude-3-sonnet-20240229-v1:0"),
		AnthropicAPIKey:    get("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:       get("OPENAI_API_KEY", ""),
		OllamaHost:         get("OLLAMA_HOST", "http://localhost:11434"),
		InsightMaxTokens:   800,
		InsightRetries:     3,
		InsightBaseBackoff: 500 * time.Millisecond,
		InsightTimeout:     60 * time.Second,
		MaxPromptAnomalies: 20,

		MailSender:      get("PULSEPIPE_MAIL_SENDER", ""),
		MailRecipients:  splitList(get("PULSEPIPE_MAIL_RECIPIENTS", "")),
		MailRetries:     3,
		MailBaseBackoff: 2 * time.Second,
		NotifyLimit:     5,

		ResultTTL: 7 * 24 * time.Hour,

		SchemaFile: get("PULSEPIPE_SCHEMA_FILE", ""),

		LogFile:  get("PULSEPIPE_LOG_FILE", ""),
		LogLevel: parseLogLevel(get("PULSEPIPE_LOG_LEVEL", "INFO")),
	}

	var err error
	if cfg.InsightMaxTokens, err = intOverride(lookup, "PULSEPIPE_INSIGHT_MAX_TOKENS", cfg.InsightMaxTokens); err != nil {
		return Config{}, err
	}
	if cfg.InsightRetries, err = intOverride(lookup, "PULSEPIPE_INSIGHT_RETRIES", cfg.InsightRetries); err != nil {
		return Config{}, err
	}
	if cfg.MailRetries, err = intOverride(lookup, "PULSEPIPE_MAIL_RETRIES", cfg.MailRetries); err != nil {
		return Config{}, err
	}
	if cfg.NotifyLimit, err = intOverride(lookup, "PULSEPIPE_NOTIFY_LIMIT", cfg.NotifyLimit); err != nil {
		return Config{}, err
	}
	if cfg.MaxPromptAnomalies, err = intOverride(lookup, "PULSEPIPE_MAX_PROMPT_ANOMALIES", cfg.MaxPromptAnomalies); err != nil {
		return Config{}, err
	}

	cfg.Schema, err = LoadSchema(cfg.SchemaFile)
	if err != nil {
		return Config{}, fmt.Errorf("load schema: %w", err)
	}

	return cfg, nil
}

// Validate checks invariants that would otherwise fail deep inside a stage.
func (c Config) Validate() error {
	if c.Bucket == "" {
		return fmt.Errorf("PULSEPIPE_BUCKET is required")
	}
	for _, p := range []struct{ name, val string }{
		{"raw prefix", c.RawPrefix},
		{"processed prefix", c.ProcessedPrefix},
		{"rejected prefix", c.RejectedPrefix},
		{"analysis prefix", c.AnalysisPrefix},
	} {
		if !strings.HasSuffix(p.val, "/") {
			return fmt.Errorf("%s must end with a slash, got %q", p.name, p.val)
		}
	}
	if c.MarkerTable == "" || c.ResultsTable == "" {
		return fmt.Errorf("marker and results table names are required")
	}
	switch c.InsightProvider {
	case ProviderBedrock, ProviderOllama:
	case ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY required for provider %q", c.InsightProvider)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY required for provider %q", c.InsightProvider)
		}
	default:
		return fmt.Errorf("unsupported insight provider: %q", c.InsightProvider)
	}
	if c.InsightRetries < 1 || c.MailRetries < 1 {
		return fmt.Errorf("retry budgets must be at least 1")
	}
	if c.InsightMaxTokens <= 0 {
		return fmt.Errorf("insight max tokens must be positive")
	}
	if c.NotifyLimit <= 0 {
		return fmt.Errorf("notify limit must be positive")
	}
	if err := c.Schema.Validate(); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func intOverride(lookup LookupFunc, key string, def int) (int, error) {
	v, ok := lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
