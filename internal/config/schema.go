package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Band is an inclusive numeric range for one metric.
type Band struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// Contains reports whether v falls inside the band.
func (b Band) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Schema defines the tabular layout the ingestion stage validates against
// and the per-metric bands the analysis stage flags anomalies with.
// ValidationBands reject rows outright; AlertBands are narrower and mark
// rows that passed validation as anomalous.
type Schema struct {
	RequiredFields  []string        `yaml:"required_fields"`
	ValidationBands map[string]Band `yaml:"validation_bands"`
	AlertBands      map[string]Band `yaml:"alert_bands"`
}

// DefaultSchema returns the compiled-in schema matching the original
// deployment's health-metric layout.
func DefaultSchema() Schema {
	return Schema{
		RequiredFields: []string{
			"event_time", "user_id", "heart_rate", "spo2", "steps",
			"temp_c", "systolic_bp", "diastolic_bp",
		},
		ValidationBands: map[string]Band{
			"heart_rate":   {Min: 50, Max: 180},
			"spo2":         {Min: 90, Max: 100},
			"steps":        {Min: 0, Max: 50000},
			"temp_c":       {Min: 35.0, Max: 40.0},
			"systolic_bp":  {Min: 90, Max: 180},
			"diastolic_bp": {Min: 60, Max: 120},
		},
		AlertBands: map[string]Band{
			"heart_rate":   {Min: 60, Max: 160},
			"spo2":         {Min: 92, Max: 100},
			"temp_c":       {Min: 35.0, Max: 38.0},
			"systolic_bp":  {Min: 90, Max: 140},
			"diastolic_bp": {Min: 60, Max: 90},
		},
	}
}

// LoadSchema reads a schema from a YAML file; an empty path yields the
// compiled-in default.
func LoadSchema(path string) (Schema, error) {
	if path == "" {
		return DefaultSchema(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("read schema file: %w", err)
	}
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Schema{}, fmt.Errorf("parse schema file: %w", err)
	}
	return s, nil
}

// Validate checks structural sanity of the schema.
func (s Schema) Validate() error {
	if len(s.RequiredFields) == 0 {
		return fmt.Errorf("required_fields must not be empty")
	}
	seen := make(map[string]struct{}, len(s.RequiredFields))
	for _, f := range s.RequiredFields {
		if f == "" {
			return fmt.Errorf("required field names must not be empty")
		}
		if _, dup := seen[f]; dup {
			return fmt.Errorf("duplicate required field %q", f)
		}
		seen[f] = struct{}{}
	}
	for name, b := range s.ValidationBands {
		if b.Min > b.Max {
			return fmt.Errorf("validation band %q: min %v > max %v", name, b.Min, b.Max)
		}
		if _, ok := seen[name]; !ok {
			return fmt.Errorf("validation band %q refers to a field not in required_fields", name)
		}
	}
	for name, b := range s.AlertBands {
		if b.Min > b.Max {
			return fmt.Errorf("alert band %q: min %v > max %v", name, b.Min, b.Max)
		}
	}
	return nil
}

// MetricOrder returns the required fields that carry a validation band, in
// declaration order. Validation and anomaly detection iterate metrics in this
// order so outcomes are deterministic.
func (s Schema) MetricOrder() []string {
	out := make([]string, 0, len(s.ValidationBands))
	for _, f := range s.RequiredFields {
		if _, ok := s.ValidationBands[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// AlertMetricOrder is MetricOrder restricted to metrics with an alert band.
func (s Schema) AlertMetricOrder() []string {
	out := make([]string, 0, len(s.AlertBands))
	for _, f := range s.RequiredFields {
		if _, ok := s.AlertBands[f]; ok {
			out = append(out, f)
		}
	}
	return out
}
