package pipeline

import (
	"testing"

	"github.com/pulsepipe/pulsepipe/internal/config"
	"github.com/pulsepipe/pulsepipe/internal/record"
)

func conformingRow() record.Row {
	return record.Row{
		"event_time":   "2026-03-14T10:00:00Z",
		"user_id":      "user-001",
		"heart_rate":   "72",
		"spo2":         "98",
		"steps":        "1200",
		"temp_c":       "36.6",
		"systolic_bp":  "120",
		"diastolic_bp": "80",
	}
}

func TestValidateRow(t *testing.T) {
	schema := config.DefaultSchema()

	tests := []struct {
		name       string
		mutate     func(record.Row)
		wantValid  bool
		wantReason string
	}{
		{
			name:      "conforming row accepted",
			mutate:    func(r record.Row) {},
			wantValid: true,
		},
		{
			name:       "missing field",
			mutate:     func(r record.Row) { r["spo2"] = "" },
			wantValid:  false,
			wantReason: "missing_spo2",
		},
		{
			name:       "absent field",
			mutate:     func(r record.Row) { delete(r, "user_id") },
			wantValid:  false,
			wantReason: "missing_user_id",
		},
		{
			name:       "malformed numeric",
			mutate:     func(r record.Row) { r["heart_rate"] = "fast" },
			wantValid:  false,
			wantReason: "malformed_heart_rate",
		},
		{
			name:       "heart rate below band",
			mutate:     func(r record.Row) { r["heart_rate"] = "40" },
			wantValid:  false,
			wantReason: "out_of_range_heart_rate",
		},
		{
			name:       "temperature above band",
			mutate:     func(r record.Row) { r["temp_c"] = "41.2" },
			wantValid:  false,
			wantReason: "out_of_range_temp_c",
		},
		{
			name:       "spo2 below band",
			mutate:     func(r record.Row) { r["spo2"] = "85" },
			wantValid:  false,
			wantReason: "out_of_range_spo2",
		},
		{
			name: "diastolic above systolic",
			mutate: func(r record.Row) {
				r["systolic_bp"] = "95"
				r["diastolic_bp"] = "110"
			},
			wantValid:  false,
			wantReason: "dbp_gt_sbp",
		},
		{
			name:      "band boundaries inclusive",
			mutate:    func(r record.Row) { r["heart_rate"] = "180" },
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := conformingRow()
			tt.mutate(row)

			valid, reason := ValidateRow(row, schema)
			if valid != tt.wantValid {
				t.Fatalf("valid = %v, want %v (reason %q)", valid, tt.wantValid, reason)
			}
			if reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", reason, tt.wantReason)
			}
		})
	}
}

func TestPartitionPreservesOrder(t *testing.T) {
	schema := config.DefaultSchema()

	rows := []record.Row{conformingRow(), conformingRow(), conformingRow()}
	rows[0]["user_id"] = "a"
	rows[1]["user_id"] = "b"
	rows[1]["spo2"] = "" // rejected
	rows[2]["user_id"] = "c"

	accepted, rejected := Partition(rows, schema)
	if len(accepted) != 2 || len(rejected) != 1 {
		t.Fatalf("partition = %d accepted / %d rejected, want 2/1", len(accepted), len(rejected))
	}
	if accepted[0]["user_id"] != "a" || accepted[1]["user_id"] != "c" {
		t.Errorf("accepted order broken: %v", accepted)
	}
	if rejected[0].Reason != "missing_spo2" {
		t.Errorf("reject reason = %q, want missing_spo2", rejected[0].Reason)
	}
}
