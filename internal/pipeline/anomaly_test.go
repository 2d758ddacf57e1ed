package pipeline

import (
	"reflect"
	"testing"

	"github.com/pulsepipe/pulsepipe/internal/config"
	"github.com/pulsepipe/pulsepipe/internal/record"
)

func TestDetectAnomalies(t *testing.T) {
	schema := config.DefaultSchema()

	rows := []record.Row{
		conformingRow(), // clean
		func() record.Row {
			r := conformingRow()
			r["heart_rate"] = "170" // above alert max 160
			return r
		}(),
		func() record.Row {
			r := conformingRow()
			r["spo2"] = "93"   // within alert band
			r["temp_c"] = "39" // above 38
			r["systolic_bp"] = "150"
			return r
		}(),
	}

	flags := DetectAnomalies(rows, schema)
	if len(flags) != 2 {
		t.Fatalf("got %d flags, want 2", len(flags))
	}

	if got, want := flags[0].Reasons, []string{"high heart_rate"}; !reflect.DeepEqual(got, want) {
		t.Errorf("flags[0].Reasons = %v, want %v", got, want)
	}
	if flags[0].Deviation != 10 {
		t.Errorf("flags[0].Deviation = %v, want 10", flags[0].Deviation)
	}

	if got, want := flags[1].Reasons, []string{"high temp_c", "high systolic_bp"}; !reflect.DeepEqual(got, want) {
		t.Errorf("flags[1].Reasons = %v, want %v", got, want)
	}
	// systolic 150 vs max 140 beats temp 39 vs max 38.
	if flags[1].Deviation != 10 {
		t.Errorf("flags[1].Deviation = %v, want 10", flags[1].Deviation)
	}
}

func TestDetectAnomaliesLowBounds(t *testing.T) {
	schema := config.DefaultSchema()

	r := conformingRow()
	r["heart_rate"] = "55" // valid (>=50) but below alert min 60
	r["spo2"] = "91"       // valid (>=90) but below alert min 92

	flags := DetectAnomalies([]record.Row{r}, schema)
	if len(flags) != 1 {
		t.Fatalf("got %d flags, want 1", len(flags))
	}
	if got, want := flags[0].Reasons, []string{"low heart_rate", "low spo2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Reasons = %v, want %v", got, want)
	}
	if flags[0].Deviation != 5 {
		t.Errorf("Deviation = %v, want 5", flags[0].Deviation)
	}
}

func TestDetectAnomaliesDeterministic(t *testing.T) {
	schema := config.DefaultSchema()

	rows := make([]record.Row, 0, 50)
	for i := 0; i < 50; i++ {
		r := conformingRow()
		if i%3 == 0 {
			r["heart_rate"] = "165"
		}
		if i%7 == 0 {
			r["temp_c"] = "38.5"
		}
		rows = append(rows, r)
	}

	first := DetectAnomalies(rows, schema)
	for run := 0; run < 5; run++ {
		if again := DetectAnomalies(rows, schema); !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d produced different flags", run)
		}
	}
}
