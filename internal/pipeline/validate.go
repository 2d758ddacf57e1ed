// Package pipeline implements the three processing stages: ingestion and
// validation, analysis, and notification. Each stage is a stateless unit of
// work; correctness under duplicate and reordered triggers comes entirely
// from the conditional writes in the ledger and results stores.
package pipeline

import (
	"strconv"
	"strings"

	"github.com/pulsepipe/pulsepipe/internal/config"
	"github.com/pulsepipe/pulsepipe/internal/record"
)

// Reject reason for the diastolic/systolic cross-check.
const reasonDBPGreaterThanSBP = "dbp_gt_sbp"

// ValidateRow checks one row against the schema. Returns true for an
// accepted row; for a rejected row the reason names the first violated rule
// in schema order: missing_<field>, malformed_<field>, out_of_range_<field>
// or dbp_gt_sbp.
func ValidateRow(row record.Row, schema config.Schema) (bool, string) {
	for _, f := range schema.RequiredFields {
		if strings.TrimSpace(row[f]) == "" {
			return false, "missing_" + f
		}
	}

	values := make(map[string]float64, len(schema.ValidationBands))
	for _, metric := range schema.MetricOrder() {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[metric]), 64)
		if err != nil {
			return false, "malformed_" + metric
		}
		if !schema.ValidationBands[metric].Contains(v) {
			return false, "out_of_range_" + metric
		}
		values[metric] = v
	}

	sbp, hasSBP := values["systolic_bp"]
	dbp, hasDBP := values["diastolic_bp"]
	if hasSBP && hasDBP && dbp > sbp {
		return false, reasonDBPGreaterThanSBP
	}

	return true, ""
}

// Partition splits rows into accepted and rejected sets, preserving input
// order within each set.
func Partition(rows []record.Row, schema config.Schema) ([]record.Row, []record.RejectedRow) {
	var accepted []record.Row
	var rejected []record.RejectedRow
	for _, row := range rows {
		if ok, reason := ValidateRow(row, schema); ok {
			accepted = append(accepted, row)
		} else {
			rejected = append(rejected, record.RejectedRow{Row: row, Reason: reason})
		}
	}
	return accepted, rejected
}
