package pipeline

import (
	"strconv"
	"strings"

	"github.com/pulsepipe/pulsepipe/internal/config"
	"github.com/pulsepipe/pulsepipe/internal/record"
)

// DetectAnomalies flags every row with a metric outside its alert band. The
// function is pure and deterministic: identical rows and bands always yield
// identical flags, in input order, with reasons in schema order.
//
// A flag's Deviation is the largest absolute distance from a violated bound
// across the row's metrics, in that metric's own unit.
func DetectAnomalies(rows []record.Row, schema config.Schema) []record.AnomalyFlag {
	var flags []record.AnomalyFlag
	for _, row := range rows {
		var reasons []string
		var deviation float64

		for _, metric := range schema.AlertMetricOrder() {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[metric]), 64)
			if err != nil {
				// Rows reach this stage validated; an unparseable value
				// means the band set is wider than the validation set.
				continue
			}
			band := schema.AlertBands[metric]
			switch {
			case v < band.Min:
				reasons = append(reasons, "low "+metric)
				if d := band.Min - v; d > deviation {
					deviation = d
				}
			case v > band.Max:
				reasons = append(reasons, "high "+metric)
				if d := v - band.Max; d > deviation {
					deviation = d
				}
			}
		}

		if len(reasons) > 0 {
			flags = append(flags, record.AnomalyFlag{
				Row:       row.Clone(),
				Reasons:   reasons,
				Deviation: deviation,
			})
		}
	}
	return flags
}
