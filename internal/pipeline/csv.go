package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/pulsepipe/pulsepipe/internal/record"
)

// Column appended to rejected rows.
const rejectReasonField = "reject_reason"

// parseCSV decodes a tabular object into rows keyed by the header fields.
// Short records leave trailing fields empty; extra cells are dropped.
func parseCSV(data []byte) ([]string, []record.Row, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}

	var rows []record.Row
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row %d: %w", len(rows)+1, err)
		}
		row := make(record.Row, len(header))
		for i, field := range header {
			if i < len(rec) {
				row[field] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return header, rows, nil
}

// encodeCSV renders rows under the given header, one cell per header field.
func encodeCSV(header []string, rows []record.Row) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write(header)
	for _, row := range rows {
		rec := make([]string, len(header))
		for i, field := range header {
			rec[i] = row[field]
		}
		w.Write(rec)
	}
	w.Flush()
	return buf.Bytes()
}

// encodeRejectedCSV renders rejected rows with the reject reason appended as
// an extra trailing column.
func encodeRejectedCSV(header []string, rejected []record.RejectedRow) []byte {
	extended := append(append([]string(nil), header...), rejectReasonField)
	rows := make([]record.Row, len(rejected))
	for i, rr := range rejected {
		row := rr.Row.Clone()
		row[rejectReasonField] = rr.Reason
		rows[i] = row
	}
	return encodeCSV(extended, rows)
}
