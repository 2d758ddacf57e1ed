// Package results persists analysis results keyed by
// (correlation_id, analysis_timestamp) and guards the notified flag with
// conditional writes so concurrent notifiers cannot double-send.
package results

import (
	"context"
	"errors"

	"github.com/pulsepipe/pulsepipe/internal/record"
)

// Sentinel errors. Use errors.Is in calling code.
var (
	// ErrAlreadyNotified means the conditional notified flip lost: another
	// notifier run owns this result.
	ErrAlreadyNotified = errors.New("analysis result already notified")

	// ErrNotFound means no result exists for the given key.
	ErrNotFound = errors.New("analysis result not found")
)

// Store is the analysis-result store interface.
type Store interface {
	// Put persists one analysis result.
	Put(ctx context.Context, r record.AnalysisResult) error

	// Latest returns the most recent result for a correlation id, or
	// ErrNotFound.
	Latest(ctx context.Context, correlationID string) (*record.AnalysisResult, error)

	// ListUnnotified returns up to limit unnotified results, newest first.
	ListUnnotified(ctx context.Context, limit int) ([]record.AnalysisResult, error)

	// MarkNotified flips notified false -> true for one result. The write is
	// conditional on notified still being false; a lost race returns
	// ErrAlreadyNotified.
	MarkNotified(ctx context.Context, correlationID, analysisTimestamp, notifiedAt string) error

	// ClearNotified reverts notified to false. Only the notifier run that
	// won the MarkNotified claim calls this, after a dispatch failure, so a
	// later run can retry the result.
	ClearNotified(ctx context.Context, correlationID, analysisTimestamp string) error
}
