// Package ledger implements the durable idempotency marker store. Every
// transition is a conditional write against the backing store, which is what
// makes redelivered triggers and concurrent duplicate invocations safe.
//
// Marker lifecycle: created Pending by TryBegin, then moved exactly once to
// Completed or Failed. A Failed marker may be re-claimed by a later retry
// (Failed -> Pending); Completed is terminal.
package ledger

import (
	"context"
	"errors"
	"time"
)

// Marker statuses.
const (
	StatusPending   = "PENDING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// Sentinel errors for TryBegin. Use errors.Is in calling code.
var (
	// ErrAlreadyCompleted means the identity was fully processed before;
	// the caller must short-circuit to a no-op success.
	ErrAlreadyCompleted = errors.New("batch already processed")

	// ErrInProgress means another invocation holds the Pending marker;
	// the caller must not duplicate the work.
	ErrInProgress = errors.New("batch processing already in progress")
)

// Marker is one durable idempotency record.
type Marker struct {
	ID              string     `dynamodbav:"marker_id" json:"marker_id"`
	Status          string     `dynamodbav:"status" json:"status"`
	CorrelationID   string     `dynamodbav:"correlation_id" json:"correlation_id"`
	StartedAt       time.Time  `dynamodbav:"started_at" json:"started_at"`
	CompletedAt     *time.Time `dynamodbav:"completed_at,omitempty" json:"completed_at,omitempty"`
	OutputLocations []string   `dynamodbav:"output_locations,omitempty" json:"output_locations,omitempty"`
	FailureReason   string     `dynamodbav:"failure_reason,omitempty" json:"failure_reason,omitempty"`
}

// Store is the ledger interface the stages depend on.
type Store interface {
	// TryBegin atomically claims the identity for processing. It returns
	// nil when the claim was won (marker is now Pending), ErrAlreadyCompleted
	// when a Completed marker exists, and ErrInProgress when another run
	// holds Pending. A Failed marker is re-claimed and TryBegin returns nil.
	TryBegin(ctx context.Context, id, correlationID string) error

	// Complete transitions Pending -> Completed, recording output locations.
	Complete(ctx context.Context, id string, outputs []string) error

	// Fail transitions Pending -> Failed, recording the reason. A later
	// TryBegin for the same identity is then permitted to re-attempt.
	Fail(ctx context.Context, id, reason string) error

	// Get returns the marker, or nil when none exists.
	Get(ctx context.Context, id string) (*Marker, error)
}
