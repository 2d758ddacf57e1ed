package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with the same conditional-transition
// semantics as the DynamoDB implementation. Test use only; the production
// ledger must be externally durable.
type MemoryStore struct {
	mu      sync.Mutex
	markers map[string]*Marker
	clock   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markers: make(map[string]*Marker),
		clock:   time.Now,
	}
}

// TryBegin claims the identity under the store lock.
func (s *MemoryStore) TryBegin(ctx context.Context, id, correlationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.markers[id]
	if !ok {
		s.markers[id] = &Marker{
			ID:            id,
			Status:        StatusPending,
			CorrelationID: correlationID,
			StartedAt:     s.clock().UTC(),
		}
		return nil
	}
	switch existing.Status {
	case StatusCompleted:
		return fmt.Errorf("%w: %s", ErrAlreadyCompleted, id)
	case StatusPending:
		return fmt.Errorf("%w: %s", ErrInProgress, id)
	case StatusFailed:
		existing.Status = StatusPending
		existing.CorrelationID = correlationID
		existing.StartedAt = s.clock().UTC()
		existing.FailureReason = ""
		return nil
	default:
		return fmt.Errorf("marker %s has invalid status %q", id, existing.Status)
	}
}

// Complete transitions Pending -> Completed.
func (s *MemoryStore) Complete(ctx context.Context, id string, outputs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markers[id]
	if !ok || m.Status != StatusPending {
		return fmt.Errorf("complete marker %s: not pending", id)
	}
	now := s.clock().UTC()
	m.Status = StatusCompleted
	m.CompletedAt = &now
	m.OutputLocations = append([]string(nil), outputs...)
	return nil
}

// Fail transitions Pending -> Failed.
func (s *MemoryStore) Fail(ctx context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markers[id]
	if !ok || m.Status != StatusPending {
		return fmt.Errorf("fail marker %s: not pending", id)
	}
	now := s.clock().UTC()
	m.Status = StatusFailed
	m.CompletedAt = &now
	m.FailureReason = reason
	return nil
}

// Get returns a copy of the marker, or nil when absent.
func (s *MemoryStore) Get(ctx context.Context, id string) (*Marker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markers[id]
	if !ok {
		return nil, nil
	}
	out := *m
	return &out, nil
}
