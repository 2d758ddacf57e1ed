package results

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pulsepipe/pulsepipe/internal/record"
)

// MemoryStore is an in-memory Store for tests, with the same conditional
// MarkNotified semantics as the DynamoDB implementation.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*record.AnalysisResult
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory result store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*record.AnalysisResult)}
}

func itemKey(correlationID, analysisTimestamp string) string {
	return correlationID + "#" + analysisTimestamp
}

// Put persists a copy of the result.
func (s *MemoryStore) Put(ctx context.Context, r record.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := r
	s.items[itemKey(r.CorrelationID, r.AnalysisTimestamp)] = &stored
	return nil
}

// Latest returns the most recent result for a correlation id.
func (s *MemoryStore) Latest(ctx context.Context, correlationID string) (*record.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *record.AnalysisResult
	for _, r := range s.items {
		if r.CorrelationID != correlationID {
			continue
		}
		if latest == nil || r.AnalysisTimestamp > latest.AnalysisTimestamp {
			latest = r
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, correlationID)
	}
	out := *latest
	return &out, nil
}

// ListUnnotified returns up to limit unnotified results, newest first.
func (s *MemoryStore) ListUnnotified(ctx context.Context, limit int) ([]record.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []record.AnalysisResult
	for _, r := range s.items {
		if !r.Notified {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].AnalysisTimestamp > out[j].AnalysisTimestamp
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkNotified flips notified false -> true under the store lock.
func (s *MemoryStore) MarkNotified(ctx context.Context, correlationID, analysisTimestamp, notifiedAt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.items[itemKey(correlationID, analysisTimestamp)]
	if !ok {
		return fmt.Errorf("%w: %s@%s", ErrNotFound, correlationID, analysisTimestamp)
	}
	if r.Notified {
		return fmt.Errorf("%w: %s@%s", ErrAlreadyNotified, correlationID, analysisTimestamp)
	}
	r.Notified = true
	r.NotifiedAt = notifiedAt
	return nil
}

// ClearNotified reverts notified to false.
func (s *MemoryStore) ClearNotified(ctx context.Context, correlationID, analysisTimestamp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.items[itemKey(correlationID, analysisTimestamp)]
	if !ok {
		return fmt.Errorf("%w: %s@%s", ErrNotFound, correlationID, analysisTimestamp)
	}
	r.Notified = false
	r.NotifiedAt = ""
	return nil
}
