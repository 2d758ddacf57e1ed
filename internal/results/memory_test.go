package results

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pulsepipe/pulsepipe/internal/record"
)

func seedResult(t *testing.T, s Store, corrID, ts string) {
	t.Helper()
	err := s.Put(context.Background(), record.AnalysisResult{
		CorrelationID:     corrID,
		AnalysisTimestamp: ts,
		RecordsAnalyzed:   10,
	})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
}

func TestLatestPicksNewestTimestamp(t *testing.T) {
	s := NewMemoryStore()
	seedResult(t, s, "corr-1", "2026-08-01T10:00:00.000000Z")
	seedResult(t, s, "corr-1", "2026-08-02T10:00:00.000000Z")
	seedResult(t, s, "corr-2", "2026-08-03T10:00:00.000000Z")

	got, err := s.Latest(context.Background(), "corr-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.AnalysisTimestamp != "2026-08-02T10:00:00.000000Z" {
		t.Errorf("latest timestamp = %s", got.AnalysisTimestamp)
	}

	if _, err := s.Latest(context.Background(), "corr-404"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Latest for unknown id: got %v, want ErrNotFound", err)
	}
}

func TestListUnnotifiedOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedResult(t, s, "a", "2026-08-01T00:00:00.000000Z")
	seedResult(t, s, "b", "2026-08-02T00:00:00.000000Z")
	seedResult(t, s, "c", "2026-08-03T00:00:00.000000Z")

	if err := s.MarkNotified(ctx, "b", "2026-08-02T00:00:00.000000Z", "now"); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}

	got, err := s.ListUnnotified(ctx, 5)
	if err != nil {
		t.Fatalf("ListUnnotified: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].CorrelationID != "c" || got[1].CorrelationID != "a" {
		t.Errorf("order = [%s %s], want [c a]", got[0].CorrelationID, got[1].CorrelationID)
	}

	got, _ = s.ListUnnotified(ctx, 1)
	if len(got) != 1 || got[0].CorrelationID != "c" {
		t.Errorf("limited list = %v", got)
	}
}

func TestMarkNotifiedExactlyOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedResult(t, s, "corr-1", "2026-08-01T00:00:00.000000Z")

	const notifiers = 12
	var wg sync.WaitGroup
	var winsMu sync.Mutex
	wins := 0
	losses := 0

	for i := 0; i < notifiers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.MarkNotified(ctx, "corr-1", "2026-08-01T00:00:00.000000Z", "now")
			winsMu.Lock()
			defer winsMu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrAlreadyNotified):
				losses++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1", wins)
	}
	if losses != notifiers-1 {
		t.Errorf("losses = %d, want %d", losses, notifiers-1)
	}
}

func TestClearNotifiedAllowsRetry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedResult(t, s, "corr-1", "2026-08-01T00:00:00.000000Z")

	if err := s.MarkNotified(ctx, "corr-1", "2026-08-01T00:00:00.000000Z", "now"); err != nil {
		t.Fatalf("MarkNotified: %v", err)
	}
	if err := s.ClearNotified(ctx, "corr-1", "2026-08-01T00:00:00.000000Z"); err != nil {
		t.Fatalf("ClearNotified: %v", err)
	}
	if err := s.MarkNotified(ctx, "corr-1", "2026-08-01T00:00:00.000000Z", "later"); err != nil {
		t.Errorf("MarkNotified after clear: %v", err)
	}
}
