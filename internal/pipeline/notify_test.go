package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pulsepipe/pulsepipe/internal/record"
	"github.com/pulsepipe/pulsepipe/internal/results"
	"github.com/pulsepipe/pulsepipe/internal/storage"
)

func seedAnalysis(t *testing.T, store *storage.MemoryStore, res *results.MemoryStore, corr string, ts time.Time, anomalies int) record.AnalysisResult {
	t.Helper()
	ctx := context.Background()
	cfg := testConfig()

	base := strings.ReplaceAll(corr, "/", "_")
	processedKey := "processed/" + base + ".csv"
	manifestKey := storage.ManifestKeyForProcessed(processedKey)

	manifest := record.Manifest{
		CorrelationID: corr,
		SourceBucket:  cfg.Bucket,
		Counts:        record.Counts{Input: 100, Valid: 90, Rejected: 10},
	}
	body, _ := json.Marshal(manifest)
	if err := store.Put(ctx, cfg.Bucket, manifestKey, body, storage.ContentTypeJSON); err != nil {
		t.Fatalf("seed manifest: %v", err)
	}

	flags := make([]record.AnomalyFlag, anomalies)
	for i := range flags {
		flags[i] = record.AnomalyFlag{
			Row:       record.Row{"user_id": fmt.Sprintf("user-%d", i)},
			Reasons:   []string{"high heart_rate"},
			Deviation: 10,
		}
	}

	result := record.AnalysisResult{
		CorrelationID:     corr,
		AnalysisTimestamp: record.Timestamp(ts),
		SourceBucket:      cfg.Bucket,
		ProcessedKey:      processedKey,
		ManifestKey:       manifestKey,
		RecordsAnalyzed:   90,
		Anomalies:         flags,
		Insights:          []string{"Elevated heart rate cluster detected"},
		Recommendations:   []string{"Schedule a cardiology follow-up"},
		Summary:           "Cardiovascular anomalies dominate this batch.",
	}
	if err := res.Put(ctx, result); err != nil {
		t.Fatalf("seed result: %v", err)
	}
	return result
}

func newTestNotifier(store *storage.MemoryStore, res *results.MemoryStore, mailer Mailer) *Notifier {
	n := NewNotifier(store, res, mailer, testConfig(), nil, testLogger())
	n.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return n
}

func TestNotifySendsOneReport(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	res := results.NewMemoryStore()
	mailer := &fakeMailer{}
	n := newTestNotifier(store, res, mailer)

	seedAnalysis(t, store, res, "corr-1", time.Now(), 12)

	sent, err := n.Notify(ctx, "corr-1")
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !sent {
		t.Fatal("expected a report to be sent")
	}
	if mailer.sentCount() != 1 {
		t.Fatalf("sent %d emails, want 1", mailer.sentCount())
	}

	email := mailer.sent[0]
	for _, want := range []string{"100", "90", "10", "12", "high heart_rate", "Elevated heart rate cluster"} {
		if !strings.Contains(email.TextBody, want) {
			t.Errorf("text body missing %q", want)
		}
		if !strings.Contains(email.HTMLBody, want) {
			t.Errorf("html body missing %q", want)
		}
	}

	latest, err := res.Latest(ctx, "corr-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if !latest.Notified || latest.NotifiedAt == "" {
		t.Errorf("result not marked notified: %+v", latest)
	}

	// A second run over the same scope finds nothing to send.
	sent, err = n.Notify(ctx, "corr-1")
	if err != nil {
		t.Fatalf("second Notify: %v", err)
	}
	if sent || mailer.sentCount() != 1 {
		t.Error("already-notified result must not be re-sent")
	}
}

func TestNotifyExactlyOnceUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	res := results.NewMemoryStore()
	mailer := &fakeMailer{}

	seedAnalysis(t, store, res, "corr-1", time.Now(), 3)

	const runs = 12
	var wg sync.WaitGroup
	sends := make(chan bool, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n := newTestNotifier(store, res, mailer)
			sent, err := n.Notify(ctx, "corr-1")
			if err != nil {
				t.Errorf("Notify: %v", err)
			}
			sends <- sent
		}()
	}
	wg.Wait()
	close(sends)

	won := 0
	for sent := range sends {
		if sent {
			won++
		}
	}
	if won != 1 {
		t.Errorf("%d concurrent runs dispatched, want exactly 1", won)
	}
	if mailer.sentCount() != 1 {
		t.Errorf("mailer saw %d sends, want exactly 1", mailer.sentCount())
	}
}

func TestNotifyDispatchFailureLeavesUnnotified(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	res := results.NewMemoryStore()
	mailer := &fakeMailer{failNext: 100} // exhaust every retry
	n := newTestNotifier(store, res, mailer)

	seedAnalysis(t, store, res, "corr-1", time.Now(), 1)

	sent, err := n.Notify(ctx, "corr-1")
	if err == nil {
		t.Fatal("expected dispatch failure to surface")
	}
	if sent {
		t.Error("failed dispatch must not report sent")
	}

	latest, err := res.Latest(ctx, "corr-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.Notified {
		t.Error("notified must stay false after failed dispatch")
	}

	// The next run can retry the same result.
	mailer.failNext = 0
	sent, err = n.Notify(ctx, "corr-1")
	if err != nil || !sent {
		t.Fatalf("retry after failure: sent=%v err=%v", sent, err)
	}
}

func TestNotifyDispatchRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	res := results.NewMemoryStore()
	mailer := &fakeMailer{failNext: 2} // succeed on the third attempt
	n := newTestNotifier(store, res, mailer)

	seedAnalysis(t, store, res, "corr-1", time.Now(), 1)

	sent, err := n.Notify(ctx, "corr-1")
	if err != nil || !sent {
		t.Fatalf("Notify: sent=%v err=%v", sent, err)
	}
	if mailer.sentCount() != 1 {
		t.Errorf("sent %d emails, want 1", mailer.sentCount())
	}
}

func TestNotifyFallbackScopeAggregatesRecentResults(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	res := results.NewMemoryStore()
	mailer := &fakeMailer{}
	n := newTestNotifier(store, res, mailer)

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		seedAnalysis(t, store, res, fmt.Sprintf("corr-%d", i), base.Add(time.Duration(i)*time.Minute), 2)
	}

	sent, err := n.Notify(ctx, "")
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !sent {
		t.Fatal("expected a report")
	}

	// NotifyLimit is 5: the five newest results are claimed, two remain.
	remaining, err := res.ListUnnotified(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnnotified: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("%d results remain unnotified, want 2", len(remaining))
	}
	for _, r := range remaining {
		if r.CorrelationID != "corr-0" && r.CorrelationID != "corr-1" {
			t.Errorf("oldest results should remain, got %s", r.CorrelationID)
		}
	}

	// Aggregated counts cover the five claimed manifests.
	if !strings.Contains(mailer.sent[0].TextBody, "500") {
		t.Error("report should aggregate input counts across the scope")
	}
}
