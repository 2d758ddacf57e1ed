package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pulsepipe/pulsepipe/internal/config"
	"github.com/pulsepipe/pulsepipe/internal/metrics"
	"github.com/pulsepipe/pulsepipe/internal/record"
	"github.com/pulsepipe/pulsepipe/internal/report"
	"github.com/pulsepipe/pulsepipe/internal/results"
	"github.com/pulsepipe/pulsepipe/internal/storage"
)

// Email is one outbound report message.
type Email struct {
	Sender     string
	Recipients []string
	Subject    string
	TextBody   string
	HTMLBody   string
}

// Mailer dispatches one email.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// Caps on enumerated report sections.
const maxReportItems = 10

// manifestFetchConcurrency bounds parallel manifest reads.
const manifestFetchConcurrency = 4

// Notifier runs the notification stage: it claims unnotified analysis
// results, renders one report over them and dispatches it.
//
// The notified flag is flipped before dispatch. The conditional flip is what
// keeps concurrent notifier runs from double-sending; a run that loses the
// flip excludes the result. If dispatch then fails after retries, the run
// that won reverts its claims so a later run can retry the same results.
type Notifier struct {
	store     storage.ObjectStore
	results   results.Store
	mailer    Mailer
	cfg       config.Config
	collector *metrics.Collector
	log       *slog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewNotifier wires the stage. collector may be nil.
func NewNotifier(store storage.ObjectStore, res results.Store, mailer Mailer, cfg config.Config, collector *metrics.Collector, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		store:     store,
		results:   res,
		mailer:    mailer,
		cfg:       cfg,
		collector: collector,
		log:       log,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Notify selects unnotified analysis results and dispatches one report over
// them. With a correlation id the scope is that run's latest result; without
// one it is the most recent unnotified results up to the configured limit.
// Returns whether a report was sent.
func (n *Notifier) Notify(ctx context.Context, correlationID string) (bool, error) {
	start := n.now()
	sent, err := n.notify(ctx, correlationID)
	if n.collector != nil {
		n.collector.Record(metrics.OpNotify, time.Since(start), err != nil)
	}
	return sent, err
}

func (n *Notifier) notify(ctx context.Context, correlationID string) (bool, error) {
	candidates, err := n.selectCandidates(ctx, correlationID)
	if err != nil {
		return false, err
	}
	if len(candidates) == 0 {
		n.log.Info("no_unnotified_results", "correlation_id", correlationID)
		return false, nil
	}

	notifiedAt := record.Timestamp(n.now())
	claimed := make([]record.AnalysisResult, 0, len(candidates))
	for _, r := range candidates {
		err := n.results.MarkNotified(ctx, r.CorrelationID, r.AnalysisTimestamp, notifiedAt)
		if errors.Is(err, results.ErrAlreadyNotified) {
			n.log.Info("result_claimed_elsewhere",
				"correlation_id", r.CorrelationID,
				"analysis_timestamp", r.AnalysisTimestamp)
			continue
		}
		if err != nil {
			n.revert(ctx, claimed)
			return false, fmt.Errorf("claim result: %w", err)
		}
		claimed = append(claimed, r)
	}
	if len(claimed) == 0 {
		return false, nil
	}

	data, err := n.buildReport(ctx, claimed)
	if err != nil {
		n.revert(ctx, claimed)
		return false, err
	}

	email, err := n.renderEmail(data)
	if err != nil {
		n.revert(ctx, claimed)
		return false, err
	}

	if err := n.dispatch(ctx, email); err != nil {
		n.revert(ctx, claimed)
		return false, fmt.Errorf("dispatch notification: %w", err)
	}

	n.log.Info("notification_sent",
		"results_included", len(claimed),
		"recipients", len(email.Recipients),
		"total_input_rows", data.TotalInput,
		"total_valid_rows", data.TotalValid,
		"total_rejected_rows", data.TotalRejected,
		"total_anomalies", data.TotalAnomalies,
		"insights_count", len(data.Insights))
	return true, nil
}

// selectCandidates returns unnotified results newest first.
func (n *Notifier) selectCandidates(ctx context.Context, correlationID string) ([]record.AnalysisResult, error) {
	if correlationID == "" {
		items, err := n.results.ListUnnotified(ctx, n.cfg.NotifyLimit)
		if err != nil {
			return nil, fmt.Errorf("list unnotified results: %w", err)
		}
		return items, nil
	}

	latest, err := n.results.Latest(ctx, correlationID)
	if errors.Is(err, results.ErrNotFound) {
		n.log.Info("no_analysis_found", "correlation_id", correlationID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch latest result: %w", err)
	}
	if latest.Notified {
		n.log.Info("already_notified", "correlation_id", correlationID)
		return nil, nil
	}
	return []record.AnalysisResult{*latest}, nil
}

// buildReport aggregates manifests and analysis data for the claimed scope.
// Insights, recommendations and summary come from the newest result only;
// counts and the anomaly frequency table aggregate the whole scope.
func (n *Notifier) buildReport(ctx context.Context, claimed []record.AnalysisResult) (report.ReportData, error) {
	manifests := make([]*record.Manifest, len(claimed))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(manifestFetchConcurrency)
	for i, r := range claimed {
		g.Go(func() error {
			body, err := n.store.Get(gctx, r.SourceBucket, r.ManifestKey)
			if errors.Is(err, storage.ErrNotFound) {
				n.log.Warn("manifest_not_found",
					"correlation_id", r.CorrelationID,
					"manifest_key", r.ManifestKey)
				return nil
			}
			if err != nil {
				return fmt.Errorf("fetch manifest %s: %w", r.ManifestKey, err)
			}
			var m record.Manifest
			if err := json.Unmarshal(body, &m); err != nil {
				return fmt.Errorf("parse manifest %s: %w", r.ManifestKey, err)
			}
			manifests[i] = &m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report.ReportData{}, err
	}

	data := report.ReportData{
		GeneratedAt:    n.now(),
		LatestAnalysis: claimed[0].AnalysisTimestamp,
		RunCount:       len(claimed),
	}
	for _, m := range manifests {
		if m == nil {
			continue
		}
		data.TotalInput += m.Counts.Input
		data.TotalValid += m.Counts.Valid
		data.TotalRejected += m.Counts.Rejected
	}

	freq := make(map[string]int)
	for _, r := range claimed {
		data.RecordsAnalyzed += r.RecordsAnalyzed
		data.TotalAnomalies += r.AnomalyCount()
		for _, flag := range r.Anomalies {
			for _, reason := range flag.Reasons {
				freq[reason]++
			}
		}
	}
	data.TopAnomalies = topAnomalies(freq, maxReportItems)

	newest := claimed[0]
	data.Insights = capList(newest.Insights, maxReportItems)
	data.Recommendations = capList(newest.Recommendations, maxReportItems)
	data.Summary = newest.Summary

	return data, nil
}

func (n *Notifier) renderEmail(data report.ReportData) (Email, error) {
	text, err := report.RenderText(data)
	if err != nil {
		return Email{}, err
	}
	html, err := report.RenderHTML(data)
	if err != nil {
		return Email{}, err
	}
	return Email{
		Sender:     n.cfg.MailSender,
		Recipients: n.cfg.MailRecipients,
		Subject:    report.Subject(data.GeneratedAt),
		TextBody:   text,
		HTMLBody:   html,
	}, nil
}

// dispatch sends with bounded exponential backoff.
func (n *Notifier) dispatch(ctx context.Context, email Email) error {
	var lastErr error
	for attempt := 0; attempt < n.cfg.MailRetries; attempt++ {
		if attempt > 0 {
			backoff := n.cfg.MailBaseBackoff << (attempt - 1)
			n.log.Warn("notification_retry",
				"attempt", attempt+1,
				"max_attempts", n.cfg.MailRetries,
				"backoff_ms", backoff.Milliseconds(),
				"error", lastErr)
			if err := n.sleep(ctx, backoff); err != nil {
				return err
			}
		}
		if lastErr = n.mailer.Send(ctx, email); lastErr == nil {
			return nil
		}
	}
	return lastErr
}

// revert clears the notified flag on every claimed result after a failed
// dispatch, so no result is left marked without a sent report.
func (n *Notifier) revert(ctx context.Context, claimed []record.AnalysisResult) {
	for _, r := range claimed {
		if err := n.results.ClearNotified(ctx, r.CorrelationID, r.AnalysisTimestamp); err != nil {
			n.log.Error("notified_revert_failed",
				"correlation_id", r.CorrelationID,
				"analysis_timestamp", r.AnalysisTimestamp,
				"error", err)
		}
	}
}

func topAnomalies(freq map[string]int, limit int) []report.AnomalyCount {
	out := make([]report.AnomalyCount, 0, len(freq))
	for reason, count := range freq {
		out = append(out, report.AnomalyCount{Reason: reason, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func capList(items []string, limit int) []string {
	if len(items) > limit {
		return items[:limit]
	}
	return items
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
