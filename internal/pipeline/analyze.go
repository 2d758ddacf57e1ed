package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pulsepipe/pulsepipe/internal/bus"
	"github.com/pulsepipe/pulsepipe/internal/config"
	"github.com/pulsepipe/pulsepipe/internal/insight"
	"github.com/pulsepipe/pulsepipe/internal/ledger"
	"github.com/pulsepipe/pulsepipe/internal/metrics"
	"github.com/pulsepipe/pulsepipe/internal/record"
	"github.com/pulsepipe/pulsepipe/internal/results"
	"github.com/pulsepipe/pulsepipe/internal/storage"
)

// Analyzer runs the analysis stage for one processed batch.
type Analyzer struct {
	store     storage.ObjectStore
	markers   ledger.Store
	results   results.Store
	bus       bus.Bus
	insights  *insight.Client
	cfg       config.Config
	collector *metrics.Collector
	log       *slog.Logger
	now       func() time.Time
}

// NewAnalyzer wires the stage. collector may be nil.
func NewAnalyzer(store storage.ObjectStore, markers ledger.Store, res results.Store, b bus.Bus, insights *insight.Client, cfg config.Config, collector *metrics.Collector, log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{
		store:     store,
		markers:   markers,
		results:   res,
		bus:       b,
		insights:  insights,
		cfg:       cfg,
		collector: collector,
		log:       log,
		now:       time.Now,
	}
}

// AnalyzeOutcome summarizes one Analyze invocation.
type AnalyzeOutcome struct {
	CorrelationID string
	AnalysisKey   string
	RowCount      int
	AnomalyCount  int

	Skipped        bool
	ShortCircuited bool
}

// analysisMarkerID derives the analysis-stage ledger key for a processed
// batch. Its own namespace keeps analysis idempotency self-contained rather
// than inherited from the ingestion short-circuit.
func analysisMarkerID(id record.BatchIdentity) string {
	return "analysis__" + id.MarkerID()
}

// Analyze detects anomalies, synthesizes insights and persists the result
// for one processed object. Re-invocation for the same processed content is
// a no-op.
func (an *Analyzer) Analyze(ctx context.Context, ref record.BatchRef) (*AnalyzeOutcome, error) {
	start := an.now()
	outcome, err := an.analyze(ctx, ref)
	if an.collector != nil {
		an.collector.Record(metrics.OpAnalyze, time.Since(start), err != nil)
	}
	return outcome, err
}

func (an *Analyzer) analyze(ctx context.Context, ref record.BatchRef) (*AnalyzeOutcome, error) {
	corr := ref.CorrelationID
	if corr == "" {
		corr = fmt.Sprintf("%s/%s@%s", ref.Bucket, ref.Key, "null")
	}
	log := an.log.With("correlation_id", corr)

	if !strings.HasPrefix(ref.Key, an.cfg.ProcessedPrefix) || strings.HasSuffix(ref.Key, "_manifest.json") {
		log.Info("skip_non_processed_object", "key", ref.Key)
		return &AnalyzeOutcome{CorrelationID: corr, Skipped: true}, nil
	}

	log.Info("analysis_started", "bucket", ref.Bucket, "key", ref.Key)

	body, err := an.store.Get(ctx, ref.Bucket, ref.Key)
	if err != nil {
		return nil, fmt.Errorf("fetch processed object: %w", err)
	}

	sum := sha256.Sum256(body)
	identity := record.BatchIdentity{
		Bucket:      ref.Bucket,
		Key:         ref.Key,
		Version:     "null",
		ContentHash: hex.EncodeToString(sum[:]),
	}
	markerID := analysisMarkerID(identity)

	switch err := an.markers.TryBegin(ctx, markerID, corr); {
	case errors.Is(err, ledger.ErrAlreadyCompleted):
		log.Info("already_analyzed", "marker_id", markerID)
		return &AnalyzeOutcome{CorrelationID: corr, ShortCircuited: true}, nil
	case errors.Is(err, ledger.ErrInProgress):
		log.Info("analysis_in_progress_elsewhere", "marker_id", markerID)
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("claim marker: %w", err)
	}

	_, rows, err := parseCSV(body)
	if err != nil {
		return nil, an.fail(ctx, log, markerID, corr, ref, fmt.Errorf("parse processed batch: %w", err))
	}
	if len(rows) == 0 {
		log.Info("no_data_to_analyze")
		if err := an.markers.Complete(ctx, markerID, nil); err != nil {
			return nil, fmt.Errorf("complete marker: %w", err)
		}
		return &AnalyzeOutcome{CorrelationID: corr, Skipped: true}, nil
	}

	flags := DetectAnomalies(rows, an.cfg.Schema)
	stats := Aggregate(rows)

	// Insight synthesis degrades gracefully: the quantitative result never
	// depends on the inference service being up.
	var insightsList, recommendations []string
	var summary string
	res, err := an.insights.GenerateInsights(ctx, insight.PromptContext{
		RecordCount:  len(rows),
		AnomalyCount: len(flags),
		Stats:        stats,
		Anomalies:    flags,
	})
	switch {
	case err == nil:
		insightsList = res.Insights
		recommendations = res.Recommendations
		summary = res.Summary
	case errors.Is(err, insight.ErrInference):
		log.Warn("insight_synthesis_degraded", "error", err)
		summary = fmt.Sprintf(
			"Automated insight synthesis was unavailable for this run. Quantitative analysis completed: %d anomalies detected across %d records.",
			len(flags), len(rows))
	default:
		return nil, an.fail(ctx, log, markerID, corr, ref, fmt.Errorf("generate insights: %w", err))
	}

	now := an.now()
	result := record.AnalysisResult{
		CorrelationID:     corr,
		AnalysisTimestamp: record.Timestamp(now),
		AnalysisID:        fmt.Sprintf("analysis_%d_%s", now.Unix(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8]),
		SourceBucket:      ref.Bucket,
		ProcessedKey:      ref.Key,
		ManifestKey:       storage.ManifestKeyForProcessed(ref.Key),
		AnalysisKey:       storage.AnalysisKey(an.cfg.AnalysisPrefix, ref.Key),
		RecordsAnalyzed:   len(rows),
		Anomalies:         flags,
		Statistics:        stats,
		Insights:          insightsList,
		Recommendations:   recommendations,
		Summary:           summary,
		Notified:          false,
		TTL:               now.Add(an.cfg.ResultTTL).Unix(),
	}

	if err := an.results.Put(ctx, result); err != nil {
		return nil, an.fail(ctx, log, markerID, corr, ref, fmt.Errorf("persist analysis result: %w", err))
	}

	artifact, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, an.fail(ctx, log, markerID, corr, ref, fmt.Errorf("marshal analysis artifact: %w", err))
	}
	if err := an.store.Put(ctx, an.cfg.Bucket, result.AnalysisKey, artifact, storage.ContentTypeJSON); err != nil {
		return nil, an.fail(ctx, log, markerID, corr, ref, fmt.Errorf("write analysis artifact: %w", err))
	}

	if err := an.markers.Complete(ctx, markerID, []string{result.AnalysisKey}); err != nil {
		return nil, fmt.Errorf("complete marker: %w", err)
	}

	log.Info("analysis_completed",
		"analysis_key", result.AnalysisKey,
		"rows_analyzed", len(rows),
		"total_anomalies", len(flags),
		"insights_count", len(insightsList))

	an.publish(ctx, log, record.AnalysisCompleteDetail{
		Status:        record.StatusSuccess,
		Bucket:        an.cfg.Bucket,
		ProcessedKey:  ref.Key,
		AnalysisKey:   result.AnalysisKey,
		CorrelationID: corr,
		RowCount:      len(rows),
		AnomalyCount:  len(flags),
		Summary:       summary,
	})

	return &AnalyzeOutcome{
		CorrelationID: corr,
		AnalysisKey:   result.AnalysisKey,
		RowCount:      len(rows),
		AnomalyCount:  len(flags),
	}, nil
}

func (an *Analyzer) fail(ctx context.Context, log *slog.Logger, markerID, corr string, ref record.BatchRef, cause error) error {
	log.Error("analysis_failed", "error", cause)

	if err := an.markers.Fail(ctx, markerID, cause.Error()); err != nil {
		log.Error("marker_fail_transition_failed", "marker_id", markerID, "error", err)
	}

	an.publish(ctx, log, record.AnalysisCompleteDetail{
		Status:        record.StatusFailure,
		Bucket:        an.cfg.Bucket,
		ProcessedKey:  ref.Key,
		CorrelationID: corr,
		ErrorReason:   cause.Error(),
	})
	return cause
}

func (an *Analyzer) publish(ctx context.Context, log *slog.Logger, detail record.AnalysisCompleteDetail) {
	ev := bus.Event{
		Source:     record.SourceAnalyzer,
		DetailType: record.DetailTypeAnalysisComplete,
		Detail:     detail,
	}
	if err := an.bus.Publish(ctx, ev); err != nil {
		log.Error("event_publish_failed", "detail_type", ev.DetailType, "error", err)
	}
}
