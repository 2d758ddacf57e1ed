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

	"github.com/pulsepipe/pulsepipe/internal/bus"
	"github.com/pulsepipe/pulsepipe/internal/config"
	"github.com/pulsepipe/pulsepipe/internal/ledger"
	"github.com/pulsepipe/pulsepipe/internal/metrics"
	"github.com/pulsepipe/pulsepipe/internal/record"
	"github.com/pulsepipe/pulsepipe/internal/storage"
)

// Ingestor runs the ingestion and validation stage for one raw object.
type Ingestor struct {
	store     storage.ObjectStore
	markers   ledger.Store
	bus       bus.Bus
	cfg       config.Config
	collector *metrics.Collector
	log       *slog.Logger
	now       func() time.Time
}

// NewIngestor wires the stage. collector may be nil.
func NewIngestor(store storage.ObjectStore, markers ledger.Store, b bus.Bus, cfg config.Config, collector *metrics.Collector, log *slog.Logger) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{
		store:     store,
		markers:   markers,
		bus:       b,
		cfg:       cfg,
		collector: collector,
		log:       log,
		now:       time.Now,
	}
}

// IngestOutcome summarizes one Ingest invocation.
type IngestOutcome struct {
	CorrelationID string
	Counts        record.Counts
	ProcessedKey  string
	RejectedKey   string
	ManifestKey   string

	// Skipped is set when the object is outside the raw partition.
	Skipped bool
	// ShortCircuited is set when a Completed marker already covered this
	// batch identity and no work was performed.
	ShortCircuited bool
}

// Ingest validates and partitions one raw batch. Re-invocation with the same
// (bucket, key, version, content hash) is a no-op; a concurrent duplicate
// invocation fails with ledger.ErrInProgress.
func (in *Ingestor) Ingest(ctx context.Context, ref record.BatchRef) (*IngestOutcome, error) {
	start := in.now()
	outcome, err := in.ingest(ctx, ref)
	if in.collector != nil {
		in.collector.Record(metrics.OpIngest, time.Since(start), err != nil)
	}
	return outcome, err
}

func (in *Ingestor) ingest(ctx context.Context, ref record.BatchRef) (*IngestOutcome, error) {
	version := ref.Version
	if version == "" {
		version = "null"
	}
	corr := ref.CorrelationID
	if corr == "" {
		corr = fmt.Sprintf("%s/%s@%s", ref.Bucket, ref.Key, version)
	}
	log := in.log.With("correlation_id", corr)

	if !strings.HasPrefix(ref.Key, in.cfg.RawPrefix) {
		log.Info("skip_non_raw_prefix", "key", ref.Key)
		return &IngestOutcome{CorrelationID: corr, Skipped: true}, nil
	}

	log.Info("ingestion_started", "bucket", ref.Bucket, "key", ref.Key, "version", version)

	// Unreadable input is fatal and leaves no marker state behind: the
	// batch identity includes the content hash, which is unknown here.
	body, err := in.store.Get(ctx, ref.Bucket, ref.Key)
	if err != nil {
		return nil, fmt.Errorf("fetch raw object: %w", err)
	}

	sum := sha256.Sum256(body)
	identity := record.BatchIdentity{
		Bucket:      ref.Bucket,
		Key:         ref.Key,
		Version:     version,
		ContentHash: hex.EncodeToString(sum[:]),
	}
	markerID := identity.MarkerID()

	switch err := in.markers.TryBegin(ctx, markerID, corr); {
	case errors.Is(err, ledger.ErrAlreadyCompleted):
		log.Info("already_processed", "marker_id", markerID)
		return &IngestOutcome{CorrelationID: corr, ShortCircuited: true}, nil
	case errors.Is(err, ledger.ErrInProgress):
		log.Info("ingestion_in_progress_elsewhere", "marker_id", markerID)
		return nil, err
	case err != nil:
		return nil, fmt.Errorf("claim marker: %w", err)
	}

	header, rows, err := parseCSV(body)
	if err != nil {
		return nil, in.fail(ctx, log, markerID, corr, ref, fmt.Errorf("parse batch: %w", err))
	}

	accepted, rejected := Partition(rows, in.cfg.Schema)
	counts := record.Counts{
		Input:    len(rows),
		Valid:    len(accepted),
		Rejected: len(rejected),
	}

	var processedKey, rejectedKey string
	if len(accepted) > 0 {
		processedKey = storage.ProcessedKey(in.cfg.ProcessedPrefix, ref.Key)
		if err := in.store.Put(ctx, in.cfg.Bucket, processedKey, encodeCSV(header, accepted), storage.ContentTypeCSV); err != nil {
			return nil, in.fail(ctx, log, markerID, corr, ref, fmt.Errorf("write processed partition: %w", err))
		}
	}
	if len(rejected) > 0 {
		rejectedKey = storage.RejectedKey(in.cfg.RejectedPrefix, ref.Key)
		if err := in.store.Put(ctx, in.cfg.Bucket, rejectedKey, encodeRejectedCSV(header, rejected), storage.ContentTypeCSV); err != nil {
			return nil, in.fail(ctx, log, markerID, corr, ref, fmt.Errorf("write rejected partition: %w", err))
		}
	}

	manifestKey := storage.ManifestKey(in.cfg.ProcessedPrefix, ref.Key)
	manifest := record.Manifest{
		CorrelationID: corr,
		SourceBucket:  ref.Bucket,
		SourceKey:     ref.Key,
		SourceVersion: version,
		ContentHash:   identity.ContentHash,
		ProcessedKey:  processedKey,
		RejectedKey:   rejectedKey,
		Counts:        counts,
		TimestampUTC:  record.Timestamp(in.now()),
		SchemaFields:  in.cfg.Schema.RequiredFields,
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, in.fail(ctx, log, markerID, corr, ref, fmt.Errorf("marshal manifest: %w", err))
	}
	if err := in.store.Put(ctx, in.cfg.Bucket, manifestKey, manifestJSON, storage.ContentTypeJSON); err != nil {
		return nil, in.fail(ctx, log, markerID, corr, ref, fmt.Errorf("write manifest: %w", err))
	}

	outputs := []string{manifestKey}
	if processedKey != "" {
		outputs = append(outputs, processedKey)
	}
	if rejectedKey != "" {
		outputs = append(outputs, rejectedKey)
	}
	if err := in.markers.Complete(ctx, markerID, outputs); err != nil {
		return nil, fmt.Errorf("complete marker: %w", err)
	}

	log.Info("ingestion_completed",
		"total_input_rows", counts.Input,
		"total_valid_rows", counts.Valid,
		"total_rejected_rows", counts.Rejected,
		"processed_key", processedKey,
		"rejected_key", rejectedKey,
		"manifest_key", manifestKey)

	in.publish(ctx, log, record.ProcessingCompleteDetail{
		Status:        record.StatusSuccess,
		Bucket:        in.cfg.Bucket,
		SourceKey:     ref.Key,
		ProcessedKey:  processedKey,
		RejectedKey:   rejectedKey,
		ManifestKey:   manifestKey,
		CorrelationID: corr,
		Counts:        counts,
	})

	return &IngestOutcome{
		CorrelationID: corr,
		Counts:        counts,
		ProcessedKey:  processedKey,
		RejectedKey:   rejectedKey,
		ManifestKey:   manifestKey,
	}, nil
}

// fail moves the Pending marker to Failed and emits a failure event, so a
// later retry for the same identity is permitted to re-attempt.
func (in *Ingestor) fail(ctx context.Context, log *slog.Logger, markerID, corr string, ref record.BatchRef, cause error) error {
	log.Error("ingestion_failed", "error", cause)

	if err := in.markers.Fail(ctx, markerID, cause.Error()); err != nil {
		log.Error("marker_fail_transition_failed", "marker_id", markerID, "error", err)
	}

	in.publish(ctx, log, record.ProcessingCompleteDetail{
		Status:        record.StatusFailure,
		Bucket:        in.cfg.Bucket,
		SourceKey:     ref.Key,
		CorrelationID: corr,
		ErrorReason:   cause.Error(),
	})
	return cause
}

// publish emits the stage-completion event. Emission failure is logged but
// does not fail the stage: the marker transition already happened, and a
// retried invocation would short-circuit without re-emitting anyway.
func (in *Ingestor) publish(ctx context.Context, log *slog.Logger, detail record.ProcessingCompleteDetail) {
	ev := bus.Event{
		Source:     record.SourceIngestor,
		DetailType: record.DetailTypeProcessingComplete,
		Detail:     detail,
	}
	if err := in.bus.Publish(ctx, ev); err != nil {
		log.Error("event_publish_failed", "detail_type", ev.DetailType, "error", err)
	}
}
