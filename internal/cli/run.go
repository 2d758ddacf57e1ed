package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pulsepipe/pulsepipe/internal/bus"
	"github.com/pulsepipe/pulsepipe/internal/metrics"
	"github.com/pulsepipe/pulsepipe/internal/pipeline"
	"github.com/pulsepipe/pulsepipe/internal/record"
)

var (
	runBucket  string
	runKey     string
	runVersion string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive all three stages end to end for one raw batch",
	Long: `Run executes ingestion, analysis and notification for one raw object in
a single process. The stages are the same code the individual subcommands
use; they are chained over an in-process event bus instead of the external
one, so storage, ledger, results and mail still hit the real services.

Examples:
  pulsepipe run --key raw/health_2026-03-14.csv`,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVar(&runBucket, "bucket", "", "source bucket (defaults to the configured bucket)")
	runCmd.Flags().StringVar(&runKey, "key", "", "raw object key")
	runCmd.Flags().StringVar(&runVersion, "version", "", "object version id")
	runCmd.MarkFlagRequired("key")
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}

	bucket := runBucket
	if bucket == "" {
		bucket = cfg.Bucket
	}

	mb := bus.NewMemoryBus()
	analyzer := pipeline.NewAnalyzer(d.store, d.markers, d.results, mb, d.insights, cfg, d.collector, logger)
	notifier := pipeline.NewNotifier(d.store, d.results, d.mailer, cfg, d.collector, logger)
	ingestor := pipeline.NewIngestor(d.store, d.markers, mb, cfg, d.collector, logger)

	mb.Subscribe(func(ctx context.Context, ev bus.Event) error {
		switch detail := ev.Detail.(type) {
		case record.ProcessingCompleteDetail:
			if detail.Status != record.StatusSuccess || detail.ProcessedKey == "" {
				return nil
			}
			_, err := analyzer.Analyze(ctx, record.BatchRef{
				Bucket:        detail.Bucket,
				Key:           detail.ProcessedKey,
				CorrelationID: detail.CorrelationID,
			})
			return err
		case record.AnalysisCompleteDetail:
			if detail.Status != record.StatusSuccess {
				return nil
			}
			_, err := notifier.Notify(ctx, detail.CorrelationID)
			return err
		}
		return nil
	})

	outcome, err := ingestor.Ingest(ctx, record.BatchRef{
		Bucket:  bucket,
		Key:     runKey,
		Version: runVersion,
	})
	if err != nil {
		return err
	}

	if outcome.ShortCircuited {
		fmt.Printf("Already processed (correlation id %s)\n", outcome.CorrelationID)
		return nil
	}

	printRunSummary(d.collector.Snapshot())
	return nil
}

func printRunSummary(snap metrics.Snapshot) {
	for _, op := range []string{metrics.OpIngest, metrics.OpAnalyze, metrics.OpInference, metrics.OpNotify} {
		m, ok := snap.Ops[op]
		if !ok {
			continue
		}
		fmt.Printf("%-10s %d call(s), %d failure(s), total %s\n",
			op, m.Count, m.Failures, m.TotalTime.Round(time.Millisecond))
	}
}
