package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pulsepipe/pulsepipe/internal/pipeline"
)

var (
	notifyCorrID string
	notifyLimit  int
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Dispatch a report over unnotified analysis results",
	Long: `Notify selects analysis results not yet notified, aggregates their
processing statistics, renders the report in text and HTML and dispatches it
by email. Each included result's notified flag is flipped with a conditional
write, so concurrent notifier runs cannot double-send.

With --correlation-id the scope is that run's latest result; without it, the
most recent unnotified results up to --limit.

Examples:
  pulsepipe notify --correlation-id my-bucket/raw/health_2026-03-14.csv@v1
  pulsepipe notify --limit 10`,
	RunE: runNotify,
}

func init() {
	notifyCmd.Flags().StringVar(&notifyCorrID, "correlation-id", "", "restrict scope to one run")
	notifyCmd.Flags().IntVar(&notifyLimit, "limit", 0, "max results in fallback scope (defaults to configuration)")
}

func runNotify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	d, err := buildDeps(ctx)
	if err != nil {
		return err
	}

	if notifyLimit > 0 {
		cfg.NotifyLimit = notifyLimit
	}

	n := pipeline.NewNotifier(d.store, d.results, d.mailer, cfg, d.collector, logger)
	sent, err := n.Notify(ctx, notifyCorrID)
	if err != nil {
		return err
	}

	if sent {
		fmt.Println("Report dispatched")
	} else {
		fmt.Println("Nothing to notify")
	}
	return nil
}
