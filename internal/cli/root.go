// Package cli provides the command-line interface for pulsepipe.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pulsepipe/pulsepipe/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global config and logger, loaded in PersistentPreRunE.
	cfg       config.Config
	logger    *slog.Logger
	closeLogs func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "pulsepipe",
	Short: "Event-driven health metrics pipeline",
	Long: `Pulsepipe ingests batches of tabular health-metric records, validates and
partitions them, derives anomaly flags and LLM-backed insights, persists
structured analysis results, and dispatches a report summarizing the run.

Each stage can be invoked on its own (ingest, analyze, notify); run drives
all three end to end over an in-process event bus.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(os.LookupEnv)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger, closeLogs = config.SetupLogger(cfg.LogFile, cfg.LogLevel)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLogs != nil {
			if err := closeLogs(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(notifyCmd)
	rootCmd.AddCommand(runCmd)
}
