package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/heimdex/deepscan/internal/analysis"
	"github.com/heimdex/deepscan/internal/config"
	"github.com/heimdex/deepscan/internal/logging"
)

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().BoolP("progress", "p", false, "Print progress events to stderr")
	analyzeCmd.Flags().Bool("compact", false, "Print the result on a single line")
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <video>",
	Short: "Analyze a local video file and print the verdict as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.New()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Logs go to stderr so stdout carries only the result.
		logger := logging.NewLoggerTo(os.Stderr, logLevel(cmd, cfg))

		service, err := buildService(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to build analysis pipeline: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		var progress analysis.ProgressFunc
		if show, _ := cmd.Flags().GetBool("progress"); show {
			progress = func(e analysis.Event) {
				fmt.Fprintf(cmd.ErrOrStderr(), "%-10s %3d%%\n", e.Stage, e.Progress)
			}
		}

		result, err := service.AnalyzeFile(ctx, args[0], progress)
		if err != nil {
			return fmt.Errorf("%s: %w", analysis.KindOf(err), err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		if compact, _ := cmd.Flags().GetBool("compact"); !compact {
			enc.SetIndent("", "  ")
		}
		return enc.Encode(result)
	},
}
