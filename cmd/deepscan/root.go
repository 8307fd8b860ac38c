package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heimdex/deepscan/internal/config"
)

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "Override DEEPSCAN_LOG_LEVEL (debug, info, warn, error)")
	rootCmd.SetVersionTemplate("deepscan {{.Version}}\n")
}

var rootCmd = &cobra.Command{
	Use:   "deepscan",
	Short: "Detect AI-generated video by sampling frames and scoring them",
	Long: "deepscan samples a bounded set of frames from a video, scores each one with a\n" +
		"pluggable detector and aggregates the scores into a Real, AI-generated or\n" +
		"Uncertain verdict. All settings come from DEEPSCAN_* environment variables.",
	Version:      fmt.Sprintf("%s (commit %s, built %s)", config.Version, config.GitCommit, config.BuildTime),
	SilenceUsage: true,
}

// logLevel returns the --log-level flag when set, else the configured level.
func logLevel(cmd *cobra.Command, cfg config.Config) string {
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		return lvl
	}
	return cfg.LogLevel()
}
