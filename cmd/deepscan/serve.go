package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/heimdex/deepscan/internal/api"
	"github.com/heimdex/deepscan/internal/config"
	"github.com/heimdex/deepscan/internal/logging"
	"github.com/heimdex/deepscan/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP detection API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func runServe(cmd *cobra.Command) error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(logLevel(cmd, cfg))
	logger.Info("starting deepscan", "version", config.Version, "addr", cfg.Addr())

	if err := os.MkdirAll(cfg.ScratchDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create scratch dir: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, cfg.OTLPEndpoint(), "deepscan", config.Version)
	if err != nil {
		logger.Warn("tracing init failed, continuing without tracing", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	service, err := buildService(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build analysis pipeline: %w", err)
	}

	doc := buildDoctor(cfg, logger)
	probeCtx, probeCancel := context.WithTimeout(ctx, doctorTimeout)
	if caps, err := doc.Refresh(probeCtx); err != nil {
		logger.Warn("initial doctor probe failed", "error", err)
	} else if !caps.CanDecode {
		logger.Warn("ffmpeg/ffprobe unavailable, uploads will fail to decode")
	}
	probeCancel()

	apiServer := api.NewServer(api.ServerConfig{
		Addr:              cfg.Addr(),
		Analyzer:          service,
		Doctor:            doc,
		ScratchDir:        cfg.ScratchDir(),
		MaxUploadBytes:    cfg.MaxUploadBytes(),
		AllowedExtensions: cfg.AllowedExtensions(),
		CORSOrigins:       cfg.CORSOrigins(),
		ScorerName:        cfg.Scorer(),
		Version:           config.Version,
		Logger:            logger,
		StartTime:         startTime,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- apiServer.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("failed to flush traces", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
