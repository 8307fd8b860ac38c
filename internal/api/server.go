package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/heimdex/deepscan/internal/analysis"
	"github.com/heimdex/deepscan/internal/doctor"
	"github.com/heimdex/deepscan/internal/verdict"
)

// Analyzer runs the detection pipeline on a file on disk.
type Analyzer interface {
	AnalyzeFile(ctx context.Context, path string, progress analysis.ProgressFunc) (verdict.AnalysisResult, error)
}

// CapabilityProber reports which external tools are usable.
type CapabilityProber interface {
	Get(ctx context.Context) (*doctor.Capabilities, error)
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Addr              string
	Analyzer          Analyzer
	Doctor            CapabilityProber
	ScratchDir        string
	MaxUploadBytes    int64
	AllowedExtensions []string
	CORSOrigins       []string
	ScorerName        string
	Version           string
	Logger            *slog.Logger
	StartTime         time.Time
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Addr,
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
			WriteTimeout:      0, // analyses stream progress for as long as they run
			IdleTimeout:       60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
