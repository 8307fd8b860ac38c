package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/deepscan/internal/metrics"
)

const healthMessage = "Deepfake detection API is running"

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(CORSAllowlist(cfg.CORSOrigins))

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", healthHandler(cfg))
		r.Get("/capabilities", capabilitiesHandler(cfg))
		r.Post("/analyze", analyzeHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "healthy",
			Message: healthMessage,
			Version: cfg.Version,
			UptimeS: uptime,
			Scorer:  cfg.ScorerName,
		})
	}
}

func capabilitiesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Doctor == nil {
			WriteError(w, http.StatusServiceUnavailable, "capability probe not configured", "UNAVAILABLE")
			return
		}

		caps, err := cfg.Doctor.Get(r.Context())
		if err != nil || caps == nil {
			cfg.Logger.Warn("capability probe failed", "error", err)
			WriteError(w, http.StatusServiceUnavailable, "capability probe failed", "PROBE_FAILED")
			return
		}

		WriteJSON(w, http.StatusOK, CapabilitiesToResponse(caps))
	}
}
