package api

import (
	"time"

	"github.com/heimdex/deepscan/internal/analysis"
	"github.com/heimdex/deepscan/internal/doctor"
	"github.com/heimdex/deepscan/internal/verdict"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
	Scorer  string `json:"scorer"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type DependencyResponse struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

type CapabilitiesResponse struct {
	CanDecode    bool                          `json:"can_decode"`
	CanScore     bool                          `json:"can_score"`
	Scorer       string                        `json:"scorer"`
	Dependencies map[string]DependencyResponse `json:"dependencies"`
	DepsAvail    int                           `json:"deps_available"`
	DepsTotal    int                           `json:"deps_total"`
	LastProbeAt  string                        `json:"last_probe_at,omitempty"`
}

// Stream event types for NDJSON responses.
const (
	EventProgress = "progress"
	EventResult   = "result"
	EventError    = "error"
)

type ProgressEvent struct {
	Type     string         `json:"type"`
	Stage    analysis.Stage `json:"stage"`
	Progress int            `json:"progress"`
}

type ResultEvent struct {
	Type   string                 `json:"type"`
	Result verdict.AnalysisResult `json:"result"`
}

type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

func CapabilitiesToResponse(caps *doctor.Capabilities) CapabilitiesResponse {
	resp := CapabilitiesResponse{
		CanDecode:    caps.CanDecode,
		CanScore:     caps.CanScore,
		Scorer:       caps.Scorer,
		Dependencies: make(map[string]DependencyResponse, len(caps.Executables)),
		DepsAvail:    caps.Summary.Available,
		DepsTotal:    caps.Summary.Total,
	}
	for name, d := range caps.Executables {
		resp.Dependencies[name] = DependencyResponse{
			Available: d.Available,
			Version:   d.Version,
			Error:     d.Error,
		}
	}
	if !caps.ProbedAt.IsZero() {
		resp.LastProbeAt = caps.ProbedAt.Format(time.RFC3339)
	}
	return resp
}
