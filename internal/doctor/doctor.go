// Package doctor probes the external tools the analysis pipeline depends on
// and caches the result.
package doctor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/heimdex/deepscan/internal/proc"
)

// DepInfo represents the availability status of a single dependency.
type DepInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SummaryInfo summarises overall dependency status.
type SummaryInfo struct {
	Available int  `json:"available"`
	Total     int  `json:"total"`
	AllOK     bool `json:"all_ok"`
}

// Capabilities is the outcome of one probe.
type Capabilities struct {
	Executables map[string]DepInfo `json:"executables"`
	Scorer      string             `json:"scorer"`
	Summary     SummaryInfo        `json:"summary"`

	CanDecode bool      `json:"can_decode"`
	CanScore  bool      `json:"can_score"`
	ProbedAt  time.Time `json:"probed_at"`
}

// Prober runs a capability probe.
type Prober interface {
	Probe(ctx context.Context) (*Capabilities, error)
}

// ToolProber checks executables by running `<tool> -version`.
type ToolProber struct {
	FFmpeg   string
	FFprobe  string
	Scorer   string // active scorer name
	Detector string // detector executable, empty when the scorer runs in-process
	Timeout  time.Duration
	Logger   *slog.Logger
}

func (p *ToolProber) Probe(ctx context.Context) (*Capabilities, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	caps := &Capabilities{
		Executables: map[string]DepInfo{
			"ffmpeg":  p.checkVersion(ctx, p.FFmpeg),
			"ffprobe": p.checkVersion(ctx, p.FFprobe),
		},
		Scorer: p.Scorer,
	}
	if p.Detector != "" {
		caps.Executables["detector"] = checkPath(p.Detector)
	}

	for _, d := range caps.Executables {
		caps.Summary.Total++
		if d.Available {
			caps.Summary.Available++
		}
	}
	caps.Summary.AllOK = caps.Summary.Available == caps.Summary.Total

	caps.CanDecode = isAvailable(caps.Executables, "ffmpeg") && isAvailable(caps.Executables, "ffprobe")
	caps.CanScore = p.Detector == "" || isAvailable(caps.Executables, "detector")
	caps.ProbedAt = time.Now()

	p.Logger.Info("doctor probe complete",
		"can_decode", caps.CanDecode,
		"can_score", caps.CanScore,
		"deps_available", caps.Summary.Available,
		"deps_total", caps.Summary.Total,
	)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("doctor probe interrupted: %w", err)
	}
	return caps, nil
}

func (p *ToolProber) checkVersion(ctx context.Context, name string) DepInfo {
	info := checkPath(name)
	if !info.Available {
		return info
	}

	res, err := proc.Run(ctx, p.Logger, info.Path, []string{"-version"}, nil)
	if err != nil {
		return DepInfo{Path: info.Path, Error: err.Error()}
	}
	if !res.IsSuccess() {
		return DepInfo{Path: info.Path, Error: fmt.Sprintf("exited %d", res.ExitCode)}
	}
	info.Version = parseVersion(string(res.Stdout))
	return info
}

func checkPath(name string) DepInfo {
	path, err := proc.Resolve(name)
	if err != nil {
		return DepInfo{Error: err.Error()}
	}
	return DepInfo{Available: true, Path: path}
}

// parseVersion extracts "6.1.1" from "ffmpeg version 6.1.1 Copyright ...".
func parseVersion(out string) string {
	line, _, _ := strings.Cut(out, "\n")
	fields := strings.Fields(line)
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}

func isAvailable(deps map[string]DepInfo, name string) bool {
	d, ok := deps[name]
	return ok && d.Available
}
