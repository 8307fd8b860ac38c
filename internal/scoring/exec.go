package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"time"

	"github.com/heimdex/deepscan/internal/media"
	"github.com/heimdex/deepscan/internal/proc"
	"github.com/heimdex/deepscan/internal/verdict"
)

// ExecConfig configures a detector run as an external command.
type ExecConfig struct {
	Command string        // detector executable
	Args    []string      // extra arguments passed before the frame
	Timeout time.Duration // per-frame; 0 relies on the caller's context
	Logger  *slog.Logger
}

// ExecScorer runs a detector CLI once per frame. The frame is written to the
// process stdin as PNG and the process must print a single JSON object:
//
//	{"suspicious": true, "score": 0.91, "artifacts": ["Warped facial edges"]}
type ExecScorer struct {
	cfg     ExecConfig
	command string
}

type execOutput struct {
	Suspicious *bool    `json:"suspicious"`
	Score      float64  `json:"score"`
	Artifacts  []string `json:"artifacts"`
}

// NewExecScorer resolves cfg.Command on PATH.
func NewExecScorer(cfg ExecConfig) (*ExecScorer, error) {
	command, err := proc.Resolve(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("cannot locate detector: %w", err)
	}

	cfg.Logger.Info("exec scorer initialised", "command", command, "args", cfg.Args, "timeout", cfg.Timeout)

	return &ExecScorer{cfg: cfg, command: command}, nil
}

func (s *ExecScorer) Score(ctx context.Context, frame *media.Frame) (verdict.Score, error) {
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, frame.Image()); err != nil {
		return verdict.Score{}, fmt.Errorf("encode frame %d: %w", frame.Index, err)
	}

	res, err := proc.Run(ctx, s.cfg.Logger, s.command, s.cfg.Args, &buf)
	if err != nil {
		return verdict.Score{}, err
	}
	if !res.IsSuccess() {
		return verdict.Score{}, fmt.Errorf("detector exited %d: %s", res.ExitCode, proc.Truncate(res.StderrTail, 256))
	}

	return parseExecOutput(res.Stdout)
}

func parseExecOutput(data []byte) (verdict.Score, error) {
	var out execOutput
	if err := json.Unmarshal(bytes.TrimSpace(data), &out); err != nil {
		return verdict.Score{}, fmt.Errorf("cannot parse detector output: %w", err)
	}
	if out.Suspicious == nil {
		return verdict.Score{}, errors.New("detector output missing required field: suspicious")
	}
	return verdict.Score{
		Suspicious: *out.Suspicious,
		Value:      out.Score,
		Artifacts:  out.Artifacts,
	}, nil
}
