// Package verdict turns per-frame suspicion scores into a three-way
// classification with a confidence value, an explanation and artifacts.
package verdict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/heimdex/deepscan/internal/media"
)

var (
	// ErrInsufficientData reports an aggregation over zero frames.
	ErrInsufficientData = errors.New("insufficient data for a verdict")

	// ErrScoring reports a scorer failure or timeout. No partial verdict is
	// produced when it occurs.
	ErrScoring = errors.New("frame scoring failed")
)

// Prediction is the verdict category.
type Prediction string

const (
	Real        Prediction = "Real"
	AIGenerated Prediction = "AI-generated"
	Uncertain   Prediction = "Uncertain"
)

// Score is one frame's suspicion signal.
type Score struct {
	Suspicious bool
	Value      float64  // scorer-specific likelihood, informational
	Artifacts  []string // optional provenance for a suspicious frame
}

// Scorer decides whether a single frame looks synthetic. Implementations must
// be safe for concurrent use and should honor ctx cancellation.
type Scorer interface {
	Score(ctx context.Context, frame *media.Frame) (Score, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, frame *media.Frame) (Score, error)

func (f ScorerFunc) Score(ctx context.Context, frame *media.Frame) (Score, error) {
	return f(ctx, frame)
}

// FrameAnalysis summarizes the per-frame evidence.
type FrameAnalysis struct {
	TotalFrames      int      `json:"totalFrames"`
	SuspiciousFrames int      `json:"suspiciousFrames"`
	Artifacts        []string `json:"artifacts"`
}

// AnalysisResult is the verdict for one analysis request.
type AnalysisResult struct {
	Prediction    Prediction    `json:"prediction"`
	Confidence    int           `json:"confidence"`
	Explanation   string        `json:"explanation"`
	FrameAnalysis FrameAnalysis `json:"frameAnalysis"`
}

// ProgressFunc is told how many frames have been scored so far.
type ProgressFunc func(done, total int)

// Options configures an Aggregator. Zero values fall back to defaults.
type Options struct {
	Policy       Policy
	Confidence   ConfidenceSource
	Concurrency  int           // parallel scorer calls; default 1
	FrameTimeout time.Duration // per-frame time box; 0 disables
	Logger       *slog.Logger
}

// Aggregator scores frames and applies a Policy.
type Aggregator struct {
	scorer       Scorer
	policy       Policy
	confidence   ConfidenceSource
	concurrency  int
	frameTimeout time.Duration
	logger       *slog.Logger
}

// NewAggregator validates opts.Policy and returns an Aggregator.
func NewAggregator(scorer Scorer, opts Options) (*Aggregator, error) {
	if scorer == nil {
		return nil, errors.New("scorer is required")
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	if opts.Confidence == nil {
		opts.Confidence = ProportionalConfidence{}
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Aggregator{
		scorer:       scorer,
		policy:       opts.Policy,
		confidence:   opts.Confidence,
		concurrency:  opts.Concurrency,
		frameTimeout: opts.FrameTimeout,
		logger:       opts.Logger,
	}, nil
}

// Policy returns the decision rule in use.
func (a *Aggregator) Policy() Policy {
	return a.policy
}

// Aggregate scores every frame and returns the verdict. Either all frames are
// scored or the call fails with ErrScoring.
func (a *Aggregator) Aggregate(ctx context.Context, frames []*media.Frame, progress ProgressFunc) (AnalysisResult, error) {
	if len(frames) == 0 {
		return AnalysisResult{}, ErrInsufficientData
	}

	scores, err := a.scoreAll(ctx, frames, progress)
	if err != nil {
		return AnalysisResult{}, err
	}

	return a.Decide(scores), nil
}

// Decide applies the policy to a complete set of scores.
func (a *Aggregator) Decide(scores []Score) AnalysisResult {
	total := len(scores)
	suspicious := 0
	var reported []string
	seen := map[string]bool{}
	for _, s := range scores {
		if !s.Suspicious {
			continue
		}
		suspicious++
		for _, art := range s.Artifacts {
			if art != "" && !seen[art] {
				seen[art] = true
				reported = append(reported, art)
			}
		}
	}

	pred := a.policy.Classify(suspicious, total)

	artifacts := []string{}
	if suspicious > 0 {
		if len(reported) > 0 {
			artifacts = reported
		} else {
			artifacts = append(artifacts, a.policy.Artifacts...)
		}
	}

	band := a.policy.BandFor(pred)
	confidence := a.confidence.Confidence(band, pred, suspicious, total)
	if !band.Contains(confidence) {
		a.logger.Warn("confidence source left its band, clamping",
			"prediction", pred, "confidence", confidence, "band", band.String())
		confidence = clamp(confidence, band)
	}

	return AnalysisResult{
		Prediction:  pred,
		Confidence:  confidence,
		Explanation: Explain(pred, suspicious, total),
		FrameAnalysis: FrameAnalysis{
			TotalFrames:      total,
			SuspiciousFrames: suspicious,
			Artifacts:        artifacts,
		},
	}
}

func (a *Aggregator) scoreAll(ctx context.Context, frames []*media.Frame, progress ProgressFunc) ([]Score, error) {
	scores := make([]Score, len(frames))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	done := make(chan struct{}, len(frames))
	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		n := 0
		for range done {
			n++
			if progress != nil {
				progress(n, len(frames))
			}
		}
	}()

	for i, frame := range frames {
		g.Go(func() error {
			s, err := a.scoreOne(gctx, frame)
			if err != nil {
				return fmt.Errorf("%w: frame %d: %w", ErrScoring, frame.Index, err)
			}
			scores[i] = s
			done <- struct{}{}
			return nil
		})
	}

	err := g.Wait()
	close(done)
	<-reporterDone

	if err != nil {
		a.logger.Warn("scoring aborted", "frames", len(frames), "error", err)
		return nil, err
	}
	return scores, nil
}

// scoreOne enforces the per-frame time box even when the scorer ignores ctx.
func (a *Aggregator) scoreOne(ctx context.Context, frame *media.Frame) (Score, error) {
	if err := ctx.Err(); err != nil {
		return Score{}, err
	}
	if a.frameTimeout <= 0 {
		return a.scorer.Score(ctx, frame)
	}

	ctx, cancel := context.WithTimeout(ctx, a.frameTimeout)
	defer cancel()

	type outcome struct {
		score Score
		err   error
	}
	ch := make(chan outcome, 1)
	go func() {
		s, err := a.scorer.Score(ctx, frame)
		ch <- outcome{s, err}
	}()

	select {
	case out := <-ch:
		return out.score, out.err
	case <-ctx.Done():
		return Score{}, fmt.Errorf("scorer did not answer within %s: %w", a.frameTimeout, ctx.Err())
	}
}

func clamp(v int, b Band) int {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}
