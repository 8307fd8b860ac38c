// Package sampler selects a bounded, evenly spaced subset of frames from the
// leading window of a video and decodes them.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/heimdex/deepscan/internal/media"
)

var (
	// ErrConfig reports invalid sampling parameters.
	ErrConfig = errors.New("invalid sampling configuration")

	// ErrEmptySample reports a video that yielded no decodable frames.
	ErrEmptySample = errors.New("no frames could be sampled")
)

// Options bounds the work done per video.
type Options struct {
	MaxFrames        int
	MaxWindowSeconds float64
}

// DefaultOptions samples at most 10 frames from the first 30 seconds.
func DefaultOptions() Options {
	return Options{MaxFrames: 10, MaxWindowSeconds: 30}
}

// Validate reports ErrConfig for non-positive bounds.
func (o Options) Validate() error {
	if o.MaxFrames <= 0 {
		return fmt.Errorf("%w: max frames must be positive, got %d", ErrConfig, o.MaxFrames)
	}
	if o.MaxWindowSeconds <= 0 || math.IsNaN(o.MaxWindowSeconds) || math.IsInf(o.MaxWindowSeconds, 0) {
		return fmt.Errorf("%w: window seconds must be positive and finite, got %v", ErrConfig, o.MaxWindowSeconds)
	}
	return nil
}

// WindowFrameCount is min(totalFrames, floor(windowSeconds*fps)).
func WindowFrameCount(totalFrames int, fps, windowSeconds float64) int {
	window := math.Floor(windowSeconds * fps)
	if window >= float64(totalFrames) {
		return totalFrames
	}
	return int(window)
}

// SelectIndices returns the ascending frame indices to decode.
//
// When the window holds more than MaxFrames frames the step is
// floor(window/MaxFrames); the trailing remainder of the window is left
// unsampled.
func SelectIndices(totalFrames int, fps float64, opts Options) ([]int, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if totalFrames < 0 || fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return nil, fmt.Errorf("%w: unusable metadata (frames=%d, fps=%v)", media.ErrDecode, totalFrames, fps)
	}
	if totalFrames == 0 {
		return nil, fmt.Errorf("%w: video has no frames", ErrEmptySample)
	}

	window := WindowFrameCount(totalFrames, fps, opts.MaxWindowSeconds)
	if window <= 0 {
		return nil, fmt.Errorf("%w: sampling window holds no frames", ErrEmptySample)
	}

	if window <= opts.MaxFrames {
		indices := make([]int, window)
		for i := range indices {
			indices[i] = i
		}
		return indices, nil
	}

	step := window / opts.MaxFrames
	indices := make([]int, opts.MaxFrames)
	for i := range indices {
		indices[i] = i * step
	}
	return indices, nil
}

// ProgressFunc is told how many selected indices have been attempted.
type ProgressFunc func(done, total int)

// Result is the outcome of one sampling pass.
type Result struct {
	Frames   []*media.Frame // decoded frames, ascending index order
	Selected []int          // every index that was attempted
	Skipped  []int          // indices that failed to decode
	Window   int            // frames inside the sampling window
	Metadata media.Metadata
}

// Sampler decodes the frames chosen by SelectIndices.
type Sampler struct {
	opts   Options
	logger *slog.Logger
}

// New validates opts and returns a Sampler.
func New(opts Options, logger *slog.Logger) (*Sampler, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Sampler{opts: opts, logger: logger}, nil
}

// Options returns the bounds this sampler enforces.
func (s *Sampler) Options() Options {
	return s.opts
}

// Sample decodes the selected frames of video. A frame that fails to decode is
// skipped; the sample fails with ErrEmptySample only when none decode. Each
// call re-seeks from scratch. The caller owns video and must close it.
func (s *Sampler) Sample(ctx context.Context, video media.VideoSource, progress ProgressFunc) (*Result, error) {
	meta, err := video.Metadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %w", media.ErrDecode, err)
	}

	indices, err := SelectIndices(meta.TotalFrames, meta.FPS, s.opts)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Frames:   make([]*media.Frame, 0, len(indices)),
		Selected: indices,
		Window:   WindowFrameCount(meta.TotalFrames, meta.FPS, s.opts.MaxWindowSeconds),
		Metadata: meta,
	}

	for n, idx := range indices {
		frame, err := video.ReadFrame(ctx, idx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: sampling interrupted at frame %d: %w", media.ErrDecode, idx, ctxErr)
			}
			s.logger.Warn("skipping undecodable frame", "index", idx, "error", err)
			res.Skipped = append(res.Skipped, idx)
		} else {
			res.Frames = append(res.Frames, frame)
		}
		if progress != nil {
			progress(n+1, len(indices))
		}
	}

	if len(res.Frames) == 0 {
		return nil, fmt.Errorf("%w: all %d selected frames failed to decode", ErrEmptySample, len(indices))
	}

	s.logger.Debug("sampling complete",
		"total_frames", meta.TotalFrames,
		"window", res.Window,
		"selected", len(indices),
		"decoded", len(res.Frames),
		"skipped", len(res.Skipped),
	)

	return res, nil
}
