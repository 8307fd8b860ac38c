// Package analysis runs one detection request end to end: open the video,
// sample frames, score them and aggregate a verdict.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/heimdex/deepscan/internal/logging"
	"github.com/heimdex/deepscan/internal/media"
	"github.com/heimdex/deepscan/internal/metrics"
	"github.com/heimdex/deepscan/internal/sampler"
	"github.com/heimdex/deepscan/internal/verdict"
)

const tracerName = "github.com/heimdex/deepscan/internal/analysis"

// Stage names a phase reported through progress events.
type Stage string

const (
	StageExtracting Stage = "extracting"
	StageAnalyzing  Stage = "analyzing"
	StageComplete   Stage = "complete"
)

// Event is a progress notification; Progress is a percentage within Stage.
type Event struct {
	Stage    Stage `json:"stage"`
	Progress int   `json:"progress"`
}

// ProgressFunc receives events in order from a single goroutine.
type ProgressFunc func(Event)

// Opener opens a video file for decoding.
type Opener interface {
	Open(ctx context.Context, path string) (media.VideoSource, error)
}

// Service composes the sampler and the aggregator. It holds no per-request
// state and is safe for concurrent use.
type Service struct {
	opener     Opener
	sampler    *sampler.Sampler
	aggregator *verdict.Aggregator
	timeout    time.Duration
	logger     *slog.Logger
}

// NewService wires the pipeline. timeout bounds a whole analysis; 0 disables it.
func NewService(opener Opener, smp *sampler.Sampler, agg *verdict.Aggregator, timeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		opener:     opener,
		sampler:    smp,
		aggregator: agg,
		timeout:    timeout,
		logger:     logging.WithComponent(logger, "analysis"),
	}
}

// AnalyzeFile opens path, analyzes it and closes the source on every path.
func (s *Service) AnalyzeFile(ctx context.Context, path string, progress ProgressFunc) (verdict.AnalysisResult, error) {
	if s.opener == nil {
		return verdict.AnalysisResult{}, errors.New("no video opener configured")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.run(ctx, func(ctx context.Context, log *slog.Logger) (verdict.AnalysisResult, error) {
		video, err := s.opener.Open(ctx, path)
		if err != nil {
			return verdict.AnalysisResult{}, err
		}
		defer func() {
			if cerr := video.Close(); cerr != nil {
				log.Warn("failed to close video", "error", cerr)
			}
		}()
		return s.analyze(ctx, log, video, progress)
	}, attribute.String("video.path", logging.SanitizePath(path)))
}

// Analyze runs the pipeline over an already opened source. The caller keeps
// ownership of video and must close it.
func (s *Service) Analyze(ctx context.Context, video media.VideoSource, progress ProgressFunc) (verdict.AnalysisResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.run(ctx, func(ctx context.Context, log *slog.Logger) (verdict.AnalysisResult, error) {
		return s.analyze(ctx, log, video, progress)
	})
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

// run wraps one analysis in a span, the in-flight gauge and outcome metrics.
func (s *Service) run(
	ctx context.Context,
	fn func(context.Context, *slog.Logger) (verdict.AnalysisResult, error),
	attrs ...attribute.KeyValue,
) (verdict.AnalysisResult, error) {
	id := uuid.NewString()
	log := logging.WithAnalysisID(s.logger, id)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "analysis.Analyze",
		trace.WithAttributes(append(attrs, attribute.String("analysis.id", id))...))
	defer span.End()

	metrics.ActiveAnalyses.Inc()
	defer metrics.ActiveAnalyses.Dec()

	start := time.Now()
	result, err := fn(ctx, log)
	elapsed := time.Since(start)
	metrics.StageDuration.WithLabelValues("total").Observe(elapsed.Seconds())

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		kind := KindOf(err)
		metrics.AnalysesTotal.WithLabelValues(string(kind)).Inc()
		if kind == KindScoring {
			metrics.ScorerFailuresTotal.Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		log.Warn("analysis failed", "kind", kind, "error", err, "duration_ms", elapsed.Milliseconds())
		return verdict.AnalysisResult{}, err
	}

	metrics.AnalysesTotal.WithLabelValues(string(result.Prediction)).Inc()
	span.SetAttributes(
		attribute.String("verdict.prediction", string(result.Prediction)),
		attribute.Int("verdict.confidence", result.Confidence),
	)
	log.Info("analysis complete",
		"prediction", result.Prediction,
		"confidence", result.Confidence,
		"frames", result.FrameAnalysis.TotalFrames,
		"suspicious", result.FrameAnalysis.SuspiciousFrames,
		"duration_ms", elapsed.Milliseconds(),
	)
	return result, nil
}

func (s *Service) analyze(ctx context.Context, log *slog.Logger, video media.VideoSource, progress ProgressFunc) (verdict.AnalysisResult, error) {
	emit := func(stage Stage, done, total int) {
		if progress == nil {
			return
		}
		pct := 100
		if total > 0 {
			pct = done * 100 / total
		}
		progress(Event{Stage: stage, Progress: pct})
	}

	tracer := otel.Tracer(tracerName)

	sampleStart := time.Now()
	sctx, spanSample := tracer.Start(ctx, "sample_frames")
	sample, err := s.sampler.Sample(sctx, video, func(done, total int) {
		emit(StageExtracting, done, total)
	})
	if err != nil {
		spanSample.RecordError(err)
		spanSample.End()
		return verdict.AnalysisResult{}, fmt.Errorf("sample frames: %w", err)
	}
	spanSample.SetAttributes(
		attribute.Int("video.total_frames", sample.Metadata.TotalFrames),
		attribute.Float64("video.fps", sample.Metadata.FPS),
		attribute.Int("sample.selected", len(sample.Selected)),
		attribute.Int("sample.skipped", len(sample.Skipped)),
	)
	spanSample.End()
	metrics.StageDuration.WithLabelValues(string(StageExtracting)).Observe(time.Since(sampleStart).Seconds())
	metrics.FramesSampledTotal.Add(float64(len(sample.Frames)))
	metrics.FramesSkippedTotal.Add(float64(len(sample.Skipped)))

	log.Debug("frames sampled",
		"total_frames", sample.Metadata.TotalFrames,
		"fps", sample.Metadata.FPS,
		"decoded", len(sample.Frames),
		"skipped", len(sample.Skipped),
	)

	scoreStart := time.Now()
	actx, spanScore := tracer.Start(ctx, "score_frames")
	result, err := s.aggregator.Aggregate(actx, sample.Frames, func(done, total int) {
		emit(StageAnalyzing, done, total)
	})
	if err != nil {
		spanScore.RecordError(err)
		spanScore.End()
		return verdict.AnalysisResult{}, fmt.Errorf("aggregate verdict: %w", err)
	}
	spanScore.End()
	metrics.StageDuration.WithLabelValues(string(StageAnalyzing)).Observe(time.Since(scoreStart).Seconds())

	emit(StageComplete, 1, 1)
	return result, nil
}
