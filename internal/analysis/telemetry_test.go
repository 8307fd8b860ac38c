package analysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/heimdex/deepscan/internal/media"
	"github.com/heimdex/deepscan/internal/metrics"
	"github.com/heimdex/deepscan/internal/verdict"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func spanNames(spans []sdktrace.ReadOnlySpan) []string {
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name()
	}
	return names
}

func TestAnalyze_RecordsMetrics(t *testing.T) {
	sampled := testutil.ToFloat64(metrics.FramesSampledTotal)
	skipped := testutil.ToFloat64(metrics.FramesSkippedTotal)
	realOutcomes := testutil.ToFloat64(metrics.AnalysesTotal.WithLabelValues(string(verdict.Real)))

	src := media.NewMemorySource(300, 30, 8, 8).FailAt(60)
	svc := newService(t, &fakeOpener{src: src}, &countingScorer{}, time.Minute, 0)

	_, err := svc.AnalyzeFile(context.Background(), "clip.mp4", nil)
	require.NoError(t, err)

	assert.Equal(t, 9.0, testutil.ToFloat64(metrics.FramesSampledTotal)-sampled)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.FramesSkippedTotal)-skipped)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AnalysesTotal.WithLabelValues(string(verdict.Real)))-realOutcomes)
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.ActiveAnalyses))
}

func TestAnalyze_ScorerFailureMetrics(t *testing.T) {
	failures := testutil.ToFloat64(metrics.ScorerFailuresTotal)
	scoring := testutil.ToFloat64(metrics.AnalysesTotal.WithLabelValues(string(KindScoring)))

	scorer := verdict.ScorerFunc(func(ctx context.Context, frame *media.Frame) (verdict.Score, error) {
		return verdict.Score{}, errors.New("model crashed")
	})
	svc := newService(t, &fakeOpener{src: media.NewMemorySource(30, 30, 8, 8)}, scorer, time.Minute, 0)

	_, err := svc.AnalyzeFile(context.Background(), "clip.mp4", nil)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ScorerFailuresTotal)-failures)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AnalysesTotal.WithLabelValues(string(KindScoring)))-scoring)
}

func TestAnalyze_EmitsSpans(t *testing.T) {
	sr := recordSpans(t)

	svc := newService(t, &fakeOpener{src: media.NewMemorySource(300, 30, 8, 8)}, &countingScorer{}, time.Minute, 0)
	_, err := svc.AnalyzeFile(context.Background(), "clip.mp4", nil)
	require.NoError(t, err)

	spans := sr.Ended()
	assert.ElementsMatch(t, []string{"sample_frames", "score_frames", "analysis.Analyze"}, spanNames(spans))

	for _, s := range spans {
		if s.Name() != "analysis.Analyze" {
			continue
		}
		attrs := map[string]string{}
		for _, kv := range s.Attributes() {
			attrs[string(kv.Key)] = kv.Value.Emit()
		}
		assert.Equal(t, "Real", attrs["verdict.prediction"])
		assert.NotEmpty(t, attrs["analysis.id"])
	}
}

func TestAnalyze_FailedSpanHasErrorStatus(t *testing.T) {
	sr := recordSpans(t)

	svc := newService(t, &fakeOpener{src: media.NewMemorySource(0, 30, 8, 8)}, &countingScorer{}, time.Minute, 0)
	_, err := svc.AnalyzeFile(context.Background(), "empty.mp4", nil)
	require.Error(t, err)

	var root sdktrace.ReadOnlySpan
	for _, s := range sr.Ended() {
		if s.Name() == "analysis.Analyze" {
			root = s
		}
	}
	require.NotNil(t, root)
	assert.Equal(t, codes.Error, root.Status().Code)
	assert.Equal(t, string(KindNoFrames), root.Status().Description)
	assert.NotContains(t, spanNames(sr.Ended()), "score_frames")
}
