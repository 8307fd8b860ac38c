package verdict

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heimdex/deepscan/internal/media"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func makeFrames(n int) []*media.Frame {
	frames := make([]*media.Frame, n)
	for i := range frames {
		frames[i] = &media.Frame{Index: i * 30, Width: 1, Height: 1, Pix: []byte{0, 0, 0}}
	}
	return frames
}

// flagFirst marks the first k frames (by position in a 30-step sample) suspicious.
func flagFirst(k int) Scorer {
	return ScorerFunc(func(ctx context.Context, f *media.Frame) (Score, error) {
		return Score{Suspicious: f.Index/30 < k}, nil
	})
}

func newAggregator(t *testing.T, scorer Scorer, confidence ConfidenceSource) *Aggregator {
	t.Helper()
	a, err := NewAggregator(scorer, Options{
		Policy:      DefaultPolicy(),
		Confidence:  confidence,
		Concurrency: 4,
		Logger:      testLogger(),
	})
	require.NoError(t, err)
	return a
}

func TestAggregate_Scenarios(t *testing.T) {
	tests := []struct {
		name          string
		flagged       int
		want          Prediction
		band          Band
		wantArtifacts bool
	}{
		{"no suspicious frames", 0, Real, Band{85, 95}, false},
		{"majority suspicious", 7, AIGenerated, Band{80, 95}, true},
		{"mixed evidence", 3, Uncertain, Band{50, 70}, true},
		{"exactly at threshold", 6, Uncertain, Band{50, 70}, true},
		{"single suspicious", 1, Uncertain, Band{50, 70}, true},
		{"all suspicious", 10, AIGenerated, Band{80, 95}, true},
	}

	sources := map[string]ConfidenceSource{
		"random":       NewRandomConfidence(42),
		"proportional": ProportionalConfidence{},
	}

	for srcName, src := range sources {
		for _, tt := range tests {
			t.Run(srcName+"/"+tt.name, func(t *testing.T) {
				a := newAggregator(t, flagFirst(tt.flagged), src)

				res, err := a.Aggregate(context.Background(), makeFrames(10), nil)
				require.NoError(t, err)

				assert.Equal(t, tt.want, res.Prediction)
				assert.True(t, tt.band.Contains(res.Confidence), "confidence %d outside %s", res.Confidence, tt.band)
				assert.Equal(t, 10, res.FrameAnalysis.TotalFrames)
				assert.Equal(t, tt.flagged, res.FrameAnalysis.SuspiciousFrames)
				assert.NotNil(t, res.FrameAnalysis.Artifacts)
				assert.Equal(t, tt.wantArtifacts, len(res.FrameAnalysis.Artifacts) > 0)
				assert.Equal(t, Explain(tt.want, tt.flagged, 10), res.Explanation)
			})
		}
	}
}

func TestAggregate_EmptyFrames(t *testing.T) {
	var calls atomic.Int32
	a := newAggregator(t, ScorerFunc(func(ctx context.Context, f *media.Frame) (Score, error) {
		calls.Add(1)
		return Score{}, nil
	}), nil)

	_, err := a.Aggregate(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = a.Aggregate(context.Background(), []*media.Frame{}, nil)
	assert.ErrorIs(t, err, ErrInsufficientData)
	assert.Zero(t, calls.Load())
}

func TestAggregate_ScorerFailureAbortsWholeAnalysis(t *testing.T) {
	boom := errors.New("model crashed")
	a := newAggregator(t, ScorerFunc(func(ctx context.Context, f *media.Frame) (Score, error) {
		if f.Index == 90 {
			return Score{}, boom
		}
		return Score{Suspicious: true}, nil
	}), nil)

	res, err := a.Aggregate(context.Background(), makeFrames(10), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScoring)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, AnalysisResult{}, res)
}

func TestAggregate_HungScorerTimesOut(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	a, err := NewAggregator(ScorerFunc(func(ctx context.Context, f *media.Frame) (Score, error) {
		<-block // ignores ctx on purpose
		return Score{}, nil
	}), Options{
		Policy:       DefaultPolicy(),
		Concurrency:  2,
		FrameTimeout: 20 * time.Millisecond,
		Logger:       testLogger(),
	})
	require.NoError(t, err)

	start := time.Now()
	_, err = a.Aggregate(context.Background(), makeFrames(3), nil)
	assert.ErrorIs(t, err, ErrScoring)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestAggregate_ConcurrentScoringMatchesSequential(t *testing.T) {
	scorer := ScorerFunc(func(ctx context.Context, f *media.Frame) (Score, error) {
		time.Sleep(time.Millisecond)
		return Score{Suspicious: (f.Index/30)%3 == 0}, nil
	})

	seq, err := NewAggregator(scorer, Options{Policy: DefaultPolicy(), Concurrency: 1, Logger: testLogger()})
	require.NoError(t, err)
	par, err := NewAggregator(scorer, Options{Policy: DefaultPolicy(), Concurrency: 8, Logger: testLogger()})
	require.NoError(t, err)

	frames := makeFrames(20)
	a, err := seq.Aggregate(context.Background(), frames, nil)
	require.NoError(t, err)
	b, err := par.Aggregate(context.Background(), frames, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAggregate_ReportsProgress(t *testing.T) {
	a := newAggregator(t, flagFirst(0), nil)

	var last, calls int
	_, err := a.Aggregate(context.Background(), makeFrames(6), func(done, total int) {
		assert.Equal(t, 6, total)
		assert.Equal(t, last+1, done)
		last = done
		calls++
	})
	require.NoError(t, err)
	assert.Equal(t, 6, calls)
}

func TestDecide_ScorerArtifactsPreferred(t *testing.T) {
	a := newAggregator(t, flagFirst(0), nil)

	res := a.Decide([]Score{
		{Suspicious: true, Artifacts: []string{"Warped facial edges", "Inconsistent skin texture"}},
		{Suspicious: false, Artifacts: []string{"ignored on clean frames"}},
		{Suspicious: true, Artifacts: []string{"Warped facial edges", ""}},
	})

	assert.Equal(t, AIGenerated, res.Prediction)
	assert.Equal(t, []string{"Warped facial edges", "Inconsistent skin texture"}, res.FrameAnalysis.Artifacts)
}

func TestDecide_InvariantsHoldForAllCounts(t *testing.T) {
	a := newAggregator(t, flagFirst(0), NewRandomConfidence(7))
	p := a.Policy()

	minDecisive := p.Real.Min
	if p.AIGenerated.Min < minDecisive {
		minDecisive = p.AIGenerated.Min
	}

	for total := 1; total <= 40; total++ {
		for suspicious := 0; suspicious <= total; suspicious++ {
			scores := make([]Score, total)
			for i := 0; i < suspicious; i++ {
				scores[i].Suspicious = true
			}
			res := a.Decide(scores)

			fa := res.FrameAnalysis
			require.LessOrEqual(t, fa.SuspiciousFrames, fa.TotalFrames)
			require.Equal(t, fa.SuspiciousFrames > 0, len(fa.Artifacts) > 0)
			require.True(t, p.BandFor(res.Prediction).Contains(res.Confidence))
			if res.Prediction == Uncertain {
				require.Less(t, res.Confidence, minDecisive)
			}
		}
	}
}

type outOfBand struct{}

func (outOfBand) Confidence(Band, Prediction, int, int) int { return 150 }

func TestDecide_ClampsMisbehavingConfidenceSource(t *testing.T) {
	a := newAggregator(t, flagFirst(0), outOfBand{})
	res := a.Decide([]Score{{}, {}})
	assert.Equal(t, Real, res.Prediction)
	assert.Equal(t, 95, res.Confidence)
}

func TestNewAggregator_Validation(t *testing.T) {
	_, err := NewAggregator(nil, Options{Policy: DefaultPolicy()})
	assert.Error(t, err)

	p := DefaultPolicy()
	p.Uncertain = Band{Min: 50, Max: 85}
	_, err = NewAggregator(flagFirst(0), Options{Policy: p})
	assert.Error(t, err)
}
