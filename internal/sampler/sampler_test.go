package sampler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heimdex/deepscan/internal/media"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSelectIndices(t *testing.T) {
	tests := []struct {
		name  string
		total int
		fps   float64
		opts  Options
		want  []int
		errIs error
	}{
		{
			name:  "long clip evenly spaced",
			total: 300, fps: 30, opts: Options{MaxFrames: 10, MaxWindowSeconds: 30},
			want: []int{0, 30, 60, 90, 120, 150, 180, 210, 240, 270},
		},
		{
			name:  "short clip sampled in full",
			total: 5, fps: 30, opts: Options{MaxFrames: 10, MaxWindowSeconds: 30},
			want: []int{0, 1, 2, 3, 4},
		},
		{
			name:  "window caps long video",
			total: 36000, fps: 30, opts: Options{MaxFrames: 10, MaxWindowSeconds: 30},
			want: []int{0, 90, 180, 270, 360, 450, 540, 630, 720, 810},
		},
		{
			name:  "remainder left unsampled",
			total: 25, fps: 30, opts: Options{MaxFrames: 10, MaxWindowSeconds: 30},
			want: []int{0, 2, 4, 6, 8, 10, 12, 14, 16, 18},
		},
		{
			name:  "window equals max frames",
			total: 100, fps: 5, opts: Options{MaxFrames: 10, MaxWindowSeconds: 2},
			want: []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9},
		},
		{
			name:  "zero frames",
			total: 0, fps: 30, opts: DefaultOptions(),
			errIs: ErrEmptySample,
		},
		{
			name:  "window shorter than one frame",
			total: 100, fps: 0.5, opts: Options{MaxFrames: 10, MaxWindowSeconds: 1},
			errIs: ErrEmptySample,
		},
		{
			name:  "zero max frames",
			total: 300, fps: 30, opts: Options{MaxFrames: 0, MaxWindowSeconds: 30},
			errIs: ErrConfig,
		},
		{
			name:  "negative max frames",
			total: 300, fps: 30, opts: Options{MaxFrames: -3, MaxWindowSeconds: 30},
			errIs: ErrConfig,
		},
		{
			name:  "zero window",
			total: 300, fps: 30, opts: Options{MaxFrames: 10, MaxWindowSeconds: 0},
			errIs: ErrConfig,
		},
		{
			name:  "non-positive fps",
			total: 300, fps: 0, opts: DefaultOptions(),
			errIs: media.ErrDecode,
		},
		{
			name:  "negative frame count",
			total: -1, fps: 30, opts: DefaultOptions(),
			errIs: media.ErrDecode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectIndices(tt.total, tt.fps, tt.opts)
			if tt.errIs != nil {
				require.ErrorIs(t, err, tt.errIs)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectIndices_BoundedAndDeterministic(t *testing.T) {
	for _, total := range []int{1, 7, 29, 30, 31, 299, 300, 301, 900, 12345} {
		for _, fps := range []float64{1, 23.976, 25, 30, 59.94, 120} {
			for _, maxFrames := range []int{1, 3, 10, 64} {
				opts := Options{MaxFrames: maxFrames, MaxWindowSeconds: 30}
				first, err := SelectIndices(total, fps, opts)
				if errors.Is(err, ErrEmptySample) {
					continue
				}
				require.NoError(t, err)

				again, err := SelectIndices(total, fps, opts)
				require.NoError(t, err)
				assert.Equal(t, first, again)

				window := WindowFrameCount(total, fps, 30)
				assert.LessOrEqual(t, len(first), maxFrames)
				for i, idx := range first {
					assert.Less(t, idx, window)
					if i > 0 {
						assert.Greater(t, idx, first[i-1])
					}
				}
				if window <= maxFrames {
					assert.Len(t, first, window)
				}
			}
		}
	}
}

func TestNew_RejectsInvalidOptions(t *testing.T) {
	_, err := New(Options{MaxFrames: 0, MaxWindowSeconds: 30}, testLogger())
	assert.ErrorIs(t, err, ErrConfig)
}

func TestSample_DecodesSelectedFrames(t *testing.T) {
	s, err := New(Options{MaxFrames: 10, MaxWindowSeconds: 30}, testLogger())
	require.NoError(t, err)

	src := media.NewMemorySource(300, 30, 8, 8)

	var calls []int
	res, err := s.Sample(context.Background(), src, func(done, total int) {
		assert.Equal(t, 10, total)
		calls = append(calls, done)
	})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 30, 60, 90, 120, 150, 180, 210, 240, 270}, src.Reads())
	require.Len(t, res.Frames, 10)
	for i, f := range res.Frames {
		assert.Equal(t, res.Selected[i], f.Index)
	}
	assert.Empty(t, res.Skipped)
	assert.Equal(t, 300, res.Window)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, calls)
}

func TestSample_ShortVideo(t *testing.T) {
	s, err := New(DefaultOptions(), testLogger())
	require.NoError(t, err)

	res, err := s.Sample(context.Background(), media.NewMemorySource(5, 30, 4, 4), nil)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, res.Selected)
	assert.Len(t, res.Frames, 5)
}

func TestSample_SkipsUndecodableFrames(t *testing.T) {
	s, err := New(DefaultOptions(), testLogger())
	require.NoError(t, err)

	src := media.NewMemorySource(300, 30, 4, 4).FailAt(30, 270)
	res, err := s.Sample(context.Background(), src, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{30, 270}, res.Skipped)
	require.Len(t, res.Frames, 8)
	for i := 1; i < len(res.Frames); i++ {
		assert.Greater(t, res.Frames[i].Index, res.Frames[i-1].Index)
	}
}

func TestSample_AllFramesFail(t *testing.T) {
	s, err := New(DefaultOptions(), testLogger())
	require.NoError(t, err)

	src := media.NewMemorySource(3, 30, 4, 4).FailAt(0, 1, 2)
	_, err = s.Sample(context.Background(), src, nil)
	assert.ErrorIs(t, err, ErrEmptySample)
}

func TestSample_ZeroFramesFailsBeforeDecoding(t *testing.T) {
	s, err := New(DefaultOptions(), testLogger())
	require.NoError(t, err)

	src := media.NewMemorySource(0, 30, 4, 4)
	_, err = s.Sample(context.Background(), src, nil)
	assert.ErrorIs(t, err, ErrEmptySample)
	assert.Empty(t, src.Reads())
}

func TestSample_CancelledContextIsDecodeError(t *testing.T) {
	s, err := New(DefaultOptions(), testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Sample(ctx, media.NewMemorySource(300, 30, 4, 4), nil)
	assert.ErrorIs(t, err, media.ErrDecode)
	assert.ErrorIs(t, err, context.Canceled)
}

type brokenMetadata struct{ media.VideoSource }

func (brokenMetadata) Metadata(ctx context.Context) (media.Metadata, error) {
	return media.Metadata{}, errors.New("moov atom not found")
}

func TestSample_MetadataFailureIsDecodeError(t *testing.T) {
	s, err := New(DefaultOptions(), testLogger())
	require.NoError(t, err)

	_, err = s.Sample(context.Background(), brokenMetadata{}, nil)
	assert.ErrorIs(t, err, media.ErrDecode)
}
