package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"github.com/heimdex/deepscan/internal/logging"
	"github.com/heimdex/deepscan/internal/proc"
)

// FFmpegOptions configures ffprobe/ffmpeg backed sources.
type FFmpegOptions struct {
	FFmpegPath    string
	FFprobePath   string
	FrameWidth    int
	FrameHeight   int
	DecodeTimeout time.Duration // per ffprobe/ffmpeg invocation; 0 disables
	Logger        *slog.Logger
}

// DefaultFFmpegOptions returns production defaults.
func DefaultFFmpegOptions(logger *slog.Logger) FFmpegOptions {
	return FFmpegOptions{
		FFmpegPath:    "ffmpeg",
		FFprobePath:   "ffprobe",
		FrameWidth:    224,
		FrameHeight:   224,
		DecodeTimeout: 15 * time.Second,
		Logger:        logger,
	}
}

// FFmpegSource decodes frames from a file on disk by shelling out to ffmpeg.
type FFmpegSource struct {
	path string
	opts FFmpegOptions
	meta Metadata

	mu     sync.Mutex
	closed bool
}

// Opener opens sources against files written by the HTTP boundary or the CLI.
type Opener struct {
	opts FFmpegOptions
}

// NewOpener returns an Opener sharing opts across every opened source.
func NewOpener(opts FFmpegOptions) *Opener {
	return &Opener{opts: opts}
}

// Open probes path and returns a source ready for random access.
func (o *Opener) Open(ctx context.Context, path string) (VideoSource, error) {
	return OpenFFmpeg(ctx, path, o.opts)
}

// OpenFFmpeg probes path with ffprobe. Probe failures are reported as ErrDecode.
func OpenFFmpeg(ctx context.Context, path string, opts FFmpegOptions) (*FFmpegSource, error) {
	if opts.FrameWidth <= 0 || opts.FrameHeight <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", opts.FrameWidth, opts.FrameHeight)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: cannot open %s: %v", ErrDecode, logging.SanitizePath(path), err)
	}

	s := &FFmpegSource{path: path, opts: opts}

	meta, err := s.probe(ctx)
	if err != nil {
		return nil, err
	}
	s.meta = meta

	opts.Logger.Debug("video probed",
		"path", logging.SanitizePath(path),
		"total_frames", meta.TotalFrames,
		"fps", meta.FPS,
		"codec", meta.Codec,
		"resolution", fmt.Sprintf("%dx%d", meta.Width, meta.Height),
	)

	return s, nil
}

func (s *FFmpegSource) Metadata(ctx context.Context) (Metadata, error) {
	return s.meta, nil
}

func (s *FFmpegSource) ReadFrame(ctx context.Context, index int) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("%w: source closed", ErrDecode)
	}
	if index < 0 || index >= s.meta.TotalFrames {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrFrameOutOfRange, index, s.meta.TotalFrames)
	}

	ctx, cancel := s.withDecodeTimeout(ctx)
	defer cancel()

	offset := float64(index) / s.meta.FPS
	args := []string{
		"-nostdin",
		"-v", "error",
		"-ss", strconv.FormatFloat(offset, 'f', 6, 64),
		"-i", s.path,
		"-frames:v", "1",
		"-an",
		"-pix_fmt", "bgr24",
		"-c:v", "bmp",
		"-f", "image2pipe",
		"-",
	}

	res, err := proc.Run(ctx, s.opts.Logger, s.opts.FFmpegPath, args, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: frame %d: %w", ErrDecode, index, err)
	}
	if !res.IsSuccess() {
		return nil, fmt.Errorf("%w: frame %d: ffmpeg exited %d: %s", ErrDecode, index, res.ExitCode, proc.Truncate(res.StderrTail, 256))
	}
	if len(res.Stdout) == 0 {
		return nil, fmt.Errorf("%w: frame %d: no image data", ErrDecode, index)
	}

	img, err := bmp.Decode(bytes.NewReader(res.Stdout))
	if err != nil {
		return nil, fmt.Errorf("%w: frame %d: %w", ErrDecode, index, err)
	}

	return NewFrame(index, scale(img, s.opts.FrameWidth, s.opts.FrameHeight)), nil
}

func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func scale(src image.Image, width, height int) image.Image {
	if src.Bounds().Dx() == width && src.Bounds().Dy() == height {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

type probeOutput struct {
	Streams []struct {
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (s *FFmpegSource) withDecodeTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.DecodeTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.DecodeTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *FFmpegSource) probe(ctx context.Context) (Metadata, error) {
	ctx, cancel := s.withDecodeTimeout(ctx)
	defer cancel()

	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,width,height,avg_frame_rate,r_frame_rate,nb_frames,duration:format=duration",
		"-of", "json",
		s.path,
	}

	res, err := proc.Run(ctx, s.opts.Logger, s.opts.FFprobePath, args, nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: ffprobe: %w", ErrDecode, err)
	}
	if !res.IsSuccess() {
		return Metadata{}, fmt.Errorf("%w: ffprobe exited %d: %s", ErrDecode, res.ExitCode, proc.Truncate(res.StderrTail, 256))
	}

	return parseProbe(res.Stdout)
}

func parseProbe(data []byte) (Metadata, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Metadata{}, fmt.Errorf("%w: cannot parse ffprobe JSON: %w", ErrDecode, err)
	}
	if len(out.Streams) == 0 {
		return Metadata{}, fmt.Errorf("%w: no video stream", ErrDecode)
	}
	st := out.Streams[0]

	fps := parseRate(st.AvgFrameRate)
	if fps <= 0 {
		fps = parseRate(st.RFrameRate)
	}
	if fps <= 0 {
		return Metadata{}, fmt.Errorf("%w: frame rate unavailable", ErrDecode)
	}

	duration := parseFloat(st.Duration)
	if duration <= 0 {
		duration = parseFloat(out.Format.Duration)
	}

	// Containers such as webm/mkv omit nb_frames; derive it from duration.
	total, err := strconv.Atoi(st.NbFrames)
	switch {
	case err == nil && total > 0:
	case duration > 0:
		total = int(math.Floor(duration * fps))
	case err == nil && total == 0:
		// An explicit zero frame count is an empty video, not a broken one.
	default:
		return Metadata{}, fmt.Errorf("%w: frame count unavailable", ErrDecode)
	}

	return Metadata{
		TotalFrames: total,
		FPS:         fps,
		Duration:    duration,
		Width:       st.Width,
		Height:      st.Height,
		Codec:       st.CodecName,
	}, nil
}

// parseRate parses ffprobe rationals such as "30000/1001". "0/0" yields 0.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if errors.Join(err1, err2) != nil || d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
