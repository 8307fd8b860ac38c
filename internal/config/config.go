// Package config provides configuration management for deepscan.
// Configuration is loaded from DEEPSCAN_* environment variables with sensible defaults.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/heimdex/deepscan/internal/sampler"
	"github.com/heimdex/deepscan/internal/scoring"
	"github.com/heimdex/deepscan/internal/verdict"
)

// EnvPrefix is prepended to every variable name below.
const EnvPrefix = "DEEPSCAN_"

// Config defines the application configuration interface
type Config interface {
	Port() int
	Host() string
	Addr() string
	LogLevel() string
	ScratchDir() string

	MaxUploadBytes() int64
	AllowedExtensions() []string
	CORSOrigins() []string

	SamplerOptions() sampler.Options
	FrameWidth() int
	FrameHeight() int
	Policy() verdict.Policy

	Scorer() string
	ScorerCommand() string
	ScorerArgs() []string
	ScorerSeed() uint64
	ScoreTimeout() time.Duration
	ScoreConcurrency() int

	DecodeTimeout() time.Duration
	RequestTimeout() time.Duration
	FFmpegPath() string
	FFprobePath() string

	OTLPEndpoint() string
}

// settings mirrors the environment one field per variable.
type settings struct {
	Port       int    `env:"PORT"        envDefault:"8000"`
	Host       string `env:"HOST"        envDefault:"0.0.0.0"`
	LogLevel   string `env:"LOG_LEVEL"   envDefault:"info"`
	ScratchDir string `env:"SCRATCH_DIR"`

	MaxUploadBytes    int64    `env:"MAX_UPLOAD_BYTES"   envDefault:"104857600"`
	AllowedExtensions []string `env:"ALLOWED_EXTENSIONS" envDefault:"mp4,avi,mov,webm"`
	CORSOrigins       []string `env:"CORS_ORIGINS"       envDefault:"http://localhost:5173,http://localhost:3000"`

	MaxFrames     int     `env:"MAX_FRAMES"     envDefault:"10"`
	WindowSeconds float64 `env:"WINDOW_SECONDS" envDefault:"30"`
	FrameWidth    int     `env:"FRAME_WIDTH"    envDefault:"224"`
	FrameHeight   int     `env:"FRAME_HEIGHT"   envDefault:"224"`

	SuspiciousRatio float64      `env:"SUSPICIOUS_RATIO" envDefault:"0.6"`
	RealBand        verdict.Band `env:"REAL_BAND"        envDefault:"85-95"`
	AIBand          verdict.Band `env:"AI_BAND"          envDefault:"80-95"`
	UncertainBand   verdict.Band `env:"UNCERTAIN_BAND"   envDefault:"50-70"`

	Scorer           string        `env:"SCORER"            envDefault:"placeholder"`
	ScorerCommand    string        `env:"SCORER_COMMAND"`
	ScorerArgs       []string      `env:"SCORER_ARGS"`
	ScorerSeed       uint64        `env:"SCORER_SEED"       envDefault:"0"`
	ScoreTimeout     time.Duration `env:"SCORE_TIMEOUT"     envDefault:"10s"`
	ScoreConcurrency int           `env:"SCORE_CONCURRENCY" envDefault:"4"`

	DecodeTimeout  time.Duration `env:"DECODE_TIMEOUT"  envDefault:"15s"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"2m"`
	FFmpeg         string        `env:"FFMPEG"          envDefault:"ffmpeg"`
	FFprobe        string        `env:"FFPROBE"         envDefault:"ffprobe"`

	OTLPEndpoint string `env:"OTLP_ENDPOINT"`
}

// EnvConfig reads configuration from environment variables
type EnvConfig struct {
	s settings
}

// New creates a new EnvConfig with defaults and environment variable overrides
func New() (*EnvConfig, error) {
	return load(env.Options{Prefix: EnvPrefix})
}

// NewFromMap builds a config from an explicit variable set instead of the
// process environment. Keys carry the DEEPSCAN_ prefix.
func NewFromMap(vars map[string]string) (*EnvConfig, error) {
	return load(env.Options{Prefix: EnvPrefix, Environment: vars})
}

func load(opts env.Options) (*EnvConfig, error) {
	var s settings
	if err := env.ParseWithOptions(&s, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	s.Scorer = strings.ToLower(strings.TrimSpace(s.Scorer))
	s.AllowedExtensions = normalizeExtensions(s.AllowedExtensions)
	s.CORSOrigins = trimAll(s.CORSOrigins)
	s.ScorerArgs = trimAll(s.ScorerArgs)

	cfg := &EnvConfig{s: s}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *EnvConfig) validate() error {
	s := c.s
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("invalid %sPORT: port must be between 1 and 65535", EnvPrefix)
	}
	if s.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid %sMAX_UPLOAD_BYTES: must be positive", EnvPrefix)
	}
	if len(s.AllowedExtensions) == 0 {
		return fmt.Errorf("invalid %sALLOWED_EXTENSIONS: at least one extension is required", EnvPrefix)
	}
	if err := c.SamplerOptions().Validate(); err != nil {
		return fmt.Errorf("invalid sampler settings: %w", err)
	}
	if s.FrameWidth <= 0 || s.FrameHeight <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", s.FrameWidth, s.FrameHeight)
	}
	if err := c.Policy().Validate(); err != nil {
		return fmt.Errorf("invalid verdict policy: %w", err)
	}
	switch s.Scorer {
	case scoring.NamePlaceholder:
	case scoring.NameExec:
		if s.ScorerCommand == "" {
			return fmt.Errorf("%sSCORER=exec requires %sSCORER_COMMAND", EnvPrefix, EnvPrefix)
		}
	default:
		return fmt.Errorf("invalid %sSCORER %q: want %s or %s", EnvPrefix, s.Scorer, scoring.NamePlaceholder, scoring.NameExec)
	}
	if s.ScoreConcurrency < 1 {
		return fmt.Errorf("invalid %sSCORE_CONCURRENCY: must be at least 1", EnvPrefix)
	}
	if s.ScoreTimeout < 0 || s.DecodeTimeout < 0 || s.RequestTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	return nil
}

// Port returns the HTTP server port
func (c *EnvConfig) Port() int {
	return c.s.Port
}

func (c *EnvConfig) Host() string {
	return c.s.Host
}

// Addr returns host:port for the listener.
func (c *EnvConfig) Addr() string {
	return net.JoinHostPort(c.s.Host, strconv.Itoa(c.s.Port))
}

// LogLevel returns the log level (debug, info, warn, error)
func (c *EnvConfig) LogLevel() string {
	return c.s.LogLevel
}

// ScratchDir returns the parent directory for per-request upload dirs.
func (c *EnvConfig) ScratchDir() string {
	if c.s.ScratchDir != "" {
		return c.s.ScratchDir
	}
	return os.TempDir()
}

func (c *EnvConfig) MaxUploadBytes() int64 {
	return c.s.MaxUploadBytes
}

// AllowedExtensions returns lower-case extensions without the leading dot.
func (c *EnvConfig) AllowedExtensions() []string {
	return c.s.AllowedExtensions
}

// CORSOrigins returns the browser origins allowed to call the API.
// A single "*" allows any origin.
func (c *EnvConfig) CORSOrigins() []string {
	return c.s.CORSOrigins
}

func (c *EnvConfig) SamplerOptions() sampler.Options {
	return sampler.Options{
		MaxFrames:        c.s.MaxFrames,
		MaxWindowSeconds: c.s.WindowSeconds,
	}
}

func (c *EnvConfig) FrameWidth() int {
	return c.s.FrameWidth
}

func (c *EnvConfig) FrameHeight() int {
	return c.s.FrameHeight
}

// Policy returns the verdict thresholds and confidence bands.
func (c *EnvConfig) Policy() verdict.Policy {
	p := verdict.DefaultPolicy()
	p.SuspiciousRatio = c.s.SuspiciousRatio
	p.Real = c.s.RealBand
	p.AIGenerated = c.s.AIBand
	p.Uncertain = c.s.UncertainBand
	return p
}

func (c *EnvConfig) Scorer() string {
	return c.s.Scorer
}

func (c *EnvConfig) ScorerCommand() string {
	return c.s.ScorerCommand
}

func (c *EnvConfig) ScorerArgs() []string {
	return c.s.ScorerArgs
}

// ScorerSeed returns the seed for placeholder scores and confidence draws.
// Zero means unseeded.
func (c *EnvConfig) ScorerSeed() uint64 {
	return c.s.ScorerSeed
}

func (c *EnvConfig) ScoreTimeout() time.Duration {
	return c.s.ScoreTimeout
}

func (c *EnvConfig) ScoreConcurrency() int {
	return c.s.ScoreConcurrency
}

func (c *EnvConfig) DecodeTimeout() time.Duration {
	return c.s.DecodeTimeout
}

func (c *EnvConfig) RequestTimeout() time.Duration {
	return c.s.RequestTimeout
}

func (c *EnvConfig) FFmpegPath() string {
	return c.s.FFmpeg
}

func (c *EnvConfig) FFprobePath() string {
	return c.s.FFprobe
}

// OTLPEndpoint returns the trace export URL; empty disables export.
func (c *EnvConfig) OTLPEndpoint() string {
	return c.s.OTLPEndpoint
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
