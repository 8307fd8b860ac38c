package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/heimdex/deepscan/internal/analysis"
	"github.com/heimdex/deepscan/internal/config"
	"github.com/heimdex/deepscan/internal/doctor"
	"github.com/heimdex/deepscan/internal/media"
	"github.com/heimdex/deepscan/internal/sampler"
	"github.com/heimdex/deepscan/internal/scoring"
	"github.com/heimdex/deepscan/internal/verdict"
)

const doctorTimeout = 10 * time.Second

// buildService assembles decode, sampling, scoring and aggregation from cfg.
func buildService(cfg config.Config, logger *slog.Logger) (*analysis.Service, error) {
	seed := cfg.ScorerSeed()
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	var (
		scorer     verdict.Scorer
		confidence verdict.ConfidenceSource
	)
	switch cfg.Scorer() {
	case scoring.NameExec:
		s, err := scoring.NewExecScorer(scoring.ExecConfig{
			Command: cfg.ScorerCommand(),
			Args:    cfg.ScorerArgs(),
			Timeout: cfg.ScoreTimeout(),
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		scorer = s
		confidence = verdict.ProportionalConfidence{}
	default:
		scorer = scoring.NewPlaceholder(seed, scoring.DefaultPlaceholderRate)
		confidence = verdict.NewRandomConfidence(seed)
	}

	smp, err := sampler.New(cfg.SamplerOptions(), logger)
	if err != nil {
		return nil, err
	}

	agg, err := verdict.NewAggregator(scorer, verdict.Options{
		Policy:       cfg.Policy(),
		Confidence:   confidence,
		Concurrency:  cfg.ScoreConcurrency(),
		FrameTimeout: cfg.ScoreTimeout(),
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sampler.ErrConfig, err)
	}

	opener := media.NewOpener(media.FFmpegOptions{
		FFmpegPath:    cfg.FFmpegPath(),
		FFprobePath:   cfg.FFprobePath(),
		FrameWidth:    cfg.FrameWidth(),
		FrameHeight:   cfg.FrameHeight(),
		DecodeTimeout: cfg.DecodeTimeout(),
		Logger:        logger,
	})

	logger.Info("analysis pipeline ready",
		"scorer", cfg.Scorer(),
		"max_frames", cfg.SamplerOptions().MaxFrames,
		"window_seconds", cfg.SamplerOptions().MaxWindowSeconds,
		"concurrency", cfg.ScoreConcurrency(),
		"seeded", cfg.ScorerSeed() != 0,
	)

	return analysis.NewService(opener, smp, agg, cfg.RequestTimeout(), logger), nil
}

func buildDoctor(cfg config.Config, logger *slog.Logger) *doctor.CachedDoctor {
	prober := &doctor.ToolProber{
		FFmpeg:  cfg.FFmpegPath(),
		FFprobe: cfg.FFprobePath(),
		Scorer:  cfg.Scorer(),
		Timeout: doctorTimeout,
		Logger:  logger,
	}
	if cfg.Scorer() == scoring.NameExec {
		prober.Detector = cfg.ScorerCommand()
	}
	return doctor.NewCachedDoctor(prober, logger)
}
