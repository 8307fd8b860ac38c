package analysis

import (
	"context"
	"errors"

	"github.com/heimdex/deepscan/internal/media"
	"github.com/heimdex/deepscan/internal/sampler"
	"github.com/heimdex/deepscan/internal/verdict"
)

// Kind is the failure category of an analysis, used by callers to choose a
// response status or exit code.
type Kind string

const (
	KindNone     Kind = ""
	KindConfig   Kind = "config"
	KindDecode   Kind = "decode"
	KindNoFrames Kind = "no_frames"
	KindScoring  Kind = "scoring"
	KindTimeout  Kind = "timeout"
	KindInternal Kind = "internal"
)

// ErrTimeout reports that the whole-analysis deadline expired. A scorer that
// overruns its per-frame time box is a scoring failure, not a timeout.
var ErrTimeout = errors.New("analysis timed out")

// KindOf classifies err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, sampler.ErrConfig):
		return KindConfig
	case errors.Is(err, sampler.ErrEmptySample), errors.Is(err, verdict.ErrInsufficientData):
		return KindNoFrames
	case errors.Is(err, media.ErrDecode):
		return KindDecode
	case errors.Is(err, verdict.ErrScoring):
		return KindScoring
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindInternal
	}
}
