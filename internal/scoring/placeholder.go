// Package scoring provides the per-frame scorers the service can be
// configured with.
package scoring

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/heimdex/deepscan/internal/media"
	"github.com/heimdex/deepscan/internal/verdict"
)

const (
	NamePlaceholder = "placeholder"
	NameExec        = "exec"
)

// Placeholder flags frames at random with a fixed rate. It stands in for a
// real detection model and never inspects pixels.
type Placeholder struct {
	rate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// DefaultPlaceholderRate keeps most verdicts in the Real and Uncertain bands,
// like the mock it replaces.
const DefaultPlaceholderRate = 0.25

// NewPlaceholder returns a seeded placeholder scorer flagging each frame with
// probability rate.
func NewPlaceholder(seed uint64, rate float64) *Placeholder {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return &Placeholder{rate: rate, rng: rand.New(rand.NewPCG(seed, seed+1))}
}

func (p *Placeholder) Score(ctx context.Context, frame *media.Frame) (verdict.Score, error) {
	if err := ctx.Err(); err != nil {
		return verdict.Score{}, err
	}
	p.mu.Lock()
	v := p.rng.Float64()
	p.mu.Unlock()

	return verdict.Score{Suspicious: v < p.rate, Value: 1 - v}, nil
}
