package verdict

import (
	"math"
	"math/rand/v2"
	"sync"
)

// ConfidenceSource picks a confidence value inside band for a verdict backed
// by suspicious of total frames. Implementations must return a value b with
// band.Contains(b).
type ConfidenceSource interface {
	Confidence(band Band, pred Prediction, suspicious, total int) int
}

// RandomConfidence draws uniformly from the band. Seeded sources are
// reproducible across runs.
type RandomConfidence struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomConfidence returns a source seeded with seed.
func NewRandomConfidence(seed uint64) *RandomConfidence {
	return &RandomConfidence{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *RandomConfidence) Confidence(band Band, _ Prediction, _, _ int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return band.Min + r.rng.IntN(band.Max-band.Min+1)
}

// ProportionalConfidence is a deterministic source: the stronger the evidence
// for the chosen prediction, the closer the value is to the top of the band.
type ProportionalConfidence struct{}

func (ProportionalConfidence) Confidence(band Band, pred Prediction, suspicious, total int) int {
	if total <= 0 {
		return band.Min
	}
	ratio := float64(suspicious) / float64(total)

	var strength float64
	switch pred {
	case Real:
		strength = 1
	case AIGenerated:
		strength = ratio
	default:
		// Mixed evidence is weakest near an even split.
		strength = math.Abs(ratio-0.5) * 2
	}

	v := band.Min + int(math.Round(strength*float64(band.Max-band.Min)))
	if v > band.Max {
		return band.Max
	}
	if v < band.Min {
		return band.Min
	}
	return v
}
