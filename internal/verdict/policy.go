package verdict

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Band is an inclusive confidence range, in percent.
type Band struct {
	Min int
	Max int
}

// Contains reports whether v lies inside the band.
func (b Band) Contains(v int) bool {
	return v >= b.Min && v <= b.Max
}

func (b Band) String() string {
	return fmt.Sprintf("%d-%d", b.Min, b.Max)
}

// ParseBand parses "min-max", e.g. "85-95".
func ParseBand(s string) (Band, error) {
	loStr, hiStr, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Band{}, fmt.Errorf("band %q: want min-max", s)
	}
	lo, err := strconv.Atoi(strings.TrimSpace(loStr))
	if err != nil {
		return Band{}, fmt.Errorf("band %q: %w", s, err)
	}
	hi, err := strconv.Atoi(strings.TrimSpace(hiStr))
	if err != nil {
		return Band{}, fmt.Errorf("band %q: %w", s, err)
	}
	return Band{Min: lo, Max: hi}, nil
}

// UnmarshalText implements encoding.TextUnmarshaler using ParseBand.
func (b *Band) UnmarshalText(text []byte) error {
	parsed, err := ParseBand(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// DefaultArtifacts is attached to suspicious verdicts when the scorer reports
// no artifacts of its own.
var DefaultArtifacts = []string{
	"Inconsistent facial features detected",
	"Unnatural eye movement patterns",
	"Temporal inconsistencies in lighting",
}

// Policy is the three-way decision rule.
//
// suspicious == 0 is Real; suspicious > SuspiciousRatio*total is
// AIGenerated; anything in between is Uncertain.
type Policy struct {
	SuspiciousRatio float64
	Real            Band
	AIGenerated     Band
	Uncertain       Band
	Artifacts       []string
}

// DefaultPolicy returns the reference thresholds and bands.
func DefaultPolicy() Policy {
	return Policy{
		SuspiciousRatio: 0.6,
		Real:            Band{Min: 85, Max: 95},
		AIGenerated:     Band{Min: 80, Max: 95},
		Uncertain:       Band{Min: 50, Max: 70},
		Artifacts:       append([]string(nil), DefaultArtifacts...),
	}
}

// Validate checks band bounds and ordering. The Uncertain band must sit
// strictly below both decisive bands.
func (p Policy) Validate() error {
	if !(p.SuspiciousRatio > 0 && p.SuspiciousRatio < 1) {
		return fmt.Errorf("suspicious ratio must be in (0, 1), got %v", p.SuspiciousRatio)
	}
	for name, b := range map[string]Band{"real": p.Real, "ai-generated": p.AIGenerated, "uncertain": p.Uncertain} {
		if b.Min < 0 || b.Max > 100 || b.Min > b.Max {
			return fmt.Errorf("%s band %s must satisfy 0 <= min <= max <= 100", name, b)
		}
	}
	if p.Uncertain.Max >= p.Real.Min || p.Uncertain.Max >= p.AIGenerated.Min {
		return fmt.Errorf("uncertain band %s must lie below real %s and ai-generated %s bands",
			p.Uncertain, p.Real, p.AIGenerated)
	}
	if len(p.Artifacts) == 0 {
		return errors.New("policy needs at least one fallback artifact")
	}
	return nil
}

// Classify applies the decision rule to a suspicious/total count pair.
func (p Policy) Classify(suspicious, total int) Prediction {
	switch {
	case suspicious == 0:
		return Real
	case float64(suspicious) > p.SuspiciousRatio*float64(total):
		return AIGenerated
	default:
		return Uncertain
	}
}

// BandFor returns the confidence band for a prediction.
func (p Policy) BandFor(pred Prediction) Band {
	switch pred {
	case Real:
		return p.Real
	case AIGenerated:
		return p.AIGenerated
	default:
		return p.Uncertain
	}
}

// Explain renders the explanation sentence. It depends only on its arguments.
func Explain(pred Prediction, suspicious, total int) string {
	switch pred {
	case Real:
		return fmt.Sprintf("No significant AI artifacts detected in %d sampled frames. "+
			"Natural facial movements and consistent lighting throughout frames.", total)
	case AIGenerated:
		return fmt.Sprintf("Multiple suspicious artifacts detected in %d out of %d frames, "+
			"indicating likely AI generation.", suspicious, total)
	default:
		return fmt.Sprintf("Some suspicious patterns detected in %d out of %d frames, but results are inconclusive. "+
			"Quality may be insufficient for reliable detection.", suspicious, total)
	}
}
