package verdict

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Classify(t *testing.T) {
	p := DefaultPolicy()
	tests := []struct {
		suspicious, total int
		want              Prediction
	}{
		{0, 10, Real},
		{0, 1, Real},
		{7, 10, AIGenerated},
		{6, 10, Uncertain},
		{3, 10, Uncertain},
		{1, 1, AIGenerated},
		{2, 3, AIGenerated},
		{1, 2, Uncertain},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Classify(tt.suspicious, tt.total), "Classify(%d, %d)", tt.suspicious, tt.total)
	}
}

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())

	tests := []struct {
		name   string
		mutate func(*Policy)
	}{
		{"ratio zero", func(p *Policy) { p.SuspiciousRatio = 0 }},
		{"ratio one", func(p *Policy) { p.SuspiciousRatio = 1 }},
		{"inverted band", func(p *Policy) { p.Real = Band{Min: 95, Max: 85} }},
		{"band above 100", func(p *Policy) { p.AIGenerated = Band{Min: 80, Max: 101} }},
		{"uncertain overlaps real", func(p *Policy) { p.Uncertain = Band{Min: 50, Max: 85} }},
		{"uncertain overlaps ai", func(p *Policy) { p.Uncertain = Band{Min: 50, Max: 80} }},
		{"no artifacts", func(p *Policy) { p.Artifacts = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestParseBand(t *testing.T) {
	b, err := ParseBand(" 85 - 95 ")
	require.NoError(t, err)
	assert.Equal(t, Band{Min: 85, Max: 95}, b)
	assert.Equal(t, "85-95", b.String())

	for _, bad := range []string{"", "85", "a-95", "85-b"} {
		_, err := ParseBand(bad)
		assert.Error(t, err, "ParseBand(%q)", bad)
	}

	var u Band
	require.NoError(t, u.UnmarshalText([]byte("50-70")))
	assert.Equal(t, Band{Min: 50, Max: 70}, u)
	assert.Error(t, u.UnmarshalText([]byte("fifty")))
}

func TestExplain_ReproducibleFromCounts(t *testing.T) {
	assert.Equal(t,
		"Multiple suspicious artifacts detected in 7 out of 10 frames, indicating likely AI generation.",
		Explain(AIGenerated, 7, 10))
	assert.Contains(t, Explain(Uncertain, 3, 10), "3 out of 10 frames")
	assert.Contains(t, Explain(Real, 0, 10), "10 sampled frames")
	assert.Equal(t, Explain(Uncertain, 2, 8), Explain(Uncertain, 2, 8))
}

func TestRandomConfidence_SeededIsReproducible(t *testing.T) {
	a := NewRandomConfidence(99)
	b := NewRandomConfidence(99)
	band := Band{Min: 50, Max: 70}
	seen := map[int]bool{}
	for i := 0; i < 500; i++ {
		va := a.Confidence(band, Uncertain, 3, 10)
		vb := b.Confidence(band, Uncertain, 3, 10)
		require.Equal(t, va, vb)
		require.True(t, band.Contains(va))
		seen[va] = true
	}
	assert.True(t, seen[50] && seen[70], "inclusive band endpoints should be reachable")
}

func TestProportionalConfidence(t *testing.T) {
	var c ProportionalConfidence
	assert.Equal(t, 95, c.Confidence(Band{85, 95}, Real, 0, 10))
	assert.Equal(t, 95, c.Confidence(Band{80, 95}, AIGenerated, 10, 10))
	assert.Equal(t, 92, c.Confidence(Band{80, 95}, AIGenerated, 8, 10))
	assert.Equal(t, 50, c.Confidence(Band{50, 70}, Uncertain, 5, 10))
	assert.Equal(t, 58, c.Confidence(Band{50, 70}, Uncertain, 3, 10))
	assert.Equal(t, 50, c.Confidence(Band{50, 70}, Uncertain, 0, 0))
}
