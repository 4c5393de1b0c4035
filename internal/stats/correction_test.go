package stats

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/trendlab/internal/errs"
)

func TestBenjaminiHochberg(t *testing.T) {
	p := []float64{0.001, 0.008, 0.039, 0.041, 0.23, 0.45, 0.78}
	c, err := BenjaminiHochberg(p, 0.05)
	require.NoError(t, err)

	want := []float64{0.007, 0.028, 0.07175, 0.07175, 0.322, 0.525, 0.78}
	for i := range want {
		assert.InDelta(t, want[i], c.Adjusted[i], 1e-12, "index %d", i)
		assert.GreaterOrEqual(t, c.Adjusted[i], p[i]-1e-12)
	}
	assert.Equal(t, []bool{true, true, false, false, false, false, false}, c.Rejected)
	assert.Equal(t, 2, c.Rejections)
	assert.Equal(t, p, c.Raw)
}

func TestBenjaminiHochbergKeepsInputOrder(t *testing.T) {
	c, err := BenjaminiHochberg([]float64{0.45, 0.001, 0.78, 0.039}, 0.05)
	require.NoError(t, err)
	want := []float64{0.6, 0.004, 0.78, 0.078}
	for i := range want {
		assert.InDelta(t, want[i], c.Adjusted[i], 1e-12)
	}
	assert.Equal(t, []bool{false, true, false, false}, c.Rejected)
}

func TestHolmAndBonferroni(t *testing.T) {
	h, err := Holm([]float64{0.001, 0.01, 0.04, 0.07}, 0.05)
	require.NoError(t, err)
	want := []float64{0.004, 0.03, 0.08, 0.08}
	for i := range want {
		assert.InDelta(t, want[i], h.Adjusted[i], 1e-12)
	}
	assert.Equal(t, 2, h.Rejections)

	b, err := Bonferroni([]float64{0.005, 0.01, 0.02, 0.04}, 0.05)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, true, false, false}, b.Rejected)
	assert.InDelta(t, 0.16, b.Adjusted[3], 1e-12)

	capped, err := Bonferroni([]float64{0.5, 0.9}, 0.05)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 1}, capped.Adjusted)
}

func TestCorrectionValidation(t *testing.T) {
	_, err := BenjaminiHochberg(nil, 0.05)
	assert.True(t, errs.Is(err, errs.Data))
	_, err = Holm([]float64{0.1}, 1)
	assert.True(t, errs.Is(err, errs.Configuration))
	_, err = Bonferroni([]float64{1.5}, 0.05)
	assert.True(t, errs.Is(err, errs.Data))
}

// Under the global null, uncorrected testing at 0.05 flags about 5 of 100
// configs while BH keeps false discoveries to a handful at most.
func TestBenjaminiHochbergControlsNullDiscoveries(t *testing.T) {
	rng := rand.New(rand.NewPCG(2024, 7))
	const trials, m = 200, 100
	var raw, bh float64
	for trial := 0; trial < trials; trial++ {
		p := make([]float64, m)
		naive := 0
		for i := range p {
			p[i] = rng.Float64()
			if p[i] < 0.05 {
				naive++
			}
		}
		c, err := BenjaminiHochberg(p, 0.05)
		require.NoError(t, err)
		assert.LessOrEqual(t, c.Rejections, naive)
		raw += float64(naive)
		bh += float64(c.Rejections)
	}
	raw /= trials
	bh /= trials
	assert.InDelta(t, 5, raw, 1)
	assert.LessOrEqual(t, bh, 5.0)
	assert.Less(t, bh, raw)
}

func TestBenjaminiHochbergFindsRealSignals(t *testing.T) {
	rng := rand.New(rand.NewPCG(99, 1))
	p := make([]float64, 100)
	for i := range p {
		if i < 10 {
			p[i] = 1e-5
		} else {
			p[i] = rng.Float64()
		}
	}
	c, err := BenjaminiHochberg(p, 0.05)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		assert.True(t, c.Rejected[i])
	}
	assert.Less(t, c.Rejections, 20)
}
