package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/domain/indicators"
	"github.com/sawpanic/trendlab/internal/errs"
)

// rangeSeries builds flat closes at 100 whose bar ranges follow widths.
func rangeSeries(t *testing.T, widths []float64) *data.Series {
	t.Helper()
	bars := make([]data.Bar, len(widths))
	for i, w := range widths {
		bars[i] = data.Bar{
			Timestamp: data.SyntheticStart.AddDate(0, 0, i),
			Open:      100,
			High:      100 + w/2,
			Low:       100 - w/2,
			Close:     100,
			Volume:    1,
		}
	}
	s, err := data.NewSeries("VOL", "1d", bars)
	require.NoError(t, err)
	return s
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"defaults", DefaultConfig(), true},
		{"zero atr period", Config{ATRPeriod: 0, HighVol: 1.5, LowVol: 0.75, TrendPeriod: 50}, false},
		{"zero trend period", Config{ATRPeriod: 20, HighVol: 1.5, LowVol: 0.75, TrendPeriod: 0}, false},
		{"inverted thresholds", Config{ATRPeriod: 20, HighVol: 0.5, LowVol: 0.75, TrendPeriod: 50}, false},
		{"zero low threshold", Config{ATRPeriod: 20, HighVol: 1.5, LowVol: 0, TrendPeriod: 50}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errs.Is(err, errs.Configuration))
		})
	}
}

func TestClassifyVolatility(t *testing.T) {
	widths := append(append(repeat(1, 60), repeat(4, 20)...), repeat(0.2, 80)...)
	s := rangeSeries(t, widths)

	c, err := NewClassifier(Config{ATRPeriod: 5, HighVol: 1.5, LowVol: 0.75, TrendPeriod: 10}, indicators.NewCache())
	require.NoError(t, err)
	labels, err := c.Classify(s)
	require.NoError(t, err)
	require.Equal(t, s.Len(), labels.Len())

	for i := 0; i < 6; i++ {
		assert.Equal(t, NormalVol, labels.Volatility[i], "bar %d has no history", i)
	}
	assert.Equal(t, NormalVol, labels.Volatility[30])
	assert.Equal(t, HighVol, labels.Volatility[60])
	assert.Equal(t, HighVol, labels.Volatility[79])
	assert.Equal(t, LowVol, labels.Volatility[len(widths)-1])

	changes := labels.Changes()
	require.NotEmpty(t, changes)
	assert.Equal(t, Change{Index: 60, From: NormalVol, To: HighVol}, changes[0])
	assert.Equal(t, LowVol, changes[len(changes)-1].To)
}

func TestClassifyTrend(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)
		if i >= 20 {
			closes[i] = 140 - 2*float64(i)
		}
	}
	s, err := data.FromCloses("TR", nil, closes)
	require.NoError(t, err)

	c, err := NewClassifier(Config{ATRPeriod: 3, HighVol: 1.5, LowVol: 0.75, TrendPeriod: 5}, nil)
	require.NoError(t, err)
	labels, err := c.Classify(s)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		assert.Equal(t, NoTrend, labels.Trend[i])
	}
	assert.Equal(t, Up, labels.Trend[10])
	assert.Equal(t, Down, labels.Trend[30])
	assert.Len(t, labels.Strings(ByTrend), 40)
	assert.Equal(t, "up", labels.Strings(ByTrend)[10])
}

func TestClassifyIsCausal(t *testing.T) {
	s := data.Synthetic("CAUSAL", 300, 3)
	c, err := NewClassifier(Config{ATRPeriod: 10, HighVol: 1.3, LowVol: 0.8, TrendPeriod: 20}, indicators.NewCache())
	require.NoError(t, err)
	full, err := c.Classify(s)
	require.NoError(t, err)

	for _, cut := range []int{1, 11, 50, 199} {
		part, err := c.Classify(s.Truncate(cut))
		require.NoError(t, err)
		assert.Equal(t, full.Volatility[:cut], part.Volatility, "cut %d", cut)
		assert.Equal(t, full.Trend[:cut], part.Trend, "cut %d", cut)
	}
}

func TestParseDimension(t *testing.T) {
	d, err := ParseDimension("")
	require.NoError(t, err)
	assert.Equal(t, ByVolatility, d)
	d, err = ParseDimension("trend")
	require.NoError(t, err)
	assert.Equal(t, ByTrend, d)
	_, err = ParseDimension("moon")
	assert.True(t, errs.Is(err, errs.Configuration))
}
