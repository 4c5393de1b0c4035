package indicators

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/errs"
)

func sameBits(a, b float64) bool {
	if math.IsNaN(a) && math.IsNaN(b) {
		return true
	}
	return math.Float64bits(a) == math.Float64bits(b)
}

func TestSMAKnownValues(t *testing.T) {
	out, err := SMA([]float64{1, 2, 3, 4, 5}, 3)
	require.NoError(t, err)
	assert.False(t, Defined(out[0]))
	assert.False(t, Defined(out[1]))
	assert.InDelta(t, 2.0, out[2], 1e-12)
	assert.InDelta(t, 3.0, out[3], 1e-12)
	assert.InDelta(t, 4.0, out[4], 1e-12)
}

func TestHighestExcludesCurrentBar(t *testing.T) {
	out, err := Highest([]float64{1, 5, 2, 3, 9, 4}, 2)
	require.NoError(t, err)
	assert.False(t, Defined(out[0]))
	assert.False(t, Defined(out[1]))
	assert.Equal(t, 5.0, out[2]) // max(1,5)
	assert.Equal(t, 5.0, out[3]) // max(5,2)
	assert.Equal(t, 3.0, out[4]) // max(2,3), today's 9 excluded
	assert.Equal(t, 9.0, out[5])

	low, err := Lowest([]float64{4, 3, 2}, 1)
	require.NoError(t, err)
	assert.False(t, Defined(low[0]))
	assert.Equal(t, 4.0, low[1])
	assert.Equal(t, 3.0, low[2])
}

func TestNonPositiveWindowIsConfigurationError(t *testing.T) {
	x := []float64{1, 2, 3}
	_, err := SMA(x, 0)
	assert.True(t, errs.Is(err, errs.Configuration))
	_, err = EMA(x, -1)
	assert.True(t, errs.Is(err, errs.Configuration))
	_, err = Highest(x, 0)
	assert.True(t, errs.Is(err, errs.Configuration))
	_, err = Bollinger(x, 1, 2)
	assert.True(t, errs.Is(err, errs.Configuration))
	_, err = DMI(x, x, x, 1)
	assert.True(t, errs.Is(err, errs.Configuration))
}

func TestShortInputIsAllUndefined(t *testing.T) {
	x := []float64{1, 2, 3}
	for name, fn := range map[string]func() ([]float64, error){
		"sma":  func() ([]float64, error) { return SMA(x, 5) },
		"ema":  func() ([]float64, error) { return EMA(x, 5) },
		"atr":  func() ([]float64, error) { return ATR(x, x, x, 5) },
		"roc":  func() ([]float64, error) { return ROC(x, 3) },
		"high": func() ([]float64, error) { return Highest(x, 5) },
	} {
		out, err := fn()
		require.NoError(t, err, name)
		require.Len(t, out, 3, name)
		for i, v := range out {
			assert.False(t, Defined(v), "%s[%d] should be undefined", name, i)
		}
	}

	empty, err := SMA(nil, 3)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

// Every indicator computed on a series truncated at i must equal the
// full-series value at i, bit for bit.
func TestIndicatorsHaveNoLookahead(t *testing.T) {
	s := data.Synthetic("LA", 160, 11)
	full := compute(t, s)

	for _, cut := range []int{1, 2, 15, 29, 30, 31, 59, 100, 159} {
		truncated := compute(t, s.Truncate(cut))
		for name, line := range truncated {
			require.Len(t, line, cut, name)
			for i := 0; i < cut; i++ {
				if !sameBits(line[i], full[name][i]) {
					t.Fatalf("%s differs at %d with cut %d: %v vs %v", name, i, cut, line[i], full[name][i])
				}
			}
		}
	}
}

func compute(t *testing.T, s *data.Series) map[string][]float64 {
	t.Helper()
	h, l, c := s.Highs(), s.Lows(), s.Closes()
	out := make(map[string][]float64)
	must := func(name string, v []float64, err error) {
		require.NoError(t, err, name)
		out[name] = v
	}
	v, err := SMA(c, 20)
	must("sma", v, err)
	v, err = EMA(c, 15)
	must("ema", v, err)
	v, err = ATR(h, l, c, 14)
	must("atr", v, err)
	v, err = Highest(h, 30)
	must("highest", v, err)
	v, err = Lowest(l, 30)
	must("lowest", v, err)
	v, err = ROC(c, 10)
	must("roc", v, err)
	v, err = StdDev(c, 20)
	must("stddev", v, err)
	b, err := Bollinger(c, 20, 2)
	require.NoError(t, err)
	out["bb_upper"], out["bb_lower"] = b.Upper, b.Lower
	d, err := DMI(h, l, c, 14)
	require.NoError(t, err)
	out["plus_di"], out["minus_di"], out["adx"] = d.PlusDI, d.MinusDI, d.ADX
	return out
}

func TestCacheMemoizesAndInvalidates(t *testing.T) {
	s := data.Synthetic("C", 80, 5)
	other := data.Synthetic("D", 80, 6)
	c := NewCache()

	a, err := c.SMA(s, 10)
	require.NoError(t, err)
	b, err := c.SMA(s, 10)
	require.NoError(t, err)
	assert.Same(t, &a[0], &b[0], "second lookup returns the stored line")

	_, err = c.SMA(other, 10)
	require.NoError(t, err)
	_, _, err = c.Donchian(s, 20)
	require.NoError(t, err)

	stats := c.Stats()
	assert.Equal(t, 3, stats.Entries)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(3), stats.Misses)

	assert.Equal(t, 2, c.Invalidate(s.ID))
	assert.Equal(t, 1, c.Stats().Entries)

	again, err := c.SMA(s, 10)
	require.NoError(t, err)
	for i := range a {
		assert.True(t, sameBits(a[i], again[i]))
	}
}

func TestCacheDoesNotStoreErrors(t *testing.T) {
	s := data.Synthetic("E", 30, 1)
	c := NewCache()
	_, err := c.SMA(s, 0)
	require.Error(t, err)
	assert.Equal(t, 0, c.Stats().Entries)
}

func TestCacheConcurrentAccess(t *testing.T) {
	s := data.Synthetic("F", 200, 9)
	c := NewCache()
	want, err := SMA(s.Closes(), 25)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				got, err := c.SMA(s, 25)
				if err != nil || !sameBits(got[100], want[100]) {
					t.Errorf("unexpected cache result: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, c.Stats().Entries)
}

func TestNilCacheComputes(t *testing.T) {
	var c *Cache
	s := data.Synthetic("G", 40, 2)
	out, err := c.EMA(s, 5)
	require.NoError(t, err)
	assert.True(t, Defined(out[4]))
	assert.Equal(t, 0, c.Invalidate(s.ID))
}
