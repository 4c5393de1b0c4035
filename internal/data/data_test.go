package data

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/trendlab/internal/errs"
)

const multiSymbolCSV = `timestamp,symbol,timeframe,open,high,low,close,volume
2024-01-03,SPY,1d,101,103,100,102,2000
2024-01-02,SPY,1d,100,102,99,101,1000
2024-01-02,QQQ,1d,50,51,49,50.5,500
2024-01-03,QQQ,1d,50.5,52,50,51.5,600
`

func TestParseCSVGroupsAndSorts(t *testing.T) {
	u := NewUniverse(map[string][]string{"broad": {"SPY"}})
	series, err := ParseCSV([]byte(multiSymbolCSV), ParseOptions{Universe: u})
	require.NoError(t, err)
	require.Len(t, series, 2)

	spy := series["SPY"]
	require.Equal(t, 2, spy.Len())
	assert.Equal(t, 101.0, spy.Bars[0].Close, "rows are sorted by timestamp")
	assert.Equal(t, "broad", spy.Sector)
	assert.Equal(t, UnknownSector, series["QQQ"].Sector)
	assert.Equal(t, []string{"QQQ", "SPY"}, Symbols(series))
}

func TestParseCSVTimestampFormats(t *testing.T) {
	raw := "timestamp,open,high,low,close,volume\n" +
		"2024-01-02T00:00:00Z,1,1,1,1,1\n" +
		"2024-01-03 00:00:00,1,1,1,1,1\n" +
		"1704326400,1,1,1,1,1\n"
	series, err := ParseCSV([]byte(raw), ParseOptions{DefaultSymbol: "X"})
	require.NoError(t, err)
	bars := series["X"].Bars
	require.Len(t, bars, 3)
	assert.Equal(t, time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), bars[2].Timestamp)
}

func TestParseCSVRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing close column", "timestamp,open,high,low\n2024-01-02,1,1,1\n"},
		{"duplicate timestamp", "timestamp,open,high,low,close\n2024-01-02,1,1,1,1\n2024-01-02,1,1,1,1\n"},
		{"high below close", "timestamp,open,high,low,close\n2024-01-02,1,1,1,2\n"},
		{"non-positive price", "timestamp,open,high,low,close\n2024-01-02,0,1,0,1\n"},
		{"mixed timeframes", "timestamp,symbol,timeframe,open,high,low,close\n2024-01-02,A,1d,1,1,1,1\n2024-01-03,A,1h,1,1,1,1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV([]byte(tt.raw), ParseOptions{DefaultSymbol: "A"})
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.Data), "got %v", err)
		})
	}
}

func TestSeriesIdentityFollowsData(t *testing.T) {
	a := Synthetic("AAA", 50, 1)
	b := Synthetic("AAA", 50, 1)
	c := Synthetic("AAA", 50, 2)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a.Version, b.Version)
	assert.NotEqual(t, a.ID, c.ID)

	trunc := a.Truncate(20)
	assert.Equal(t, 20, trunc.Len())
	assert.NotEqual(t, a.ID, trunc.ID)
	assert.Equal(t, a.Bars[19], trunc.Bars[19])
}

func TestSeriesBetween(t *testing.T) {
	s := Synthetic("AAA", 30, 7)
	from := s.Bars[5].Timestamp
	to := s.Bars[9].Timestamp
	sub := s.Between(from, to)
	require.Equal(t, 5, sub.Len())
	assert.Equal(t, from, sub.Bars[0].Timestamp)
	assert.Same(t, s, s.Between(time.Time{}, time.Time{}))
}

type countingCache struct {
	Cache
	hits int
}

func (c *countingCache) Get(key string) ([]byte, bool) {
	b, ok := c.Cache.Get(key)
	if ok {
		c.hits++
	}
	return b, ok
}

func TestLoaderUsesCache(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bars.csv")
	raw, err := WriteCSV([]*Series{Synthetic("SPY", 40, 3)})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	cache := &countingCache{Cache: NewMemoryCache()}
	loader := NewLoader(cache, nil)

	first, err := loader.Load(path, ParseOptions{})
	require.NoError(t, err)
	second, err := loader.Load(path, ParseOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, first["SPY"].ID, second["SPY"].ID)
	assert.Equal(t, 40, second["SPY"].Len())
}

func TestMemoryCacheExpiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &memoryCache{m: make(map[string]cacheEntry), now: func() time.Time { return now }}
	c.Set("k", []byte("v"), time.Minute)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", string(v))

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("k")
	assert.False(t, ok)
}

func TestLoadUniverse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sectors:\n  tech: [AAPL, MSFT]\n  energy: [XOM]\n"), 0o644))

	u, err := LoadUniverse(path)
	require.NoError(t, err)
	assert.Equal(t, "tech", u.SectorOf("MSFT"))
	assert.Equal(t, UnknownSector, u.SectorOf("ZZZ"))
	assert.Equal(t, []string{"AAPL", "MSFT", "XOM"}, u.Symbols())
}
