package indicators

import (
	"fmt"
	"sync"

	"github.com/sawpanic/trendlab/internal/data"
)

// Key identifies a memoized indicator. It names the series by identity only
// and never references the bars.
type Key struct {
	Series data.SeriesID
	Kind   string
	Params string
}

// CacheStats reports cache effectiveness.
type CacheStats struct {
	Entries int    `json:"entries"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
}

// Cache memoizes indicator lines in an arena indexed by Key. Values are
// shared and must be treated as read-only by callers. The lock is held only
// for lookup and insert; computation runs outside it, so concurrent misses
// on one key may compute twice and keep the first stored result.
type Cache struct {
	mu     sync.Mutex
	index  map[Key]int
	arena  [][][]float64
	free   []int
	hits   uint64
	misses uint64
}

// NewCache creates an empty indicator cache.
func NewCache() *Cache {
	return &Cache{index: make(map[Key]int)}
}

// Get returns the cached lines for key, computing them on a miss. A nil
// cache always computes.
func (c *Cache) Get(key Key, compute func() ([][]float64, error)) ([][]float64, error) {
	if c == nil {
		return compute()
	}

	c.mu.Lock()
	if slot, ok := c.index[key]; ok {
		c.hits++
		lines := c.arena[slot]
		c.mu.Unlock()
		return lines, nil
	}
	c.misses++
	c.mu.Unlock()

	lines, err := compute()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if slot, ok := c.index[key]; ok {
		return c.arena[slot], nil
	}
	var slot int
	if n := len(c.free); n > 0 {
		slot = c.free[n-1]
		c.free = c.free[:n-1]
		c.arena[slot] = lines
	} else {
		slot = len(c.arena)
		c.arena = append(c.arena, lines)
	}
	c.index[key] = slot
	return lines, nil
}

// Invalidate drops every entry computed for the series.
func (c *Cache) Invalidate(id data.SeriesID) int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for key, slot := range c.index {
		if key.Series != id {
			continue
		}
		delete(c.index, key)
		c.arena[slot] = nil
		c.free = append(c.free, slot)
		dropped++
	}
	return dropped
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	if c == nil {
		return CacheStats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Entries: len(c.index), Hits: c.hits, Misses: c.misses}
}

func one(line []float64, err error) ([][]float64, error) {
	if err != nil {
		return nil, err
	}
	return [][]float64{line}, nil
}

// SMA of closes.
func (c *Cache) SMA(s *data.Series, window int) ([]float64, error) {
	lines, err := c.Get(Key{s.ID, "sma", fmt.Sprint(window)}, func() ([][]float64, error) {
		return one(SMA(s.Closes(), window))
	})
	if err != nil {
		return nil, err
	}
	return lines[0], nil
}

// EMA of closes.
func (c *Cache) EMA(s *data.Series, window int) ([]float64, error) {
	lines, err := c.Get(Key{s.ID, "ema", fmt.Sprint(window)}, func() ([][]float64, error) {
		return one(EMA(s.Closes(), window))
	})
	if err != nil {
		return nil, err
	}
	return lines[0], nil
}

// ATR of the series.
func (c *Cache) ATR(s *data.Series, window int) ([]float64, error) {
	lines, err := c.Get(Key{s.ID, "atr", fmt.Sprint(window)}, func() ([][]float64, error) {
		return one(ATR(s.Highs(), s.Lows(), s.Closes(), window))
	})
	if err != nil {
		return nil, err
	}
	return lines[0], nil
}

// Donchian returns the prior-window highest high and lowest low.
func (c *Cache) Donchian(s *data.Series, window int) (upper, lower []float64, err error) {
	lines, err := c.Get(Key{s.ID, "donchian", fmt.Sprint(window)}, func() ([][]float64, error) {
		hi, err := Highest(s.Highs(), window)
		if err != nil {
			return nil, err
		}
		lo, err := Lowest(s.Lows(), window)
		if err != nil {
			return nil, err
		}
		return [][]float64{hi, lo}, nil
	})
	if err != nil {
		return nil, nil, err
	}
	return lines[0], lines[1], nil
}

// Bollinger bands of closes.
func (c *Cache) Bollinger(s *data.Series, window int, mult float64) (Bands, error) {
	lines, err := c.Get(Key{s.ID, "bollinger", fmt.Sprintf("%d/%g", window, mult)}, func() ([][]float64, error) {
		b, err := Bollinger(s.Closes(), window, mult)
		if err != nil {
			return nil, err
		}
		return [][]float64{b.Upper, b.Middle, b.Lower}, nil
	})
	if err != nil {
		return Bands{}, err
	}
	return Bands{Upper: lines[0], Middle: lines[1], Lower: lines[2]}, nil
}

// DMI of the series.
func (c *Cache) DMI(s *data.Series, window int) (Directional, error) {
	lines, err := c.Get(Key{s.ID, "dmi", fmt.Sprint(window)}, func() ([][]float64, error) {
		d, err := DMI(s.Highs(), s.Lows(), s.Closes(), window)
		if err != nil {
			return nil, err
		}
		return [][]float64{d.PlusDI, d.MinusDI, d.ADX}, nil
	})
	if err != nil {
		return Directional{}, err
	}
	return Directional{PlusDI: lines[0], MinusDI: lines[1], ADX: lines[2]}, nil
}
