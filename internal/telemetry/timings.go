package telemetry

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Histogram keeps a rolling window of durations in milliseconds.
type Histogram struct {
	mu      sync.RWMutex
	samples []float64
	maxSize int
	current int
	full    bool
}

func NewHistogram(maxSize int) *Histogram {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &Histogram{samples: make([]float64, maxSize), maxSize: maxSize}
}

func (h *Histogram) Record(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples[h.current] = float64(d.Nanoseconds()) / 1e6
	h.current = (h.current + 1) % h.maxSize
	if !h.full && h.current == 0 {
		h.full = true
	}
}

func (h *Histogram) size() int {
	if h.full {
		return h.maxSize
	}
	return h.current
}

func (h *Histogram) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size()
}

// Percentile interpolates linearly between order statistics; p is in [0,1].
func (h *Histogram) Percentile(p float64) float64 {
	h.mu.RLock()
	n := h.size()
	values := append([]float64(nil), h.samples[:n]...)
	h.mu.RUnlock()
	if n == 0 {
		return 0
	}
	sort.Float64s(values)

	idx := p * float64(n-1)
	lo, hi := int(math.Floor(idx)), int(math.Ceil(idx))
	if lo == hi {
		return values[lo]
	}
	w := idx - float64(lo)
	return values[lo]*(1-w) + values[hi]*w
}

// TimingStats summarises per-config backtest wall time for one strategy.
type TimingStats struct {
	Strategy string  `json:"strategy"`
	Count    int     `json:"count"`
	Failed   int     `json:"failed"`
	P50      float64 `json:"p50_ms"`
	P95      float64 `json:"p95_ms"`
	P99      float64 `json:"p99_ms"`
}

// Timings is a sweep.Recorder that keeps a histogram per strategy for the
// CLI's end-of-sweep summary.
type Timings struct {
	mu     sync.Mutex
	hists  map[string]*Histogram
	failed map[string]int
}

func NewTimings() *Timings {
	return &Timings{hists: make(map[string]*Histogram), failed: make(map[string]int)}
}

func (t *Timings) SweepStarted()  {}
func (t *Timings) SweepFinished() {}

func (t *Timings) ConfigCompleted(strategy string, ok bool, elapsed time.Duration) {
	t.mu.Lock()
	h, exists := t.hists[strategy]
	if !exists {
		h = NewHistogram(1000)
		t.hists[strategy] = h
	}
	if !ok {
		t.failed[strategy]++
	}
	t.mu.Unlock()
	h.Record(elapsed)
}

// Summary returns one row per strategy, sorted by name.
func (t *Timings) Summary() []TimingStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TimingStats, 0, len(t.hists))
	for name, h := range t.hists {
		out = append(out, TimingStats{
			Strategy: name,
			Count:    h.Count(),
			Failed:   t.failed[name],
			P50:      h.Percentile(0.5),
			P95:      h.Percentile(0.95),
			P99:      h.Percentile(0.99),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strategy < out[j].Strategy })
	return out
}
