package data

import (
	"math"
	"math/rand/v2"
	"time"
)

// SyntheticStart is the first timestamp of generated series.
var SyntheticStart = time.Date(2015, 1, 2, 0, 0, 0, 0, time.UTC)

// Synthetic generates a deterministic daily series: a drifting random walk
// with a slow sine cycle so trend strategies have something to follow.
// Weekends are skipped as gaps.
func Synthetic(symbol string, n int, seed uint64) *Series {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	bars := make([]Bar, 0, n)
	ts := SyntheticStart
	price := 100.0
	for len(bars) < n {
		if wd := ts.Weekday(); wd == time.Saturday || wd == time.Sunday {
			ts = ts.AddDate(0, 0, 1)
			continue
		}
		i := float64(len(bars))
		drift := 0.0004 + 0.002*math.Sin(i/40)
		ret := drift + 0.012*rng.NormFloat64()
		open := price * (1 + 0.002*rng.NormFloat64())
		closePx := price * math.Exp(ret)
		high := math.Max(open, closePx) * (1 + 0.004*math.Abs(rng.NormFloat64()))
		low := math.Min(open, closePx) * (1 - 0.004*math.Abs(rng.NormFloat64()))
		bars = append(bars, Bar{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Volume:    1e6 * (1 + rng.Float64()),
		})
		price = closePx
		ts = ts.AddDate(0, 0, 1)
	}

	s, err := NewSeries(symbol, "1d", bars)
	if err != nil {
		// generated bars always bracket open/close and move forward in time
		panic(err)
	}
	return s
}

// FromCloses builds a daily series from opens and closes with high and low
// bracketing them. A nil opens slice sets open equal to close.
func FromCloses(symbol string, opens, closes []float64) (*Series, error) {
	bars := make([]Bar, len(closes))
	ts := SyntheticStart
	for i := range closes {
		open := closes[i]
		if opens != nil {
			open = opens[i]
		}
		bars[i] = Bar{
			Timestamp: ts.AddDate(0, 0, i),
			Open:      open,
			High:      math.Max(open, closes[i]),
			Low:       math.Min(open, closes[i]),
			Close:     closes[i],
			Volume:    1000,
		}
	}
	return NewSeries(symbol, "1d", bars)
}
