package data

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/sawpanic/trendlab/internal/errs"
)

// UnknownSector is the sector sentinel for symbols without a universe mapping.
const UnknownSector = "unknown"

// Bar is one OHLCV observation. Close is split/dividend adjusted, volume raw.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// SeriesID identifies a series by symbol, timeframe and data version.
type SeriesID string

// Series is an ordered, immutable bar sequence for one symbol and timeframe.
// Gaps are absent indices and are never synthesized.
type Series struct {
	ID        SeriesID `json:"id"`
	Symbol    string   `json:"symbol"`
	Timeframe string   `json:"timeframe"`
	Sector    string   `json:"sector"`
	Version   string   `json:"version"`
	Bars      []Bar    `json:"-"`
}

// NewSeries validates bars and stamps the series with its data version.
func NewSeries(symbol, timeframe string, bars []Bar) (*Series, error) {
	const op = "data.NewSeries"
	if symbol == "" {
		return nil, errs.Dataf(op, "symbol is required")
	}
	if timeframe == "" {
		timeframe = "1d"
	}

	for i, b := range bars {
		if err := validateBar(b); err != nil {
			return nil, errs.Dataf(op, "%s bar %d (%s): %v", symbol, i, b.Timestamp.Format(time.RFC3339), err)
		}
		if i > 0 && !b.Timestamp.After(bars[i-1].Timestamp) {
			return nil, errs.Dataf(op, "%s bar %d: timestamp %s not after %s",
				symbol, i, b.Timestamp.Format(time.RFC3339), bars[i-1].Timestamp.Format(time.RFC3339))
		}
	}

	owned := make([]Bar, len(bars))
	for i, b := range bars {
		b.Timestamp = b.Timestamp.UTC()
		owned[i] = b
	}

	version := Version(owned)
	return &Series{
		ID:        makeID(symbol, timeframe, version),
		Symbol:    symbol,
		Timeframe: timeframe,
		Sector:    UnknownSector,
		Version:   version,
		Bars:      owned,
	}, nil
}

func validateBar(b Bar) error {
	for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite value")
		}
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("non-positive price")
	}
	if b.Volume < 0 {
		return fmt.Errorf("negative volume")
	}
	if b.High < math.Max(b.Open, b.Close) || b.Low > math.Min(b.Open, b.Close) {
		return fmt.Errorf("high/low do not bracket open/close")
	}
	return nil
}

// Version is the sha256 of the canonical bar encoding. It is the data
// version marker recorded in run manifests.
func Version(bars []Bar) string {
	h := sha256.New()
	buf := make([]byte, 8)
	for _, b := range bars {
		binary.BigEndian.PutUint64(buf, uint64(b.Timestamp.UnixNano()))
		h.Write(buf)
		for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
			binary.BigEndian.PutUint64(buf, math.Float64bits(v))
			h.Write(buf)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func makeID(symbol, timeframe, version string) SeriesID {
	return SeriesID(fmt.Sprintf("%s|%s|%s", symbol, timeframe, version[:12]))
}

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.Bars) }

// Closes returns a fresh slice of close prices.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Highs returns a fresh slice of high prices.
func (s *Series) Highs() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.High
	}
	return out
}

// Lows returns a fresh slice of low prices.
func (s *Series) Lows() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Low
	}
	return out
}

// Slice returns bars in [from, to) as a new series with its own identity.
func (s *Series) Slice(from, to int) *Series {
	if from < 0 {
		from = 0
	}
	if to > len(s.Bars) {
		to = len(s.Bars)
	}
	if from > to {
		from = to
	}
	bars := s.Bars[from:to:to]
	version := Version(bars)
	return &Series{
		ID:        makeID(s.Symbol, s.Timeframe, version),
		Symbol:    s.Symbol,
		Timeframe: s.Timeframe,
		Sector:    s.Sector,
		Version:   version,
		Bars:      bars,
	}
}

// Truncate returns the first n bars as a new series.
func (s *Series) Truncate(n int) *Series {
	return s.Slice(0, n)
}

// Between returns bars whose timestamps fall in [from, to]. Zero bounds are open.
func (s *Series) Between(from, to time.Time) *Series {
	start, end := 0, len(s.Bars)
	if !from.IsZero() {
		for start < end && s.Bars[start].Timestamp.Before(from) {
			start++
		}
	}
	if !to.IsZero() {
		for end > start && s.Bars[end-1].Timestamp.After(to) {
			end--
		}
	}
	if start == 0 && end == len(s.Bars) {
		return s
	}
	return s.Slice(start, end)
}

// DateRange bounds a simulation in time. Zero values are open bounds.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// IsZero reports whether the range is unbounded on both sides.
func (r DateRange) IsZero() bool { return r.From.IsZero() && r.To.IsZero() }

func (r DateRange) String() string {
	f, t := "start", "end"
	if !r.From.IsZero() {
		f = r.From.Format("2006-01-02")
	}
	if !r.To.IsZero() {
		t = r.To.Format("2006-01-02")
	}
	return f + ".." + t
}
