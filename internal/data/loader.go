package data

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/trendlab/internal/errs"
)

// barRow is one CSV row: timestamp,symbol,timeframe,open,high,low,close,volume.
// symbol and timeframe columns are optional for single-series files.
type barRow struct {
	Timestamp csvTime `csv:"timestamp"`
	Symbol    string  `csv:"symbol"`
	Timeframe string  `csv:"timeframe"`
	Open      float64 `csv:"open"`
	High      float64 `csv:"high"`
	Low       float64 `csv:"low"`
	Close     float64 `csv:"close"`
	Volume    float64 `csv:"volume"`
}

// csvTime accepts RFC3339, plain dates and unix seconds.
type csvTime struct{ T time.Time }

func (t *csvTime) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if v, err := time.Parse(layout, s); err == nil {
			t.T = v.UTC()
			return nil
		}
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		t.T = time.Unix(secs, 0).UTC()
		return nil
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

func (t csvTime) MarshalCSV() (string, error) {
	return t.T.UTC().Format(time.RFC3339), nil
}

var requiredColumns = []string{"timestamp", "open", "high", "low", "close"}

// ParseOptions controls how a CSV payload is grouped into series.
type ParseOptions struct {
	DefaultSymbol string // used when the file has no symbol column
	Timeframe     string // keep only rows of this timeframe when set
	Universe      *Universe
}

// ParseCSV groups CSV bars by symbol and validates each series.
func ParseCSV(raw []byte, opts ParseOptions) (map[string]*Series, error) {
	const op = "data.ParseCSV"

	if err := checkHeader(raw); err != nil {
		return nil, errs.Dataf(op, "%v", err)
	}

	var rows []barRow
	if err := gocsv.UnmarshalBytes(raw, &rows); err != nil {
		return nil, errs.Wrap(errs.Data, op, err)
	}

	type group struct {
		timeframe string
		bars      []Bar
	}
	groups := make(map[string]*group)
	for i, r := range rows {
		symbol := r.Symbol
		if symbol == "" {
			symbol = opts.DefaultSymbol
		}
		if symbol == "" {
			return nil, errs.Dataf(op, "row %d: no symbol column and no default symbol", i+2)
		}
		tf := r.Timeframe
		if tf == "" {
			tf = "1d"
		}
		if opts.Timeframe != "" && tf != opts.Timeframe {
			continue
		}

		g, ok := groups[symbol]
		if !ok {
			g = &group{timeframe: tf}
			groups[symbol] = g
		}
		if g.timeframe != tf {
			return nil, errs.Dataf(op, "symbol %s mixes timeframes %s and %s; select one", symbol, g.timeframe, tf)
		}
		g.bars = append(g.bars, Bar{
			Timestamp: r.Timestamp.T,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}

	out := make(map[string]*Series, len(groups))
	for symbol, g := range groups {
		sort.SliceStable(g.bars, func(i, j int) bool { return g.bars[i].Timestamp.Before(g.bars[j].Timestamp) })
		s, err := NewSeries(symbol, g.timeframe, g.bars)
		if err != nil {
			return nil, err
		}
		if opts.Universe != nil {
			s.Sector = opts.Universe.SectorOf(symbol)
		}
		out[symbol] = s
	}
	return out, nil
}

func checkHeader(raw []byte) error {
	line := raw
	if idx := bytes.IndexByte(raw, '\n'); idx >= 0 {
		line = raw[:idx]
	}
	cols := make(map[string]bool)
	for _, c := range strings.Split(strings.TrimSpace(string(line)), ",") {
		cols[strings.ToLower(strings.TrimSpace(c))] = true
	}
	var missing []string
	for _, c := range requiredColumns {
		if !cols[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("schema mismatch: missing columns %s", strings.Join(missing, ","))
	}
	return nil
}

// WriteCSV renders series in the loader's input format.
func WriteCSV(series []*Series) ([]byte, error) {
	var rows []barRow
	for _, s := range series {
		for _, b := range s.Bars {
			rows = append(rows, barRow{
				Timestamp: csvTime{T: b.Timestamp},
				Symbol:    s.Symbol,
				Timeframe: s.Timeframe,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				Volume:    b.Volume,
			})
		}
	}
	var buf bytes.Buffer
	if err := gocsv.Marshal(&rows, &buf); err != nil {
		return nil, fmt.Errorf("failed to marshal bars: %w", err)
	}
	return buf.Bytes(), nil
}

// Loader reads bar files through a byte cache so repeated sweeps skip disk.
type Loader struct {
	cache    Cache
	ttl      time.Duration
	universe *Universe
}

// NewLoader creates a loader. A nil cache disables caching.
func NewLoader(cache Cache, universe *Universe) *Loader {
	return &Loader{cache: cache, ttl: time.Hour, universe: universe}
}

// Load reads a CSV file and returns its series keyed by symbol.
func (l *Loader) Load(path string, opts ParseOptions) (map[string]*Series, error) {
	const op = "data.Load"

	info, err := os.Stat(path)
	if err != nil {
		return nil, errs.Wrap(errs.Data, op, err)
	}
	if opts.DefaultSymbol == "" {
		opts.DefaultSymbol = strings.ToUpper(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	}
	if opts.Universe == nil {
		opts.Universe = l.universe
	}

	key := fmt.Sprintf("trendlab:bars:%s:%d:%d", path, info.Size(), info.ModTime().UnixNano())
	var raw []byte
	if l.cache != nil {
		if cached, ok := l.cache.Get(key); ok {
			raw = cached
			log.Debug().Str("path", path).Msg("Bar file served from cache")
		}
	}
	if raw == nil {
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, errs.Wrap(errs.Data, op, err)
		}
		if l.cache != nil {
			l.cache.Set(key, raw, l.ttl)
		}
	}

	series, err := ParseCSV(raw, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	log.Info().Str("path", path).Int("symbols", len(series)).Msg("Bars loaded")
	return series, nil
}

// Symbols returns the sorted keys of a series map.
func Symbols(series map[string]*Series) []string {
	out := make([]string, 0, len(series))
	for s := range series {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
