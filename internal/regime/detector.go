package regime

import (
	"sort"

	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/domain/indicators"
	"github.com/sawpanic/trendlab/internal/errs"
)

// Volatility is the volatility regime of a bar
type Volatility string

const (
	LowVol    Volatility = "low"
	NormalVol Volatility = "normal"
	HighVol   Volatility = "high"
)

// Trend is the trend regime of a bar
type Trend string

const (
	Up   Trend = "up"
	Down Trend = "down"
	// NoTrend marks bars before the trend average is defined.
	NoTrend Trend = "none"
)

// Dimension selects which regime axis a label slice carries
type Dimension string

const (
	ByVolatility Dimension = "volatility"
	ByTrend      Dimension = "trend"
)

// ParseDimension accepts "volatility" or "trend"; empty means volatility.
func ParseDimension(s string) (Dimension, error) {
	switch Dimension(s) {
	case "", ByVolatility:
		return ByVolatility, nil
	case ByTrend:
		return ByTrend, nil
	}
	return "", errs.Configf("regime.ParseDimension", "unknown regime dimension %q", s)
}

// Config holds classifier thresholds
type Config struct {
	ATRPeriod   int     `yaml:"atr_period" json:"atr_period"`     // Default: 20
	HighVol     float64 `yaml:"high_vol" json:"high_vol"`         // Default: 1.5 x median ATR
	LowVol      float64 `yaml:"low_vol" json:"low_vol"`           // Default: 0.75 x median ATR
	TrendPeriod int     `yaml:"trend_period" json:"trend_period"` // Default: 50
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{ATRPeriod: 20, HighVol: 1.5, LowVol: 0.75, TrendPeriod: 50}
}

// Validate rejects non-positive periods and inverted thresholds.
func (c Config) Validate() error {
	const op = "regime.Config"
	if c.ATRPeriod < 1 || c.TrendPeriod < 1 {
		return errs.Configf(op, "periods must be positive: atr=%d trend=%d", c.ATRPeriod, c.TrendPeriod)
	}
	if c.LowVol <= 0 || c.HighVol <= c.LowVol {
		return errs.Configf(op, "thresholds must satisfy 0 < low < high: low=%g high=%g", c.LowVol, c.HighVol)
	}
	return nil
}

// Labels carries one volatility and one trend label per bar.
type Labels struct {
	Volatility []Volatility `json:"volatility"`
	Trend      []Trend      `json:"trend"`
}

// Len is the number of labelled bars.
func (l *Labels) Len() int { return len(l.Volatility) }

// Strings returns the labels of one dimension as plain strings.
func (l *Labels) Strings(dim Dimension) []string {
	if dim == ByTrend {
		out := make([]string, len(l.Trend))
		for i, t := range l.Trend {
			out[i] = string(t)
		}
		return out
	}
	out := make([]string, len(l.Volatility))
	for i, v := range l.Volatility {
		out[i] = string(v)
	}
	return out
}

// Change is a switch between volatility regimes
type Change struct {
	Index int        `json:"index"`
	From  Volatility `json:"from"`
	To    Volatility `json:"to"`
}

// Changes lists every volatility regime transition in bar order.
func (l *Labels) Changes() []Change {
	var out []Change
	for i := 1; i < len(l.Volatility); i++ {
		if l.Volatility[i] != l.Volatility[i-1] {
			out = append(out, Change{Index: i, From: l.Volatility[i-1], To: l.Volatility[i]})
		}
	}
	return out
}

// Classifier labels bars using only information available at each bar.
type Classifier struct {
	config Config
	cache  *indicators.Cache
}

// NewClassifier creates a classifier; the cache may be nil.
func NewClassifier(cfg Config, cache *indicators.Cache) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{config: cfg, cache: cache}, nil
}

// Config returns the classifier thresholds.
func (c *Classifier) Config() Config { return c.config }

// Classify labels every bar. Volatility compares ATR at i with the median of
// the defined ATR values before i; bars without ATR or without history are
// normal. Trend compares the close with its simple moving average.
func (c *Classifier) Classify(s *data.Series) (*Labels, error) {
	atr, err := c.cache.ATR(s, c.config.ATRPeriod)
	if err != nil {
		return nil, err
	}
	sma, err := c.cache.SMA(s, c.config.TrendPeriod)
	if err != nil {
		return nil, err
	}

	n := s.Len()
	labels := &Labels{Volatility: make([]Volatility, n), Trend: make([]Trend, n)}
	var prior []float64 // sorted defined ATR values before i
	for i := 0; i < n; i++ {
		labels.Volatility[i] = NormalVol
		if a := atr[i]; indicators.Defined(a) {
			if len(prior) > 0 {
				med := median(prior)
				switch {
				case a > c.config.HighVol*med:
					labels.Volatility[i] = HighVol
				case a < c.config.LowVol*med:
					labels.Volatility[i] = LowVol
				}
			}
			at := sort.SearchFloat64s(prior, a)
			prior = append(prior, 0)
			copy(prior[at+1:], prior[at:])
			prior[at] = a
		}

		switch {
		case !indicators.Defined(sma[i]):
			labels.Trend[i] = NoTrend
		case s.Bars[i].Close >= sma[i]:
			labels.Trend[i] = Up
		default:
			labels.Trend[i] = Down
		}
	}
	return labels, nil
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
