package stats

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/metrics"
)

// BootstrapConfig controls percentile bootstrap resampling.
type BootstrapConfig struct {
	Iterations int     `yaml:"iterations" json:"iterations"`
	Confidence float64 `yaml:"confidence" json:"confidence"`
	Seed       uint64  `yaml:"seed" json:"seed"`
}

// DefaultBootstrapConfig runs 10000 resamples at 95% confidence.
func DefaultBootstrapConfig() BootstrapConfig {
	return BootstrapConfig{Iterations: 10000, Confidence: 0.95, Seed: 42}
}

// QuickBootstrap trades precision for speed.
func QuickBootstrap() BootstrapConfig {
	c := DefaultBootstrapConfig()
	c.Iterations = 1000
	return c
}

// ThoroughBootstrap uses 50000 resamples.
func ThoroughBootstrap() BootstrapConfig {
	c := DefaultBootstrapConfig()
	c.Iterations = 50000
	return c
}

// Validate requires at least 100 iterations and a confidence in (0, 1).
func (c BootstrapConfig) Validate() error {
	const op = "stats.BootstrapConfig"
	if c.Iterations < 100 {
		return errs.Configf(op, "iterations must be >= 100, got %d", c.Iterations)
	}
	if c.Confidence <= 0 || c.Confidence >= 1 {
		return errs.Configf(op, "confidence must be in (0, 1), got %g", c.Confidence)
	}
	return nil
}

// BootstrapResult is a percentile confidence interval around a statistic.
type BootstrapResult struct {
	Estimate   float64 `json:"estimate"`
	Lower      float64 `json:"lower"`
	Upper      float64 `json:"upper"`
	StdError   float64 `json:"std_error"`
	Mean       float64 `json:"mean"`
	Median     float64 `json:"median"`
	Confidence float64 `json:"confidence"`
	Iterations int     `json:"iterations"`
}

// Width is the spread of the interval.
func (r BootstrapResult) Width() float64 { return r.Upper - r.Lower }

// Significant reports whether zero lies outside the interval.
func (r BootstrapResult) Significant() bool { return r.Lower > 0 || r.Upper < 0 }

// SignificantlyPositive reports whether the whole interval is above zero.
func (r BootstrapResult) SignificantlyPositive() bool { return r.Lower > 0 }

// Statistic reduces a sample to one number.
type Statistic func([]float64) float64

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// Bootstrap resamples sample with replacement and reports the percentile
// interval of fn. The same seed always yields the same interval.
func Bootstrap(sample []float64, fn Statistic, cfg BootstrapConfig) (BootstrapResult, error) {
	if err := cfg.Validate(); err != nil {
		return BootstrapResult{}, err
	}
	n := len(sample)
	if n < 2 {
		return BootstrapResult{}, errs.Dataf("stats.Bootstrap", "need at least 2 observations, got %d", n)
	}

	rng := newRand(cfg.Seed)
	draws := make([]float64, cfg.Iterations)
	resample := make([]float64, n)
	for it := range draws {
		for j := range resample {
			resample[j] = sample[rng.IntN(n)]
		}
		draws[it] = fn(resample)
	}
	sort.Float64s(draws)

	alpha := 1 - cfg.Confidence
	lo := int(math.Floor(alpha / 2 * float64(cfg.Iterations)))
	hi := int(math.Floor((1 - alpha/2) * float64(cfg.Iterations)))
	if hi > len(draws)-1 {
		hi = len(draws) - 1
	}
	mean, variance := stat.PopMeanVariance(draws, nil)
	return BootstrapResult{
		Estimate:   fn(sample),
		Lower:      draws[lo],
		Upper:      draws[hi],
		StdError:   math.Sqrt(variance),
		Mean:       mean,
		Median:     draws[cfg.Iterations/2],
		Confidence: cfg.Confidence,
		Iterations: cfg.Iterations,
	}, nil
}

// BootstrapMean bootstraps the arithmetic mean.
func BootstrapMean(sample []float64, cfg BootstrapConfig) (BootstrapResult, error) {
	return Bootstrap(sample, func(x []float64) float64 { return stat.Mean(x, nil) }, cfg)
}

// BootstrapSharpe bootstraps the annualized Sharpe ratio of returns.
func BootstrapSharpe(returns []float64, periodsPerYear float64, cfg BootstrapConfig) (BootstrapResult, error) {
	return Bootstrap(returns, func(x []float64) float64 { return metrics.Sharpe(x, periodsPerYear) }, cfg)
}

// Summary describes a sample.
type Summary struct {
	N          int     `json:"n"`
	Mean       float64 `json:"mean"`
	Std        float64 `json:"std"`
	StdError   float64 `json:"std_error"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
	Median     float64 `json:"median"`
	Skew       float64 `json:"skew"`
	ExKurtosis float64 `json:"ex_kurtosis"`
}

// Summarize computes sample moments. Higher moments are 0 when the sample
// does not vary.
func Summarize(sample []float64) (Summary, error) {
	n := len(sample)
	if n == 0 {
		return Summary{}, errs.Dataf("stats.Summarize", "empty sample")
	}
	s := Summary{N: n, Min: floats.Min(sample), Max: floats.Max(sample)}
	if n == 1 {
		s.Mean, s.Median = sample[0], sample[0]
		return s, nil
	}
	s.Mean, s.Std = stat.MeanStdDev(sample, nil)
	s.StdError = s.Std / math.Sqrt(float64(n))

	sorted := append([]float64(nil), sample...)
	sort.Float64s(sorted)
	if n%2 == 0 {
		s.Median = (sorted[n/2-1] + sorted[n/2]) / 2
	} else {
		s.Median = sorted[n/2]
	}
	if s.Std > 1e-10 {
		s.Skew = stat.Skew(sample, nil)
		s.ExKurtosis = stat.ExKurtosis(sample, nil)
	}
	return s, nil
}
