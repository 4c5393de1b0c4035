package stats

import (
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/metrics"
	"github.com/sawpanic/trendlab/internal/regime"
)

// RegimeSlice is the performance of one run restricted to bars of a regime.
type RegimeSlice struct {
	Label       string  `json:"label"`
	Bars        int     `json:"bars"`
	Share       float64 `json:"share"`
	MeanReturn  float64 `json:"mean_return"`
	Sharpe      float64 `json:"sharpe"`
	TotalReturn float64 `json:"total_return"`
	MaxDrawdown float64 `json:"max_drawdown"`
}

// RegimeSlices partitions the equity returns of a run by the label of the
// bar each return is realized on. labels must align with the equity curve.
// Slices are ordered by label.
func RegimeSlices(r *backtest.Result, labels []string, periodsPerYear float64) ([]RegimeSlice, error) {
	const op = "stats.RegimeSlices"
	if len(labels) != len(r.EquityCurve) {
		return nil, errs.Configf(op, "%d labels for %d equity points", len(labels), len(r.EquityCurve))
	}
	returns := r.Returns()
	if len(returns) == 0 {
		return nil, errs.Dataf(op, "need at least 2 equity points")
	}

	byLabel := make(map[string][]float64)
	for i, ret := range returns {
		l := labels[i+1]
		byLabel[l] = append(byLabel[l], ret)
	}
	keys := make([]string, 0, len(byLabel))
	for k := range byLabel {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]RegimeSlice, 0, len(keys))
	for _, k := range keys {
		rs := byLabel[k]
		growth := make([]float64, len(rs)+1)
		growth[0] = 1
		for i, ret := range rs {
			growth[i+1] = growth[i] * (1 + ret)
		}
		out = append(out, RegimeSlice{
			Label:       k,
			Bars:        len(rs),
			Share:       float64(len(rs)) / float64(len(returns)),
			MeanReturn:  stat.Mean(rs, nil),
			Sharpe:      metrics.Sharpe(rs, periodsPerYear),
			TotalReturn: growth[len(rs)] - 1,
			MaxDrawdown: metrics.MaxDrawdown(growth),
		})
	}
	return out, nil
}

// AlignLabels maps the labels of a full series onto a run's equity curve
// by timestamp, so runs over a date range line up with the series.
func AlignLabels(s *data.Series, labels []string, r *backtest.Result) ([]string, error) {
	const op = "stats.AlignLabels"
	if len(labels) != s.Len() {
		return nil, errs.Configf(op, "%d labels for %d bars", len(labels), s.Len())
	}
	at := make(map[int64]string, s.Len())
	for i, b := range s.Bars {
		at[b.Timestamp.UnixNano()] = labels[i]
	}
	out := make([]string, len(r.EquityCurve))
	for i, p := range r.EquityCurve {
		l, ok := at[p.Timestamp.UnixNano()]
		if !ok {
			return nil, errs.Dataf(op, "no bar at %s in %s", p.Timestamp.Format(time.RFC3339), s.ID)
		}
		out[i] = l
	}
	return out, nil
}

// SliceByRegime classifies the series and slices the run along one dimension.
func SliceByRegime(s *data.Series, r *backtest.Result, c *regime.Classifier, dim regime.Dimension, periodsPerYear float64) ([]RegimeSlice, error) {
	labels, err := c.Classify(s)
	if err != nil {
		return nil, err
	}
	aligned, err := AlignLabels(s, labels.Strings(dim), r)
	if err != nil {
		return nil, err
	}
	return RegimeSlices(r, aligned, periodsPerYear)
}
