package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/regime"
	"github.com/sawpanic/trendlab/internal/strategy"
)

func curveResult(id string, equity []float64) *backtest.Result {
	r := &backtest.Result{ConfigID: id, Name: id}
	for i, e := range equity {
		r.EquityCurve = append(r.EquityCurve, backtest.EquityPoint{
			Timestamp: data.SyntheticStart.Add(time.Duration(i) * 24 * time.Hour),
			Equity:    e,
		})
	}
	return r
}

func TestRegimeSlices(t *testing.T) {
	r := curveResult("a", []float64{100, 110, 99, 108.9})
	slices, err := RegimeSlices(r, []string{"calm", "calm", "wild", "calm"}, 252)
	require.NoError(t, err)
	require.Len(t, slices, 2)

	calm, wild := slices[0], slices[1]
	assert.Equal(t, "calm", calm.Label)
	assert.Equal(t, 2, calm.Bars)
	assert.InDelta(t, 2.0/3, calm.Share, 1e-12)
	assert.InDelta(t, 0.1, calm.MeanReturn, 1e-12)
	assert.InDelta(t, 0.21, calm.TotalReturn, 1e-9)
	assert.InDelta(t, 0, calm.MaxDrawdown, 1e-12)

	assert.Equal(t, "wild", wild.Label)
	assert.Equal(t, 1, wild.Bars)
	assert.InDelta(t, -0.1, wild.TotalReturn, 1e-9)
	assert.InDelta(t, 0.1, wild.MaxDrawdown, 1e-9)
	assert.Zero(t, wild.Sharpe)

	_, err = RegimeSlices(r, []string{"calm"}, 252)
	assert.True(t, errs.Is(err, errs.Configuration))
	_, err = RegimeSlices(curveResult("b", []float64{100}), []string{"calm"}, 252)
	assert.True(t, errs.Is(err, errs.Data))
}

func TestAlignLabelsFollowsTimestamps(t *testing.T) {
	s := data.Synthetic("AL", 60, 4)
	labels := make([]string, s.Len())
	for i := range labels {
		labels[i] = string(rune('a' + i%5))
	}
	r, err := backtest.RunBacktest(s.Slice(10, 30), strategy.Config{Kind: strategy.TSMOM, Params: strategy.Params{"lookback": 3}}, backtest.DefaultExecutionConfig(), nil)
	require.NoError(t, err)

	aligned, err := AlignLabels(s, labels, r)
	require.NoError(t, err)
	assert.Equal(t, labels[10:30], aligned)

	_, err = AlignLabels(s, labels[:5], r)
	assert.True(t, errs.Is(err, errs.Configuration))
}

func sweepResults(t *testing.T, s *data.Series, lookbacks ...float64) []*backtest.Result {
	t.Helper()
	var out []*backtest.Result
	for _, lb := range lookbacks {
		r, err := backtest.RunBacktest(s, strategy.Config{Kind: strategy.TSMOM, Params: strategy.Params{"lookback": lb}}, backtest.DefaultExecutionConfig(), nil)
		require.NoError(t, err)
		r.ConfigID = r.Name
		out = append(out, r)
	}
	return out
}

func TestComputeBootstrap(t *testing.T) {
	s := data.Synthetic("CB", 300, 8)
	results := sweepResults(t, s, 10, 40)
	results = append(results, curveResult("short", []float64{100, 101}))

	p := DefaultParams()
	p.Bootstrap = QuickBootstrap()
	rep, err := Compute(context.Background(), results, BootstrapMethod, p)
	require.NoError(t, err)
	assert.Equal(t, BootstrapMethod, rep.Method)
	assert.Equal(t, 3, rep.Results)
	require.Len(t, rep.Bootstrap, 2)
	require.Len(t, rep.Skipped, 1)
	assert.Equal(t, "short", rep.Skipped[0].ConfigID)
	for _, e := range rep.Bootstrap {
		assert.Equal(t, 299, e.Observations)
		assert.NotEqual(t, Insufficient, e.Grade)
		assert.LessOrEqual(t, e.Sharpe.Lower, e.Sharpe.Upper)
	}
}

func TestComputeFDR(t *testing.T) {
	s := data.Synthetic("CF", 300, 9)
	results := append(sweepResults(t, s, 5, 10, 20, 40), curveResult("short", []float64{100, 101}))

	rep, err := Compute(context.Background(), results, FDRCorrection, DefaultParams())
	require.NoError(t, err)
	require.NotNil(t, rep.FDR)
	require.Len(t, rep.FDR.Entries, 5)
	for _, e := range rep.FDR.Entries {
		assert.GreaterOrEqual(t, e.BHAdjusted, e.PValue-1e-12)
		assert.GreaterOrEqual(t, e.HolmAdjusted, e.BHAdjusted-1e-12)
	}
	assert.Equal(t, 1-1e-10, rep.FDR.Entries[4].PValue)
	assert.False(t, rep.FDR.Entries[4].BHRejected)
}

func TestComputeRegimeSplit(t *testing.T) {
	s := data.Synthetic("CR", 300, 10)
	results := sweepResults(t, s, 20)
	results = append(results, &backtest.Result{ConfigID: "orphan", Symbol: "NOPE"})

	p := DefaultParams()
	p.Bars = map[string]*data.Series{"CR": s}
	p.Dimension = regime.ByTrend
	rep, err := Compute(context.Background(), results, RegimeSplit, p)
	require.NoError(t, err)
	require.Len(t, rep.Regimes, 1)
	require.Len(t, rep.Skipped, 1)

	total := 0
	for _, sl := range rep.Regimes[0].Slices {
		assert.Contains(t, []string{"up", "down", "none"}, sl.Label)
		total += sl.Bars
	}
	assert.Equal(t, s.Len()-1, total)
	assert.Equal(t, regime.ByTrend, rep.Regimes[0].Dimension)
}

func TestComputeWalkForward(t *testing.T) {
	s := data.Synthetic("CW", 500, 11)
	results := sweepResults(t, s, 5, 20, 20)

	p := DefaultParams()
	p.Bars = map[string]*data.Series{"CW": s}
	p.WalkForward = HalfYearMonthly()
	rep, err := Compute(context.Background(), results, WalkForwardMethod, p)
	require.NoError(t, err)
	require.Len(t, rep.WalkForward, 1)
	assert.Equal(t, "CW", rep.WalkForward[0].Symbol)
	assert.NotEmpty(t, rep.WalkForward[0].Folds)
	for _, f := range rep.WalkForward[0].Folds {
		assert.LessOrEqual(t, f.Candidates, 2)
	}
}

func TestComputeRejectsBadRequests(t *testing.T) {
	_, err := Compute(context.Background(), nil, BootstrapMethod, DefaultParams())
	assert.True(t, errs.Is(err, errs.Data))

	r := []*backtest.Result{curveResult("x", []float64{100, 101, 102})}
	_, err = Compute(context.Background(), r, Method("magic"), DefaultParams())
	assert.True(t, errs.Is(err, errs.Configuration))

	p := DefaultParams()
	p.Bootstrap.Iterations = 1
	_, err = Compute(context.Background(), r, BootstrapMethod, p)
	assert.True(t, errs.Is(err, errs.Configuration))

	m, err := ParseMethod("fdr")
	require.NoError(t, err)
	assert.Equal(t, FDRCorrection, m)
	_, err = ParseMethod("anova")
	assert.True(t, errs.Is(err, errs.Configuration))
}
