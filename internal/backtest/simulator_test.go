package backtest

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/domain/indicators"
	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/strategy"
)

// ramp returns 20 daily bars with distinct opens and closes.
func ramp(t *testing.T) *data.Series {
	t.Helper()
	opens := make([]float64, 20)
	closes := make([]float64, 20)
	for i := range closes {
		opens[i] = 100 + float64(i)
		closes[i] = 100.5 + float64(i)
	}
	s, err := data.FromCloses("RAMP", opens, closes)
	require.NoError(t, err)
	return s
}

func signalsAt(n int, at map[int]strategy.Signal) []strategy.Signal {
	out := make([]strategy.Signal, n)
	for i, sig := range at {
		out[i] = sig
	}
	return out
}

func fixedExec() ExecutionConfig {
	exec := DefaultExecutionConfig()
	exec.Sizing = Sizing{Mode: SizeFixed, Quantity: 10}
	return exec
}

func TestFillTiming(t *testing.T) {
	s := ramp(t)
	signals := signalsAt(s.Len(), map[int]strategy.Signal{10: strategy.EnterLong})

	t.Run("next open", func(t *testing.T) {
		sim, err := Simulate(s, signals, fixedExec())
		require.NoError(t, err)
		require.Len(t, sim.Fills, 1)
		f := sim.Fills[0]
		assert.Equal(t, 10, f.SignalIndex)
		assert.Equal(t, 11, f.FillIndex)
		assert.Equal(t, s.Bars[11].Open, f.RawPrice)
		assert.Equal(t, s.Bars[11].Timestamp, f.Timestamp)
	})

	t.Run("same bar close", func(t *testing.T) {
		exec := fixedExec()
		exec.Delay, exec.SameBar = 0, true
		sim, err := Simulate(s, signals, exec)
		require.NoError(t, err)
		require.Len(t, sim.Fills, 1)
		assert.Equal(t, 10, sim.Fills[0].FillIndex)
		assert.Equal(t, s.Bars[10].Close, sim.Fills[0].RawPrice)
	})

	t.Run("delay beyond series end", func(t *testing.T) {
		exec := fixedExec()
		exec.Delay = 3
		late := signalsAt(s.Len(), map[int]strategy.Signal{17: strategy.EnterLong})
		sim, err := Simulate(s, late, exec)
		require.NoError(t, err)
		assert.Empty(t, sim.Fills)
		assert.Equal(t, 1, sim.UnfilledSignals)
	})
}

func TestFeesAndSlippage(t *testing.T) {
	s := ramp(t)
	exec := fixedExec()
	exec.Cost = CostModel{FeeBps: 5, SlippageBps: 10}
	signals := signalsAt(s.Len(), map[int]strategy.Signal{
		2: strategy.EnterLong,
		8: strategy.ExitLong,
	})

	sim, err := Simulate(s, signals, exec)
	require.NoError(t, err)
	require.Len(t, sim.Trades, 1)
	tr := sim.Trades[0]

	entryPx := 103 * 1.001
	exitPx := 109 * 0.999
	assert.InDelta(t, entryPx, tr.Entry.Price, 1e-9)
	assert.InDelta(t, exitPx, tr.Exit.Price, 1e-9)
	assert.InDelta(t, 10*entryPx*5e-4, tr.Entry.Fees, 1e-9)
	assert.InDelta(t, (exitPx-entryPx)*10, tr.GrossPnl, 1e-9)
	assert.InDelta(t, tr.GrossPnl-tr.Entry.Fees-tr.Exit.Fees, tr.NetPnl, 1e-9)
	assert.Equal(t, 6, tr.BarsHeld)
	assert.Nil(t, sim.OpenPosition)

	last := sim.Equity[len(sim.Equity)-1]
	assert.InDelta(t, exec.InitialCash+tr.NetPnl, last.Equity, 1e-6)
}

func TestShortRoundTrip(t *testing.T) {
	s := ramp(t)
	exec := fixedExec()
	exec.AllowShort = true
	signals := signalsAt(s.Len(), map[int]strategy.Signal{
		3: strategy.EnterShort,
		5: strategy.ExitShort,
	})
	sim, err := Simulate(s, signals, exec)
	require.NoError(t, err)
	require.Len(t, sim.Trades, 1)
	assert.Equal(t, Sell, sim.Trades[0].Entry.Side)
	assert.InDelta(t, -20.0, sim.Trades[0].GrossPnl, 1e-9, "short loses on a rising ramp")
}

func TestInvalidTransitionsAreInvariantViolations(t *testing.T) {
	s := ramp(t)
	tests := []struct {
		name    string
		signals map[int]strategy.Signal
		short   bool
	}{
		{"exit while flat", map[int]strategy.Signal{4: strategy.ExitLong}, false},
		{"entry while long", map[int]strategy.Signal{2: strategy.EnterLong, 5: strategy.EnterLong}, false},
		{"exit short while long", map[int]strategy.Signal{2: strategy.EnterLong, 5: strategy.ExitShort}, true},
		{"short disabled", map[int]strategy.Signal{2: strategy.EnterShort}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := fixedExec()
			exec.AllowShort = tt.short
			_, err := Simulate(s, signalsAt(s.Len(), tt.signals), exec)
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.InvariantViolation), "got %v", err)
		})
	}
}

func TestOpenPositionStaysOpen(t *testing.T) {
	s := ramp(t)
	sim, err := Simulate(s, signalsAt(s.Len(), map[int]strategy.Signal{15: strategy.EnterLong}), fixedExec())
	require.NoError(t, err)
	assert.Empty(t, sim.Trades)
	require.NotNil(t, sim.OpenPosition)
	assert.Equal(t, strategy.Long, sim.OpenPosition.Direction)
	assert.Equal(t, 4, sim.BarsInMarket)
}

func TestExecutionConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ExecutionConfig)
	}{
		{"zero cash", func(e *ExecutionConfig) { e.InitialCash = 0 }},
		{"delay zero without same bar", func(e *ExecutionConfig) { e.Delay = 0 }},
		{"negative fee", func(e *ExecutionConfig) { e.Cost.FeeBps = -1 }},
		{"fraction above one", func(e *ExecutionConfig) { e.Sizing.Fraction = 1.5 }},
		{"unknown sizing", func(e *ExecutionConfig) { e.Sizing.Mode = "kelly" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := DefaultExecutionConfig()
			tt.mutate(&exec)
			assert.True(t, errs.Is(exec.Validate(), errs.Configuration))
		})
	}
	require.NoError(t, DefaultExecutionConfig().Validate())
	assert.Equal(t, "next_open", DefaultExecutionConfig().FillPolicy())
}

// Every equity point satisfies cash + position == equity and chains from
// the previous point through pnl and costs.
func TestAccountingIdentityHolds(t *testing.T) {
	s := data.Synthetic("ACC", 500, 3)
	exec := DefaultExecutionConfig()
	exec.AllowShort = true
	exec.Cost = CostModel{FeeBps: 10, SlippageBps: 5}

	for _, cfg := range []strategy.Config{
		{Kind: strategy.Donchian, Params: strategy.Params{"entry_lookback": 20, "exit_lookback": 10}},
		{Kind: strategy.TSMOM, Params: strategy.Params{"lookback": 21}},
		{Kind: strategy.Keltner, Params: nil},
	} {
		res, err := RunBacktest(s, cfg, exec, indicators.NewCache())
		require.NoError(t, err, cfg.Kind)
		require.Len(t, res.EquityCurve, s.Len())
		if cfg.Kind != strategy.Keltner {
			assert.NotEmpty(t, res.Fills, cfg.Kind)
		}

		prev := exec.InitialCash
		for i, p := range res.EquityCurve {
			tol := 1e-8 * math.Max(1, math.Abs(p.Equity))
			assert.InDelta(t, p.Equity, p.Cash+p.PositionValue, tol, "bar %d", i)
			assert.InDelta(t, p.Equity, prev+p.Pnl-p.Costs, tol, "bar %d", i)
			assert.GreaterOrEqual(t, p.Drawdown, 0.0)
			prev = p.Equity
		}
	}
}

func TestRunBacktestIsDeterministic(t *testing.T) {
	s := data.Synthetic("DET", 300, 8)
	cfg := strategy.Config{Kind: strategy.MACrossover, Params: strategy.Params{"fast": 10, "slow": 40}}
	exec := DefaultExecutionConfig()

	a, err := RunBacktest(s, cfg, exec, indicators.NewCache())
	require.NoError(t, err)
	b, err := RunBacktest(s, cfg, exec, nil)
	require.NoError(t, err)
	assert.Equal(t, a.EquityCurve, b.EquityCurve)
	assert.Equal(t, a.Metrics, b.Metrics)
	assert.Equal(t, strategy.Params{"fast": 10, "slow": 40, "ema": 0}, a.Strategy.Params)
}

func TestRunBacktestErrors(t *testing.T) {
	empty, err := data.NewSeries("E", "1d", nil)
	require.NoError(t, err)
	_, err = RunBacktest(empty, strategy.Config{Kind: strategy.TSMOM}, DefaultExecutionConfig(), nil)
	assert.True(t, errs.Is(err, errs.Data))

	_, err = RunBacktest(ramp(t), strategy.Config{Kind: strategy.TSMOM, Params: strategy.Params{"lookback": -3}}, DefaultExecutionConfig(), nil)
	assert.True(t, errs.Is(err, errs.Configuration))
}
