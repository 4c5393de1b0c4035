package backtest

import (
	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/domain/indicators"
	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/metrics"
	"github.com/sawpanic/trendlab/internal/strategy"
)

// Result is the full output of one backtest.
type Result struct {
	ConfigID        string             `json:"config_id,omitempty"`
	Name            string             `json:"name"`
	Strategy        strategy.Config    `json:"strategy"`
	Symbol          string             `json:"symbol"`
	Sector          string             `json:"sector"`
	DataVersion     string             `json:"data_version"`
	Metrics         metrics.Metrics    `json:"metrics"`
	EquityCurve     []EquityPoint      `json:"equity_curve"`
	Trades          []Trade            `json:"trades"`
	Fills           []Fill             `json:"fills"`
	Signals         []strategy.Signal  `json:"-"`
	OpenPosition    *Position          `json:"open_position,omitempty"`
	UnfilledSignals int                `json:"unfilled_signals"`
	SkippedEntries  int                `json:"skipped_entries"`
}

// Returns is the per-bar simple return series of the equity curve.
func (r *Result) Returns() []float64 {
	eq := make([]float64, len(r.EquityCurve))
	for i, p := range r.EquityCurve {
		eq[i] = p.Equity
	}
	return metrics.Returns(eq)
}

// TradeReturns lists the net return of every closed trade.
func (r *Result) TradeReturns() []float64 {
	out := make([]float64, len(r.Trades))
	for i, t := range r.Trades {
		out[i] = t.Return
	}
	return out
}

// RunBacktest builds the strategy, generates signals, simulates fills and
// computes metrics. The cache may be nil.
func RunBacktest(s *data.Series, cfg strategy.Config, exec ExecutionConfig, cache *indicators.Cache) (*Result, error) {
	if err := exec.Validate(); err != nil {
		return nil, err
	}
	st, err := strategy.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if s == nil || s.Len() == 0 {
		return nil, errs.Dataf("backtest.RunBacktest", "no bars for %s", cfg.Kind)
	}

	signals, err := strategy.Generate(st, s, cache, exec.AllowShort)
	if err != nil {
		return nil, err
	}
	sim, err := Simulate(s, signals, exec)
	if err != nil {
		return nil, err
	}

	params, _ := strategy.Normalize(cfg.Kind, cfg.Params)
	return &Result{
		Name:            st.Name(),
		Strategy:        strategy.Config{Kind: cfg.Kind, Params: params},
		Symbol:          s.Symbol,
		Sector:          s.Sector,
		DataVersion:     s.Version,
		Metrics:         Evaluate(sim, exec),
		EquityCurve:     sim.Equity,
		Trades:          sim.Trades,
		Fills:           sim.Fills,
		Signals:         signals,
		OpenPosition:    sim.OpenPosition,
		UnfilledSignals: sim.UnfilledSignals,
		SkippedEntries:  sim.SkippedEntries,
	}, nil
}

// Evaluate computes the metrics of a simulation.
func Evaluate(sim *Simulation, exec ExecutionConfig) metrics.Metrics {
	points := make([]metrics.Point, len(sim.Equity))
	for i, p := range sim.Equity {
		points[i] = metrics.Point{Timestamp: p.Timestamp, Equity: p.Equity}
	}
	trades := make([]metrics.Trade, len(sim.Trades))
	for i, t := range sim.Trades {
		trades[i] = metrics.Trade{NetPnl: t.NetPnl}
	}
	return metrics.Compute(metrics.Input{
		Points:         points,
		Trades:         trades,
		InitialEquity:  exec.InitialCash,
		TradedNotional: sim.TradedNotional,
		BarsInMarket:   sim.BarsInMarket,
		PeriodsPerYear: exec.PeriodsPerYear,
	})
}
