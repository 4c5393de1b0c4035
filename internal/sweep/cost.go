package sweep

import (
	"context"
	"sort"

	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/domain/indicators"
	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/metrics"
)

// DefaultCostGrid crosses fees {0, 5, 10, 20, 50} bps with slippage {0, 5} bps.
func DefaultCostGrid() []backtest.CostModel {
	var out []backtest.CostModel
	for _, fee := range []float64{0, 5, 10, 20, 50} {
		for _, slip := range []float64{0, 5} {
			out = append(out, backtest.CostModel{FeeBps: fee, SlippageBps: slip})
		}
	}
	return out
}

// CostRow is one cost assumption and the metrics it produced.
type CostRow struct {
	Cost    backtest.CostModel `json:"cost"`
	Metrics metrics.Metrics    `json:"metrics"`
}

// CostFailure is a cost assumption that could not be evaluated.
type CostFailure struct {
	Cost   backtest.CostModel `json:"cost"`
	Kind   errs.Kind          `json:"kind"`
	Reason string             `json:"reason"`
}

// CostReport is the sensitivity of one config to trading costs.
type CostReport struct {
	ConfigID  string        `json:"config_id"`
	Config    Config        `json:"config"`
	Rows      []CostRow     `json:"rows"`
	Failures  []CostFailure `json:"failures,omitempty"`
	Cancelled bool          `json:"cancelled"`
	// Breakeven is the cheapest assumption whose total return is not positive.
	Breakeven       *backtest.CostModel `json:"breakeven,omitempty"`
	BreakevenFeeBps metrics.Value       `json:"breakeven_fee_bps"`
}

// CostSensitivity re-runs one config under each cost assumption, cheapest
// first. The config's own cost model is ignored. Cancellation is checked
// between assumptions.
func CostSensitivity(ctx context.Context, s *data.Series, cfg Config, exec backtest.ExecutionConfig, grid []backtest.CostModel) (*CostReport, error) {
	if err := exec.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(grid) == 0 {
		grid = DefaultCostGrid()
	}
	ordered := append([]backtest.CostModel(nil), grid...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].TotalBps() != ordered[j].TotalBps() {
			return ordered[i].TotalBps() < ordered[j].TotalBps()
		}
		return ordered[i].FeeBps < ordered[j].FeeBps
	})

	if !cfg.DateRange.IsZero() {
		s = s.Between(cfg.DateRange.From, cfg.DateRange.To)
	}
	report := &CostReport{ConfigID: cfg.ID(), Config: cfg}
	cache := indicators.NewCache()
	for _, cost := range ordered {
		if ctx.Err() != nil {
			report.Cancelled = true
			break
		}
		runExec := exec
		runExec.Cost = cost
		res, err := runBacktest(s, cfg.Strategy(), runExec, cache)
		if err != nil {
			report.Failures = append(report.Failures, CostFailure{Cost: cost, Kind: errs.KindOf(err), Reason: err.Error()})
			continue
		}
		report.Rows = append(report.Rows, CostRow{Cost: cost, Metrics: res.Metrics})
		if report.Breakeven == nil && res.Metrics.TotalReturn.Or(0) <= 0 {
			c := cost
			report.Breakeven = &c
			report.BreakevenFeeBps = metrics.Of(cost.FeeBps)
		}
	}
	return report, nil
}
