package stats

import (
	"context"
	"math"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat"

	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/domain/indicators"
	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/metrics"
	"github.com/sawpanic/trendlab/internal/sweep"
)

// WalkForwardConfig sizes rolling in-sample and out-of-sample windows in bars.
type WalkForwardConfig struct {
	InSample    int `yaml:"in_sample" json:"in_sample"`
	OutOfSample int `yaml:"out_of_sample" json:"out_of_sample"`
	Gap         int `yaml:"gap" json:"gap"`
	Step        int `yaml:"step" json:"step"`
	MinFolds    int `yaml:"min_folds" json:"min_folds"`
}

// DefaultWalkForwardConfig selects on a year and tests on a quarter.
func DefaultWalkForwardConfig() WalkForwardConfig {
	return WalkForwardConfig{InSample: 252, OutOfSample: 63, Gap: 5, Step: 63, MinFolds: 3}
}

// HalfYearMonthly selects on six months and tests on one.
func HalfYearMonthly() WalkForwardConfig {
	return WalkForwardConfig{InSample: 126, OutOfSample: 21, Gap: 3, Step: 21, MinFolds: 5}
}

// TwoYearHalfYear selects on two years and tests on six months.
func TwoYearHalfYear() WalkForwardConfig {
	return WalkForwardConfig{InSample: 504, OutOfSample: 126, Gap: 5, Step: 126, MinFolds: 2}
}

// WalkForwardPreset resolves a preset name.
func WalkForwardPreset(name string) (WalkForwardConfig, error) {
	switch name {
	case "", "yearly_quarterly":
		return DefaultWalkForwardConfig(), nil
	case "half_year_monthly":
		return HalfYearMonthly(), nil
	case "two_year_half_year":
		return TwoYearHalfYear(), nil
	}
	return WalkForwardConfig{}, errs.Configf("stats.WalkForwardPreset", "unknown walk-forward preset %q", name)
}

// Validate checks window sizes.
func (c WalkForwardConfig) Validate() error {
	const op = "stats.WalkForwardConfig"
	if c.InSample < 1 || c.OutOfSample < 1 || c.Step < 1 {
		return errs.Configf(op, "in_sample, out_of_sample and step must be positive: %d/%d/%d", c.InSample, c.OutOfSample, c.Step)
	}
	if c.Gap < 0 || c.MinFolds < 1 {
		return errs.Configf(op, "gap must be >= 0 and min_folds >= 1: %d/%d", c.Gap, c.MinFolds)
	}
	return nil
}

// Fold is one pair of half-open bar windows.
type Fold struct {
	Index    int `json:"index"`
	ISStart  int `json:"is_start"`
	ISEnd    int `json:"is_end"`
	OOSStart int `json:"oos_start"`
	OOSEnd   int `json:"oos_end"`
}

// Folds rolls windows forward by Step until the out-of-sample end would pass
// n. Producing fewer than MinFolds is a data error.
func (c WalkForwardConfig) Folds(n int) ([]Fold, error) {
	const op = "stats.Folds"
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if need := c.InSample + c.Gap + c.OutOfSample; n < need {
		return nil, errs.Dataf(op, "need at least %d bars, have %d", need, n)
	}
	var folds []Fold
	for start := 0; ; start += c.Step {
		isEnd := start + c.InSample
		oosStart := isEnd + c.Gap
		oosEnd := oosStart + c.OutOfSample
		if oosEnd > n {
			break
		}
		folds = append(folds, Fold{Index: len(folds), ISStart: start, ISEnd: isEnd, OOSStart: oosStart, OOSEnd: oosEnd})
	}
	if len(folds) < c.MinFolds {
		return nil, errs.Dataf(op, "need at least %d folds, %d bars give %d", c.MinFolds, n, len(folds))
	}
	return folds, nil
}

// FoldResult compares the selected config in and out of sample.
type FoldResult struct {
	Fold             Fold    `json:"fold"`
	SelectedConfigID string  `json:"selected_config_id"`
	SelectedName     string  `json:"selected_name"`
	Candidates       int     `json:"candidates"`
	ISScore          float64 `json:"is_score"`
	ISSharpe         float64 `json:"is_sharpe"`
	OOSSharpe        float64 `json:"oos_sharpe"`
	ISCAGR           float64 `json:"is_cagr"`
	OOSCAGR          float64 `json:"oos_cagr"`
	ISMaxDrawdown    float64 `json:"is_max_drawdown"`
	OOSMaxDrawdown   float64 `json:"oos_max_drawdown"`
	OOSTrades        int     `json:"oos_trades"`
}

// Degradation is OOS over IS Sharpe; 1 when the IS Sharpe is zero.
func (f FoldResult) Degradation() float64 {
	if math.Abs(f.ISSharpe) < 1e-10 {
		return 1
	}
	return f.OOSSharpe / f.ISSharpe
}

// SkippedFold is a fold without a usable selection or evaluation.
type SkippedFold struct {
	Fold   Fold   `json:"fold"`
	Reason string `json:"reason"`
}

// WalkForwardResult aggregates folds.
type WalkForwardResult struct {
	Symbol          string            `json:"symbol"`
	Config          WalkForwardConfig `json:"config"`
	Folds           []FoldResult      `json:"folds"`
	Skipped         []SkippedFold     `json:"skipped,omitempty"`
	Cancelled       bool              `json:"cancelled"`
	MeanOOSSharpe   float64           `json:"mean_oos_sharpe"`
	StdOOSSharpe    float64           `json:"std_oos_sharpe"`
	MeanOOSCAGR     float64           `json:"mean_oos_cagr"`
	MeanOOSDrawdown float64           `json:"mean_oos_drawdown"`
	MeanDegradation float64           `json:"mean_degradation"`
	PctProfitable   float64           `json:"pct_profitable"`
	TotalOOSTrades  int               `json:"total_oos_trades"`
	PassesBasic     bool              `json:"passes_basic"`
	PassesStrict    bool              `json:"passes_strict"`
	Grade           string            `json:"grade"`
}

func (r *WalkForwardResult) aggregate() {
	n := len(r.Folds)
	if n == 0 {
		r.Grade = "F"
		return
	}
	oos := make([]float64, n)
	profitable := 0
	var cagr, dd, deg float64
	for i, f := range r.Folds {
		oos[i] = f.OOSSharpe
		cagr += f.OOSCAGR
		dd += f.OOSMaxDrawdown
		deg += f.Degradation()
		r.TotalOOSTrades += f.OOSTrades
		if f.OOSSharpe > 0 {
			profitable++
		}
	}
	mean, variance := stat.PopMeanVariance(oos, nil)
	r.MeanOOSSharpe = mean
	r.StdOOSSharpe = math.Sqrt(variance)
	r.MeanOOSCAGR = cagr / float64(n)
	r.MeanOOSDrawdown = dd / float64(n)
	r.MeanDegradation = deg / float64(n)
	r.PctProfitable = float64(profitable) / float64(n)

	r.PassesBasic = r.MeanOOSSharpe > 0.3 && r.PctProfitable >= 0.6 && r.MeanDegradation > 0.5
	r.PassesStrict = r.MeanOOSSharpe > 0.5 && r.PctProfitable >= 0.75 && r.MeanDegradation > 0.7 && r.StdOOSSharpe < 0.5
	switch {
	case r.PassesStrict && r.MeanOOSSharpe > 0.8:
		r.Grade = "A"
	case r.PassesStrict:
		r.Grade = "B"
	case r.PassesBasic:
		r.Grade = "C"
	case r.MeanOOSSharpe > 0 && r.PctProfitable > 0.5:
		r.Grade = "D"
	default:
		r.Grade = "F"
	}
}

// Scorer ranks in-sample metrics; leaderboard profiles provide one.
type Scorer func(metrics.Metrics) float64

// SharpeScore ranks by Sharpe ratio.
func SharpeScore(m metrics.Metrics) float64 { return m.Sharpe.Or(0) }

// WalkForwardOptions tunes candidate evaluation.
type WalkForwardOptions struct {
	Workers int
	Cache   *indicators.Cache
	Score   Scorer
}

// WalkForward selects the best candidate on each in-sample window and
// evaluates only that candidate on the following out-of-sample window.
// Selection never sees out-of-sample bars. Candidates are re-targeted to the
// series symbol. Cancellation stops before the next fold and marks the result.
func WalkForward(ctx context.Context, s *data.Series, candidates []sweep.Config, exec backtest.ExecutionConfig, cfg WalkForwardConfig, opts WalkForwardOptions) (*WalkForwardResult, error) {
	const op = "stats.WalkForward"
	if err := exec.Validate(); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errs.Configf(op, "no candidate configs")
	}
	folds, err := cfg.Folds(s.Len())
	if err != nil {
		return nil, err
	}
	score := opts.Score
	if score == nil {
		score = SharpeScore
	}
	cache := opts.Cache
	if cache == nil {
		cache = indicators.NewCache()
	}
	configs := make([]sweep.Config, len(candidates))
	for i, c := range candidates {
		c.Symbol = s.Symbol
		c.DateRange = data.DateRange{}
		configs[i] = c
	}

	res := &WalkForwardResult{Symbol: s.Symbol, Config: cfg}
	for _, fold := range folds {
		if ctx.Err() != nil {
			res.Cancelled = true
			break
		}
		is := s.Slice(fold.ISStart, fold.ISEnd)
		orch := &sweep.Orchestrator{Workers: opts.Workers, Cache: cache}
		out, err := orch.Run(ctx, map[string]*data.Series{s.Symbol: is}, configs, exec)
		if err != nil {
			return nil, err
		}
		if out.Cancelled {
			res.Cancelled = true
			break
		}

		var best *backtest.Result
		bestScore := math.Inf(-1)
		for _, r := range out.Results {
			if sc := score(r.Metrics); best == nil || sc > bestScore {
				best, bestScore = r, sc
			}
		}
		if best == nil {
			res.Skipped = append(res.Skipped, SkippedFold{Fold: fold, Reason: "no candidate succeeded in sample"})
			continue
		}
		selected, _ := configFor(configs, best.ConfigID)

		oosExec := exec
		oosExec.Cost = selected.Cost
		oos, err := backtest.RunBacktest(s.Slice(fold.OOSStart, fold.OOSEnd), selected.Strategy(), oosExec, cache)
		if err != nil {
			res.Skipped = append(res.Skipped, SkippedFold{Fold: fold, Reason: err.Error()})
			continue
		}
		res.Folds = append(res.Folds, FoldResult{
			Fold:             fold,
			SelectedConfigID: best.ConfigID,
			SelectedName:     best.Name,
			Candidates:       len(out.Results),
			ISScore:          bestScore,
			ISSharpe:         best.Metrics.Sharpe.Or(0),
			OOSSharpe:        oos.Metrics.Sharpe.Or(0),
			ISCAGR:           best.Metrics.CAGR.Or(0),
			OOSCAGR:          oos.Metrics.CAGR.Or(0),
			ISMaxDrawdown:    best.Metrics.MaxDrawdown.Or(0),
			OOSMaxDrawdown:   oos.Metrics.MaxDrawdown.Or(0),
			OOSTrades:        oos.Metrics.NumTrades,
		})
	}
	res.aggregate()

	log.Info().
		Str("symbol", s.Symbol).
		Int("folds", len(res.Folds)).
		Int("skipped", len(res.Skipped)).
		Float64("mean_oos_sharpe", res.MeanOOSSharpe).
		Str("grade", res.Grade).
		Msg("Walk-forward completed")
	return res, nil
}

func configFor(configs []sweep.Config, id string) (sweep.Config, bool) {
	for _, c := range configs {
		if c.ID() == id {
			return c, true
		}
	}
	return sweep.Config{}, false
}
