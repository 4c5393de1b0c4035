package stats

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/domain/indicators"
	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/metrics"
	"github.com/sawpanic/trendlab/internal/regime"
	"github.com/sawpanic/trendlab/internal/sweep"
)

// Method selects the analysis Compute runs.
type Method string

const (
	WalkForwardMethod Method = "walkforward"
	BootstrapMethod   Method = "bootstrap"
	RegimeSplit       Method = "regime"
	FDRCorrection     Method = "fdr"
)

// Methods lists every analysis.
func Methods() []Method {
	return []Method{WalkForwardMethod, BootstrapMethod, RegimeSplit, FDRCorrection}
}

// ParseMethod resolves a method name.
func ParseMethod(s string) (Method, error) {
	for _, m := range Methods() {
		if string(m) == s {
			return m, nil
		}
	}
	return "", errs.Configf("stats.ParseMethod", "unknown statistics method %q", s)
}

// Params configures every method; each reads only its own fields. Bars is
// required by walk-forward and regime analysis.
type Params struct {
	Bootstrap      BootstrapConfig
	WalkForward    WalkForwardConfig
	Regime         regime.Config
	Dimension      regime.Dimension
	Alpha          float64
	PeriodsPerYear float64
	Bars           map[string]*data.Series
	Exec           backtest.ExecutionConfig
	Score          Scorer
	Workers        int
	Cache          *indicators.Cache
}

// DefaultParams returns the standard settings without bars.
func DefaultParams() Params {
	return Params{
		Bootstrap:      DefaultBootstrapConfig(),
		WalkForward:    DefaultWalkForwardConfig(),
		Regime:         regime.DefaultConfig(),
		Dimension:      regime.ByVolatility,
		Alpha:          0.05,
		PeriodsPerYear: metrics.DefaultPeriodsPerYear,
		Exec:           backtest.DefaultExecutionConfig(),
	}
}

// BootstrapEntry is the bootstrap analysis of one run.
type BootstrapEntry struct {
	ConfigID     string          `json:"config_id"`
	Name         string          `json:"name"`
	Symbol       string          `json:"symbol"`
	Observations int             `json:"observations"`
	Sharpe       BootstrapResult `json:"sharpe"`
	Mean         BootstrapResult `json:"mean"`
	Returns      Summary         `json:"returns"`
	Grade        Grade           `json:"grade"`
}

// RegimeEntry is the regime split of one run.
type RegimeEntry struct {
	ConfigID  string           `json:"config_id"`
	Name      string           `json:"name"`
	Symbol    string           `json:"symbol"`
	Dimension regime.Dimension `json:"dimension"`
	Slices    []RegimeSlice    `json:"slices"`
}

// PValueEntry is the significance of one run's mean return.
type PValueEntry struct {
	ConfigID     string  `json:"config_id"`
	Name         string  `json:"name"`
	Symbol       string  `json:"symbol"`
	PValue       float64 `json:"p_value"`
	BHAdjusted   float64 `json:"bh_adjusted"`
	BHRejected   bool    `json:"bh_rejected"`
	HolmAdjusted float64 `json:"holm_adjusted"`
	HolmRejected bool    `json:"holm_rejected"`
}

// FDRReport applies both corrections across all runs.
type FDRReport struct {
	Alpha   float64       `json:"alpha"`
	Entries []PValueEntry `json:"entries"`
	BH      *Correction   `json:"bh"`
	Holm    *Correction   `json:"holm"`
}

// SkippedResult is a run an analysis could not use.
type SkippedResult struct {
	ConfigID string `json:"config_id"`
	Reason   string `json:"reason"`
}

// Report holds the output of one method.
type Report struct {
	Method      Method               `json:"method"`
	GeneratedAt time.Time            `json:"generated_at"`
	Results     int                  `json:"results"`
	Cancelled   bool                 `json:"cancelled"`
	Bootstrap   []BootstrapEntry     `json:"bootstrap,omitempty"`
	WalkForward []*WalkForwardResult `json:"walk_forward,omitempty"`
	Regimes     []RegimeEntry        `json:"regimes,omitempty"`
	FDR         *FDRReport           `json:"fdr,omitempty"`
	Skipped     []SkippedResult      `json:"skipped,omitempty"`
}

// Compute runs one analysis over sweep results. Inputs are never modified.
func Compute(ctx context.Context, results []*backtest.Result, method Method, p Params) (*Report, error) {
	const op = "stats.Compute"
	if len(results) == 0 {
		return nil, errs.Dataf(op, "no results to analyze")
	}
	if p.PeriodsPerYear <= 0 {
		p.PeriodsPerYear = metrics.DefaultPeriodsPerYear
	}
	rep := &Report{Method: method, GeneratedAt: time.Now().UTC(), Results: len(results)}

	var err error
	switch method {
	case BootstrapMethod:
		err = computeBootstrap(rep, results, p)
	case FDRCorrection:
		err = computeFDR(rep, results, p)
	case RegimeSplit:
		err = computeRegimes(rep, results, p)
	case WalkForwardMethod:
		err = computeWalkForward(ctx, rep, results, p)
	default:
		return nil, errs.Configf(op, "unknown statistics method %q", method)
	}
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("method", string(method)).
		Int("results", len(results)).
		Int("skipped", len(rep.Skipped)).
		Msg("Statistics computed")
	return rep, nil
}

func computeBootstrap(rep *Report, results []*backtest.Result, p Params) error {
	if err := p.Bootstrap.Validate(); err != nil {
		return err
	}
	for _, r := range results {
		returns := r.Returns()
		entry := BootstrapEntry{ConfigID: r.ConfigID, Name: r.Name, Symbol: r.Symbol, Observations: len(returns)}
		sharpe, err := BootstrapSharpe(returns, p.PeriodsPerYear, p.Bootstrap)
		if err != nil {
			rep.Skipped = append(rep.Skipped, SkippedResult{ConfigID: r.ConfigID, Reason: err.Error()})
			continue
		}
		entry.Sharpe = sharpe
		entry.Mean, _ = BootstrapMean(returns, p.Bootstrap)
		entry.Returns, _ = Summarize(returns)
		entry.Grade = GradeSharpe(sharpe, len(returns))
		rep.Bootstrap = append(rep.Bootstrap, entry)
	}
	return nil
}

func computeFDR(rep *Report, results []*backtest.Result, p Params) error {
	alpha := p.Alpha
	if alpha == 0 {
		alpha = 0.05
	}
	pvals := make([]float64, len(results))
	for i, r := range results {
		pv, err := OneSidedMeanPValue(r.Returns())
		if err != nil {
			// too short to test: counted as a non-discovery
			pv = maxPValue
		}
		pvals[i] = pv
	}
	bh, err := BenjaminiHochberg(pvals, alpha)
	if err != nil {
		return err
	}
	holm, err := Holm(pvals, alpha)
	if err != nil {
		return err
	}
	fdr := &FDRReport{Alpha: alpha, BH: bh, Holm: holm, Entries: make([]PValueEntry, len(results))}
	for i, r := range results {
		fdr.Entries[i] = PValueEntry{
			ConfigID:     r.ConfigID,
			Name:         r.Name,
			Symbol:       r.Symbol,
			PValue:       pvals[i],
			BHAdjusted:   bh.Adjusted[i],
			BHRejected:   bh.Rejected[i],
			HolmAdjusted: holm.Adjusted[i],
			HolmRejected: holm.Rejected[i],
		}
	}
	rep.FDR = fdr
	return nil
}

func computeRegimes(rep *Report, results []*backtest.Result, p Params) error {
	dim := p.Dimension
	if dim == "" {
		dim = regime.ByVolatility
	}
	cfg := p.Regime
	if cfg == (regime.Config{}) {
		cfg = regime.DefaultConfig()
	}
	c, err := regime.NewClassifier(cfg, p.Cache)
	if err != nil {
		return err
	}
	labelled := make(map[string][]string)
	for _, r := range results {
		s := p.Bars[r.Symbol]
		if s == nil {
			rep.Skipped = append(rep.Skipped, SkippedResult{ConfigID: r.ConfigID, Reason: "no bars for " + r.Symbol})
			continue
		}
		labels, ok := labelled[r.Symbol]
		if !ok {
			l, err := c.Classify(s)
			if err != nil {
				return err
			}
			labels = l.Strings(dim)
			labelled[r.Symbol] = labels
		}
		aligned, err := AlignLabels(s, labels, r)
		if err == nil {
			var slices []RegimeSlice
			if slices, err = RegimeSlices(r, aligned, p.PeriodsPerYear); err == nil {
				rep.Regimes = append(rep.Regimes, RegimeEntry{ConfigID: r.ConfigID, Name: r.Name, Symbol: r.Symbol, Dimension: dim, Slices: slices})
				continue
			}
		}
		rep.Skipped = append(rep.Skipped, SkippedResult{ConfigID: r.ConfigID, Reason: err.Error()})
	}
	return nil
}

// computeWalkForward treats the results of each symbol as the candidate set
// and re-runs selection fold by fold.
func computeWalkForward(ctx context.Context, rep *Report, results []*backtest.Result, p Params) error {
	cfg := p.WalkForward
	if cfg == (WalkForwardConfig{}) {
		cfg = DefaultWalkForwardConfig()
	}
	bySymbol := make(map[string][]sweep.Config)
	seen := make(map[string]bool)
	for _, r := range results {
		c := sweep.Config{StrategyID: r.Strategy.Kind, Params: r.Strategy.Params, Symbol: r.Symbol, Cost: p.Exec.Cost}
		if id := c.ID(); !seen[id] {
			seen[id] = true
			bySymbol[r.Symbol] = append(bySymbol[r.Symbol], c)
		}
	}
	symbols := make([]string, 0, len(bySymbol))
	for s := range bySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	opts := WalkForwardOptions{Workers: p.Workers, Cache: p.Cache, Score: p.Score}
	for _, sym := range symbols {
		if ctx.Err() != nil {
			rep.Cancelled = true
			break
		}
		s := p.Bars[sym]
		if s == nil {
			rep.Skipped = append(rep.Skipped, SkippedResult{ConfigID: sym, Reason: "no bars for " + sym})
			continue
		}
		wf, err := WalkForward(ctx, s, bySymbol[sym], p.Exec, cfg, opts)
		if err != nil {
			if errs.Is(err, errs.Configuration) {
				return err
			}
			rep.Skipped = append(rep.Skipped, SkippedResult{ConfigID: sym, Reason: err.Error()})
			continue
		}
		rep.WalkForward = append(rep.WalkForward, wf)
		if wf.Cancelled {
			rep.Cancelled = true
			break
		}
	}
	return nil
}
