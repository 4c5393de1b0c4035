package main

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/strategy"
	"github.com/sawpanic/trendlab/internal/sweep"
)

const dateLayout = "2006-01-02"

// dataFlags selects the bars a command runs on.
func dataFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("data", pflag.ContinueOnError)
	fs.String("data", "", "OHLCV CSV file (required)")
	fs.String("symbol", "", "Symbol for files without a symbol column")
	fs.StringSlice("symbols", nil, "Restrict to these symbols")
	fs.String("timeframe", "", "Keep only rows of this timeframe")
	fs.String("universe", "", "Universe YAML mapping sectors to symbols")
	fs.String("from", "", "First bar date (YYYY-MM-DD)")
	fs.String("to", "", "Last bar date (YYYY-MM-DD)")
	return fs
}

// execFlags override the configured execution model.
func execFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("exec", pflag.ContinueOnError)
	fs.Float64("cash", 0, "Initial cash")
	fs.Int("delay", 0, "Bars between signal and fill")
	fs.Bool("same-bar", false, "Fill at the signal bar's close")
	fs.Float64("fee-bps", 0, "Fee per side in basis points")
	fs.Float64("slippage-bps", 0, "Slippage per side in basis points")
	fs.Bool("allow-short", false, "Take short signals")
	fs.Float64("fraction", 0, "Equity fraction per entry")
	return fs
}

// executionConfig applies changed exec flags over the config file values.
func executionConfig(cmd *cobra.Command) (backtest.ExecutionConfig, error) {
	exec := cfg.Execution
	f := cmd.Flags()
	if f.Changed("cash") {
		exec.InitialCash, _ = f.GetFloat64("cash")
	}
	if f.Changed("delay") {
		exec.Delay, _ = f.GetInt("delay")
	}
	if f.Changed("same-bar") {
		exec.SameBar, _ = f.GetBool("same-bar")
	}
	if f.Changed("fee-bps") {
		exec.Cost.FeeBps, _ = f.GetFloat64("fee-bps")
	}
	if f.Changed("slippage-bps") {
		exec.Cost.SlippageBps, _ = f.GetFloat64("slippage-bps")
	}
	if f.Changed("allow-short") {
		exec.AllowShort, _ = f.GetBool("allow-short")
	}
	if f.Changed("fraction") {
		exec.Sizing = backtest.Sizing{Mode: backtest.SizeEquityFraction}
		exec.Sizing.Fraction, _ = f.GetFloat64("fraction")
	}
	return exec, exec.Validate()
}

// loadBars reads the --data file through the bar cache.
func loadBars(cmd *cobra.Command) (map[string]*data.Series, *data.Universe, error) {
	const op = "cmd.loadBars"
	f := cmd.Flags()
	path, _ := f.GetString("data")
	if path == "" {
		return nil, nil, errs.Configf(op, "--data is required")
	}
	var universe *data.Universe
	if up, _ := f.GetString("universe"); up != "" {
		u, err := data.LoadUniverse(up)
		if err != nil {
			return nil, nil, err
		}
		universe = u
	}
	symbol, _ := f.GetString("symbol")
	timeframe, _ := f.GetString("timeframe")

	bars, err := data.NewLoader(data.NewAutoCache(), universe).Load(path, data.ParseOptions{
		DefaultSymbol: symbol,
		Timeframe:     timeframe,
		Universe:      universe,
	})
	if err != nil {
		return nil, nil, err
	}

	if only, _ := f.GetStringSlice("symbols"); len(only) > 0 {
		keep := make(map[string]*data.Series, len(only))
		for _, sym := range only {
			s, ok := bars[sym]
			if !ok {
				return nil, nil, errs.Dataf(op, "symbol %q not in %s", sym, path)
			}
			keep[sym] = s
		}
		bars = keep
	}
	return bars, universe, nil
}

func dateRange(cmd *cobra.Command) (data.DateRange, error) {
	const op = "cmd.dateRange"
	var dr data.DateRange
	for _, name := range []string{"from", "to"} {
		raw, _ := cmd.Flags().GetString(name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return dr, errs.Configf(op, "--%s: %v", name, err)
		}
		if name == "from" {
			dr.From = t
		} else {
			dr.To = t.Add(24*time.Hour - time.Nanosecond)
		}
	}
	if !dr.From.IsZero() && !dr.To.IsZero() && dr.To.Before(dr.From) {
		return dr, errs.Configf(op, "--to is before --from")
	}
	return dr, nil
}

// restrict trims every series to the date range.
func restrict(bars map[string]*data.Series, dr data.DateRange) map[string]*data.Series {
	if dr.IsZero() {
		return bars
	}
	out := make(map[string]*data.Series, len(bars))
	for sym, s := range bars {
		out[sym] = s.Between(dr.From, dr.To)
	}
	return out
}

// parseParams reads repeated key=value pairs.
func parseParams(pairs []string) (strategy.Params, error) {
	p := make(strategy.Params, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, errs.Configf("cmd.parseParams", "param %q is not key=value", kv)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, errs.Configf("cmd.parseParams", "param %s: %v", k, err)
		}
		p[strings.TrimSpace(k)] = f
	}
	return p, nil
}

// parseGrid reads repeated key=v1,v2,... axes.
func parseGrid(kind strategy.Kind, axes []string) (sweep.Grid, error) {
	g := sweep.Grid{Strategy: kind, Params: make(map[string][]float64, len(axes)), SkipInvalid: true}
	for _, axis := range axes {
		k, vs, ok := strings.Cut(axis, "=")
		if !ok || k == "" {
			return g, errs.Configf("cmd.parseGrid", "grid axis %q is not key=v1,v2", axis)
		}
		for _, raw := range strings.Split(vs, ",") {
			f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return g, errs.Configf("cmd.parseGrid", "grid axis %s: %v", k, err)
			}
			g.Params[k] = append(g.Params[k], f)
		}
	}
	return g, nil
}

// grids builds the sweep grids from --strategy, --grid and --depth. Explicit
// axes need exactly one strategy; otherwise each strategy uses its preset.
func grids(cmd *cobra.Command) ([]sweep.Grid, error) {
	const op = "cmd.grids"
	f := cmd.Flags()
	names, _ := f.GetStringSlice("strategy")
	axes, _ := f.GetStringArray("grid")
	depthName, _ := f.GetString("depth")
	if depthName == "" {
		depthName = string(cfg.Sweep.Depth)
	}
	depth, err := sweep.ParseDepth(depthName)
	if err != nil {
		return nil, err
	}

	kinds := strategy.Kinds()
	if len(names) > 0 {
		kinds = kinds[:0:0]
		for _, n := range names {
			k, err := strategy.ParseKind(n)
			if err != nil {
				return nil, err
			}
			kinds = append(kinds, k)
		}
	}
	if len(axes) > 0 {
		if len(kinds) != 1 {
			return nil, errs.Configf(op, "--grid needs exactly one --strategy")
		}
		g, err := parseGrid(kinds[0], axes)
		if err != nil {
			return nil, err
		}
		return []sweep.Grid{g}, nil
	}
	out := make([]sweep.Grid, 0, len(kinds))
	for _, k := range kinds {
		g, err := sweep.Preset(k, depth)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// singleSeries returns the series named by --symbol, or the only one loaded.
func singleSeries(cmd *cobra.Command, bars map[string]*data.Series) (*data.Series, error) {
	sym, _ := cmd.Flags().GetString("symbol")
	if sym != "" {
		if s, ok := bars[sym]; ok {
			return s, nil
		}
		return nil, errs.Dataf("cmd.singleSeries", "symbol %q not loaded", sym)
	}
	if len(bars) != 1 {
		syms := data.Symbols(bars)
		sort.Strings(syms)
		return nil, errs.Configf("cmd.singleSeries", "--symbol is required with several symbols loaded: %s", strings.Join(syms, ","))
	}
	for _, s := range bars {
		return s, nil
	}
	return nil, nil
}

func versions(bars map[string]*data.Series) map[string]string {
	out := make(map[string]string, len(bars))
	for sym, s := range bars {
		out[sym] = s.Version
	}
	return out
}
