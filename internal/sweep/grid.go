package sweep

import (
	"sort"
	"strings"

	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/strategy"
)

// Grid is a parameter grid for one strategy. Combinations are generated in
// sorted parameter-name order.
type Grid struct {
	Strategy strategy.Kind        `json:"strategy" yaml:"strategy"`
	Params   map[string][]float64 `json:"params" yaml:"params"`
	// SkipInvalid drops combinations the strategy rejects, such as a fast
	// average not below the slow one. Otherwise they surface as failures.
	SkipInvalid bool `json:"skip_invalid" yaml:"skip_invalid"`
}

// Size is the number of combinations before filtering.
func (g Grid) Size() int {
	if len(g.Params) == 0 {
		return 1
	}
	n := 1
	for _, vs := range g.Params {
		n *= len(vs)
	}
	return n
}

// Combinations returns the cartesian product of the grid. The last name in
// sorted order varies fastest.
func (g Grid) Combinations() []strategy.Params {
	names := make([]string, 0, len(g.Params))
	for name := range g.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	out := []strategy.Params{{}}
	for _, name := range names {
		values := g.Params[name]
		next := make([]strategy.Params, 0, len(out)*len(values))
		for _, base := range out {
			for _, v := range values {
				p := base.Clone()
				p[name] = v
				next = append(next, p)
			}
		}
		out = next
	}
	return out
}

// Depth selects how thorough a preset grid is.
type Depth string

const (
	Quick         Depth = "quick"
	Standard      Depth = "standard"
	Comprehensive Depth = "comprehensive"
)

// ParseDepth validates a depth name.
func ParseDepth(s string) (Depth, error) {
	switch d := Depth(strings.ToLower(strings.TrimSpace(s))); d {
	case Quick, Standard, Comprehensive:
		return d, nil
	case "":
		return Standard, nil
	default:
		return "", errs.Configf("sweep.ParseDepth", "unknown depth %q", s)
	}
}

var presets = map[strategy.Kind]map[Depth]map[string][]float64{
	strategy.Donchian: {
		Quick:         {"entry_lookback": {20, 55}, "exit_lookback": {10, 20}},
		Standard:      {"entry_lookback": {10, 20, 30, 40, 55}, "exit_lookback": {5, 10, 15, 20}},
		Comprehensive: {"entry_lookback": {10, 15, 20, 30, 40, 55, 80, 100}, "exit_lookback": {5, 10, 15, 20, 25, 40}},
	},
	strategy.MACrossover: {
		Quick:         {"fast": {20, 50}, "slow": {50, 200}, "ema": {0}},
		Standard:      {"fast": {10, 20, 50}, "slow": {50, 100, 200}, "ema": {0, 1}},
		Comprehensive: {"fast": {5, 9, 10, 20, 50}, "slow": {20, 21, 50, 100, 200}, "ema": {0, 1}},
	},
	strategy.TSMOM: {
		Quick:         {"lookback": {63, 252}},
		Standard:      {"lookback": {21, 63, 126, 252}},
		Comprehensive: {"lookback": {21, 42, 63, 126, 189, 252}},
	},
	strategy.Keltner: {
		Quick:         {"ema_period": {20}, "atr_period": {10}, "multiplier": {1.5, 2}},
		Standard:      {"ema_period": {10, 20, 50}, "atr_period": {10, 20}, "multiplier": {1.5, 2, 2.5}},
		Comprehensive: {"ema_period": {10, 20, 30, 50}, "atr_period": {10, 14, 20}, "multiplier": {1, 1.5, 2, 2.5, 3}},
	},
	strategy.Bollinger: {
		Quick:         {"period": {20}, "std_mult": {1.5, 2}},
		Standard:      {"period": {10, 20, 50}, "std_mult": {1.5, 2, 2.5}},
		Comprehensive: {"period": {10, 15, 20, 30, 50}, "std_mult": {1, 1.5, 2, 2.5, 3}},
	},
	strategy.DMIADX: {
		Quick:         {"period": {14}, "adx_threshold": {20, 25}},
		Standard:      {"period": {10, 14, 20}, "adx_threshold": {20, 25, 30}},
		Comprehensive: {"period": {7, 10, 14, 20, 28}, "adx_threshold": {15, 20, 25, 30, 35}},
	},
}

// Preset returns the built-in grid for a strategy at a depth.
func Preset(kind strategy.Kind, depth Depth) (Grid, error) {
	byDepth, ok := presets[kind]
	if !ok {
		return Grid{}, errs.Configf("sweep.Preset", "no preset for strategy %q", kind)
	}
	params, ok := byDepth[depth]
	if !ok {
		return Grid{}, errs.Configf("sweep.Preset", "unknown depth %q", depth)
	}
	g := Grid{Strategy: kind, Params: make(map[string][]float64, len(params)), SkipInvalid: true}
	for name, vs := range params {
		g.Params[name] = append([]float64(nil), vs...)
	}
	return g, nil
}

// TurtleS1 is the classic 20/10 Donchian system.
func TurtleS1() strategy.Config {
	return strategy.Config{Kind: strategy.Donchian, Params: strategy.Params{"entry_lookback": 20, "exit_lookback": 10}}
}

// TurtleS2 is the slower 55/20 Donchian system.
func TurtleS2() strategy.Config {
	return strategy.Config{Kind: strategy.Donchian, Params: strategy.Params{"entry_lookback": 55, "exit_lookback": 20}}
}

// Expand builds configs for every grid combination on every symbol,
// keeping the first occurrence of each Config ID.
func Expand(grids []Grid, symbols []string, dr data.DateRange, cost backtest.CostModel) []Config {
	seen := make(map[string]bool)
	var out []Config
	for _, g := range grids {
		for _, params := range g.Combinations() {
			if g.SkipInvalid {
				if _, err := strategy.Normalize(g.Strategy, params); err != nil {
					continue
				}
			}
			for _, sym := range symbols {
				c := Config{StrategyID: g.Strategy, Params: params, Symbol: sym, DateRange: dr, Cost: cost}
				id := c.ID()
				if seen[id] {
					continue
				}
				seen[id] = true
				out = append(out, c)
			}
		}
	}
	return out
}
