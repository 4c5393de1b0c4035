package strategy

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/domain/indicators"
	"github.com/sawpanic/trendlab/internal/errs"
)

// Strategy emits one signal per bar from prepared indicator lines and the
// current position. Signal(i, pos) reads nothing past index i.
type Strategy interface {
	Kind() Kind
	Name() string
	// Warmup is the first bar index at which a signal can be emitted.
	Warmup() int
	// Prepare computes the indicator lines for a series.
	Prepare(s *data.Series, cache *indicators.Cache) error
	Signal(i int, pos Direction) Signal
}

// Kind names a strategy family.
type Kind string

const (
	Donchian    Kind = "donchian"
	MACrossover Kind = "ma_crossover"
	TSMOM       Kind = "tsmom"
	Keltner     Kind = "keltner"
	Bollinger   Kind = "bollinger"
	DMIADX      Kind = "dmi_adx"
)

// Params is a strategy parameter assignment.
type Params map[string]float64

// Clone copies the assignment.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns the parameter names in sorted order.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p Params) String() string {
	parts := make([]string, 0, len(p))
	for _, k := range p.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%g", k, p[k]))
	}
	return strings.Join(parts, ",")
}

// Config selects a strategy and its parameters.
type Config struct {
	Kind   Kind   `json:"strategy_id" yaml:"strategy"`
	Params Params `json:"params" yaml:"params"`
}

// ParamSpec describes one parameter of a strategy.
type ParamSpec struct {
	Name    string  `json:"name"`
	Integer bool    `json:"integer"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"` // 0 means unbounded
	Default float64 `json:"default"`
}

func (ps ParamSpec) check(kind Kind, v float64) error {
	op := "strategy." + string(kind)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errs.Configf(op, "%s must be finite", ps.Name)
	}
	if ps.Integer && v != math.Trunc(v) {
		return errs.Configf(op, "%s must be an integer, got %g", ps.Name, v)
	}
	if v < ps.Min {
		return errs.Configf(op, "%s must be at least %g, got %g", ps.Name, ps.Min, v)
	}
	if ps.Max > 0 && v > ps.Max {
		return errs.Configf(op, "%s must be at most %g, got %g", ps.Name, ps.Max, v)
	}
	return nil
}

type entry struct {
	params []ParamSpec
	check  func(Params) error
	build  func(Params) Strategy
}

var registry = map[Kind]entry{
	Donchian: {
		params: []ParamSpec{
			{Name: "entry_lookback", Integer: true, Min: 1, Default: 20},
			{Name: "exit_lookback", Integer: true, Min: 1, Default: 10},
		},
		build: func(p Params) Strategy {
			return &donchian{entry: int(p["entry_lookback"]), exit: int(p["exit_lookback"])}
		},
	},
	MACrossover: {
		params: []ParamSpec{
			{Name: "fast", Integer: true, Min: 1, Default: 50},
			{Name: "slow", Integer: true, Min: 2, Default: 200},
			{Name: "ema", Integer: true, Min: 0, Max: 1, Default: 0},
		},
		check: func(p Params) error {
			if p["fast"] >= p["slow"] {
				return errs.Configf("strategy.ma_crossover", "fast %g must be below slow %g", p["fast"], p["slow"])
			}
			return nil
		},
		build: func(p Params) Strategy {
			return &maCrossover{fast: int(p["fast"]), slow: int(p["slow"]), ema: p["ema"] == 1}
		},
	},
	TSMOM: {
		params: []ParamSpec{
			{Name: "lookback", Integer: true, Min: 1, Default: 252},
		},
		build: func(p Params) Strategy {
			return &tsmom{lookback: int(p["lookback"])}
		},
	},
	Keltner: {
		params: []ParamSpec{
			{Name: "ema_period", Integer: true, Min: 1, Default: 20},
			{Name: "atr_period", Integer: true, Min: 1, Default: 10},
			{Name: "multiplier", Min: 0.1, Default: 2.0},
		},
		build: func(p Params) Strategy {
			return &keltner{emaPeriod: int(p["ema_period"]), atrPeriod: int(p["atr_period"]), mult: p["multiplier"]}
		},
	},
	Bollinger: {
		params: []ParamSpec{
			{Name: "period", Integer: true, Min: 2, Default: 20},
			{Name: "std_mult", Min: 0.1, Default: 2.0},
		},
		build: func(p Params) Strategy {
			return &bollinger{period: int(p["period"]), mult: p["std_mult"]}
		},
	},
	DMIADX: {
		params: []ParamSpec{
			{Name: "period", Integer: true, Min: 2, Default: 14},
			{Name: "adx_threshold", Min: 0, Max: 100, Default: 25},
		},
		build: func(p Params) Strategy {
			return &dmiADX{period: int(p["period"]), threshold: p["adx_threshold"]}
		},
	},
}

// Kinds lists the registered strategy families in sorted order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseKind validates a strategy name.
func ParseKind(name string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := registry[k]; !ok {
		return "", errs.Configf("strategy.ParseKind", "unknown strategy %q", name)
	}
	return k, nil
}

// Specs returns the parameter specs of a strategy family.
func Specs(kind Kind) ([]ParamSpec, error) {
	e, ok := registry[kind]
	if !ok {
		return nil, errs.Configf("strategy.Specs", "unknown strategy %q", kind)
	}
	return append([]ParamSpec(nil), e.params...), nil
}

// Normalize fills defaults and validates an assignment. Unknown names are
// rejected so every config is explicit and reproducible.
func Normalize(kind Kind, p Params) (Params, error) {
	e, ok := registry[kind]
	if !ok {
		return nil, errs.Configf("strategy.Normalize", "unknown strategy %q", kind)
	}
	known := make(map[string]bool, len(e.params))
	out := make(Params, len(e.params))
	for _, ps := range e.params {
		known[ps.Name] = true
		v, ok := p[ps.Name]
		if !ok {
			v = ps.Default
		}
		if err := ps.check(kind, v); err != nil {
			return nil, err
		}
		out[ps.Name] = v
	}
	for name := range p {
		if !known[name] {
			return nil, errs.Configf("strategy."+string(kind), "unknown parameter %q", name)
		}
	}
	if e.check != nil {
		if err := e.check(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// New builds a strategy from a validated assignment.
func New(kind Kind, p Params) (Strategy, error) {
	norm, err := Normalize(kind, p)
	if err != nil {
		return nil, err
	}
	return registry[kind].build(norm), nil
}

// FromConfig builds the strategy a config names.
func FromConfig(c Config) (Strategy, error) {
	return New(c.Kind, c.Params)
}
