package yolo

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/strategy"
	"github.com/sawpanic/trendlab/internal/sweep"
)

// Jitter perturbs every grid value by a signed random fraction in
// [-pct, +pct]. Integer parameters are rounded, values are clamped to the
// parameter's valid range, and duplicates collapse. Combinations the
// strategy rejects are skipped when the grid is expanded.
func Jitter(g sweep.Grid, pct float64, rng *rand.Rand) (sweep.Grid, error) {
	if pct < 0 || pct > 1 || math.IsNaN(pct) {
		return sweep.Grid{}, errs.Configf("yolo.Jitter", "jitter pct must be in [0, 1], got %g", pct)
	}
	specs, err := strategy.Specs(g.Strategy)
	if err != nil {
		return sweep.Grid{}, err
	}
	byName := make(map[string]strategy.ParamSpec, len(specs))
	for _, s := range specs {
		byName[s.Name] = s
	}

	// sorted names keep the rng draw order stable across runs
	names := make([]string, 0, len(g.Params))
	for name := range g.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	out := sweep.Grid{Strategy: g.Strategy, Params: make(map[string][]float64, len(g.Params)), SkipInvalid: true}
	for _, name := range names {
		spec, known := byName[name]
		seen := make(map[float64]bool)
		var values []float64
		for _, v := range g.Params[name] {
			j := v * (1 + (2*rng.Float64()-1)*pct)
			if known {
				j = clamp(spec, j)
			}
			if !seen[j] {
				seen[j] = true
				values = append(values, j)
			}
		}
		sort.Float64s(values)
		out.Params[name] = values
	}
	return out, nil
}

func clamp(spec strategy.ParamSpec, v float64) float64 {
	if spec.Integer {
		v = math.Round(v)
	}
	if v < spec.Min {
		v = spec.Min
	}
	if spec.Max > 0 && v > spec.Max {
		v = spec.Max
	}
	return v
}
