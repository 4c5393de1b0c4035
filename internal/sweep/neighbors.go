package sweep

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/errs"
)

// NeighborReport measures how a config's metric compares to configs one
// and two grid steps away.
type NeighborReport struct {
	ConfigID   string    `json:"config_id"`
	Metric     string    `json:"metric"`
	Value      float64   `json:"value"`
	Neighbors1 []float64 `json:"neighbors_1"`
	Neighbors2 []float64 `json:"neighbors_2"`
	Variance   float64   `json:"variance"`
	// Stability is 1/(1+dev/sd) where dev is the distance from the
	// neighbor mean; 1 when neighbors do not vary.
	Stability float64 `json:"stability"`
}

// NeighborSensitivity locates the target config in the grid and compares it
// with results whose parameters sit at most two grid steps away on every
// axis, for the same symbol and strategy.
func NeighborSensitivity(g Grid, results []*backtest.Result, target *backtest.Result, metric string) (*NeighborReport, error) {
	const op = "sweep.NeighborSensitivity"
	targetVal, ok := target.Metrics.Lookup(metric)
	if !ok {
		return nil, errs.Configf(op, "unknown metric %q", metric)
	}
	pos, ok := gridPosition(g, target)
	if !ok {
		return nil, errs.Configf(op, "config %s is not on the grid", target.ConfigID)
	}

	rep := &NeighborReport{ConfigID: target.ConfigID, Metric: metric, Value: targetVal.Or(0)}
	for _, r := range results {
		if r.ConfigID == target.ConfigID || r.Symbol != target.Symbol {
			continue
		}
		p, ok := gridPosition(g, r)
		if !ok {
			continue
		}
		dist := 0
		for name, idx := range pos {
			if d := abs(p[name] - idx); d > dist {
				dist = d
			}
		}
		v, _ := r.Metrics.Lookup(metric)
		switch dist {
		case 1:
			rep.Neighbors1 = append(rep.Neighbors1, v.Or(0))
		case 2:
			rep.Neighbors2 = append(rep.Neighbors2, v.Or(0))
		}
	}

	all := append(append([]float64(nil), rep.Neighbors1...), rep.Neighbors2...)
	rep.Stability = 1
	if len(all) == 0 {
		return rep, nil
	}
	mean, variance := stat.PopMeanVariance(all, nil)
	rep.Variance = variance
	if variance > 0 {
		dev := math.Abs(rep.Value - mean)
		rep.Stability = math.Min(1, 1/(1+dev/math.Max(math.Sqrt(variance), 0.001)))
	}
	return rep, nil
}

// gridPosition maps each grid parameter to the index of the result's value.
func gridPosition(g Grid, r *backtest.Result) (map[string]int, bool) {
	if r.Strategy.Kind != g.Strategy {
		return nil, false
	}
	pos := make(map[string]int, len(g.Params))
	for name, values := range g.Params {
		sorted := append([]float64(nil), values...)
		sort.Float64s(sorted)
		v, ok := r.Strategy.Params[name]
		if !ok {
			return nil, false
		}
		idx := sort.SearchFloat64s(sorted, v)
		if idx == len(sorted) || sorted[idx] != v {
			return nil, false
		}
		pos[name] = idx
	}
	return pos, true
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// BestBy returns the result with the highest value of a metric; undefined
// values rank last.
func BestBy(results []*backtest.Result, metric string) *backtest.Result {
	var best *backtest.Result
	bestVal := math.Inf(-1)
	for _, r := range results {
		v, ok := r.Metrics.Lookup(metric)
		if !ok {
			continue
		}
		if val := v.Or(math.Inf(-1)); best == nil || val > bestVal {
			best, bestVal = r, val
		}
	}
	return best
}
