package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/sawpanic/trendlab/internal/errs"
)

const (
	minPValue = 1e-10
	maxPValue = 1 - 1e-10
)

// OneSidedMeanPValue tests H0: mean <= 0 against H1: mean > 0. The normal
// approximation is used from 30 degrees of freedom, Student's t below.
// Results are clamped to [1e-10, 1-1e-10].
func OneSidedMeanPValue(sample []float64) (float64, error) {
	n := len(sample)
	if n < 3 {
		return 0, errs.Dataf("stats.OneSidedMeanPValue", "need at least 3 observations, got %d", n)
	}
	mean, std := stat.MeanStdDev(sample, nil)
	se := std / math.Sqrt(float64(n))
	if se < 1e-10 {
		if mean > 0 {
			return minPValue, nil
		}
		return maxPValue, nil
	}

	t := mean / se
	df := float64(n - 1)
	var p float64
	if df >= 30 {
		p = distuv.UnitNormal.Survival(t)
	} else {
		p = distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}.Survival(t)
	}
	return math.Min(math.Max(p, minPValue), maxPValue), nil
}

// PermutationResult is a two-sided permutation test of a difference in means.
type PermutationResult struct {
	Observed     float64 `json:"observed"`
	PValue       float64 `json:"p_value"`
	Permutations int     `json:"permutations"`
	Extreme      int     `json:"extreme"`
}

// PermutationTest shuffles the pooled groups and counts relabelings whose
// absolute mean difference is at least the observed one. The p-value is
// (extreme+1)/(permutations+1).
func PermutationTest(a, b []float64, permutations int, seed uint64) (PermutationResult, error) {
	const op = "stats.PermutationTest"
	if len(a) == 0 || len(b) == 0 {
		return PermutationResult{}, errs.Dataf(op, "both groups need observations: %d and %d", len(a), len(b))
	}
	if permutations < 1 {
		return PermutationResult{}, errs.Configf(op, "permutations must be positive, got %d", permutations)
	}
	observed := stat.Mean(a, nil) - stat.Mean(b, nil)
	pooled := append(append(make([]float64, 0, len(a)+len(b)), a...), b...)

	rng := newRand(seed)
	extreme := 0
	for i := 0; i < permutations; i++ {
		rng.Shuffle(len(pooled), func(x, y int) { pooled[x], pooled[y] = pooled[y], pooled[x] })
		diff := stat.Mean(pooled[:len(a)], nil) - stat.Mean(pooled[len(a):], nil)
		if math.Abs(diff) >= math.Abs(observed) {
			extreme++
		}
	}
	return PermutationResult{
		Observed:     observed,
		PValue:       float64(extreme+1) / float64(permutations+1),
		Permutations: permutations,
		Extreme:      extreme,
	}, nil
}
