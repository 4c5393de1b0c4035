package stats

import (
	"math"
	"sort"

	"github.com/sawpanic/trendlab/internal/errs"
)

// CorrectionMethod names a multiple-comparison adjustment.
type CorrectionMethod string

const (
	BenjaminiHochbergMethod CorrectionMethod = "benjamini_hochberg"
	HolmMethod              CorrectionMethod = "holm"
	BonferroniMethod        CorrectionMethod = "bonferroni"
)

// Correction holds adjusted p-values in input order. A hypothesis is
// rejected when its adjusted p-value is below Alpha.
type Correction struct {
	Method     CorrectionMethod `json:"method"`
	Alpha      float64          `json:"alpha"`
	Raw        []float64        `json:"raw"`
	Adjusted   []float64        `json:"adjusted"`
	Rejected   []bool           `json:"rejected"`
	Rejections int              `json:"rejections"`
}

func checkPValues(op string, p []float64, alpha float64) error {
	if len(p) == 0 {
		return errs.Dataf(op, "no p-values")
	}
	if alpha <= 0 || alpha >= 1 {
		return errs.Configf(op, "alpha must be in (0, 1), got %g", alpha)
	}
	for i, v := range p {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return errs.Dataf(op, "p-value %d out of range: %g", i, v)
		}
	}
	return nil
}

// ascending returns indices of p ordered by value; ties keep input order.
func ascending(p []float64) []int {
	idx := make([]int, len(p))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return p[idx[a]] < p[idx[b]] })
	return idx
}

func finish(method CorrectionMethod, p, adjusted []float64, alpha float64) *Correction {
	c := &Correction{
		Method:   method,
		Alpha:    alpha,
		Raw:      append([]float64(nil), p...),
		Adjusted: adjusted,
		Rejected: make([]bool, len(p)),
	}
	for i, a := range adjusted {
		if a < alpha {
			c.Rejected[i] = true
			c.Rejections++
		}
	}
	return c
}

// BenjaminiHochberg controls the false discovery rate. Adjusted values are
// p*m/rank made monotone from the largest p-value down, capped at 1.
func BenjaminiHochberg(p []float64, alpha float64) (*Correction, error) {
	if err := checkPValues("stats.BenjaminiHochberg", p, alpha); err != nil {
		return nil, err
	}
	m := len(p)
	order := ascending(p)
	adjusted := make([]float64, m)
	adjusted[order[m-1]] = p[order[m-1]]
	for i := m - 2; i >= 0; i-- {
		idx := order[i]
		adj := math.Min(p[idx]*float64(m)/float64(i+1), 1)
		adjusted[idx] = math.Min(adj, adjusted[order[i+1]])
	}
	return finish(BenjaminiHochbergMethod, p, adjusted, alpha), nil
}

// Holm is the step-down family-wise correction: p*(m-i) for the i-th
// smallest value, made monotone non-decreasing, capped at 1.
func Holm(p []float64, alpha float64) (*Correction, error) {
	if err := checkPValues("stats.Holm", p, alpha); err != nil {
		return nil, err
	}
	m := len(p)
	order := ascending(p)
	adjusted := make([]float64, m)
	prev := 0.0
	for i, idx := range order {
		adj := math.Min(p[idx]*float64(m-i), 1)
		adjusted[idx] = math.Max(adj, prev)
		prev = adjusted[idx]
	}
	return finish(HolmMethod, p, adjusted, alpha), nil
}

// Bonferroni multiplies every p-value by the number of tests.
func Bonferroni(p []float64, alpha float64) (*Correction, error) {
	if err := checkPValues("stats.Bonferroni", p, alpha); err != nil {
		return nil, err
	}
	adjusted := make([]float64, len(p))
	for i, v := range p {
		adjusted[i] = math.Min(v*float64(len(p)), 1)
	}
	return finish(BonferroniMethod, p, adjusted, alpha), nil
}
