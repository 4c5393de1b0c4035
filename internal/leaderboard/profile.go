package leaderboard

import (
	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/metrics"
)

// Profile is a named ranking scheme
type Profile string

const (
	Balanced     Profile = "balanced"
	Conservative Profile = "conservative"
	Aggressive   Profile = "aggressive"
	SharpeOnly   Profile = "sharpe_only"
)

// Weights of the composite score. MaxDrawdown is subtracted.
type Weights struct {
	Sharpe      float64 `json:"sharpe"`
	Sortino     float64 `json:"sortino"`
	MaxDrawdown float64 `json:"max_drawdown"`
	WinRate     float64 `json:"win_rate"`
	CAGR        float64 `json:"cagr"`
}

var profileWeights = map[Profile]Weights{
	Balanced:     {Sharpe: 1.0, Sortino: 1.0, MaxDrawdown: 0.3, WinRate: 0.2, CAGR: 0.2},
	Conservative: {Sharpe: 0.8, Sortino: 1.2, MaxDrawdown: 0.5, WinRate: 0.3, CAGR: 0.1},
	Aggressive:   {Sharpe: 0.6, Sortino: 0.6, MaxDrawdown: 0.1, WinRate: 0.1, CAGR: 0.4},
	SharpeOnly:   {Sharpe: 1.0},
}

// Profiles lists every profile in display order.
func Profiles() []Profile {
	return []Profile{Balanced, Conservative, Aggressive, SharpeOnly}
}

// ParseProfile resolves a profile name; empty means balanced.
func ParseProfile(s string) (Profile, error) {
	if s == "" {
		return Balanced, nil
	}
	if _, ok := profileWeights[Profile(s)]; ok {
		return Profile(s), nil
	}
	return "", errs.Configf("leaderboard.ParseProfile", "unknown ranking profile %q", s)
}

// Weights returns the profile's weights.
func (p Profile) Weights() Weights { return profileWeights[p] }

// Score is the weighted composite of a run's metrics. Undefined metrics
// contribute 0.
func (p Profile) Score(m metrics.Metrics) float64 {
	w := p.Weights()
	return w.Sharpe*m.Sharpe.Or(0) +
		w.Sortino*m.Sortino.Or(0) -
		w.MaxDrawdown*m.MaxDrawdown.Or(0) +
		w.WinRate*m.WinRate.Or(0) +
		w.CAGR*m.CAGR.Or(0)
}
