package metrics

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

const (
	// ProfitFactorCap stands in for an infinite profit factor.
	ProfitFactorCap = 999.0
	// DefaultPeriodsPerYear annualizes daily bars.
	DefaultPeriodsPerYear = 252.0

	epsilon      = 1e-10
	daysPerYear  = 365.25
	hoursPerYear = 24 * daysPerYear
)

// Point is one marked-to-market equity observation.
type Point struct {
	Timestamp time.Time
	Equity    float64
}

// Trade is a closed round trip reduced to what the calculator needs.
type Trade struct {
	NetPnl float64
}

// Input carries everything Compute reads. InitialEquity defaults to the
// first point's equity.
type Input struct {
	Points         []Point
	Trades         []Trade
	InitialEquity  float64
	TradedNotional float64
	BarsInMarket   int
	PeriodsPerYear float64
}

// Metrics is the standard performance summary of one run.
type Metrics struct {
	TotalReturn  Value `json:"total_return" csv:"total_return"`
	CAGR         Value `json:"cagr" csv:"cagr"`
	Sharpe       Value `json:"sharpe" csv:"sharpe"`
	Sortino      Value `json:"sortino" csv:"sortino"`
	MaxDrawdown  Value `json:"max_drawdown" csv:"max_drawdown"`
	Calmar       Value `json:"calmar" csv:"calmar"`
	WinRate      Value `json:"win_rate" csv:"win_rate"`
	ProfitFactor Value `json:"profit_factor" csv:"profit_factor"`
	Turnover     Value `json:"turnover" csv:"turnover"`
	Exposure     Value `json:"exposure" csv:"exposure"`
	NumTrades    int   `json:"num_trades" csv:"num_trades"`
	Bars         int   `json:"bars" csv:"bars"`
}

// Compute derives the metrics of an equity curve and its trades. With fewer
// than two points every ratio is undefined. Near-zero denominators produce
// the 0 sentinel, or ProfitFactorCap for profits without losses.
func Compute(in Input) Metrics {
	m := Metrics{NumTrades: len(in.Trades), Bars: len(in.Points)}
	if len(in.Points) < 2 {
		return m
	}
	ppy := in.PeriodsPerYear
	if ppy <= 0 {
		ppy = DefaultPeriodsPerYear
	}

	initial := in.InitialEquity
	if initial <= 0 {
		initial = in.Points[0].Equity
	}
	first, last := in.Points[0], in.Points[len(in.Points)-1]
	years := last.Timestamp.Sub(first.Timestamp).Hours() / hoursPerYear

	equity := make([]float64, len(in.Points))
	for i, p := range in.Points {
		equity[i] = p.Equity
	}
	returns := Returns(equity)

	if math.Abs(initial) < epsilon {
		m.TotalReturn = Of(0)
	} else {
		m.TotalReturn = Of(last.Equity/initial - 1)
	}
	m.CAGR = Of(CAGR(initial, last.Equity, years))
	m.Sharpe = Of(Sharpe(returns, ppy))
	m.Sortino = Of(Sortino(returns, ppy))

	dd := MaxDrawdown(equity)
	m.MaxDrawdown = Of(dd)
	if dd < epsilon {
		m.Calmar = Of(0)
	} else {
		m.Calmar = Of(m.CAGR.Val / dd)
	}

	m.WinRate, m.ProfitFactor = tradeStats(in.Trades)

	avgCapital := (initial + last.Equity) / 2
	if years < epsilon || avgCapital < epsilon {
		m.Turnover = Of(0)
	} else {
		m.Turnover = Of(in.TradedNotional / avgCapital / years)
	}
	m.Exposure = Of(float64(in.BarsInMarket) / float64(len(in.Points)))
	return m
}

// Returns computes simple period returns of an equity curve. A step from
// non-positive equity counts as a zero return.
func Returns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	out := make([]float64, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] < epsilon {
			continue
		}
		out[i-1] = equity[i]/equity[i-1] - 1
	}
	return out
}

// CAGR compounds the growth from initial to final over years. Final
// equity at or below zero is a total loss.
func CAGR(initial, final, years float64) float64 {
	if initial < epsilon || years < epsilon {
		return 0
	}
	if final <= 0 {
		return -1
	}
	return math.Pow(final/initial, 1/years) - 1
}

// Sharpe is the annualized mean over sample standard deviation of returns,
// with a zero risk-free rate.
func Sharpe(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean, std := stat.MeanStdDev(returns, nil)
	if math.IsNaN(std) || std < epsilon {
		return 0
	}
	return mean / std * math.Sqrt(periodsPerYear)
}

// Sortino is the annualized mean over downside deviation below zero.
func Sortino(returns []float64, periodsPerYear float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	mean := stat.Mean(returns, nil)
	var downside float64
	for _, r := range returns {
		if r < 0 {
			downside += r * r
		}
	}
	dev := math.Sqrt(downside / float64(len(returns)))
	if dev < epsilon {
		return 0
	}
	return mean / dev * math.Sqrt(periodsPerYear)
}

// MaxDrawdown is the largest peak-to-trough decline as a positive fraction.
func MaxDrawdown(equity []float64) float64 {
	var peak, maxDD float64
	for i, e := range equity {
		if i == 0 || e > peak {
			peak = e
		}
		if peak < epsilon {
			continue
		}
		if dd := (peak - e) / peak; dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func tradeStats(trades []Trade) (winRate, profitFactor Value) {
	if len(trades) == 0 {
		return Of(0), Of(0)
	}
	var wins int
	var grossProfit, grossLoss float64
	for _, t := range trades {
		switch {
		case t.NetPnl > 0:
			wins++
			grossProfit += t.NetPnl
		case t.NetPnl < 0:
			grossLoss -= t.NetPnl
		}
	}
	winRate = Of(float64(wins) / float64(len(trades)))
	switch {
	case grossLoss > epsilon:
		profitFactor = Of(math.Min(grossProfit/grossLoss, ProfitFactorCap))
	case grossProfit > epsilon:
		profitFactor = Of(ProfitFactorCap)
	default:
		profitFactor = Of(0)
	}
	return winRate, profitFactor
}

// Names lists the metric names accepted by Lookup in display order.
var Names = []string{
	"total_return", "cagr", "sharpe", "sortino", "max_drawdown", "calmar",
	"win_rate", "profit_factor", "turnover", "exposure",
}

// Lookup returns a metric by its snake_case name.
func (m Metrics) Lookup(name string) (Value, bool) {
	switch name {
	case "total_return":
		return m.TotalReturn, true
	case "cagr":
		return m.CAGR, true
	case "sharpe":
		return m.Sharpe, true
	case "sortino":
		return m.Sortino, true
	case "max_drawdown":
		return m.MaxDrawdown, true
	case "calmar":
		return m.Calmar, true
	case "win_rate":
		return m.WinRate, true
	case "profit_factor":
		return m.ProfitFactor, true
	case "turnover":
		return m.Turnover, true
	case "exposure":
		return m.Exposure, true
	case "num_trades":
		return Of(float64(m.NumTrades)), true
	default:
		return Value{}, false
	}
}
