package metrics

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

const year = time.Duration(hoursPerYear) * time.Hour

func TestComputeNeedsTwoPoints(t *testing.T) {
	m := Compute(Input{Points: []Point{{t0, 100}}, Trades: []Trade{{NetPnl: 1}}})
	assert.False(t, m.Sharpe.Defined)
	assert.False(t, m.CAGR.Defined)
	assert.False(t, m.MaxDrawdown.Defined)
	assert.Equal(t, 1, m.NumTrades)

	b, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"sharpe":null`)
}

func TestComputeSteadyGrowth(t *testing.T) {
	m := Compute(Input{
		Points: []Point{
			{t0, 100},
			{t0.Add(year), 110},
			{t0.Add(2 * year), 121},
		},
		InitialEquity:  100,
		TradedNotional: 231,
		BarsInMarket:   2,
	})
	assert.InDelta(t, 0.21, m.TotalReturn.Val, 1e-12)
	assert.InDelta(t, 0.10, m.CAGR.Val, 1e-9)
	assert.Equal(t, Of(0), m.Sharpe, "zero volatility short-circuits")
	assert.Equal(t, Of(0), m.Sortino, "no downside short-circuits")
	assert.Equal(t, Of(0), m.MaxDrawdown)
	assert.Equal(t, Of(0), m.Calmar)
	assert.InDelta(t, 231/110.5/2, m.Turnover.Val, 1e-9)
	assert.InDelta(t, 2.0/3.0, m.Exposure.Val, 1e-12)
}

func TestSharpeUsesSampleStd(t *testing.T) {
	returns := []float64{0.01, -0.01, 0.02, 0.0}
	want := 0.005 / math.Sqrt(5e-4/3) * math.Sqrt(252)
	assert.InDelta(t, want, Sharpe(returns, 252), 1e-9)
	assert.Equal(t, 0.0, Sharpe([]float64{0.01}, 252))

	downside := math.Sqrt(1e-4 / 4)
	assert.InDelta(t, 0.005/downside*math.Sqrt(252), Sortino(returns, 252), 1e-9)
}

func TestMaxDrawdownAndCAGR(t *testing.T) {
	assert.InDelta(t, 0.5, MaxDrawdown([]float64{100, 120, 90, 130, 65}), 1e-12)
	assert.Equal(t, 0.0, MaxDrawdown([]float64{1, 2, 3}))
	assert.Equal(t, -1.0, CAGR(100, -5, 2))
	assert.Equal(t, 0.0, CAGR(100, 150, 0))
}

func TestTradeStats(t *testing.T) {
	tests := []struct {
		name   string
		trades []Trade
		win    float64
		pf     float64
	}{
		{"mixed", []Trade{{10}, {-5}, {5}}, 2.0 / 3.0, 3},
		{"no losses", []Trade{{10}}, 1, ProfitFactorCap},
		{"no trades", nil, 0, 0},
		{"only losses", []Trade{{-1}, {-2}}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			win, pf := tradeStats(tt.trades)
			assert.InDelta(t, tt.win, win.Val, 1e-12)
			assert.InDelta(t, tt.pf, pf.Val, 1e-12)
		})
	}
}

func TestValueEncoding(t *testing.T) {
	var v Value
	require.NoError(t, json.Unmarshal([]byte("null"), &v))
	assert.False(t, v.Defined)
	require.NoError(t, json.Unmarshal([]byte("1.5"), &v))
	assert.Equal(t, Of(1.5), v)

	s, err := Undefined().MarshalCSV()
	require.NoError(t, err)
	assert.Equal(t, "", s)
	s, err = Of(0.25).MarshalCSV()
	require.NoError(t, err)
	assert.Equal(t, "0.25", s)

	assert.False(t, Of(math.Inf(1)).Defined)
	assert.Equal(t, 7.0, Undefined().Or(7))

	m := Metrics{Sharpe: Of(1.2), NumTrades: 3}
	got, ok := m.Lookup("sharpe")
	assert.True(t, ok)
	assert.Equal(t, 1.2, got.Val)
	_, ok = m.Lookup("alpha")
	assert.False(t, ok)
}
