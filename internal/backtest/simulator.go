package backtest

import (
	"math"

	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/strategy"
)

// Simulation is the accounting output of one run.
type Simulation struct {
	Fills           []Fill        `json:"fills"`
	Trades          []Trade       `json:"trades"`
	Equity          []EquityPoint `json:"equity"`
	OpenPosition    *Position     `json:"open_position,omitempty"`
	UnfilledSignals int           `json:"unfilled_signals"`
	SkippedEntries  int           `json:"skipped_entries"`
	BarsInMarket    int           `json:"bars_in_market"`
	TradedNotional  float64       `json:"traded_notional"`
}

type pending struct {
	signal      strategy.Signal
	signalIndex int
	fillIndex   int
}

// account is the mutable state of one run. It is owned by Simulate.
type account struct {
	exec  ExecutionConfig
	cash  float64
	pos   Position
	entry Fill
	// skipped is the side of an entry that could not be sized; its exit is
	// swallowed so the position stays in step with the signals.
	skipped strategy.Direction

	mark     float64
	barPnl   float64
	barCosts float64

	sim *Simulation
}

const accountingTolerance = 1e-8

// Simulate runs the fill and accounting state machine over signals, one per
// bar. Fills past the last bar are dropped and counted as unfilled. An exit
// without a matching position, or an entry while holding, is an invariant
// violation.
func Simulate(s *data.Series, signals []strategy.Signal, exec ExecutionConfig) (*Simulation, error) {
	const op = "backtest.Simulate"
	if err := exec.Validate(); err != nil {
		return nil, err
	}
	if len(signals) != s.Len() {
		return nil, errs.Configf(op, "got %d signals for %d bars", len(signals), s.Len())
	}

	acct := &account{
		exec: exec,
		cash: exec.InitialCash,
		sim:  &Simulation{Equity: make([]EquityPoint, 0, s.Len())},
	}
	var queue []pending
	prevEquity := exec.InitialCash
	peak := exec.InitialCash

	for i, bar := range s.Bars {
		acct.barPnl, acct.barCosts = 0, 0
		if i > 0 {
			acct.mark = s.Bars[i-1].Close
		}

		for len(queue) > 0 && queue[0].fillIndex == i {
			p := queue[0]
			queue = queue[1:]
			if err := acct.apply(p, bar, bar.Open); err != nil {
				return nil, err
			}
		}

		sig := signals[i]
		if sig != strategy.Flat {
			switch {
			case exec.SameBar:
				if err := acct.apply(pending{sig, i, i}, bar, bar.Close); err != nil {
					return nil, err
				}
			case i+exec.Delay >= s.Len():
				acct.sim.UnfilledSignals++
			default:
				queue = append(queue, pending{sig, i, i + exec.Delay})
			}
		}

		// mark to market at the close
		qty := acct.signedQty()
		acct.barPnl += qty * (bar.Close - acct.mark)
		pv := qty * bar.Close
		equity := acct.cash + pv
		expected := prevEquity + acct.barPnl - acct.barCosts
		if err := checkIdentity(op, i, acct.cash, pv, equity, expected); err != nil {
			return nil, err
		}
		if equity > peak {
			peak = equity
		}
		dd := 0.0
		if peak > 0 {
			dd = (peak - equity) / peak
		}
		acct.sim.Equity = append(acct.sim.Equity, EquityPoint{
			Timestamp:     bar.Timestamp,
			Cash:          acct.cash,
			PositionValue: pv,
			Equity:        equity,
			Drawdown:      dd,
			Pnl:           acct.barPnl,
			Costs:         acct.barCosts,
		})
		if acct.pos.Direction != strategy.Neutral {
			acct.sim.BarsInMarket++
		}
		prevEquity = equity
	}

	if acct.pos.Direction != strategy.Neutral {
		open := acct.pos
		acct.sim.OpenPosition = &open
	}
	return acct.sim, nil
}

func checkIdentity(op string, i int, cash, pv, equity, expected float64) error {
	tol := accountingTolerance * math.Max(1, math.Abs(equity))
	if d := math.Abs(cash + pv - equity); d > tol {
		return errs.Invariantf(op, "bar %d: cash %.10f + position %.10f != equity %.10f", i, cash, pv, equity)
	}
	if d := math.Abs(equity - expected); d > tol {
		return errs.Invariantf(op, "bar %d: equity %.10f drifted from previous + pnl - costs %.10f", i, equity, expected)
	}
	return nil
}

func (a *account) signedQty() float64 {
	return a.pos.Direction.Sign() * a.pos.Quantity
}

// apply executes one signal at raw price px on bar i.
func (a *account) apply(p pending, bar data.Bar, px float64) error {
	const op = "backtest.Simulate"
	switch p.signal {
	case strategy.EnterLong, strategy.EnterShort:
		if a.pos.Direction != strategy.Neutral || a.skipped != strategy.Neutral {
			return errs.Invariantf(op, "bar %d: %s while %s", p.signalIndex, p.signal, a.pos.Direction)
		}
		dir := strategy.Long
		side := Buy
		if p.signal == strategy.EnterShort {
			if !a.exec.AllowShort {
				return errs.Invariantf(op, "bar %d: short entry with shorts disabled", p.signalIndex)
			}
			dir, side = strategy.Short, Sell
		}
		price := a.slipped(side, px)
		qty := a.size(price)
		if qty <= 0 || math.IsNaN(qty) {
			a.skipped = dir
			a.sim.SkippedEntries++
			return nil
		}
		f := a.fill(p, bar, side, dir, qty, px, price)
		a.pos = Position{Direction: dir, Quantity: qty, EntryPrice: price, EntryIndex: p.fillIndex}
		a.entry = f
		return nil

	case strategy.ExitLong, strategy.ExitShort:
		want := strategy.Long
		side := Sell
		if p.signal == strategy.ExitShort {
			want, side = strategy.Short, Buy
		}
		if a.skipped == want {
			a.skipped = strategy.Neutral
			return nil
		}
		if a.pos.Direction != want {
			return errs.Invariantf(op, "bar %d: %s while %s", p.signalIndex, p.signal, a.pos.Direction)
		}
		price := a.slipped(side, px)
		f := a.fill(p, bar, side, want, a.pos.Quantity, px, price)
		gross := want.Sign() * (f.Price - a.entry.Price) * f.Quantity
		net := gross - a.entry.Fees - f.Fees
		t := Trade{
			Direction: want,
			Entry:     a.entry,
			Exit:      f,
			GrossPnl:  gross,
			NetPnl:    net,
			BarsHeld:  f.FillIndex - a.entry.FillIndex,
		}
		if n := a.entry.Notional(); n > 0 {
			t.Return = net / n
		}
		a.sim.Trades = append(a.sim.Trades, t)
		a.pos = Position{}
		return nil
	}
	return nil
}

// fill books the cash and mark-to-market effects of an execution.
func (a *account) fill(p pending, bar data.Bar, side Side, dir strategy.Direction, qty, raw, price float64) Fill {
	// carry the held quantity to the fill price before it changes
	a.barPnl += a.signedQty() * (price - a.mark)
	a.mark = price

	fees := math.Abs(qty*price) * a.exec.Cost.FeeBps / 1e4
	if side == Buy {
		a.cash -= qty*price + fees
	} else {
		a.cash += qty*price - fees
	}
	a.barCosts += fees

	f := Fill{
		SignalIndex: p.signalIndex,
		FillIndex:   p.fillIndex,
		Timestamp:   bar.Timestamp,
		Signal:      p.signal,
		Side:        side,
		Direction:   dir,
		Quantity:    qty,
		RawPrice:    raw,
		Price:       price,
		Fees:        fees,
	}
	a.sim.Fills = append(a.sim.Fills, f)
	a.sim.TradedNotional += f.Notional()
	return f
}

// slipped moves the raw price against the trader.
func (a *account) slipped(side Side, px float64) float64 {
	s := a.exec.Cost.SlippageBps / 1e4
	if side == Buy {
		return px * (1 + s)
	}
	return px * (1 - s)
}

func (a *account) size(price float64) float64 {
	if a.exec.Sizing.Mode == SizeFixed {
		return a.exec.Sizing.Quantity
	}
	budget := a.cash * a.exec.Sizing.Fraction
	if budget <= 0 || price <= 0 {
		return 0
	}
	return budget / (price * (1 + a.exec.Cost.FeeBps/1e4))
}
