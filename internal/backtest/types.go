package backtest

import (
	"fmt"
	"time"

	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/strategy"
)

// Side of a fill.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "sell"
	}
	return "buy"
}

// MarshalText renders the side by name.
func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// CostModel charges fees and slippage in basis points per side.
type CostModel struct {
	FeeBps      float64 `json:"fee_bps" yaml:"fee_bps"`
	SlippageBps float64 `json:"slippage_bps" yaml:"slippage_bps"`
}

// TotalBps is the per-side cost used to order cost assumptions.
func (c CostModel) TotalBps() float64 { return c.FeeBps + c.SlippageBps }

func (c CostModel) String() string {
	return fmt.Sprintf("fee=%gbps slip=%gbps", c.FeeBps, c.SlippageBps)
}

// Validate rejects negative costs.
func (c CostModel) Validate() error {
	if c.FeeBps < 0 || c.SlippageBps < 0 {
		return errs.Configf("backtest.CostModel", "costs must be non-negative, got %s", c)
	}
	return nil
}

// SizingMode selects how entry quantity is computed.
type SizingMode string

const (
	SizeFixed          SizingMode = "fixed"
	SizeEquityFraction SizingMode = "equity_fraction"
)

// Sizing computes entry quantities.
type Sizing struct {
	Mode     SizingMode `json:"mode" yaml:"mode"`
	Quantity float64    `json:"quantity,omitempty" yaml:"quantity"`
	Fraction float64    `json:"fraction,omitempty" yaml:"fraction"`
}

// ExecutionConfig controls fills and accounting. A signal on bar i fills at
// the open of bar i+Delay, or at the close of bar i when SameBar is set.
type ExecutionConfig struct {
	InitialCash    float64   `json:"initial_cash" yaml:"initial_cash"`
	Delay          int       `json:"delay" yaml:"delay"`
	SameBar        bool      `json:"same_bar" yaml:"same_bar"`
	Cost           CostModel `json:"cost" yaml:"cost"`
	Sizing         Sizing    `json:"sizing" yaml:"sizing"`
	AllowShort     bool      `json:"allow_short" yaml:"allow_short"`
	PeriodsPerYear float64   `json:"periods_per_year" yaml:"periods_per_year"`
}

// DefaultExecutionConfig fills at the next open with the whole account.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		InitialCash:    100_000,
		Delay:          1,
		Sizing:         Sizing{Mode: SizeEquityFraction, Fraction: 1.0},
		PeriodsPerYear: 252,
	}
}

// Validate returns a configuration error for unusable settings.
func (e ExecutionConfig) Validate() error {
	const op = "backtest.ExecutionConfig"
	switch {
	case e.InitialCash <= 0:
		return errs.Configf(op, "initial cash must be positive, got %g", e.InitialCash)
	case e.Delay < 0:
		return errs.Configf(op, "delay must be non-negative, got %d", e.Delay)
	case e.Delay == 0 && !e.SameBar:
		return errs.Configf(op, "delay 0 requires same-bar mode")
	case e.PeriodsPerYear <= 0:
		return errs.Configf(op, "periods per year must be positive, got %g", e.PeriodsPerYear)
	}
	if err := e.Cost.Validate(); err != nil {
		return err
	}
	switch e.Sizing.Mode {
	case SizeFixed:
		if e.Sizing.Quantity <= 0 {
			return errs.Configf(op, "fixed sizing needs a positive quantity, got %g", e.Sizing.Quantity)
		}
	case SizeEquityFraction:
		if e.Sizing.Fraction <= 0 || e.Sizing.Fraction > 1 {
			return errs.Configf(op, "equity fraction must be in (0, 1], got %g", e.Sizing.Fraction)
		}
	default:
		return errs.Configf(op, "unknown sizing mode %q", e.Sizing.Mode)
	}
	return nil
}

// FillPolicy describes when signals execute.
func (e ExecutionConfig) FillPolicy() string {
	switch {
	case e.SameBar:
		return "same_bar_close"
	case e.Delay == 1:
		return "next_open"
	default:
		return fmt.Sprintf("open_t+%d", e.Delay)
	}
}

// Fill is one executed order.
type Fill struct {
	SignalIndex int                `json:"signal_index"`
	FillIndex   int                `json:"fill_index"`
	Timestamp   time.Time          `json:"timestamp"`
	Signal      strategy.Signal    `json:"signal"`
	Side        Side               `json:"side"`
	Direction   strategy.Direction `json:"direction"`
	Quantity    float64            `json:"quantity"`
	RawPrice    float64            `json:"raw_price"`
	Price       float64            `json:"price"`
	Fees        float64            `json:"fees"`
}

// Notional is the absolute traded value.
func (f Fill) Notional() float64 {
	n := f.Quantity * f.Price
	if n < 0 {
		return -n
	}
	return n
}

// Position is the holding of one run.
type Position struct {
	Direction  strategy.Direction `json:"direction"`
	Quantity   float64            `json:"quantity"`
	EntryPrice float64            `json:"entry_price"`
	EntryIndex int                `json:"entry_index"`
}

// Trade is a closed round trip.
type Trade struct {
	Direction strategy.Direction `json:"direction"`
	Entry     Fill               `json:"entry"`
	Exit      Fill               `json:"exit"`
	GrossPnl  float64            `json:"gross_pnl"`
	NetPnl    float64            `json:"net_pnl"`
	Return    float64            `json:"return"`
	BarsHeld  int                `json:"bars_held"`
}

// EquityPoint is the account marked to market at a bar close. Pnl is the
// mark-to-market change over the bar and Costs the fees charged on it.
type EquityPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	Cash          float64   `json:"cash"`
	PositionValue float64   `json:"position_value"`
	Equity        float64   `json:"equity"`
	Drawdown      float64   `json:"drawdown"`
	Pnl           float64   `json:"pnl"`
	Costs         float64   `json:"costs"`
}
