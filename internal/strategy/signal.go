package strategy

import "fmt"

// Signal is a strategy's decision for one bar. Flat means no action.
type Signal int

const (
	Flat Signal = iota
	EnterLong
	ExitLong
	EnterShort
	ExitShort
)

func (s Signal) String() string {
	switch s {
	case Flat:
		return "flat"
	case EnterLong:
		return "enter_long"
	case ExitLong:
		return "exit_long"
	case EnterShort:
		return "enter_short"
	case ExitShort:
		return "exit_short"
	default:
		return fmt.Sprintf("signal(%d)", int(s))
	}
}

// MarshalText renders the signal by name.
func (s Signal) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// IsEntry reports whether the signal opens a position.
func (s Signal) IsEntry() bool { return s == EnterLong || s == EnterShort }

// IsExit reports whether the signal closes a position.
func (s Signal) IsExit() bool { return s == ExitLong || s == ExitShort }

// Direction is the side of a position.
type Direction int

const (
	Neutral Direction = iota
	Long
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// MarshalText renders the direction by name.
func (d Direction) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// Sign is +1 for long, -1 for short and 0 when flat.
func (d Direction) Sign() float64 {
	switch d {
	case Long:
		return 1
	case Short:
		return -1
	default:
		return 0
	}
}

// After returns the direction held once sig has been applied. Signals that
// do not fit the current direction leave it unchanged.
func (d Direction) After(sig Signal) Direction {
	switch {
	case d == Neutral && sig == EnterLong:
		return Long
	case d == Neutral && sig == EnterShort:
		return Short
	case d == Long && sig == ExitLong:
		return Neutral
	case d == Short && sig == ExitShort:
		return Neutral
	default:
		return d
	}
}
