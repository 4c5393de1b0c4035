package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for batch reporting.
type Kind int

const (
	Unknown Kind = iota
	Configuration
	Data
	InvariantViolation
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case Configuration:
		return "configuration_error"
	case Data:
		return "data_error"
	case InvariantViolation:
		return "simulation_invariant_violation"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalText renders the kind by name in JSON, YAML and CSV output.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Error is a classified error carrying the operation that raised it.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Op, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Configf reports invalid parameters. Raised before any simulation starts.
func Configf(op, format string, args ...any) error {
	return &Error{Kind: Configuration, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Dataf reports missing, insufficient or malformed bars.
func Dataf(op, format string, args ...any) error {
	return &Error{Kind: Data, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Invariantf reports a correctness defect inside a simulation.
func Invariantf(op, format string, args ...any) error {
	return &Error{Kind: InvariantViolation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// CancelledErr marks a normal terminal state reached through cancellation.
func CancelledErr(op string, cause error) error {
	return &Error{Kind: Cancelled, Op: op, Err: cause}
}

// Wrap attaches a kind to an existing error.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
