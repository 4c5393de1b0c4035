package breakers

import (
	"time"

	cb "github.com/sony/gobreaker"
)

// Settings tune when a breaker opens.
type Settings struct {
	ConsecutiveFailures uint32        // trip after this many failures in a row
	MinRequests         uint32        // failure ratio applies past this many requests
	FailureRatio        float64       // trip when failures/requests exceeds this
	Interval            time.Duration // closed-state counter reset period
	Timeout             time.Duration // open duration before a half-open probe
}

func DefaultSettings() Settings {
	return Settings{
		ConsecutiveFailures: 3,
		MinRequests:         20,
		FailureRatio:        0.05,
		Interval:            60 * time.Second,
		Timeout:             60 * time.Second,
	}
}

type Breaker struct{ cb *cb.CircuitBreaker }

// ErrOpen is returned without calling fn while the breaker is open.
var ErrOpen = cb.ErrOpenState

func New(name string) *Breaker { return NewWithSettings(name, DefaultSettings()) }

func NewWithSettings(name string, s Settings) *Breaker {
	st := cb.Settings{Name: name, Interval: s.Interval, Timeout: s.Timeout}
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= s.ConsecutiveFailures {
			return true
		}
		if counts.Requests < s.MinRequests {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > s.FailureRatio
	}
	return &Breaker{cb: cb.NewCircuitBreaker(st)}
}

func (b *Breaker) Execute(fn func() (any, error)) (any, error) { return b.cb.Execute(fn) }

// Do runs fn through the breaker.
func (b *Breaker) Do(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) { return nil, fn() })
	return err
}

// State is "closed", "half-open" or "open".
func (b *Breaker) State() string { return b.cb.State().String() }

func (b *Breaker) Name() string { return b.cb.Name() }
