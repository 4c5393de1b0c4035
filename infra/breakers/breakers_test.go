package breakers

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerTripsOnConsecutiveFailures(t *testing.T) {
	b := NewWithSettings("db", Settings{ConsecutiveFailures: 3, MinRequests: 100, FailureRatio: 1, Interval: time.Minute, Timeout: time.Minute})
	assert.Equal(t, "db", b.Name())
	assert.Equal(t, "closed", b.State())

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Do(func() error { return boom }), boom)
	}
	assert.Equal(t, "open", b.State())

	called := false
	err := b.Do(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
}

func TestBreakerTripsOnFailureRatio(t *testing.T) {
	b := NewWithSettings("ratio", Settings{ConsecutiveFailures: 100, MinRequests: 4, FailureRatio: 0.4, Interval: time.Minute, Timeout: time.Minute})
	ok := func() error { return nil }
	bad := func() error { return errors.New("bad") }
	for _, fn := range []func() error{ok, bad, ok, bad} {
		_ = b.Do(fn)
	}
	assert.Equal(t, "open", b.State())
}

func TestExecuteReturnsValue(t *testing.T) {
	v, err := New("x").Execute(func() (any, error) { return 7, nil })
	assert.NoError(t, err)
	assert.Equal(t, 7, v)
}
