package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfThroughWraps(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"configuration", Configf("strategy.New", "lookback must be positive, got %d", 0), Configuration},
		{"data", Dataf("data.NewSeries", "empty symbol"), Data},
		{"invariant", Invariantf("backtest.Simulate", "exit while flat at bar %d", 3), InvariantViolation},
		{"cancelled", CancelledErr("yolo.Run", context.Canceled), Cancelled},
		{"wrapped", fmt.Errorf("sweep task: %w", Dataf("load", "missing")), Data},
		{"plain", errors.New("boom"), Unknown},
		{"nil", nil, Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestCancelledUnwrapsCause(t *testing.T) {
	err := CancelledErr("sweep.Run", context.Canceled)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.True(t, Is(err, Cancelled))
	assert.False(t, Is(err, Data))
}

func TestErrorMessage(t *testing.T) {
	err := Configf("strategy.New", "fast %d must be below slow %d", 50, 20)
	assert.Equal(t, "configuration_error: strategy.New: fast 50 must be below slow 20", err.Error())
	assert.Nil(t, Wrap(Data, "x", nil))
}
