package log

import (
	"bytes"
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/strategy"
	"github.com/sawpanic/trendlab/internal/sweep"
)

func TestRender(t *testing.T) {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		snap     sweep.Snapshot
		contains []string
		excludes []string
	}{
		{
			name: "halfway",
			snap: sweep.Snapshot{SweepID: "s", Running: true, Total: 10, Completed: 5, Percent: 50, StartedAt: start,
				BestName: "donchian(20,10)", BestSharpe: 1.234},
			contains: []string{"sweep [██████████░░░░░░░░░░] 5/10 (50.0%)", "ETA: 10s", "best donchian(20,10) (sharpe 1.23)"},
		},
		{
			name:     "done_with_failures",
			snap:     sweep.Snapshot{SweepID: "s", Total: 4, Completed: 4, Failed: 1, Percent: 100, StartedAt: start},
			contains: []string{"4/4 (100.0%)", "1 failed"},
			excludes: []string{"ETA", "best"},
		},
		{
			name:     "unknown_total",
			snap:     sweep.Snapshot{SweepID: "s", Running: true},
			excludes: []string{"[", "ETA"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := Render("sweep", tt.snap, "", start.Add(10*time.Second))
			for _, want := range tt.contains {
				assert.Contains(t, line, want)
			}
			for _, not := range tt.excludes {
				assert.NotContains(t, line, not)
			}
		})
	}
	assert.True(t, strings.HasPrefix(Render("x", sweep.Snapshot{}, "⠋", start), "⠋ x"))
}

func TestProgressReporterInteractive(t *testing.T) {
	progress := sweep.NewProgress()
	var buf bytes.Buffer
	r := NewProgressReporter("sweep", progress, &buf, true)
	r.Start()
	r.Start()

	bars := map[string]*data.Series{"AAA": data.Synthetic("AAA", 120, 2)}
	grids := []sweep.Grid{{Strategy: strategy.TSMOM, Params: map[string][]float64{"lookback": {10, 20}}}}
	_, err := sweep.RunSweep(context.Background(), bars, grids, nil, backtest.DefaultExecutionConfig(),
		sweep.Options{Workers: 1, Progress: progress})
	require.NoError(t, err)

	r.Stop()
	r.Stop()
	assert.Contains(t, buf.String(), "sweep: 2/2 configs, 0 failed")
}

func TestSetup(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	require.NoError(t, Setup("debug", &buf, false))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	err := Setup("loud", &buf, false)
	assert.True(t, errs.Is(err, errs.Configuration))

	assert.False(t, IsTerminal(nil))
	f, err := os.CreateTemp(t.TempDir(), "log")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, IsTerminal(f))
}
