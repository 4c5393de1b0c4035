package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/trendlab/infra/breakers"
	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/leaderboard"
	"github.com/sawpanic/trendlab/internal/strategy"
	"github.com/sawpanic/trendlab/internal/sweep"
)

type fakeRuns struct {
	batches [][]RunRecord
	err     error
}

func (f *fakeRuns) InsertBatch(_ context.Context, runs []RunRecord) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, runs)
	return nil
}

func (f *fakeRuns) ListBySweep(context.Context, string) ([]RunRecord, error) { return nil, nil }
func (f *fakeRuns) Count(context.Context, TimeRange) (int64, error)          { return 0, nil }

type fakeBoard struct {
	recs []LeaderboardRecord
}

func (f *fakeBoard) Upsert(_ context.Context, rec LeaderboardRecord) error {
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeBoard) Top(context.Context, string, string, int) ([]LeaderboardRecord, error) {
	return f.recs, nil
}

func (f *fakeBoard) Delete(context.Context, string, string, string) error { return nil }

func outcome(t *testing.T) *sweep.Outcome {
	t.Helper()
	bars := map[string]*data.Series{"AAA": data.Synthetic("AAA", 150, 9)}
	grids := []sweep.Grid{{Strategy: strategy.TSMOM, Params: map[string][]float64{"lookback": {10, 20}}}}
	exec := backtest.DefaultExecutionConfig()
	exec.Cost = backtest.CostModel{FeeBps: 3, SlippageBps: 1}
	out, err := sweep.RunSweep(context.Background(), bars, grids, nil, exec, sweep.Options{Workers: 2})
	require.NoError(t, err)
	require.Equal(t, 2, out.Succeeded)
	return out
}

func TestTimeRangeValid(t *testing.T) {
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		tr    TimeRange
		valid bool
	}{
		{"ordered", TimeRange{From: base, To: base.Add(time.Hour)}, true},
		{"same_time", TimeRange{From: base, To: base}, true},
		{"zero", TimeRange{}, true},
		{"reversed", TimeRange{From: base.Add(time.Hour), To: base}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, tt.tr.Valid())
		})
	}
}

func TestRunRecords(t *testing.T) {
	out := outcome(t)
	recs := RunRecords(out)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, out.SweepID, rec.SweepID)
		assert.Equal(t, "tsmom", rec.Strategy)
		assert.Equal(t, "AAA", rec.Symbol)
		assert.Equal(t, 3.0, rec.FeeBps)
		assert.Equal(t, 1.0, rec.SlippageBps)
		assert.Contains(t, rec.Params, "lookback")
		assert.Contains(t, rec.Metrics, "sharpe")
		r, ok := out.Result(rec.ConfigID)
		require.True(t, ok)
		assert.Equal(t, r.Metrics.Sharpe.Defined, rec.Sharpe != nil)
	}
}

func TestSinkWritesThroughBreaker(t *testing.T) {
	out := outcome(t)
	runs := &fakeRuns{}
	board := &fakeBoard{}
	sink := NewSink(&Repository{Runs: runs, Leaderboard: board}, nil)

	assert.True(t, sink.WriteOutcome(context.Background(), out))
	require.Len(t, runs.batches, 1)
	assert.Len(t, runs.batches[0], 2)

	lb := leaderboard.New(leaderboard.AllTimeScope, leaderboard.NoSession, 4)
	now := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	for _, r := range out.Results {
		lb.Submit(leaderboard.NewEntry(r, "s1", 1, now))
	}
	assert.True(t, sink.WriteLeaderboard(context.Background(), lb.Snapshot()))
	// every result lands on every profile board
	assert.Len(t, board.recs, 2*len(leaderboard.Profiles()))
	assert.Equal(t, "all_time", board.recs[0].Scope)
	assert.Equal(t, 1, board.recs[0].Rank)
	assert.Equal(t, []string{"AAA"}, board.recs[0].Symbols)
	assert.Zero(t, sink.Dropped())
}

func TestSinkDegradesOnFailure(t *testing.T) {
	out := outcome(t)
	runs := &fakeRuns{err: errors.New("connection refused")}
	b := breakers.NewWithSettings("test", breakers.Settings{
		ConsecutiveFailures: 2,
		MinRequests:         100,
		FailureRatio:        1,
		Interval:            time.Minute,
		Timeout:             time.Minute,
	})
	sink := NewSink(&Repository{Runs: runs}, b)

	for i := 0; i < 3; i++ {
		assert.False(t, sink.WriteOutcome(context.Background(), out))
	}
	assert.Equal(t, int64(3), sink.Dropped())
	assert.Equal(t, "open", b.State())

	// leaderboard writes are skipped without a repo
	assert.False(t, sink.WriteLeaderboard(context.Background(), leaderboard.Snapshot{}))
}

func TestNilSinkIsDisabled(t *testing.T) {
	var sink *Sink
	assert.False(t, sink.Enabled())
	assert.False(t, NewSink(nil, nil).WriteOutcome(context.Background(), &sweep.Outcome{}))
}
