package leaderboard

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/metrics"
	"github.com/sawpanic/trendlab/internal/stats"
	"github.com/sawpanic/trendlab/internal/strategy"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func sharpeEntry(id string, sharpe float64) Entry {
	return Entry{
		ConfigID:     id,
		Name:         id,
		Metrics:      metrics.Metrics{Sharpe: metrics.Of(sharpe)},
		DiscoveredAt: t0,
		SessionID:    NoSession,
		Sector:       data.UnknownSector,
	}
}

func TestProfileScores(t *testing.T) {
	m := metrics.Metrics{
		Sharpe:      metrics.Of(1.5),
		Sortino:     metrics.Of(2),
		MaxDrawdown: metrics.Of(0.2),
		WinRate:     metrics.Of(0.5),
		CAGR:        metrics.Of(0.1),
	}
	tests := []struct {
		profile Profile
		want    float64
	}{
		{Balanced, 1.5 + 2 - 0.06 + 0.1 + 0.02},
		{Conservative, 1.2 + 2.4 - 0.1 + 0.15 + 0.01},
		{Aggressive, 0.9 + 1.2 - 0.02 + 0.05 + 0.04},
		{SharpeOnly, 1.5},
	}
	for _, tt := range tests {
		t.Run(string(tt.profile), func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.profile.Score(m), 1e-12)
		})
	}

	assert.Zero(t, Balanced.Score(metrics.Metrics{}))

	p, err := ParseProfile("")
	require.NoError(t, err)
	assert.Equal(t, Balanced, p)
	p, err = ParseProfile("sharpe_only")
	require.NoError(t, err)
	assert.Equal(t, SharpeOnly, p)
	_, err = ParseProfile("greedy")
	assert.True(t, errs.Is(err, errs.Configuration))
}

func TestTopOrdering(t *testing.T) {
	lb := New(SessionScope, "s1", 0)
	for i, sh := range []float64{0.8, 1.2, 0.5, 1.5} {
		lb.Submit(sharpeEntry(fmt.Sprintf("c%d", i), sh))
	}
	top := lb.Top(SharpeOnly, 3)
	require.Len(t, top, 3)
	assert.Equal(t, []float64{1.5, 1.2, 0.8}, []float64{top[0].Score, top[1].Score, top[2].Score})
	for i, e := range top {
		assert.Equal(t, i+1, e.Rank)
		assert.Equal(t, SharpeOnly, e.Profile)
	}
	assert.Equal(t, 4, lb.Len(SharpeOnly))
	assert.Len(t, lb.Top(SharpeOnly, 0), 4)
}

func TestTopReturnsCopies(t *testing.T) {
	lb := New(SessionScope, "s1", 2)
	lb.Submit(sharpeEntry("a", 1))
	top := lb.Top(SharpeOnly, 1)
	top[0].Score = 99
	best, ok := lb.Best(SharpeOnly)
	require.True(t, ok)
	assert.Equal(t, 1.0, best.Score)

	_, ok = lb.Best(Profile("missing"))
	assert.False(t, ok)
}

func TestDuplicateConfigReplacedOnlyWhenBetter(t *testing.T) {
	lb := New(SessionScope, "s1", 4)
	_, ok := lb.SubmitProfile(SharpeOnly, sharpeEntry("dup", 1.0))
	require.True(t, ok)

	_, ok = lb.SubmitProfile(SharpeOnly, sharpeEntry("dup", 1.0))
	assert.False(t, ok, "equal score is not an improvement")
	_, ok = lb.SubmitProfile(SharpeOnly, sharpeEntry("dup", 0.7))
	assert.False(t, ok)

	displaced, ok := lb.SubmitProfile(SharpeOnly, sharpeEntry("dup", 1.3))
	assert.True(t, ok)
	assert.Nil(t, displaced)
	top := lb.Top(SharpeOnly, 0)
	require.Len(t, top, 1)
	assert.Equal(t, 1.3, top[0].Score)
}

func TestFullBoardDisplacesWorst(t *testing.T) {
	lb := New(SessionScope, "s1", 2)
	lb.SubmitProfile(SharpeOnly, sharpeEntry("a", 1))
	lb.SubmitProfile(SharpeOnly, sharpeEntry("b", 2))

	displaced, ok := lb.SubmitProfile(SharpeOnly, sharpeEntry("c", 1))
	assert.False(t, ok, "tie with the worst entry does not displace it")
	assert.Nil(t, displaced)

	displaced, ok = lb.SubmitProfile(SharpeOnly, sharpeEntry("d", 3))
	require.True(t, ok)
	require.NotNil(t, displaced)
	assert.Equal(t, "a", displaced.ConfigID)

	top := lb.Top(SharpeOnly, 0)
	assert.Equal(t, "d", top[0].ConfigID)
	assert.Equal(t, "b", top[1].ConfigID)
}

func TestSubmitReportsDisplacedPerProfile(t *testing.T) {
	lb := New(AllTimeScope, "s1", 1)
	assert.Empty(t, lb.Submit(sharpeEntry("a", 1)))
	out := lb.Submit(sharpeEntry("b", 2))
	require.Len(t, out, 4)
	for i, d := range out {
		assert.Equal(t, Profiles()[i], d.Profile)
		assert.Equal(t, "a", d.Entry.ConfigID)
	}
}

func TestTiesPreferEarlierDiscovery(t *testing.T) {
	lb := New(SessionScope, "s1", 4)
	late := sharpeEntry("late", 1)
	late.DiscoveredAt = t0.Add(time.Hour)
	lb.SubmitProfile(SharpeOnly, late)
	lb.SubmitProfile(SharpeOnly, sharpeEntry("early", 1))
	lb.SubmitProfile(SharpeOnly, sharpeEntry("second", 1))

	top := lb.Top(SharpeOnly, 0)
	assert.Equal(t, []string{"early", "second", "late"}, []string{top[0].ConfigID, top[1].ConfigID, top[2].ConfigID})
}

type countingRecorder struct {
	mu sync.Mutex
	n  map[string]int
}

func (r *countingRecorder) EntryInserted(profile string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.n[profile]++
}

func TestConcurrentSubmitters(t *testing.T) {
	rec := &countingRecorder{n: map[string]int{}}
	lb := New(SessionScope, "s1", 4)
	lb.Recorder = rec

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				lb.Submit(sharpeEntry(fmt.Sprintf("w%d-%d", w, i), float64(w*25+i)))
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 200, lb.Stats().Submissions)
	top := lb.Top(SharpeOnly, 0)
	require.Len(t, top, 4)
	assert.Equal(t, []float64{199, 198, 197, 196}, []float64{top[0].Score, top[1].Score, top[2].Score, top[3].Score})
	assert.GreaterOrEqual(t, rec.n[string(SharpeOnly)], 4)
}

func TestCountersAndSnapshotRestore(t *testing.T) {
	lb := New(AllTimeScope, "s1", 3)
	for i, sh := range []float64{0.3, 0.9, 0.6} {
		lb.Submit(sharpeEntry(fmt.Sprintf("c%d", i), sh))
	}
	lb.RecordIteration(3)
	lb.RecordIteration(5)
	assert.Equal(t, Stats{Submissions: 3, ConfigsTested: 8, Iterations: 2}, lb.Stats())

	other := New(AllTimeScope, "s2", 0)
	other.Restore(lb.Snapshot())
	assert.Equal(t, lb.Stats(), other.Stats())
	assert.Equal(t, 3, other.Capacity)
	assert.Equal(t, "s2", other.SessionID)
	want, got := lb.Top(Balanced, 0), other.Top(Balanced, 0)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].ConfigID, got[i].ConfigID)
		assert.Equal(t, want[i].Score, got[i].Score)
		assert.Equal(t, want[i].Rank, got[i].Rank)
	}

	// restored entries still compete normally
	_, ok := other.SubmitProfile(SharpeOnly, sharpeEntry("c9", 0.1))
	assert.False(t, ok)
}

func TestNewEntryFromResult(t *testing.T) {
	s := data.Synthetic("NE", 200, 3)
	r, err := backtest.RunBacktest(s, strategy.Config{Kind: strategy.TSMOM, Params: strategy.Params{"lookback": 20}}, backtest.DefaultExecutionConfig(), nil)
	require.NoError(t, err)
	r.ConfigID = "cfg"

	e := NewEntry(r, "", 7, t0)
	assert.Equal(t, "cfg", e.ConfigID)
	assert.Equal(t, NoSession, e.SessionID)
	assert.Equal(t, data.UnknownSector, e.Sector)
	assert.Equal(t, 7, e.Iteration)
	assert.NotEqual(t, stats.Insufficient, e.Confidence)

	assert.Equal(t, stats.Insufficient, Confidence([]float64{0.01, -0.02}))
}

func TestNewSessionID(t *testing.T) {
	id := NewSessionID(t0)
	assert.Regexp(t, regexp.MustCompile(`^20260102T030405-[0-9a-f]{8}$`), id)
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := FileStore{Dir: t.TempDir()}

	snap, err := st.Load(ctx, AllTimeScope)
	require.NoError(t, err)
	assert.Nil(t, snap)

	lb := New(AllTimeScope, "s1", 4)
	lb.Submit(sharpeEntry("a", 1.1))
	lb.Submit(sharpeEntry("b", 0.4))
	require.NoError(t, st.Save(ctx, lb.Snapshot()))

	restored := New(AllTimeScope, "s2", 4)
	found, err := LoadInto(ctx, st, restored)
	require.NoError(t, err)
	assert.True(t, found)
	got := restored.Top(SharpeOnly, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ConfigID)
	assert.True(t, got[0].DiscoveredAt.Equal(t0))

	empty := New(SessionScope, "s3", 4)
	found, err = LoadInto(ctx, st, empty)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	st := NewRedisStore(db, 0)
	key := RedisKey(AllTimeScope)
	assert.Equal(t, "trendlab:leaderboard:all_time", key)

	t.Run("miss returns nil", func(t *testing.T) {
		mock.ExpectGet(key).RedisNil()
		snap, err := st.Load(ctx, AllTimeScope)
		require.NoError(t, err)
		assert.Nil(t, snap)
	})

	lb := New(AllTimeScope, "s1", 4)
	lb.Submit(sharpeEntry("a", 0.9))
	snap := lb.Snapshot()
	payload, err := json.Marshal(snap)
	require.NoError(t, err)

	t.Run("save", func(t *testing.T) {
		mock.ExpectSet(key, payload, 0).SetVal("OK")
		require.NoError(t, st.Save(ctx, snap))
	})

	t.Run("hit decodes", func(t *testing.T) {
		mock.ExpectGet(key).SetVal(string(payload))
		got, err := st.Load(ctx, AllTimeScope)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Len(t, got.Entries[SharpeOnly], 1)
		assert.Equal(t, "a", got.Entries[SharpeOnly][0].ConfigID)
	})

	t.Run("corrupt payload is a data error", func(t *testing.T) {
		mock.ExpectGet(key).SetVal("{not json")
		_, err := st.Load(ctx, AllTimeScope)
		assert.True(t, errs.Is(err, errs.Data))
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
