package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/trendlab/internal/persistence"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func TestRunsInsertBatch(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRunsRepo(db, time.Second)
	sharpe := 1.2
	runs := []persistence.RunRecord{
		{SweepID: "S1", ConfigID: "a", Strategy: "tsmom", Symbol: "AAA", Params: map[string]float64{"lookback": 10}, Sharpe: &sharpe},
		{SweepID: "S1", ConfigID: "b", Strategy: "tsmom", Symbol: "AAA", Params: map[string]float64{"lookback": 20}},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO runs")
	for _, r := range runs {
		prep.ExpectExec().
			WithArgs("S1", r.ConfigID, "tsmom", "AAA", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	require.NoError(t, repo.InsertBatch(context.Background(), runs))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunsInsertBatchRollsBack(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRunsRepo(db, time.Second)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO runs").ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.InsertBatch(context.Background(), []persistence.RunRecord{{SweepID: "S1", ConfigID: "a"}})
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.NoError(t, repo.InsertBatch(context.Background(), nil))
}

func TestRunsListBySweep(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRunsRepo(db, time.Second)
	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	cols := []string{"id", "sweep_id", "config_id", "strategy", "symbol", "params", "fee_bps", "slippage_bps",
		"data_version", "total_return", "sharpe", "max_drawdown", "num_trades", "metrics", "created_at"}
	rows := sqlmock.NewRows(cols).
		AddRow(int64(1), "S1", "a", "tsmom", "AAA", []byte(`{"lookback":10}`), 5.0, 2.0,
			"v1", 0.25, nil, 0.1, int64(4), []byte(`{"sharpe":null}`), created)
	mock.ExpectQuery("SELECT .* FROM runs").WithArgs("S1").WillReturnRows(rows)

	got, err := repo.ListBySweep(context.Background(), "S1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 10.0, got[0].Params["lookback"])
	require.NotNil(t, got[0].TotalReturn)
	assert.Equal(t, 0.25, *got[0].TotalReturn)
	assert.Nil(t, got[0].Sharpe)
	assert.Equal(t, 4, got[0].NumTrades)
	assert.Contains(t, got[0].Metrics, "sharpe")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunsCount(t *testing.T) {
	db, mock := newMock(t)
	repo := NewRunsRepo(db, time.Second)
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	mock.ExpectQuery("SELECT COUNT").WithArgs(from, to).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(12)))
	n, err := repo.Count(context.Background(), persistence.TimeRange{From: from, To: to})
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	_, err = repo.Count(context.Background(), persistence.TimeRange{From: to, To: from})
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLeaderboardUpsertAndTop(t *testing.T) {
	db, mock := newMock(t)
	repo := NewLeaderboardRepo(db, time.Second)
	discovered := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO leaderboard").
		WithArgs("a", "balanced", "all_time", sqlmock.AnyArg(), 1, 1.5, "tsmom", sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), discovered).
		WillReturnResult(sqlmock.NewResult(0, 1))
	err := repo.Upsert(context.Background(), persistence.LeaderboardRecord{
		ConfigID: "a", Profile: "balanced", Scope: "all_time", Rank: 1, Score: 1.5,
		Strategy: "tsmom", Symbols: []string{"AAA"}, DiscoveredAt: discovered,
	})
	require.NoError(t, err)

	cols := []string{"config_id", "profile", "scope", "session_id", "rank", "score", "strategy", "params",
		"symbols", "sector", "confidence", "iteration", "metrics", "discovered_at", "updated_at"}
	mock.ExpectQuery("SELECT .* FROM leaderboard").WithArgs("balanced", "all_time", 3).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("a", "balanced", "all_time", "s1", int64(1), 1.5, "tsmom",
			[]byte(`{"lookback":10}`), []byte(`{AAA}`), "unknown", "medium", int64(2), []byte(`{}`), discovered, discovered))
	got, err := repo.Top(context.Background(), "balanced", "all_time", 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"AAA"}, got[0].Symbols)
	assert.Equal(t, 10.0, got[0].Params["lookback"])
	assert.Equal(t, 2, got[0].Iteration)

	mock.ExpectExec("DELETE FROM leaderboard").WithArgs("a", "balanced", "all_time").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "a", "balanced", "all_time"))

	assert.Error(t, repo.Upsert(context.Background(), persistence.LeaderboardRecord{ConfigID: "a"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS runs").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
