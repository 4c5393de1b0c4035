package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/trendlab/internal/persistence"
)

// runsRepo implements RunsRepo for PostgreSQL
type runsRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRunsRepo creates a PostgreSQL runs repository
func NewRunsRepo(db *sqlx.DB, timeout time.Duration) persistence.RunsRepo {
	return &runsRepo{db: db, timeout: timeout}
}

const upsertRun = `
		INSERT INTO runs (sweep_id, config_id, strategy, symbol, params, fee_bps, slippage_bps,
			data_version, total_return, sharpe, max_drawdown, num_trades, metrics)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (sweep_id, config_id) DO UPDATE SET
			total_return = EXCLUDED.total_return,
			sharpe = EXCLUDED.sharpe,
			max_drawdown = EXCLUDED.max_drawdown,
			num_trades = EXCLUDED.num_trades,
			metrics = EXCLUDED.metrics`

// InsertBatch writes a sweep's results in one transaction
func (r *runsRepo) InsertBatch(ctx context.Context, runs []persistence.RunRecord) error {
	if len(runs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout*time.Duration(len(runs)/100+1))
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertRun)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, run := range runs {
		if run.SweepID == "" || run.ConfigID == "" {
			return fmt.Errorf("run record missing sweep or config id")
		}
		params, err := json.Marshal(run.Params)
		if err != nil {
			return fmt.Errorf("failed to marshal params for %s: %w", run.ConfigID, err)
		}
		metrics, err := json.Marshal(run.Metrics)
		if err != nil {
			return fmt.Errorf("failed to marshal metrics for %s: %w", run.ConfigID, err)
		}
		_, err = stmt.ExecContext(ctx,
			run.SweepID, run.ConfigID, run.Strategy, run.Symbol, params,
			run.FeeBps, run.SlippageBps, run.DataVersion,
			run.TotalReturn, run.Sharpe, run.MaxDrawdown, run.NumTrades, metrics)
		if err != nil {
			return fmt.Errorf("failed to insert run %s: %w", run.ConfigID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit runs: %w", err)
	}
	return nil
}

// ListBySweep returns a sweep's records ordered by config id
func (r *runsRepo) ListBySweep(ctx context.Context, sweepID string) ([]persistence.RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT id, sweep_id, config_id, strategy, symbol, params, fee_bps, slippage_bps,
			data_version, total_return, sharpe, max_drawdown, num_trades, metrics, created_at
		FROM runs
		WHERE sweep_id = $1
		ORDER BY config_id`

	rows, err := r.db.QueryxContext(ctx, query, sweepID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs by sweep: %w", err)
	}
	defer rows.Close()

	var out []persistence.RunRecord
	for rows.Next() {
		var (
			run             persistence.RunRecord
			params, metrics []byte
			ret, sh, dd     sql.NullFloat64
		)
		err := rows.Scan(&run.ID, &run.SweepID, &run.ConfigID, &run.Strategy, &run.Symbol,
			&params, &run.FeeBps, &run.SlippageBps, &run.DataVersion,
			&ret, &sh, &dd, &run.NumTrades, &metrics, &run.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if err := unmarshalJSON(params, &run.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}
		if err := unmarshalJSON(metrics, &run.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
		run.TotalReturn = floatPtr(ret)
		run.Sharpe = floatPtr(sh)
		run.MaxDrawdown = floatPtr(dd)
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return out, nil
}

// Count returns records created within the range
func (r *runsRepo) Count(ctx context.Context, tr persistence.TimeRange) (int64, error) {
	if !tr.Valid() {
		return 0, fmt.Errorf("invalid time range: %s after %s", tr.From, tr.To)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var count int64
	err := r.db.QueryRowxContext(ctx,
		`SELECT COUNT(*) FROM runs WHERE created_at >= $1 AND created_at <= $2`,
		tr.From, tr.To).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return count, nil
}

func unmarshalJSON(b []byte, v any) error {
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
