package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sawpanic/trendlab/internal/persistence"
)

type leaderboardRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewLeaderboardRepo creates a PostgreSQL leaderboard repository
func NewLeaderboardRepo(db *sqlx.DB, timeout time.Duration) persistence.LeaderboardRepo {
	return &leaderboardRepo{db: db, timeout: timeout}
}

// Upsert stores one entry keyed by (config_id, profile, scope)
func (r *leaderboardRepo) Upsert(ctx context.Context, rec persistence.LeaderboardRecord) error {
	if rec.ConfigID == "" || rec.Profile == "" || rec.Scope == "" {
		return fmt.Errorf("leaderboard record missing config, profile or scope")
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	params, err := json.Marshal(rec.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	metrics, err := json.Marshal(rec.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	query := `
		INSERT INTO leaderboard (config_id, profile, scope, session_id, rank, score, strategy,
			params, symbols, sector, confidence, iteration, metrics, discovered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (config_id, profile, scope) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			rank = EXCLUDED.rank,
			score = EXCLUDED.score,
			confidence = EXCLUDED.confidence,
			iteration = EXCLUDED.iteration,
			metrics = EXCLUDED.metrics,
			updated_at = NOW()`

	_, err = r.db.ExecContext(ctx, query,
		rec.ConfigID, rec.Profile, rec.Scope, rec.SessionID, rec.Rank, rec.Score, rec.Strategy,
		params, pq.Array(rec.Symbols), rec.Sector, rec.Confidence, rec.Iteration, metrics,
		rec.DiscoveredAt)
	if err != nil {
		return fmt.Errorf("failed to upsert leaderboard entry %s: %w", rec.ConfigID, err)
	}
	return nil
}

// Top returns the n best-ranked entries of a profile board
func (r *leaderboardRepo) Top(ctx context.Context, profile, scope string, n int) ([]persistence.LeaderboardRecord, error) {
	if n <= 0 {
		n = 100
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT config_id, profile, scope, session_id, rank, score, strategy, params, symbols,
			sector, confidence, iteration, metrics, discovered_at, updated_at
		FROM leaderboard
		WHERE profile = $1 AND scope = $2
		ORDER BY score DESC, discovered_at ASC
		LIMIT $3`

	rows, err := r.db.QueryxContext(ctx, query, profile, scope, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var out []persistence.LeaderboardRecord
	for rows.Next() {
		var (
			rec             persistence.LeaderboardRecord
			params, metrics []byte
			symbols         pq.StringArray
		)
		err := rows.Scan(&rec.ConfigID, &rec.Profile, &rec.Scope, &rec.SessionID, &rec.Rank,
			&rec.Score, &rec.Strategy, &params, &symbols, &rec.Sector, &rec.Confidence,
			&rec.Iteration, &metrics, &rec.DiscoveredAt, &rec.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		if err := unmarshalJSON(params, &rec.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}
		if err := unmarshalJSON(metrics, &rec.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
		rec.Symbols = []string(symbols)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}
	return out, nil
}

// Delete removes one entry; deleting a missing entry is not an error
func (r *leaderboardRepo) Delete(ctx context.Context, configID, profile, scope string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM leaderboard WHERE config_id = $1 AND profile = $2 AND scope = $3`,
		configID, profile, scope)
	if err != nil {
		return fmt.Errorf("failed to delete leaderboard entry: %w", err)
	}
	return nil
}
