package persistence

import (
	"context"
	"time"
)

// TimeRange is an inclusive window over record creation times.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Valid reports whether the range is ordered.
func (tr TimeRange) Valid() bool {
	return !tr.To.Before(tr.From)
}

// RunRecord is one successful sweep result as stored in the runs table.
// Nullable metric columns are nil when the metric is undefined.
type RunRecord struct {
	ID          int64              `json:"id" db:"id"`
	SweepID     string             `json:"sweep_id" db:"sweep_id"`
	ConfigID    string             `json:"config_id" db:"config_id"`
	Strategy    string             `json:"strategy" db:"strategy"`
	Symbol      string             `json:"symbol" db:"symbol"`
	Params      map[string]float64 `json:"params" db:"params"`
	FeeBps      float64            `json:"fee_bps" db:"fee_bps"`
	SlippageBps float64            `json:"slippage_bps" db:"slippage_bps"`
	DataVersion string             `json:"data_version" db:"data_version"`
	TotalReturn *float64           `json:"total_return,omitempty" db:"total_return"`
	Sharpe      *float64           `json:"sharpe,omitempty" db:"sharpe"`
	MaxDrawdown *float64           `json:"max_drawdown,omitempty" db:"max_drawdown"`
	NumTrades   int                `json:"num_trades" db:"num_trades"`
	Metrics     map[string]any     `json:"metrics" db:"metrics"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
}

// LeaderboardRecord is one ranked entry of a profile board.
type LeaderboardRecord struct {
	ConfigID     string             `json:"config_id" db:"config_id"`
	Profile      string             `json:"profile" db:"profile"`
	Scope        string             `json:"scope" db:"scope"`
	SessionID    string             `json:"session_id" db:"session_id"`
	Rank         int                `json:"rank" db:"rank"`
	Score        float64            `json:"score" db:"score"`
	Strategy     string             `json:"strategy" db:"strategy"`
	Params       map[string]float64 `json:"params" db:"params"`
	Symbols      []string           `json:"symbols" db:"symbols"`
	Sector       string             `json:"sector" db:"sector"`
	Confidence   string             `json:"confidence" db:"confidence"`
	Iteration    int                `json:"iteration" db:"iteration"`
	Metrics      map[string]any     `json:"metrics" db:"metrics"`
	DiscoveredAt time.Time          `json:"discovered_at" db:"discovered_at"`
	UpdatedAt    time.Time          `json:"updated_at" db:"updated_at"`
}

// RunsRepo stores sweep results.
type RunsRepo interface {
	// InsertBatch writes all records in one transaction. A config already
	// stored for the same sweep is overwritten.
	InsertBatch(ctx context.Context, runs []RunRecord) error

	// ListBySweep returns a sweep's records in config id order.
	ListBySweep(ctx context.Context, sweepID string) ([]RunRecord, error)

	// Count returns records created within the range.
	Count(ctx context.Context, tr TimeRange) (int64, error)
}

// LeaderboardRepo stores leaderboard snapshots, one row per
// (config, profile, scope).
type LeaderboardRepo interface {
	Upsert(ctx context.Context, rec LeaderboardRecord) error
	Top(ctx context.Context, profile, scope string, n int) ([]LeaderboardRecord, error)
	Delete(ctx context.Context, configID, profile, scope string) error
}

// Repository aggregates all persistence interfaces
type Repository struct {
	Runs        RunsRepo
	Leaderboard LeaderboardRepo
}

// HealthCheck represents repository health status
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}

// RepositoryHealth provides health monitoring for persistence layer
type RepositoryHealth interface {
	Health(ctx context.Context) HealthCheck
	Ping(ctx context.Context) error
	Stats(ctx context.Context) map[string]interface{}
}
