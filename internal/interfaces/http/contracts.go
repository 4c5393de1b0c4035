package http

import (
	"time"

	"github.com/sawpanic/trendlab/internal/leaderboard"
	"github.com/sawpanic/trendlab/internal/persistence"
	"github.com/sawpanic/trendlab/internal/sweep"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse reports server liveness and the state of its dependencies.
type HealthResponse struct {
	Status    string                   `json:"status"` // ok or degraded
	Version   string                   `json:"version"`
	Uptime    string                   `json:"uptime"`
	Timestamp time.Time                `json:"timestamp"`
	Sweep     sweep.Snapshot           `json:"sweep"`
	Database  *persistence.HealthCheck `json:"database,omitempty"`
	Boards    map[string]int           `json:"boards"`
}

// LeaderboardResponse is one profile's ranked board.
type LeaderboardResponse struct {
	Profile   leaderboard.Profile `json:"profile"`
	Scope     leaderboard.Scope   `json:"scope"`
	SessionID string              `json:"session_id"`
	Stats     leaderboard.Stats   `json:"stats"`
	Requested int                 `json:"requested"`
	Entries   []leaderboard.Entry `json:"entries"`
	Timestamp time.Time           `json:"timestamp"`
}
