package leaderboard

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/metrics"
	"github.com/sawpanic/trendlab/internal/stats"
	"github.com/sawpanic/trendlab/internal/strategy"
)

// NoSession marks entries not discovered in a tracked session.
const NoSession = "none"

// Scope separates the current session's board from the persistent one.
type Scope string

const (
	SessionScope Scope = "session"
	AllTimeScope Scope = "all_time"
)

// NewSessionID returns "YYYYMMDDTHHMMSS-<uuid8>".
func NewSessionID(now time.Time) string {
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102T150405"), uuid.New().String()[:8])
}

// Entry is a ranked discovery. Profile, Score and Rank are set per board.
type Entry struct {
	ConfigID     string          `json:"config_id"`
	Name         string          `json:"name"`
	Strategy     strategy.Config `json:"strategy"`
	Symbol       string          `json:"symbol"`
	Sector       string          `json:"sector"`
	Metrics      metrics.Metrics `json:"metrics"`
	Profile      Profile         `json:"profile"`
	Score        float64         `json:"score"`
	Rank         int             `json:"rank"`
	DiscoveredAt time.Time       `json:"discovered_at"`
	SessionID    string          `json:"session_id"`
	Iteration    int             `json:"iteration"`
	Confidence   stats.Grade     `json:"confidence"`

	seq uint64
}

// NewEntry builds an entry from a run, grading confidence with a quick
// bootstrap of its returns. Empty session and sector take their sentinels.
func NewEntry(r *backtest.Result, sessionID string, iteration int, now time.Time) Entry {
	if sessionID == "" {
		sessionID = NoSession
	}
	sector := r.Sector
	if sector == "" {
		sector = data.UnknownSector
	}
	return Entry{
		ConfigID:     r.ConfigID,
		Name:         r.Name,
		Strategy:     r.Strategy,
		Symbol:       r.Symbol,
		Sector:       sector,
		Metrics:      r.Metrics,
		DiscoveredAt: now,
		SessionID:    sessionID,
		Iteration:    iteration,
		Confidence:   Confidence(r.Returns()),
	}
}

// Confidence grades a return series by its bootstrap Sharpe interval.
func Confidence(returns []float64) stats.Grade {
	if len(returns) < stats.MinGradeObservations {
		return stats.Insufficient
	}
	ci, err := stats.BootstrapSharpe(returns, metrics.DefaultPeriodsPerYear, stats.QuickBootstrap())
	if err != nil {
		return stats.Insufficient
	}
	return stats.GradeSharpe(ci, len(returns))
}

// Compare orders entries best first: higher score, then earlier discovery,
// then earlier insertion. It returns a negative number when a ranks above b.
func Compare(a, b *Entry) int {
	switch {
	case a.Score > b.Score:
		return -1
	case a.Score < b.Score:
		return 1
	case a.DiscoveredAt.Before(b.DiscoveredAt):
		return -1
	case b.DiscoveredAt.Before(a.DiscoveredAt):
		return 1
	case a.seq < b.seq:
		return -1
	case a.seq > b.seq:
		return 1
	}
	return 0
}
