package persistence

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/trendlab/infra/breakers"
	"github.com/sawpanic/trendlab/internal/leaderboard"
	"github.com/sawpanic/trendlab/internal/metrics"
	"github.com/sawpanic/trendlab/internal/sweep"
)

// Sink writes sweep outcomes and leaderboard snapshots through a circuit
// breaker. Failures are logged and counted, never returned, so a broken
// database cannot stop a sweep.
type Sink struct {
	repos   *Repository
	breaker *breakers.Breaker
	dropped atomic.Int64
}

// NewSink returns a sink; nil repos makes every write a no-op.
func NewSink(repos *Repository, b *breakers.Breaker) *Sink {
	if b == nil {
		b = breakers.New("persistence")
	}
	return &Sink{repos: repos, breaker: b}
}

func (s *Sink) Enabled() bool { return s != nil && s.repos != nil }

// Dropped is the number of writes lost to errors or an open breaker.
func (s *Sink) Dropped() int64 { return s.dropped.Load() }

// WriteOutcome stores every successful result of a sweep and reports
// whether the write landed.
func (s *Sink) WriteOutcome(ctx context.Context, out *sweep.Outcome) bool {
	if !s.Enabled() || s.repos.Runs == nil || out == nil || len(out.Results) == 0 {
		return false
	}
	runs := RunRecords(out)
	err := s.breaker.Do(func() error { return s.repos.Runs.InsertBatch(ctx, runs) })
	if err != nil {
		s.dropped.Add(1)
		log.Warn().Err(err).Str("sweep_id", out.SweepID).Str("breaker", s.breaker.State()).
			Msg("Failed to persist sweep results")
		return false
	}
	return true
}

// WriteLeaderboard upserts every entry of a snapshot.
func (s *Sink) WriteLeaderboard(ctx context.Context, snap leaderboard.Snapshot) bool {
	if !s.Enabled() || s.repos.Leaderboard == nil {
		return false
	}
	for _, rec := range LeaderboardRecords(snap) {
		rec := rec
		err := s.breaker.Do(func() error { return s.repos.Leaderboard.Upsert(ctx, rec) })
		if err != nil {
			s.dropped.Add(1)
			log.Warn().Err(err).Str("scope", string(snap.Scope)).Str("breaker", s.breaker.State()).
				Msg("Failed to persist leaderboard")
			return false
		}
	}
	return true
}

// RunRecords converts a sweep's successful results.
func RunRecords(out *sweep.Outcome) []RunRecord {
	costs := make(map[string]sweep.Config, len(out.Configs))
	for _, c := range out.Configs {
		costs[c.ID()] = c
	}
	recs := make([]RunRecord, 0, len(out.Results))
	for _, r := range out.Results {
		cfg := costs[r.ConfigID]
		recs = append(recs, RunRecord{
			SweepID:     out.SweepID,
			ConfigID:    r.ConfigID,
			Strategy:    string(r.Strategy.Kind),
			Symbol:      r.Symbol,
			Params:      r.Strategy.Params,
			FeeBps:      cfg.Cost.FeeBps,
			SlippageBps: cfg.Cost.SlippageBps,
			DataVersion: r.DataVersion,
			TotalReturn: nullable(r.Metrics.TotalReturn),
			Sharpe:      nullable(r.Metrics.Sharpe),
			MaxDrawdown: nullable(r.Metrics.MaxDrawdown),
			NumTrades:   r.Metrics.NumTrades,
			Metrics:     metricsMap(r.Metrics),
		})
	}
	return recs
}

// LeaderboardRecords flattens a snapshot into rows.
func LeaderboardRecords(snap leaderboard.Snapshot) []LeaderboardRecord {
	var recs []LeaderboardRecord
	for _, p := range leaderboard.Profiles() {
		for _, e := range snap.Entries[p] {
			recs = append(recs, LeaderboardRecord{
				ConfigID:     e.ConfigID,
				Profile:      string(p),
				Scope:        string(snap.Scope),
				SessionID:    e.SessionID,
				Rank:         e.Rank,
				Score:        e.Score,
				Strategy:     string(e.Strategy.Kind),
				Params:       e.Strategy.Params,
				Symbols:      []string{e.Symbol},
				Sector:       e.Sector,
				Confidence:   string(e.Confidence),
				Iteration:    e.Iteration,
				Metrics:      metricsMap(e.Metrics),
				DiscoveredAt: e.DiscoveredAt,
			})
		}
	}
	return recs
}

func nullable(v metrics.Value) *float64 {
	if !v.Defined {
		return nil
	}
	f := v.Val
	return &f
}

// metricsMap uses the JSON form so undefined metrics become nulls.
func metricsMap(m metrics.Metrics) map[string]any {
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}
