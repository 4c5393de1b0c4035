package yolo

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/leaderboard"
	"github.com/sawpanic/trendlab/internal/sweep"
)

// IterationReport summarizes one search iteration.
type IterationReport struct {
	SessionID    string    `json:"session_id"`
	Iteration    int       `json:"iteration"`
	SweepID      string    `json:"sweep_id"`
	Configs      int       `json:"configs"`
	Succeeded    int       `json:"succeeded"`
	Failed       int       `json:"failed"`
	Displaced    int       `json:"displaced"`
	BestScore    float64   `json:"best_score"`
	BestConfigID string    `json:"best_config_id,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	Elapsed      float64   `json:"elapsed_seconds"`
}

// Summary is returned when a search stops.
type Summary struct {
	SessionID     string             `json:"session_id"`
	Iterations    int                `json:"iterations"`
	ConfigsTested int                `json:"configs_tested"`
	Succeeded     int                `json:"succeeded"`
	Failed        int                `json:"failed"`
	Displaced     int                `json:"displaced"`
	Cancelled     bool               `json:"cancelled"`
	Best          *leaderboard.Entry `json:"best,omitempty"`
}

// Search runs jittered sweeps in a loop and feeds the leaderboards.
type Search struct {
	Config  Config
	Bars    map[string]*data.Series
	Session *leaderboard.Leaderboard
	AllTime *leaderboard.Leaderboard
	// Store persists the all-time board; nil keeps it in memory.
	Store        leaderboard.Store
	History      *History
	Orchestrator *sweep.Orchestrator
	OnIteration  func(IterationReport)
	Now          func() time.Time
}

// New builds a search with fresh session and all-time boards. The all-time
// board is loaded from store when one is given.
func New(ctx context.Context, cfg Config, bars map[string]*data.Series, store leaderboard.Store) (*Search, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, errs.Dataf("yolo.New", "no bars loaded")
	}
	now := time.Now().UTC()
	sessionID := leaderboard.NewSessionID(now)
	s := &Search{
		Config:       cfg,
		Bars:         bars,
		Session:      leaderboard.New(leaderboard.SessionScope, sessionID, cfg.Capacity),
		AllTime:      leaderboard.New(leaderboard.AllTimeScope, sessionID, cfg.Capacity),
		Store:        store,
		Orchestrator: sweep.NewOrchestrator(cfg.Workers),
	}
	if store != nil {
		found, err := leaderboard.LoadInto(ctx, store, s.AllTime)
		if err != nil {
			return nil, err
		}
		if found {
			log.Info().Int("entries", s.AllTime.Len(cfg.Profile)).Msg("Loaded all-time leaderboard")
		}
	}
	if cfg.HistoryDir != "" {
		h, err := NewHistory(cfg.HistoryDir, sessionID)
		if err != nil {
			return nil, err
		}
		s.History = h
	}
	return s, nil
}

func (s *Search) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Run loops until ctx is cancelled or MaxIterations is reached. Cancellation
// is only observed between iterations; a running sweep always completes and
// its results are submitted. A cancelled run returns the summary with an
// errs.Cancelled error.
func (s *Search) Run(ctx context.Context) (*Summary, error) {
	cfg := s.Config
	base, err := cfg.grids()
	if err != nil {
		return nil, err
	}
	symbols := cfg.Symbols
	if len(symbols) == 0 {
		symbols = data.Symbols(s.Bars)
	}
	orch := s.Orchestrator
	if orch == nil {
		orch = sweep.NewOrchestrator(cfg.Workers)
	}
	profile := cfg.Profile
	if profile == "" {
		profile = leaderboard.Balanced
	}

	limit := rate.Inf
	if cfg.MinInterval > 0 {
		limit = rate.Every(cfg.MinInterval)
	}
	limiter := rate.NewLimiter(limit, 1)
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))

	sum := &Summary{SessionID: s.Session.SessionID}
	log.Info().
		Str("session_id", sum.SessionID).
		Int("grids", len(base)).
		Int("symbols", len(symbols)).
		Float64("jitter", cfg.JitterPct).
		Msg("Starting continuous search")

	for iter := 1; cfg.MaxIterations == 0 || iter <= cfg.MaxIterations; iter++ {
		if ctx.Err() != nil {
			return s.stop(sum, profile, ctx.Err())
		}
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return s.stop(sum, profile, ctx.Err())
			}
			return sum, err
		}

		grids := make([]sweep.Grid, 0, len(base))
		for _, g := range base {
			j, err := Jitter(g, cfg.JitterPct, rng)
			if err != nil {
				return sum, err
			}
			grids = append(grids, j)
		}
		configs := sweep.Expand(grids, symbols, data.DateRange{}, cfg.Exec.Cost)

		started := s.now()
		out, err := orch.Run(context.WithoutCancel(ctx), s.Bars, configs, cfg.Exec)
		if err != nil {
			return sum, err
		}

		rep := IterationReport{
			SessionID: sum.SessionID,
			Iteration: iter,
			SweepID:   out.SweepID,
			Configs:   len(configs),
			Succeeded: out.Succeeded,
			Failed:    out.Failed,
			BestScore: math.Inf(-1),
			StartedAt: started,
		}
		discovered := s.now()
		for _, r := range out.Results {
			e := leaderboard.NewEntry(r, sum.SessionID, iter, discovered)
			s.Session.Submit(e)
			rep.Displaced += len(s.AllTime.Submit(e))
			if sc := profile.Score(r.Metrics); sc > rep.BestScore {
				rep.BestScore, rep.BestConfigID = sc, r.ConfigID
			}
		}
		if math.IsInf(rep.BestScore, -1) {
			rep.BestScore = 0
		}
		s.Session.RecordIteration(len(configs))
		s.AllTime.RecordIteration(len(configs))
		rep.Elapsed = s.now().Sub(started).Seconds()

		if s.Store != nil {
			if err := s.Store.Save(context.WithoutCancel(ctx), s.AllTime.Snapshot()); err != nil {
				log.Warn().Err(err).Int("iteration", iter).Msg("Failed to persist all-time leaderboard")
			}
		}
		if s.History != nil {
			if err := s.History.Append(rep); err != nil {
				log.Warn().Err(err).Msg("Failed to append iteration history")
			}
		}

		sum.Iterations++
		sum.ConfigsTested += rep.Configs
		sum.Succeeded += rep.Succeeded
		sum.Failed += rep.Failed
		sum.Displaced += rep.Displaced

		log.Info().
			Int("iteration", iter).
			Int("configs", rep.Configs).
			Int("failed", rep.Failed).
			Float64("best_score", rep.BestScore).
			Msg("Search iteration complete")
		if s.OnIteration != nil {
			s.OnIteration(rep)
		}
	}
	s.finish(sum, profile)
	return sum, nil
}

func (s *Search) finish(sum *Summary, profile leaderboard.Profile) {
	if best, ok := s.Session.Best(profile); ok {
		sum.Best = &best
	}
}

func (s *Search) stop(sum *Summary, profile leaderboard.Profile, cause error) (*Summary, error) {
	sum.Cancelled = true
	s.finish(sum, profile)
	log.Info().Int("iterations", sum.Iterations).Msg("Continuous search stopped")
	return sum, errs.CancelledErr("yolo.Search.Run", cause)
}
