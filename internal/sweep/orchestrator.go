package sweep

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/domain/indicators"
	"github.com/sawpanic/trendlab/internal/errs"
)

// Failure records a config that could not produce a result.
type Failure struct {
	ConfigID string    `json:"config_id" csv:"config_id"`
	Config   Config    `json:"config" csv:"-"`
	Strategy string    `json:"strategy" csv:"strategy"`
	Symbol   string    `json:"symbol" csv:"symbol"`
	Kind     errs.Kind `json:"kind" csv:"kind"`
	Reason   string    `json:"reason" csv:"reason"`
}

func newFailure(cfg Config, err error) *Failure {
	return &Failure{
		ConfigID: cfg.ID(),
		Config:   cfg,
		Strategy: string(cfg.StrategyID),
		Symbol:   cfg.Symbol,
		Kind:     errs.KindOf(err),
		Reason:   err.Error(),
	}
}

// Outcome is the result of a batch. Results follow config order.
type Outcome struct {
	SweepID     string             `json:"sweep_id"`
	Configs     []Config           `json:"configs"`
	Results     []*backtest.Result `json:"results"`
	Failures    []Failure          `json:"failures"`
	Cancelled   bool               `json:"cancelled"`
	Total       int                `json:"total"`
	Succeeded   int                `json:"succeeded"`
	Failed      int                `json:"failed"`
	Skipped     int                `json:"skipped"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
}

// Result returns the result for a config ID.
func (o *Outcome) Result(id string) (*backtest.Result, bool) {
	for _, r := range o.Results {
		if r.ConfigID == id {
			return r, true
		}
	}
	return nil, false
}

// Recorder receives sweep telemetry. The monitor's prometheus registry
// implements it.
type Recorder interface {
	SweepStarted()
	SweepFinished()
	ConfigCompleted(strategy string, ok bool, elapsed time.Duration)
}

// Recorders fans telemetry out to several recorders; nil entries are skipped.
type Recorders []Recorder

func (rs Recorders) SweepStarted() {
	for _, r := range rs {
		if r != nil {
			r.SweepStarted()
		}
	}
}

func (rs Recorders) SweepFinished() {
	for _, r := range rs {
		if r != nil {
			r.SweepFinished()
		}
	}
}

func (rs Recorders) ConfigCompleted(strategy string, ok bool, elapsed time.Duration) {
	for _, r := range rs {
		if r != nil {
			r.ConfigCompleted(strategy, ok, elapsed)
		}
	}
}

// Clock supplies timestamps; injectable for tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Orchestrator runs configs on a bounded worker pool. Workers check for
// cancellation before taking each config and never abandon one midway.
// Task outcomes flow over a channel to a single aggregator.
type Orchestrator struct {
	Workers  int
	Cache    *indicators.Cache
	Recorder Recorder
	Progress *Progress
	// OnResult is called from the aggregator goroutine for each success.
	OnResult func(*backtest.Result)
	Clock    Clock
}

// NewOrchestrator creates an orchestrator with a fresh indicator cache.
func NewOrchestrator(workers int) *Orchestrator {
	return &Orchestrator{Workers: workers, Cache: indicators.NewCache()}
}

// NewSweepID returns a sortable sweep identifier.
func NewSweepID(now time.Time) string {
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102T150405"), uuid.New().String()[:8])
}

// runBacktest is swapped in tests to exercise panic recovery.
var runBacktest = backtest.RunBacktest

type taskOutcome struct {
	index   int
	result  *backtest.Result
	failure *Failure
	elapsed time.Duration
}

func (o *Orchestrator) now() time.Time {
	if o.Clock == nil {
		return realClock{}.Now()
	}
	return o.Clock.Now()
}

func (o *Orchestrator) workers(n int) int {
	w := o.Workers
	if w <= 0 {
		w = runtime.NumCPU()
	}
	if w > n {
		w = n
	}
	if w < 1 {
		w = 1
	}
	return w
}

// Run evaluates every config against the bars of its symbol. Failures never
// abort the batch. Cancelling ctx stops intake; configs already running
// complete and their results are kept. The only error is an invalid
// execution config, rejected before any task starts.
func (o *Orchestrator) Run(ctx context.Context, bars map[string]*data.Series, configs []Config, exec backtest.ExecutionConfig) (*Outcome, error) {
	if err := exec.Validate(); err != nil {
		return nil, err
	}
	started := o.now()
	out := &Outcome{
		SweepID:   NewSweepID(started),
		Configs:   configs,
		Total:     len(configs),
		StartedAt: started,
	}
	workers := o.workers(len(configs))

	log.Info().
		Str("sweep_id", out.SweepID).
		Int("configs", len(configs)).
		Int("workers", workers).
		Msg("Starting sweep")

	if o.Recorder != nil {
		o.Recorder.SweepStarted()
		defer o.Recorder.SweepFinished()
	}
	o.Progress.start(out.SweepID, len(configs))

	jobs := make(chan int)
	outcomes := make(chan taskOutcome, workers)

	go func() {
		defer close(jobs)
		for i := range configs {
			select {
			case <-ctx.Done():
				return
			case jobs <- i:
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if ctx.Err() != nil {
					continue
				}
				outcomes <- o.runTask(idx, configs[idx], bars, exec)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	results := make([]*backtest.Result, len(configs))
	failures := make([]*Failure, len(configs))
	for to := range outcomes {
		cfg := configs[to.index]
		if to.failure != nil {
			out.Failed++
			failures[to.index] = to.failure
			log.Warn().
				Str("sweep_id", out.SweepID).
				Str("config_id", to.failure.ConfigID).
				Str("kind", to.failure.Kind.String()).
				Msg(to.failure.Reason)
			o.Progress.record(cfg.String(), to.failure.ConfigID, 0, false, to.failure.Reason)
		} else {
			out.Succeeded++
			results[to.index] = to.result
			o.Progress.record(to.result.Name, to.result.ConfigID, to.result.Metrics.Sharpe.Or(0), true, "")
			if o.OnResult != nil {
				o.OnResult(to.result)
			}
		}
		if o.Recorder != nil {
			o.Recorder.ConfigCompleted(string(cfg.StrategyID), to.failure == nil, to.elapsed)
		}
	}

	for i := range configs {
		if results[i] != nil {
			out.Results = append(out.Results, results[i])
		}
		if failures[i] != nil {
			out.Failures = append(out.Failures, *failures[i])
		}
	}
	out.Skipped = out.Total - out.Succeeded - out.Failed
	out.Cancelled = ctx.Err() != nil && out.Skipped > 0
	out.CompletedAt = o.now()
	o.Progress.finish(out.Cancelled)

	log.Info().
		Str("sweep_id", out.SweepID).
		Int("succeeded", out.Succeeded).
		Int("failed", out.Failed).
		Int("skipped", out.Skipped).
		Bool("cancelled", out.Cancelled).
		Dur("elapsed", out.CompletedAt.Sub(out.StartedAt)).
		Msg("Sweep completed")
	return out, nil
}

// runTask is a pure function of the config and the read-only bars. A panic
// is converted into an invariant failure so the batch survives it.
func (o *Orchestrator) runTask(idx int, cfg Config, bars map[string]*data.Series, exec backtest.ExecutionConfig) (to taskOutcome) {
	const op = "sweep.task"
	to.index = idx
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			to.result = nil
			to.failure = newFailure(cfg, errs.Invariantf(op, "panic: %v", r))
		}
		to.elapsed = time.Since(start)
	}()

	if err := cfg.Validate(); err != nil {
		to.failure = newFailure(cfg, err)
		return to
	}
	series := bars[cfg.Symbol]
	if series == nil {
		to.failure = newFailure(cfg, errs.Dataf(op, "no bars for symbol %q", cfg.Symbol))
		return to
	}
	if !cfg.DateRange.IsZero() {
		series = series.Between(cfg.DateRange.From, cfg.DateRange.To)
	}
	if series.Len() < 2 {
		to.failure = newFailure(cfg, errs.Dataf(op, "insufficient bars for %s in %s: %d", cfg.Symbol, cfg.DateRange, series.Len()))
		return to
	}

	taskExec := exec
	taskExec.Cost = cfg.Cost
	res, err := runBacktest(series, cfg.Strategy(), taskExec, o.Cache)
	if err != nil {
		to.failure = newFailure(cfg, err)
		return to
	}
	res.ConfigID = cfg.ID()
	to.result = res
	return to
}

// Options configures RunSweep.
type Options struct {
	Workers   int
	DateRange data.DateRange
	Cache     *indicators.Cache
	Progress  *Progress
	Recorder  Recorder
}

// RunSweep expands grids over symbols and runs the resulting configs.
func RunSweep(ctx context.Context, bars map[string]*data.Series, grids []Grid, symbols []string, exec backtest.ExecutionConfig, opts Options) (*Outcome, error) {
	if len(symbols) == 0 {
		symbols = data.Symbols(bars)
	} else {
		symbols = append([]string(nil), symbols...)
		sort.Strings(symbols)
	}
	o := &Orchestrator{
		Workers:  opts.Workers,
		Cache:    opts.Cache,
		Progress: opts.Progress,
		Recorder: opts.Recorder,
	}
	if o.Cache == nil {
		o.Cache = indicators.NewCache()
	}
	return o.Run(ctx, bars, Expand(grids, symbols, opts.DateRange, exec.Cost), exec)
}
