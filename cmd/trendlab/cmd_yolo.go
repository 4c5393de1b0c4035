package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/leaderboard"
	tlog "github.com/sawpanic/trendlab/internal/log"
	"github.com/sawpanic/trendlab/internal/sweep"
	"github.com/sawpanic/trendlab/internal/yolo"
)

// searchFlags tune a continuous search over the config file values.
func searchFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("search", pflag.ContinueOnError)
	fs.Float64("jitter", 0, "Fraction each grid value is perturbed by")
	fs.String("profile", "", "Ranking profile reported each iteration")
	fs.Uint64("seed", 0, "Jitter seed")
	fs.Int("iterations", 0, "Stop after this many iterations (0 = until interrupted)")
	fs.Duration("interval", 0, "Minimum time between iterations")
	fs.Int("capacity", 0, "Entries kept per profile")
	return fs
}

// searchConfig merges flags into the configured search settings.
func searchConfig(cmd *cobra.Command) (yolo.Config, error) {
	f := cmd.Flags()
	yc := cfg.Yolo
	exec, err := executionConfig(cmd)
	if err != nil {
		return yc, err
	}
	yc.Exec = exec
	yc.Workers = workers(cmd)
	if yc.Capacity == 0 {
		yc.Capacity = cfg.Leaderboard.Capacity
	}
	if f.Changed("jitter") {
		yc.JitterPct, _ = f.GetFloat64("jitter")
	}
	if f.Changed("profile") {
		name, _ := f.GetString("profile")
		p, err := leaderboard.ParseProfile(name)
		if err != nil {
			return yc, err
		}
		yc.Profile = p
	}
	if f.Changed("seed") {
		yc.Seed, _ = f.GetUint64("seed")
	}
	if f.Changed("iterations") {
		yc.MaxIterations, _ = f.GetInt("iterations")
	}
	if f.Changed("interval") {
		yc.MinInterval, _ = f.GetDuration("interval")
	}
	if f.Changed("capacity") {
		yc.Capacity, _ = f.GetInt("capacity")
	}
	if f.Changed("depth") {
		name, _ := f.GetString("depth")
		d, err := sweep.ParseDepth(name)
		if err != nil {
			return yc, err
		}
		yc.Depth = d
	}
	if f.Changed("strategy") || f.Changed("grid") {
		gs, err := grids(cmd)
		if err != nil {
			return yc, err
		}
		yc.BaseGrids = gs
	}
	if syms, _ := f.GetStringSlice("symbols"); len(syms) > 0 {
		yc.Symbols = syms
	}
	return yc, yc.Validate()
}

func newYoloCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "yolo",
		Short: "Search continuously with jittered sweeps",
		Long: `Repeatedly jitter the strategy grids, sweep them and feed every result to
the session and all-time leaderboards. The all-time board is saved after
each iteration. Ctrl-C stops after the running sweep completes.`,
		Example: "  trendlab yolo --data bars.csv --jitter 0.15 --profile balanced",
		RunE:    runYolo,
	}
	cmd.Flags().AddFlagSet(dataFlags())
	cmd.Flags().AddFlagSet(execFlags())
	cmd.Flags().AddFlagSet(gridFlags())
	cmd.Flags().AddFlagSet(searchFlags())
	cmd.Flags().Bool("progress", true, "Show sweep progress on stderr")
	return cmd
}

// newSearch builds a search wired to the store and the persistence sink.
func newSearch(ctx context.Context, cmd *cobra.Command, st leaderboard.Store, sinks *outputs, progress *sweep.Progress, rec sweep.Recorder) (*yolo.Search, error) {
	yc, err := searchConfig(cmd)
	if err != nil {
		return nil, err
	}
	bars, _, err := loadBars(cmd)
	if err != nil {
		return nil, err
	}
	s, err := yolo.New(ctx, yc, bars, st)
	if err != nil {
		return nil, err
	}
	s.Orchestrator.Progress = progress
	s.Orchestrator.Recorder = rec
	s.OnIteration = func(rep yolo.IterationReport) {
		wctx := context.WithoutCancel(ctx)
		if err := st.Save(wctx, s.Session.Snapshot()); err != nil {
			log.Warn().Err(err).Int("iteration", rep.Iteration).Msg("Failed to save session leaderboard")
		}
		sinks.writeBoard(wctx, s.Session.Snapshot())
		sinks.writeBoard(wctx, s.AllTime.Snapshot())
	}
	return s, nil
}

func runYolo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	sinks := openOutputs(ctx, "")
	defer sinks.Close()

	progress := sweep.NewProgress()
	s, err := newSearch(ctx, cmd, st, sinks, progress, nil)
	if err != nil {
		return err
	}
	if show, _ := cmd.Flags().GetBool("progress"); show {
		reporter := tlog.NewProgressReporter("yolo", progress, os.Stderr, tlog.IsTerminal(os.Stderr))
		reporter.Start()
		defer reporter.Stop()
	}

	started := time.Now()
	sum, err := s.Run(ctx)
	if sum != nil {
		fmt.Printf("session %s: %d iterations, %d configs tested (%d failed), %d displaced, %s\n",
			sum.SessionID, sum.Iterations, sum.ConfigsTested, sum.Failed, sum.Displaced,
			time.Since(started).Round(time.Second))
		if sum.Best != nil {
			fmt.Printf("best %s: %s on %s, score %.3f, sharpe %s\n",
				sum.Best.Profile, sum.Best.Name, sum.Best.Symbol, sum.Best.Score, ratio(sum.Best.Metrics.Sharpe))
		}
		if s.History != nil {
			fmt.Printf("history: %s\n", s.History.Path())
		}
	}
	if errs.Is(err, errs.Cancelled) {
		return nil
	}
	return err
}
