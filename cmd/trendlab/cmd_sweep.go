package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/domain/indicators"
	"github.com/sawpanic/trendlab/internal/errs"
	tlog "github.com/sawpanic/trendlab/internal/log"
	"github.com/sawpanic/trendlab/internal/sweep"
	"github.com/sawpanic/trendlab/internal/telemetry"
)

// gridFlags choose the configurations a sweep expands.
func gridFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("grid", pflag.ContinueOnError)
	fs.StringSlice("strategy", nil, "Strategies to sweep (default all)")
	fs.StringArray("grid", nil, "Explicit axis key=v1,v2,... for a single strategy (repeatable)")
	fs.String("depth", "", "Preset depth (quick|standard|comprehensive)")
	fs.Int("workers", 0, "Worker pool size (0 = config or CPU count)")
	return fs
}

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run a parameter sweep",
		Long: `Expand strategy grids over every loaded symbol and run each configuration
on a bounded worker pool. Results are written as CSV artifacts with a
manifest and, when configured, mirrored to S3, InfluxDB and PostgreSQL.
Ctrl-C stops intake; running configurations finish and are kept.`,
		Example: "  trendlab sweep --data bars.csv --strategy donchian --depth standard --workers 8 --out artifacts",
		RunE:    runSweepCmd,
	}
	cmd.Flags().AddFlagSet(dataFlags())
	cmd.Flags().AddFlagSet(execFlags())
	cmd.Flags().AddFlagSet(gridFlags())
	cmd.Flags().String("out", "", "Artifacts directory (default from config)")
	cmd.Flags().Bool("no-artifacts", false, "Skip writing artifacts")
	cmd.Flags().Int("top", 20, "Rows to print")
	cmd.Flags().Bool("progress", true, "Show sweep progress on stderr")
	return cmd
}

func workers(cmd *cobra.Command) int {
	if cmd.Flags().Changed("workers") {
		n, _ := cmd.Flags().GetInt("workers")
		return n
	}
	return cfg.Sweep.Workers
}

// sweepRun is a finished sweep together with the inputs it ran on.
type sweepRun struct {
	outcome *sweep.Outcome
	bars    map[string]*data.Series
	exec    backtest.ExecutionConfig
	cache   *indicators.Cache
	timings *telemetry.Timings
}

// executeSweep loads bars, expands grids and runs them with progress
// reporting. Shared by sweep and stats.
func executeSweep(cmd *cobra.Command) (*sweepRun, error) {
	exec, err := executionConfig(cmd)
	if err != nil {
		return nil, err
	}
	gs, err := grids(cmd)
	if err != nil {
		return nil, err
	}
	dr, err := dateRange(cmd)
	if err != nil {
		return nil, err
	}
	bars, _, err := loadBars(cmd)
	if err != nil {
		return nil, err
	}

	progress := sweep.NewProgress()
	if show, _ := cmd.Flags().GetBool("progress"); show {
		reporter := tlog.NewProgressReporter("sweep", progress, os.Stderr, tlog.IsTerminal(os.Stderr))
		reporter.Start()
		defer reporter.Stop()
	}

	run := &sweepRun{bars: bars, exec: exec, cache: indicators.NewCache(), timings: telemetry.NewTimings()}
	out, err := sweep.RunSweep(cmd.Context(), bars, gs, nil, exec, sweep.Options{
		Workers:   workers(cmd),
		DateRange: dr,
		Cache:     run.cache,
		Progress:  progress,
		Recorder:  run.timings,
	})
	if err != nil {
		return nil, err
	}
	run.outcome = out
	return run, nil
}

func runSweepCmd(cmd *cobra.Command, args []string) error {
	run, err := executeSweep(cmd)
	if err != nil {
		return err
	}
	out := run.outcome

	dir, _ := cmd.Flags().GetString("out")
	if dir == "" {
		dir = cfg.Artifacts.Dir
	}
	if skip, _ := cmd.Flags().GetBool("no-artifacts"); skip {
		dir = ""
	}
	sinks := openOutputs(cmd.Context(), dir)
	defer sinks.Close()
	runDir, err := sinks.publish(cmd.Context(), out, run.exec, versions(run.bars))
	if err != nil {
		return err
	}

	top, _ := cmd.Flags().GetInt("top")
	printResults(os.Stdout, out.Results, top)
	fmt.Printf("\nsweep %s: %d configs, %d succeeded, %d failed, %d skipped\n",
		out.SweepID, out.Total, out.Succeeded, out.Failed, out.Skipped)
	if runDir != "" {
		fmt.Printf("artifacts: %s\n", runDir)
	}
	for _, t := range run.timings.Summary() {
		log.Debug().
			Str("strategy", t.Strategy).
			Int("runs", t.Count).
			Float64("p50_ms", t.P50).
			Float64("p95_ms", t.P95).
			Msg("Simulation timings")
	}

	if out.Cancelled {
		return errs.CancelledErr("sweep", cmd.Context().Err())
	}
	return nil
}
