package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/regime"
	"github.com/sawpanic/trendlab/internal/stats"
)

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Run a sweep and test its results for robustness",
		Long: `Run a sweep, then analyse the results with one method:

  walkforward  rolling in-sample selection scored out of sample
  bootstrap    block-bootstrap confidence intervals and a confidence grade
  regime       performance split by volatility or trend regime
  fdr          p-values with Benjamini-Hochberg and Holm corrections

The report is written as JSON.`,
		Example: "  trendlab stats --data bars.csv --strategy donchian --method walkforward --wf-preset half_year_monthly",
		RunE:    runStats,
	}
	cmd.Flags().AddFlagSet(dataFlags())
	cmd.Flags().AddFlagSet(execFlags())
	cmd.Flags().AddFlagSet(gridFlags())
	cmd.Flags().String("method", "bootstrap", "Analysis (walkforward|bootstrap|regime|fdr)")
	cmd.Flags().String("wf-preset", "", "Walk-forward windows (yearly_quarterly|half_year_monthly|two_year_half_year)")
	cmd.Flags().String("bootstrap", "default", "Bootstrap effort (quick|default|thorough)")
	cmd.Flags().Uint64("seed", 0, "Bootstrap seed (0 keeps the default)")
	cmd.Flags().String("dimension", string(regime.ByVolatility), "Regime dimension (volatility|trend)")
	cmd.Flags().Float64("alpha", 0.05, "Significance level for corrections")
	cmd.Flags().Bool("progress", true, "Show sweep progress on stderr")
	cmd.Flags().String("out", "-", "Report file (- for stdout)")
	return cmd
}

func statsParams(cmd *cobra.Command) (stats.Method, stats.Params, error) {
	const op = "cmd.statsParams"
	f := cmd.Flags()
	p := stats.DefaultParams()

	name, _ := f.GetString("method")
	method, err := stats.ParseMethod(name)
	if err != nil {
		return "", p, err
	}
	preset, _ := f.GetString("wf-preset")
	if p.WalkForward, err = stats.WalkForwardPreset(preset); err != nil {
		return "", p, err
	}
	switch effort, _ := f.GetString("bootstrap"); effort {
	case "quick":
		p.Bootstrap = stats.QuickBootstrap()
	case "", "default":
		p.Bootstrap = stats.DefaultBootstrapConfig()
	case "thorough":
		p.Bootstrap = stats.ThoroughBootstrap()
	default:
		return "", p, errs.Configf(op, "unknown bootstrap effort %q", effort)
	}
	if f.Changed("seed") {
		p.Bootstrap.Seed, _ = f.GetUint64("seed")
	}
	dim, _ := f.GetString("dimension")
	if p.Dimension, err = regime.ParseDimension(dim); err != nil {
		return "", p, err
	}
	p.Alpha, _ = f.GetFloat64("alpha")
	if p.Alpha <= 0 || p.Alpha >= 1 {
		return "", p, errs.Configf(op, "alpha must be in (0, 1), got %g", p.Alpha)
	}
	return method, p, nil
}

func runStats(cmd *cobra.Command, args []string) error {
	method, p, err := statsParams(cmd)
	if err != nil {
		return err
	}
	run, err := executeSweep(cmd)
	if err != nil {
		return err
	}
	if run.outcome.Cancelled {
		return errs.CancelledErr("stats", cmd.Context().Err())
	}

	p.Bars = run.bars
	p.Exec = run.exec
	p.PeriodsPerYear = run.exec.PeriodsPerYear
	p.Workers = workers(cmd)
	p.Cache = run.cache

	rep, err := stats.Compute(cmd.Context(), run.outcome.Results, method, p)
	if err != nil {
		return err
	}
	log.Info().
		Str("method", string(rep.Method)).
		Int("results", rep.Results).
		Int("skipped", len(rep.Skipped)).
		Msg("Statistics complete")

	out, _ := cmd.Flags().GetString("out")
	if err := writeJSONFile(out, rep); err != nil {
		return err
	}
	if rep.Cancelled {
		return errs.CancelledErr("stats", cmd.Context().Err())
	}
	return nil
}
