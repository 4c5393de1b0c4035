package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/sweep"
)

func newCostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Measure cost sensitivity of one configuration",
		Long: `Re-run one configuration under increasing fee and slippage assumptions
and report where its total return stops being positive.`,
		Example: "  trendlab cost --data bars.csv --symbol SPY --strategy ma_crossover --param fast=20 --param slow=100",
		RunE:    runCost,
	}
	cmd.Flags().AddFlagSet(dataFlags())
	cmd.Flags().AddFlagSet(execFlags())
	cmd.Flags().String("strategy", "", "Strategy name (required)")
	cmd.Flags().StringArray("param", nil, "Strategy parameter key=value (repeatable)")
	cmd.Flags().Bool("turtle-s1", false, "Use the 20/10 Donchian system")
	cmd.Flags().Bool("turtle-s2", false, "Use the 55/20 Donchian system")
	cmd.Flags().StringSlice("costs", nil, "Cost grid as fee:slippage bps pairs (default built-in grid)")
	cmd.Flags().String("json", "", "Write the report as JSON to this file (- for stdout)")
	return cmd
}

// parseCosts reads fee:slippage pairs in basis points.
func parseCosts(pairs []string) ([]backtest.CostModel, error) {
	out := make([]backtest.CostModel, 0, len(pairs))
	for _, p := range pairs {
		fee, slip, ok := strings.Cut(p, ":")
		if !ok {
			return nil, errs.Configf("cmd.parseCosts", "cost %q is not fee:slippage", p)
		}
		f, err := strconv.ParseFloat(fee, 64)
		if err != nil {
			return nil, errs.Configf("cmd.parseCosts", "cost %q: %v", p, err)
		}
		s, err := strconv.ParseFloat(slip, 64)
		if err != nil {
			return nil, errs.Configf("cmd.parseCosts", "cost %q: %v", p, err)
		}
		c := backtest.CostModel{FeeBps: f, SlippageBps: s}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func runCost(cmd *cobra.Command, args []string) error {
	sc, err := backtestStrategy(cmd)
	if err != nil {
		return err
	}
	exec, err := executionConfig(cmd)
	if err != nil {
		return err
	}
	dr, err := dateRange(cmd)
	if err != nil {
		return err
	}
	grid := sweep.DefaultCostGrid()
	if raw, _ := cmd.Flags().GetStringSlice("costs"); len(raw) > 0 {
		if grid, err = parseCosts(raw); err != nil {
			return err
		}
	}
	bars, _, err := loadBars(cmd)
	if err != nil {
		return err
	}
	s, err := singleSeries(cmd, bars)
	if err != nil {
		return err
	}

	c := sweep.Config{StrategyID: sc.Kind, Params: sc.Params, Symbol: s.Symbol, DateRange: dr}
	rep, err := sweep.CostSensitivity(cmd.Context(), s, c, exec, grid)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FEE BPS\tSLIP BPS\tRETURN\tSHARPE\tMAX DD\tTRADES")
	for _, row := range rep.Rows {
		m := row.Metrics
		fmt.Fprintf(tw, "%g\t%g\t%s\t%s\t%s\t%d\n", row.Cost.FeeBps, row.Cost.SlippageBps,
			pct(m.TotalReturn), ratio(m.Sharpe), pct(m.MaxDrawdown), m.NumTrades)
	}
	for _, f := range rep.Failures {
		fmt.Fprintf(tw, "%g\t%g\tfailed: %s\t\t\t\n", f.Cost.FeeBps, f.Cost.SlippageBps, f.Reason)
	}
	tw.Flush()

	switch {
	case rep.Breakeven != nil:
		fmt.Printf("\nbreakeven: %s (fee %s bps)\n", rep.Breakeven, rep.BreakevenFeeBps)
	default:
		fmt.Println("\nbreakeven: not reached within the grid")
	}

	if path, _ := cmd.Flags().GetString("json"); path != "" {
		if err := writeJSONFile(path, rep); err != nil {
			return err
		}
	}
	if rep.Cancelled {
		return errs.CancelledErr("cost", cmd.Context().Err())
	}
	return nil
}
