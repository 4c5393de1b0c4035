package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/domain/indicators"
	"github.com/sawpanic/trendlab/internal/strategy"
	"github.com/sawpanic/trendlab/internal/sweep"
)

func newBacktestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run one strategy configuration",
		Long: `Run a single strategy with fixed parameters on every loaded symbol,
or on --symbol only. Parameters not given take their defaults.`,
		Example: "  trendlab backtest --data bars.csv --strategy donchian --param entry_lookback=55 --param exit_lookback=20",
		RunE:    runBacktest,
	}
	cmd.Flags().AddFlagSet(dataFlags())
	cmd.Flags().AddFlagSet(execFlags())
	cmd.Flags().String("strategy", "", "Strategy name (required)")
	cmd.Flags().StringArray("param", nil, "Strategy parameter key=value (repeatable)")
	cmd.Flags().Bool("turtle-s1", false, "Use the 20/10 Donchian system")
	cmd.Flags().Bool("turtle-s2", false, "Use the 55/20 Donchian system")
	cmd.Flags().String("json", "", "Write full results as JSON to this file (- for stdout)")
	return cmd
}

func backtestStrategy(cmd *cobra.Command) (strategy.Config, error) {
	f := cmd.Flags()
	if s1, _ := f.GetBool("turtle-s1"); s1 {
		return sweep.TurtleS1(), nil
	}
	if s2, _ := f.GetBool("turtle-s2"); s2 {
		return sweep.TurtleS2(), nil
	}
	name, _ := f.GetString("strategy")
	kind, err := strategy.ParseKind(name)
	if err != nil {
		return strategy.Config{}, err
	}
	pairs, _ := f.GetStringArray("param")
	params, err := parseParams(pairs)
	if err != nil {
		return strategy.Config{}, err
	}
	norm, err := strategy.Normalize(kind, params)
	if err != nil {
		return strategy.Config{}, err
	}
	return strategy.Config{Kind: kind, Params: norm}, nil
}

func runBacktest(cmd *cobra.Command, args []string) error {
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
	bars, _, err := loadBars(cmd)
	if err != nil {
		return err
	}
	bars = restrict(bars, dr)

	symbols := data.Symbols(bars)
	if sym, _ := cmd.Flags().GetString("symbol"); sym != "" {
		s, err := singleSeries(cmd, bars)
		if err != nil {
			return err
		}
		symbols = []string{s.Symbol}
	}

	cache := indicators.NewCache()
	var results []*backtest.Result
	for _, sym := range symbols {
		r, err := backtest.RunBacktest(bars[sym], sc, exec, cache)
		if err != nil {
			return fmt.Errorf("backtest %s on %s: %w", sc.Kind, sym, err)
		}
		r.ConfigID = sweep.Config{StrategyID: sc.Kind, Params: sc.Params, Symbol: sym, DateRange: dr, Cost: exec.Cost}.ID()
		log.Info().
			Str("config_id", r.ConfigID).
			Str("symbol", sym).
			Int("trades", r.Metrics.NumTrades).
			Str("sharpe", r.Metrics.Sharpe.String()).
			Msg("Backtest complete")
		results = append(results, r)
	}

	printResults(os.Stdout, results, 0)
	if path, _ := cmd.Flags().GetString("json"); path != "" {
		return writeJSONFile(path, results)
	}
	return nil
}
