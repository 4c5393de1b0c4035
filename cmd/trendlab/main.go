package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/trendlab/internal/config"
	"github.com/sawpanic/trendlab/internal/errs"
	tlog "github.com/sawpanic/trendlab/internal/log"
)

const (
	appName = "TrendLab"
	version = "v0.4.0"
)

var (
	configPath string
	envPath    string
	logLevel   string
	prettyLogs bool

	// cfg is loaded once by the root command before any subcommand runs.
	cfg *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Str("kind", errs.KindOf(err).String()).Msg("Command failed")
		stop()
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "trendlab",
		Short:   "Trend-following backtest research engine",
		Version: version,
		Long: `TrendLab backtests trend-following strategies over OHLCV bars.

It sweeps parameter grids across symbols, measures cost sensitivity,
validates results out of sample, and keeps leaderboards of the best
configurations found by continuous randomized search.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: loadConfig,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "Dotenv file loaded before the config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug|info|warn|error), overrides config")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty", tlog.IsTerminal(os.Stderr), "Human readable console logs")

	rootCmd.AddCommand(
		newBacktestCmd(),
		newSweepCmd(),
		newCostCmd(),
		newStatsCmd(),
		newYoloCmd(),
		newLeaderboardCmd(),
		newServeCmd(),
		newArtifactsCmd(),
		newStrategiesCmd(),
	)
	return rootCmd
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	if err := config.LoadDotEnv(envPath); err != nil {
		return err
	}
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.LogLevel = logLevel
	}
	if err := tlog.Setup(c.LogLevel, os.Stderr, prettyLogs); err != nil {
		return err
	}
	cfg = c
	log.Debug().Str("config", configPath).Str("command", cmd.Name()).Msgf("%s %s", appName, version)
	return nil
}

// exitCode maps error kinds to process exit codes.
func exitCode(err error) int {
	switch errs.KindOf(err) {
	case errs.Configuration:
		return 2
	case errs.Data:
		return 3
	case errs.Cancelled:
		return 130
	default:
		return 1
	}
}
