package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/trendlab/internal/errs"
	monitor "github.com/sawpanic/trendlab/internal/interfaces/http"
	"github.com/sawpanic/trendlab/internal/leaderboard"
	"github.com/sawpanic/trendlab/internal/sweep"
	"github.com/sawpanic/trendlab/internal/yolo"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the read-only monitor server",
		Long: `Serve /health, /leaderboard/{profile}, /sweeps/latest, /metrics and the
/ws/progress websocket. With --yolo a continuous search runs in the same
process and its boards and progress are served live; otherwise the stored
boards are served as loaded at startup.`,
		Example: "  trendlab serve --port 8080\n  trendlab serve --yolo --data bars.csv",
		RunE:    runServe,
	}
	cmd.Flags().String("host", "", "Listen host (default from config)")
	cmd.Flags().Int("port", 0, "Listen port (default from config or HTTP_PORT)")
	cmd.Flags().Bool("yolo", false, "Run a continuous search alongside the server")
	cmd.Flags().AddFlagSet(dataFlags())
	cmd.Flags().AddFlagSet(execFlags())
	cmd.Flags().AddFlagSet(gridFlags())
	cmd.Flags().AddFlagSet(searchFlags())
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	f := cmd.Flags()
	sc := cfg.HTTP
	if f.Changed("host") {
		sc.Host, _ = f.GetString("host")
	}
	if f.Changed("port") {
		sc.Port, _ = f.GetInt("port")
	}

	st, closeStore, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	sinks := openOutputs(ctx, "")
	defer sinks.Close()

	metrics := monitor.NewMetricsRegistry(prometheus.NewRegistry())
	progress := sweep.NewProgress()
	boards := make(map[leaderboard.Scope]*leaderboard.Leaderboard, 2)

	var search *yolo.Search
	if runSearch, _ := f.GetBool("yolo"); runSearch {
		search, err = newSearch(ctx, cmd, st, sinks, progress, metrics)
		if err != nil {
			return err
		}
		search.Session.Recorder = metrics
		search.AllTime.Recorder = metrics
		persist := search.OnIteration
		search.OnIteration = func(rep yolo.IterationReport) {
			metrics.IterationCompleted()
			persist(rep)
		}
		boards[leaderboard.SessionScope] = search.Session
		boards[leaderboard.AllTimeScope] = search.AllTime
	} else {
		for _, scope := range []leaderboard.Scope{leaderboard.SessionScope, leaderboard.AllTimeScope} {
			lb, err := loadBoard(ctx, st, scope)
			if err != nil {
				return err
			}
			boards[scope] = lb
		}
	}

	handlers := monitor.NewHandlers(progress, boards)
	handlers.Version = version
	if sinks.dbm != nil {
		handlers.DB = sinks.dbm.Health()
	}
	server := monitor.NewServer(sc, handlers, metrics)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(gctx) })
	if search != nil {
		g.Go(func() error {
			sum, err := search.Run(gctx)
			if errs.Is(err, errs.Cancelled) {
				return nil
			}
			if err != nil {
				return err
			}
			log.Info().Int("iterations", sum.Iterations).Msg("Search finished, server keeps running")
			return nil
		})
	}
	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
