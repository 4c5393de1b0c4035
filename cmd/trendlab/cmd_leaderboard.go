package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/leaderboard"
)

// openStore returns the configured all-time leaderboard store and a closer.
func openStore(ctx context.Context) (leaderboard.Store, func(), error) {
	if !cfg.Leaderboard.Redis {
		return leaderboard.FileStore{Dir: cfg.Leaderboard.Dir}, func() {}, nil
	}
	r := cfg.Cache.Redis
	client, err := leaderboard.DialRedis(ctx, r.Addr, r.Password, r.DB)
	if err != nil {
		return nil, nil, err
	}
	return leaderboard.NewRedisStore(client, cfg.Leaderboard.RedisTTL), func() { client.Close() }, nil
}

// loadBoard reads one scope from the store; a missing board is empty.
func loadBoard(ctx context.Context, st leaderboard.Store, scope leaderboard.Scope) (*leaderboard.Leaderboard, error) {
	lb := leaderboard.New(scope, leaderboard.NoSession, cfg.Leaderboard.Capacity)
	if _, err := leaderboard.LoadInto(ctx, st, lb); err != nil {
		return nil, err
	}
	return lb, nil
}

func newLeaderboardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "leaderboard",
		Short:   "Show a stored leaderboard",
		Example: "  trendlab leaderboard --scope all_time --profile balanced --n 4",
		RunE:    runLeaderboard,
	}
	cmd.Flags().String("scope", string(leaderboard.AllTimeScope), "Board scope (session|all_time)")
	cmd.Flags().String("profile", string(leaderboard.Balanced), "Ranking profile")
	cmd.Flags().Int("n", leaderboard.DefaultCapacity, "Entries to show")
	cmd.Flags().Bool("json", false, "Print JSON")
	return cmd
}

func runLeaderboard(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	scopeName, _ := f.GetString("scope")
	scope := leaderboard.Scope(scopeName)
	if scope != leaderboard.AllTimeScope && scope != leaderboard.SessionScope {
		return errs.Configf("cmd.leaderboard", "unknown scope %q", scopeName)
	}
	name, _ := f.GetString("profile")
	profile, err := leaderboard.ParseProfile(name)
	if err != nil {
		return err
	}
	n, _ := f.GetInt("n")
	if n < 1 {
		return errs.Configf("cmd.leaderboard", "--n must be at least 1")
	}

	st, closeStore, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore()
	lb, err := loadBoard(cmd.Context(), st, scope)
	if err != nil {
		return err
	}
	entries := lb.Top(profile, n)

	if asJSON, _ := f.GetBool("json"); asJSON {
		return writeJSON(os.Stdout, entries)
	}
	if len(entries) == 0 {
		fmt.Printf("%s leaderboard (%s) is empty\n", scope, profile)
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSCORE\tNAME\tSYMBOL\tSECTOR\tSHARPE\tRETURN\tMAX DD\tCONF\tFOUND")
	for _, e := range entries {
		m := e.Metrics
		fmt.Fprintf(tw, "%d\t%.3f\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Rank, e.Score, e.Name, e.Symbol, e.Sector, ratio(m.Sharpe), pct(m.TotalReturn),
			pct(m.MaxDrawdown), e.Confidence.Badge(), e.DiscoveredAt.Format("2006-01-02 15:04"))
	}
	return tw.Flush()
}
