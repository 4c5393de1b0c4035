package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/metrics"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeJSONFile writes v to path, or to stdout when path is empty or "-".
func writeJSONFile(path string, v any) error {
	if path == "" || path == "-" {
		return writeJSON(os.Stdout, v)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return writeJSON(f, v)
}

func pct(v metrics.Value) string {
	if !v.Defined {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", v.Val*100)
}

func ratio(v metrics.Value) string {
	if !v.Defined {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v.Val)
}

// printResults renders one row per run, best Sharpe first.
func printResults(w io.Writer, results []*backtest.Result, limit int) {
	sorted := append([]*backtest.Result(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Metrics.Sharpe.Or(0) > sorted[j].Metrics.Sharpe.Or(0)
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CONFIG\tNAME\tSYMBOL\tRETURN\tCAGR\tSHARPE\tSORTINO\tMAX DD\tWIN\tTRADES")
	for _, r := range sorted {
		m := r.Metrics
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			r.ConfigID, r.Name, r.Symbol, pct(m.TotalReturn), pct(m.CAGR), ratio(m.Sharpe),
			ratio(m.Sortino), pct(m.MaxDrawdown), pct(m.WinRate), m.NumTrades)
	}
	tw.Flush()
}
