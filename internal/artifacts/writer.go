// Package artifacts writes the on-disk record of a sweep run.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/trendlab/internal/artifacts/manifest"
	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/metrics"
	"github.com/sawpanic/trendlab/internal/sweep"
)

const (
	TradesFile   = "trades.csv"
	EquityFile   = "equity.csv"
	MetricsFile  = "metrics.csv"
	FailuresFile = "failures.csv"
)

// pricePlaces fixes the precision of money columns.
const pricePlaces = 8

type tradeRow struct {
	ConfigID   string `csv:"config_id"`
	Symbol     string `csv:"symbol"`
	Direction  string `csv:"direction"`
	EntryTime  string `csv:"entry_time"`
	EntryPrice string `csv:"entry_price"`
	ExitTime   string `csv:"exit_time"`
	ExitPrice  string `csv:"exit_price"`
	Quantity   string `csv:"quantity"`
	Fees       string `csv:"fees"`
	GrossPnl   string `csv:"gross_pnl"`
	NetPnl     string `csv:"net_pnl"`
	Return     string `csv:"return"`
	BarsHeld   int    `csv:"bars_held"`
}

type equityRow struct {
	ConfigID      string `csv:"config_id"`
	Timestamp     string `csv:"timestamp"`
	Cash          string `csv:"cash"`
	PositionValue string `csv:"position_value"`
	Equity        string `csv:"equity"`
	Drawdown      string `csv:"drawdown"`
	Pnl           string `csv:"pnl"`
	Costs         string `csv:"costs"`
}

// metricsRow mirrors metrics.Metrics field by field so copier can fill it.
type metricsRow struct {
	ConfigID     string        `csv:"config_id"`
	Name         string        `csv:"name"`
	Strategy     string        `csv:"strategy"`
	Symbol       string        `csv:"symbol"`
	Sector       string        `csv:"sector"`
	DataVersion  string        `csv:"data_version"`
	TotalReturn  metrics.Value `csv:"total_return"`
	CAGR         metrics.Value `csv:"cagr"`
	Sharpe       metrics.Value `csv:"sharpe"`
	Sortino      metrics.Value `csv:"sortino"`
	MaxDrawdown  metrics.Value `csv:"max_drawdown"`
	Calmar       metrics.Value `csv:"calmar"`
	WinRate      metrics.Value `csv:"win_rate"`
	ProfitFactor metrics.Value `csv:"profit_factor"`
	Turnover     metrics.Value `csv:"turnover"`
	Exposure     metrics.Value `csv:"exposure"`
	NumTrades    int           `csv:"num_trades"`
	Bars         int           `csv:"bars"`
}

type failureRow struct {
	ConfigID string `csv:"config_id"`
	Strategy string `csv:"strategy"`
	Symbol   string `csv:"symbol"`
	Kind     string `csv:"kind"`
	Reason   string `csv:"reason"`
}

func money(v float64) string {
	return decimal.NewFromFloat(v).Round(pricePlaces).String()
}

func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }

// Writer lays out one directory per sweep under Dir.
type Writer struct {
	Dir           string
	ModuleVersion string
}

// NewWriter returns a writer stamped with the binary's module version.
func NewWriter(dir string) *Writer {
	version := "devel"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		version = info.Main.Version
	}
	return &Writer{Dir: dir, ModuleVersion: version}
}

// RunDir is where a sweep's artifacts live.
func (w *Writer) RunDir(sweepID string) string {
	return filepath.Join(w.Dir, sweepID)
}

// WriteRun writes the CSVs and manifest of a sweep and returns the manifest.
// versions maps symbols to their data version marker.
func (w *Writer) WriteRun(out *sweep.Outcome, exec backtest.ExecutionConfig, versions map[string]string) (*manifest.Manifest, error) {
	if out == nil || out.SweepID == "" {
		return nil, fmt.Errorf("write run: outcome has no sweep id")
	}
	dir := w.RunDir(out.SweepID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	m := manifest.FromOutcome(out, exec, versions, w.ModuleVersion)

	var (
		trades []tradeRow
		equity []equityRow
		rows   []metricsRow
	)
	for _, r := range out.Results {
		trades = append(trades, tradeRows(r)...)
		equity = append(equity, equityRows(r)...)
		row, err := newMetricsRow(r)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	failures := make([]failureRow, 0, len(out.Failures))
	for _, f := range out.Failures {
		failures = append(failures, failureRow{
			ConfigID: f.ConfigID,
			Strategy: f.Strategy,
			Symbol:   f.Symbol,
			Kind:     f.Kind.String(),
			Reason:   f.Reason,
		})
	}

	files := []struct {
		name string
		rows any
	}{
		{TradesFile, &trades},
		{EquityFile, &equity},
		{MetricsFile, &rows},
		{FailuresFile, &failures},
	}
	for _, f := range files {
		if err := writeCSV(filepath.Join(dir, f.name), f.rows); err != nil {
			return nil, err
		}
		if err := m.AddFile(dir, f.name); err != nil {
			return nil, err
		}
	}
	if err := manifest.Save(dir, m); err != nil {
		return nil, err
	}

	log.Info().
		Str("sweep_id", out.SweepID).
		Str("dir", dir).
		Int("results", len(out.Results)).
		Int("failures", len(out.Failures)).
		Msg("Wrote sweep artifacts")
	return m, nil
}

func writeCSV(path string, rows any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if err := gocsv.MarshalFile(rows, f); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return f.Sync()
}

func tradeRows(r *backtest.Result) []tradeRow {
	out := make([]tradeRow, 0, len(r.Trades))
	for _, t := range r.Trades {
		out = append(out, tradeRow{
			ConfigID:   r.ConfigID,
			Symbol:     r.Symbol,
			Direction:  t.Direction.String(),
			EntryTime:  stamp(t.Entry.Timestamp),
			EntryPrice: money(t.Entry.Price),
			ExitTime:   stamp(t.Exit.Timestamp),
			ExitPrice:  money(t.Exit.Price),
			Quantity:   money(t.Entry.Quantity),
			Fees:       money(t.Entry.Fees + t.Exit.Fees),
			GrossPnl:   money(t.GrossPnl),
			NetPnl:     money(t.NetPnl),
			Return:     money(t.Return),
			BarsHeld:   t.BarsHeld,
		})
	}
	return out
}

func equityRows(r *backtest.Result) []equityRow {
	out := make([]equityRow, 0, len(r.EquityCurve))
	for _, p := range r.EquityCurve {
		out = append(out, equityRow{
			ConfigID:      r.ConfigID,
			Timestamp:     stamp(p.Timestamp),
			Cash:          money(p.Cash),
			PositionValue: money(p.PositionValue),
			Equity:        money(p.Equity),
			Drawdown:      money(p.Drawdown),
			Pnl:           money(p.Pnl),
			Costs:         money(p.Costs),
		})
	}
	return out
}

func newMetricsRow(r *backtest.Result) (metricsRow, error) {
	row := metricsRow{
		ConfigID:    r.ConfigID,
		Name:        r.Name,
		Strategy:    string(r.Strategy.Kind),
		Symbol:      r.Symbol,
		Sector:      r.Sector,
		DataVersion: r.DataVersion,
	}
	if err := copier.Copy(&row, &r.Metrics); err != nil {
		return row, fmt.Errorf("copy metrics of %s: %w", r.ConfigID, err)
	}
	return row, nil
}

// ReadMetrics loads a metrics.csv back, keyed by config id.
func ReadMetrics(path string) (map[string]metrics.Metrics, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var rows []metricsRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	out := make(map[string]metrics.Metrics, len(rows))
	for _, row := range rows {
		var m metrics.Metrics
		if err := copier.Copy(&m, &row); err != nil {
			return nil, err
		}
		out[row.ConfigID] = m
	}
	return out, nil
}
