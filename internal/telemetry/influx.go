package telemetry

import (
	"fmt"
	"math"
	"os"
	"time"

	client "github.com/influxdata/influxdb1-client/v2"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/trendlab/infra/breakers"
	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/metrics"
	"github.com/sawpanic/trendlab/internal/sweep"
)

// Measurement is the InfluxDB measurement every sweep result is written to.
const Measurement = "trendlab_result"

type InfluxConfig struct {
	URL      string        `yaml:"url"`
	Database string        `yaml:"database"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

func DefaultInfluxConfig() InfluxConfig {
	return InfluxConfig{Database: "trendlab", Timeout: 10 * time.Second}
}

// ApplyEnv reads INFLUX_URL, INFLUX_USER and INFLUX_PASSWORD.
func (c *InfluxConfig) ApplyEnv() {
	if v := os.Getenv("INFLUX_URL"); v != "" {
		c.URL = v
	}
	if v := os.Getenv("INFLUX_USER"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("INFLUX_PASSWORD"); v != "" {
		c.Password = v
	}
}

func (c InfluxConfig) Enabled() bool { return c.URL != "" }

// InfluxPublisher writes one point per successful sweep result.
type InfluxPublisher struct {
	client   client.Client
	database string
	breaker  *breakers.Breaker
}

func NewInfluxPublisher(cfg InfluxConfig) (*InfluxPublisher, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("influx url is not configured")
	}
	c, err := client.NewHTTPClient(client.HTTPConfig{
		Addr:     cfg.URL,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create influx client: %w", err)
	}
	return &InfluxPublisher{client: c, database: cfg.Database, breaker: breakers.New("influx")}, nil
}

// Points converts an outcome into a batch. Undefined and infinite metrics
// are omitted; line protocol cannot carry them.
func (p *InfluxPublisher) Points(out *sweep.Outcome) (client.BatchPoints, error) {
	bp, err := client.NewBatchPoints(client.BatchPointsConfig{Database: p.database, Precision: "s"})
	if err != nil {
		return nil, err
	}
	ts := out.CompletedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	for _, r := range out.Results {
		tags := map[string]string{
			"strategy":  string(r.Strategy.Kind),
			"symbol":    r.Symbol,
			"config_id": r.ConfigID,
			"sweep_id":  out.SweepID,
		}
		pt, err := client.NewPoint(Measurement, tags, fields(r), ts)
		if err != nil {
			return nil, fmt.Errorf("point for %s: %w", r.ConfigID, err)
		}
		bp.AddPoint(pt)
	}
	return bp, nil
}

func fields(r *backtest.Result) map[string]interface{} {
	m := r.Metrics
	f := map[string]interface{}{
		"num_trades": m.NumTrades,
		"bars":       m.Bars,
	}
	for name, v := range map[string]metrics.Value{
		"total_return":  m.TotalReturn,
		"cagr":          m.CAGR,
		"sharpe":        m.Sharpe,
		"sortino":       m.Sortino,
		"max_drawdown":  m.MaxDrawdown,
		"calmar":        m.Calmar,
		"win_rate":      m.WinRate,
		"profit_factor": m.ProfitFactor,
		"turnover":      m.Turnover,
		"exposure":      m.Exposure,
	} {
		if v.Defined && !math.IsInf(v.Val, 0) && !math.IsNaN(v.Val) {
			f[name] = v.Val
		}
	}
	return f
}

// Publish writes the outcome through the breaker and returns the number of
// points sent.
func (p *InfluxPublisher) Publish(out *sweep.Outcome) (int, error) {
	if out == nil || len(out.Results) == 0 {
		return 0, nil
	}
	bp, err := p.Points(out)
	if err != nil {
		return 0, err
	}
	if err := p.breaker.Do(func() error { return p.client.Write(bp) }); err != nil {
		log.Warn().Err(err).Str("sweep_id", out.SweepID).Msg("Failed to publish results to InfluxDB")
		return 0, err
	}
	log.Debug().Str("sweep_id", out.SweepID).Int("points", len(bp.Points())).Msg("Published results to InfluxDB")
	return len(bp.Points()), nil
}

func (p *InfluxPublisher) Close() error { return p.client.Close() }
