package http

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsRegistry holds the Prometheus metrics for sweeps, the leaderboard
// and the continuous search. It satisfies sweep.Recorder and
// leaderboard.Recorder.
type MetricsRegistry struct {
	SweepsActive       prometheus.Gauge
	SweepsTotal        prometheus.Counter
	ConfigsTotal       *prometheus.CounterVec
	ConfigDuration     *prometheus.HistogramVec
	LeaderboardInserts *prometheus.CounterVec
	SearchIterations   prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetricsRegistry registers all metrics on reg. A nil reg gets a fresh
// registry so repeated construction never panics on duplicates.
func NewMetricsRegistry(reg prometheus.Registerer) *MetricsRegistry {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &MetricsRegistry{
		SweepsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trendlab_active_sweeps",
			Help: "Number of sweeps currently running",
		}),
		SweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendlab_sweeps_total",
			Help: "Total number of sweeps started",
		}),
		ConfigsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendlab_configs_total",
			Help: "Backtest configs completed by strategy and result",
		}, []string{"strategy", "result"}),
		ConfigDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trendlab_config_duration_seconds",
			Help:    "Wall time of a single backtest",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"strategy"}),
		LeaderboardInserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trendlab_leaderboard_inserts_total",
			Help: "Entries admitted to a leaderboard by profile",
		}, []string{"profile"}),
		SearchIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trendlab_search_iterations_total",
			Help: "Continuous search iterations completed",
		}),
	}
	reg.MustRegister(m.SweepsActive, m.SweepsTotal, m.ConfigsTotal, m.ConfigDuration,
		m.LeaderboardInserts, m.SearchIterations)

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

func (m *MetricsRegistry) SweepStarted() {
	m.SweepsActive.Inc()
	m.SweepsTotal.Inc()
}

func (m *MetricsRegistry) SweepFinished() { m.SweepsActive.Dec() }

func (m *MetricsRegistry) ConfigCompleted(strategy string, ok bool, elapsed time.Duration) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.ConfigsTotal.WithLabelValues(strategy, result).Inc()
	m.ConfigDuration.WithLabelValues(strategy).Observe(elapsed.Seconds())
}

func (m *MetricsRegistry) EntryInserted(profile string) {
	m.LeaderboardInserts.WithLabelValues(profile).Inc()
}

func (m *MetricsRegistry) IterationCompleted() { m.SearchIterations.Inc() }

// Handler exposes the registry in the Prometheus text format.
func (m *MetricsRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
