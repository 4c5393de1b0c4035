package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/leaderboard"
	"github.com/sawpanic/trendlab/internal/persistence"
	"github.com/sawpanic/trendlab/internal/strategy"
	"github.com/sawpanic/trendlab/internal/sweep"
)

type fixture struct {
	server   *httptest.Server
	metrics  *MetricsRegistry
	handlers *Handlers
	outcome  *sweep.Outcome
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	metrics := NewMetricsRegistry(prometheus.NewRegistry())
	progress := sweep.NewProgress()

	bars := map[string]*data.Series{"AAA": data.Synthetic("AAA", 200, 3)}
	grids := []sweep.Grid{{Strategy: strategy.TSMOM, Params: map[string][]float64{"lookback": {10, 20, 40}}}}
	out, err := sweep.RunSweep(context.Background(), bars, grids, nil, backtest.DefaultExecutionConfig(),
		sweep.Options{Workers: 2, Progress: progress, Recorder: metrics})
	require.NoError(t, err)

	board := leaderboard.New(leaderboard.AllTimeScope, leaderboard.NoSession, 2)
	board.Recorder = metrics
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for _, r := range out.Results {
		board.Submit(leaderboard.NewEntry(r, "s1", 1, now))
	}

	h := NewHandlers(progress, map[leaderboard.Scope]*leaderboard.Leaderboard{leaderboard.AllTimeScope: board})
	cfg := DefaultServerConfig()
	cfg.StreamInterval = 10 * time.Millisecond
	srv := httptest.NewServer(NewServer(cfg, h, metrics).Handler())
	t.Cleanup(srv.Close)
	return &fixture{server: srv, metrics: metrics, handlers: h, outcome: out}
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	resp, body := get(t, f.server.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Len(t, resp.Header.Get("X-Request-ID"), 8)

	var h HealthResponse
	require.NoError(t, json.Unmarshal(body, &h))
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, f.outcome.SweepID, h.Sweep.SweepID)
	assert.Equal(t, 2, h.Boards["all_time"])
	assert.Nil(t, h.Database)
}

type downDB struct{}

func (downDB) Health(context.Context) persistence.HealthCheck {
	return persistence.HealthCheck{Healthy: false, Errors: []string{"ping failed"}}
}
func (downDB) Ping(context.Context) error                   { return errors.New("down") }
func (downDB) Stats(context.Context) map[string]interface{} { return nil }

func TestHealthDegradedWithFailingDatabase(t *testing.T) {
	f := newFixture(t)
	f.handlers.DB = downDB{}
	_, body := get(t, f.server.URL+"/health")
	var h HealthResponse
	require.NoError(t, json.Unmarshal(body, &h))
	assert.Equal(t, "degraded", h.Status)
	require.NotNil(t, h.Database)
	assert.False(t, h.Database.Healthy)
}

func TestLeaderboardEndpoint(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		path   string
		status int
		code   string
		count  int
	}{
		{"default_n", "/leaderboard/balanced", http.StatusOK, "", 2},
		{"explicit_n", "/leaderboard/sharpe_only?n=1", http.StatusOK, "", 1},
		{"unknown_profile", "/leaderboard/reckless", http.StatusBadRequest, "invalid_profile", 0},
		{"bad_n", "/leaderboard/balanced?n=zero", http.StatusBadRequest, "invalid_n", 0},
		{"n_too_large", "/leaderboard/balanced?n=1000", http.StatusBadRequest, "invalid_n", 0},
		{"unknown_scope", "/leaderboard/balanced?scope=session", http.StatusNotFound, "unknown_scope", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, f.server.URL+tt.path)
			require.Equal(t, tt.status, resp.StatusCode)
			if tt.code != "" {
				var e ErrorResponse
				require.NoError(t, json.Unmarshal(body, &e))
				assert.Equal(t, tt.code, e.Code)
				assert.NotEqual(t, "unknown", e.RequestID)
				return
			}
			var lb LeaderboardResponse
			require.NoError(t, json.Unmarshal(body, &lb))
			assert.Len(t, lb.Entries, tt.count)
			assert.Equal(t, leaderboard.AllTimeScope, lb.Scope)
			assert.Equal(t, 1, lb.Entries[0].Rank)
		})
	}
}

func TestLatestSweepAndNotFound(t *testing.T) {
	f := newFixture(t)
	resp, body := get(t, f.server.URL+"/sweeps/latest")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap sweep.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, 3, snap.Completed)
	assert.False(t, snap.Running)

	resp, body = get(t, f.server.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "endpoint_not_found")

	idle := httptest.NewServer(NewServer(DefaultServerConfig(), NewHandlers(sweep.NewProgress(), nil), nil).Handler())
	defer idle.Close()
	resp, _ = get(t, idle.URL+"/sweeps/latest")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestMetricsRecorded(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, 3.0, counterValue(t, f.metrics.ConfigsTotal.WithLabelValues("tsmom", "ok")))
	assert.Equal(t, 1.0, counterValue(t, f.metrics.SweepsTotal))
	// two entries fill the balanced board; the third only lands if it beats one
	assert.GreaterOrEqual(t, counterValue(t, f.metrics.LeaderboardInserts.WithLabelValues("balanced")), 2.0)

	var g dto.Metric
	require.NoError(t, f.metrics.SweepsActive.Write(&g))
	assert.Equal(t, 0.0, g.GetGauge().GetValue())

	f.metrics.IterationCompleted()
	assert.Equal(t, 1.0, counterValue(t, f.metrics.SearchIterations))

	resp, err := http.Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
}

func TestProgressStream(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/progress"

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var snap sweep.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, f.outcome.SweepID, snap.SweepID)
	assert.Equal(t, 100.0, snap.Percent)

	rejected := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err = websocket.DefaultDialer.Dial(url, rejected)
	assert.Error(t, err)
	if resp != nil {
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	}
}
