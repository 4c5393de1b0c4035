package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/sawpanic/trendlab/internal/errs"
	"github.com/sawpanic/trendlab/internal/leaderboard"
	"github.com/sawpanic/trendlab/internal/persistence"
	"github.com/sawpanic/trendlab/internal/sweep"
)

// maxTopN bounds the n query parameter.
const maxTopN = 100

// Handlers serves read-only views over the running process. Any field may
// be nil.
type Handlers struct {
	Progress *sweep.Progress
	Boards   map[leaderboard.Scope]*leaderboard.Leaderboard
	DB       persistence.RepositoryHealth
	Version  string

	started time.Time
}

func NewHandlers(progress *sweep.Progress, boards map[leaderboard.Scope]*leaderboard.Leaderboard) *Handlers {
	return &Handlers{Progress: progress, Boards: boards, Version: "dev", started: time.Now()}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	h.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: RequestID(r.Context()),
		Timestamp: time.Now().UTC(),
	})
}

// Health reports degraded when the database is configured and failing.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Version:   h.Version,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Sweep:     h.Progress.Snapshot(),
		Boards:    map[string]int{},
	}
	for scope, lb := range h.Boards {
		resp.Boards[string(scope)] = lb.Len(leaderboard.Balanced)
	}
	if h.DB != nil {
		check := h.DB.Health(r.Context())
		resp.Database = &check
		if !check.Healthy {
			resp.Status = "degraded"
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Leaderboard serves GET /leaderboard/{profile}?n=&scope=.
func (h *Handlers) Leaderboard(w http.ResponseWriter, r *http.Request) {
	profile, err := leaderboard.ParseProfile(mux.Vars(r)["profile"])
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_profile", err.Error())
		return
	}

	n := leaderboard.DefaultCapacity
	if raw := r.URL.Query().Get("n"); raw != "" {
		n, err = strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTopN {
			h.writeError(w, r, http.StatusBadRequest, "invalid_n",
				"n must be an integer between 1 and "+strconv.Itoa(maxTopN))
			return
		}
	}

	scope := leaderboard.Scope(r.URL.Query().Get("scope"))
	if scope == "" {
		scope = leaderboard.AllTimeScope
	}
	lb, ok := h.Boards[scope]
	if !ok {
		h.writeError(w, r, http.StatusNotFound, "unknown_scope",
			errs.Configf("leaderboard", "no %q leaderboard is loaded", scope).Error())
		return
	}

	h.writeJSON(w, http.StatusOK, LeaderboardResponse{
		Profile:   profile,
		Scope:     lb.Scope,
		SessionID: lb.SessionID,
		Stats:     lb.Stats(),
		Requested: n,
		Entries:   lb.Top(profile, n),
		Timestamp: time.Now().UTC(),
	})
}

// LatestSweep serves the current progress snapshot.
func (h *Handlers) LatestSweep(w http.ResponseWriter, r *http.Request) {
	snap := h.Progress.Snapshot()
	if snap.SweepID == "" {
		h.writeError(w, r, http.StatusNotFound, "no_sweep", "no sweep has started")
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found",
		"The requested endpoint does not exist")
}
