package sweep

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time view of a sweep's progress.
type Snapshot struct {
	SweepID    string    `json:"sweep_id"`
	Running    bool      `json:"running"`
	Cancelled  bool      `json:"cancelled"`
	Total      int       `json:"total"`
	Completed  int       `json:"completed"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Percent    float64   `json:"percent"`
	BestName   string    `json:"best_name,omitempty"`
	BestConfig string    `json:"best_config_id,omitempty"`
	BestSharpe float64   `json:"best_sharpe"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	LastErrors []string  `json:"last_errors,omitempty"`
}

const maxProgressErrors = 10

// Progress tracks the running sweep for the CLI and monitor server. Only
// the orchestrator's aggregator writes to it; readers take snapshots.
type Progress struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewProgress creates an idle tracker.
func NewProgress() *Progress {
	return &Progress{now: time.Now}
}

func (p *Progress) start(id string, total int) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	p.snap = Snapshot{SweepID: id, Running: true, Total: total, StartedAt: now, UpdatedAt: now}
}

func (p *Progress) record(name, configID string, sharpe float64, ok bool, reason string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.snap.Completed++
	if ok {
		p.snap.Succeeded++
		if p.snap.BestConfig == "" || sharpe > p.snap.BestSharpe {
			p.snap.BestName, p.snap.BestConfig, p.snap.BestSharpe = name, configID, sharpe
		}
	} else {
		p.snap.Failed++
		p.snap.LastErrors = append(p.snap.LastErrors, reason)
		if len(p.snap.LastErrors) > maxProgressErrors {
			p.snap.LastErrors = p.snap.LastErrors[len(p.snap.LastErrors)-maxProgressErrors:]
		}
	}
	if p.snap.Total > 0 {
		p.snap.Percent = float64(p.snap.Completed) / float64(p.snap.Total) * 100
	}
	p.snap.UpdatedAt = p.now()
}

func (p *Progress) finish(cancelled bool) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Running = false
	p.snap.Cancelled = cancelled
	p.snap.UpdatedAt = p.now()
}

// Snapshot returns a copy of the current progress.
func (p *Progress) Snapshot() Snapshot {
	if p == nil {
		return Snapshot{}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	s := p.snap
	s.LastErrors = append([]string(nil), p.snap.LastErrors...)
	return s
}
