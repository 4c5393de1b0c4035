package log

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/trendlab/internal/sweep"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const barWidth = 20

// ProgressReporter renders a running sweep. On a terminal it redraws one
// line; otherwise it emits a structured log event every interval.
type ProgressReporter struct {
	name        string
	progress    *sweep.Progress
	out         io.Writer
	interactive bool
	interval    time.Duration

	mu      sync.Mutex
	frame   int
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewProgressReporter uses a 100ms redraw on terminals and 5s log lines
// elsewhere.
func NewProgressReporter(name string, p *sweep.Progress, out io.Writer, interactive bool) *ProgressReporter {
	interval := 5 * time.Second
	if interactive {
		interval = 100 * time.Millisecond
	}
	return &ProgressReporter{name: name, progress: p, out: out, interactive: interactive, interval: interval}
}

func (r *ProgressReporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return
	}
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop()
}

// Stop halts the reporter and prints the final state.
func (r *ProgressReporter) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stop)
	r.mu.Unlock()
	<-r.done
	r.finish()
}

func (r *ProgressReporter) loop() {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *ProgressReporter) tick() {
	snap := r.progress.Snapshot()
	if snap.SweepID == "" {
		return
	}
	if !r.interactive {
		log.Info().
			Str("sweep_id", snap.SweepID).
			Int("completed", snap.Completed).
			Int("total", snap.Total).
			Int("failed", snap.Failed).
			Float64("best_sharpe", snap.BestSharpe).
			Msg("Sweep progress")
		return
	}
	r.frame = (r.frame + 1) % len(spinnerFrames)
	fmt.Fprint(r.out, "\r\033[K"+Render(r.name, snap, spinnerFrames[r.frame], time.Now()))
}

func (r *ProgressReporter) finish() {
	snap := r.progress.Snapshot()
	if !r.interactive || snap.SweepID == "" {
		return
	}
	status := "✅"
	if snap.Cancelled {
		status = "⚠️"
	}
	fmt.Fprintf(r.out, "\r\033[K%s %s: %d/%d configs, %d failed (%v)\n", status, r.name,
		snap.Completed, snap.Total, snap.Failed, snap.UpdatedAt.Sub(snap.StartedAt).Round(time.Millisecond))
}

// Render formats one progress line: spinner, bar, counts, ETA and the best
// config so far.
func Render(name string, snap sweep.Snapshot, frame string, now time.Time) string {
	var b strings.Builder
	if frame != "" {
		b.WriteString(frame)
		b.WriteString(" ")
	}
	b.WriteString(name)

	if snap.Total > 0 {
		filled := barWidth * snap.Completed / snap.Total
		b.WriteString(" [")
		b.WriteString(strings.Repeat("█", filled))
		b.WriteString(strings.Repeat("░", barWidth-filled))
		fmt.Fprintf(&b, "] %d/%d (%.1f%%)", snap.Completed, snap.Total, snap.Percent)
	}
	if snap.Failed > 0 {
		fmt.Fprintf(&b, " %d failed", snap.Failed)
	}
	if eta, ok := estimate(snap, now); ok {
		fmt.Fprintf(&b, " ETA: %v", eta)
	}
	if snap.BestName != "" {
		fmt.Fprintf(&b, " - best %s (sharpe %.2f)", snap.BestName, snap.BestSharpe)
	}
	return b.String()
}

func estimate(snap sweep.Snapshot, now time.Time) (time.Duration, bool) {
	if !snap.Running || snap.Completed == 0 || snap.Completed >= snap.Total {
		return 0, false
	}
	elapsed := now.Sub(snap.StartedAt)
	per := elapsed / time.Duration(snap.Completed)
	eta := per * time.Duration(snap.Total-snap.Completed)
	if eta > time.Hour {
		return eta.Round(time.Minute), true
	}
	return eta.Round(time.Second), true
}
