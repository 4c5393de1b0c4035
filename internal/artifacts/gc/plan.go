package gc

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sawpanic/trendlab/internal/artifacts/manifest"
)

// Run is a sweep run directory found under the artifacts root.
type Run struct {
	SweepID     string    `json:"sweep_id"`
	Dir         string    `json:"dir"`
	CompletedAt time.Time `json:"completed_at"`
	Bytes       int64     `json:"bytes"`
	Files       int       `json:"files"`
}

// RetentionConfig defines which runs survive a collection.
type RetentionConfig struct {
	Keep int      `yaml:"keep" json:"keep"` // newest runs to keep
	Pin  []string `yaml:"pin" json:"pin"`   // sweep ids never deleted
}

// Plan represents a garbage collection plan
type Plan struct {
	CreatedAt     time.Time           `json:"created_at"`
	DryRun        bool                `json:"dry_run"`
	Root          string              `json:"root"`
	ToKeep        []Run               `json:"to_keep"`
	ToDelete      []Run               `json:"to_delete"`
	ReasonToKeep  map[string][]string `json:"reason_to_keep"`
	BytesToDelete int64               `json:"bytes_to_delete"`
	FilesToDelete int                 `json:"files_to_delete"`
	PinnedKept    int                 `json:"pinned_kept"`
}

// Planner creates garbage collection plans
type Planner struct {
	config RetentionConfig
}

func NewPlanner(config RetentionConfig) *Planner {
	return &Planner{config: config}
}

// ListRuns finds every directory under root holding a manifest, newest
// first. Directories without one are not ours and are left alone.
func ListRuns(root string) ([]Run, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read artifacts root: %w", err)
	}
	var runs []Run
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		m, err := manifest.Load(dir)
		if err != nil {
			continue
		}
		r := Run{SweepID: m.SweepID, Dir: dir, CompletedAt: m.CompletedAt, Files: len(m.Files) + 1}
		for _, f := range m.Files {
			r.Bytes += f.Bytes
		}
		runs = append(runs, r)
	}
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].CompletedAt.Equal(runs[j].CompletedAt) {
			return runs[i].CompletedAt.After(runs[j].CompletedAt)
		}
		return runs[i].SweepID > runs[j].SweepID
	})
	return runs, nil
}

// CreatePlan decides which runs under root to delete.
func (p *Planner) CreatePlan(root string, dryRun bool) (*Plan, error) {
	if p.config.Keep < 0 {
		return nil, fmt.Errorf("keep must not be negative, got %d", p.config.Keep)
	}
	runs, err := ListRuns(root)
	if err != nil {
		return nil, err
	}
	pinned := make(map[string]bool, len(p.config.Pin))
	for _, id := range p.config.Pin {
		pinned[id] = true
	}

	plan := &Plan{
		CreatedAt:    time.Now(),
		DryRun:       dryRun,
		Root:         root,
		ReasonToKeep: make(map[string][]string),
	}
	for i, r := range runs {
		var reasons []string
		if i < p.config.Keep {
			reasons = append(reasons, fmt.Sprintf("within newest %d", p.config.Keep))
		}
		if pinned[r.SweepID] {
			reasons = append(reasons, "pinned")
			plan.PinnedKept++
		}
		if len(reasons) > 0 {
			plan.ToKeep = append(plan.ToKeep, r)
			plan.ReasonToKeep[r.SweepID] = reasons
			continue
		}
		plan.ToDelete = append(plan.ToDelete, r)
		plan.BytesToDelete += r.Bytes
		plan.FilesToDelete += r.Files
	}
	return plan, nil
}

// Summary is a one-line description of the plan.
func (plan *Plan) Summary() string {
	return fmt.Sprintf("keep %d runs, delete %d runs (%d files, %s)",
		len(plan.ToKeep), len(plan.ToDelete), plan.FilesToDelete, formatBytes(plan.BytesToDelete))
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
