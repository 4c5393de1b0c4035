package gc

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/trendlab/internal/artifacts/manifest"
)

// Executor applies garbage collection plans. Runs are moved to the trash
// directory after their checksums verify, never removed outright.
type Executor struct {
	trashDir string
}

func NewExecutor(trashDir string) *Executor {
	return &Executor{trashDir: trashDir}
}

// ApplyResult contains the results of applying a GC plan
type ApplyResult struct {
	Plan      *Plan     `json:"plan"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Moved     []string  `json:"moved"`
	Errors    []string  `json:"errors,omitempty"`
	Warnings  []string  `json:"warnings,omitempty"`
}

// Success reports whether every planned run was handled.
func (r *ApplyResult) Success() bool { return len(r.Errors) == 0 }

// Apply executes the plan; a dry-run plan only reports.
func (e *Executor) Apply(plan *Plan) (*ApplyResult, error) {
	result := &ApplyResult{Plan: plan, StartTime: time.Now()}
	if plan.DryRun {
		for _, r := range plan.ToDelete {
			result.Warnings = append(result.Warnings, "dry run: would move "+r.SweepID)
		}
		result.EndTime = time.Now()
		return result, nil
	}
	if err := os.MkdirAll(e.trashDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create trash dir: %w", err)
	}

	for _, r := range plan.ToDelete {
		if err := e.moveRun(r); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", r.SweepID, err))
			continue
		}
		result.Moved = append(result.Moved, r.SweepID)
	}
	result.EndTime = time.Now()
	log.Info().
		Int("moved", len(result.Moved)).
		Int("errors", len(result.Errors)).
		Str("trash", e.trashDir).
		Msg("Artifact collection applied")
	return result, nil
}

func (e *Executor) moveRun(r Run) error {
	m, err := manifest.Load(r.Dir)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}
	bad, err := manifest.Verify(r.Dir, m)
	if err != nil {
		return err
	}
	if len(bad) > 0 {
		return fmt.Errorf("%d files fail verification, refusing to move", len(bad))
	}
	dest := filepath.Join(e.trashDir, fmt.Sprintf("%s_%d", filepath.Base(r.Dir), time.Now().UnixNano()))
	if err := os.Rename(r.Dir, dest); err != nil {
		return fmt.Errorf("move to trash: %w", err)
	}
	return nil
}
