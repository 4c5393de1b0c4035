package manifest

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fatih/structs"

	"github.com/sawpanic/trendlab/internal/backtest"
	"github.com/sawpanic/trendlab/internal/data"
	"github.com/sawpanic/trendlab/internal/sweep"
)

// FormatVersion is bumped when the manifest layout changes.
const FormatVersion = "1.0"

// ConfigEntry records one swept configuration.
type ConfigEntry struct {
	ID       string             `json:"id"`
	Strategy string             `json:"strategy"`
	Symbol   string             `json:"symbol"`
	Params   map[string]float64 `json:"params"`
}

// FileEntry is one written artifact with its checksum.
type FileEntry struct {
	Path   string `json:"path"` // relative to the run directory
	Bytes  int64  `json:"bytes"`
	SHA256 string `json:"sha256"`
}

// Manifest describes a sweep run well enough to reproduce it. Map-valued
// fields marshal with sorted keys.
type Manifest struct {
	Version       string            `json:"version"`
	ModuleVersion string            `json:"module_version"`
	SweepID       string            `json:"sweep_id"`
	Strategies    []string          `json:"strategies"`
	Configs       []ConfigEntry     `json:"configs"`
	Cost          map[string]any    `json:"cost_model"`
	Execution     map[string]any    `json:"execution"`
	Symbols       []string          `json:"symbols"`
	DateRange     data.DateRange    `json:"date_range"`
	DataVersions  map[string]string `json:"data_versions"`
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   time.Time         `json:"completed_at"`
	Cancelled     bool              `json:"cancelled"`
	Succeeded     int               `json:"succeeded"`
	Failed        int               `json:"failed"`
	Skipped       int               `json:"skipped"`
	Files         []FileEntry       `json:"files"`
}

// FromOutcome builds the manifest of a sweep outcome. Files are added as
// they are written.
func FromOutcome(out *sweep.Outcome, exec backtest.ExecutionConfig, versions map[string]string, moduleVersion string) *Manifest {
	m := &Manifest{
		Version:       FormatVersion,
		ModuleVersion: moduleVersion,
		SweepID:       out.SweepID,
		Cost:          structs.Map(exec.Cost),
		Execution:     structs.Map(exec),
		DataVersions:  make(map[string]string),
		StartedAt:     out.StartedAt,
		CompletedAt:   out.CompletedAt,
		Cancelled:     out.Cancelled,
		Succeeded:     out.Succeeded,
		Failed:        out.Failed,
		Skipped:       out.Skipped,
	}

	strategies := make(map[string]bool)
	symbols := make(map[string]bool)
	for _, c := range out.Configs {
		strategies[string(c.StrategyID)] = true
		symbols[c.Symbol] = true
		m.Configs = append(m.Configs, ConfigEntry{
			ID:       c.ID(),
			Strategy: string(c.StrategyID),
			Symbol:   c.Symbol,
			Params:   c.Params,
		})
		if m.DateRange.IsZero() {
			m.DateRange = c.DateRange
		}
	}
	m.Strategies = sortedKeys(strategies)
	m.Symbols = sortedKeys(symbols)
	for _, sym := range m.Symbols {
		if v, ok := versions[sym]; ok {
			m.DataVersions[sym] = v
		}
	}
	return m
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// AddFile records a written file. path is relative to root.
func (m *Manifest) AddFile(root, path string) error {
	sum, n, err := Checksum(filepath.Join(root, path))
	if err != nil {
		return err
	}
	m.Files = append(m.Files, FileEntry{Path: path, Bytes: n, SHA256: sum})
	sort.Slice(m.Files, func(i, j int) bool { return m.Files[i].Path < m.Files[j].Path })
	return nil
}

// Checksum returns the hex sha256 and size of a file.
func Checksum(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hash %s: %w", path, err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), n, nil
}
