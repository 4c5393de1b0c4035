package yolo

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// History appends iteration reports as JSON lines to
// <dir>/yolo_history/<session>.jsonl.
type History struct {
	path string
	mu   sync.Mutex
}

// NewHistory prepares the history file for a session.
func NewHistory(dir, sessionID string) (*History, error) {
	hd := filepath.Join(dir, "yolo_history")
	if err := os.MkdirAll(hd, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return &History{path: filepath.Join(hd, sessionID+".jsonl")}, nil
}

// Path is the JSONL file being written.
func (h *History) Path() string { return h.path }

// Append writes one report line.
func (h *History) Append(r IterationReport) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode iteration: %w", err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer f.Close()
	_, err = f.Write(append(b, '\n'))
	return err
}

// ReadHistory loads every report from a history file.
func ReadHistory(path string) ([]IterationReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []IterationReport
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var r IterationReport
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		out = append(out, r)
	}
	return out, sc.Err()
}
