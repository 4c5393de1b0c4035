package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the manifest's name inside a run directory.
const FileName = "manifest.json"

// Save writes the manifest into dir through a temp file and rename.
func Save(dir string, m *Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	final := filepath.Join(dir, FileName)
	tempPath := final + ".tmp"

	tempFile, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		tempFile.Close()
		os.Remove(tempPath)
	}()

	encoder := json.NewEncoder(tempFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(m); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	tempFile.Close()

	if err := os.Rename(tempPath, final); err != nil {
		return fmt.Errorf("failed to replace manifest file: %w", err)
	}
	return nil
}

// Load reads the manifest of a run directory.
func Load(dir string) (*Manifest, error) {
	b, err := os.ReadFile(filepath.Join(dir, FileName))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, nil
}

// Mismatch is a listed file whose content no longer matches.
type Mismatch struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Verify recomputes every listed checksum under dir.
func Verify(dir string, m *Manifest) ([]Mismatch, error) {
	if m == nil {
		return nil, fmt.Errorf("manifest is nil")
	}
	if m.Version == "" || m.SweepID == "" {
		return nil, fmt.Errorf("manifest is missing version or sweep id")
	}
	var out []Mismatch
	for _, f := range m.Files {
		sum, n, err := Checksum(filepath.Join(dir, f.Path))
		switch {
		case err != nil:
			out = append(out, Mismatch{Path: f.Path, Reason: "missing"})
		case n != f.Bytes:
			out = append(out, Mismatch{Path: f.Path, Reason: fmt.Sprintf("size %d, want %d", n, f.Bytes)})
		case sum != f.SHA256:
			out = append(out, Mismatch{Path: f.Path, Reason: "checksum differs"})
		}
	}
	return out, nil
}
