package fl

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

const (
	archivePrefix = "result_"
	archiveSuffix = ".cbor"
)

// Archive keeps completed run results as CBOR files in a directory.
type Archive struct {
	dir string
	mu  sync.RWMutex
}

func NewArchive(dir string) (*Archive, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}

	return &Archive{dir: dir}, nil
}

func (a *Archive) Save(runID string, result Result) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	path, err := a.path(runID)
	if err != nil {
		return err
	}

	data, err := Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write result file: %w", err)
	}

	return nil
}

func (a *Archive) Load(runID string) (Result, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	path, err := a.path(runID)
	if err != nil {
		return Result{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read result file: %w", err)
	}

	var result Result
	if err := Unmarshal(data, &result); err != nil {
		return Result{}, fmt.Errorf("failed to unmarshal result: %w", err)
	}

	return result, nil
}

// List returns the archived run IDs in lexical order.
func (a *Archive) List() ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, err
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := strings.CutPrefix(entry.Name(), archivePrefix)
		if !ok {
			continue
		}
		if id, ok := strings.CutSuffix(name, archiveSuffix); ok && id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	return ids, nil
}

func (a *Archive) path(runID string) (string, error) {
	sanitized := sanitizeRunID(runID)
	if sanitized == "" {
		return "", fmt.Errorf("invalid run ID: %q", runID)
	}

	return filepath.Join(a.dir, archivePrefix+sanitized+archiveSuffix), nil
}

// sanitizeRunID keeps only characters that are safe in a file name.
func sanitizeRunID(runID string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(runID) {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}

	return b.String()
}
