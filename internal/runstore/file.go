package runstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alexisbeaulieu97/reportcheck/internal/workflow"
	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

// File stores one JSON document per run in a directory.
type File struct {
	dir string
	mu  sync.RWMutex
}

// NewFile creates the directory if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(id string) string {
	return filepath.Join(f.dir, id+".json")
}

// Save writes record atomically.
func (f *File) Save(_ context.Context, record *workflow.RunRecord) error {
	if err := validateID(record.ID); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	existing, err := f.read(record.ID)
	if err != nil && !isNotFound(err) {
		return err
	}
	if err := checkWritable(existing, record); err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}
	return writeAtomic(f.path(record.ID), data)
}

// Load reads the record with id.
func (f *File) Load(_ context.Context, id string) (*workflow.RunRecord, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.read(id)
}

// List summarises every record in the directory, newest first.
func (f *File) List(context.Context) ([]Summary, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read run directory: %w", err)
	}

	var out []Summary
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		record, err := f.read(strings.TrimSuffix(name, ".json"))
		if err != nil {
			return nil, err
		}
		out = append(out, Summarize(record))
	}
	sortSummaries(out)
	return out, nil
}

func (f *File) read(id string) (*workflow.RunRecord, error) {
	data, err := os.ReadFile(f.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rcerrors.NewNotFoundError("run", id)
		}
		return nil, fmt.Errorf("failed to read run %s: %w", id, err)
	}
	var record workflow.RunRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, rcerrors.NewParseError(f.path(id), 0, err)
	}
	return &record, nil
}

// writeAtomic writes to a temporary sibling and renames it into place.
func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}
