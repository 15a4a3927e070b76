package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

// Ledger statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// TimeLayout formats Entry.ProcessedAt.
const TimeLayout = "2006-01-02 15:04:05"

// Entry is the ledger record of one report file.
type Entry struct {
	Status       string  `json:"status"`
	ErrorMessage *string `json:"error_message"`
	ProcessedAt  string  `json:"processed_at"`
}

// Ledger persists per-document status between batch runs.
type Ledger struct {
	path    string
	mu      sync.RWMutex
	entries map[string]Entry
}

// OpenLedger loads the ledger at path, starting empty when it does not exist.
func OpenLedger(path string) (*Ledger, error) {
	l := &Ledger{path: path, entries: make(map[string]Entry)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return l, nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	if err := json.Unmarshal(data, &l.entries); err != nil {
		return nil, rcerrors.NewParseError(path, 0, err)
	}
	if l.entries == nil {
		l.entries = make(map[string]Entry)
	}
	return l, nil
}

// Get returns the entry for name.
func (l *Ledger) Get(name string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.entries[name]
	return entry, ok
}

// Succeeded reports whether name was already reviewed successfully.
func (l *Ledger) Succeeded(name string) bool {
	entry, ok := l.Get(name)
	return ok && entry.Status == StatusSuccess
}

// Record stores the outcome for name. A nil err marks success.
func (l *Ledger) Record(name string, err error, at time.Time) {
	entry := Entry{Status: StatusSuccess, ProcessedAt: at.Format(TimeLayout)}
	if err != nil {
		msg := err.Error()
		entry.Status = StatusError
		entry.ErrorMessage = &msg
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[name] = entry
}

// Names returns the recorded names, sorted.
func (l *Ledger) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.entries))
	for name := range l.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save writes the ledger to disk atomically.
func (l *Ledger) Save() error {
	l.mu.RLock()
	data, err := json.MarshalIndent(l.entries, "", "  ")
	l.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	tmpPath := l.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temporary ledger: %w", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
