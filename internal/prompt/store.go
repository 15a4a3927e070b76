// Package prompt holds the current template for each workflow stage. Built-in
// defaults are embedded in the binary; overrides are process-local and live
// only in memory.
package prompt

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

// Stage identifiers understood by the store.
const (
	CriteriaForming = "criteria_forming"
	CheckReport     = "check_report"
	FeedbackForming = "feedback_forming"
)

//go:embed defaults/*.txt
var builtin embed.FS

// IDs lists every known stage identifier in a stable order.
func IDs() []string {
	return []string{CriteriaForming, CheckReport, FeedbackForming}
}

// Builtin returns the embedded default templates.
func Builtin() map[string]string {
	out := make(map[string]string, 3)
	for _, id := range IDs() {
		data, err := builtin.ReadFile("defaults/" + id + ".txt")
		if err != nil {
			panic(fmt.Sprintf("prompt: embedded default %s missing: %v", id, err))
		}
		out[id] = string(data)
	}
	return out
}

// Store maps stage identifiers to templates with optional overrides.
// Concurrent use is safe; writes are last-writer-wins.
type Store struct {
	mu        sync.RWMutex
	defaults  map[string]string
	overrides map[string]string
}

// Option customises a Store.
type Option func(*Store)

// WithDefaults replaces the built-in defaults for the provided ids. Unknown ids
// and empty templates are ignored.
func WithDefaults(defaults map[string]string) Option {
	return func(s *Store) {
		for id, text := range defaults {
			if _, known := s.defaults[id]; !known || strings.TrimSpace(text) == "" {
				continue
			}
			s.defaults[id] = text
		}
	}
}

// NewStore builds a store seeded with the embedded defaults.
func NewStore(opts ...Option) *Store {
	s := &Store{
		defaults:  Builtin(),
		overrides: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the override if set, else the default.
func (s *Store) Get(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if text, ok := s.overrides[id]; ok {
		return text, nil
	}
	if text, ok := s.defaults[id]; ok {
		return text, nil
	}
	return "", rcerrors.NewNotFoundError("prompt", id)
}

// Default returns the template Reset would revert id to.
func (s *Store) Default(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	text, ok := s.defaults[id]
	if !ok {
		return "", rcerrors.NewNotFoundError("prompt", id)
	}
	return text, nil
}

// Set installs an override. Setting the default text back clears the override.
func (s *Store) Set(id, text string) error {
	if strings.TrimSpace(text) == "" {
		return rcerrors.NewValidationError("prompt."+id, "template must not be empty", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.defaults[id]
	if !ok {
		return rcerrors.NewNotFoundError("prompt", id)
	}
	if text == def {
		delete(s.overrides, id)
		return nil
	}
	s.overrides[id] = text
	return nil
}

// Reset removes the override for id.
func (s *Store) Reset(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.defaults[id]; !ok {
		return rcerrors.NewNotFoundError("prompt", id)
	}
	delete(s.overrides, id)
	return nil
}

// ResetAll removes every override.
func (s *Store) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides = make(map[string]string)
}

// IsModified reports whether id currently has an override.
func (s *Store) IsModified(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.overrides[id]
	return ok
}

// Modified lists the ids with overrides, sorted.
func (s *Store) Modified() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.overrides))
	for id := range s.overrides {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Effective returns a copy of the template currently in force for every id.
func (s *Store) Effective() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.defaults))
	for id, text := range s.defaults {
		out[id] = text
	}
	for id, text := range s.overrides {
		out[id] = text
	}
	return out
}

// LoadDir reads <dir>/<id>.txt for every known id. Missing files are skipped.
func LoadDir(dir string) (map[string]string, error) {
	out := make(map[string]string)
	for _, id := range IDs() {
		data, err := os.ReadFile(filepath.Join(dir, id+".txt"))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read prompt %s: %w", id, err)
		}
		out[id] = string(data)
	}
	return out, nil
}

// WriteDir writes the templates in force to <dir>/<id>.txt.
func (s *Store) WriteDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prompts directory: %w", err)
	}
	for id, text := range s.Effective() {
		if err := os.WriteFile(filepath.Join(dir, id+".txt"), []byte(text), 0o644); err != nil {
			return fmt.Errorf("write prompt %s: %w", id, err)
		}
	}
	return nil
}
