package runstore

import (
	"context"
	"sync"

	"github.com/alexisbeaulieu97/reportcheck/internal/workflow"
	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

// Memory keeps records for the lifetime of the process.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*workflow.RunRecord
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]*workflow.RunRecord)}
}

// Save stores a copy of record.
func (m *Memory) Save(_ context.Context, record *workflow.RunRecord) error {
	if err := validateID(record.ID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkWritable(m.records[record.ID], record); err != nil {
		return err
	}
	m.records[record.ID] = record.Clone()
	return nil
}

// Load returns a copy of the record with id.
func (m *Memory) Load(_ context.Context, id string) (*workflow.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.records[id]
	if !ok {
		return nil, rcerrors.NewNotFoundError("run", id)
	}
	return record.Clone(), nil
}

// List summarises every record, newest first.
func (m *Memory) List(context.Context) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Summary, 0, len(m.records))
	for _, record := range m.records {
		out = append(out, Summarize(record))
	}
	sortSummaries(out)
	return out, nil
}
