// Package runstore persists workflow run records so a run can be inspected
// after the process that executed it has moved on.
package runstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/alexisbeaulieu97/reportcheck/internal/workflow"
	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

// ErrSealed is returned when saving over a record that already ended.
var ErrSealed = errors.New("run record is final")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,127}$`)

// Store persists run records.
type Store interface {
	workflow.Recorder
	Load(ctx context.Context, id string) (*workflow.RunRecord, error)
	List(ctx context.Context) ([]Summary, error)
}

// Summary is the listing view of a record.
type Summary struct {
	ID          string         `json:"id"`
	Model       string         `json:"model,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	State       workflow.State `json:"state"`
	Reached     workflow.State `json:"reached"`
	FailedStage string         `json:"failed_stage,omitempty"`
}

// Summarize builds the listing view of record.
func Summarize(record *workflow.RunRecord) Summary {
	s := Summary{ID: record.ID, Model: record.Model, StartedAt: record.StartedAt, State: "Running"}
	if n := len(record.Snapshots); n > 0 {
		s.Reached = record.Snapshots[n-1].State
	} else {
		s.Reached = workflow.Start
	}
	if record.Terminal != nil {
		s.State = record.Terminal.State
		s.Reached = record.Terminal.Reached
		s.FailedStage = record.Terminal.FailedStage
	}
	return s
}

func validateID(id string) error {
	if !idPattern.MatchString(id) {
		return rcerrors.NewValidationError("run_id", fmt.Sprintf("invalid run id %q", id), nil)
	}
	return nil
}

func checkWritable(existing, next *workflow.RunRecord) error {
	if existing != nil && existing.Done() {
		return fmt.Errorf("save %s: %w", next.ID, ErrSealed)
	}
	return nil
}

func sortSummaries(list []Summary) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].StartedAt.Equal(list[j].StartedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].StartedAt.After(list[j].StartedAt)
	})
}
