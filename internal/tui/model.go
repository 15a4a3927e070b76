// Package tui renders the live progress of a single review in the terminal.
package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/reportcheck/internal/events"
	"github.com/alexisbeaulieu97/reportcheck/internal/review"
	"github.com/alexisbeaulieu97/reportcheck/internal/tui/components"
	"github.com/alexisbeaulieu97/reportcheck/internal/workflow"
)

// EventMsg wraps a workflow event.
type EventMsg struct {
	Event events.Event
}

// DoneMsg reports that the review returned.
type DoneMsg struct {
	Result *review.Result
	Err    error
}

type tickMsg struct{}

// Model contains the Bubbletea state of a review run.
type Model struct {
	title     string
	model     string
	runID     string
	stages    components.StageList
	total     int
	completed int
	started   time.Time
	elapsed   time.Duration
	finished  bool
	cancelled bool
	err       error
	result    *review.Result
	cancel    context.CancelFunc
}

// NewModel tracks the stages of one review. cancel, when set, is called
// on Ctrl+C.
func NewModel(title, model string, skipFeedback bool, cancel context.CancelFunc) Model {
	m := Model{
		title:  title,
		model:  model,
		stages: components.NewStageList(ReviewStages()),
		total:  len(ReviewStages()),
		cancel: cancel,
	}
	if skipFeedback {
		m.stages.Set(components.StageEntry{Name: workflow.StageFeedbackComposer, Status: components.StatusSkipped})
		m.total--
	}
	return m
}

// ReviewStages lists the stages of the review workflow in order.
func ReviewStages() []string {
	return []string{workflow.StageRubricAdapter, workflow.StageReportChecker, workflow.StageFeedbackComposer}
}

// Forward returns an event handler that feeds a running program.
func Forward(send func(tea.Msg)) events.Handler {
	return func(_ context.Context, event events.Event) error {
		send(EventMsg{Event: event})
		return nil
	}
}

// Init starts the Bubbletea program.
func (m Model) Init() tea.Cmd {
	return tea.Tick(time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

// TotalStages returns the number of stages expected to run.
func (m Model) TotalStages() int {
	return m.total
}

// CompletedStages returns the number of stages that finished successfully.
func (m Model) CompletedStages() int {
	return m.completed
}

// IsFinished reports whether the review has returned or was cancelled.
func (m Model) IsFinished() bool {
	return m.finished
}

// Cancelled reports whether the user interrupted the review.
func (m Model) Cancelled() bool {
	return m.cancelled
}

// Result returns what the review returned, once finished.
func (m Model) Result() (*review.Result, error) {
	return m.result, m.err
}
