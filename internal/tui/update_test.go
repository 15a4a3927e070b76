package tui

import (
	"context"
	stdErrors "errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/reportcheck/internal/events"
	"github.com/alexisbeaulieu97/reportcheck/internal/review"
	"github.com/alexisbeaulieu97/reportcheck/internal/tui/components"
	"github.com/alexisbeaulieu97/reportcheck/internal/workflow"
)

func send(t *testing.T, m Model, msgs ...tea.Msg) Model {
	t.Helper()
	for _, msg := range msgs {
		updated, _ := m.Update(msg)
		m = updated.(Model)
	}
	return m
}

func stageEvent(kind, stage string) EventMsg {
	return EventMsg{Event: events.Event{Type: kind, Stage: stage}}
}

func TestUpdateTracksStageLifecycle(t *testing.T) {
	m := NewModel("", "", false, nil)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	m = send(t, m,
		EventMsg{Event: events.Event{Type: events.RunStarted, RunID: "run-7", Time: start}},
		stageEvent(events.StageStarted, workflow.StageRubricAdapter),
	)
	require.Equal(t, "run-7", m.runID)
	entry, _ := m.stages.Get(workflow.StageRubricAdapter)
	require.Equal(t, components.StatusRunning, entry.Status)

	m = send(t, m, EventMsg{Event: events.Event{Type: events.StageCompleted, Stage: workflow.StageRubricAdapter, Duration: 2 * time.Second}})
	entry, _ = m.stages.Get(workflow.StageRubricAdapter)
	require.Equal(t, components.StatusSuccess, entry.Status)
	require.Equal(t, 2*time.Second, entry.Duration)
	require.Equal(t, 1, m.CompletedStages())

	m = send(t, m, EventMsg{Event: events.Event{Type: events.RunCompleted, Time: start.Add(5 * time.Second)}})
	require.Equal(t, 5*time.Second, m.elapsed)
}

func TestUpdateCountsCompletionOnce(t *testing.T) {
	m := NewModel("", "", false, nil)
	done := stageEvent(events.StageCompleted, workflow.StageReportChecker)
	m = send(t, m, done, done)
	require.Equal(t, 1, m.CompletedStages())
}

func TestUpdateShowsRetriesAndFailure(t *testing.T) {
	m := NewModel("", "", false, nil)
	cause := stdErrors.New("status 503")

	m = send(t, m, EventMsg{Event: events.Event{Type: events.StageRetrying, Stage: workflow.StageReportChecker, Attempt: 2, Err: cause}})
	entry, _ := m.stages.Get(workflow.StageReportChecker)
	require.Equal(t, components.StatusRetrying, entry.Status)
	require.Equal(t, 2, entry.Attempt)

	m = send(t, m, EventMsg{Event: events.Event{Type: events.StageFailed, Stage: workflow.StageReportChecker, Attempt: 5, Err: cause}})
	entry, _ = m.stages.Get(workflow.StageReportChecker)
	require.Equal(t, components.StatusFailed, entry.Status)
	require.Zero(t, m.CompletedStages())
}

func TestUpdateDoneQuits(t *testing.T) {
	m := NewModel("", "", false, nil)
	result := &review.Result{Record: &workflow.RunRecord{ID: "run-9"}}

	updated, cmd := m.Update(DoneMsg{Result: result})
	m = updated.(Model)
	require.NotNil(t, cmd)
	require.True(t, m.IsFinished())
	require.Equal(t, "run-9", m.runID)

	got, err := m.Result()
	require.NoError(t, err)
	require.Same(t, result, got)
}

func TestUpdateCtrlCCancelsRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewModel("", "", false, cancel)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = updated.(Model)
	require.Nil(t, cmd)
	require.True(t, m.Cancelled())
	require.False(t, m.IsFinished())
	require.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestUpdateCtrlCWithoutRunQuits(t *testing.T) {
	m := NewModel("", "", false, nil)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = updated.(Model)
	require.NotNil(t, cmd)
	require.True(t, m.IsFinished())
}

func TestUpdateHandlesQuit(t *testing.T) {
	m := NewModel("", "", false, nil)
	updated, cmd := m.Update(tea.QuitMsg{})
	require.Nil(t, cmd)
	require.True(t, updated.(Model).IsFinished())
}
