package workflow_test

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/reportcheck/internal/events"
	"github.com/alexisbeaulieu97/reportcheck/internal/prompt"
	"github.com/alexisbeaulieu97/reportcheck/internal/retry"
	"github.com/alexisbeaulieu97/reportcheck/internal/stage"
	"github.com/alexisbeaulieu97/reportcheck/internal/template"
	"github.com/alexisbeaulieu97/reportcheck/internal/workflow"
	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

// scriptedModel answers per stage, recognising the stage by the prompt
// marker each test template starts with.
type scriptedModel struct {
	mu      sync.Mutex
	answers map[string]func(call int) (string, error)
	calls   map[string]int
}

func newScriptedModel() *scriptedModel {
	return &scriptedModel{
		answers: make(map[string]func(int) (string, error)),
		calls:   make(map[string]int),
	}
}

func (m *scriptedModel) answer(marker, text string) *scriptedModel {
	m.answers[marker] = func(int) (string, error) { return text, nil }
	return m
}

func (m *scriptedModel) fail(marker string) *scriptedModel {
	m.answers[marker] = func(call int) (string, error) {
		return "", rcerrors.NewProviderError("fake", "fake", 500, fmt.Errorf("call %d failed", call))
	}
	return m
}

func (m *scriptedModel) Complete(_ context.Context, tmpl string, vars map[string]string) (string, error) {
	rendered, err := template.Render(tmpl, vars)
	if err != nil {
		return "", err
	}
	marker, _, _ := strings.Cut(rendered, ":")

	m.mu.Lock()
	m.calls[marker]++
	call := m.calls[marker]
	respond := m.answers[marker]
	m.mu.Unlock()

	if respond == nil {
		return "", fmt.Errorf("no answer scripted for %q", marker)
	}
	return respond(call)
}

func (m *scriptedModel) callsFor(marker string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[marker]
}

type memoryRecorder struct {
	mu    sync.Mutex
	saves []*workflow.RunRecord
}

func (r *memoryRecorder) Save(_ context.Context, record *workflow.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves = append(r.saves, record)
	return nil
}

func (r *memoryRecorder) last() *workflow.RunRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves[len(r.saves)-1]
}

const (
	adapt    = "ADAPT"
	check    = "CHECK"
	feedback = "FEEDBACK"
)

func newEngine(t *testing.T, model *scriptedModel, attempts int, opts ...workflow.Option) *workflow.Engine {
	t.Helper()

	store := prompt.NewStore()
	require.NoError(t, store.Set(prompt.CriteriaForming, adapt+": {passport} | {criteria} | {structured_criteria}"))
	require.NoError(t, store.Set(prompt.CheckReport, check+": {report} | {structured_criteria}"))
	require.NoError(t, store.Set(prompt.FeedbackForming, feedback+": {check_results}"))

	engine, err := workflow.NewEngine(stage.Stages(stage.Deps{
		Model:   model,
		Prompts: store,
		Retry:   retry.NoWait(attempts),
	}), opts...)
	require.NoError(t, err)
	return engine
}

func TestScenarioSkipFeedback(t *testing.T) {
	t.Parallel()

	model := newScriptedModel().answer(check, "OK: 3 sections present")
	record, err := newEngine(t, model, 5).Run(context.Background(), workflow.RunState{
		Passport:     "",
		Report:       "Report text",
		Criteria:     "Rule: must have 3 sections",
		SkipFeedback: true,
	})
	require.NoError(t, err)

	final := record.Final()
	assert.Equal(t, "Rule: must have 3 sections", final.StructuredCriteriaText())
	assert.Equal(t, "OK: 3 sections present", final.CheckResultsText())
	assert.False(t, final.HasFeedback())

	assert.Equal(t, workflow.End, record.Terminal.State)
	assert.Equal(t, workflow.ReportChecked, record.Terminal.Reached)
	_, composed := record.Snapshot(workflow.FeedbackComposed)
	assert.False(t, composed)

	assert.Zero(t, model.callsFor(adapt))
	adapted, ok := record.Snapshot(workflow.RubricAdapted)
	require.True(t, ok)
	assert.Zero(t, adapted.ModelCalls)
	assert.Zero(t, adapted.Duration)
}

func TestScenarioWithFeedback(t *testing.T) {
	t.Parallel()

	model := newScriptedModel().
		answer(check, "OK: 3 sections present").
		answer(feedback, "Great job!")
	record, err := newEngine(t, model, 5).Run(context.Background(), workflow.RunState{
		Report:   "Report text",
		Criteria: "Rule: must have 3 sections",
	})
	require.NoError(t, err)

	assert.Equal(t, "Great job!", record.Final().FeedbackText())
	require.Len(t, record.Snapshots, 3)
	assert.Equal(t, []workflow.State{workflow.RubricAdapted, workflow.ReportChecked, workflow.FeedbackComposed},
		[]workflow.State{record.Snapshots[0].State, record.Snapshots[1].State, record.Snapshots[2].State})
	assert.Equal(t, workflow.FeedbackComposed, record.Terminal.Reached)
}

func TestScenarioReportCheckerFails(t *testing.T) {
	t.Parallel()

	recorder := &memoryRecorder{}
	model := newScriptedModel().fail(check)
	record, err := newEngine(t, model, 4, workflow.WithRecorder(recorder)).Run(context.Background(), workflow.RunState{
		Report:   "Report text",
		Criteria: "Rule: must have 3 sections",
	})

	var stageErr *rcerrors.StageExecutionError
	require.True(t, stdErrors.As(err, &stageErr))
	assert.Equal(t, workflow.StageReportChecker, stageErr.Stage)
	assert.Equal(t, 4, model.callsFor(check))

	require.NotNil(t, record)
	assert.True(t, record.Failed())
	assert.Equal(t, workflow.StageReportChecker, record.Terminal.FailedStage)
	assert.Equal(t, workflow.RubricAdapted, record.Terminal.Reached)
	_, adapted := record.Snapshot(workflow.RubricAdapted)
	assert.True(t, adapted)
	_, checked := record.Snapshot(workflow.ReportChecked)
	assert.False(t, checked)

	persisted := recorder.last()
	assert.True(t, persisted.Failed())
	assert.Len(t, persisted.Snapshots, 1)
}

func TestRunWithPassportCallsAdapter(t *testing.T) {
	t.Parallel()

	model := newScriptedModel().
		answer(adapt, "Adapted rubric").
		answer(check, "Findings")
	record, err := newEngine(t, model, 1).Run(context.Background(), workflow.RunState{
		Passport:     "Passport",
		Report:       "Report",
		Criteria:     "Criteria",
		SkipFeedback: true,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, model.callsFor(adapt))
	assert.Equal(t, "Adapted rubric", record.Final().StructuredCriteriaText())
	snap, ok := record.Snapshot(workflow.RubricAdapted)
	require.True(t, ok)
	assert.Equal(t, 1, snap.ModelCalls)
}

func TestSnapshotsAreIndependent(t *testing.T) {
	t.Parallel()

	model := newScriptedModel().answer(check, "c").answer(feedback, "f")
	record, err := newEngine(t, model, 1).Run(context.Background(), workflow.RunState{Report: "r", Criteria: "k"})
	require.NoError(t, err)

	first := record.Snapshots[0].RunState
	assert.Nil(t, first.CheckResults)
	assert.Nil(t, first.Feedback)
	second := record.Snapshots[1].RunState
	assert.Equal(t, "c", second.CheckResultsText())
	assert.Nil(t, second.Feedback)
}

func TestRunRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		state workflow.RunState
		field string
	}{
		{name: "empty report", state: workflow.RunState{Report: "  ", Criteria: "c"}, field: "report"},
		{name: "empty criteria", state: workflow.RunState{Report: "r"}, field: "criteria"},
		{name: "derived field preset", state: workflow.RunState{Report: "r", Criteria: "c", CheckResults: workflow.Text("x")}, field: "state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			model := newScriptedModel()
			record, err := newEngine(t, model, 1).Run(context.Background(), tt.state)

			var validationErr *rcerrors.ValidationError
			require.True(t, stdErrors.As(err, &validationErr))
			assert.Equal(t, tt.field, validationErr.Field)
			assert.Nil(t, record)
		})
	}
}

func TestEngineWrapsPlainStageErrors(t *testing.T) {
	t.Parallel()

	engine, err := workflow.NewEngine(workflow.Stages{
		RubricAdapter: func(context.Context, workflow.RunState) (workflow.Patch, error) {
			return workflow.Patch{}, fmt.Errorf("disk on fire")
		},
		ReportChecker:    func(context.Context, workflow.RunState) (workflow.Patch, error) { return workflow.Patch{}, nil },
		FeedbackComposer: func(context.Context, workflow.RunState) (workflow.Patch, error) { return workflow.Patch{}, nil },
	})
	require.NoError(t, err)

	record, err := engine.Run(context.Background(), workflow.RunState{Report: "r", Criteria: "c"})
	stageName, ok := rcerrors.StageOf(err)
	require.True(t, ok)
	assert.Equal(t, workflow.StageRubricAdapter, stageName)
	assert.Equal(t, workflow.Start, record.Terminal.Reached)
}

func TestEngineRejectsMissingOutput(t *testing.T) {
	t.Parallel()

	engine, err := workflow.NewEngine(workflow.Stages{
		RubricAdapter: func(_ context.Context, s workflow.RunState) (workflow.Patch, error) {
			return workflow.Patch{StructuredCriteria: workflow.Text(s.Criteria)}, nil
		},
		ReportChecker: func(context.Context, workflow.RunState) (workflow.Patch, error) {
			return workflow.Patch{Feedback: workflow.Text("wrong field")}, nil
		},
		FeedbackComposer: func(context.Context, workflow.RunState) (workflow.Patch, error) { return workflow.Patch{}, nil },
	})
	require.NoError(t, err)

	record, err := engine.Run(context.Background(), workflow.RunState{Report: "r", Criteria: "c", SkipFeedback: true})
	stageName, ok := rcerrors.StageOf(err)
	require.True(t, ok)
	assert.Equal(t, workflow.StageReportChecker, stageName)
	assert.False(t, record.Final().HasFeedback())
}

func TestEngineEmitsEventsInOrder(t *testing.T) {
	t.Parallel()

	publisher := events.NewLoggingPublisher(nil)
	var seen []string
	publisher.Subscribe(events.All, func(_ context.Context, e events.Event) error {
		seen = append(seen, e.Type+":"+e.Stage)
		return nil
	})

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	model := newScriptedModel().answer(check, "c")
	record, err := newEngine(t, model, 1,
		workflow.WithEvents(publisher),
		workflow.WithClock(tick),
		workflow.WithIDGenerator(func() string { return "run-42" }),
		workflow.WithModelName("Fake"),
	).Run(context.Background(), workflow.RunState{Report: "r", Criteria: "c", SkipFeedback: true})
	require.NoError(t, err)

	assert.Equal(t, "run-42", record.ID)
	assert.Equal(t, "Fake", record.Model)
	assert.Equal(t, []string{
		events.RunStarted + ":",
		events.StageStarted + ":" + workflow.StageRubricAdapter,
		events.StageCompleted + ":" + workflow.StageRubricAdapter,
		events.StageStarted + ":" + workflow.StageReportChecker,
		events.StageCompleted + ":" + workflow.StageReportChecker,
		events.RunCompleted + ":",
	}, seen)

	checked, ok := record.Snapshot(workflow.ReportChecked)
	require.True(t, ok)
	assert.Equal(t, time.Second, checked.Duration)
	assert.Equal(t, time.Second, record.TotalDuration())
}

func TestIndependentRunsConcurrently(t *testing.T) {
	t.Parallel()

	model := newScriptedModel().answer(check, "c").answer(feedback, "f")
	engine := newEngine(t, model, 1)

	var wg sync.WaitGroup
	records := make([]*workflow.RunRecord, 8)
	for i := range records {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			record, err := engine.Run(context.Background(), workflow.RunState{
				Report:   fmt.Sprintf("report %d", i),
				Criteria: "c",
			})
			assert.NoError(t, err)
			records[i] = record
		}(i)
	}
	wg.Wait()

	ids := make(map[string]struct{})
	for i, record := range records {
		require.NotNil(t, record)
		assert.Equal(t, fmt.Sprintf("report %d", i), record.Final().Report)
		ids[record.ID] = struct{}{}
	}
	assert.Len(t, ids, len(records))
}
