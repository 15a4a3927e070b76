package stage

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
	"github.com/alexisbeaulieu97/reportcheck/internal/template"
	"github.com/alexisbeaulieu97/reportcheck/internal/workflow"
	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

// flakyModel fails transiently for the first failures calls, then answers.
type flakyModel struct {
	mu       sync.Mutex
	failures int
	answer   string
	calls    int
	prompts  []string
}

func (m *flakyModel) Complete(_ context.Context, tmpl string, vars map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	rendered, err := template.Render(tmpl, vars)
	if err != nil {
		return "", err
	}
	m.prompts = append(m.prompts, rendered)
	if m.calls <= m.failures {
		return "", rcerrors.NewProviderError("fake", "fake", 503, fmt.Errorf("unavailable"))
	}
	return m.answer, nil
}

func testDeps(model *flakyModel, attempts int) Deps {
	return Deps{
		Model:   model,
		Prompts: prompt.NewStore(),
		Retry:   retry.NoWait(attempts),
	}
}

func TestRubricAdapterShortCircuitsWithoutPassport(t *testing.T) {
	t.Parallel()

	model := &flakyModel{answer: "never"}
	patch, err := RubricAdapter(testDeps(model, 5))(context.Background(), workflow.RunState{
		Report:   "r",
		Criteria: "Rule: must have 3 sections",
	})

	require.NoError(t, err)
	require.NotNil(t, patch.StructuredCriteria)
	assert.Equal(t, "Rule: must have 3 sections", *patch.StructuredCriteria)
	assert.Zero(t, patch.ModelCalls)
	assert.Zero(t, model.calls)
}

func TestRubricAdapterPassesRevisionInput(t *testing.T) {
	t.Parallel()

	model := &flakyModel{answer: "adapted"}
	patch, err := RubricAdapter(testDeps(model, 1))(context.Background(), workflow.RunState{
		Passport:         "Passport P",
		Report:           "r",
		Criteria:         "Criteria C",
		RevisionCriteria: "Earlier E",
	})

	require.NoError(t, err)
	assert.Equal(t, "adapted", *patch.StructuredCriteria)
	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "Passport P")
	assert.Contains(t, model.prompts[0], "Criteria C")
	assert.Contains(t, model.prompts[0], "Earlier E")
}

func TestRetryLaw(t *testing.T) {
	t.Parallel()

	for failures := 0; failures < 5; failures++ {
		t.Run(fmt.Sprintf("%d transient failures", failures), func(t *testing.T) {
			t.Parallel()

			model := &flakyModel{failures: failures, answer: "findings"}
			patch, err := ReportChecker(testDeps(model, 5))(context.Background(), workflow.RunState{
				Report:             "r",
				Criteria:           "c",
				StructuredCriteria: workflow.Text("sc"),
			})

			require.NoError(t, err)
			assert.Equal(t, "findings", *patch.CheckResults)
			assert.Equal(t, failures+1, model.calls)
			assert.Equal(t, failures+1, patch.ModelCalls)
		})
	}
}

func TestRetryExhaustion(t *testing.T) {
	t.Parallel()

	model := &flakyModel{failures: 100}
	_, err := FeedbackComposer(testDeps(model, 3))(context.Background(), workflow.RunState{
		CheckResults: workflow.Text("findings"),
	})

	var stageErr *rcerrors.StageExecutionError
	require.True(t, stdErrors.As(err, &stageErr))
	assert.Equal(t, workflow.StageFeedbackComposer, stageErr.Stage)
	assert.Equal(t, 3, stageErr.Attempts)
	assert.Equal(t, 3, model.calls)
	assert.True(t, rcerrors.IsTransient(err), "root cause stays reachable")
}

func TestRetryUsesBackoffSchedule(t *testing.T) {
	t.Parallel()

	var slept []time.Duration
	var retried []int
	policy := retry.Default()
	policy.Sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	policy.OnRetry = func(attempt int, _ time.Duration, _ error) { retried = append(retried, attempt) }

	publisher := events.NewLoggingPublisher(nil)
	var published []events.Event
	publisher.Subscribe(events.StageRetrying, func(_ context.Context, e events.Event) error {
		published = append(published, e)
		return nil
	})

	model := &flakyModel{failures: 100}
	deps := testDeps(model, 0)
	deps.Retry = policy
	deps.Events = publisher

	_, err := ReportChecker(deps)(context.Background(), workflow.RunState{StructuredCriteria: workflow.Text("sc"), Report: "r"})
	require.Error(t, err)

	assert.Equal(t, []time.Duration{4 * time.Second, 8 * time.Second, 15 * time.Second, 15 * time.Second}, slept)
	assert.Equal(t, []int{1, 2, 3, 4}, retried)
	require.Len(t, published, 4)
	assert.Equal(t, workflow.StageReportChecker, published[0].Stage)
	assert.Equal(t, 5, model.calls)
}

func TestPreconditionsAreNotRetried(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		stage func(Deps) workflow.StageFunc
		want  string
	}{
		{name: "report checker", stage: ReportChecker, want: workflow.StageReportChecker},
		{name: "feedback composer", stage: FeedbackComposer, want: workflow.StageFeedbackComposer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			model := &flakyModel{answer: "x"}
			_, err := tt.stage(testDeps(model, 5))(context.Background(), workflow.RunState{Report: "r", Criteria: "c"})

			var stageErr *rcerrors.StageExecutionError
			require.True(t, stdErrors.As(err, &stageErr))
			assert.Equal(t, tt.want, stageErr.Stage)
			var validationErr *rcerrors.ValidationError
			assert.True(t, stdErrors.As(err, &validationErr))
			assert.Zero(t, model.calls)
		})
	}
}

func TestUnresolvedPlaceholderIsNotRetried(t *testing.T) {
	t.Parallel()

	store := prompt.NewStore()
	require.NoError(t, store.Set(prompt.CheckReport, "Check {report} using {rubric}"))

	model := &flakyModel{answer: "x"}
	deps := testDeps(model, 5)
	deps.Prompts = store

	_, err := ReportChecker(deps)(context.Background(), workflow.RunState{Report: "r", StructuredCriteria: workflow.Text("sc")})

	var validationErr *rcerrors.ValidationError
	require.True(t, stdErrors.As(err, &validationErr))
	assert.True(t, strings.Contains(validationErr.Message, "rubric"))
	assert.Equal(t, 1, model.calls)
}
