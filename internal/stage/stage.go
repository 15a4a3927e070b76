// Package stage implements the three model-backed transformations of the
// review workflow. Each stage renders its prompt, calls the bound model under
// the retry policy and returns a patch for the engine to apply.
package stage

import (
	"context"
	"time"

	"github.com/alexisbeaulieu97/reportcheck/internal/events"
	"github.com/alexisbeaulieu97/reportcheck/internal/llm"
	"github.com/alexisbeaulieu97/reportcheck/internal/logger"
	"github.com/alexisbeaulieu97/reportcheck/internal/prompt"
	"github.com/alexisbeaulieu97/reportcheck/internal/retry"
	"github.com/alexisbeaulieu97/reportcheck/internal/workflow"
	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

// Template variable names.
const (
	VarPassport           = "passport"
	VarCriteria           = "criteria"
	VarStructuredCriteria = "structured_criteria"
	VarReport             = "report"
	VarCheckResults       = "check_results"
)

// PromptSource resolves a stage identifier to its current template.
type PromptSource interface {
	Get(id string) (string, error)
}

// Deps are the collaborators every stage needs.
type Deps struct {
	Model   llm.Completer
	Prompts PromptSource
	Retry   retry.Policy
	Events  events.Publisher
	Log     *logger.Logger
}

// Stages builds the workflow stage set from deps.
func Stages(deps Deps) workflow.Stages {
	return workflow.Stages{
		RubricAdapter:    RubricAdapter(deps),
		ReportChecker:    ReportChecker(deps),
		FeedbackComposer: FeedbackComposer(deps),
	}
}

// RubricAdapter tailors the rubric to the project passport. Without a
// passport the rubric is used unchanged and the model is not called.
func RubricAdapter(deps Deps) workflow.StageFunc {
	return func(ctx context.Context, state workflow.RunState) (workflow.Patch, error) {
		if state.Passport == "" {
			deps.Log.Debug("passport empty, using criteria as is", "stage", workflow.StageRubricAdapter)
			return workflow.Patch{StructuredCriteria: workflow.Text(state.Criteria)}, nil
		}

		text, calls, err := deps.complete(ctx, workflow.StageRubricAdapter, prompt.CriteriaForming, map[string]string{
			VarPassport:           state.Passport,
			VarCriteria:           state.Criteria,
			VarStructuredCriteria: state.RevisionCriteria,
		})
		if err != nil {
			return workflow.Patch{}, err
		}
		return workflow.Patch{StructuredCriteria: workflow.Text(text), ModelCalls: calls}, nil
	}
}

// ReportChecker judges the report against the adapted rubric.
func ReportChecker(deps Deps) workflow.StageFunc {
	return func(ctx context.Context, state workflow.RunState) (workflow.Patch, error) {
		if state.StructuredCriteria == nil {
			return workflow.Patch{}, precondition(workflow.StageReportChecker, VarStructuredCriteria)
		}

		text, calls, err := deps.complete(ctx, workflow.StageReportChecker, prompt.CheckReport, map[string]string{
			VarReport:             state.Report,
			VarStructuredCriteria: *state.StructuredCriteria,
		})
		if err != nil {
			return workflow.Patch{}, err
		}
		return workflow.Patch{CheckResults: workflow.Text(text), ModelCalls: calls}, nil
	}
}

// FeedbackComposer turns the findings into a student-facing summary.
func FeedbackComposer(deps Deps) workflow.StageFunc {
	return func(ctx context.Context, state workflow.RunState) (workflow.Patch, error) {
		if state.CheckResults == nil {
			return workflow.Patch{}, precondition(workflow.StageFeedbackComposer, VarCheckResults)
		}

		text, calls, err := deps.complete(ctx, workflow.StageFeedbackComposer, prompt.FeedbackForming, map[string]string{
			VarCheckResults: *state.CheckResults,
		})
		if err != nil {
			return workflow.Patch{}, err
		}
		return workflow.Patch{Feedback: workflow.Text(text), ModelCalls: calls}, nil
	}
}

// precondition reports a stage invoked out of order. It is never retried.
func precondition(stage, field string) error {
	return rcerrors.NewStageExecutionError(stage, 0, rcerrors.NewValidationError(field, "required input not set", nil))
}

func (d Deps) complete(ctx context.Context, stage, promptID string, vars map[string]string) (string, int, error) {
	tmpl, err := d.Prompts.Get(promptID)
	if err != nil {
		return "", 0, rcerrors.NewStageExecutionError(stage, 0, err)
	}

	runID := ""
	if info, ok := workflow.RunInfoFrom(ctx); ok {
		runID = info.RunID
	}

	policy := d.Retry
	onRetry := policy.OnRetry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		d.Log.Warn("stage attempt failed, retrying", "stage", stage, "attempt", attempt, "delay", delay, "error", err)
		if d.Events != nil {
			_ = d.Events.Publish(ctx, events.Event{Type: events.StageRetrying, RunID: runID, Stage: stage, Attempt: attempt, Err: err, Time: time.Now()})
		}
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
	}

	var text string
	attempts, err := policy.Do(ctx, func(ctx context.Context) error {
		out, callErr := d.Model.Complete(ctx, tmpl, vars)
		if callErr != nil {
			return callErr
		}
		text = out
		return nil
	})
	if err != nil {
		return "", attempts, rcerrors.NewStageExecutionError(stage, attempts, err)
	}
	return text, attempts, nil
}
