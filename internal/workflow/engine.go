// Package workflow executes the review graph over a RunState: it dispatches
// stage functions in dependency order, evaluates the feedback branch and
// records a snapshot after every stage.
package workflow

import (
	"context"
	stdErrors "errors"
	"time"

	"github.com/google/uuid"

	"github.com/alexisbeaulieu97/reportcheck/internal/events"
	"github.com/alexisbeaulieu97/reportcheck/internal/logger"
	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

// Recorder persists run records. Save is called after every stage boundary
// and once more with the terminal state.
type Recorder interface {
	Save(ctx context.Context, record *RunRecord) error
}

// Engine runs the review graph.
type Engine struct {
	graph    *Graph
	recorder Recorder
	events   events.Publisher
	log      *logger.Logger
	now      func() time.Time
	newID    func() string
	model    string
}

// Option customises an Engine.
type Option func(*Engine)

// WithRecorder persists run records through r.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithEvents publishes lifecycle events to p.
func WithEvents(p events.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.events = p
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log *logger.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithModelName labels records with the model the stages are bound to.
func WithModelName(model string) Option {
	return func(e *Engine) { e.model = model }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides run identifier generation.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// NewEngine builds an engine over the review graph.
func NewEngine(stages Stages, opts ...Option) (*Engine, error) {
	graph, err := NewReviewGraph(stages)
	if err != nil {
		return nil, err
	}
	return NewEngineWithGraph(graph, opts...), nil
}

// NewEngineWithGraph builds an engine over an already validated graph.
func NewEngineWithGraph(graph *Graph, opts ...Option) *Engine {
	e := &Engine{
		graph:  graph,
		events: events.Nop{},
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Graph exposes the graph the engine walks.
func (e *Engine) Graph() *Graph {
	return e.graph
}

// Run executes the workflow to completion or failure. The returned record is
// always non-nil once the input passed validation; on failure it carries the
// Failed terminal state and the error is a StageExecutionError.
func (e *Engine) Run(ctx context.Context, initial RunState) (*RunRecord, error) {
	return e.RunWithID(ctx, "", initial)
}

// RunWithID is Run with a caller-chosen run identifier. An empty id is
// generated.
func (e *Engine) RunWithID(ctx context.Context, id string, initial RunState) (*RunRecord, error) {
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	if id == "" {
		id = e.newID()
	}

	record := &RunRecord{
		ID:        id,
		Input:     initial.Clone(),
		StartedAt: e.now(),
	}
	record.Model = e.model

	log := e.log.With("run_id", id)
	log.Info("run started", "skip_feedback", initial.SkipFeedback, "has_passport", initial.Passport != "")
	e.publish(ctx, events.Event{Type: events.RunStarted, RunID: id})
	e.save(ctx, record)

	state := initial.Clone()
	current := Start
	for {
		edge, err := e.graph.Next(current, state)
		if err != nil {
			return e.fail(ctx, record, current, "", err)
		}
		if edge.To == End {
			break
		}

		node, _ := e.graph.Node(edge.To)
		snap, err := e.runStage(ctx, log, record.ID, node, &state)
		if err != nil {
			return e.fail(ctx, record, current, node.Stage, err)
		}

		record.Snapshots = append(record.Snapshots, snap)
		current = edge.To
		e.save(ctx, record)
	}

	record.Terminal = &Terminal{State: End, Reached: current}
	record.FinishedAt = e.now()
	e.save(ctx, record)

	log.Info("run completed", "reached", string(current), "duration", record.TotalDuration())
	e.publish(ctx, events.Event{Type: events.RunCompleted, RunID: id, Duration: record.TotalDuration()})
	return record, nil
}

func (e *Engine) runStage(ctx context.Context, log *logger.Logger, runID string, node *Node, state *RunState) (Snapshot, error) {
	e.publish(ctx, events.Event{Type: events.StageStarted, RunID: runID, Stage: node.Stage})
	log.Debug("stage started", "stage", node.Stage)

	stageCtx := withRunInfo(ctx, runID, node.Stage)
	started := e.now()
	patch, err := node.Run(stageCtx, state.Clone())
	elapsed := e.now().Sub(started)
	if err != nil {
		return Snapshot{}, err
	}

	next := state.Clone()
	if err := next.apply(patch); err != nil {
		return Snapshot{}, err
	}
	if node.Produces != nil && !node.Produces(next) {
		return Snapshot{}, rcerrors.NewValidationError(node.Stage, "stage returned no output", nil)
	}
	*state = next

	if patch.ModelCalls == 0 {
		elapsed = 0
	}
	snap := Snapshot{
		State:      node.State,
		Stage:      node.Stage,
		RunState:   state.Clone(),
		Duration:   elapsed,
		ModelCalls: patch.ModelCalls,
		At:         e.now(),
	}

	log.Info("stage completed", "stage", node.Stage, "duration", elapsed, "model_calls", patch.ModelCalls)
	e.publish(ctx, events.Event{Type: events.StageCompleted, RunID: runID, Stage: node.Stage, Duration: elapsed})
	return snap, nil
}

func (e *Engine) fail(ctx context.Context, record *RunRecord, reached State, stage string, err error) (*RunRecord, error) {
	var stageErr *rcerrors.StageExecutionError
	if !stdErrors.As(err, &stageErr) {
		if stage == "" {
			stage = string(reached)
		}
		err = rcerrors.NewStageExecutionError(stage, 1, err)
	} else if stage == "" {
		stage = stageErr.Stage
	}

	record.Terminal = &Terminal{
		State:       Failed,
		Reached:     reached,
		FailedStage: stage,
		Error:       err.Error(),
	}
	record.FinishedAt = e.now()
	e.save(ctx, record)

	e.log.Error(err, "run failed", "run_id", record.ID, "stage", stage, "reached", string(reached))
	e.publish(ctx, events.Event{Type: events.StageFailed, RunID: record.ID, Stage: stage, Err: err})
	e.publish(ctx, events.Event{Type: events.RunFailed, RunID: record.ID, Stage: stage, Err: err})
	return record, err
}

func (e *Engine) save(ctx context.Context, record *RunRecord) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Save(ctx, record.Clone()); err != nil {
		e.log.Error(err, "persist run record", "run_id", record.ID)
	}
}

func (e *Engine) publish(ctx context.Context, event events.Event) {
	event.Time = e.now()
	if err := e.events.Publish(ctx, event); err != nil {
		e.log.Warn("publish event", "event_type", event.Type, "error", err)
	}
}

type runInfoKey struct{}

// RunInfo identifies the run and stage executing a stage function.
type RunInfo struct {
	RunID string
	Stage string
}

func withRunInfo(ctx context.Context, runID, stage string) context.Context {
	return context.WithValue(ctx, runInfoKey{}, RunInfo{RunID: runID, Stage: stage})
}

// RunInfoFrom returns the run and stage a stage function is executing for.
func RunInfoFrom(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(runInfoKey{}).(RunInfo)
	return info, ok
}
