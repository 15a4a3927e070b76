// Package review is the entry point of the core: it binds a model, builds
// the stages and runs the workflow for one review request.
package review

import (
	"context"
	"strings"

	"github.com/alexisbeaulieu97/reportcheck/internal/events"
	"github.com/alexisbeaulieu97/reportcheck/internal/llm"
	"github.com/alexisbeaulieu97/reportcheck/internal/logger"
	"github.com/alexisbeaulieu97/reportcheck/internal/prompt"
	"github.com/alexisbeaulieu97/reportcheck/internal/retry"
	"github.com/alexisbeaulieu97/reportcheck/internal/stage"
	"github.com/alexisbeaulieu97/reportcheck/internal/workflow"
)

// Request is one review invocation.
type Request struct {
	// Model is the logical model name; empty selects the service default.
	Model            string
	Passport         string
	Report           string
	Criteria         string
	RevisionCriteria string
	SkipFeedback     bool
	// Names lists the input file names for the results document.
	Names []string
	// RunID fixes the run identifier; empty generates one.
	RunID string
}

// Result is the outcome of a review. It is returned alongside the error when
// the run started but failed, so partial state stays inspectable.
type Result struct {
	Record   *workflow.RunRecord
	State    workflow.RunState
	Document Document
}

// Service runs reviews.
type Service struct {
	gateway      *llm.Gateway
	prompts      *prompt.Store
	retry        retry.Policy
	recorder     workflow.Recorder
	events       events.Publisher
	log          *logger.Logger
	defaultModel string
}

// Option customises a Service.
type Option func(*Service)

// WithRetry sets the per-stage retry policy.
func WithRetry(p retry.Policy) Option {
	return func(s *Service) { s.retry = p }
}

// WithRecorder persists run records.
func WithRecorder(r workflow.Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithEvents publishes workflow events.
func WithEvents(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

// WithLogger attaches a logger.
func WithLogger(log *logger.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithDefaultModel sets the model used when a request names none.
func WithDefaultModel(name string) Option {
	return func(s *Service) { s.defaultModel = name }
}

// NewService builds a review service.
func NewService(gateway *llm.Gateway, prompts *prompt.Store, opts ...Option) *Service {
	s := &Service{
		gateway:      gateway,
		prompts:      prompts,
		retry:        retry.Default(),
		defaultModel: llm.DefaultModel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Prompts exposes the prompt store.
func (s *Service) Prompts() *prompt.Store {
	return s.prompts
}

// CheckModel verifies a model can be selected without running anything.
func (s *Service) CheckModel(name string) error {
	_, err := s.gateway.Select(s.modelName(name))
	return err
}

// Review runs the workflow for req. Model selection happens before any stage
// executes, so missing credentials fail fast with a ConfigurationError.
func (s *Service) Review(ctx context.Context, req Request) (*Result, error) {
	model := s.modelName(req.Model)
	binding, err := s.gateway.Bind(model)
	if err != nil {
		s.log.Error(err, "model selection failed", "model", model)
		return nil, err
	}

	stages := stage.Stages(stage.Deps{
		Model:   binding,
		Prompts: s.prompts,
		Retry:   s.retry,
		Events:  s.events,
		Log:     s.log,
	})

	opts := []workflow.Option{
		workflow.WithLogger(s.log),
		workflow.WithModelName(model),
		workflow.WithEvents(s.events),
	}
	if s.recorder != nil {
		opts = append(opts, workflow.WithRecorder(s.recorder))
	}
	engine, err := workflow.NewEngine(stages, opts...)
	if err != nil {
		return nil, err
	}

	record, err := engine.RunWithID(ctx, req.RunID, workflow.RunState{
		Passport:         req.Passport,
		Report:           req.Report,
		Criteria:         req.Criteria,
		RevisionCriteria: req.RevisionCriteria,
		SkipFeedback:     req.SkipFeedback,
	})
	if record == nil {
		return nil, err
	}

	result := &Result{
		Record:   record,
		State:    record.Final(),
		Document: NewDocument(record, req.Names, s.promptsInfo()),
	}
	return result, err
}

func (s *Service) modelName(name string) string {
	if strings.TrimSpace(name) == "" {
		return s.defaultModel
	}
	return name
}

func (s *Service) promptsInfo() PromptsInfo {
	return PromptsInfo{
		Templates: s.prompts.Effective(),
		Modified:  s.prompts.Modified(),
	}
}
