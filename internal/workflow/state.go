package workflow

import (
	"strings"

	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

// RunState is the data threaded through one run. It is owned by the run
// that created it. Derived fields are nil until their stage completes and are
// written at most once.
type RunState struct {
	Passport string `json:"passport"`
	Report   string `json:"report"`
	Criteria string `json:"criteria"`
	// RevisionCriteria is an optional earlier adaptation of the rubric that
	// the caller asks the Rubric Adapter to revise. It is never carried over
	// between runs implicitly.
	RevisionCriteria string `json:"revision_criteria,omitempty"`
	SkipFeedback     bool   `json:"skip_feedback"`

	StructuredCriteria *string `json:"structured_criteria,omitempty"`
	CheckResults       *string `json:"check_results,omitempty"`
	Feedback           *string `json:"feedback,omitempty"`
}

// Patch is the partial state a stage returns.
type Patch struct {
	StructuredCriteria *string
	CheckResults       *string
	Feedback           *string
	// ModelCalls counts gateway invocations made to produce the patch,
	// retries included. Zero means the stage short-circuited.
	ModelCalls int
}

// Text returns a pointer to s for building patches.
func Text(s string) *string {
	return &s
}

// Validate checks the invariants a fresh run must satisfy.
func (s RunState) Validate() error {
	if strings.TrimSpace(s.Report) == "" {
		return rcerrors.NewValidationError("report", "report text is required", nil)
	}
	if strings.TrimSpace(s.Criteria) == "" {
		return rcerrors.NewValidationError("criteria", "criteria text is required", nil)
	}
	if s.StructuredCriteria != nil || s.CheckResults != nil || s.Feedback != nil {
		return rcerrors.NewValidationError("state", "derived fields must be empty at run start", nil)
	}
	return nil
}

// Clone returns a copy that shares no pointers with s.
func (s RunState) Clone() RunState {
	out := s
	out.StructuredCriteria = cloneText(s.StructuredCriteria)
	out.CheckResults = cloneText(s.CheckResults)
	out.Feedback = cloneText(s.Feedback)
	return out
}

// StructuredCriteriaText returns the adapted rubric or "".
func (s RunState) StructuredCriteriaText() string { return deref(s.StructuredCriteria) }

// CheckResultsText returns the findings or "".
func (s RunState) CheckResultsText() string { return deref(s.CheckResults) }

// FeedbackText returns the feedback or "".
func (s RunState) FeedbackText() string { return deref(s.Feedback) }

// HasFeedback reports whether the feedback stage produced output.
func (s RunState) HasFeedback() bool { return s.Feedback != nil }

func (s *RunState) apply(p Patch) error {
	fields := []struct {
		name string
		dst  **string
		src  *string
	}{
		{"structured_criteria", &s.StructuredCriteria, p.StructuredCriteria},
		{"check_results", &s.CheckResults, p.CheckResults},
		{"feedback", &s.Feedback, p.Feedback},
	}
	for _, f := range fields {
		if f.src != nil && *f.dst != nil {
			return rcerrors.NewValidationError(f.name, "field is write-once", nil)
		}
	}
	for _, f := range fields {
		if f.src != nil {
			*f.dst = cloneText(f.src)
		}
	}
	return nil
}

func cloneText(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
