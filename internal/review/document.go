package review

import (
	"time"

	"github.com/alexisbeaulieu97/reportcheck/internal/workflow"
)

// Document is the results record exported after a review.
type Document struct {
	Timestamp    time.Time     `json:"timestamp"`
	Model        string        `json:"llm"`
	SessionID    string        `json:"session_id"`
	Status       string        `json:"status"`
	FailedStage  string        `json:"failed_stage,omitempty"`
	Error        string        `json:"error,omitempty"`
	Inputs       Inputs        `json:"inputs"`
	Outputs      Outputs       `json:"outputs"`
	Prompts      PromptsInfo   `json:"prompts"`
	Durations    Durations     `json:"durations"`
	UserFeedback *UserFeedback `json:"feedback_from_user"`
}

// Inputs lists the supplied documents.
type Inputs struct {
	Names   []string     `json:"names"`
	Content InputContent `json:"content"`
}

// InputContent is the extracted text of each input.
type InputContent struct {
	Passport string `json:"passport"`
	Report   string `json:"report"`
	Criteria string `json:"criteria"`
}

// Outputs wraps the derived texts.
type Outputs struct {
	Content OutputContent `json:"content"`
}

// OutputContent carries the stage outputs. Feedback is null when the
// feedback stage did not run.
type OutputContent struct {
	CheckResults  string  `json:"check_results"`
	CheckCriteria string  `json:"check_criteria"`
	Feedback      *string `json:"feedback_for_student"`
}

// PromptsInfo records the templates in effect for the run.
type PromptsInfo struct {
	Templates map[string]string `json:"templates"`
	Modified  []string          `json:"modified,omitempty"`
}

// Durations are per-stage wall times in seconds.
type Durations struct {
	Total               float64 `json:"duration"`
	StructuringCriteria float64 `json:"structuring_criteria_duration"`
	CheckingReport      float64 `json:"checking_report_duration"`
	FeedbackForming     float64 `json:"feedback_forming_duration"`
}

// UserFeedback is the reviewer's rating of the generated results.
type UserFeedback struct {
	Rating  int    `json:"rating,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// Status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// NewDocument assembles the results document for a finished record.
func NewDocument(record *workflow.RunRecord, names []string, prompts PromptsInfo) Document {
	final := record.Final()
	durations := record.Durations()

	doc := Document{
		Timestamp: record.StartedAt,
		Model:     record.Model,
		SessionID: record.ID,
		Status:    StatusSuccess,
		Inputs: Inputs{
			Names: append([]string(nil), names...),
			Content: InputContent{
				Passport: record.Input.Passport,
				Report:   record.Input.Report,
				Criteria: record.Input.Criteria,
			},
		},
		Outputs: Outputs{Content: OutputContent{
			CheckResults:  final.CheckResultsText(),
			CheckCriteria: final.StructuredCriteriaText(),
			Feedback:      final.Feedback,
		}},
		Prompts: prompts,
		Durations: Durations{
			Total:               record.TotalDuration().Seconds(),
			StructuringCriteria: durations[workflow.StageRubricAdapter].Seconds(),
			CheckingReport:      durations[workflow.StageReportChecker].Seconds(),
			FeedbackForming:     durations[workflow.StageFeedbackComposer].Seconds(),
		},
	}
	if record.Failed() {
		doc.Status = StatusError
		doc.FailedStage = record.Terminal.FailedStage
		doc.Error = record.Terminal.Error
	}
	return doc
}
