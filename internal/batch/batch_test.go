package batch

import (
	"context"
	stdErrors "errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/reportcheck/internal/export"
	"github.com/alexisbeaulieu97/reportcheck/internal/extract"
	"github.com/alexisbeaulieu97/reportcheck/internal/prompt"
	"github.com/alexisbeaulieu97/reportcheck/internal/review"
	"github.com/alexisbeaulieu97/reportcheck/internal/workflow"
	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

type fakeReviewer struct {
	mu       sync.Mutex
	requests []review.Request
	fail     map[string]error
}

func (f *fakeReviewer) Review(_ context.Context, req review.Request) (*review.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if err := f.fail[req.Report]; err != nil {
		return nil, err
	}
	state := workflow.RunState{
		Report:             req.Report,
		Criteria:           req.Criteria,
		SkipFeedback:       req.SkipFeedback,
		StructuredCriteria: workflow.Text("criteria for " + req.Report),
		CheckResults:       workflow.Text("checked " + req.Report),
	}
	if !req.SkipFeedback {
		state.Feedback = workflow.Text("feedback for " + req.Report)
	}
	return &review.Result{Record: &workflow.RunRecord{ID: "run-" + req.Report}, State: state}, nil
}

func (f *fakeReviewer) reports() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, req := range f.requests {
		out = append(out, req.Report)
	}
	return out
}

type recordingSink struct {
	mu    sync.Mutex
	items []export.Item
}

func (s *recordingSink) Publish(_ context.Context, item export.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, item)
	return stdErrors.New("sink failures are only logged")
}

func newProject(t *testing.T) Layout {
	t.Helper()
	layout := NewLayout(t.TempDir(), Paths{})
	require.NoError(t, Init(layout, prompt.NewStore()))
	return layout
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fixedNow() time.Time {
	return time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
}

func TestInitCreatesLayout(t *testing.T) {
	t.Parallel()

	layout := newProject(t)
	for _, dir := range []string{layout.Reports, layout.Passports, layout.Output, layout.Prompts} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}

	criteria, err := os.ReadFile(layout.Criteria)
	require.NoError(t, err)
	assert.Contains(t, string(criteria), "Problem statement")

	defaults, err := layout.PromptDefaults()
	require.NoError(t, err)
	assert.ElementsMatch(t, prompt.IDs(), keys(defaults))
}

func TestInitKeepsExistingCriteria(t *testing.T) {
	t.Parallel()

	layout := NewLayout(t.TempDir(), Paths{})
	writeFile(t, layout.Criteria, "mine")
	require.NoError(t, Init(layout, nil))

	criteria, err := os.ReadFile(layout.Criteria)
	require.NoError(t, err)
	assert.Equal(t, "mine", string(criteria))
}

func TestRunReviewsAndWritesOutputs(t *testing.T) {
	t.Parallel()

	layout := newProject(t)
	writeFile(t, filepath.Join(layout.Reports, "Team_Alpha_report.txt"), "alpha report")
	writeFile(t, filepath.Join(layout.Reports, "beta.md"), "beta report")
	writeFile(t, filepath.Join(layout.Passports, "alpha.txt"), "alpha passport")

	reviewer := &fakeReviewer{}
	sink := &recordingSink{}
	var seen []Outcome
	runner := NewRunner(layout, reviewer, extract.New(nil), Options{
		Now:       fixedNow,
		Sinks:     []export.Sink{sink},
		OnOutcome: func(o Outcome) { seen = append(seen, o) },
	})

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Len(t, seen, 2)
	assert.Len(t, sink.items, 2)

	require.Len(t, summary.Outcomes, 2)
	alpha := summary.Outcomes[0]
	assert.Equal(t, "Team_Alpha_report.txt", alpha.Report)
	assert.Equal(t, "alpha.txt", alpha.Passport)
	assert.Equal(t, "run-alpha report", alpha.RunID)

	for _, name := range []string{"Team_Alpha_report_check_results.md", "Team_Alpha_report_criteria.md", "Team_Alpha_report_feedback.md", "beta_check_results.md"} {
		_, err := os.Stat(filepath.Join(layout.Output, name))
		assert.NoError(t, err, name)
	}

	reviewer.mu.Lock()
	var passports []string
	for _, req := range reviewer.requests {
		passports = append(passports, req.Passport)
	}
	reviewer.mu.Unlock()
	assert.ElementsMatch(t, []string{"alpha passport", ""}, passports)

	ledger, err := OpenLedger(layout.Ledger)
	require.NoError(t, err)
	entry, ok := ledger.Get("beta.md")
	require.True(t, ok)
	assert.Equal(t, StatusSuccess, entry.Status)
	assert.Nil(t, entry.ErrorMessage)
	assert.Equal(t, "2024-05-01 12:30:00", entry.ProcessedAt)
}

func TestRunSkipsSucceededAndRetriesFailed(t *testing.T) {
	t.Parallel()

	layout := newProject(t)
	writeFile(t, filepath.Join(layout.Reports, "a.txt"), "report a")
	writeFile(t, filepath.Join(layout.Reports, "b.txt"), "report b")

	reviewer := &fakeReviewer{fail: map[string]error{
		"report b": rcerrors.NewStageExecutionError("ReportChecker", 5, stdErrors.New("timeout")),
	}}
	runner := NewRunner(layout, reviewer, extract.New(nil), Options{Now: fixedNow})

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)

	ledger, err := OpenLedger(layout.Ledger)
	require.NoError(t, err)
	entry, _ := ledger.Get("b.txt")
	assert.Equal(t, StatusError, entry.Status)
	require.NotNil(t, entry.ErrorMessage)
	assert.Contains(t, *entry.ErrorMessage, "ReportChecker")

	retry := &fakeReviewer{}
	summary, err = NewRunner(layout, retry, extract.New(nil), Options{Now: fixedNow}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, []string{"report b"}, retry.reports())
}

func TestRunSkipFeedbackOmitsFeedbackFile(t *testing.T) {
	t.Parallel()

	layout := newProject(t)
	writeFile(t, filepath.Join(layout.Reports, "a.txt"), "report a")

	summary, err := NewRunner(layout, &fakeReviewer{}, extract.New(nil), Options{SkipFeedback: true}).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Outcomes, 1)
	assert.Len(t, summary.Outcomes[0].Outputs, 2)

	_, err = os.Stat(filepath.Join(layout.Output, "a_feedback.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunSuffixesCollidingOutputs(t *testing.T) {
	t.Parallel()

	layout := newProject(t)
	writeFile(t, filepath.Join(layout.Reports, "a.txt"), "report a")
	writeFile(t, filepath.Join(layout.Output, "a_check_results.md"), "older")

	_, err := NewRunner(layout, &fakeReviewer{}, extract.New(nil), Options{}).Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(layout.Output, "a_1_check_results.md"))
	require.NoError(t, err)
	assert.Equal(t, "checked report a", string(data))
}

func TestRunRejectsUnsupportedFormat(t *testing.T) {
	t.Parallel()

	layout := newProject(t)
	writeFile(t, filepath.Join(layout.Reports, "a.txt"), "report a")
	writeFile(t, filepath.Join(layout.Passports, "p.odt"), "odt")

	reviewer := &fakeReviewer{}
	_, err := NewRunner(layout, reviewer, extract.New(nil), Options{}).Run(context.Background())

	var validationErr *rcerrors.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Message, "p.odt")
	assert.Empty(t, reviewer.reports())
}

func TestRunRequiresCriteria(t *testing.T) {
	t.Parallel()

	layout := newProject(t)
	require.NoError(t, os.Remove(layout.Criteria))

	_, err := NewRunner(layout, &fakeReviewer{}, extract.New(nil), Options{}).Run(context.Background())
	var notFound *rcerrors.NotFoundError
	require.ErrorAs(t, err, &notFound)
}

func TestRunRecordsUnreadableReport(t *testing.T) {
	t.Parallel()

	layout := newProject(t)
	writeFile(t, filepath.Join(layout.Reports, "empty.txt"), "  \n")

	reviewer := &fakeReviewer{}
	summary, err := NewRunner(layout, reviewer, extract.New(nil), Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, reviewer.reports())
}

func TestRunParallel(t *testing.T) {
	t.Parallel()

	layout := newProject(t)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		writeFile(t, filepath.Join(layout.Reports, name+".txt"), "report "+name)
	}

	reviewer := &fakeReviewer{}
	summary, err := NewRunner(layout, reviewer, extract.New(nil), Options{Parallel: 3}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Succeeded)
	assert.Len(t, reviewer.reports(), 5)
	assert.Equal(t, "a.txt", summary.Outcomes[0].Report)
}

func TestRunCancelledLeavesReportsPending(t *testing.T) {
	t.Parallel()

	layout := newProject(t)
	writeFile(t, filepath.Join(layout.Reports, "a.txt"), "report a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(layout, &fakeReviewer{}, extract.New(nil), Options{}).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	ledger, err := OpenLedger(layout.Ledger)
	require.NoError(t, err)
	assert.False(t, ledger.Succeeded("a.txt"))
	_, statErr := os.Stat(layout.Ledger)
	assert.NoError(t, statErr)
}

func TestMatchPassportUsesEachOnce(t *testing.T) {
	t.Parallel()

	passports := []string{"Alpha.docx", "beta.pdf"}
	used := map[string]bool{}

	assert.Equal(t, "Alpha.docx", MatchPassport("team_alpha_v1.pdf", passports, used))
	assert.Equal(t, "", MatchPassport("team_alpha_v2.pdf", passports, used))
	assert.Equal(t, "beta.pdf", MatchPassport("BETA final.txt", passports, used))
}

func TestOpenLedgerRejectsCorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), LedgerFile)
	writeFile(t, path, "{not json")

	_, err := OpenLedger(path)
	var parseErr *rcerrors.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestLedgerRoundTripListsNamesSorted(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), LedgerFile)
	ledger, err := OpenLedger(path)
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	ledger.Record("zeta.txt", nil, at)
	ledger.Record("alpha.pdf", stdErrors.New("empty"), at)
	require.NoError(t, ledger.Save())

	reopened, err := OpenLedger(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha.pdf", "zeta.txt"}, reopened.Names())

	entry, ok := reopened.Get("alpha.pdf")
	require.True(t, ok)
	assert.Equal(t, StatusError, entry.Status)
	require.NotNil(t, entry.ErrorMessage)
	assert.Equal(t, "empty", *entry.ErrorMessage)
	assert.Equal(t, "2024-05-01 09:30:00", entry.ProcessedAt)
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
