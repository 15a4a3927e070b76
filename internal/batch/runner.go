package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alexisbeaulieu97/reportcheck/internal/export"
	"github.com/alexisbeaulieu97/reportcheck/internal/extract"
	"github.com/alexisbeaulieu97/reportcheck/internal/logger"
	"github.com/alexisbeaulieu97/reportcheck/internal/review"
	"github.com/alexisbeaulieu97/reportcheck/internal/workflow"
	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

// Reviewer runs one review.
type Reviewer interface {
	Review(ctx context.Context, req review.Request) (*review.Result, error)
}

// TextSource turns a file into plain text.
type TextSource interface {
	Extract(path string) (string, error)
}

// Outcome statuses.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

// Outcome is the result of one report file.
type Outcome struct {
	Report   string
	Passport string
	Status   string
	RunID    string
	Outputs  []string
	Duration time.Duration
	Err      error
}

// Summary totals a batch run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Outcomes  []Outcome
}

// Options tune a Runner.
type Options struct {
	Model        string
	SkipFeedback bool
	// Parallel bounds concurrent reviews; values below 1 mean one.
	Parallel int
	// OnOutcome is called once per report as it finishes.
	OnOutcome func(Outcome)
	Sinks     []export.Sink
	Now       func() time.Time
	Log       *logger.Logger
}

// Runner reviews the reports of one project.
type Runner struct {
	layout   Layout
	reviewer Reviewer
	source   TextSource
	opts     Options
	log      *logger.Logger

	outputMu sync.Mutex
}

// NewRunner builds a Runner.
func NewRunner(layout Layout, reviewer Reviewer, source TextSource, opts Options) *Runner {
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{layout: layout, reviewer: reviewer, source: source, opts: opts, log: opts.Log}
}

type job struct {
	report   string
	passport string
}

// Run reviews every report not already marked successful in the ledger.
// The ledger is written before Run returns, including on cancellation.
func (r *Runner) Run(ctx context.Context) (summary Summary, err error) {
	if err := CheckInputFormat(r.layout.Reports, r.layout.Passports); err != nil {
		return summary, err
	}

	criteria, err := r.criteria()
	if err != nil {
		return summary, err
	}

	ledger, err := OpenLedger(r.layout.Ledger)
	if err != nil {
		return summary, err
	}
	defer func() {
		if saveErr := ledger.Save(); saveErr != nil {
			r.log.Error(saveErr, "failed to save ledger", "path", r.layout.Ledger)
			if err == nil {
				err = saveErr
			}
		}
	}()

	if err := os.MkdirAll(r.layout.Output, 0o755); err != nil {
		return summary, fmt.Errorf("create output directory: %w", err)
	}

	reports, err := listFiles(r.layout.Reports)
	if err != nil {
		return summary, err
	}
	passports, err := listFiles(r.layout.Passports)
	if err != nil {
		return summary, err
	}
	if len(passports) == 0 {
		r.log.Warn("no passports found, reviews run against the raw criteria", "dir", r.layout.Passports)
	}

	var (
		jobs []job
		used = make(map[string]bool)
	)
	summary.Total = len(reports)
	for _, report := range reports {
		if ledger.Succeeded(report) {
			r.log.Debug("report already reviewed", "report", report)
			summary.Skipped++
			r.emit(&summary, nil, Outcome{Report: report, Status: OutcomeSkipped})
			continue
		}
		jobs = append(jobs, job{report: report, passport: MatchPassport(report, passports, used)})
	}

	var mu sync.Mutex
	group := &errgroup.Group{}
	group.SetLimit(r.opts.Parallel)
	for _, j := range jobs {
		j := j
		if ctx.Err() != nil {
			break
		}
		group.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcome := r.review(ctx, j, criteria)
			if outcome.Status == OutcomeError && ctx.Err() != nil {
				// Interrupted runs stay unrecorded so the next run retries them.
				return nil
			}
			ledger.Record(j.report, outcome.Err, r.opts.Now())
			r.emit(&summary, &mu, outcome)
			return nil
		})
	}
	_ = group.Wait()

	sort.Slice(summary.Outcomes, func(i, k int) bool {
		return summary.Outcomes[i].Report < summary.Outcomes[k].Report
	})
	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	return summary, nil
}

func (r *Runner) emit(summary *Summary, mu *sync.Mutex, outcome Outcome) {
	if mu != nil {
		mu.Lock()
		defer mu.Unlock()
	}
	switch outcome.Status {
	case OutcomeSuccess:
		summary.Succeeded++
	case OutcomeError:
		summary.Failed++
	}
	summary.Outcomes = append(summary.Outcomes, outcome)
	if r.opts.OnOutcome != nil {
		r.opts.OnOutcome(outcome)
	}
}

func (r *Runner) criteria() (string, error) {
	if _, err := os.Stat(r.layout.Criteria); err != nil {
		if os.IsNotExist(err) {
			return "", rcerrors.NewNotFoundError("criteria file", r.layout.Criteria)
		}
		return "", err
	}
	text, err := r.source.Extract(r.layout.Criteria)
	if err != nil {
		return "", rcerrors.NewValidationError("criteria", "criteria file cannot be read", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", rcerrors.NewValidationError("criteria", "criteria file is empty", nil)
	}
	return text, nil
}

func (r *Runner) review(ctx context.Context, j job, criteria string) Outcome {
	started := r.opts.Now()
	outcome := Outcome{Report: j.report, Passport: j.passport, Status: OutcomeError}
	log := r.log.With("report", j.report)

	report, err := r.source.Extract(filepath.Join(r.layout.Reports, j.report))
	switch {
	case err != nil:
		err = rcerrors.NewValidationError("report", "report cannot be read", err)
	case strings.TrimSpace(report) == "":
		err = rcerrors.NewValidationError("report", "report is empty", nil)
	}
	if err != nil {
		log.Error(err, "failed to read report")
		outcome.Err = err
		return outcome
	}

	passport := ""
	names := []string{j.report}
	if j.passport != "" {
		text, err := r.source.Extract(filepath.Join(r.layout.Passports, j.passport))
		if err != nil {
			log.Warn("passport unreadable, continuing without it", "passport", j.passport, "error", err)
		} else {
			passport = text
			names = append(names, j.passport)
		}
	}
	names = append(names, filepath.Base(r.layout.Criteria))

	log.Info("reviewing report", "passport", j.passport)
	result, err := r.reviewer.Review(ctx, review.Request{
		Model:        r.opts.Model,
		Passport:     passport,
		Report:       report,
		Criteria:     criteria,
		SkipFeedback: r.opts.SkipFeedback,
		Names:        names,
	})
	outcome.Duration = r.opts.Now().Sub(started)
	if result != nil && result.Record != nil {
		outcome.RunID = result.Record.ID
	}
	if err != nil {
		log.Error(err, "review failed")
		outcome.Err = err
		return outcome
	}

	outputs, err := r.writeOutputs(j.report, result.State)
	if err != nil {
		log.Error(err, "failed to write results")
		outcome.Err = err
		return outcome
	}
	outcome.Outputs = outputs
	outcome.Status = OutcomeSuccess

	item := export.Item{Name: j.report, Result: result}
	for _, sink := range r.opts.Sinks {
		if err := sink.Publish(ctx, item); err != nil {
			log.Warn("result export failed", "error", err)
		}
	}
	return outcome
}

// writeOutputs saves the stage results next to each other, suffixing the
// base name with _N when an earlier result already uses it.
func (r *Runner) writeOutputs(report string, state workflow.RunState) ([]string, error) {
	r.outputMu.Lock()
	defer r.outputMu.Unlock()

	base := strings.TrimSuffix(report, filepath.Ext(report))
	prefix := filepath.Join(r.layout.Output, base)
	for counter := 1; ; counter++ {
		if _, err := os.Stat(prefix + "_check_results.md"); os.IsNotExist(err) {
			break
		}
		prefix = filepath.Join(r.layout.Output, base+"_"+strconv.Itoa(counter))
	}

	files := []struct {
		suffix string
		text   *string
	}{
		{"_check_results.md", state.CheckResults},
		{"_criteria.md", state.StructuredCriteria},
	}
	if !state.SkipFeedback {
		files = append(files, struct {
			suffix string
			text   *string
		}{"_feedback.md", state.Feedback})
	}

	var written []string
	for _, f := range files {
		if f.text == nil {
			continue
		}
		path := prefix + f.suffix
		if err := os.WriteFile(path, []byte(*f.text), 0o644); err != nil {
			return written, fmt.Errorf("write %s: %w", filepath.Base(path), err)
		}
		written = append(written, path)
	}
	return written, nil
}

// CheckInputFormat fails when any file in dirs has an unsupported extension.
// A missing directory is treated as empty.
func CheckInputFormat(dirs ...string) error {
	var bad []string
	for _, dir := range dirs {
		names, err := listFiles(dir)
		if err != nil {
			return err
		}
		for _, name := range names {
			if !extract.Supported(name) {
				bad = append(bad, filepath.Join(dir, name))
			}
		}
	}
	if len(bad) > 0 {
		return rcerrors.NewValidationError("input",
			fmt.Sprintf("unsupported file format (allowed: %s): %s",
				strings.Join(extract.Extensions(), ", "), strings.Join(bad, ", ")), nil)
	}
	return nil
}

// MatchPassport returns the first unused passport whose base name occurs,
// case-insensitively, in the report base name, and marks it used.
func MatchPassport(report string, passports []string, used map[string]bool) string {
	reportBase := strings.ToLower(strings.TrimSuffix(report, filepath.Ext(report)))
	for _, passport := range passports {
		if used[passport] {
			continue
		}
		base := strings.ToLower(strings.TrimSuffix(passport, filepath.Ext(passport)))
		if base != "" && strings.Contains(reportBase, base) {
			used[passport] = true
			return passport
		}
	}
	return ""
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
