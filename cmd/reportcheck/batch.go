package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/reportcheck/internal/batch"
	"github.com/alexisbeaulieu97/reportcheck/internal/extract"
)

type batchOptions struct {
	Project      string
	Criteria     string
	Model        string
	SkipFeedback bool
	Parallel     int
	Export       bool
	Notify       bool
}

func newBatchCmd(root *rootFlags) *cobra.Command {
	opts := batchOptions{}

	cmd := &cobra.Command{
		Use:   "batch <project-dir>",
		Short: "Review every report of a project directory",
		Long: `Review every report in <project-dir>/input/reports, matching passports from
<project-dir>/input/passports by file name. Results go to <project-dir>/output and
per-report status to <project-dir>/docs_status.json; reports that already succeeded
are skipped on the next run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Project = args[0]
			if opts.Parallel < 1 {
				return fmt.Errorf("--parallel must be at least 1")
			}
			info, err := os.Stat(opts.Project)
			if err != nil || !info.IsDir() {
				return newCommandError("batch", fmt.Sprintf("opening project %s", opts.Project), fmt.Errorf("not a directory"), "Create it with 'reportcheck init <project-dir>'.")
			}
			return runBatch(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Criteria, "criteria", "k", "", "Criteria file, relative to the project (default criteria.txt)")
	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "Model name (see 'reportcheck models')")
	cmd.Flags().BoolVar(&opts.SkipFeedback, "skip-feedback", false, "Only check reports, do not compose feedback")
	cmd.Flags().IntVarP(&opts.Parallel, "parallel", "j", 1, "Number of reports reviewed concurrently")
	cmd.Flags().BoolVar(&opts.Export, "export", false, "Export each result to the configured SQL table and object store")
	cmd.Flags().BoolVar(&opts.Notify, "notify", true, "Post a summary to Discord when configured")

	return cmd
}

func runBatch(cmd *cobra.Command, root *rootFlags, opts batchOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	layout := batch.NewLayout(absPath(opts.Project), batch.Paths{Criteria: opts.Criteria})
	defaults, err := layout.PromptDefaults()
	if err != nil {
		return newCommandError("batch", "loading project prompts", err, fmt.Sprintf("Fix or remove the files in %s.", layout.Prompts))
	}

	a, err := newApp(ctx, root, appOptions{promptDefaults: defaults, logFile: layout.Log})
	if err != nil {
		return err
	}
	defer a.close()

	svc := a.service()
	if err := svc.CheckModel(opts.Model); err != nil {
		return reviewError(err)
	}

	runOpts := batch.Options{
		Model:        opts.Model,
		SkipFeedback: opts.SkipFeedback,
		Parallel:     opts.Parallel,
		Log:          a.log,
		OnOutcome:    outcomePrinter(cmd.OutOrStdout()),
	}
	if opts.Export {
		runOpts.Sinks = a.sinks(ctx)
	}

	summary, runErr := batch.NewRunner(layout, svc, extract.New(a.log), runOpts).Run(ctx)
	printSummary(cmd.OutOrStdout(), summary)

	if opts.Notify && summary.Total > 0 {
		notifier, err := a.notifier()
		if err != nil {
			a.log.Error(err, "batch notification disabled")
		} else if err := notifier.NotifyBatch(ctx, layout.Root, summary); err != nil {
			a.log.Error(err, "batch notification failed")
		}
	}

	if runErr != nil {
		return newCommandError("batch", "reviewing reports", runErr, fmt.Sprintf("See %s for details.", layout.Log))
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d reports failed; run the batch again to retry them", summary.Failed, summary.Total)
	}
	return nil
}

func outcomePrinter(w io.Writer) func(batch.Outcome) {
	ok := color.New(color.FgGreen).SprintFunc()
	failed := color.New(color.FgRed, color.Bold).SprintFunc()
	skipped := color.New(color.FgHiBlack).SprintFunc()

	return func(o batch.Outcome) {
		switch o.Status {
		case batch.OutcomeSuccess:
			fmt.Fprintf(w, "%s %s (%s)\n", ok("✓"), o.Report, o.Duration.Round(100*time.Millisecond))
		case batch.OutcomeError:
			fmt.Fprintf(w, "%s %s: %s\n", failed("✗"), o.Report, userMessage(o.Err))
		case batch.OutcomeSkipped:
			fmt.Fprintf(w, "%s %s already reviewed\n", skipped("⊘"), o.Report)
		}
	}
}

func printSummary(w io.Writer, s batch.Summary) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(w, "\n%s %d processed, %d succeeded, %d failed, %d skipped\n",
		bold("Batch:"), s.Total, s.Succeeded, s.Failed, s.Skipped)
}

func userMessage(err error) string {
	if err == nil {
		return ""
	}
	return reviewError(err).Error()
}
