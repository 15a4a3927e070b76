package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alexisbeaulieu97/reportcheck/internal/events"
	"github.com/alexisbeaulieu97/reportcheck/internal/export"
	"github.com/alexisbeaulieu97/reportcheck/internal/extract"
	"github.com/alexisbeaulieu97/reportcheck/internal/review"
	"github.com/alexisbeaulieu97/reportcheck/internal/tui"
)

type checkOptions struct {
	Report           string
	Passport         string
	Criteria         string
	RevisionCriteria string
	Model            string
	SkipFeedback     bool
	JSON             bool
	NoTUI            bool
	Export           bool
	Output           string
}

var checkCmdRunner = runCheck

func newCheckCmd(root *rootFlags) *cobra.Command {
	opts := checkOptions{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Review one report",
		Long:  "Review one report against the evaluation criteria, optionally adapted to a project passport.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateCheckOptions(opts); err != nil {
				return err
			}
			return checkCmdRunner(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Report, "report", "r", "", "Report file (.txt, .md, .pdf, .docx)")
	cmd.Flags().StringVarP(&opts.Criteria, "criteria", "k", "", "Evaluation criteria file")
	cmd.Flags().StringVarP(&opts.Passport, "passport", "p", "", "Project passport file")
	cmd.Flags().StringVar(&opts.RevisionCriteria, "revise", "", "Previously adapted criteria to revise instead of starting over")
	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "Model name (see 'reportcheck models')")
	cmd.Flags().BoolVar(&opts.SkipFeedback, "skip-feedback", false, "Only check the report, do not compose feedback")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "Print the results document as JSON")
	cmd.Flags().BoolVar(&opts.NoTUI, "no-tui", false, "Disable the interactive progress view")
	cmd.Flags().BoolVar(&opts.Export, "export", false, "Export the results to the configured SQL table and object store")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "Also write the results document to this file")
	cmd.MarkFlagRequired("report")   //nolint:errcheck
	cmd.MarkFlagRequired("criteria") //nolint:errcheck

	return cmd
}

func validateCheckOptions(opts checkOptions) error {
	files := []struct {
		flag, path string
		required   bool
	}{
		{"report", opts.Report, true},
		{"criteria", opts.Criteria, true},
		{"passport", opts.Passport, false},
		{"revise", opts.RevisionCriteria, false},
	}
	for _, f := range files {
		if strings.TrimSpace(f.path) == "" {
			if f.required {
				return fmt.Errorf("--%s is required", f.flag)
			}
			continue
		}
		info, err := os.Stat(f.path)
		if err != nil {
			return fmt.Errorf("--%s: file does not exist: %w", f.flag, err)
		}
		if info.IsDir() {
			return fmt.Errorf("--%s: %s is a directory", f.flag, f.path)
		}
		if !extract.Supported(f.path) {
			return fmt.Errorf("--%s: unsupported file format %q (allowed: %s)", f.flag, filepath.Ext(f.path), strings.Join(extract.Extensions(), ", "))
		}
	}
	return nil
}

func runCheck(cmd *cobra.Command, root *rootFlags, opts checkOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	interactive := !opts.JSON && !opts.NoTUI && isTerminal(cmd.OutOrStdout())
	a, err := newApp(ctx, root, appOptions{silent: interactive})
	if err != nil {
		return err
	}
	defer a.close()

	req, err := buildRequest(a, opts)
	if err != nil {
		return err
	}

	svc := a.service()
	if err := svc.CheckModel(req.Model); err != nil {
		return reviewError(err)
	}

	var result *review.Result
	if interactive {
		result, err = reviewWithTUI(ctx, a, svc, req, cmd.OutOrStdout())
	} else {
		result, err = svc.Review(ctx, req)
	}
	if err != nil {
		if result != nil && result.Record != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Run %s stopped. Inspect it with 'reportcheck runs show %s'.\n", result.Record.ID, result.Record.ID)
		}
		return reviewError(err)
	}

	if opts.Output != "" {
		if err := writeJSONFile(opts.Output, result.Document); err != nil {
			return newCommandError("check", "writing results document", err, "Check that the output path is writable.")
		}
	}

	if opts.Export {
		_ = export.Fanout{Sinks: a.sinks(ctx), Log: a.log}.Publish(ctx, export.Item{Name: filepath.Base(opts.Report), Result: result})
	}

	if opts.JSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result.Document)
	}
	printResult(cmd.OutOrStdout(), result)
	return nil
}

func buildRequest(a *app, opts checkOptions) (review.Request, error) {
	ex := extract.New(a.log)
	req := review.Request{Model: opts.Model, SkipFeedback: opts.SkipFeedback}

	read := func(flag, path string, required bool) (string, error) {
		if path == "" {
			return "", nil
		}
		text, err := ex.Extract(path)
		if err != nil {
			return "", newCommandError("check", fmt.Sprintf("reading --%s %s", flag, path), err, "Make sure the file is a readable .txt, .md, .pdf or .docx document.")
		}
		if required && strings.TrimSpace(text) == "" {
			return "", newCommandError("check", fmt.Sprintf("reading --%s %s", flag, path), fmt.Errorf("no text could be extracted"), "Provide a document that contains text.")
		}
		req.Names = append(req.Names, filepath.Base(path))
		return text, nil
	}

	var err error
	if req.Report, err = read("report", opts.Report, true); err != nil {
		return req, err
	}
	if req.Passport, err = read("passport", opts.Passport, false); err != nil {
		return req, err
	}
	if req.Criteria, err = read("criteria", opts.Criteria, true); err != nil {
		return req, err
	}
	if req.RevisionCriteria, err = read("revise", opts.RevisionCriteria, false); err != nil {
		return req, err
	}
	return req, nil
}

func reviewWithTUI(ctx context.Context, a *app, svc *review.Service, req review.Request, out io.Writer) (*review.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := tui.NewModel(filepath.Base(firstName(req.Names)), modelLabel(a, req.Model), req.SkipFeedback, cancel)
	program := tea.NewProgram(model, tea.WithOutput(out))

	sub := a.publisher.Subscribe(events.All, tui.Forward(program.Send))
	defer sub.Unsubscribe()

	go func() {
		result, err := svc.Review(ctx, req)
		program.Send(tui.DoneMsg{Result: result, Err: err})
	}()

	final, err := program.Run()
	if err != nil && final == nil {
		return nil, err
	}
	m, ok := final.(tui.Model)
	if !ok {
		return nil, fmt.Errorf("unexpected tui model %T", final)
	}
	if !m.IsFinished() {
		return nil, context.Canceled
	}
	return m.Result()
}

func printResult(w io.Writer, result *review.Result) {
	state := result.State
	fmt.Fprintf(w, "Run %s (%s)\n\n", result.Record.ID, result.Record.Model)
	fmt.Fprintln(w, "## Check results")
	fmt.Fprintln(w, strings.TrimSpace(state.CheckResultsText()))
	if state.HasFeedback() {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "## Feedback")
		fmt.Fprintln(w, strings.TrimSpace(state.FeedbackText()))
	}
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func modelLabel(a *app, name string) string {
	if strings.TrimSpace(name) == "" {
		return a.cfg.DefaultModel
	}
	return name
}

func firstName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
