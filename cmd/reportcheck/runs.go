package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/reportcheck/internal/workflow"
)

func newRunsCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect persisted run records",
	}
	cmd.AddCommand(newRunsListCmd(root))
	cmd.AddCommand(newRunsShowCmd(root))
	return cmd
}

func newRunsListCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), root, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			summaries, err := a.runs.List(cmd.Context())
			if err != nil {
				return newCommandError("list runs", "reading run store", err, "Check the runs section of the configuration.")
			}
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded. Set runs.backend to file or s3 to keep runs between invocations.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tMODEL\tSTATE\tREACHED\tFAILED STAGE")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					s.ID, s.StartedAt.Local().Format(time.DateTime), s.Model, s.State, s.Reached, dash(s.FailedStage))
			}
			return w.Flush()
		},
	}
}

func newRunsShowCmd(root *rootFlags) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), root, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			record, err := a.runs.Load(cmd.Context(), args[0])
			if err != nil {
				return newCommandError("show run", fmt.Sprintf("loading run %q", args[0]), err, "Run 'reportcheck runs list' to view recorded runs.")
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(record)
			}
			printRecord(cmd, record)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the full record as JSON")
	return cmd
}

func printRecord(cmd *cobra.Command, r *workflow.RunRecord) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:      %s\n", r.ID)
	fmt.Fprintf(out, "Model:    %s\n", r.Model)
	fmt.Fprintf(out, "Started:  %s\n", r.StartedAt.Local().Format(time.DateTime))

	state := "Running"
	if r.Terminal != nil {
		state = string(r.Terminal.State)
	}
	fmt.Fprintf(out, "State:    %s\n", state)
	if r.Failed() {
		fmt.Fprintf(out, "Failed:   %s after reaching %s\n", r.Terminal.FailedStage, r.Terminal.Reached)
		fmt.Fprintf(out, "Error:    %s\n", r.Terminal.Error)
	}

	fmt.Fprintln(out, "\nStages:")
	for _, snap := range r.Snapshots {
		fmt.Fprintf(out, "  %-17s -> %-16s %8s  model calls: %d\n",
			snap.Stage, snap.State, snap.Duration.Round(10*time.Millisecond), snap.ModelCalls)
	}
	fmt.Fprintf(out, "  total %s\n", r.TotalDuration().Round(10*time.Millisecond))

	final := r.Final()
	section := func(title, text string) {
		if strings.TrimSpace(text) == "" {
			return
		}
		fmt.Fprintf(out, "\n## %s\n%s\n", title, strings.TrimSpace(text))
	}
	section("Adapted criteria", final.StructuredCriteriaText())
	section("Check results", final.CheckResultsText())
	section("Feedback", final.FeedbackText())
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
