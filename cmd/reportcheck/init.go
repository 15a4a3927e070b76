package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/reportcheck/internal/batch"
)

func newInitCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init <project-dir>",
		Short: "Create a project directory for batch reviews",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout := batch.NewLayout(absPath(args[0]), batch.Paths{})

			// Project prompts start from whatever templates are in force.
			prompts, err := loadPromptsOnly(root)
			if err != nil {
				return err
			}
			if err := batch.Init(layout, prompts); err != nil {
				return newCommandError("init", fmt.Sprintf("creating project %s", layout.Root), err, "Check that the parent directory is writable.")
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Project created in %s\n", layout.Root)
			fmt.Fprintf(out, "  reports:   %s\n", layout.Reports)
			fmt.Fprintf(out, "  passports: %s\n", layout.Passports)
			fmt.Fprintf(out, "  criteria:  %s\n", layout.Criteria)
			fmt.Fprintf(out, "  prompts:   %s\n", layout.Prompts)
			fmt.Fprintf(out, "\nAdd reports, edit the criteria, then run 'reportcheck batch %s'.\n", args[0])
			return nil
		},
	}
}
