package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/reportcheck/internal/batch"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <project-dir>",
		Short: "Show the per-report status recorded by batch runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout := batch.NewLayout(absPath(args[0]), batch.Paths{})
			ledger, err := batch.OpenLedger(layout.Ledger)
			if err != nil {
				return newCommandError("status", fmt.Sprintf("reading %s", layout.Ledger), err, "Fix or delete the file; reports will be reviewed again.")
			}

			names := ledger.Names()
			if len(names) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No reports processed yet in %s\n", layout.Root)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "REPORT\tSTATUS\tPROCESSED\tERROR")
			for _, name := range names {
				entry, _ := ledger.Get(name)
				message := ""
				if entry.ErrorMessage != nil {
					message = *entry.ErrorMessage
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, entry.Status, entry.ProcessedAt, dash(message))
			}
			return w.Flush()
		},
	}
}
