package main

import (
	stdErrors "errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

func newModelsCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List selectable models and whether their credentials are present",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), root, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPROVIDER\tMODEL\tSTATUS")
			for _, name := range a.gateway.Models() {
				spec, _ := a.gateway.Spec(name)
				status := "ready"
				if _, err := a.gateway.Select(name); err != nil {
					var cfgErr *rcerrors.ConfigurationError
					if stdErrors.As(err, &cfgErr) && len(cfgErr.Missing) > 0 {
						status = "missing " + strings.Join(cfgErr.Missing, ", ")
					} else {
						status = err.Error()
					}
				}
				marker := ""
				if name == a.cfg.DefaultModel {
					marker = " (default)"
				}
				fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\n", name, marker, spec.Provider, spec.Model, status)
			}
			return w.Flush()
		},
	}
}
