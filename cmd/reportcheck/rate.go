package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/reportcheck/internal/review"
	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

func newRateCmd(root *rootFlags) *cobra.Command {
	var fb review.UserFeedback

	cmd := &cobra.Command{
		Use:   "rate <run-id>",
		Short: "Record a rating and comment for an exported review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), root, appOptions{})
			if err != nil {
				return err
			}
			defer a.close()

			sink, err := a.sqlSink(cmd.Context())
			if err != nil {
				return newCommandError("rate", "opening the review table", err, "Check the export section of the configuration.")
			}
			if sink == nil {
				return newCommandError("rate", "opening the review table", rcerrors.NewConfigurationError("export", "export.driver"), "Configure export.driver and export.dsn_env.")
			}

			if err := sink.UpdateFeedback(cmd.Context(), args[0], fb); err != nil {
				return newCommandError("rate", fmt.Sprintf("saving feedback for %s", args[0]), err, "Only exported runs can be rated; check the run id.")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved rating %d for %s\n", fb.Rating, args[0])
			return nil
		},
	}
	cmd.Flags().IntVar(&fb.Rating, "rating", 0, "Rating from 1 to 5")
	cmd.Flags().StringVar(&fb.Comment, "comment", "", "Free-text comment")
	cmd.MarkFlagRequired("rating") //nolint:errcheck
	return cmd
}
