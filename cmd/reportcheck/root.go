package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	configPath string
	envFiles   []string
	verbose    bool
	logJSON    bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "reportcheck",
		Short:         "reportcheck reviews project reports against evaluation criteria with an LLM",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to configuration file (default ./reportcheck.yaml when present)")
	cmd.PersistentFlags().StringSliceVar(&flags.envFiles, "env-file", nil, "Environment files to load (default .env)")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().BoolVar(&flags.logJSON, "log-json", false, "Write logs as JSON")

	cmd.AddCommand(newCheckCmd(flags))
	cmd.AddCommand(newBatchCmd(flags))
	cmd.AddCommand(newInitCmd(flags))
	cmd.AddCommand(newPromptsCmd(flags))
	cmd.AddCommand(newModelsCmd(flags))
	cmd.AddCommand(newRunsCmd(flags))
	cmd.AddCommand(newRateCmd(flags))
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}
