package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/reportcheck/internal/config"
	"github.com/alexisbeaulieu97/reportcheck/internal/prompt"
	"github.com/alexisbeaulieu97/reportcheck/internal/template"
	"github.com/alexisbeaulieu97/reportcheck/pkg/diff"
)

// loadPromptsOnly reads configuration and builds the prompt store without
// opening any other service.
func loadPromptsOnly(root *rootFlags) (*prompt.Store, error) {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return nil, newCommandError("load prompts", "loading configuration", err, "Fix the configuration file or pass --config.")
	}
	store, err := loadPrompts(cfg.Prompts, nil)
	if err != nil {
		return nil, newCommandError("load prompts", "reading prompt templates", err, "Check the prompts section of the configuration.")
	}
	return store, nil
}

func newPromptsCmd(root *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Inspect and edit stage prompt templates",
	}
	cmd.AddCommand(newPromptsShowCmd(root))
	cmd.AddCommand(newPromptsSetCmd())
	cmd.AddCommand(newPromptsResetCmd())
	cmd.AddCommand(newPromptsDiffCmd(root))
	return cmd
}

func newPromptsDiffCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "diff [stage]",
		Short: "Show how the templates in force differ from the built-in ones",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadPromptsOnly(root)
			if err != nil {
				return err
			}
			ids := prompt.IDs()
			if len(args) == 1 {
				ids = []string{args[0]}
			}

			builtin := prompt.Builtin()
			out := cmd.OutOrStdout()
			for _, id := range ids {
				current, err := store.Get(id)
				if err != nil {
					return err
				}
				d := diff.Lines(builtin[id], current, id+" (built-in)", id+" (in force)")
				if d == "" {
					fmt.Fprintf(out, "%s: unchanged\n", id)
					continue
				}
				stats := diff.Count(builtin[id], current)
				fmt.Fprintf(out, "%s: +%d -%d lines\n%s", id, stats.Added, stats.Removed, d)
			}
			return nil
		},
	}
}

func newPromptsShowCmd(root *rootFlags) *cobra.Command {
	var builtin bool

	cmd := &cobra.Command{
		Use:   "show [stage]",
		Short: "Print the templates in force",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadPromptsOnly(root)
			if err != nil {
				return err
			}
			if builtin {
				store = prompt.NewStore()
			}

			ids := prompt.IDs()
			if len(args) == 1 {
				ids = []string{args[0]}
			}

			out := cmd.OutOrStdout()
			for i, id := range ids {
				text, err := store.Get(id)
				if err != nil {
					return err
				}
				if i > 0 {
					fmt.Fprintln(out)
				}
				status := "built-in"
				if !builtin && differsFromBuiltin(id, text) {
					status = "customised"
				}
				fmt.Fprintf(out, "=== %s (%s; placeholders: %s)\n", id, status, strings.Join(template.Placeholders(text), ", "))
				fmt.Fprintln(out, strings.TrimRight(text, "\n"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&builtin, "builtin", false, "Show the built-in defaults instead")
	return cmd
}

func newPromptsSetCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "set <stage> <file>",
		Short: "Replace a stage template in a prompts directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, source := args[0], args[1]
			data, err := os.ReadFile(source)
			if err != nil {
				return newCommandError("set prompt", fmt.Sprintf("reading %s", source), err, "Pass the path of a UTF-8 text file.")
			}

			// Validate through the store so unknown stages and empty
			// templates are rejected before anything is written.
			store := prompt.NewStore()
			if err := store.Set(id, string(data)); err != nil {
				return err
			}

			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
			target := filepath.Join(dir, id+".txt")
			if err := os.WriteFile(target, data, 0o644); err != nil {
				return newCommandError("set prompt", fmt.Sprintf("writing %s", target), err, "Check that the prompts directory is writable.")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s template to %s\n", id, target)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "prompts", "Prompts directory (a project's prompts/ or config prompts.dir)")
	return cmd
}

func newPromptsResetCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "reset [stage]",
		Short: "Restore built-in templates in a prompts directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := prompt.IDs()
			if len(args) == 1 {
				if _, err := prompt.NewStore().Default(args[0]); err != nil {
					return err
				}
				ids = []string{args[0]}
			}

			builtin := prompt.Builtin()
			for _, id := range ids {
				target := filepath.Join(dir, id+".txt")
				if _, err := os.Stat(target); os.IsNotExist(err) {
					continue
				}
				if err := os.WriteFile(target, []byte(builtin[id]), 0o644); err != nil {
					return newCommandError("reset prompt", fmt.Sprintf("writing %s", target), err, "Check that the prompts directory is writable.")
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Restored %s\n", target)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "prompts", "Prompts directory (a project's prompts/ or config prompts.dir)")
	return cmd
}

func differsFromBuiltin(id, text string) bool {
	return prompt.Builtin()[id] != text
}
