// Package batch reviews every report in a project directory, tracking
// per-document status in a ledger so a re-run only retries failures.
package batch

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/alexisbeaulieu97/reportcheck/internal/prompt"
)

//go:embed defaults/criteria.txt
var defaultCriteria []byte

// Default project-relative locations.
const (
	DefaultReportsDir   = "input/reports"
	DefaultPassportsDir = "input/passports"
	DefaultCriteriaFile = "criteria.txt"
	DefaultOutputDir    = "output"
	LedgerFile          = "docs_status.json"
	PromptsDir          = "prompts"
	LogFile             = "reportcheck.log"
)

// Layout resolves the paths of a project directory.
type Layout struct {
	Root      string
	Reports   string
	Passports string
	Criteria  string
	Output    string
	Ledger    string
	Prompts   string
	Log       string
}

// Paths overrides project-relative locations. Empty fields keep defaults.
type Paths struct {
	Reports   string
	Passports string
	Criteria  string
	Output    string
}

// NewLayout resolves p against root.
func NewLayout(root string, p Paths) Layout {
	pick := func(value, fallback string) string {
		if value == "" {
			value = fallback
		}
		if filepath.IsAbs(value) {
			return value
		}
		return filepath.Join(root, value)
	}
	return Layout{
		Root:      root,
		Reports:   pick(p.Reports, DefaultReportsDir),
		Passports: pick(p.Passports, DefaultPassportsDir),
		Criteria:  pick(p.Criteria, DefaultCriteriaFile),
		Output:    pick(p.Output, DefaultOutputDir),
		Ledger:    filepath.Join(root, LedgerFile),
		Prompts:   filepath.Join(root, PromptsDir),
		Log:       filepath.Join(root, LogFile),
	}
}

// PromptDefaults reads the project prompt files, if any.
func (l Layout) PromptDefaults() (map[string]string, error) {
	if _, err := os.Stat(l.Prompts); os.IsNotExist(err) {
		return nil, nil
	}
	return prompt.LoadDir(l.Prompts)
}

// Init creates the project layout, a starter criteria file when none exists
// and the prompt files for the templates in force.
func Init(l Layout, prompts *prompt.Store) error {
	for _, dir := range []string{l.Root, l.Reports, l.Passports, l.Output} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	if _, err := os.Stat(l.Criteria); os.IsNotExist(err) {
		if err := os.WriteFile(l.Criteria, defaultCriteria, 0o644); err != nil {
			return fmt.Errorf("write criteria: %w", err)
		}
	}

	if prompts == nil {
		prompts = prompt.NewStore()
	}
	if err := prompts.WriteDir(l.Prompts); err != nil {
		return fmt.Errorf("write prompts: %w", err)
	}
	return nil
}
