package config

import (
	stdErrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// Parse loads a configuration file from disk, applies defaults, validates it
// and returns the resulting model.
func Parse(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, rcerrors.NewParseError(path, 0, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, rcerrors.NewParseError(path, extractLine(err), err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if cfg.Prompts.Dir != "" && !filepath.IsAbs(cfg.Prompts.Dir) {
		cfg.Prompts.Dir = filepath.Join(filepath.Dir(path), cfg.Prompts.Dir)
	}

	return &cfg, nil
}

// Load parses path, or DefaultFile when path is empty. A missing DefaultFile
// yields the built-in configuration; a missing explicit path is an error.
func Load(path string) (*Config, error) {
	if path != "" {
		return Parse(path)
	}

	if _, err := os.Stat(DefaultFile); err != nil {
		if stdErrors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, rcerrors.NewParseError(DefaultFile, 0, err)
	}
	return Parse(DefaultFile)
}

// LoadDotEnv reads KEY=VALUE pairs from the given files into the process
// environment, overriding existing values. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	var present []string
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			present = append(present, file)
		}
	}
	if len(present) == 0 {
		return nil
	}

	if err := godotenv.Overload(present...); err != nil {
		return rcerrors.NewParseError(present[0], 0, fmt.Errorf("load environment: %w", err))
	}
	return nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	if _, scanErr := fmt.Sscanf(matches[1], "%d", &line); scanErr != nil {
		return 0
	}
	return line
}
