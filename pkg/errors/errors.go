package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"
)

// ParseError represents a configuration parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError reports malformed input to the engine or the gateway.
// It is never retried.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ConfigurationError reports a selected model whose credentials are absent.
type ConfigurationError struct {
	Model   string
	Missing []string
	Message string
}

// NewConfigurationError constructs a ConfigurationError listing the missing settings.
func NewConfigurationError(model string, missing ...string) error {
	return &ConfigurationError{Model: model, Missing: missing}
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return fmt.Sprintf("configuration error [%s]: %s", e.Model, e.Message)
	}
	if len(e.Missing) > 0 {
		return fmt.Sprintf("configuration error [%s]: missing %s", e.Model, strings.Join(e.Missing, ", "))
	}
	return fmt.Sprintf("configuration error [%s]", e.Model)
}

// ProviderError is a transient failure calling a model backend.
type ProviderError struct {
	Provider   string
	Model      string
	StatusCode int
	Err        error
}

// NewProviderError constructs a ProviderError.
func NewProviderError(provider, model string, statusCode int, err error) error {
	return &ProviderError{Provider: provider, Model: model, StatusCode: statusCode, Err: err}
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider error [%s/%s]: status %d: %v", e.Provider, e.Model, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider error [%s/%s]: %v", e.Provider, e.Model, e.Err)
}

// Unwrap exposes the underlying error.
func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StageExecutionError is the terminal failure of a workflow stage.
type StageExecutionError struct {
	Stage    string
	Attempts int
	Err      error
}

// NewStageExecutionError constructs a StageExecutionError.
func NewStageExecutionError(stage string, attempts int, err error) error {
	return &StageExecutionError{Stage: stage, Attempts: attempts, Err: err}
}

func (e *StageExecutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Attempts > 1 {
		return fmt.Sprintf("stage %s failed after %d attempts: %v", e.Stage, e.Attempts, e.Err)
	}
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

// Unwrap exposes the root error.
func (e *StageExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NotFoundError indicates a lookup by identifier failed.
type NotFoundError struct {
	Kind string
	ID   string
}

// NewNotFoundError constructs a NotFoundError.
func NewNotFoundError(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var providerErr *ProviderError
	return stdErrors.As(err, &providerErr)
}

// StageOf returns the failing stage recorded in err, if any.
func StageOf(err error) (string, bool) {
	var stageErr *StageExecutionError
	if stdErrors.As(err, &stageErr) {
		return stageErr.Stage, true
	}
	return "", false
}

const genericFailure = "The review could not be completed. Try again or choose another model."

// UserMessage renders err for non-technical readers. Provider internals are
// never included; the failing stage is, when known.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var cfgErr *ConfigurationError
	if stdErrors.As(err, &cfgErr) {
		return fmt.Sprintf("Model %q is not configured. Choose another model.", cfgErr.Model)
	}

	var validationErr *ValidationError
	if stdErrors.As(err, &validationErr) && !IsTransient(err) {
		if _, ok := StageOf(err); !ok {
			return fmt.Sprintf("Invalid input: %s", validationErr.Message)
		}
	}

	if stage, ok := StageOf(err); ok {
		return fmt.Sprintf("%s (stage: %s)", genericFailure, stage)
	}
	return genericFailure
}
