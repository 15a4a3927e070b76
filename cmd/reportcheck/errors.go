package main

import (
	stdErrors "errors"
	"fmt"

	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

func newCommandError(operation, context string, cause error, suggestion string) error {
	return &commandError{operation: operation, context: context, cause: cause, suggestion: suggestion}
}

type commandError struct {
	operation  string
	context    string
	cause      error
	suggestion string
}

func (e *commandError) Error() string {
	return fmt.Sprintf("Failed to %s: %s\n\nError: %v\n\nSuggestion: %s", e.operation, e.context, e.cause, e.suggestion)
}

func (e *commandError) Unwrap() error {
	return e.cause
}

// reviewError turns a failed review into the message shown to users. The
// technical cause goes to the log only.
func reviewError(err error) error {
	if err == nil {
		return nil
	}
	var cmdErr *commandError
	if stdErrors.As(err, &cmdErr) {
		return err
	}
	return &userError{message: rcerrors.UserMessage(err), cause: err}
}

type userError struct {
	message string
	cause   error
}

func (e *userError) Error() string { return e.message }

func (e *userError) Unwrap() error { return e.cause }
