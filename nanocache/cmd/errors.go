package main

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/arthur-debert/nanocache/types"
)

// CLIError represents a user-friendly CLI error with context and suggestions
type CLIError struct {
	Operation   string
	Cause       string
	Details     map[string]interface{}
	Suggestions []string
	Underlying  error
}

// Error implements the error interface
func (e *CLIError) Error() string {
	var parts []string

	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("failed to %s", e.Operation))
	}
	if e.Cause != "" {
		parts = append(parts, e.Cause)
	}
	msg := strings.Join(parts, ": ")

	if len(e.Details) > 0 {
		var details []string
		for _, key := range sortedKeys(e.Details) {
			details = append(details, fmt.Sprintf("%s=%v", key, e.Details[key]))
		}
		msg += fmt.Sprintf(" (%s)", strings.Join(details, ", "))
	}

	if len(e.Suggestions) > 0 {
		msg += "\n\nSuggestions:"
		for _, s := range e.Suggestions {
			msg += "\n  - " + s
		}
	}
	return msg
}

// Unwrap returns the underlying error for error chain compatibility
func (e *CLIError) Unwrap() error {
	return e.Underlying
}

// NewValidationError creates an error for invalid input
func NewValidationError(operation, field string, value interface{}, reason string) *CLIError {
	return &CLIError{
		Operation: operation,
		Cause:     fmt.Sprintf("invalid %s", field),
		Details: map[string]interface{}{
			"value":  value,
			"reason": reason,
		},
		Suggestions: []string{
			fmt.Sprintf("Check the value of %s", field),
			"Run with --help to see accepted values",
		},
	}
}

// NewNotFoundError creates an error for records the source does not have
func NewNotFoundError(operation string, ids []string, underlying error) *CLIError {
	return &CLIError{
		Operation:  operation,
		Cause:      fmt.Sprintf("%d record(s) could not be loaded", len(ids)),
		Details:    map[string]interface{}{"ids": strings.Join(ids, ",")},
		Underlying: underlying,
		Suggestions: []string{
			"Check that the ids exist in the source file",
			"Check --id-field if records use another id field",
		},
	}
}

// NewConfigError creates an error for configuration problems
func NewConfigError(setting string, underlying error) *CLIError {
	return &CLIError{
		Operation:  "load configuration",
		Cause:      fmt.Sprintf("invalid setting %s", setting),
		Underlying: underlying,
		Details:    map[string]interface{}{"error": underlying},
		Suggestions: []string{
			"Check nanocache.yaml and NANOCACHE_* environment variables",
			"Use --config to point at a specific file",
		},
	}
}

// NewStorageError creates an error for persistence backend failures
func NewStorageError(operation string, underlying error) *CLIError {
	cause := "storage operation failed"
	switch {
	case errors.Is(underlying, types.ErrInvalidArgument):
		cause = "storage is misconfigured"
	case strings.Contains(strings.ToLower(underlying.Error()), "permission denied"):
		cause = "permission denied"
	case strings.Contains(underlying.Error(), "lock"):
		cause = "storage is locked by another process"
	}

	return &CLIError{
		Operation:  operation,
		Cause:      cause,
		Underlying: underlying,
		Details:    map[string]interface{}{"error": underlying.Error()},
		Suggestions: []string{
			"Check --storage-backend and --storage-path",
			"Ensure the storage path is writable",
		},
	}
}

// WrapError wraps a generic error with CLI context
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return err
	}

	return &CLIError{
		Operation:  operation,
		Cause:      err.Error(),
		Underlying: err,
	}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
