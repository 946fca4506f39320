package errors

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed request parameters. Task and stage state
// is unchanged when this error is returned.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing task, stage, executor, or review record.
type NotFoundError struct {
	Kind string
	ID   string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// NewNotFoundError creates a NotFoundError for the given entity kind and id.
func NewNotFoundError(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// ExternalToolError wraps a non-zero scanner exit or timeout. Raw stderr is
// carried for diagnostics; the owning stage is marked FAILED by the caller.
type ExternalToolError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

// Error implements the error interface for ExternalToolError.
func (e *ExternalToolError) Error() string {
	return fmt.Sprintf("tool %q failed with exit code %d: %v", e.Tool, e.ExitCode, e.Err)
}

// Unwrap exposes the underlying execution error.
func (e *ExternalToolError) Unwrap() error { return e.Err }

// NewExternalToolError creates an ExternalToolError carrying the captured stderr.
func NewExternalToolError(tool string, exitCode int, stderr string, err error) error {
	return &ExternalToolError{Tool: tool, ExitCode: exitCode, Stderr: stderr, Err: err}
}

// DispatchError reports an unreachable executor or a frame-size violation
// during task dispatch. The assignment persists and is retryable.
type DispatchError struct {
	ExecutorID string
	Err        error
}

// Error implements the error interface for DispatchError.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to executor %q failed: %v", e.ExecutorID, e.Err)
}

// Unwrap exposes the underlying transport error.
func (e *DispatchError) Unwrap() error { return e.Err }

// NewDispatchError creates a DispatchError for the given executor.
func NewDispatchError(executorID string, err error) error {
	return &DispatchError{ExecutorID: executorID, Err: err}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
