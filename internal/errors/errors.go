// Package errors defines the typed error taxonomy shared across the
// pipeline: filesystem failures, schema violations, API misuse, and
// dependency-wait timeouts. Errors from the external execution capability
// are deliberately not wrapped here; they propagate to callers unchanged.
package errors

import (
	"errors"
	"fmt"
	"runtime/debug"
	"time"
)

// FilesystemError reports a failed filesystem operation with enough context
// to retry or surface it: the path, the operation (read, write, rename,
// mkdir, ...), and the underlying OS error.
type FilesystemError struct {
	Path string
	Op   string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("filesystem %s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error {
	return e.Err
}

// NewFilesystemError wraps err with path and operation context.
func NewFilesystemError(op, path string, err error) *FilesystemError {
	return &FilesystemError{Path: path, Op: op, Err: err}
}

// ValidationError reports a schema violation detected before a write.
type ValidationError struct {
	Field  string // offending field or item id
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// StateError reports API misuse, such as querying a store before
// initialization or binding an orchestrator to an empty store.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("invalid state: %s", e.Reason)
}

// NewStateError creates a StateError with the given reason.
func NewStateError(reason string) *StateError {
	return &StateError{Reason: reason}
}

// TimeoutError reports that a dependency wait gave up. It names the subtask
// that was waiting and the configured timeout.
type TimeoutError struct {
	SubtaskID string
	Timeout   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out after %s waiting for dependencies of %s", e.Timeout, e.SubtaskID)
}

// NewTimeoutError creates a TimeoutError for the given subtask.
func NewTimeoutError(subtaskID string, timeout time.Duration) *TimeoutError {
	return &TimeoutError{SubtaskID: subtaskID, Timeout: timeout}
}

// PanicError captures a panic from the external execution capability so the
// orchestrator can mark the item failed instead of crashing the process.
type PanicError struct {
	Value      any
	StackTrace string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Recover runs fn and converts a panic into a *PanicError.
func Recover(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, StackTrace: string(debug.Stack())}
		}
	}()
	return fn()
}

// MultiError collects errors from multi-step teardown paths where each step
// should run even if an earlier one failed.
type MultiError struct {
	Errors []error
}

// Append adds a non-nil error to the collection.
func (m *MultiError) Append(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// ErrorOrNil returns nil when no errors were collected, the single error
// when there is exactly one, and a joined error otherwise.
func (m *MultiError) ErrorOrNil() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return errors.Join(m.Errors...)
	}
}
