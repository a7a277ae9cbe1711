package apperrors

import (
	"context"
	"errors"
	"fmt"
)

// Application exit codes define the standard exit statuses for the application.
// These codes are used to signal the outcome of the program execution to the OS.
const (
	ExitSuccess       = 0   // Indicates successful execution.
	ExitErrorGeneric  = 1   // Indicates a generic error.
	ExitErrorStorage  = 3   // Indicates the snapshot database could not be opened.
	ExitErrorConfig   = 4   // Indicates a configuration error.
	ExitErrorCanceled = 130 // Indicates the run was canceled (e.g., SIGINT).
)

// ErrNotFound reports that a process vanished, became a zombie, or could not
// be read because access was denied. Samplers wrap it in a SampleError.
var ErrNotFound = errors.New("process not found")

// ErrUnsupported reports that an operation has no mapping on this platform.
var ErrUnsupported = errors.New("unsupported on this platform")

// ConfigError represents a user configuration error, such as invalid flags or
// values. It indicates that the application cannot proceed due to incorrect user input.
type ConfigError struct {
	// Message explains the specific configuration error.
	Message string
}

// Error returns the error message for a ConfigError.
func (e ConfigError) Error() string { return e.Message }

// NewConfigError creates a new ConfigError with a formatted message.
func NewConfigError(format string, a ...any) error {
	return ConfigError{Message: fmt.Sprintf(format, a...)}
}

// SampleError is a transient sampling failure for a single process. The
// polling loop skips the process for the current cycle and carries on.
type SampleError struct {
	// PID is the process that could not be sampled.
	PID int32
	// Cause is the underlying error, usually wrapping ErrNotFound.
	Cause error
}

// Error returns a message naming the process and the cause.
func (e SampleError) Error() string {
	return fmt.Sprintf("sample pid %d: %v", e.PID, e.Cause)
}

// Unwrap returns the original cause.
func (e SampleError) Unwrap() error { return e.Cause }

// StorageError wraps a failed snapshot database operation. It is logged and
// counted by callers, never propagated as fatal.
type StorageError struct {
	// Op names the storage operation (e.g. "insert processes").
	Op string
	// Cause is the driver error.
	Cause error
}

// Error returns a message naming the operation and the cause.
func (e StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Cause)
}

// Unwrap returns the original cause.
func (e StorageError) Unwrap() error { return e.Cause }

// OperationDeniedError records that the OS rejected a process control action,
// or that the action has no meaning on this platform. Control methods report
// it as a boolean failure and log the error itself.
type OperationDeniedError struct {
	// Op is the action that was attempted ("terminate", "set-priority").
	Op string
	// PID is the target process.
	PID int32
	// Cause is the underlying OS error.
	Cause error
}

// Error returns a formatted message describing the denied operation.
func (e OperationDeniedError) Error() string {
	return fmt.Sprintf("%s pid %d denied: %v", e.Op, e.PID, e.Cause)
}

// Unwrap returns the original cause.
func (e OperationDeniedError) Unwrap() error { return e.Cause }

// WrapError wraps an error with additional context using fmt.Errorf and %w.
// This allows the wrapped error to be unwrapped with errors.Unwrap() and
// checked with errors.Is() and errors.As().
//
// Parameters:
//   - err: The error to wrap.
//   - format: A format string for the context message.
//   - args: Arguments for the format string.
//
// Returns:
//   - error: The wrapped error, or nil if err is nil.
func WrapError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// IsContextError checks if the error is a context cancellation or deadline exceeded error.
func IsContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsTransient reports whether err is a per-process sampling failure that the
// caller should skip silently.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var se SampleError
	return errors.As(err, &se) || errors.Is(err, ErrNotFound)
}
