package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

// MapError folds filesystem and context errors into the vigil taxonomy.
// Errors that already carry a category are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if Category(err) != "Unknown" {
		return err
	}

	// Propagate cancellation as-is
	if errors.Is(err, context.Canceled) {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%v: %w", err, ErrTimeout)
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%v: %w", err, ErrNotFound)
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%v: %w", err, ErrConflict)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%v: %w", err, ErrPermissionDenied)
	default:
		return fmt.Errorf("%v: %w", err, ErrInternal)
	}
}

// Category returns the taxonomy name for an error
func Category(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidInput):
		return "ErrInvalidInput"
	case errors.Is(err, ErrNotFound):
		return "ErrNotFound"
	case errors.Is(err, ErrConflict):
		return "ErrConflict"
	case errors.Is(err, ErrPermissionDenied):
		return "ErrPermissionDenied"
	case errors.Is(err, ErrNotApproved):
		return "ErrNotApproved"
	case errors.Is(err, ErrInvalidTransition):
		return "ErrInvalidTransition"
	case errors.Is(err, ErrValidationFailed):
		return "ErrValidationFailed"
	case errors.Is(err, ErrTimeout):
		return "ErrTimeout"
	case errors.Is(err, ErrIntegrity):
		return "ErrIntegrity"
	case errors.Is(err, ErrRollbackNotAllowed):
		return "ErrRollbackNotAllowed"
	case errors.Is(err, ErrInternal):
		return "ErrInternal"
	default:
		return "Unknown"
	}
}

// ExitCode maps an error to the CLI process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidTransition):
		return 2
	case errors.Is(err, ErrValidationFailed), errors.Is(err, ErrNotApproved):
		return 3
	case errors.Is(err, ErrTimeout):
		return 4
	case errors.Is(err, ErrIntegrity):
		return 5
	default:
		return 1
	}
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w", message, err)
}

// NotFound wraps error as not found
func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

// InvalidInput wraps error as invalid input
func InvalidInput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidInput)
}

// Conflict wraps error as conflict
func Conflict(message string) error {
	return fmt.Errorf("%s: %w", message, ErrConflict)
}

// InvalidTransition wraps error as an invalid lifecycle transition
func InvalidTransition(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidTransition)
}

// Internal wraps error as internal
func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}
