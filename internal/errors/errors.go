package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrInvalidInput - malformed plan, unknown enum value, missing required field
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound - plan, run summary or backup does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict - target already exists or another run holds the plan
	ErrConflict = errors.New("conflict")

	// ErrPermissionDenied - filesystem or policy refused the operation
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNotApproved - plan is not in the approved state
	ErrNotApproved = errors.New("plan not approved")

	// ErrInvalidTransition - status change not allowed by the plan lifecycle
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrValidationFailed - validator reported blocking issues
	ErrValidationFailed = errors.New("validation failed")

	// ErrTimeout - a supervised scope exceeded its deadline
	ErrTimeout = errors.New("timeout")

	// ErrIntegrity - audit hash chain does not verify
	ErrIntegrity = errors.New("integrity check failed")

	// ErrRollbackNotAllowed - run completed successfully or rollback is disabled
	ErrRollbackNotAllowed = errors.New("rollback not allowed")

	// ErrInternal - anything else
	ErrInternal = errors.New("internal error")
)
