package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"missing file", fmt.Errorf("open x: %w", fs.ErrNotExist), ErrNotFound},
		{"existing file", fmt.Errorf("mkdir x: %w", fs.ErrExist), ErrConflict},
		{"permission", fmt.Errorf("write x: %w", fs.ErrPermission), ErrPermissionDenied},
		{"deadline", context.DeadlineExceeded, ErrTimeout},
		{"categorized", NotFound("plan abc"), ErrNotFound},
		{"other", errors.New("boom"), ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, MapError(tt.in), tt.want)
		})
	}

	assert.Nil(t, MapError(nil))
	assert.Equal(t, context.Canceled, MapError(context.Canceled))
}

func TestCategoryAndExitCode(t *testing.T) {
	assert.Equal(t, "", Category(nil))
	assert.Equal(t, "ErrValidationFailed", Category(fmt.Errorf("plan x: %w", ErrValidationFailed)))
	assert.Equal(t, "Unknown", Category(errors.New("plain")))

	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(InvalidInput("bad tier")))
	assert.Equal(t, 3, ExitCode(fmt.Errorf("run: %w", ErrNotApproved)))
	assert.Equal(t, 4, ExitCode(fmt.Errorf("plan: %w", ErrTimeout)))
	assert.Equal(t, 5, ExitCode(fmt.Errorf("audit: %w", ErrIntegrity)))
	assert.Equal(t, 1, ExitCode(errors.New("plain")))
}
