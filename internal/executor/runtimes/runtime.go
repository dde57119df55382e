// Package runtimes runs the external processes behind run_command actions.
package runtimes

import (
	"context"
	"time"
)

// Result is what a finished process left behind. A nonzero exit code is a
// result, not an error.
type Result struct {
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out"`
	// Truncated is set when output exceeded the capture limit.
	Truncated bool `json:"truncated,omitempty"`
}

type RunOptions struct {
	Dir     string
	Env     []string
	Timeout time.Duration
}

// Runner executes a command line. Implementations must kill the whole process
// tree when ctx is done or the timeout elapses.
type Runner interface {
	Run(ctx context.Context, command string, opts RunOptions) (*Result, error)
}
