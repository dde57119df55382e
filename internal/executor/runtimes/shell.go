package runtimes

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	vigilErrors "github.com/harunnryd/vigil/internal/errors"
)

const (
	// DefaultMaxOutputBytes caps each captured stream.
	DefaultMaxOutputBytes = 1 << 20
	defaultWaitDelay      = 2 * time.Second
)

// ShellRunner runs commands through "<shell> -c" in their own process group.
type ShellRunner struct {
	shellPath      string
	waitDelay      time.Duration
	maxOutputBytes int
}

// NewShellRunner resolves shell on PATH, falling back to sh when empty.
func NewShellRunner(shell string) (*ShellRunner, error) {
	if shell == "" {
		shell = "sh"
	}
	path, err := exec.LookPath(shell)
	if err != nil {
		return nil, fmt.Errorf("shell not found: %w", err)
	}

	return &ShellRunner{
		shellPath:      path,
		waitDelay:      defaultWaitDelay,
		maxOutputBytes: DefaultMaxOutputBytes,
	}, nil
}

func (sr *ShellRunner) ShellPath() string {
	return sr.shellPath
}

func (sr *ShellRunner) Run(ctx context.Context, command string, opts RunOptions) (*Result, error) {
	if command == "" {
		return nil, vigilErrors.InvalidInput("command is empty")
	}

	runCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, sr.shellPath, "-c", command)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), opts.Env...)
	cmd.SysProcAttr = newSysProcAttr()
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = sr.waitDelay

	stdout := &cappedBuffer{limit: sr.maxOutputBytes}
	stderr := &cappedBuffer{limit: sr.maxOutputBytes}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  time.Since(start),
		Truncated: stdout.truncated || stderr.truncated,
	}

	if err == nil || errors.Is(err, exec.ErrWaitDelay) {
		res.ExitCode = cmd.ProcessState.ExitCode()
		return res, nil
	}

	if ctx.Err() != nil {
		res.ExitCode = -1
		return res, context.Cause(ctx)
	}
	if runCtx.Err() != nil {
		res.ExitCode = -1
		res.TimedOut = true
		return res, fmt.Errorf("command timed out after %s: %w", opts.Timeout, vigilErrors.ErrTimeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("start command: %w", err)
}

// cappedBuffer keeps the first limit bytes and silently drops the rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room < len(p) {
		b.truncated = true
		if room > 0 {
			b.buf.Write(p[:room])
		}
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
