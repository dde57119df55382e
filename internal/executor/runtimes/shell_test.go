//go:build unix

package runtimes

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vigilErrors "github.com/harunnryd/vigil/internal/errors"
)

func newRunner(t *testing.T) *ShellRunner {
	t.Helper()
	r, err := NewShellRunner("")
	require.NoError(t, err)
	return r
}

func TestShellRunnerCapturesOutput(t *testing.T) {
	r := newRunner(t)

	res, err := r.Run(context.Background(), "echo hello; echo oops >&2", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "oops\n", res.Stderr)
	assert.False(t, res.TimedOut)
}

func TestShellRunnerNonzeroExitIsNotAnError(t *testing.T) {
	r := newRunner(t)

	res, err := r.Run(context.Background(), "echo partial; exit 3", RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "partial\n", res.Stdout)
}

func TestShellRunnerUsesWorkingDirectory(t *testing.T) {
	r := newRunner(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x"), 0644))

	res, err := r.Run(context.Background(), "ls", RunOptions{Dir: dir, Env: []string{"VIGIL_TEST=1"}})
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "marker.txt")

	res, err = r.Run(context.Background(), "echo $VIGIL_TEST", RunOptions{Env: []string{"VIGIL_TEST=42"}})
	require.NoError(t, err)
	assert.Equal(t, "42", strings.TrimSpace(res.Stdout))
}

func TestShellRunnerKillsOnTimeout(t *testing.T) {
	r := newRunner(t)

	start := time.Now()
	res, err := r.Run(context.Background(), "sleep 10 & sleep 10; wait", RunOptions{Timeout: 100 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, vigilErrors.ErrTimeout)
	assert.True(t, res.TimedOut)
	assert.Equal(t, -1, res.ExitCode)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestShellRunnerHonoursCancellation(t *testing.T) {
	r := newRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := r.Run(ctx, "sleep 10", RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestShellRunnerRejectsEmptyCommand(t *testing.T) {
	r := newRunner(t)
	_, err := r.Run(context.Background(), "", RunOptions{})
	assert.ErrorIs(t, err, vigilErrors.ErrInvalidInput)
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{limit: 4}
	n, err := b.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = b.Write([]byte("def"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, "abcd", b.String())
	assert.True(t, b.truncated)
}

func TestNewShellRunnerUnknownShell(t *testing.T) {
	_, err := NewShellRunner("definitely-not-a-shell-binary")
	assert.Error(t, err)
}
