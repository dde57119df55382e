package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/vigil/internal/audit"
	"github.com/harunnryd/vigil/internal/deadline"
	vigilErrors "github.com/harunnryd/vigil/internal/errors"
	"github.com/harunnryd/vigil/internal/executor/runtimes"
	"github.com/harunnryd/vigil/internal/pathutil"
	"github.com/harunnryd/vigil/internal/plan"
)

const placeholderContent = "# Generated file\n"

// outcome accumulates the result of one action.
type outcome struct {
	res *ActionExecutionResult
}

func (o *outcome) ok(format string, args ...any) *ActionExecutionResult {
	o.res.Result = ResultSuccess
	o.res.Output = fmt.Sprintf(format, args...)
	return o.res
}

func (o *outcome) fail(format string, args ...any) *ActionExecutionResult {
	o.res.Result = ResultFailed
	o.res.Error = fmt.Sprintf(format, args...)
	return o.res
}

func (o *outcome) skip(format string, args ...any) *ActionExecutionResult {
	o.res.Result = ResultSkipped
	o.res.Output = fmt.Sprintf(format, args...)
	return o.res
}

// interrupted fails o once ctx has ended, so a body that outlived its
// deadline stops before touching the filesystem.
func (o *outcome) interrupted(ctx context.Context) *ActionExecutionResult {
	if ctx.Err() == nil {
		return nil
	}
	return o.fail("interrupted before changing %s: %v", o.res.TargetPath, context.Cause(ctx))
}

func (e *Executor) dispatch(ctx context.Context, r *run, action plan.PlannedAction) *ActionExecutionResult {
	o := &outcome{res: &ActionExecutionResult{ActionID: action.ID, Kind: action.Kind}}

	if action.Kind.HasTarget() {
		target, err := e.resolve(action.TargetPath)
		if err != nil {
			return o.fail("%v", err)
		}
		o.res.TargetPath = target
	}

	switch action.Kind {
	case plan.ActionCreateFile:
		return e.createFile(ctx, r, o, action)
	case plan.ActionModifyFile:
		return e.modifyFile(ctx, r, o, action)
	case plan.ActionDeleteFile:
		return e.deleteFile(ctx, r, o)
	case plan.ActionRunCommand:
		return e.runCommand(ctx, r, o, action)
	case plan.ActionExecuteCode:
		if action.Content == "" {
			return o.fail("no code content specified")
		}
		return o.skip("code execution is not supported; %d bytes of code not run", len(action.Content))
	case plan.ActionCreateDirectory:
		return e.createDirectory(ctx, r, o)
	case plan.ActionMoveFile:
		return e.moveFile(ctx, r, o, action)
	case plan.ActionCopyFile:
		return e.copyFile(ctx, r, o, action)
	default:
		return o.fail("unknown action kind %q", action.Kind)
	}
}

// resolve maps an action path into the workspace. Relative paths must stay
// inside it.
func (e *Executor) resolve(target string) (string, error) {
	if strings.TrimSpace(target) == "" {
		return "", vigilErrors.InvalidInput("no target path specified")
	}
	path, err := pathutil.Within(e.cfg.Workspace, target)
	if err != nil {
		return "", vigilErrors.InvalidInput(fmt.Sprintf("path %q escapes the workspace", target))
	}
	return path, nil
}

func (e *Executor) backup(ctx context.Context, r *run, o *outcome, path string) error {
	if r.backupDir == "" {
		return nil
	}
	backupPath, err := backupFile(path, r.backupDir, e.now())
	if err != nil {
		return fmt.Errorf("backup %s: %w", path, err)
	}
	o.res.BackupPath = backupPath
	e.record(ctx, r.policy, audit.NewEvent(audit.EventBackupCreated, audit.SeverityInfo).
		WithContext("action_id", o.res.ActionID).
		With("source", path).
		With("backup", backupPath))
	return nil
}

func (e *Executor) fileEvent(ctx context.Context, r *run, t audit.EventType, actionID, path string) {
	e.record(ctx, r.policy, audit.NewEvent(t, audit.SeverityInfo).
		WithContext("action_id", actionID).
		With("path", path))
}

func (e *Executor) createFile(ctx context.Context, r *run, o *outcome, action plan.PlannedAction) *ActionExecutionResult {
	target := o.res.TargetPath
	if fileExists(target) {
		return o.fail("file %s already exists", target)
	}
	content := action.Content
	if content == "" {
		content = placeholderContent
	}
	if int64(len(content)) > r.policy.MaxFileSizeBytes && r.policy.MaxFileSizeBytes > 0 {
		return o.fail("content of %d bytes exceeds the %d byte limit", len(content), r.policy.MaxFileSizeBytes)
	}
	if r.dryRun {
		return o.ok("would create file %s (%d bytes)", target, len(content))
	}

	if res := o.interrupted(ctx); res != nil {
		return res
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return o.fail("create parent directories for %s: %v", target, err)
	}
	if err := writeFile(target, []byte(content), 0644); err != nil {
		return o.fail("create file %s: %v", target, err)
	}
	e.fileEvent(ctx, r, audit.EventFileCreated, action.ID, target)
	return o.ok("created file %s", target)
}

func (e *Executor) modifyFile(ctx context.Context, r *run, o *outcome, action plan.PlannedAction) *ActionExecutionResult {
	target := o.res.TargetPath
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return o.fail("file %s does not exist", target)
		}
		return o.fail("stat %s: %v", target, err)
	}
	if !info.Mode().IsRegular() {
		return o.fail("%s is not a regular file", target)
	}
	if action.Content == "" {
		return o.fail("no content specified for modification of %s", target)
	}
	if r.dryRun {
		return o.ok("would modify file %s (%d -> %d bytes)", target, info.Size(), len(action.Content))
	}

	if err := e.backup(ctx, r, o, target); err != nil {
		return o.fail("%v", err)
	}
	if res := o.interrupted(ctx); res != nil {
		return res
	}
	if err := writeFile(target, []byte(action.Content), info.Mode().Perm()); err != nil {
		return o.fail("modify file %s: %v", target, err)
	}
	e.fileEvent(ctx, r, audit.EventFileModified, action.ID, target)
	return o.ok("modified file %s", target)
}

func (e *Executor) deleteFile(ctx context.Context, r *run, o *outcome) *ActionExecutionResult {
	target := o.res.TargetPath
	info, err := os.Lstat(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return o.ok("file %s already absent", target)
		}
		return o.fail("stat %s: %v", target, err)
	}
	if info.IsDir() {
		return o.fail("%s is a directory", target)
	}
	if r.dryRun {
		return o.ok("would delete file %s", target)
	}

	if err := e.backup(ctx, r, o, target); err != nil {
		return o.fail("%v", err)
	}
	if res := o.interrupted(ctx); res != nil {
		return res
	}
	if err := os.Remove(target); err != nil {
		return o.fail("delete file %s: %v", target, err)
	}
	e.fileEvent(ctx, r, audit.EventFileDeleted, o.res.ActionID, target)
	return o.ok("deleted file %s", target)
}

func (e *Executor) createDirectory(ctx context.Context, r *run, o *outcome) *ActionExecutionResult {
	target := o.res.TargetPath
	if info, err := os.Stat(target); err == nil {
		if info.IsDir() {
			return o.ok("directory %s already exists", target)
		}
		return o.fail("%s exists and is not a directory", target)
	}
	if r.dryRun {
		return o.ok("would create directory %s", target)
	}
	if res := o.interrupted(ctx); res != nil {
		return res
	}
	if err := os.MkdirAll(target, 0755); err != nil {
		return o.fail("create directory %s: %v", target, err)
	}
	return o.ok("created directory %s", target)
}

func (e *Executor) moveFile(ctx context.Context, r *run, o *outcome, action plan.PlannedAction) *ActionExecutionResult {
	source := o.res.TargetPath
	dest, err := e.resolve(action.Destination)
	if err != nil {
		return o.fail("destination: %v", err)
	}

	srcExists, destExists := fileExists(source), fileExists(dest)
	switch {
	case !srcExists && destExists:
		return o.ok("%s already moved to %s", source, dest)
	case !srcExists:
		return o.fail("source %s does not exist", source)
	case destExists:
		return o.fail("destination %s already exists", dest)
	}
	if r.dryRun {
		return o.ok("would move %s to %s", source, dest)
	}

	if err := e.backup(ctx, r, o, source); err != nil {
		return o.fail("%v", err)
	}
	if res := o.interrupted(ctx); res != nil {
		return res
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return o.fail("create parent directories for %s: %v", dest, err)
	}
	if err := os.Rename(source, dest); err != nil {
		return o.fail("move %s to %s: %v", source, dest, err)
	}
	o.res.RollbackData = map[string]string{"moved_to": dest}
	e.record(ctx, r.policy, audit.NewEvent(audit.EventFileModified, audit.SeverityInfo).
		WithContext("action_id", action.ID).
		With("operation", "move").
		With("path", source).
		With("destination", dest))
	return o.ok("moved %s to %s", source, dest)
}

func (e *Executor) copyFile(ctx context.Context, r *run, o *outcome, action plan.PlannedAction) *ActionExecutionResult {
	source := o.res.TargetPath
	dest, err := e.resolve(action.Destination)
	if err != nil {
		return o.fail("destination: %v", err)
	}

	info, err := os.Stat(source)
	if err != nil {
		return o.fail("source %s: %v", source, err)
	}
	if !info.Mode().IsRegular() {
		return o.fail("source %s is not a regular file", source)
	}
	if fileExists(dest) {
		same, err := sameContent(source, dest)
		if err != nil {
			return o.fail("compare %s with %s: %v", source, dest, err)
		}
		if same {
			return o.ok("%s already matches %s", dest, source)
		}
		return o.fail("destination %s already exists with different content", dest)
	}
	if r.dryRun {
		return o.ok("would copy %s to %s", source, dest)
	}

	if res := o.interrupted(ctx); res != nil {
		return res
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return o.fail("create parent directories for %s: %v", dest, err)
	}
	if err := copyFile(source, dest); err != nil {
		return o.fail("copy %s to %s: %v", source, dest, err)
	}
	e.fileEvent(ctx, r, audit.EventFileCreated, action.ID, dest)
	return o.ok("copied %s to %s", source, dest)
}

func (e *Executor) runCommand(ctx context.Context, r *run, o *outcome, action plan.PlannedAction) *ActionExecutionResult {
	if strings.TrimSpace(action.Command) == "" {
		return o.fail("no command specified")
	}
	if r.dryRun {
		return o.ok("would run command: %s", action.Command)
	}

	res, err := e.runner.Run(ctx, action.Command, runtimes.RunOptions{
		Dir:     e.cfg.Workspace,
		Timeout: e.cfg.CommandTimeout,
	})

	ev := audit.NewEvent(audit.EventCommandExecuted, audit.SeverityInfo).
		WithContext("action_id", action.ID).
		With("command", action.Command)
	if res != nil {
		ev.With("exit_code", res.ExitCode).With("duration_ms", res.Duration.Milliseconds())
		o.res.Output = res.Stdout
	}

	switch {
	case err != nil && errors.Is(err, vigilErrors.ErrTimeout) && res != nil && res.TimedOut:
		ev.Severity = audit.SeverityWarning
		e.record(ctx, r.policy, ev)
		e.record(ctx, r.policy, audit.NewEvent(audit.EventTimeoutOccurred, audit.SeverityWarning).
			WithContext("action_id", action.ID).
			With("timeout_type", "command").
			With("limit_seconds", e.cfg.CommandTimeout.Seconds()))
		return o.fail("command timed out after %s", e.cfg.CommandTimeout)
	case err != nil:
		if _, ok := deadline.AsTimeout(context.Cause(ctx)); ok {
			// The enclosing scope owns the timeout report.
			return o.fail("command interrupted: %v", err)
		}
		ev.Severity = audit.SeverityError
		ev.With("error", err.Error())
		e.record(ctx, r.policy, ev)
		return o.fail("run command: %v", err)
	}

	e.record(ctx, r.policy, ev)
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("exit status %d", res.ExitCode)
		}
		o.res.Result = ResultFailed
		o.res.Error = fmt.Sprintf("command exited with code %d: %s", res.ExitCode, msg)
		return o.res
	}
	o.res.Result = ResultSuccess
	return o.res
}
