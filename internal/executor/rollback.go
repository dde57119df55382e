package executor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hashicorp/go-multierror"

	"github.com/harunnryd/vigil/internal/audit"
	vigilErrors "github.com/harunnryd/vigil/internal/errors"
	"github.com/harunnryd/vigil/internal/logger"
)

// Rollback restores every backed-up file of log in reverse action order. It is
// refused for completed runs and is a no-op for runs already rolled back.
// Restores continue past individual failures, which are returned together.
// A run with failed restores keeps its status, so calling Rollback again
// retries only the actions not yet restored. Actions without a backup, such as
// commands, are not undone.
func (e *Executor) Rollback(ctx context.Context, log *ExecutionLog) error {
	if log == nil {
		return vigilErrors.InvalidInput("execution log is nil")
	}
	policy := e.policies.Current()
	if !policy.RollbackEnabled {
		return fmt.Errorf("rollback is disabled by the %s policy: %w", policy.Tier, vigilErrors.ErrRollbackNotAllowed)
	}
	switch log.Status {
	case StatusCompleted:
		return fmt.Errorf("run %s completed successfully: %w", log.RunID, vigilErrors.ErrRollbackNotAllowed)
	case StatusRolledBack:
		slog.Info("Run already rolled back", "run_id", log.RunID)
		return nil
	}

	e.locks.Lock(log.PlanID)
	defer e.locks.Unlock(log.PlanID)

	ctx = logger.WithRunID(logger.WithPlanID(ctx, log.PlanID), log.RunID)

	var result *multierror.Error
	restored, failures := 0, 0
	for i := len(log.ActionResults) - 1; i >= 0; i-- {
		res := log.ActionResults[i]
		if res.BackupPath == "" || res.Result == ResultRolledBack {
			continue
		}
		if err := e.undo(res); err != nil {
			result = multierror.Append(result, fmt.Errorf("action %s: %w", res.ActionID, err))
			failures++
			continue
		}
		res.Result = ResultRolledBack
		restored++
	}

	if failures == 0 {
		log.Status = StatusRolledBack
		log.RolledBackAt = e.now().UTC()
	}
	if err := writeSummary(e.cfg.LogsDir, log); err != nil {
		result = multierror.Append(result, fmt.Errorf("write execution summary: %w", err))
		failures++
	}

	sev := audit.SeverityWarning
	if result.ErrorOrNil() != nil {
		sev = audit.SeverityError
	}
	ev := audit.NewEvent(audit.EventRollbackExecuted, sev).
		With("restored", restored).
		With("errors", failures)
	if result.ErrorOrNil() != nil {
		ev.With("error", result.Error())
	}
	e.record(ctx, policy, ev)

	slog.Info("Rollback finished", append(logger.Attrs(ctx), "restored", restored, "errors", failures)...)
	return result.ErrorOrNil()
}

// RollbackRun loads the summary of runID and rolls it back.
func (e *Executor) RollbackRun(ctx context.Context, runID string) (*ExecutionLog, error) {
	log, err := e.LoadLog(runID)
	if err != nil {
		return nil, err
	}
	return log, e.Rollback(ctx, log)
}

func (e *Executor) undo(res *ActionExecutionResult) error {
	if res.TargetPath == "" {
		return fmt.Errorf("no target path recorded for backup %s", res.BackupPath)
	}
	if err := restoreFile(res.BackupPath, res.TargetPath); err != nil {
		return err
	}

	// A move left a copy at its destination; drop it when it is still the
	// moved file.
	if dest := res.RollbackData["moved_to"]; dest != "" {
		current, err := os.ReadFile(dest)
		if err != nil {
			return nil
		}
		original, err := os.ReadFile(res.BackupPath)
		if err != nil {
			return err
		}
		if bytes.Equal(current, original) {
			return os.Remove(dest)
		}
	}
	return nil
}
