package executor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/natefinch/atomic"

	vigilErrors "github.com/harunnryd/vigil/internal/errors"
	"github.com/harunnryd/vigil/internal/plan"
)

type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledBack Status = "rolled_back"
)

type ActionResult string

const (
	ResultSuccess    ActionResult = "success"
	ResultFailed     ActionResult = "failed"
	ResultSkipped    ActionResult = "skipped"
	ResultRolledBack ActionResult = "rolled_back"
)

type ActionExecutionResult struct {
	ActionID   string          `json:"action_id" yaml:"action_id"`
	Kind       plan.ActionKind `json:"kind" yaml:"kind"`
	TargetPath string          `json:"target_path,omitempty" yaml:"target_path,omitempty"`
	Result     ActionResult    `json:"result" yaml:"result"`
	Output     string          `json:"output,omitempty" yaml:"output,omitempty"`
	Error      string          `json:"error,omitempty" yaml:"error,omitempty"`
	Duration   time.Duration   `json:"duration" yaml:"duration"`
	BackupPath string          `json:"backup_path,omitempty" yaml:"backup_path,omitempty"`
	// RollbackData carries what rollback needs beyond the backup, such as a
	// move destination.
	RollbackData map[string]string `json:"rollback_data,omitempty" yaml:"rollback_data,omitempty"`
}

// ExecutionLog is the per-run record persisted as the run summary.
type ExecutionLog struct {
	PlanID          string                   `json:"plan_id" yaml:"plan_id"`
	RunID           string                   `json:"run_id" yaml:"run_id"`
	DryRun          bool                     `json:"dry_run" yaml:"dry_run"`
	StartedAt       time.Time                `json:"started_at" yaml:"started_at"`
	CompletedAt     time.Time                `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	RolledBackAt    time.Time                `json:"rolled_back_at,omitempty" yaml:"rolled_back_at,omitempty"`
	Status          Status                   `json:"status" yaml:"status"`
	ActionResults   []*ActionExecutionResult `json:"action_results" yaml:"action_results"`
	TotalDuration   time.Duration            `json:"total_duration" yaml:"total_duration"`
	BackupDirectory string                   `json:"backup_directory,omitempty" yaml:"backup_directory,omitempty"`
	ErrorMessage    string                   `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

// Count returns how many actions ended with r.
func (l *ExecutionLog) Count(r ActionResult) int {
	n := 0
	for _, res := range l.ActionResults {
		if res.Result == r {
			n++
		}
	}
	return n
}

const summarySuffix = "_summary.json"

func summaryPath(dir, runID string) (string, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID == "." || runID == ".." {
		return "", vigilErrors.InvalidInput(fmt.Sprintf("invalid run id %q", runID))
	}
	return filepath.Join(dir, runID+summarySuffix), nil
}

func writeSummary(dir string, log *ExecutionLog) error {
	path, err := summaryPath(dir, log.RunID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}
	b, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal execution log: %w", err)
	}
	return atomic.WriteFile(path, bytes.NewReader(b))
}

// ReadSummary loads the execution log of runID from dir.
func ReadSummary(dir, runID string) (*ExecutionLog, error) {
	path, err := summaryPath(dir, runID)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, vigilErrors.NotFound(fmt.Sprintf("run %s", runID))
		}
		return nil, err
	}
	var log ExecutionLog
	if err := json.Unmarshal(content, &log); err != nil {
		return nil, fmt.Errorf("decode execution log %s: %w", runID, err)
	}
	return &log, nil
}

// ListSummaries returns every execution log in dir, newest first.
func ListSummaries(dir string) ([]*ExecutionLog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var logs []*ExecutionLog
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, summarySuffix) {
			continue
		}
		log, err := ReadSummary(dir, strings.TrimSuffix(name, summarySuffix))
		if err != nil {
			continue
		}
		logs = append(logs, log)
	}
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].StartedAt.After(logs[j].StartedAt)
	})
	return logs, nil
}
