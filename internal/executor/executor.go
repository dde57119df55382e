// Package executor runs approved plans one action at a time, backing up every
// file it is about to change so a failed run can be rolled back.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/oklog/ulid/v2"

	"github.com/harunnryd/vigil/internal/audit"
	"github.com/harunnryd/vigil/internal/concurrency"
	"github.com/harunnryd/vigil/internal/deadline"
	vigilErrors "github.com/harunnryd/vigil/internal/errors"
	"github.com/harunnryd/vigil/internal/executor/runtimes"
	"github.com/harunnryd/vigil/internal/logger"
	"github.com/harunnryd/vigil/internal/plan"
	"github.com/harunnryd/vigil/internal/safety"
	"github.com/harunnryd/vigil/internal/validator"
)

const (
	DefaultActionTimeout  = 60 * time.Second
	DefaultCommandTimeout = 300 * time.Second
)

// PolicySource hands out the policy snapshot for a run.
type PolicySource interface {
	Current() safety.Policy
}

// PlanChecker re-validates a plan right before it runs.
type PlanChecker interface {
	Check(ctx context.Context, p *plan.ExecutionPlan, policy safety.Policy) *validator.Result
}

// PlanSaver persists a plan after its status changes.
type PlanSaver interface {
	Save(p *plan.ExecutionPlan) error
}

type Config struct {
	// Workspace is the directory relative action paths resolve against.
	Workspace      string
	BackupsDir     string
	LogsDir        string
	ActionTimeout  time.Duration
	CommandTimeout time.Duration
	StopOnError    bool
}

type Executor struct {
	cfg        Config
	policies   PolicySource
	checker    PlanChecker
	runner     runtimes.Runner
	recorder   audit.Recorder
	plans      PlanSaver
	supervisor *deadline.Supervisor
	locks      *concurrency.KeyedMutex
	now        func() time.Time
}

type Option func(*Executor)

func WithRecorder(r audit.Recorder) Option {
	return func(e *Executor) { e.recorder = r }
}

func WithPlanStore(s PlanSaver) Option {
	return func(e *Executor) { e.plans = s }
}

func WithSupervisor(s *deadline.Supervisor) Option {
	return func(e *Executor) { e.supervisor = s }
}

func WithClock(now func() time.Time) Option {
	return func(e *Executor) { e.now = now }
}

func New(cfg Config, policies PolicySource, checker PlanChecker, runner runtimes.Runner, opts ...Option) (*Executor, error) {
	if policies == nil || checker == nil || runner == nil {
		return nil, vigilErrors.InvalidInput("executor needs a policy source, a plan checker and a runner")
	}
	workspace, err := filepath.Abs(cfg.Workspace)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	cfg.Workspace = workspace
	if cfg.ActionTimeout <= 0 {
		cfg.ActionTimeout = DefaultActionTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultCommandTimeout
	}
	if cfg.BackupsDir == "" || cfg.LogsDir == "" {
		return nil, vigilErrors.InvalidInput("executor needs backup and log directories")
	}

	e := &Executor{
		cfg:      cfg,
		policies: policies,
		checker:  checker,
		runner:   runner,
		locks:    concurrency.NewKeyedMutex(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.supervisor == nil {
		e.supervisor = deadline.New()
	}
	return e, nil
}

func (e *Executor) Supervisor() *deadline.Supervisor {
	return e.supervisor
}

type RunOptions struct {
	DryRun bool
}

// run is the state of one Execute call. Results arriving after the run is
// sealed (a body that outlived its deadline) are dropped.
type run struct {
	mu        sync.Mutex
	log       *ExecutionLog
	policy    safety.Policy
	dryRun    bool
	backupDir string
	sealed    bool
	inFlight  *ActionExecutionResult
	started   time.Time
}

// begin marks pending as the running action. It reports false once the run is
// sealed.
func (r *run) begin(pending *ActionExecutionResult) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return false
	}
	r.inFlight = pending
	r.started = time.Now()
	return true
}

// commit appends res and runs then while holding the run, so sealing waits
// for an in-flight commit.
func (r *run) commit(res *ActionExecutionResult, then func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return false
	}
	r.inFlight = nil
	r.log.ActionResults = append(r.log.ActionResults, res)
	then()
	return true
}

// seal closes the run to late results. An action still in flight is logged as
// failed with cause and returned.
func (r *run) seal(cause error) *ActionExecutionResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
	res := r.inFlight
	if res == nil {
		return nil
	}
	r.inFlight = nil
	res.Result = ResultFailed
	res.Error = "interrupted"
	if cause != nil {
		res.Error = "interrupted: " + cause.Error()
	}
	res.Duration = time.Since(r.started)
	r.log.ActionResults = append(r.log.ActionResults, res)
	return res
}

// Execute runs an approved plan. Action failures are recorded in the returned
// log; the error is non-nil only when the run could not start, a deadline or
// cancellation cut it short, or its results could not be persisted.
func (e *Executor) Execute(ctx context.Context, p *plan.ExecutionPlan, opts RunOptions) (*ExecutionLog, error) {
	if p == nil {
		return nil, vigilErrors.InvalidInput("plan is nil")
	}
	if p.Status != plan.StatusApproved {
		return nil, fmt.Errorf("plan %s is %s: %w", p.ID, p.Status, vigilErrors.ErrNotApproved)
	}

	e.locks.Lock(p.ID)
	defer e.locks.Unlock(p.ID)

	policy := e.policies.Current()
	ctx = logger.WithPlanID(ctx, p.ID)

	verdict := e.checker.Check(ctx, p, policy)
	if verdict.HasBlockingIssues() {
		return nil, fmt.Errorf("plan %s no longer passes validation (%d blocking issues): %w",
			p.ID, verdict.Count(validator.SeverityCritical)+verdict.Count(validator.SeverityError), vigilErrors.ErrValidationFailed)
	}

	runID := ulid.Make().String()
	ctx = logger.WithRunID(ctx, runID)

	r := &run{
		policy: policy,
		dryRun: opts.DryRun,
		log: &ExecutionLog{
			PlanID:        p.ID,
			RunID:         runID,
			DryRun:        opts.DryRun,
			StartedAt:     e.now().UTC(),
			Status:        StatusInProgress,
			ActionResults: []*ActionExecutionResult{},
		},
	}

	if (p.RequiresBackup || p.NeedsBackup()) && !opts.DryRun && policy.BackupEnabled {
		dir := filepath.Join(e.cfg.BackupsDir, runID)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create backup dir: %w", err)
		}
		r.backupDir = dir
		r.log.BackupDirectory = dir
	}

	slog.Info("Plan execution started", append(logger.Attrs(ctx), "actions", len(p.Actions), "dry_run", opts.DryRun)...)

	runErr := e.supervisor.WithDeadline(ctx, "plan:"+p.ID, policy.MaxTotalDuration, deadline.Options{
		OnWarn: func(label string, remaining time.Duration) {
			slog.Warn("Plan nearing its deadline", "label", label, "remaining", remaining, "run_id", runID)
		},
	}, func(ctx context.Context) error {
		return e.runActions(ctx, r, p)
	})
	if res := r.seal(runErr); res != nil {
		e.recordAction(ctx, r, res)
	}

	return r.log, e.finish(ctx, r, p, runErr)
}

func (e *Executor) runActions(ctx context.Context, r *run, p *plan.ExecutionPlan) error {
	for _, action := range p.Actions {
		if err := ctx.Err(); err != nil {
			return context.Cause(ctx)
		}

		pending := &ActionExecutionResult{ActionID: action.ID, Kind: action.Kind}
		if action.Kind.HasTarget() {
			pending.TargetPath, _ = e.resolve(action.TargetPath)
		}
		if !r.begin(pending) {
			return nil
		}

		res, err := e.runAction(ctx, r, action)
		if !r.commit(res, func() { e.recordAction(ctx, r, res) }) {
			return nil
		}
		if err != nil {
			return err
		}

		if res.Result == ResultFailed && e.cfg.StopOnError {
			slog.Warn("Execution stopped after failed action", append(logger.Attrs(ctx), "action_id", action.ID)...)
			return context.Cause(ctx)
		}
	}
	// Nil unless a deadline fired while the last action was finishing.
	return context.Cause(ctx)
}

// runAction dispatches one action under its own deadline. An error is only
// returned when an enclosing deadline or cancellation ended the run.
func (e *Executor) runAction(ctx context.Context, r *run, action plan.PlannedAction) (*ActionExecutionResult, error) {
	label := "action:" + action.ID
	limit := e.cfg.ActionTimeout
	if action.Kind == plan.ActionRunCommand && e.cfg.CommandTimeout > limit {
		limit = e.cfg.CommandTimeout
	}

	start := time.Now()
	results := make(chan *ActionExecutionResult, 1)
	err := e.supervisor.WithDeadline(ctx, label, limit, deadline.Options{
		OnTimeout: func(label string) {
			slog.Warn("Action timed out", append(logger.Attrs(ctx), "action_id", action.ID, "limit", limit)...)
		},
	}, func(actx context.Context) error {
		res := e.dispatch(actx, r, action)
		res.Duration = time.Since(start)
		results <- res
		return nil
	})
	if err == nil {
		return <-results, nil
	}

	res := &ActionExecutionResult{
		ActionID:   action.ID,
		Kind:       action.Kind,
		TargetPath: action.TargetPath,
		Result:     ResultFailed,
		Error:      err.Error(),
		Duration:   time.Since(start),
	}
	if te, ok := deadline.AsTimeout(err); ok && te.Label == label {
		res.Error = fmt.Sprintf("action timed out after %s", limit)
		e.record(ctx, r.policy, audit.NewEvent(audit.EventTimeoutOccurred, audit.SeverityWarning).
			WithContext("action_id", action.ID).
			With("timeout_type", "action").
			With("limit_seconds", limit.Seconds()))
		return res, nil
	}
	return res, err
}

func (e *Executor) finish(ctx context.Context, r *run, p *plan.ExecutionPlan, runErr error) error {
	log := r.log
	log.CompletedAt = e.now().UTC()
	log.TotalDuration = log.CompletedAt.Sub(log.StartedAt)

	firstFailure := ""
	for _, res := range log.ActionResults {
		if res.Result == ResultFailed {
			firstFailure = res.Error
			break
		}
	}

	var result *multierror.Error
	switch {
	case runErr != nil:
		log.Status = StatusFailed
		log.ErrorMessage = runErr.Error()
		if te, ok := deadline.AsTimeout(runErr); ok {
			e.record(ctx, r.policy, audit.NewEvent(audit.EventTimeoutOccurred, audit.SeverityError).
				With("timeout_type", "plan").
				With("limit_seconds", te.Limit.Seconds()))
		}
		result = multierror.Append(result, runErr)
	case firstFailure != "":
		log.Status = StatusFailed
		log.ErrorMessage = firstFailure
	default:
		log.Status = StatusCompleted
	}

	if err := writeSummary(e.cfg.LogsDir, log); err != nil {
		slog.Error("Failed to write execution summary", append(logger.Attrs(ctx), "error", err)...)
		result = multierror.Append(result, fmt.Errorf("write execution summary: %w", err))
	}

	if !log.DryRun {
		to := plan.StatusExecuted
		if log.Status == StatusFailed {
			to = plan.StatusFailed
		}
		if err := p.Transition(to); err != nil {
			result = multierror.Append(result, err)
		} else if e.plans != nil {
			if err := e.plans.Save(p); err != nil {
				result = multierror.Append(result, fmt.Errorf("save plan: %w", err))
			}
		}
	}

	sev := audit.SeverityInfo
	if log.Status == StatusFailed {
		sev = audit.SeverityError
		e.record(ctx, r.policy, audit.NewEvent(audit.EventErrorOccurred, audit.SeverityError).
			With("error", log.ErrorMessage))
	}
	e.record(ctx, r.policy, audit.NewEvent(audit.EventPlanExecuted, sev).
		With("status", string(log.Status)).
		With("dry_run", log.DryRun).
		With("actions", len(p.Actions)).
		With("succeeded", log.Count(ResultSuccess)).
		With("failed", log.Count(ResultFailed)).
		With("skipped", log.Count(ResultSkipped)).
		With("duration_ms", log.TotalDuration.Milliseconds()))

	slog.Info("Plan execution finished", append(logger.Attrs(ctx), "status", log.Status, "duration", log.TotalDuration)...)
	return result.ErrorOrNil()
}

func (e *Executor) recordAction(ctx context.Context, r *run, res *ActionExecutionResult) {
	sev := audit.SeverityInfo
	if res.Result == ResultFailed {
		sev = audit.SeverityError
	}
	ev := audit.NewEvent(audit.EventActionExecuted, sev).
		WithContext("action_id", res.ActionID).
		With("action_type", string(res.Kind)).
		With("result", string(res.Result)).
		With("duration_ms", res.Duration.Milliseconds()).
		With("dry_run", r.dryRun)
	if res.TargetPath != "" {
		ev.With("target", res.TargetPath)
	}
	if res.Error != "" {
		ev.With("error", res.Error)
	}
	e.record(ctx, r.policy, ev)
}

// record appends ev when auditing is on. Audit failures never fail a run.
// Events are still written after a deadline has cancelled ctx.
func (e *Executor) record(ctx context.Context, policy safety.Policy, ev *audit.Event) {
	if e.recorder == nil || !policy.AuditEnabled {
		return
	}
	if _, err := e.recorder.Append(context.WithoutCancel(ctx), ev); err != nil {
		slog.Warn("Failed to record audit event", append(logger.Attrs(ctx), "type", ev.Type, "error", err)...)
	}
}

// LoadLog reads the persisted summary of runID.
func (e *Executor) LoadLog(runID string) (*ExecutionLog, error) {
	return ReadSummary(e.cfg.LogsDir, runID)
}

// Logs lists persisted run summaries, newest first.
func (e *Executor) Logs() ([]*ExecutionLog, error) {
	return ListSummaries(e.cfg.LogsDir)
}
