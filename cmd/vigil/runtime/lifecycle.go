package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	vigilErrors "github.com/harunnryd/vigil/internal/errors"

	"github.com/harunnryd/vigil/internal/audit"
	"github.com/harunnryd/vigil/internal/executor"
	"github.com/harunnryd/vigil/internal/logger"
	"github.com/harunnryd/vigil/internal/plan"
	"github.com/harunnryd/vigil/internal/safety"
	"github.com/harunnryd/vigil/internal/validator"
)

// ConfirmFunc asks the operator to confirm approval of a plan whose risk
// crosses the confirmation threshold.
type ConfirmFunc func(p *plan.ExecutionPlan) bool

// ImportPlan decodes a plan document into a new draft plan and stores it.
func (r *RuntimeComponents) ImportPlan(ctx context.Context, src io.Reader) (*plan.ExecutionPlan, error) {
	policy := r.Policies.Current()
	p, err := plan.Decode(src, policy.ConfirmationThreshold)
	if err != nil {
		return nil, err
	}
	if err := r.Plans.Save(p); err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}

	r.record(logger.WithPlanID(ctx, p.ID), audit.NewEvent(audit.EventPlanCreated, audit.SeverityInfo).
		With("title", p.Title).
		With("actions", len(p.Actions)).
		With("risk", p.Risk.String()))

	slog.Info("Plan imported", "plan_id", p.ID, "actions", len(p.Actions), "risk", p.Risk)
	return p, nil
}

// ValidatePlan checks a stored plan against the active policy without
// changing it. Blocking results are recorded as safety violations.
func (r *RuntimeComponents) ValidatePlan(ctx context.Context, id string) (*plan.ExecutionPlan, *validator.Result, error) {
	p, err := r.Plans.Load(id)
	if err != nil {
		return nil, nil, err
	}
	return p, r.Validator.Check(logger.WithPlanID(ctx, p.ID), p, r.Policies.Current()), nil
}

func (r *RuntimeComponents) SubmitPlan(ctx context.Context, id string) (*plan.ExecutionPlan, error) {
	return r.Plans.UpdateStatus(id, plan.StatusPending)
}

// ApprovePlan validates the plan and approves it when nothing blocks. Plans at
// or above the confirmation threshold additionally need confirm to agree.
func (r *RuntimeComponents) ApprovePlan(ctx context.Context, id string, confirm ConfirmFunc) (*plan.ExecutionPlan, *validator.Result, error) {
	p, err := r.Plans.Load(id)
	if err != nil {
		return nil, nil, err
	}
	ctx = logger.WithPlanID(ctx, p.ID)
	policy := r.Policies.Current()

	result := r.Validator.Check(ctx, p, policy)
	if result.HasBlockingIssues() {
		return p, result, p.Approve(result)
	}

	confirmed := false
	if policy.ShouldRequireConfirmation(p.Risk) {
		if confirm == nil || !confirm(p) {
			return p, result, fmt.Errorf("plan %s is %s risk and approval was not confirmed: %w", p.ID, p.Risk, vigilErrors.ErrNotApproved)
		}
		confirmed = true
	}

	if err := p.Approve(result); err != nil {
		return p, result, err
	}
	if err := r.Plans.Save(p); err != nil {
		return p, result, fmt.Errorf("save plan: %w", err)
	}

	r.record(ctx, audit.NewEvent(audit.EventPlanApproved, audit.SeverityInfo).
		With("risk", p.Risk.String()).
		With("confirmed", confirmed).
		With("tier", string(policy.Tier)))

	slog.Info("Plan approved", "plan_id", p.ID, "risk", p.Risk)
	return p, result, nil
}

func (r *RuntimeComponents) RejectPlan(ctx context.Context, id, reason string) (*plan.ExecutionPlan, error) {
	p, err := r.Plans.Load(id)
	if err != nil {
		return nil, err
	}
	if err := p.Reject(); err != nil {
		return nil, err
	}
	if err := r.Plans.Save(p); err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}

	ev := audit.NewEvent(audit.EventPlanRejected, audit.SeverityWarning)
	if reason != "" {
		ev.With("reason", reason)
	}
	r.record(logger.WithPlanID(ctx, p.ID), ev)

	slog.Info("Plan rejected", "plan_id", p.ID)
	return p, nil
}

func (r *RuntimeComponents) DeletePlan(ctx context.Context, id string) error {
	if err := r.Plans.Delete(id); err != nil {
		return err
	}
	slog.Info("Plan deleted", "plan_id", id)
	return nil
}

// RunPlan executes a stored plan. A nil dryRun falls back to the active
// tier's dry-run default.
func (r *RuntimeComponents) RunPlan(ctx context.Context, id string, dryRun *bool) (*executor.ExecutionLog, error) {
	p, err := r.Plans.Load(id)
	if err != nil {
		return nil, err
	}
	dry := r.Policies.Current().DryRunDefault
	if dryRun != nil {
		dry = *dryRun
	}
	return r.Executor.Execute(ctx, p, executor.RunOptions{DryRun: dry})
}

func (r *RuntimeComponents) Rollback(ctx context.Context, runID string) (*executor.ExecutionLog, error) {
	return r.Executor.RollbackRun(ctx, runID)
}

// SwitchTier makes tier the active policy. The switch itself is recorded as
// a mode change by the policy observer.
func (r *RuntimeComponents) SwitchTier(ctx context.Context, tier safety.Tier) (safety.Policy, error) {
	return r.Policies.SwitchTier(tier)
}

// RecordConfigChange records a persisted configuration edit.
func (r *RuntimeComponents) RecordConfigChange(ctx context.Context, path, key, from, to string) {
	r.record(ctx, audit.NewEvent(audit.EventConfigChanged, audit.SeverityWarning).
		With("path", path).
		With("key", key).
		With("from", from).
		With("to", to))
}

func (r *RuntimeComponents) recordTierChange(prev, next safety.Policy) {
	if !prev.AuditEnabled && !next.AuditEnabled {
		return
	}
	r.appendEvent(r.Ctx, audit.NewEvent(audit.EventModeChanged, audit.SeverityWarning).
		With("from", string(prev.Tier)).
		With("to", string(next.Tier)).
		With("dry_run_default", next.DryRunDefault))
}

func (r *RuntimeComponents) record(ctx context.Context, ev *audit.Event) {
	if !r.Policies.Current().AuditEnabled {
		return
	}
	r.appendEvent(ctx, ev)
}

func (r *RuntimeComponents) appendEvent(ctx context.Context, ev *audit.Event) {
	if _, err := r.Audit.Append(ctx, ev); err != nil {
		slog.Warn("Failed to record audit event", append(logger.Attrs(ctx), "type", ev.Type, "error", err)...)
	}
}
