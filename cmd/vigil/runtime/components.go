// Package runtime wires the vigil components from the loaded configuration
// and carries the plan lifecycle operations the commands share.
package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harunnryd/vigil/internal/audit"
	"github.com/harunnryd/vigil/internal/config"
	"github.com/harunnryd/vigil/internal/executor"
	"github.com/harunnryd/vigil/internal/executor/runtimes"
	"github.com/harunnryd/vigil/internal/plan"
	"github.com/harunnryd/vigil/internal/safety"
	"github.com/harunnryd/vigil/internal/scheduler"
	"github.com/harunnryd/vigil/internal/store"
	"github.com/harunnryd/vigil/internal/validator"
)

type RuntimeComponents struct {
	Ctx    context.Context
	Cancel context.CancelFunc

	Config *config.Config
	Layout store.Layout

	Audit     *audit.Log
	Policies  *safety.Store
	Plans     *plan.Store
	Validator *validator.Validator
	Runner    *runtimes.ShellRunner
	Executor  *executor.Executor
	Janitor   *scheduler.Janitor
}

func NewRuntimeComponents(ctx context.Context, cfg *config.Config) (*RuntimeComponents, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	r := &RuntimeComponents{
		Ctx:    ctx,
		Cancel: cancel,
		Config: cfg,
	}

	if err := r.init(cfg); err != nil {
		cancel()
		return nil, err
	}

	slog.Debug("Runtime components initialized", "workspace", cfg.Workspace.Root, "data_dir", r.Layout.Root, "tier", r.Policies.Tier())
	return r, nil
}

func (r *RuntimeComponents) init(cfg *config.Config) error {
	layout, err := store.NewLayout(cfg.DataPath())
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}
	if err := layout.Ensure(); err != nil {
		return err
	}
	r.Layout = layout

	lockCfg, err := store.FileLockConfigFrom(cfg.Store)
	if err != nil {
		return fmt.Errorf("store config: %w", err)
	}

	r.Audit, err = audit.Open(r.Ctx, layout.AuditDir(), audit.Options{
		RecentCriticalLimit: cfg.Audit.RecentCriticalLimit,
		RedactPatterns:      cfg.Audit.RedactPatterns,
		Lock:                lockCfg,
	})
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	if cfg.Audit.VerifyOnStart {
		if err := r.Audit.Verify(r.Ctx); err != nil {
			slog.Warn("Audit chain failed verification", "error", err)
		}
	}

	tier, err := safety.ParseTier(cfg.Safety.Tier)
	if err != nil {
		return err
	}
	r.Policies, err = safety.NewStore(tier, overridesFrom(cfg.Safety))
	if err != nil {
		return err
	}
	r.Policies.OnChange(r.recordTierChange)

	r.Plans, err = plan.NewStore(layout.PlansDir())
	if err != nil {
		return fmt.Errorf("open plan store: %w", err)
	}

	rules, err := validator.DefaultRules().WithDangerousPatterns(cfg.Safety.ExtraDangerousPatterns...)
	if err != nil {
		return err
	}
	r.Validator = validator.New(validator.WithRules(rules), validator.WithRecorder(r.Audit))

	r.Runner, err = runtimes.NewShellRunner(cfg.Executor.Shell)
	if err != nil {
		return err
	}

	actionTimeout, err := config.DurationOrDefault(cfg.Executor.ActionTimeout, config.DefaultExecutorActionTimeout)
	if err != nil {
		return fmt.Errorf("executor.action_timeout: %w", err)
	}
	commandTimeout, err := config.DurationOrDefault(cfg.Executor.CommandTimeout, config.DefaultExecutorCommandTimeout)
	if err != nil {
		return fmt.Errorf("executor.command_timeout: %w", err)
	}
	r.Executor, err = executor.New(executor.Config{
		Workspace:      cfg.Workspace.Root,
		BackupsDir:     layout.BackupsDir(),
		LogsDir:        layout.LogsDir(),
		ActionTimeout:  actionTimeout,
		CommandTimeout: commandTimeout,
		StopOnError:    cfg.Executor.StopOnError,
	}, r.Policies, r.Validator, r.Runner,
		executor.WithRecorder(r.Audit),
		executor.WithPlanStore(r.Plans),
	)
	if err != nil {
		return fmt.Errorf("init executor: %w", err)
	}

	backupMaxAge, err := config.DurationOrDefault(cfg.Retention.BackupMaxAge, config.DefaultRetentionBackupMaxAge)
	if err != nil {
		return fmt.Errorf("retention.backup_max_age: %w", err)
	}
	summaryMaxAge, err := config.DurationOrDefault(cfg.Retention.SummaryMaxAge, config.DefaultRetentionSummaryMaxAge)
	if err != nil {
		return fmt.Errorf("retention.summary_max_age: %w", err)
	}
	schedule := cfg.Retention.Schedule
	if schedule == "" {
		schedule = config.DefaultRetentionSchedule
	}
	r.Janitor, err = scheduler.NewJanitor(scheduler.Config{
		BackupsDir:    layout.BackupsDir(),
		LogsDir:       layout.LogsDir(),
		StatePath:     layout.JanitorStatePath(),
		Schedule:      schedule,
		BackupMaxAge:  backupMaxAge,
		SummaryMaxAge: summaryMaxAge,
	})
	if err != nil {
		return fmt.Errorf("init janitor: %w", err)
	}

	return nil
}

func overridesFrom(cfg config.SafetyConfig) safety.Overrides {
	return safety.Overrides{
		ExtraForbiddenPaths:    cfg.ExtraForbiddenPaths,
		ExtraAllowedExtensions: cfg.ExtraAllowedExtensions,
		DisableAudit:           !cfg.AuditEnabled,
		DisableBackup:          !cfg.BackupEnabled,
		DisableRollback:        !cfg.RollbackEnabled,
	}
}

func (r *RuntimeComponents) Stop() {
	if r.Janitor != nil && r.Janitor.IsRunning() {
		if err := r.Janitor.Stop(context.Background()); err != nil {
			slog.Warn("Failed to stop janitor", "error", err)
		}
	}
	r.Cancel()
}
