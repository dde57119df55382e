// Package scheduler runs the retention janitor that prunes old backup
// directories and run summaries on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"

	vigilErrors "github.com/harunnryd/vigil/internal/errors"
)

const (
	TaskPruneBackups   = "prune_backups"
	TaskPruneSummaries = "prune_summaries"

	DefaultTickInterval  = time.Minute
	DefaultLeaseDuration = 10 * time.Minute

	summarySuffix = "_summary.json"
)

type Config struct {
	BackupsDir    string
	LogsDir       string
	StatePath     string
	Schedule      string
	BackupMaxAge  time.Duration
	SummaryMaxAge time.Duration
	TickInterval  time.Duration
	LeaseDuration time.Duration
}

// PruneResult lists what a prune pass removed.
type PruneResult struct {
	Removed    []string `json:"removed"`
	BytesFreed int64    `json:"bytes_freed"`
}

func (r *PruneResult) merge(other *PruneResult) {
	r.Removed = append(r.Removed, other.Removed...)
	r.BytesFreed += other.BytesFreed
}

type Janitor struct {
	cfg   Config
	store *Store
	now   func() time.Time

	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	ticker  *time.Ticker
	done    chan struct{}
}

func NewJanitor(cfg Config) (*Janitor, error) {
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, vigilErrors.InvalidInput(fmt.Sprintf("invalid retention schedule %q: %v", cfg.Schedule, err))
	}
	if cfg.BackupsDir == "" || cfg.LogsDir == "" || cfg.StatePath == "" {
		return nil, vigilErrors.InvalidInput("janitor needs backup, log and state paths")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = DefaultLeaseDuration
	}

	store, err := NewStore(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("open janitor state: %w", err)
	}

	return &Janitor{cfg: cfg, store: store, now: time.Now}, nil
}

func (j *Janitor) Store() *Store {
	return j.store
}

func (j *Janitor) Init(ctx context.Context) error {
	j.ctx, j.cancel = context.WithCancel(ctx)

	now := j.now()
	for _, id := range []string{TaskPruneBackups, TaskPruneSummaries} {
		if err := j.store.Register(id, j.cfg.Schedule, now); err != nil {
			return fmt.Errorf("register %s: %w", id, err)
		}
	}

	slog.Info("Janitor initialized", "schedule", j.cfg.Schedule)
	return nil
}

func (j *Janitor) Start(ctx context.Context) error {
	if j.ctx == nil {
		return vigilErrors.Internal("janitor not initialized")
	}

	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = true
	j.ticker = time.NewTicker(j.cfg.TickInterval)
	j.done = make(chan struct{})
	j.mu.Unlock()

	// Catch up on anything that fell due while no janitor was running.
	j.RunDue(ctx)

	go j.run(ctx)

	slog.Info("Janitor started", "tick", j.cfg.TickInterval)
	return nil
}

func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return nil
	}
	j.running = false
	j.ticker.Stop()
	done := j.done
	j.mu.Unlock()

	j.cancel()

	select {
	case <-done:
		slog.Info("Janitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Janitor) Health(ctx context.Context) error {
	if j.ctx == nil {
		return vigilErrors.Internal("janitor not initialized")
	}
	if !j.IsRunning() {
		return vigilErrors.Internal("janitor not running")
	}
	return nil
}

func (j *Janitor) IsRunning() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.running
}

func (j *Janitor) run(ctx context.Context) {
	defer close(j.done)
	for {
		select {
		case <-j.ticker.C:
			j.RunDue(ctx)
		case <-j.ctx.Done():
			slog.Info("Janitor loop stopped")
			return
		}
	}
}

// RunDue runs every task that is due and returns how many ran.
func (j *Janitor) RunDue(ctx context.Context) int {
	now := j.now()
	ran := 0
	for _, task := range j.store.Due(now) {
		if ctx.Err() != nil {
			break
		}

		runID := ulid.Make().String()
		if err := j.store.AcquireLease(task.ID, runID, now, now.Add(j.cfg.LeaseDuration)); err != nil {
			slog.Warn("Failed to acquire janitor lease", "task", task.ID, "error", err)
			continue
		}

		result, err := j.runTask(task.ID, now)
		if err != nil {
			slog.Error("Janitor task failed", "task", task.ID, "error", err)
		}
		if err := j.store.Complete(task.ID, runID, now, result); err != nil {
			slog.Error("Failed to complete janitor task", "task", task.ID, "error", err)
		}
		ran++
	}
	return ran
}

func (j *Janitor) runTask(id string, now time.Time) (*PruneResult, error) {
	switch id {
	case TaskPruneBackups:
		return j.PruneBackups(now)
	case TaskPruneSummaries:
		return j.PruneSummaries(now)
	default:
		return nil, vigilErrors.InvalidInput(fmt.Sprintf("unknown janitor task %s", id))
	}
}

// PruneOnce prunes backups and summaries immediately, ignoring the schedule.
func (j *Janitor) PruneOnce(now time.Time) (*PruneResult, error) {
	result := &PruneResult{}
	backups, err := j.PruneBackups(now)
	if backups != nil {
		result.merge(backups)
	}
	if err != nil {
		return result, err
	}
	summaries, err := j.PruneSummaries(now)
	if summaries != nil {
		result.merge(summaries)
	}
	return result, err
}

// PruneBackups removes per-run backup directories last modified before
// now minus the backup max age.
func (j *Janitor) PruneBackups(now time.Time) (*PruneResult, error) {
	result := &PruneResult{}
	if j.cfg.BackupMaxAge <= 0 {
		return result, nil
	}
	cutoff := now.Add(-j.cfg.BackupMaxAge)

	entries, err := os.ReadDir(j.cfg.BackupsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return result, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		dir := filepath.Join(j.cfg.BackupsDir, entry.Name())
		size := dirSize(dir)
		if err := os.RemoveAll(dir); err != nil {
			return result, fmt.Errorf("remove backup dir %s: %w", dir, err)
		}
		result.Removed = append(result.Removed, dir)
		result.BytesFreed += size
	}

	if len(result.Removed) > 0 {
		slog.Info("Pruned backup directories", "count", len(result.Removed), "bytes", result.BytesFreed)
	}
	return result, nil
}

// PruneSummaries removes run summaries older than the summary max age.
func (j *Janitor) PruneSummaries(now time.Time) (*PruneResult, error) {
	result := &PruneResult{}
	if j.cfg.SummaryMaxAge <= 0 {
		return result, nil
	}
	cutoff := now.Add(-j.cfg.SummaryMaxAge)

	entries, err := os.ReadDir(j.cfg.LogsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return result, err
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), summarySuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(j.cfg.LogsDir, entry.Name())
		if err := os.Remove(path); err != nil {
			return result, fmt.Errorf("remove summary %s: %w", path, err)
		}
		result.Removed = append(result.Removed, path)
		result.BytesFreed += info.Size()
	}

	if len(result.Removed) > 0 {
		slog.Info("Pruned run summaries", "count", len(result.Removed), "bytes", result.BytesFreed)
	}
	return result, nil
}

func dirSize(dir string) int64 {
	var size int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			size += info.Size()
		}
		return nil
	})
	return size
}
