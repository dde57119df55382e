package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/vigil/internal/config"

	"github.com/gofrs/flock"
)

// FileLock is a cross-process advisory lock on a single file. It can be
// acquired and released repeatedly.
type FileLock struct {
	fileLock   *flock.Flock
	lockPath   string
	cfg        FileLockConfig
	acquiredAt time.Time
	held       bool
	mu         sync.Mutex
}

type FileLockConfig struct {
	LockTimeout  time.Duration
	LockRetry    time.Duration
	LockMaxRetry int
}

func DefaultFileLockConfig() *FileLockConfig {
	lockTimeout, _ := config.DurationOrDefault(config.DefaultStoreLockTimeout, config.DefaultStoreLockTimeout)
	lockRetry, _ := config.DurationOrDefault(config.DefaultStoreLockRetry, config.DefaultStoreLockRetry)

	return &FileLockConfig{
		LockTimeout:  lockTimeout,
		LockRetry:    lockRetry,
		LockMaxRetry: config.DefaultStoreLockMaxRetry,
	}
}

// FileLockConfigFrom reads the store section of the loaded configuration.
func FileLockConfigFrom(cfg config.StoreConfig) (*FileLockConfig, error) {
	lockTimeout, err := config.DurationOrDefault(cfg.LockTimeout, config.DefaultStoreLockTimeout)
	if err != nil {
		return nil, err
	}
	lockRetry, err := config.DurationOrDefault(cfg.LockRetry, config.DefaultStoreLockRetry)
	if err != nil {
		return nil, err
	}
	maxRetry := cfg.LockMaxRetry
	if maxRetry <= 0 {
		maxRetry = config.DefaultStoreLockMaxRetry
	}
	return &FileLockConfig{LockTimeout: lockTimeout, LockRetry: lockRetry, LockMaxRetry: maxRetry}, nil
}

func NewFileLock(lockPath string, cfg *FileLockConfig) *FileLock {
	if cfg == nil {
		cfg = DefaultFileLockConfig()
	}
	return &FileLock{
		fileLock: flock.New(lockPath),
		lockPath: lockPath,
		cfg:      *cfg,
	}
}

// Lock blocks until the lock is held, ctx is done, or the configured timeout
// or retry budget runs out.
func (fl *FileLock) Lock(ctx context.Context) error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.held {
		return fmt.Errorf("lock %s already held by this process", fl.lockPath)
	}

	ctx, cancel := context.WithTimeout(ctx, fl.cfg.LockTimeout)
	defer cancel()

	if err := fl.acquireWithRetry(ctx); err != nil {
		return err
	}

	fl.held = true
	fl.acquiredAt = time.Now()
	slog.Debug("File lock acquired", "path", fl.lockPath)
	return nil
}

func (fl *FileLock) acquireWithRetry(ctx context.Context) error {
	for i := 0; i < fl.cfg.LockMaxRetry; i++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("lock acquisition cancelled: %w", ctx.Err())
		default:
			locked, err := fl.fileLock.TryLock()
			if err != nil {
				return fmt.Errorf("failed to attempt lock: %w", err)
			}
			if locked {
				return nil
			}

			if i < fl.cfg.LockMaxRetry-1 {
				select {
				case <-ctx.Done():
				case <-time.After(fl.cfg.LockRetry):
				}
			}
		}
	}

	return fmt.Errorf("%s is locked by another process (timeout after %v)", fl.lockPath, fl.cfg.LockTimeout)
}

func (fl *FileLock) Unlock() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if !fl.held {
		slog.Warn("FileLock already unlocked", "path", fl.lockPath)
		return nil
	}

	heldDuration := time.Since(fl.acquiredAt)
	if err := fl.fileLock.Unlock(); err != nil {
		slog.Error("Failed to release file lock", "path", fl.lockPath, "error", err)
		return err
	}
	fl.held = false
	slog.Debug("File lock released", "path", fl.lockPath, "held_duration_ms", heldDuration.Milliseconds())
	return nil
}

func (fl *FileLock) IsLocked() bool {
	fl.mu.Lock()
	defer fl.mu.Unlock()
	return fl.held
}

func (fl *FileLock) Path() string {
	return fl.lockPath
}
