package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func shortLockConfig(timeout time.Duration) *FileLockConfig {
	retry := 10 * time.Millisecond
	maxRetry := int(timeout / retry)
	if maxRetry < 1 {
		maxRetry = 1
	}
	return &FileLockConfig{
		LockTimeout:  timeout,
		LockRetry:    retry,
		LockMaxRetry: maxRetry,
	}
}

func TestFileLockLockUnlock(t *testing.T) {
	lock := NewFileLock(filepath.Join(t.TempDir(), "audit.lock"), nil)

	if err := lock.Lock(context.Background()); err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	if !lock.IsLocked() {
		t.Error("Expected lock to be held")
	}

	if err := lock.Unlock(); err != nil {
		t.Fatalf("Failed to release lock: %v", err)
	}
	if lock.IsLocked() {
		t.Error("Expected lock to be released after Unlock()")
	}

	// Reacquire after release.
	if err := lock.Lock(context.Background()); err != nil {
		t.Fatalf("Failed to reacquire lock: %v", err)
	}
	_ = lock.Unlock()
}

func TestFileLockDoubleLockInSameInstance(t *testing.T) {
	lock := NewFileLock(filepath.Join(t.TempDir(), "audit.lock"), shortLockConfig(50*time.Millisecond))
	if err := lock.Lock(context.Background()); err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Unlock()

	if err := lock.Lock(context.Background()); err == nil {
		t.Fatal("Expected second Lock on the same instance to fail")
	}
}

func TestFileLockConcurrentAcquire(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.lock")
	cfg := shortLockConfig(200 * time.Millisecond)

	lock1 := NewFileLock(path, cfg)
	if err := lock1.Lock(context.Background()); err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}

	lock2 := NewFileLock(path, cfg)
	start := time.Now()
	if err := lock2.Lock(context.Background()); err == nil {
		t.Fatal("Expected second lock to time out while the first is held")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Lock timeout took too long: %v", elapsed)
	}

	_ = lock1.Unlock()
	if err := lock2.Lock(context.Background()); err != nil {
		t.Fatalf("Expected second lock after release: %v", err)
	}
	_ = lock2.Unlock()
}

func TestFileLockSerializesWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.lock")
	cfg := shortLockConfig(5 * time.Second)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lock := NewFileLock(path, cfg)
			if err := lock.Lock(context.Background()); err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			_ = lock.Unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("Expected exclusive access, saw %d holders", maxSeen)
	}
}

func TestFileLockHonoursContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.lock")
	holder := NewFileLock(path, nil)
	if err := holder.Lock(context.Background()); err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer holder.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewFileLock(path, nil).Lock(ctx); err == nil {
		t.Fatal("Expected cancelled context to abort acquisition")
	}
}
