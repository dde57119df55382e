package audit

import (
	"context"
	"fmt"

	vigilErrors "github.com/harunnryd/vigil/internal/errors"
)

// IntegrityError describes the first point where the chain fails to verify.
type IntegrityError struct {
	File   string
	Entry  int
	Reason string
}

func (e *IntegrityError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("audit chain broken: %s", e.Reason)
	}
	return fmt.Sprintf("audit chain broken at %s entry %d: %s", e.File, e.Entry, e.Reason)
}

func (e *IntegrityError) Unwrap() error {
	return vigilErrors.ErrIntegrity
}

func short(hash string) string {
	if len(hash) > 16 {
		return hash[:16] + "..."
	}
	return hash
}

// Verify walks every event in chain order, checking previous-hash linkage and
// recomputing each hash. The final hash must match the integrity side-car.
func (l *Log) Verify(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lock.Lock(ctx); err != nil {
		return fmt.Errorf("lock audit log: %w", err)
	}
	defer l.lock.Unlock()

	expectedPrev := ""
	count := 0
	err := l.walk(func(file string, entry int, line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		canonical, stored, err := canonicalize(line)
		if err != nil {
			return &IntegrityError{File: file, Entry: entry, Reason: "malformed event: " + err.Error()}
		}
		prev, _ := stored["previous_hash"].(string)
		hash, _ := stored["hash"].(string)

		if prev != expectedPrev {
			return &IntegrityError{File: file, Entry: entry, Reason: fmt.Sprintf("previous_hash mismatch: expected %s, got %s", short(expectedPrev), short(prev))}
		}
		if computed := chainHash(canonical, prev); computed != hash {
			return &IntegrityError{File: file, Entry: entry, Reason: fmt.Sprintf("hash mismatch: expected %s, got %s", short(computed), short(hash))}
		}

		expectedPrev = hash
		count++
		return nil
	})
	if err != nil {
		return err
	}

	rec, err := l.readIntegrity()
	if err != nil {
		return &IntegrityError{Reason: "integrity record unreadable: " + err.Error()}
	}
	if rec.LastHash != expectedPrev {
		return &IntegrityError{Reason: fmt.Sprintf("chain head %s does not match integrity record %s after %d events", short(expectedPrev), short(rec.LastHash), count)}
	}
	return nil
}

// VerifyIntegrity reports whether Verify succeeds.
func (l *Log) VerifyIntegrity(ctx context.Context) bool {
	return l.Verify(ctx) == nil
}
