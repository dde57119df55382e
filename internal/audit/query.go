package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"
)

type Filter struct {
	Types       []EventType
	MinSeverity Severity
	Since       time.Time
	Until       time.Time
	PlanID      string
	RunID       string
	// Limit keeps only the most recent matches when positive.
	Limit int
}

func (f *Filter) matches(ev *Event) bool {
	if len(f.Types) > 0 && !slices.Contains(f.Types, ev.Type) {
		return false
	}
	if f.MinSeverity != "" && ev.Severity.rank() < f.MinSeverity.rank() {
		return false
	}
	if !f.Since.IsZero() && ev.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && ev.Timestamp.After(f.Until) {
		return false
	}
	if f.PlanID != "" && ev.Context["plan_id"] != f.PlanID {
		return false
	}
	if f.RunID != "" && ev.Context["run_id"] != f.RunID {
		return false
	}
	return true
}

// Query returns matching events in chain order. Unparseable lines are skipped.
func (l *Log) Query(ctx context.Context, filter *Filter) ([]*Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var events []*Event
	err := l.walk(func(file string, entry int, line []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			slog.Warn("Failed to parse audit event", "file", file, "entry", entry, "error", err)
			return nil
		}
		if filter == nil || filter.matches(&ev) {
			events = append(events, &ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if filter != nil && filter.Limit > 0 && len(events) > filter.Limit {
		events = events[len(events)-filter.Limit:]
	}
	return events, nil
}

// Tail returns the last n events.
func (l *Log) Tail(ctx context.Context, n int) ([]*Event, error) {
	return l.Query(ctx, &Filter{Limit: n})
}

type Summary struct {
	Statistics     Statistics `json:"statistics" yaml:"statistics"`
	RecentCritical []EventRef `json:"recent_critical" yaml:"recent_critical"`
	LastHash       string     `json:"last_hash" yaml:"last_hash"`
	IntegrityOK    bool       `json:"integrity_ok" yaml:"integrity_ok"`
	IntegrityError string     `json:"integrity_error,omitempty" yaml:"integrity_error,omitempty"`
}

// Summary combines the index side-car with a fresh verification pass.
func (l *Log) Summary(ctx context.Context) (*Summary, error) {
	verifyErr := l.Verify(ctx)
	var integrityErr *IntegrityError
	if verifyErr != nil && !errors.As(verifyErr, &integrityErr) {
		return nil, verifyErr
	}

	l.mu.Lock()
	idx, err := l.readIndex()
	l.mu.Unlock()
	if err != nil && !os.IsNotExist(err) {
		slog.Warn("Audit index unreadable, rebuilding", "error", err)
	}
	if err != nil {
		if err := l.RebuildIndex(ctx); err != nil {
			return nil, fmt.Errorf("rebuild audit index: %w", err)
		}
		l.mu.Lock()
		idx, err = l.readIndex()
		l.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}

	head, err := l.LastHash()
	if err != nil {
		return nil, err
	}

	s := &Summary{
		Statistics:     idx.Statistics,
		RecentCritical: idx.RecentCritical,
		LastHash:       head,
		IntegrityOK:    verifyErr == nil,
	}
	if verifyErr != nil {
		s.IntegrityError = verifyErr.Error()
	}
	return s, nil
}
