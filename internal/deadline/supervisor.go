// Package deadline bounds how long a labelled piece of work may run. Scopes
// nest: a run-wide scope and a per-action scope apply together and whichever
// expires first wins.
package deadline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/vigil/internal/concurrency"
	vigilErrors "github.com/harunnryd/vigil/internal/errors"
	"github.com/harunnryd/vigil/internal/logger"
)

// DefaultWarnFraction is the share of the limit after which OnWarn fires.
const DefaultWarnFraction = 0.8

// TimeoutError is returned by WithDeadline when its own limit elapses.
type TimeoutError struct {
	Label string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s exceeded its deadline of %s", e.Label, e.Limit)
}

func (e *TimeoutError) Unwrap() error {
	return vigilErrors.ErrTimeout
}

// AsTimeout extracts the TimeoutError from err, if any.
func AsTimeout(err error) (*TimeoutError, bool) {
	var te *TimeoutError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}

type Options struct {
	// OnWarn runs on a timer goroutine and must only log or notify.
	OnWarn func(label string, remaining time.Duration)
	// OnTimeout runs on the caller goroutine before WithDeadline returns.
	OnTimeout    func(label string)
	WarnFraction float64
}

type scope struct {
	deadline time.Time
}

type Supervisor struct {
	mu     sync.Mutex
	scopes map[string][]*scope
}

func New() *Supervisor {
	return &Supervisor{scopes: make(map[string][]*scope)}
}

// WithDeadline runs body under a scope labelled label that expires after d.
// The body receives a context cancelled at the deadline with a *TimeoutError
// cause. WithDeadline returns at the deadline even when body ignores its
// context; such a body keeps running in the background until it notices.
// A non-positive d runs body without a limit.
func (s *Supervisor) WithDeadline(ctx context.Context, label string, d time.Duration, opts Options, body func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}

	if d <= 0 {
		var err error
		if perr := concurrency.SafeCall(func() { err = body(ctx) }, nil); perr != nil {
			return fmt.Errorf("%s: %w", label, perr)
		}
		return err
	}

	timeoutErr := &TimeoutError{Label: label, Limit: d}
	scopeCtx, cancel := context.WithTimeoutCause(ctx, d, timeoutErr)
	defer cancel()

	sc := &scope{deadline: time.Now().Add(d)}
	s.register(label, sc)
	defer s.unregister(label, sc)

	if opts.OnWarn != nil {
		fraction := opts.WarnFraction
		if fraction <= 0 || fraction >= 1 {
			fraction = DefaultWarnFraction
		}
		warn := time.AfterFunc(time.Duration(float64(d)*fraction), func() {
			remaining := time.Until(sc.deadline)
			_ = concurrency.SafeCall(func() { opts.OnWarn(label, remaining) }, nil)
		})
		defer warn.Stop()
	}

	done := make(chan error, 1)
	go func() {
		var err error
		if perr := concurrency.SafeCall(func() { err = body(scopeCtx) }, nil); perr != nil {
			err = fmt.Errorf("%s: %w", label, perr)
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil && context.Cause(scopeCtx) == error(timeoutErr) {
			return s.expired(ctx, timeoutErr, opts)
		}
		return err
	case <-scopeCtx.Done():
		cause := context.Cause(scopeCtx)
		if cause == error(timeoutErr) {
			return s.expired(ctx, timeoutErr, opts)
		}
		// An enclosing scope or the caller gave up first.
		return cause
	}
}

func (s *Supervisor) expired(ctx context.Context, te *TimeoutError, opts Options) error {
	attrs := append([]any{"label", te.Label, "limit", te.Limit}, logger.Attrs(ctx)...)
	slog.Warn("Deadline exceeded", attrs...)
	if opts.OnTimeout != nil {
		if err := concurrency.SafeCall(func() { opts.OnTimeout(te.Label) }, nil); err != nil {
			slog.Error("Timeout callback failed", "label", te.Label, "error", err)
		}
	}
	return te
}

// RemainingTime returns the time left on the innermost active scope named
// label.
func (s *Supervisor) RemainingTime(label string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stack := s.scopes[label]
	if len(stack) == 0 {
		return 0, false
	}
	remaining := time.Until(stack[len(stack)-1].deadline)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Active lists the labels of all open scopes.
func (s *Supervisor) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	labels := make([]string, 0, len(s.scopes))
	for label := range s.scopes {
		labels = append(labels, label)
	}
	return labels
}

func (s *Supervisor) register(label string, sc *scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[label] = append(s.scopes[label], sc)
}

func (s *Supervisor) unregister(label string, sc *scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stack := s.scopes[label]
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == sc {
			stack = append(stack[:i], stack[i+1:]...)
			break
		}
	}
	if len(stack) == 0 {
		delete(s.scopes, label)
		return
	}
	s.scopes[label] = stack
}
