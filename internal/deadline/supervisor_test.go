package deadline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vigilErrors "github.com/harunnryd/vigil/internal/errors"
)

func TestWithDeadlineReturnsBodyResult(t *testing.T) {
	s := New()

	err := s.WithDeadline(context.Background(), "plan", time.Second, Options{}, func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithDeadline(context.Background(), "plan", time.Second, Options{}, func(ctx context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, s.Active())
}

func TestWithDeadlineCooperativeBodyTimesOut(t *testing.T) {
	s := New()
	var timedOut atomic.Value

	err := s.WithDeadline(context.Background(), "action-1", 50*time.Millisecond, Options{
		OnTimeout: func(label string) { timedOut.Store(label) },
	}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, vigilErrors.ErrTimeout)
	te, ok := AsTimeout(err)
	require.True(t, ok)
	assert.Equal(t, "action-1", te.Label)
	assert.Equal(t, 50*time.Millisecond, te.Limit)
	assert.Equal(t, "action-1", timedOut.Load())
}

func TestWithDeadlineReturnsWhenBodyIgnoresContext(t *testing.T) {
	s := New()
	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	err := s.WithDeadline(context.Background(), "stuck", 50*time.Millisecond, Options{}, func(ctx context.Context) error {
		<-release
		return nil
	})

	assert.ErrorIs(t, err, vigilErrors.ErrTimeout)
	assert.Less(t, time.Since(start), time.Second)
	_, active := s.RemainingTime("stuck")
	assert.False(t, active)
}

func TestWithDeadlineWarnsBeforeExpiry(t *testing.T) {
	s := New()
	warned := make(chan time.Duration, 1)

	err := s.WithDeadline(context.Background(), "plan", 100*time.Millisecond, Options{
		OnWarn: func(label string, remaining time.Duration) { warned <- remaining },
	}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, vigilErrors.ErrTimeout)

	select {
	case remaining := <-warned:
		assert.LessOrEqual(t, remaining, 100*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("warning callback not called")
	}
}

func TestWithDeadlineDisarmsWarningOnFastExit(t *testing.T) {
	s := New()
	var warned atomic.Bool

	err := s.WithDeadline(context.Background(), "fast", 50*time.Millisecond, Options{
		OnWarn: func(string, time.Duration) { warned.Store(true) },
	}, func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.False(t, warned.Load())
}

func TestWithDeadlineRecoversPanics(t *testing.T) {
	s := New()

	err := s.WithDeadline(context.Background(), "panicky", time.Second, Options{}, func(ctx context.Context) error {
		panic("kaboom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Empty(t, s.Active())

	err = s.WithDeadline(context.Background(), "panicky-warn", 20*time.Millisecond, Options{
		OnWarn: func(string, time.Duration) { panic("warn panic") },
	}, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	assert.ErrorIs(t, err, vigilErrors.ErrTimeout)
}

func TestNestedScopeInnerTimeoutDoesNotAbortOuter(t *testing.T) {
	s := New()
	var order []string

	err := s.WithDeadline(context.Background(), "plan", time.Second, Options{}, func(ctx context.Context) error {
		inner := s.WithDeadline(ctx, "action", 30*time.Millisecond, Options{
			OnTimeout: func(label string) { order = append(order, "timeout:"+label) },
		}, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
		order = append(order, "returned")

		if te, ok := AsTimeout(inner); assert.True(t, ok) {
			assert.Equal(t, "action", te.Label)
		}

		_, planActive := s.RemainingTime("plan")
		assert.True(t, planActive)
		_, actionActive := s.RemainingTime("action")
		assert.False(t, actionActive)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"timeout:action", "returned"}, order)
}

func TestNestedScopeOuterTimeoutWins(t *testing.T) {
	s := New()
	err := s.WithDeadline(context.Background(), "plan", 40*time.Millisecond, Options{}, func(ctx context.Context) error {
		return s.WithDeadline(ctx, "action", time.Second, Options{}, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
	})

	te, ok := AsTimeout(err)
	require.True(t, ok)
	assert.Equal(t, "plan", te.Label)
}

func TestRemainingTime(t *testing.T) {
	s := New()

	_, ok := s.RemainingTime("plan")
	assert.False(t, ok)

	err := s.WithDeadline(context.Background(), "plan", time.Minute, Options{}, func(ctx context.Context) error {
		remaining, ok := s.RemainingTime("plan")
		assert.True(t, ok)
		assert.Greater(t, remaining, 50*time.Second)
		assert.LessOrEqual(t, remaining, time.Minute)
		assert.Equal(t, []string{"plan"}, s.Active())
		return nil
	})
	require.NoError(t, err)

	_, ok = s.RemainingTime("plan")
	assert.False(t, ok)
}

func TestWithDeadlineHonoursCancelledParent(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithDeadline(ctx, "plan", time.Second, Options{}, func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestWithDeadlineWithoutLimit(t *testing.T) {
	s := New()
	called := false
	err := s.WithDeadline(context.Background(), "unbounded", 0, Options{}, func(ctx context.Context) error {
		called = true
		_, hasDeadline := ctx.Deadline()
		assert.False(t, hasDeadline)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}
