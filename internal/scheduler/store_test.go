package scheduler

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vigilErrors "github.com/harunnryd/vigil/internal/errors"
)

var base = time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "janitor.json")
	s, err := NewStore(path)
	require.NoError(t, err)
	return s, path
}

func TestStore_RegisterComputesNextRun(t *testing.T) {
	s, _ := newStore(t)

	require.NoError(t, s.Register("prune", "@daily", base))

	tasks := s.Tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "prune", tasks[0].ID)
	assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), tasks[0].NextRun)
}

func TestStore_RegisterKeepsExistingSchedule(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.Register("prune", "@daily", base))

	require.NoError(t, s.Register("prune", "@daily", base.Add(48*time.Hour)))
	assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), s.Tasks()[0].NextRun)

	require.NoError(t, s.Register("prune", "@hourly", base))
	assert.Equal(t, base.Truncate(time.Hour).Add(time.Hour), s.Tasks()[0].NextRun)
}

func TestStore_RegisterRejectsBadSchedule(t *testing.T) {
	s, _ := newStore(t)
	err := s.Register("prune", "every tuesday", base)
	assert.True(t, errors.Is(err, vigilErrors.ErrInvalidInput))
	assert.Empty(t, s.Tasks())
}

func TestStore_DueAndLease(t *testing.T) {
	s, _ := newStore(t)
	require.NoError(t, s.Register("prune", "@hourly", base))

	assert.Empty(t, s.Due(base))

	later := base.Add(2 * time.Hour)
	require.Len(t, s.Due(later), 1)

	require.NoError(t, s.AcquireLease("prune", "run-1", later, later.Add(10*time.Minute)))
	assert.Empty(t, s.Due(later), "leased task is not due")

	err := s.AcquireLease("prune", "run-2", later, later.Add(10*time.Minute))
	assert.True(t, errors.Is(err, vigilErrors.ErrConflict))

	// An expired lease can be taken over.
	expired := later.Add(11 * time.Minute)
	require.Len(t, s.Due(expired), 1)
	require.NoError(t, s.AcquireLease("prune", "run-2", expired, expired.Add(10*time.Minute)))
}

func TestStore_CompleteReschedules(t *testing.T) {
	s, path := newStore(t)
	require.NoError(t, s.Register("prune", "@hourly", base))

	now := base.Add(2 * time.Hour)
	require.NoError(t, s.AcquireLease("prune", "run-1", now, now.Add(time.Minute)))

	err := s.Complete("prune", "run-other", now, nil)
	assert.True(t, errors.Is(err, vigilErrors.ErrConflict))

	result := &PruneResult{Removed: []string{"a"}, BytesFreed: 12}
	require.NoError(t, s.Complete("prune", "run-1", now, result))

	reopened, err := NewStore(path)
	require.NoError(t, err)
	task := reopened.Tasks()[0]
	assert.Nil(t, task.Lease)
	assert.Equal(t, now, task.LastRun.UTC())
	assert.Equal(t, now.Truncate(time.Hour).Add(time.Hour), task.NextRun.UTC())
	require.NotNil(t, task.LastResult)
	assert.Equal(t, int64(12), task.LastResult.BytesFreed)
}

func TestStore_UnknownTask(t *testing.T) {
	s, _ := newStore(t)
	assert.True(t, errors.Is(s.AcquireLease("nope", "r", base, base), vigilErrors.ErrNotFound))
	assert.True(t, errors.Is(s.Complete("nope", "r", base, nil), vigilErrors.ErrNotFound))
}
