package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type janitorDirs struct {
	backups string
	logs    string
	state   string
}

func newJanitor(t *testing.T, schedule string) (*Janitor, janitorDirs) {
	t.Helper()
	root := t.TempDir()
	dirs := janitorDirs{
		backups: filepath.Join(root, "backups"),
		logs:    filepath.Join(root, "logs"),
		state:   filepath.Join(root, "janitor.json"),
	}
	require.NoError(t, os.MkdirAll(dirs.backups, 0755))
	require.NoError(t, os.MkdirAll(dirs.logs, 0755))

	j, err := NewJanitor(Config{
		BackupsDir:    dirs.backups,
		LogsDir:       dirs.logs,
		StatePath:     dirs.state,
		Schedule:      schedule,
		BackupMaxAge:  24 * time.Hour,
		SummaryMaxAge: 48 * time.Hour,
		TickInterval:  10 * time.Millisecond,
	})
	require.NoError(t, err)
	j.now = func() time.Time { return base }
	return j, dirs
}

func touch(t *testing.T, path string, content string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func backupRun(t *testing.T, dir, run string, mod time.Time) string {
	t.Helper()
	runDir := filepath.Join(dir, run)
	touch(t, filepath.Join(runDir, "a.txt.backup"), "12345", mod)
	touch(t, filepath.Join(runDir, "nested", "b.txt.backup"), "678", mod)
	require.NoError(t, os.Chtimes(runDir, mod, mod))
	return runDir
}

func TestNewJanitor_RejectsBadConfig(t *testing.T) {
	_, err := NewJanitor(Config{Schedule: "bogus", BackupsDir: "b", LogsDir: "l", StatePath: "s"})
	assert.Error(t, err)

	_, err = NewJanitor(Config{Schedule: "@daily"})
	assert.Error(t, err)
}

func TestPruneBackups_RemovesOnlyOldRuns(t *testing.T) {
	j, dirs := newJanitor(t, "@daily")

	old := backupRun(t, dirs.backups, "run-old", base.Add(-48*time.Hour))
	fresh := backupRun(t, dirs.backups, "run-fresh", base.Add(-time.Hour))
	touch(t, filepath.Join(dirs.backups, "stray.txt"), "x", base.Add(-96*time.Hour))

	result, err := j.PruneBackups(base)
	require.NoError(t, err)
	assert.Equal(t, []string{old}, result.Removed)
	assert.Equal(t, int64(8), result.BytesFreed)

	assert.NoDirExists(t, old)
	assert.DirExists(t, fresh)
	assert.FileExists(t, filepath.Join(dirs.backups, "stray.txt"))
}

func TestPruneSummaries_RemovesOnlyOldSummaries(t *testing.T) {
	j, dirs := newJanitor(t, "@daily")

	old := filepath.Join(dirs.logs, "run-old_summary.json")
	fresh := filepath.Join(dirs.logs, "run-new_summary.json")
	other := filepath.Join(dirs.logs, "notes.txt")
	touch(t, old, "{}", base.Add(-72*time.Hour))
	touch(t, fresh, "{}", base.Add(-time.Hour))
	touch(t, other, "keep", base.Add(-72*time.Hour))

	result, err := j.PruneSummaries(base)
	require.NoError(t, err)
	assert.Equal(t, []string{old}, result.Removed)
	assert.Equal(t, int64(2), result.BytesFreed)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
}

func TestPruneOnce_ZeroAgeDisables(t *testing.T) {
	j, dirs := newJanitor(t, "@daily")
	j.cfg.BackupMaxAge = 0

	old := backupRun(t, dirs.backups, "run-old", base.Add(-480*time.Hour))
	summary := filepath.Join(dirs.logs, "run-old_summary.json")
	touch(t, summary, "{}", base.Add(-480*time.Hour))

	result, err := j.PruneOnce(base)
	require.NoError(t, err)
	assert.Equal(t, []string{summary}, result.Removed)
	assert.DirExists(t, old)
}

func TestPruneOnce_MissingDirectories(t *testing.T) {
	j, dirs := newJanitor(t, "@daily")
	require.NoError(t, os.RemoveAll(dirs.backups))
	require.NoError(t, os.RemoveAll(dirs.logs))

	result, err := j.PruneOnce(base)
	require.NoError(t, err)
	assert.Empty(t, result.Removed)
}

func TestRunDue_RespectsSchedule(t *testing.T) {
	j, dirs := newJanitor(t, "@hourly")
	require.NoError(t, j.Init(context.Background()))

	old := backupRun(t, dirs.backups, "run-old", base.Add(-72*time.Hour))

	assert.Equal(t, 0, j.RunDue(context.Background()))
	assert.DirExists(t, old)

	j.now = func() time.Time { return base.Add(time.Hour) }
	assert.Equal(t, 2, j.RunDue(context.Background()))
	assert.NoDirExists(t, old)

	for _, task := range j.Store().Tasks() {
		assert.Nil(t, task.Lease)
		assert.Equal(t, base.Add(time.Hour), task.LastRun.UTC())
		assert.True(t, task.NextRun.After(base.Add(time.Hour)))
	}

	assert.Equal(t, 0, j.RunDue(context.Background()))
}

func TestJanitorLifecycle(t *testing.T) {
	j, dirs := newJanitor(t, "@hourly")
	assert.Error(t, j.Start(context.Background()), "start before init")

	ctx := context.Background()
	require.NoError(t, j.Init(ctx))
	// Both tasks are due by the time the janitor starts.
	j.now = func() time.Time { return base.Add(2 * time.Hour) }

	summary := filepath.Join(dirs.logs, "run-old_summary.json")
	touch(t, summary, "{}", base.Add(-96*time.Hour))

	require.NoError(t, j.Start(ctx))
	assert.True(t, j.IsRunning())
	assert.NoError(t, j.Health(ctx))
	assert.NoFileExists(t, summary, "due tasks run on start")

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, j.Stop(stopCtx))
	assert.False(t, j.IsRunning())
	assert.Error(t, j.Health(ctx))
	assert.NoError(t, j.Stop(stopCtx))
}
