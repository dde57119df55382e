package scheduler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"github.com/robfig/cron/v3"

	vigilErrors "github.com/harunnryd/vigil/internal/errors"
)

type LeaseStatus string

const (
	StatusLeased LeaseStatus = "leased"
)

// Lease keeps two janitor processes from pruning the same task at once.
type Lease struct {
	RunID     string      `json:"run_id"`
	Status    LeaseStatus `json:"status"`
	ExpiresAt time.Time   `json:"expires_at"`
}

type Task struct {
	ID         string       `json:"id"`
	Schedule   string       `json:"schedule"`
	NextRun    time.Time    `json:"next_run"`
	LastRun    time.Time    `json:"last_run,omitempty"`
	LastResult *PruneResult `json:"last_result,omitempty"`
	Lease      *Lease       `json:"lease,omitempty"`
}

type state struct {
	Tasks map[string]*Task `json:"tasks"`
}

// Store persists janitor task state as one JSON document.
type Store struct {
	path string
	data state
	mu   sync.RWMutex
}

func NewStore(path string) (*Store, error) {
	s := &Store{
		path: path,
		data: state{Tasks: make(map[string]*Task)},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(content) == 0 {
		return nil
	}
	if err := json.Unmarshal(content, &s.data); err != nil {
		return fmt.Errorf("decode janitor state: %w", err)
	}
	if s.data.Tasks == nil {
		s.data.Tasks = make(map[string]*Task)
	}
	return nil
}

// save writes the state; the caller holds the lock.
func (s *Store) save() error {
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(s.path, bytes.NewReader(b))
}

// Register adds task id or updates its schedule. A new or rescheduled task
// first fires at the schedule's next activation after now.
func (s *Store) Register(id, schedule string, now time.Time) error {
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return vigilErrors.InvalidInput(fmt.Sprintf("invalid cron schedule %q: %v", schedule, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.data.Tasks[id]
	if ok && t.Schedule == schedule && !t.NextRun.IsZero() {
		return nil
	}
	if !ok {
		t = &Task{ID: id}
		s.data.Tasks[id] = t
	}
	t.Schedule = schedule
	t.NextRun = sched.Next(now)
	return s.save()
}

// Tasks returns copies of every task, ordered by id.
func (s *Store) Tasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks := make([]Task, 0, len(s.data.Tasks))
	for _, t := range s.data.Tasks {
		tasks = append(tasks, *t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}

// Due returns the tasks whose next run is at or before now and that hold no
// live lease.
func (s *Store) Due(now time.Time) []Task {
	var due []Task
	for _, t := range s.Tasks() {
		if t.NextRun.After(now) {
			continue
		}
		if t.Lease != nil && now.Before(t.Lease.ExpiresAt) {
			continue
		}
		due = append(due, t)
	}
	return due
}

func (s *Store) AcquireLease(id, runID string, now, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.data.Tasks[id]
	if !ok {
		return vigilErrors.NotFound(fmt.Sprintf("janitor task %s", id))
	}
	if t.Lease != nil && t.Lease.Status == StatusLeased && now.Before(t.Lease.ExpiresAt) {
		return vigilErrors.Conflict(fmt.Sprintf("janitor task %s is leased by run %s", id, t.Lease.RunID))
	}

	t.Lease = &Lease{RunID: runID, Status: StatusLeased, ExpiresAt: expiresAt}
	return s.save()
}

// Complete releases the lease of runID and schedules the next run after now.
func (s *Store) Complete(id, runID string, now time.Time, result *PruneResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.data.Tasks[id]
	if !ok {
		return vigilErrors.NotFound(fmt.Sprintf("janitor task %s", id))
	}
	if t.Lease == nil || t.Lease.RunID != runID {
		return vigilErrors.Conflict(fmt.Sprintf("janitor task %s: lease mismatch", id))
	}

	sched, err := cron.ParseStandard(t.Schedule)
	if err != nil {
		return vigilErrors.InvalidInput(fmt.Sprintf("invalid cron schedule %q: %v", t.Schedule, err))
	}

	t.Lease = nil
	t.LastRun = now
	t.LastResult = result
	t.NextRun = sched.Next(now)
	return s.save()
}
