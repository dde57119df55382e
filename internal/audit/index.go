package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
)

type Statistics struct {
	TotalEvents      int               `json:"total_events" yaml:"total_events"`
	EventsByType     map[EventType]int `json:"events_by_type" yaml:"events_by_type"`
	EventsBySeverity map[Severity]int  `json:"events_by_severity" yaml:"events_by_severity"`
	LastUpdated      time.Time         `json:"last_updated" yaml:"last_updated"`
}

// EventRef is the index entry kept for recent error and critical events.
type EventRef struct {
	ID        string            `json:"event_id" yaml:"event_id"`
	Type      EventType         `json:"event_type" yaml:"event_type"`
	Severity  Severity          `json:"severity" yaml:"severity"`
	Timestamp time.Time         `json:"timestamp" yaml:"timestamp"`
	Context   map[string]string `json:"operation_context,omitempty" yaml:"operation_context,omitempty"`
}

type index struct {
	Statistics     Statistics `json:"statistics"`
	RecentCritical []EventRef `json:"recent_critical"`
}

func newIndex() index {
	return index{
		Statistics: Statistics{
			EventsByType:     make(map[EventType]int),
			EventsBySeverity: make(map[Severity]int),
		},
		RecentCritical: []EventRef{},
	}
}

func (idx *index) add(ev *Event, limit int) {
	idx.Statistics.TotalEvents++
	idx.Statistics.EventsByType[ev.Type]++
	idx.Statistics.EventsBySeverity[ev.Severity]++
	idx.Statistics.LastUpdated = ev.Timestamp

	if ev.Severity.rank() >= SeverityError.rank() {
		idx.RecentCritical = append(idx.RecentCritical, EventRef{
			ID:        ev.ID,
			Type:      ev.Type,
			Severity:  ev.Severity,
			Timestamp: ev.Timestamp,
			Context:   ev.Context,
		})
		if over := len(idx.RecentCritical) - limit; over > 0 {
			idx.RecentCritical = idx.RecentCritical[over:]
		}
	}
}

func (l *Log) readIndex() (index, error) {
	idx := newIndex()
	content, err := os.ReadFile(filepath.Join(l.dir, indexFile))
	if err != nil {
		return idx, err
	}
	if err := json.Unmarshal(content, &idx); err != nil {
		return newIndex(), fmt.Errorf("decode audit index: %w", err)
	}
	if idx.Statistics.EventsByType == nil {
		idx.Statistics.EventsByType = make(map[EventType]int)
	}
	if idx.Statistics.EventsBySeverity == nil {
		idx.Statistics.EventsBySeverity = make(map[Severity]int)
	}
	return idx, nil
}

func (l *Log) writeIndex(idx index) error {
	b, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(filepath.Join(l.dir, indexFile), bytes.NewReader(b))
}

// updateIndex folds ev into the index side-car, rebuilding it when absent or corrupt.
func (l *Log) updateIndex(ev *Event) error {
	idx, err := l.readIndex()
	if err != nil {
		return l.rebuildIndexLocked()
	}
	idx.add(ev, l.recentLimit)
	return l.writeIndex(idx)
}

// RebuildIndex recomputes the index side-car from the event files.
func (l *Log) RebuildIndex(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lock.Lock(ctx); err != nil {
		return fmt.Errorf("lock audit log: %w", err)
	}
	defer l.lock.Unlock()

	return l.rebuildIndexLocked()
}

func (l *Log) rebuildIndexLocked() error {
	idx := newIndex()
	err := l.walk(func(_ string, _ int, line []byte) error {
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil
		}
		idx.add(&ev, l.recentLimit)
		return nil
	})
	if err != nil {
		return err
	}
	return l.writeIndex(idx)
}

// walk calls fn for every non-blank line of every event file, in chain order.
func (l *Log) walk(fn func(file string, lineNo int, line []byte) error) error {
	files, err := l.files()
	if err != nil {
		return err
	}
	for _, name := range files {
		lines, err := readLines(filepath.Join(l.dir, name))
		if err != nil {
			return err
		}
		for i, line := range lines {
			if err := fn(name, i+1, line); err != nil {
				return err
			}
		}
	}
	return nil
}
