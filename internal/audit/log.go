// Package audit keeps a tamper-evident, append-only event trail. Each event
// carries the hash of its predecessor, so edits, deletions and reordering
// break verification.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"github.com/oklog/ulid/v2"

	vigilErrors "github.com/harunnryd/vigil/internal/errors"
	"github.com/harunnryd/vigil/internal/logger"
	"github.com/harunnryd/vigil/internal/store"
)

const (
	filePrefix         = "audit_"
	fileSuffix         = ".jsonl"
	fileDateLayout     = "20060102"
	integrityFile      = "integrity.json"
	indexFile          = "index.json"
	lockFile           = "audit.lock"
	defaultRecentLimit = 50
	redactedText       = "[REDACTED]"
)

type Options struct {
	RecentCriticalLimit int
	RedactPatterns      []string
	Lock                *store.FileLockConfig
	Now                 func() time.Time
}

// integrityRecord is the side-car pointing at the chain head.
type integrityRecord struct {
	LastHash  string    `json:"last_hash"`
	LastFile  string    `json:"last_file"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Log struct {
	dir         string
	mu          sync.Mutex
	lock        *store.FileLock
	redact      []*regexp.Regexp
	recentLimit int
	now         func() time.Time
}

// Open prepares dir for appending. A missing or unreadable integrity side-car
// is rebuilt from the event files.
func Open(ctx context.Context, dir string, opts Options) (*Log, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	l := &Log{
		dir:         dir,
		lock:        store.NewFileLock(filepath.Join(dir, lockFile), opts.Lock),
		recentLimit: opts.RecentCriticalLimit,
		now:         opts.Now,
	}
	if l.recentLimit <= 0 {
		l.recentLimit = defaultRecentLimit
	}
	if l.now == nil {
		l.now = time.Now
	}
	for _, pattern := range opts.RedactPatterns {
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			re = regexp.MustCompile(regexp.QuoteMeta(pattern))
		}
		l.redact = append(l.redact, re)
	}

	if _, err := l.readIntegrity(); err != nil {
		slog.Warn("Audit integrity record unavailable, rebuilding", "dir", dir, "error", err)
		if _, err := l.RecoverLastHash(ctx); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Log) Dir() string {
	return l.dir
}

// Append links ev to the chain head, persists it and advances the head.
func (l *Log) Append(ctx context.Context, ev *Event) (string, error) {
	if ev == nil {
		return "", vigilErrors.InvalidInput("audit event is nil")
	}
	if ev.Type == "" {
		return "", vigilErrors.InvalidInput("audit event has no type")
	}
	if ev.Severity == "" {
		ev.Severity = SeverityInfo
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lock.Lock(ctx); err != nil {
		return "", fmt.Errorf("lock audit log: %w", err)
	}
	defer l.lock.Unlock()

	head, err := l.readIntegrity()
	if err != nil {
		head, err = l.recoverLocked()
		if err != nil {
			return "", err
		}
	}

	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}
	ev.Timestamp = l.now().UTC()
	ev.WithContext("plan_id", logger.GetPlanID(ctx))
	ev.WithContext("run_id", logger.GetRunID(ctx))
	l.redactDetails(ev)

	ev.PreviousHash = head.LastHash
	ev.Hash = ""
	hash, err := hashEvent(ev)
	if err != nil {
		return "", fmt.Errorf("hash audit event: %w", err)
	}
	ev.Hash = hash

	line, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal audit event: %w", err)
	}

	// Never move back to an earlier file, even if the clock does.
	name := fileName(ev.Timestamp)
	if head.LastFile > name {
		name = head.LastFile
	}
	if err := appendLine(filepath.Join(l.dir, name), line); err != nil {
		return "", err
	}

	if err := l.writeIntegrity(integrityRecord{LastHash: hash, LastFile: name, UpdatedAt: ev.Timestamp}); err != nil {
		return "", err
	}
	if err := l.updateIndex(ev); err != nil {
		slog.Warn("Failed to update audit index", "error", err)
	}

	slog.Debug("Audit event appended", "event_id", ev.ID, "type", ev.Type, "severity", ev.Severity)
	return ev.ID, nil
}

// LastHash returns the hash of the most recent event, or "" for an empty log.
func (l *Log) LastHash() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, err := l.readIntegrity()
	if err != nil {
		return "", err
	}
	return rec.LastHash, nil
}

// RecoverLastHash re-derives the chain head from the event files and rewrites
// the integrity side-car.
func (l *Log) RecoverLastHash(ctx context.Context) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.lock.Lock(ctx); err != nil {
		return "", fmt.Errorf("lock audit log: %w", err)
	}
	defer l.lock.Unlock()

	rec, err := l.recoverLocked()
	if err != nil {
		return "", err
	}
	return rec.LastHash, nil
}

func (l *Log) recoverLocked() (integrityRecord, error) {
	files, err := l.files()
	if err != nil {
		return integrityRecord{}, err
	}

	rec := integrityRecord{UpdatedAt: l.now().UTC()}
	for i := len(files) - 1; i >= 0 && rec.LastHash == ""; i-- {
		lines, err := readLines(filepath.Join(l.dir, files[i]))
		if err != nil {
			return integrityRecord{}, err
		}
		for j := len(lines) - 1; j >= 0; j-- {
			var head struct {
				Hash string `json:"hash"`
			}
			if err := json.Unmarshal(lines[j], &head); err == nil && head.Hash != "" {
				rec.LastHash = head.Hash
				rec.LastFile = files[i]
				break
			}
		}
	}

	if err := l.writeIntegrity(rec); err != nil {
		return integrityRecord{}, err
	}
	slog.Info("Audit chain head recovered", "dir", l.dir, "files", len(files))
	return rec, nil
}

func (l *Log) readIntegrity() (integrityRecord, error) {
	var rec integrityRecord
	content, err := os.ReadFile(filepath.Join(l.dir, integrityFile))
	if err != nil {
		if os.IsNotExist(err) {
			return rec, l.emptyIntegrity()
		}
		return rec, err
	}
	if err := json.Unmarshal(content, &rec); err != nil {
		return rec, fmt.Errorf("decode integrity record: %w", err)
	}
	return rec, nil
}

// emptyIntegrity is nil for a log with no events yet, so a fresh directory
// needs no recovery pass.
func (l *Log) emptyIntegrity() error {
	files, err := l.files()
	if err != nil {
		return err
	}
	if len(files) > 0 {
		return fmt.Errorf("integrity record missing for %d audit files", len(files))
	}
	return nil
}

func (l *Log) writeIntegrity(rec integrityRecord) error {
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(filepath.Join(l.dir, integrityFile), bytes.NewReader(b))
}

func (l *Log) redactDetails(ev *Event) {
	if len(l.redact) == 0 {
		return
	}
	for k, v := range ev.Details {
		ev.Details[k] = l.redactValue(v)
	}
}

func (l *Log) redactValue(v any) any {
	switch val := v.(type) {
	case string:
		for _, re := range l.redact {
			val = re.ReplaceAllString(val, redactedText)
		}
		return val
	case []string:
		out := make([]string, len(val))
		for i, s := range val {
			out[i] = l.redactValue(s).(string)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = l.redactValue(inner)
		}
		return out
	default:
		return v
	}
}

// files returns the event file names in chain order.
func (l *Log) files() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func fileName(t time.Time) string {
	return filePrefix + t.UTC().Format(fileDateLayout) + fileSuffix
}

func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return f.Sync()
}

func readLines(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines [][]byte
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}
