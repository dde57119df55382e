package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/natefinch/atomic"

	vigilErrors "github.com/harunnryd/vigil/internal/errors"
)

// Store persists one JSON document per plan under dir.
type Store struct {
	dir string
	mu  sync.RWMutex
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create plan dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", vigilErrors.InvalidInput(fmt.Sprintf("invalid plan id %q", id))
	}
	return filepath.Join(s.dir, id+".json"), nil
}

func (s *Store) Save(p *ExecutionPlan) error {
	if p == nil {
		return vigilErrors.InvalidInput("plan is nil")
	}
	path, err := s.path(p.ID)
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal plan %s: %w", p.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return atomic.WriteFile(path, bytes.NewReader(b))
}

func (s *Store) Load(id string) (*ExecutionPlan, error) {
	path, err := s.path(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return readPlan(path)
}

func readPlan(path string) (*ExecutionPlan, error) {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, vigilErrors.NotFound(fmt.Sprintf("plan %s", strings.TrimSuffix(filepath.Base(path), ".json")))
	}
	if err != nil {
		return nil, err
	}

	var p ExecutionPlan
	if err := json.Unmarshal(content, &p); err != nil {
		return nil, fmt.Errorf("decode plan %s: %v: %w", filepath.Base(path), err, vigilErrors.ErrInvalidInput)
	}
	if p.Status == "" {
		return nil, vigilErrors.InvalidInput(fmt.Sprintf("plan %s has no status", p.ID))
	}
	// Totals, risk and the backup flag follow from the actions, not the file.
	p.derive()
	return &p, nil
}

// List returns stored plans, newest first. An empty filter returns every status.
// Unreadable documents are skipped.
func (s *Store) List(filter ...Status) ([]*ExecutionPlan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	plans := make([]*ExecutionPlan, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		p, err := readPlan(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		if len(filter) > 0 && !containsStatus(filter, p.Status) {
			continue
		}
		plans = append(plans, p)
	}

	sort.Slice(plans, func(i, j int) bool {
		return plans[i].CreatedAt.After(plans[j].CreatedAt)
	})
	return plans, nil
}

// UpdateStatus loads, transitions and saves a plan. Approval is not possible here.
func (s *Store) UpdateStatus(id string, to Status) (*ExecutionPlan, error) {
	p, err := s.Load(id)
	if err != nil {
		return nil, err
	}
	if err := p.Transition(to); err != nil {
		return nil, err
	}
	if err := s.Save(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) Delete(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return vigilErrors.NotFound(fmt.Sprintf("plan %s", id))
		}
		return err
	}
	return nil
}

func containsStatus(list []Status, s Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
