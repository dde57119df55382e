package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/vigil/internal/pathutil"
)

// Layout is the on-disk arrangement of the vigil state directory.
type Layout struct {
	Root string
}

// NewLayout expands root and returns the layout rooted there.
func NewLayout(root string) (Layout, error) {
	trimmed := strings.TrimSpace(root)
	if trimmed == "" {
		return Layout{}, fmt.Errorf("state directory is empty")
	}
	expanded, err := pathutil.Expand(trimmed)
	if err != nil {
		return Layout{}, err
	}
	return Layout{Root: expanded}, nil
}

// PlansDir holds one JSON document per plan.
func (l Layout) PlansDir() string {
	return filepath.Join(l.Root, "plans")
}

// AuditDir holds the daily audit files and their side-cars.
func (l Layout) AuditDir() string {
	return filepath.Join(l.Root, "audit")
}

// BackupsDir holds one directory of backups per run.
func (l Layout) BackupsDir() string {
	return filepath.Join(l.Root, "backups")
}

// LogsDir holds run summaries.
func (l Layout) LogsDir() string {
	return filepath.Join(l.Root, "logs")
}

// Ensure creates every directory of the layout.
func (l Layout) Ensure() error {
	for _, dir := range []string{l.PlansDir(), l.AuditDir(), l.BackupsDir(), l.LogsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// JanitorStatePath is the retention janitor's task and lease state.
func (l Layout) JanitorStatePath() string {
	return filepath.Join(l.Root, "janitor.json")
}
