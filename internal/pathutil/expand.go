// Package pathutil expands user-supplied paths and maps plan paths into a
// workspace.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrEscapesBase is returned when a relative path climbs out of its base.
var ErrEscapesBase = errors.New("path escapes base directory")

// Expand resolves $VARS and a leading "~" and cleans the result. Blank input
// yields "".
func Expand(path string) (string, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return "", nil
	}

	p = os.ExpandEnv(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := homeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return filepath.Clean(p), nil
}

// Within maps target into base. Absolute targets are cleaned and returned
// as-is; relative ones must stay below base.
func Within(base, target string) (string, error) {
	if filepath.IsAbs(target) {
		return filepath.Clean(target), nil
	}
	if !filepath.IsLocal(target) {
		return "", fmt.Errorf("%w: %q", ErrEscapesBase, target)
	}
	return filepath.Join(base, target), nil
}

func homeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	home = strings.TrimSpace(home)
	if home == "" || strings.HasPrefix(home, "~") {
		return "", fmt.Errorf("home directory is not resolved: %q", home)
	}
	return home, nil
}
