package executor

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"
)

const (
	backupSuffix     = ".backup"
	backupTimeLayout = "20060102_150405.000000000"
)

// backupFile copies src into dir as <name>.<timestamp>.backup, keeping its mode.
func backupFile(src, dir string, now time.Time) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("cannot back up %s: not a regular file", src)
	}

	base := fmt.Sprintf("%s.%s", filepath.Base(src), now.Format(backupTimeLayout))
	dst := filepath.Join(dir, base+backupSuffix)
	for i := 1; fileExists(dst); i++ {
		dst = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, backupSuffix))
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return "", fmt.Errorf("create backup: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("copy backup: %w", err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return "", err
	}
	return dst, out.Close()
}

// restoreFile replaces target with the bytes and mode of backup.
func restoreFile(backup, target string) error {
	info, err := os.Stat(backup)
	if err != nil {
		return fmt.Errorf("backup %s: %w", backup, err)
	}
	content, err := os.ReadFile(backup)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if err := atomic.WriteFile(target, bytes.NewReader(content)); err != nil {
		return fmt.Errorf("restore %s: %w", target, err)
	}
	return os.Chmod(target, info.Mode().Perm())
}

// writeFile atomically replaces path, keeping the previous mode when it existed.
func writeFile(path string, content []byte, mode os.FileMode) error {
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := atomic.WriteFile(path, bytes.NewReader(content)); err != nil {
		return err
	}
	return os.Chmod(path, mode)
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	content, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return writeFile(dst, content, info.Mode().Perm())
}

func sameContent(a, b string) (bool, error) {
	left, err := os.ReadFile(a)
	if err != nil {
		return false, err
	}
	right, err := os.ReadFile(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(left, right), nil
}

func fileExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
