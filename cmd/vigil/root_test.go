package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/vigil/internal/plan"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommandsImportApproveRunVerify(t *testing.T) {
	workspace := t.TempDir()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("log:\n  level: error\nworkspace:\n  root: "+workspace+"\n"), 0644))

	docPath := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(docPath, []byte(`
title: Hello
actions:
  - kind: create_file
    target_path: hello.txt
    content: hi
`), 0644))

	out, err := runRoot(t, "--config", configPath, "-o", "json", "plan", "import", docPath)
	require.NoError(t, err)

	var imported plan.ExecutionPlan
	require.NoError(t, json.Unmarshal([]byte(out), &imported))
	require.NotEmpty(t, imported.ID)

	out, err = runRoot(t, "--config", configPath, "plan", "approve", imported.ID, "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "approved")

	_, err = runRoot(t, "--config", configPath, "-o", "json", "run", imported.ID)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(workspace, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(content))

	out, err = runRoot(t, "--config", configPath, "audit", "verify")
	require.NoError(t, err)
	assert.Contains(t, out, "Audit chain intact")
}
