package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/harunnryd/vigil/internal/safety"
)

func TestSaveSafetyTier_KeepsOtherSettings(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
log:
  level: debug
safety:
  tier: standard
  extra_forbidden_paths:
    - private/**
`), 0644))

	previous, err := saveSafetyTier(configPath, safety.TierParanoid)
	require.NoError(t, err)
	assert.Equal(t, "standard", previous)

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)

	var saved map[string]interface{}
	require.NoError(t, yaml.Unmarshal(data, &saved))
	assert.Equal(t, "debug", saved["log"].(map[string]interface{})["level"])

	section := saved["safety"].(map[string]interface{})
	assert.Equal(t, "paranoid", section["tier"])
	assert.Equal(t, []interface{}{"private/**"}, section["extra_forbidden_paths"])
}

func TestSaveSafetyTier_CreatesMissingFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.yaml")

	previous, err := saveSafetyTier(configPath, safety.TierStrict)
	require.NoError(t, err)
	assert.Empty(t, previous)

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tier: strict")
}

func TestSaveSafetyTier_RejectsBrokenYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("safety: [unclosed"), 0644))

	_, err := saveSafetyTier(configPath, safety.TierStrict)
	assert.Error(t, err)
}
