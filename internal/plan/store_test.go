package plan

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vigilErrors "github.com/harunnryd/vigil/internal/errors"
	"github.com/harunnryd/vigil/internal/risk"
)

func TestStoreRoundTrip(t *testing.T) {
	s, err := NewStore(filepath.Join(t.TempDir(), "plans"))
	require.NoError(t, err)

	p := New("write notes", "d", "please", sampleActions(), risk.Medium)
	p.Tags = []string{"docs"}
	require.NoError(t, s.Save(p))

	loaded, err := s.Load(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Title, loaded.Title)
	assert.Equal(t, p.Actions, loaded.Actions)
	assert.Equal(t, p.Status, loaded.Status)
	assert.True(t, p.CreatedAt.Equal(loaded.CreatedAt))
	assert.Equal(t, p.Risk, loaded.Risk)
	assert.Equal(t, []string{"docs"}, loaded.Tags)

	raw, err := os.ReadFile(filepath.Join(s.Dir(), p.ID+".json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"status": "draft"`)
	assert.Contains(t, string(raw), `"kind": "modify_file"`)
	assert.Contains(t, string(raw), `"risk": "high"`)
}

func TestStoreRejectsUnknownStatus(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	doc := `{"id":"bad","title":"x","status":"archived","actions":[]}`
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "bad.json"), []byte(doc), 0644))

	_, err = s.Load("bad")
	assert.ErrorIs(t, err, vigilErrors.ErrInvalidInput)

	legacy := `{"id":"old","title":"x","status":"PENDING","actions":[]}`
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "old.json"), []byte(legacy), 0644))
	p, err := s.Load("old")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, p.Status)
}

func TestStoreRederivesFieldsOnLoad(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	p := New("edit", "", "", sampleActions(), risk.Medium)
	require.True(t, p.RequiresBackup)
	require.NoError(t, s.Save(p))

	path := filepath.Join(s.Dir(), p.ID+".json")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	edited := strings.Replace(string(raw), `"requires_backup": true`, `"requires_backup": false`, 1)
	require.NotEqual(t, string(raw), edited)
	require.NoError(t, os.WriteFile(path, []byte(edited), 0644))

	loaded, err := s.Load(p.ID)
	require.NoError(t, err)
	assert.True(t, loaded.RequiresBackup)
	assert.Equal(t, p.Risk, loaded.Risk)
	assert.Equal(t, p.EstimatedTotalSeconds, loaded.EstimatedTotalSeconds)
}

func TestStoreListAndDelete(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	first := New("first", "", "", nil, risk.Medium)
	first.CreatedAt = time.Now().Add(-time.Hour)
	second := New("second", "", "", nil, risk.Medium)
	require.NoError(t, second.Transition(StatusPending))
	require.NoError(t, s.Save(first))
	require.NoError(t, s.Save(second))

	all, err := s.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "second", all[0].Title)

	pending, err := s.List(StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	updated, err := s.UpdateStatus(first.ID, StatusRejected)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, updated.Status)

	_, err = s.UpdateStatus(first.ID, StatusApproved)
	assert.ErrorIs(t, err, vigilErrors.ErrInvalidTransition)

	require.NoError(t, s.Delete(first.ID))
	_, err = s.Load(first.ID)
	assert.ErrorIs(t, err, vigilErrors.ErrNotFound)
	assert.ErrorIs(t, s.Delete(first.ID), vigilErrors.ErrNotFound)
}

func TestStoreRejectsPathLikeIDs(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Load("../etc/passwd")
	assert.ErrorIs(t, err, vigilErrors.ErrInvalidInput)
}

func TestDecodeDocument(t *testing.T) {
	doc := `
title: Scaffold docs
request: add a README
tags: [docs]
actions:
  - kind: create_directory
    description: docs folder
    target_path: docs
  - kind: create_file
    target_path: docs/README.md
    content: "# Docs"
    estimated_duration: 2
    risk: medium
`
	p, err := Decode(strings.NewReader(doc), risk.Medium)
	require.NoError(t, err)
	assert.Equal(t, "Scaffold docs", p.Title)
	assert.Equal(t, StatusDraft, p.Status)
	require.Len(t, p.Actions, 2)
	assert.Equal(t, ActionCreateDirectory, p.Actions[0].Kind)
	assert.Equal(t, 7, p.EstimatedTotalSeconds)
	assert.True(t, p.RequiresConfirmation)

	jsonDoc := `{"title":"j","actions":[{"kind":"run_command","command":"ls"}]}`
	p, err = DocumentGenerator{Threshold: risk.High}.Generate(context.Background(), jsonDoc)
	require.NoError(t, err)
	assert.Equal(t, ActionRunCommand, p.Actions[0].Kind)
	assert.False(t, p.RequiresConfirmation)
}

func TestDecodeDocumentErrors(t *testing.T) {
	_, err := Decode(strings.NewReader("  "), risk.Medium)
	assert.ErrorIs(t, err, vigilErrors.ErrInvalidInput)

	_, err = Decode(strings.NewReader("actions:\n  - kind: teleport\n"), risk.Medium)
	assert.ErrorIs(t, err, vigilErrors.ErrInvalidInput)

	_, err = Decode(strings.NewReader("actions:\n  - target_path: x\n"), risk.Medium)
	assert.ErrorIs(t, err, vigilErrors.ErrInvalidInput)

	_, err = Decode(strings.NewReader("title: x\nsurprise: true\n"), risk.Medium)
	assert.ErrorIs(t, err, vigilErrors.ErrInvalidInput)
}
