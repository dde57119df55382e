package main

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/vigil/internal/audit"
	"github.com/harunnryd/vigil/internal/report"
)

func TestReadYes(t *testing.T) {
	assert.True(t, readYes(strings.NewReader("y\n")))
	assert.True(t, readYes(strings.NewReader(" YES ")))
	assert.False(t, readYes(strings.NewReader("n\n")))
	assert.False(t, readYes(strings.NewReader("")))
}

func TestFormatterFor(t *testing.T) {
	cmd := &cobra.Command{}
	cmd.Flags().StringP("output", "o", string(report.OutputFormatTable), "")

	f, err := formatterFor(cmd)
	require.NoError(t, err)
	assert.IsType(t, &report.TableFormatter{}, f)

	require.NoError(t, cmd.Flags().Set("output", "json"))
	f, err = formatterFor(cmd)
	require.NoError(t, err)
	assert.IsType(t, &report.JSONFormatter{}, f)

	require.NoError(t, cmd.Flags().Set("output", "xml"))
	_, err = formatterFor(cmd)
	assert.Error(t, err)
}

func newTailCmd() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().IntP("limit", "n", 20, "")
	cmd.Flags().StringSlice("type", nil, "")
	cmd.Flags().String("severity", "", "")
	cmd.Flags().Duration("since", 0, "")
	cmd.Flags().String("plan", "", "")
	cmd.Flags().String("run", "", "")
	return cmd
}

func TestAuditFilterFromFlags(t *testing.T) {
	cmd := newTailCmd()
	require.NoError(t, cmd.Flags().Set("type", "plan_executed,file_created"))
	require.NoError(t, cmd.Flags().Set("severity", "warning"))
	require.NoError(t, cmd.Flags().Set("since", "1h"))
	require.NoError(t, cmd.Flags().Set("plan", "p1"))

	before := time.Now()
	filter, err := auditFilterFromFlags(cmd)
	require.NoError(t, err)

	assert.Equal(t, []audit.EventType{audit.EventPlanExecuted, audit.EventFileCreated}, filter.Types)
	assert.Equal(t, audit.SeverityWarning, filter.MinSeverity)
	assert.Equal(t, "p1", filter.PlanID)
	assert.Equal(t, 20, filter.Limit)
	assert.WithinDuration(t, before.Add(-time.Hour), filter.Since, time.Second)
}

func TestAuditFilterFromFlags_RejectsUnknownSeverity(t *testing.T) {
	cmd := newTailCmd()
	require.NoError(t, cmd.Flags().Set("severity", "loud"))

	_, err := auditFilterFromFlags(cmd)
	assert.Error(t, err)
}
