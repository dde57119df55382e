// Package report renders plans, validation results, run logs and audit
// data for the command line.
package report

import (
	"fmt"
	"strings"

	"github.com/harunnryd/vigil/internal/audit"
	"github.com/harunnryd/vigil/internal/executor"
	"github.com/harunnryd/vigil/internal/plan"
	"github.com/harunnryd/vigil/internal/safety"
	"github.com/harunnryd/vigil/internal/scheduler"
	"github.com/harunnryd/vigil/internal/validator"
)

type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

type Formatter interface {
	FormatPlans([]*plan.ExecutionPlan) (string, error)
	FormatPlan(*plan.ExecutionPlan) (string, error)
	FormatValidation(*validator.Result) (string, error)
	FormatRun(*executor.ExecutionLog) (string, error)
	FormatRuns([]*executor.ExecutionLog) (string, error)
	FormatAuditSummary(*audit.Summary) (string, error)
	FormatEvents([]*audit.Event) (string, error)
	FormatPolicy(safety.Policy) (string, error)
	FormatPrune(*scheduler.PruneResult) (string, error)
}

func New(format OutputFormat) (Formatter, error) {
	switch format {
	case OutputFormatTable:
		return NewTableFormatter(), nil
	case OutputFormatJSON:
		return NewJSONFormatter(), nil
	case OutputFormatYAML:
		return NewYAMLFormatter(), nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, json, yaml)", format)
	}
}

func ParseOutputFormat(s string) (OutputFormat, error) {
	format := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	switch format {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return format, nil
	default:
		return "", fmt.Errorf("invalid output format: %s (supported: table, json, yaml)", s)
	}
}
