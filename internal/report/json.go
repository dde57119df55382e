package report

import (
	"encoding/json"

	"github.com/harunnryd/vigil/internal/audit"
	"github.com/harunnryd/vigil/internal/executor"
	"github.com/harunnryd/vigil/internal/plan"
	"github.com/harunnryd/vigil/internal/safety"
	"github.com/harunnryd/vigil/internal/scheduler"
	"github.com/harunnryd/vigil/internal/validator"
)

type JSONFormatter struct{}

func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

func encodeJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (f *JSONFormatter) FormatPlans(plans []*plan.ExecutionPlan) (string, error) {
	if plans == nil {
		plans = []*plan.ExecutionPlan{}
	}
	return encodeJSON(plans)
}

func (f *JSONFormatter) FormatPlan(p *plan.ExecutionPlan) (string, error) {
	return encodeJSON(p)
}

func (f *JSONFormatter) FormatValidation(r *validator.Result) (string, error) {
	return encodeJSON(r)
}

func (f *JSONFormatter) FormatRun(l *executor.ExecutionLog) (string, error) {
	return encodeJSON(l)
}

func (f *JSONFormatter) FormatRuns(logs []*executor.ExecutionLog) (string, error) {
	if logs == nil {
		logs = []*executor.ExecutionLog{}
	}
	return encodeJSON(logs)
}

func (f *JSONFormatter) FormatAuditSummary(s *audit.Summary) (string, error) {
	return encodeJSON(s)
}

func (f *JSONFormatter) FormatEvents(events []*audit.Event) (string, error) {
	if events == nil {
		events = []*audit.Event{}
	}
	return encodeJSON(events)
}

func (f *JSONFormatter) FormatPolicy(p safety.Policy) (string, error) {
	return encodeJSON(p)
}

func (f *JSONFormatter) FormatPrune(r *scheduler.PruneResult) (string, error) {
	return encodeJSON(r)
}
