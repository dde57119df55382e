package report

import (
	"encoding/json"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harunnryd/vigil/internal/audit"
	"github.com/harunnryd/vigil/internal/executor"
	"github.com/harunnryd/vigil/internal/plan"
	"github.com/harunnryd/vigil/internal/safety"
	"github.com/harunnryd/vigil/internal/scheduler"
	"github.com/harunnryd/vigil/internal/validator"
)

type YAMLFormatter struct{}

func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

// encodeYAML goes through JSON so YAML keys match the JSON field names and
// keep their declaration order.
func encodeYAML(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return "", err
	}
	blockStyle(&node)

	out, err := yaml.Marshal(&node)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// blockStyle drops the flow and quoting styles the JSON parse leaves on every
// node. Scalars that would read as another type stay quoted by the encoder.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, child := range n.Content {
		blockStyle(child)
	}
}

func (f *YAMLFormatter) FormatPlans(plans []*plan.ExecutionPlan) (string, error) {
	if plans == nil {
		plans = []*plan.ExecutionPlan{}
	}
	return encodeYAML(plans)
}

func (f *YAMLFormatter) FormatPlan(p *plan.ExecutionPlan) (string, error) {
	return encodeYAML(p)
}

func (f *YAMLFormatter) FormatValidation(r *validator.Result) (string, error) {
	return encodeYAML(r)
}

func (f *YAMLFormatter) FormatRun(l *executor.ExecutionLog) (string, error) {
	return encodeYAML(l)
}

func (f *YAMLFormatter) FormatRuns(logs []*executor.ExecutionLog) (string, error) {
	if logs == nil {
		logs = []*executor.ExecutionLog{}
	}
	return encodeYAML(logs)
}

func (f *YAMLFormatter) FormatAuditSummary(s *audit.Summary) (string, error) {
	return encodeYAML(s)
}

func (f *YAMLFormatter) FormatEvents(events []*audit.Event) (string, error) {
	if events == nil {
		events = []*audit.Event{}
	}
	return encodeYAML(events)
}

func (f *YAMLFormatter) FormatPolicy(p safety.Policy) (string, error) {
	return encodeYAML(p)
}

func (f *YAMLFormatter) FormatPrune(r *scheduler.PruneResult) (string, error) {
	return encodeYAML(r)
}
