package validator

import (
	"github.com/harunnryd/vigil/internal/risk"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Blocking reports whether the severity prevents approval.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

type Issue struct {
	Severity   Severity `json:"severity" yaml:"severity"`
	Category   string   `json:"category" yaml:"category"`
	Message    string   `json:"message" yaml:"message"`
	ActionID   string   `json:"action_id,omitempty" yaml:"action_id,omitempty"`
	Suggestion string   `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
}

type Result struct {
	Valid            bool       `json:"valid" yaml:"valid"`
	Risk             risk.Level `json:"risk" yaml:"risk"`
	Issues           []Issue    `json:"issues" yaml:"issues"`
	ComplexityScore  int        `json:"complexity_score" yaml:"complexity_score"`
	EstimatedSeconds int        `json:"estimated_duration" yaml:"estimated_duration"`
	Recommendations  []string   `json:"recommendations" yaml:"recommendations"`
}

// HasBlockingIssues is true when any issue is an error or critical.
func (r *Result) HasBlockingIssues() bool {
	for _, issue := range r.Issues {
		if issue.Severity.Blocking() {
			return true
		}
	}
	return false
}

// Count returns the number of issues with severity s.
func (r *Result) Count(s Severity) int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Severity == s {
			n++
		}
	}
	return n
}

// Categories returns the distinct issue categories in first-appearance order.
func (r *Result) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, issue := range r.Issues {
		if !seen[issue.Category] {
			seen[issue.Category] = true
			out = append(out, issue.Category)
		}
	}
	return out
}
