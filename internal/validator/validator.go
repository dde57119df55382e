// Package validator statically analyses execution plans against a safety policy.
// Validate is pure: the same plan and policy always produce the same result.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/harunnryd/vigil/internal/audit"
	"github.com/harunnryd/vigil/internal/plan"
	"github.com/harunnryd/vigil/internal/risk"
	"github.com/harunnryd/vigil/internal/safety"
)

const (
	CategoryStructure       = "Structure"
	CategoryLimits          = "Limits"
	CategoryDuration        = "Duration"
	CategoryForbiddenPath   = "Forbidden Path"
	CategorySystemPath      = "System Path"
	CategoryPathTraversal   = "Path Traversal"
	CategoryAbsolutePath    = "Absolute Path"
	CategoryFileExtension   = "File Extension"
	CategoryDestructive     = "Destructive"
	CategoryDangerous       = "Dangerous Command"
	CategoryNetwork         = "Network Operation"
	CategorySuspicious      = "Suspicious Content"
	CategorySizeLimit       = "Size Limit"
	CategoryCodeExecution   = "Code Execution"
	CategoryDependencies    = "Dependencies"
	CategoryConflicting     = "Conflicting Operations"
	CategoryMultipleModify  = "Multiple Modifications"
	CategoryHighImpact      = "High Impact"
	CategoryHighVolume      = "High Volume"
	recommendationSafe      = "Plan appears safe for execution"
	recommendationPhases    = "Consider executing the plan in phases"
	highImpactDeleteCount   = 5
	highVolumeCreateCount   = 20
	phasedActionCount       = 10
	mediumRiskWarningCount  = 3
	mediumRiskComplexity    = 100
	lowRiskComplexity       = 50
	penaltyPolicyViolation  = 10
	penaltyDelete           = 15
	penaltyCommand          = 5
	penaltyDangerousCommand = 30
	penaltyNetwork          = 10
	penaltySuspicious       = 5
	penaltyOversized        = 20
	penaltyBinaryFile       = 20
	penaltyScriptFile       = 10
	penaltyPerBulkDelete    = 3
	penaltyPerBulkCreate    = 1
)

var categoryRecommendations = map[string]string{
	CategoryDangerous:     "Review all system commands carefully before execution",
	CategoryDestructive:   "Ensure backups exist before deleting files",
	CategoryForbiddenPath: "Keep file operations inside the workspace and away from protected paths",
	CategorySystemPath:    "Keep file operations inside the workspace and away from protected paths",
	CategoryPathTraversal: "Keep file operations inside the workspace and away from protected paths",
	CategoryAbsolutePath:  "Keep file operations inside the workspace and away from protected paths",
	CategoryNetwork:       "Verify network operations are necessary and secure",
	CategorySizeLimit:     "Split large content into smaller files",
	CategorySuspicious:    "Review generated code for unsafe constructs",
	CategoryFileExtension: "Use file types permitted by the active safety tier",
	CategoryHighImpact:    "Consider executing destructive steps in smaller batches",
	CategoryConflicting:   "Remove actions that undo each other",
	CategoryCodeExecution: "Replace code execution with explicit file or command actions",
	CategoryLimits:        "Split the plan into smaller plans",
}

type Validator struct {
	rules    Rules
	recorder audit.Recorder
}

type Option func(*Validator)

func WithRules(r Rules) Option {
	return func(v *Validator) { v.rules = r }
}

// WithRecorder makes Check append a safety_violation event for blocked plans.
func WithRecorder(r audit.Recorder) Option {
	return func(v *Validator) { v.recorder = r }
}

func New(opts ...Option) *Validator {
	v := &Validator{rules: DefaultRules()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type analysis struct {
	rules  Rules
	policy safety.Policy
	issues []Issue
	score  int
}

func (a *analysis) add(sev Severity, category, actionID, format string, args ...any) {
	a.issues = append(a.issues, Issue{
		Severity: sev,
		Category: category,
		Message:  fmt.Sprintf(format, args...),
		ActionID: actionID,
	})
}

// Validate runs every stage and never mutates p.
func (v *Validator) Validate(p *plan.ExecutionPlan, policy safety.Policy) *Result {
	a := &analysis{rules: v.rules, policy: policy}

	a.checkStructure(p)
	for _, action := range p.Actions {
		a.checkPolicy(action)
	}
	for _, action := range p.Actions {
		a.checkAction(action)
	}
	a.checkDependencies(p)
	a.checkCrossAction(p)
	a.checkImpact(p)

	estimated := 0
	for _, action := range p.Actions {
		estimated += action.EstimatedSeconds
	}
	if limit := int(policy.MaxTotalDuration.Seconds()); limit > 0 && estimated > limit {
		a.add(SeverityWarning, CategoryDuration, "", "estimated duration %ds exceeds the %ds execution limit", estimated, limit)
	}

	r := &Result{
		Issues:           a.issues,
		ComplexityScore:  a.score,
		EstimatedSeconds: estimated,
	}
	if r.Issues == nil {
		r.Issues = []Issue{}
	}
	r.Valid = !r.HasBlockingIssues()
	r.Risk = riskTier(r)
	r.Recommendations = recommendations(r, len(p.Actions))
	for i := range r.Issues {
		r.Issues[i].Suggestion = categoryRecommendations[r.Issues[i].Category]
	}
	return r
}

// Check validates p and records a safety violation when the result blocks.
func (v *Validator) Check(ctx context.Context, p *plan.ExecutionPlan, policy safety.Policy) *Result {
	r := v.Validate(p, policy)
	if r.Valid || v.recorder == nil || !policy.AuditEnabled {
		return r
	}

	ev := audit.NewEvent(audit.EventSafetyViolation, audit.SeverityError).
		WithContext("plan_id", p.ID).
		With("risk", r.Risk.String()).
		With("critical", r.Count(SeverityCritical)).
		With("errors", r.Count(SeverityError)).
		With("categories", r.Categories())
	if r.Risk == risk.Critical {
		ev.Severity = audit.SeverityCritical
	}
	if _, err := v.recorder.Append(ctx, ev); err != nil {
		slog.Warn("Failed to record safety violation", "plan_id", p.ID, "error", err)
	}
	return r
}

func (a *analysis) checkStructure(p *plan.ExecutionPlan) {
	if len(p.Actions) == 0 {
		a.add(SeverityError, CategoryStructure, "", "plan has no actions")
	}
	if strings.TrimSpace(p.Title) == "" {
		a.add(SeverityWarning, CategoryStructure, "", "plan has no title")
	}
	if limit := a.policy.MaxActionsPerPlan; limit > 0 && len(p.Actions) > limit {
		a.add(SeverityError, CategoryLimits, "", "plan has %d actions; the %s tier allows %d", len(p.Actions), a.policy.Tier, limit)
	}

	for _, action := range p.Actions {
		switch {
		case action.Kind.HasTarget() && strings.TrimSpace(action.TargetPath) == "":
			a.add(SeverityError, CategoryStructure, action.ID, "%s action has no target path", action.Kind)
		case (action.Kind == plan.ActionMoveFile || action.Kind == plan.ActionCopyFile) && strings.TrimSpace(action.Destination) == "":
			a.add(SeverityError, CategoryStructure, action.ID, "%s action has no destination", action.Kind)
		case action.Kind == plan.ActionRunCommand && strings.TrimSpace(action.Command) == "":
			a.add(SeverityError, CategoryStructure, action.ID, "run_command action has no command")
		}
	}
}

func (a *analysis) checkPolicy(action plan.PlannedAction) {
	for _, target := range action.Paths() {
		if category, msg := a.pathViolation(target); category != "" {
			a.add(SeverityCritical, category, action.ID, "%s", msg)
			a.score += penaltyPolicyViolation
		}
		if action.Kind == plan.ActionCreateDirectory {
			continue
		}
		if ext := filepath.Ext(target); ext != "" && !a.policy.ExtensionAllowed(ext) {
			a.add(SeverityError, CategoryFileExtension, action.ID, "extension %s of %s is not allowed in the %s tier", ext, target, a.policy.Tier)
			a.score += penaltyPolicyViolation
		}
	}
}

// pathViolation reports the first protected-path rule target breaks.
func (a *analysis) pathViolation(target string) (string, string) {
	if pattern, ok := a.policy.MatchForbidden(target); ok {
		return CategoryForbiddenPath, fmt.Sprintf("%s matches forbidden pattern %s", target, pattern)
	}
	slashed := strings.ReplaceAll(target, `\`, "/")
	for _, prefix := range a.rules.SystemPrefixes {
		p := strings.ReplaceAll(prefix, `\`, "/")
		if slashed == p || strings.HasPrefix(strings.ToLower(slashed), strings.ToLower(p)+"/") {
			return CategorySystemPath, fmt.Sprintf("%s is inside system directory %s", target, prefix)
		}
	}
	if slices.Contains(strings.Split(slashed, "/"), "..") {
		return CategoryPathTraversal, fmt.Sprintf("%s contains a parent directory traversal", target)
	}
	if strings.HasPrefix(slashed, "/") || filepath.VolumeName(target) != "" || len(slashed) > 1 && slashed[1] == ':' {
		return CategoryAbsolutePath, fmt.Sprintf("%s is an absolute path outside the workspace", target)
	}
	return "", ""
}

func (a *analysis) checkAction(action plan.PlannedAction) {
	switch action.Kind {
	case plan.ActionDeleteFile:
		a.add(SeverityWarning, CategoryDestructive, action.ID, "deletes %s", action.TargetPath)
		a.score += penaltyDelete
	case plan.ActionRunCommand:
		a.checkCommand(action)
	case plan.ActionExecuteCode:
		a.add(SeverityWarning, CategoryCodeExecution, action.ID, "code execution is not supported and will be skipped")
	}

	if action.Content != "" {
		if a.policy.ContentScanning {
			for _, p := range matchAll(a.rules.SuspiciousContent, action.Content) {
				a.add(SeverityWarning, CategorySuspicious, action.ID, "content contains %s", p.Name)
				a.score += penaltySuspicious
			}
		}
		if limit := a.policy.MaxFileSizeBytes; limit > 0 && int64(len(action.Content)) > limit {
			a.add(SeverityError, CategorySizeLimit, action.ID, "content is %d bytes; the limit is %d", len(action.Content), limit)
			a.score += penaltyOversized
		}
	}

	for _, target := range action.Paths() {
		ext := strings.ToLower(filepath.Ext(target))
		switch {
		case slices.Contains(a.rules.BinaryExtensions, ext):
			a.score += penaltyBinaryFile
		case slices.Contains(a.rules.ScriptExtensions, ext):
			a.score += penaltyScriptFile
		}
	}
}

func (a *analysis) checkCommand(action plan.PlannedAction) {
	a.score += penaltyCommand
	command := action.Command

	dangerous := matchAll(a.rules.DangerousCommands, command)
	for _, p := range dangerous {
		a.add(SeverityCritical, CategoryDangerous, action.ID, "command matches %s: %s", p.Name, command)
		a.score += penaltyDangerousCommand
	}
	if len(dangerous) == 0 {
		for _, tokens := range commandSegments(command) {
			if err := checkRecursiveRemove(tokens); err != nil {
				a.add(SeverityCritical, CategoryDangerous, action.ID, "command performs %v", err)
				a.score += penaltyDangerousCommand
				break
			}
		}
	}

	for _, p := range matchAll(a.rules.NetworkOperations, command) {
		a.add(SeverityWarning, CategoryNetwork, action.ID, "command uses %s", p.Name)
		a.score += penaltyNetwork
	}
}

// checkDependencies treats dependencies as advisory: actions always run in list order.
func (a *analysis) checkDependencies(p *plan.ExecutionPlan) {
	for i, action := range p.Actions {
		for _, dep := range action.Dependencies {
			idx := p.ActionIndex(dep)
			switch {
			case idx < 0:
				a.add(SeverityWarning, CategoryDependencies, action.ID, "depends on unknown action %s", dep)
			case idx >= i:
				a.add(SeverityInfo, CategoryDependencies, action.ID, "depends on %s which runs later in list order", dep)
			}
		}
	}
}

func (a *analysis) checkCrossAction(p *plan.ExecutionPlan) {
	type usage struct {
		creates, deletes, modifies int
		actionID                   string
	}
	var order []string
	byPath := make(map[string]*usage)
	for _, action := range p.Actions {
		if action.TargetPath == "" {
			continue
		}
		key := safety.CleanSlashPath(action.TargetPath)
		u, ok := byPath[key]
		if !ok {
			u = &usage{actionID: action.ID}
			byPath[key] = u
			order = append(order, key)
		}
		switch action.Kind {
		case plan.ActionCreateFile:
			u.creates++
		case plan.ActionDeleteFile:
			u.deletes++
		case plan.ActionModifyFile:
			u.modifies++
		}
	}

	for _, key := range order {
		u := byPath[key]
		if u.creates > 0 && u.deletes > 0 {
			a.add(SeverityWarning, CategoryConflicting, u.actionID, "%s is both created and deleted", key)
		}
		if u.modifies > 1 {
			a.add(SeverityInfo, CategoryMultipleModify, u.actionID, "%s is modified %d times", key, u.modifies)
		}
	}
}

func (a *analysis) checkImpact(p *plan.ExecutionPlan) {
	deletes, creates := 0, 0
	for _, action := range p.Actions {
		switch action.Kind {
		case plan.ActionDeleteFile:
			deletes++
		case plan.ActionCreateFile:
			creates++
		}
	}
	if deletes > highImpactDeleteCount {
		a.add(SeverityWarning, CategoryHighImpact, "", "plan deletes %d files", deletes)
		a.score += penaltyPerBulkDelete * deletes
	}
	if creates > highVolumeCreateCount {
		a.add(SeverityInfo, CategoryHighVolume, "", "plan creates %d files", creates)
		a.score += penaltyPerBulkCreate * creates
	}
}

func riskTier(r *Result) risk.Level {
	warnings := r.Count(SeverityWarning)
	switch {
	case r.Count(SeverityCritical) > 0:
		return risk.Critical
	case r.Count(SeverityError) > 0:
		return risk.High
	case warnings > mediumRiskWarningCount || r.ComplexityScore > mediumRiskComplexity:
		return risk.Medium
	case warnings > 0 || r.ComplexityScore > lowRiskComplexity:
		return risk.Low
	default:
		return risk.Minimal
	}
}

func recommendations(r *Result, actionCount int) []string {
	var out []string
	for _, category := range r.Categories() {
		if rec, ok := categoryRecommendations[category]; ok && !slices.Contains(out, rec) {
			out = append(out, rec)
		}
	}
	if actionCount > phasedActionCount {
		out = append(out, recommendationPhases)
	}
	if len(out) == 0 {
		out = append(out, recommendationSafe)
	}
	return out
}
