package plan

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	vigilErrors "github.com/harunnryd/vigil/internal/errors"
	"github.com/harunnryd/vigil/internal/risk"
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExecuted Status = "executed"
	StatusFailed   Status = "failed"
)

var statuses = []Status{StatusDraft, StatusPending, StatusApproved, StatusRejected, StatusExecuted, StatusFailed}

// ParseStatus accepts lowercase names and upgrades legacy upper-case ones.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(statuses, st) {
		return st, nil
	}
	return "", vigilErrors.InvalidInput(fmt.Sprintf("unknown plan status %q", s))
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusExecuted || s == StatusFailed
}

var transitions = map[Status][]Status{
	StatusDraft:    {StatusPending, StatusApproved, StatusRejected},
	StatusPending:  {StatusDraft, StatusApproved, StatusRejected},
	StatusApproved: {StatusExecuted, StatusFailed, StatusRejected},
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

type ActionKind string

const (
	ActionCreateFile      ActionKind = "create_file"
	ActionModifyFile      ActionKind = "modify_file"
	ActionDeleteFile      ActionKind = "delete_file"
	ActionRunCommand      ActionKind = "run_command"
	ActionExecuteCode     ActionKind = "execute_code"
	ActionCreateDirectory ActionKind = "create_directory"
	ActionMoveFile        ActionKind = "move_file"
	ActionCopyFile        ActionKind = "copy_file"
)

var actionKinds = []ActionKind{
	ActionCreateFile, ActionModifyFile, ActionDeleteFile, ActionRunCommand,
	ActionExecuteCode, ActionCreateDirectory, ActionMoveFile, ActionCopyFile,
}

func ParseActionKind(s string) (ActionKind, error) {
	k := ActionKind(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(actionKinds, k) {
		return k, nil
	}
	return "", vigilErrors.InvalidInput(fmt.Sprintf("unknown action kind %q", s))
}

func (k *ActionKind) UnmarshalText(text []byte) error {
	parsed, err := ParseActionKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Mutating reports whether the kind changes or removes an existing file.
func (k ActionKind) Mutating() bool {
	return k == ActionModifyFile || k == ActionDeleteFile || k == ActionMoveFile
}

// HasTarget reports whether the kind operates on a filesystem path.
func (k ActionKind) HasTarget() bool {
	return k != ActionRunCommand && k != ActionExecuteCode
}

// DefaultEstimatedSeconds is the per-action estimate when none is given.
const DefaultEstimatedSeconds = 5

type PlannedAction struct {
	ID               string            `json:"id" yaml:"id"`
	Kind             ActionKind        `json:"kind" yaml:"kind"`
	Description      string            `json:"description" yaml:"description"`
	TargetPath       string            `json:"target_path,omitempty" yaml:"target_path,omitempty"`
	Destination      string            `json:"destination,omitempty" yaml:"destination,omitempty"`
	Content          string            `json:"content,omitempty" yaml:"content,omitempty"`
	Command          string            `json:"command,omitempty" yaml:"command,omitempty"`
	Dependencies     []string          `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	EstimatedSeconds int               `json:"estimated_duration" yaml:"estimated_duration"`
	Risk             risk.Level        `json:"risk" yaml:"risk"`
	RollbackInfo     map[string]string `json:"rollback_info,omitempty" yaml:"rollback_info,omitempty"`
}

// Paths returns the filesystem paths the action touches.
func (a PlannedAction) Paths() []string {
	var out []string
	if a.TargetPath != "" {
		out = append(out, a.TargetPath)
	}
	if a.Destination != "" {
		out = append(out, a.Destination)
	}
	return out
}

type ExecutionPlan struct {
	ID                    string          `json:"id"`
	Title                 string          `json:"title"`
	Description           string          `json:"description"`
	Request               string          `json:"request"`
	Actions               []PlannedAction `json:"actions"`
	Status                Status          `json:"status"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
	Tags                  []string        `json:"tags,omitempty"`
	EstimatedTotalSeconds int             `json:"estimated_total_duration"`
	Risk                  risk.Level      `json:"risk"`
	RequiresBackup        bool            `json:"requires_backup"`
	RequiresConfirmation  bool            `json:"requires_confirmation"`
}

// New creates a draft plan and computes its derived fields against threshold.
func New(title, description, request string, actions []PlannedAction, threshold risk.Level) *ExecutionPlan {
	now := time.Now().UTC()
	p := &ExecutionPlan{
		ID:          ulid.Make().String(),
		Title:       title,
		Description: description,
		Request:     request,
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.Actions = normalizeActions(actions)
	p.Recompute(threshold)
	return p
}

func normalizeActions(actions []PlannedAction) []PlannedAction {
	out := make([]PlannedAction, len(actions))
	copy(out, actions)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = ulid.Make().String()
		}
		if out[i].EstimatedSeconds <= 0 {
			out[i].EstimatedSeconds = DefaultEstimatedSeconds
		}
		if out[i].Risk == risk.Minimal {
			out[i].Risk = risk.Low
		}
	}
	return out
}

// Recompute refreshes the derived fields from the action list.
func (p *ExecutionPlan) Recompute(threshold risk.Level) {
	p.derive()
	p.RequiresConfirmation = p.Risk.AtLeast(threshold)
}

// derive refreshes the fields that follow from the actions alone.
func (p *ExecutionPlan) derive() {
	total := 0
	levels := make([]risk.Level, 0, len(p.Actions))
	for _, a := range p.Actions {
		total += a.EstimatedSeconds
		levels = append(levels, a.Risk)
	}
	p.EstimatedTotalSeconds = total
	p.Risk = risk.Max(levels...)
	p.RequiresBackup = p.NeedsBackup()
}

// NeedsBackup reports whether any action changes or removes existing files.
func (p *ExecutionPlan) NeedsBackup() bool {
	for _, a := range p.Actions {
		if a.Kind.Mutating() {
			return true
		}
	}
	return false
}

// SetActions replaces the action list. Actions are frozen once the plan is approved.
func (p *ExecutionPlan) SetActions(actions []PlannedAction, threshold risk.Level) error {
	if p.Status != StatusDraft && p.Status != StatusPending {
		return vigilErrors.InvalidTransition(fmt.Sprintf("plan %s is %s; actions are frozen", p.ID, p.Status))
	}
	p.Actions = normalizeActions(actions)
	p.Recompute(threshold)
	p.touch()
	return nil
}

// Transition moves the plan to status to. Approval must go through Approve.
func (p *ExecutionPlan) Transition(to Status) error {
	if to == StatusApproved {
		return vigilErrors.InvalidTransition("approval requires a validation verdict")
	}
	return p.transition(to)
}

func (p *ExecutionPlan) transition(to Status) error {
	if !CanTransition(p.Status, to) {
		return vigilErrors.InvalidTransition(fmt.Sprintf("plan %s: %s -> %s", p.ID, p.Status, to))
	}
	p.Status = to
	p.touch()
	return nil
}

// Verdict is the outcome of validating a plan.
type Verdict interface {
	HasBlockingIssues() bool
}

// Approve moves a draft or pending plan to approved when verdict is clean.
func (p *ExecutionPlan) Approve(verdict Verdict) error {
	if verdict == nil {
		return fmt.Errorf("plan %s has not been validated: %w", p.ID, vigilErrors.ErrValidationFailed)
	}
	if verdict.HasBlockingIssues() {
		return fmt.Errorf("plan %s has blocking issues: %w", p.ID, vigilErrors.ErrValidationFailed)
	}
	return p.transition(StatusApproved)
}

func (p *ExecutionPlan) Reject() error {
	return p.transition(StatusRejected)
}

// ActionIndex returns the position of the action with id, or -1.
func (p *ExecutionPlan) ActionIndex(id string) int {
	return slices.IndexFunc(p.Actions, func(a PlannedAction) bool { return a.ID == id })
}

func (p *ExecutionPlan) touch() {
	p.UpdatedAt = time.Now().UTC()
}
