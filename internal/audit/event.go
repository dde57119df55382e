package audit

import (
	"context"
	"time"
)

type EventType string

const (
	EventPlanCreated      EventType = "plan_created"
	EventPlanApproved     EventType = "plan_approved"
	EventPlanRejected     EventType = "plan_rejected"
	EventPlanExecuted     EventType = "plan_executed"
	EventActionExecuted   EventType = "action_executed"
	EventFileCreated      EventType = "file_created"
	EventFileModified     EventType = "file_modified"
	EventFileDeleted      EventType = "file_deleted"
	EventCommandExecuted  EventType = "command_executed"
	EventBackupCreated    EventType = "backup_created"
	EventRollbackExecuted EventType = "rollback_executed"
	EventSafetyViolation  EventType = "safety_violation"
	EventTimeoutOccurred  EventType = "timeout_occurred"
	EventErrorOccurred    EventType = "error_occurred"
	EventModeChanged      EventType = "mode_changed"
	EventConfigChanged    EventType = "config_changed"
)

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// Event is one record in the hash chain. ID, Timestamp, PreviousHash and Hash
// are assigned by Append.
type Event struct {
	ID           string            `json:"event_id"`
	Type         EventType         `json:"event_type"`
	Severity     Severity          `json:"severity"`
	Timestamp    time.Time         `json:"timestamp"`
	Context      map[string]string `json:"operation_context,omitempty"`
	Details      map[string]any    `json:"details,omitempty"`
	PreviousHash string            `json:"previous_hash"`
	Hash         string            `json:"hash"`
}

func NewEvent(t EventType, sev Severity) *Event {
	return &Event{Type: t, Severity: sev}
}

// With sets a detail value.
func (e *Event) With(key string, value any) *Event {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithContext sets an operation context value such as plan_id or run_id.
func (e *Event) WithContext(key, value string) *Event {
	if value == "" {
		return e
	}
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// Recorder appends events to the audit trail and returns the event id.
type Recorder interface {
	Append(ctx context.Context, ev *Event) (string, error)
}
