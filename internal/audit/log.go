package audit

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"time"

	"gavel/internal/jsonl"
)

// Event types written to the audit log.
const (
	EventAuditViolation   = "audit_violation"
	EventStateTransition  = "state_transition"
	EventTransitionBlock  = "transition_blocked"
	EventTransitionFailed = "transition_execution_failed"
	EventWorkflowStarted  = "workflow_started"
	EventWorkflowBlocked  = "workflow_blocked"
	EventWorkflowResumed  = "workflow_resumed"
	EventReviewDecision   = "review_decision"
	EventReviewSubmitted  = "review_submitted"
)

// Event is one audit log line.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType string         `json:"event_type"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context"`
}

// Log is the append-only audit trail shared with compliance tooling.
type Log struct {
	out   *jsonl.Appender
	clock func() time.Time
}

// NewLog appends to the JSONL file at path.
func NewLog(path string) *Log {
	return &Log{out: jsonl.NewAppender(path), clock: time.Now}
}

// Path reports the log location.
func (l *Log) Path() string {
	return l.out.Path()
}

// Record appends one event.
func (l *Log) Record(ctx context.Context, eventType, message string, fields map[string]any) (Event, error) {
	event := Event{
		Timestamp: l.clock().UTC(),
		EventType: strings.TrimSpace(eventType),
		Message:   strings.TrimSpace(message),
		Context:   map[string]any{},
	}
	maps.Copy(event.Context, fields)
	if event.EventType == "" {
		return event, fmt.Errorf("audit event has no type")
	}
	if err := l.out.Append(ctx, event); err != nil {
		return event, fmt.Errorf("append audit event %s: %w", event.EventType, err)
	}
	return event, nil
}

// ReadAll loads every event in order.
func (l *Log) ReadAll() ([]Event, error) {
	return jsonl.ReadFile[Event](l.out.Path())
}
