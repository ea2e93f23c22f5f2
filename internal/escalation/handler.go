// Package escalation decides when a condition must be put in front of a human
// and records every such decision in an append-only log.
//
// The trigger policy is a set of pure functions (DeriveTriggers and the
// threshold predicates). Handler adds the side effects: one JSONL record per
// escalation, a process log line whose level follows the severity, and for
// CRITICAL entries an out-of-band alert on stderr plus a push notification.
package escalation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"math"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"

	"gavel/internal/jsonl"
	"gavel/internal/logging"
)

// Entry is one escalation log record.
type Entry struct {
	ID              string         `json:"id"`
	Timestamp       time.Time      `json:"timestamp"`
	EventType       string         `json:"event_type"`
	Message         string         `json:"message"`
	Severity        Severity       `json:"severity"`
	Reason          string         `json:"reason"`
	Triggers        []Trigger      `json:"triggers"`
	Confidence      *float64       `json:"confidence,omitempty"`
	AssumptionDrift *float64       `json:"assumption_drift,omitempty"`
	WorkflowID      string         `json:"workflow_id,omitempty"`
	Context         map[string]any `json:"context,omitempty"`
}

// HasTrigger reports whether t is among the entry's triggers.
func (e Entry) HasTrigger(t Trigger) bool {
	for _, got := range e.Triggers {
		if got == t {
			return true
		}
	}
	return false
}

// Request describes a condition to escalate.
type Request struct {
	Reason          string
	Severity        Severity
	WorkflowID      string
	Context         map[string]any
	Confidence      *float64
	AssumptionDrift *float64
}

// Notifier pushes escalations out of band.
type Notifier interface {
	NotifyEscalation(ctx context.Context, severity, reason string, triggers []string) error
}

// Handler applies the escalation policy and records the outcome.
type Handler struct {
	log        *jsonl.Appender
	logger     *slog.Logger
	thresholds Thresholds
	notifier   Notifier
	alerts     io.Writer
	color      bool
	clock      func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithThresholds overrides the numeric trigger thresholds.
func WithThresholds(th Thresholds) Option {
	return func(h *Handler) { h.thresholds = th }
}

// WithNotifier routes HIGH and CRITICAL escalations to n.
func WithNotifier(n Notifier) Option {
	return func(h *Handler) { h.notifier = n }
}

// WithAlertWriter sets where CRITICAL alerts are printed; nil disables them.
// Output is colorized when w is a terminal.
func WithAlertWriter(w io.Writer) Option {
	return func(h *Handler) {
		h.alerts = w
		h.color = false
		if f, ok := w.(*os.File); ok {
			h.color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
		}
	}
}

// WithClock overrides the clock for deterministic testing.
func WithClock(clock func() time.Time) Option {
	return func(h *Handler) { h.clock = clock }
}

// NewHandler appends escalations to the JSONL file at logPath.
func NewHandler(logPath string, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		log:        jsonl.NewAppender(logPath),
		logger:     logging.NewComponentLogger(logger, "escalation"),
		thresholds: DefaultThresholds(),
		clock:      time.Now,
	}
	WithAlertWriter(os.Stderr)(h)
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Thresholds reports the thresholds in effect.
func (h *Handler) Thresholds() Thresholds {
	return h.thresholds
}

// CheckConfidenceThreshold applies the handler's confidence threshold.
func (h *Handler) CheckConfidenceThreshold(confidence float64) bool {
	return h.thresholds.LowConfidence(confidence)
}

// CheckAssumptionDrift applies the handler's drift threshold.
func (h *Handler) CheckAssumptionDrift(drift float64) bool {
	return h.thresholds.HighDrift(drift)
}

// Escalate records req. The entry is always returned and always routed to the
// process logger; a non-nil error means the escalation log write failed, which
// has already been logged at ERROR.
func (h *Handler) Escalate(ctx context.Context, req Request) (Entry, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	severity, ok := ParseSeverity(string(req.Severity))
	if !ok {
		severity = SeverityHigh
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "escalation requested without a reason"
	}
	triggers := DeriveTriggers(reason, req.Confidence, req.AssumptionDrift, h.thresholds)

	entry := Entry{
		ID:              uuid.NewString(),
		Timestamp:       h.clock().UTC(),
		EventType:       "escalation",
		Message:         reason,
		Severity:        severity,
		Reason:          reason,
		Triggers:        triggers,
		Confidence:      storableFloat(req.Confidence),
		AssumptionDrift: storableFloat(req.AssumptionDrift),
		WorkflowID:      strings.TrimSpace(req.WorkflowID),
	}
	if len(req.Context) > 0 {
		entry.Context = make(map[string]any, len(req.Context))
		maps.Copy(entry.Context, req.Context)
	}

	logger := logging.WithContext(logging.WithWorkflowID(ctx, entry.WorkflowID), h.logger)
	writeErr := h.log.Append(ctx, entry)
	if writeErr != nil {
		logging.ErrorWithContext(logger, "escalation log write failed", "escalation_log_write_failed",
			slog.String("escalation_id", entry.ID),
			slog.String("log_path", h.log.Path()),
			slog.String(logging.FieldErrorHint, "check permissions and free space on the log directory"),
			logging.Error(writeErr),
		)
		writeErr = fmt.Errorf("append escalation %s: %w", entry.ID, writeErr)
	}

	h.route(ctx, logger, entry)
	return entry, writeErr
}

// LogCriticalFailure escalates reason at CRITICAL severity.
func (h *Handler) LogCriticalFailure(ctx context.Context, reason, workflowID string, fields map[string]any) (Entry, error) {
	return h.Escalate(ctx, Request{
		Reason:     reason,
		Severity:   SeverityCritical,
		WorkflowID: workflowID,
		Context:    fields,
	})
}

// ReadAll loads every recorded escalation.
func (h *Handler) ReadAll() ([]Entry, error) {
	return jsonl.ReadFile[Entry](h.log.Path())
}

// LogPath reports the escalation log location.
func (h *Handler) LogPath() string {
	return h.log.Path()
}

func (h *Handler) route(ctx context.Context, logger *slog.Logger, entry Entry) {
	attrs := []slog.Attr{
		slog.String("escalation_id", entry.ID),
		slog.String("severity", string(entry.Severity)),
		slog.Any("triggers", triggerStrings(entry.Triggers)),
		slog.String("reason", entry.Reason),
	}
	if entry.Confidence != nil {
		attrs = append(attrs, slog.Float64("confidence", *entry.Confidence))
	}
	if entry.AssumptionDrift != nil {
		attrs = append(attrs, slog.Float64("assumption_drift", *entry.AssumptionDrift))
	}

	switch entry.Severity {
	case SeverityLow:
		logger.Info("escalation raised", logging.Args(attrs...)...)
	case SeverityMedium:
		logging.WarnWithContext(logger, "escalation raised", "escalation",
			append(attrs,
				slog.String(logging.FieldErrorHint, "review the escalation log"),
				slog.String(logging.FieldImpact, "human review requested"),
			)...)
	case SeverityHigh:
		logging.ErrorWithContext(logger, "escalation raised", "escalation",
			append(attrs, slog.String(logging.FieldErrorHint, "a reviewer must act before the workflow proceeds"))...)
		h.notify(ctx, logger, entry)
	default:
		logging.ErrorWithContext(logger, "critical escalation raised", "escalation_critical",
			append(attrs, slog.String(logging.FieldErrorHint, "treat as a trust violation and halt affected workflows"))...)
		h.alert(entry)
		h.notify(ctx, logger, entry)
	}
}

func (h *Handler) alert(entry Entry) {
	if h.alerts == nil {
		return
	}
	head := "CRITICAL ESCALATION"
	if h.color {
		head = "\x1b[1;31m" + head + "\x1b[0m"
	}
	line := fmt.Sprintf("%s %s: %s [%s]", head, entry.Timestamp.Format(time.RFC3339), entry.Reason, strings.Join(triggerStrings(entry.Triggers), ", "))
	if entry.WorkflowID != "" {
		line += " workflow=" + entry.WorkflowID
	}
	_, _ = fmt.Fprintln(h.alerts, line)
}

func (h *Handler) notify(ctx context.Context, logger *slog.Logger, entry Entry) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.NotifyEscalation(ctx, string(entry.Severity), entry.Reason, triggerStrings(entry.Triggers)); err != nil {
		logging.WarnWithContext(logger, "escalation notification failed", "escalation_notify_failed",
			slog.String("escalation_id", entry.ID),
			slog.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			slog.String(logging.FieldImpact, "operator was not paged; the escalation log still has the entry"),
			logging.Error(err),
		)
	}
}

func triggerStrings(triggers []Trigger) []string {
	out := make([]string, len(triggers))
	for i, t := range triggers {
		out[i] = string(t)
	}
	return out
}

// storableFloat copies v, dropping NaN and infinities, which JSON cannot
// carry. The triggers derived from them are kept.
func storableFloat(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	cp := *v
	return &cp
}
