package campaign

import (
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity classifies a diagnostic record.
type Severity string

const (
	SeverityError   Severity = "ERROR"
	SeverityWarning Severity = "WARNING"
)

// ParseSeverity converts a string into a known diagnostic Severity.
func ParseSeverity(value string) (Severity, bool) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "ERROR":
		return SeverityError, true
	case "WARNING", "WARN":
		return SeverityWarning, true
	default:
		return "", false
	}
}

// ErrorCode is a machine-readable diagnostic code.
type ErrorCode string

const (
	CodeWorkflowNotFound            ErrorCode = "WORKFLOW_NOT_FOUND"
	CodeInvalidTransition           ErrorCode = "INVALID_TRANSITION"
	CodeTransitionBlocked           ErrorCode = "TRANSITION_BLOCKED"
	CodeTransitionExecutionFailed   ErrorCode = "TRANSITION_EXECUTION_FAILED"
	CodeArtifactMissing             ErrorCode = "ARTIFACT_MISSING"
	CodeArtifactNotFound            ErrorCode = "ARTIFACT_NOT_FOUND"
	CodeArtifactLoadFailed          ErrorCode = "ARTIFACT_LOAD_FAILED"
	CodeGatePending                 ErrorCode = "GATE_PENDING"
	CodeGateRejected                ErrorCode = "GATE_REJECTED"
	CodeGateNotApproved             ErrorCode = "GATE_NOT_APPROVED"
	CodeGateQueueNotFound           ErrorCode = "GATE_QUEUE_NOT_FOUND"
	CodeGateQueueLoadFailed         ErrorCode = "GATE_QUEUE_LOAD_FAILED"
	CodeGateViolation               ErrorCode = "GATE_VIOLATION"
	CodeRoleMismatch                ErrorCode = "ROLE_MISMATCH"
	CodeExternalConfirmationMissing ErrorCode = "EXTERNAL_CONFIRMATION_MISSING"
	CodeAuditIncomplete             ErrorCode = "AUDIT_INCOMPLETE"
	CodeMetadataDrift               ErrorCode = "METADATA_DRIFT"
	CodeWorkflowHalted              ErrorCode = "WORKFLOW_HALTED"
)

// Retryable reports whether a caller may resubmit the same request without
// remediation. Only a validated transition that failed to persist qualifies.
func (c ErrorCode) Retryable() bool {
	return c == CodeTransitionExecutionFailed
}

// DiagnosticRecord is an immutable error or warning attached to a workflow's
// history and, for violations, to an escalation or audit log.
type DiagnosticRecord struct {
	ID         string         `json:"id"`
	Severity   Severity       `json:"severity"`
	ErrorCode  ErrorCode      `json:"error_code"`
	Message    string         `json:"message"`
	Context    map[string]any `json:"context,omitempty"`
	RecordedAt time.Time      `json:"recorded_at"`
}

// NewDiagnostic builds a record stamped with a fresh id and the current time.
// The context map is copied so later mutation by the caller cannot reach the
// record.
func NewDiagnostic(severity Severity, code ErrorCode, message string, context map[string]any) DiagnosticRecord {
	return DiagnosticRecord{
		ID:         uuid.NewString(),
		Severity:   severity,
		ErrorCode:  code,
		Message:    strings.TrimSpace(message),
		Context:    cloneContext(context),
		RecordedAt: time.Now().UTC(),
	}
}

// ErrorDiagnostic is shorthand for an ERROR severity record.
func ErrorDiagnostic(code ErrorCode, message string, context map[string]any) DiagnosticRecord {
	return NewDiagnostic(SeverityError, code, message, context)
}

// WarningDiagnostic is shorthand for a WARNING severity record.
func WarningDiagnostic(code ErrorCode, message string, context map[string]any) DiagnosticRecord {
	return NewDiagnostic(SeverityWarning, code, message, context)
}

func cloneContext(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	maps.Copy(out, in)
	return out
}
