package gates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gavel/internal/campaign"
	"gavel/internal/escalation"
	"gavel/internal/invariants"
	"gavel/internal/logging"
)

// Escalator records escalations. *escalation.Handler satisfies it.
type Escalator interface {
	Escalate(ctx context.Context, req escalation.Request) (escalation.Entry, error)
}

// Result is the outcome of a gate check.
type Result struct {
	Approved bool
	Code     campaign.ErrorCode
	Reason   string
	// Review is the queue entry that decided the result, when there was one.
	Review *campaign.Review
	// Diagnostic is set only when the queue itself could not be consulted.
	Diagnostic *campaign.DiagnosticRecord
}

// Enforcer answers whether an artifact has passed a gate and whether a
// decision maker may approve one.
type Enforcer struct {
	queues    *QueueStore
	table     *invariants.Table
	escalator Escalator
	logger    *slog.Logger
}

// NewEnforcer builds an enforcer. A nil escalator is allowed for read-only
// callers, but role mismatches then go only to the process log.
func NewEnforcer(queues *QueueStore, table *invariants.Table, escalator Escalator, logger *slog.Logger) *Enforcer {
	if table == nil {
		table = invariants.Default()
	}
	return &Enforcer{
		queues:    queues,
		table:     table,
		escalator: escalator,
		logger:    logging.NewComponentLogger(logger, "gates"),
	}
}

// Queues exposes the underlying queue store.
func (e *Enforcer) Queues() *QueueStore {
	return e.queues
}

// RequireGate reports whether artifactID has been approved at gateID. The
// queue's decided reviews are consulted first, then its pending reviews, then
// the gate snapshot held by wf (which may be nil). A missing or unreadable
// queue fails closed.
func (e *Enforcer) RequireGate(ctx context.Context, gateID, artifactID, artifactPath string, wf *campaign.Workflow) Result {
	gateID = invariants.NormalizeGateID(gateID)
	ctx = logging.WithGateID(ctx, gateID)
	logger := logging.WithContext(ctx, e.logger)
	match := func(r campaign.Review) bool { return r.Matches(artifactID, artifactPath) }

	queue, err := e.queues.Load(gateID)
	queueMissing := errors.Is(err, ErrQueueNotFound)
	switch {
	case err == nil:
		if res, ok := e.fromReviews(gateID, artifactID, queue.ApprovedReviews, queue.PendingReviews, match); ok {
			return res
		}
	case queueMissing:
		// fall through to the snapshot
	default:
		reason := fmt.Sprintf("Review gate %s queue could not be loaded: %v", gateID, err)
		diag := campaign.ErrorDiagnostic(campaign.CodeGateQueueLoadFailed, reason, map[string]any{
			"gate_id":     gateID,
			"artifact_id": artifactID,
			"queue_path":  e.queues.Path(gateID),
		})
		logging.ErrorWithContext(logger, "gate queue unreadable", "gate_queue_load_failed",
			slog.String(logging.FieldArtifactID, artifactID),
			slog.String("queue_path", e.queues.Path(gateID)),
			slog.String(logging.FieldErrorHint, "fix or restore the queue document; the gate stays closed until it parses"),
			logging.Error(err),
		)
		return Result{Code: campaign.CodeGateQueueLoadFailed, Reason: reason, Diagnostic: &diag}
	}

	if wf != nil {
		if snap, ok := wf.ReviewGates[gateID]; ok {
			approved := snap.ApprovedReviews
			if snap.State != campaign.GateApproved {
				approved = onlyRejections(approved)
			}
			if res, ok := e.fromReviews(gateID, artifactID, approved, snap.PendingReviews, match); ok {
				return res
			}
		}
	}

	if queueMissing {
		reason := fmt.Sprintf("Review gate %s queue not found", gateID)
		diag := campaign.ErrorDiagnostic(campaign.CodeGateQueueNotFound, reason, map[string]any{
			"gate_id":     gateID,
			"artifact_id": artifactID,
			"queue_path":  e.queues.Path(gateID),
		})
		logging.WarnWithContext(logger, "gate queue missing", "gate_queue_not_found",
			slog.String(logging.FieldArtifactID, artifactID),
			slog.String("queue_path", e.queues.Path(gateID)),
			slog.String(logging.FieldErrorHint, "submit the artifact for review to create the queue"),
			slog.String(logging.FieldImpact, "transition blocked"),
		)
		return Result{Code: campaign.CodeGateQueueNotFound, Reason: reason, Diagnostic: &diag}
	}
	return Result{
		Code:   campaign.CodeGateNotApproved,
		Reason: fmt.Sprintf("Artifact %s is not approved at gate %s", artifactID, gateID),
	}
}

// fromReviews looks for a decision, then a pending entry. ok is false when
// neither list mentions the artifact. Roles are checked when a decision is
// recorded, not here.
func (e *Enforcer) fromReviews(gateID, artifactID string, decided, pending []campaign.Review, match func(campaign.Review) bool) (Result, bool) {
	if latest, ok := latestDecision(decided, match); ok {
		review := latest
		decision, _ := campaign.ParseDecision(string(latest.Decision))
		if decision == campaign.DecisionReject {
			return Result{
				Code:   campaign.CodeGateRejected,
				Reason: fmt.Sprintf("Artifact %s was rejected at gate %s", artifactID, gateID),
				Review: &review,
			}, true
		}
		return Result{Approved: true, Review: &review}, true
	}
	for _, p := range pending {
		if match(p) {
			review := p
			return Result{
				Code:   campaign.CodeGatePending,
				Reason: fmt.Sprintf("Artifact %s is pending review at gate %s", artifactID, gateID),
				Review: &review,
			}, true
		}
	}
	return Result{}, false
}

// onlyRejections keeps REJECT entries. A snapshot that is not APPROVED
// cannot approve anything but can still explain a rejection.
func onlyRejections(reviews []campaign.Review) []campaign.Review {
	var out []campaign.Review
	for _, r := range reviews {
		if d, _ := campaign.ParseDecision(string(r.Decision)); d == campaign.DecisionReject {
			out = append(out, r)
		}
	}
	return out
}

// ValidateHumanRole reports whether decisionMaker may decide at gateID. When
// requiredRoles is nil the table's roles for the gate apply. A gate with no
// configured roles accepts anyone, with a warning. Every mismatch raises one
// HIGH escalation.
func (e *Enforcer) ValidateHumanRole(ctx context.Context, gateID, decisionMaker string, requiredRoles []string) (bool, string) {
	gateID = invariants.NormalizeGateID(gateID)
	ctx = logging.WithGateID(ctx, gateID)
	logger := logging.WithContext(ctx, e.logger)

	roles := requiredRoles
	if roles == nil {
		roles, _ = e.table.GateRoles(gateID)
	}
	if len(roles) == 0 {
		logging.WarnWithContext(logger, "gate has no role requirement; accepting decision", "gate_roles_unconfigured",
			slog.String("decision_by", decisionMaker),
			slog.String(logging.FieldErrorHint, "set [gates.roles] for this gate"),
			slog.String(logging.FieldImpact, "any human may approve this gate"),
		)
		return true, ""
	}

	principal, err := ParsePrincipal(decisionMaker)
	var msg string
	switch {
	case err != nil:
		msg = fmt.Sprintf("Decision maker %q is not a valid principal (%v); %s requires one of: %s", decisionMaker, err, gateID, strings.Join(roles, ", "))
	case !principal.IsHuman():
		msg = fmt.Sprintf("Decision maker %q is not human; %s requires one of: %s", decisionMaker, gateID, strings.Join(roles, ", "))
	case RoleMatches(principal.Role, roles):
		return true, ""
	default:
		msg = fmt.Sprintf("Decision maker %q does not hold a role permitted at %s; required one of: %s", decisionMaker, gateID, strings.Join(roles, ", "))
	}

	e.escalate(ctx, logger, escalation.Request{
		Reason:   fmt.Sprintf("Role mismatch at %s: %s", gateID, msg),
		Severity: escalation.SeverityHigh,
		Context: map[string]any{
			"gate_id":        gateID,
			"decision_by":    decisionMaker,
			"required_roles": roles,
			"error_code":     string(campaign.CodeRoleMismatch),
		},
	})
	return false, msg
}

// HaltOnViolation escalates a gate violation at CRITICAL severity and returns
// the diagnostic the caller should attach to the workflow.
func (e *Enforcer) HaltOnViolation(ctx context.Context, workflowID, gateID, artifactID, violation string) campaign.DiagnosticRecord {
	gateID = invariants.NormalizeGateID(gateID)
	ctx = logging.WithGateID(logging.WithWorkflowID(ctx, workflowID), gateID)
	logger := logging.WithContext(ctx, e.logger)

	message := fmt.Sprintf("Gate violation at %s for artifact %s: %s", gateID, artifactID, strings.TrimSpace(violation))
	fields := map[string]any{
		"gate_id":     gateID,
		"artifact_id": artifactID,
		"violation":   violation,
	}
	e.escalate(ctx, logger, escalation.Request{
		Reason:     message,
		Severity:   escalation.SeverityCritical,
		WorkflowID: workflowID,
		Context:    fields,
	})
	return campaign.ErrorDiagnostic(campaign.CodeGateViolation, message, fields)
}

func (e *Enforcer) escalate(ctx context.Context, logger *slog.Logger, req escalation.Request) {
	if e.escalator == nil {
		logging.ErrorWithContext(logger, "escalation dropped: no escalator configured", "escalation_unrouted",
			slog.String("reason", req.Reason),
			slog.String("severity", string(req.Severity)),
		)
		return
	}
	// Escalate logs its own write failures.
	_, _ = e.escalator.Escalate(ctx, req)
}
