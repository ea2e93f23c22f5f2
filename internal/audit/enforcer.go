// Package audit verifies that every approval recorded on an artifact is backed
// by a decision in the gate's queue, and keeps the append-only audit log that
// compliance tooling reads.
//
// The checks here are independent of gate approval. An artifact can pass its
// gate and still fail audit when its approved_at stamp has no matching
// decision entry, which is how edits made outside the review flow surface.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"gavel/internal/artifacts"
	"gavel/internal/campaign"
	"gavel/internal/gates"
	"gavel/internal/invariants"
	"gavel/internal/logging"
)

// Check is the outcome of one completeness check.
type Check struct {
	Complete   bool
	Reason     string
	Diagnostic *campaign.DiagnosticRecord
}

// Enforcer runs audit-completeness checks.
type Enforcer struct {
	locator *artifacts.Locator
	queues  *gates.QueueStore
	log     *Log
	logger  *slog.Logger
}

// NewEnforcer wires the enforcer to the artifact directories, the gate
// queues, and the audit log.
func NewEnforcer(locator *artifacts.Locator, queues *gates.QueueStore, log *Log, logger *slog.Logger) *Enforcer {
	return &Enforcer{
		locator: locator,
		queues:  queues,
		log:     log,
		logger:  logging.NewComponentLogger(logger, "audit"),
	}
}

// Log exposes the audit log.
func (e *Enforcer) Log() *Log {
	return e.log
}

// CheckDecisionLogCompleteness reports whether the artifact's approval, if
// any, is backed by an APPROVE decision in the gate queue. An artifact that
// requires no review is complete whatever gateID says; otherwise gateID
// overrides its requires_review when set.
func (e *Enforcer) CheckDecisionLogCompleteness(ctx context.Context, artifactID, gateID string) Check {
	logger := logging.WithContext(ctx, e.logger).With(slog.String(logging.FieldArtifactID, artifactID))

	art, err := e.locator.Find(ctx, artifactID)
	if err != nil {
		code := campaign.CodeArtifactLoadFailed
		reason := fmt.Sprintf("Artifact %s could not be loaded for audit: %v", artifactID, err)
		if errors.Is(err, artifacts.ErrNotFound) {
			code = campaign.CodeArtifactNotFound
			reason = fmt.Sprintf("Artifact %s was not found in any artifact directory", artifactID)
		}
		return e.incomplete(logger, code, reason, map[string]any{"artifact_id": artifactID}, err)
	}
	own := invariants.NormalizeGateID(art.Gate())
	if art.Meta.ApprovedAt == nil || own == "" {
		return Check{Complete: true}
	}
	gate := invariants.NormalizeGateID(gateID)
	if gate == "" {
		gate = own
	}

	fields := map[string]any{
		"artifact_id":   art.ID(),
		"artifact_path": art.Path,
		"gate_id":       gate,
		"approved_at":   art.Meta.ApprovedAt.UTC(),
	}
	queue, err := e.queues.Load(gate)
	if err != nil {
		reason := fmt.Sprintf("Artifact %s has approved_at but the %s decision log is unavailable", art.ID(), gate)
		return e.incomplete(logger, campaign.CodeAuditIncomplete, reason, fields, err)
	}
	review, ok := queue.LatestDecision(art.ID(), art.Path)
	if !ok {
		reason := fmt.Sprintf("Artifact %s has approved_at but no decision entry at gate %s", art.ID(), gate)
		return e.incomplete(logger, campaign.CodeAuditIncomplete, reason, fields, nil)
	}
	if d, _ := campaign.ParseDecision(string(review.Decision)); d != campaign.DecisionApprove {
		fields["review_id"] = review.ReviewID
		reason := fmt.Sprintf("Artifact %s has approved_at but its latest decision at gate %s is %s", art.ID(), gate, review.Decision)
		return e.incomplete(logger, campaign.CodeAuditIncomplete, reason, fields, nil)
	}
	return Check{Complete: true}
}

func (e *Enforcer) incomplete(logger *slog.Logger, code campaign.ErrorCode, reason string, fields map[string]any, cause error) Check {
	attrs := []slog.Attr{
		slog.String(logging.FieldErrorCode, string(code)),
		slog.String("reason", reason),
		slog.String(logging.FieldErrorHint, "record the missing decision in the gate queue or clear approved_at"),
	}
	if cause != nil {
		attrs = append(attrs, logging.Error(cause))
		fields["cause"] = cause.Error()
	}
	logging.ErrorWithContext(logger, "audit incomplete", "audit_incomplete", attrs...)
	diag := campaign.ErrorDiagnostic(code, reason, fields)
	return Check{Reason: reason, Diagnostic: &diag}
}

// ValidateStateTransitionAudit checks every tracked artifact that exists and
// requires review. All failures are collected.
func (e *Enforcer) ValidateStateTransitionAudit(ctx context.Context, wf *campaign.Workflow, target campaign.State) (bool, []string, []campaign.DiagnosticRecord) {
	if wf == nil {
		return true, nil, nil
	}
	ctx = logging.WithWorkflowID(ctx, wf.ID)
	var (
		issues []string
		diags  []campaign.DiagnosticRecord
	)
	for _, name := range sortedKeys(wf.Artifacts) {
		ref := wf.Artifacts[name]
		if !ref.Exists || !ref.RequiresReview {
			continue
		}
		id := ref.ArtifactID
		if id == "" {
			id = name
		}
		check := e.CheckDecisionLogCompleteness(ctx, id, ref.ReviewGate)
		if check.Complete {
			continue
		}
		issues = append(issues, check.Reason)
		if check.Diagnostic != nil {
			d := *check.Diagnostic
			if d.Context == nil {
				d.Context = map[string]any{}
			}
			d.Context["target_state"] = string(target)
			d.Context["workflow_id"] = wf.ID
			diags = append(diags, d)
		}
	}
	return len(issues) == 0, issues, diags
}

// HaltOnAuditViolation appends an audit_violation event and returns the
// diagnostic describing it. A failed append is logged; the diagnostic is
// returned regardless.
func (e *Enforcer) HaltOnAuditViolation(ctx context.Context, workflowID, artifactID, violation string, fields map[string]any) campaign.DiagnosticRecord {
	ctx = logging.WithWorkflowID(ctx, workflowID)
	logger := logging.WithContext(ctx, e.logger)

	details := map[string]any{
		"workflow_id": workflowID,
		"artifact_id": artifactID,
		"violation":   violation,
	}
	for k, v := range fields {
		if _, taken := details[k]; !taken {
			details[k] = v
		}
	}
	message := fmt.Sprintf("Audit violation for artifact %s: %s", artifactID, violation)
	if _, err := e.log.Record(ctx, EventAuditViolation, message, details); err != nil {
		logging.ErrorWithContext(logger, "audit log write failed", "audit_log_write_failed",
			slog.String("log_path", e.log.Path()),
			slog.String(logging.FieldArtifactID, artifactID),
			slog.String(logging.FieldErrorHint, "check permissions and free space on the log directory"),
			logging.Error(err),
		)
	}
	return campaign.ErrorDiagnostic(campaign.CodeAuditIncomplete, message, details)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
