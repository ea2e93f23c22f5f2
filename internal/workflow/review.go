package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gavel/internal/artifacts"
	"gavel/internal/audit"
	"gavel/internal/campaign"
	"gavel/internal/gates"
	"gavel/internal/invariants"
	"gavel/internal/logging"
)

// DecisionRequest is a reviewer's verdict on one artifact at one gate.
type DecisionRequest struct {
	Gate       string
	ArtifactID string
	Decision   campaign.Decision
	// By is the decision maker as "kind:role"; a bare role means human.
	By        string
	Rationale string
}

// SubmitForReview queues the artifact for a decision at gate. Submitting an
// artifact that is already pending returns the existing entry.
func (m *Manager) SubmitForReview(ctx context.Context, gate, artifactID string) (campaign.Review, error) {
	gate = invariants.NormalizeGateID(gate)
	ctx = logging.WithGateID(ctx, gate)
	logger := logging.WithContext(ctx, m.logger)
	doc, err := m.reviewTarget(ctx, artifactID)
	if err != nil {
		return campaign.Review{}, err
	}
	review, err := m.gates.Queues().Submit(ctx, gate, doc.ID(), doc.Path)
	if err != nil {
		return campaign.Review{}, fmt.Errorf("submit %s to %s: %w", doc.ID(), gate, err)
	}
	m.record(ctx, logger, audit.EventReviewSubmitted, fmt.Sprintf("Artifact %s submitted to %s", doc.ID(), gate), map[string]any{
		"gate_id":     gate,
		"artifact_id": doc.ID(),
		"review_id":   review.ReviewID,
	})
	logger.Info("artifact submitted for review",
		slog.String(logging.FieldEventType, "review_submitted"),
		slog.String(logging.FieldArtifactID, doc.ID()),
		slog.String("review_id", review.ReviewID),
	)
	return review, nil
}

// Decide records a review decision. The decision maker must be a human
// holding one of the gate's roles; a mismatch is escalated by the gate
// enforcer and returned as ErrRoleMismatch. The queue entry is written
// before the artifact is stamped, so a crash in between leaves an audit
// trail rather than an unbacked approval.
func (m *Manager) Decide(ctx context.Context, req DecisionRequest) (campaign.Review, error) {
	gate := invariants.NormalizeGateID(req.Gate)
	ctx = logging.WithGateID(ctx, gate)
	logger := logging.WithContext(ctx, m.logger)

	decision, ok := campaign.ParseDecision(string(req.Decision))
	if !ok {
		return campaign.Review{}, fmt.Errorf("unknown decision %q", req.Decision)
	}
	doc, err := m.reviewTarget(ctx, req.ArtifactID)
	if err != nil {
		return campaign.Review{}, err
	}

	if permitted, msg := m.gates.ValidateHumanRole(ctx, gate, req.By, nil); !permitted {
		return campaign.Review{}, fmt.Errorf("%w: %s", ErrRoleMismatch, msg)
	}
	principal, err := gates.ParsePrincipal(req.By)
	if err != nil {
		return campaign.Review{}, fmt.Errorf("%w: %v", ErrRoleMismatch, err)
	}
	if !principal.IsHuman() {
		return campaign.Review{}, fmt.Errorf("%w: %s is not human; decisions at %s must be made by a person", ErrRoleMismatch, principal, gate)
	}

	at := m.now()
	review, err := m.gates.Queues().RecordDecision(ctx, gate, doc.ID(), doc.Path, decision, principal, req.Rationale, at)
	if err != nil {
		return campaign.Review{}, fmt.Errorf("record decision: %w", err)
	}
	fields := map[string]any{
		"gate_id":     gate,
		"artifact_id": doc.ID(),
		"review_id":   review.ReviewID,
		"decision":    string(decision),
		"decision_by": review.DecisionBy,
		"rationale":   review.Rationale,
	}
	if err := artifacts.StampDecision(ctx, doc.Path, decision, at); err != nil {
		logging.ErrorWithContext(logger, "decision recorded but artifact not stamped", "artifact_stamp_failed",
			slog.String(logging.FieldArtifactID, doc.ID()),
			slog.String("path", doc.Path),
			slog.String(logging.FieldErrorHint, "re-run the decision once the artifact is writable"),
			logging.Error(err),
		)
		fields["stamp_error"] = err.Error()
		m.record(ctx, logger, audit.EventReviewDecision, fmt.Sprintf("%s decision on %s at %s recorded; artifact not stamped", decision, doc.ID(), gate), fields)
		return review, fmt.Errorf("stamp artifact %s: %w", doc.ID(), err)
	}

	m.record(ctx, logger, audit.EventReviewDecision, fmt.Sprintf("%s decision on %s at %s by %s", decision, doc.ID(), gate, review.DecisionBy), fields)
	logger.Info("review decision recorded",
		slog.String(logging.FieldEventType, "review_decision"),
		slog.String(logging.FieldArtifactID, doc.ID()),
		slog.String("decision", string(decision)),
		slog.String("decision_by", review.DecisionBy),
	)
	return review, nil
}

func (m *Manager) reviewTarget(ctx context.Context, artifactID string) (*artifacts.Artifact, error) {
	if m.gates == nil {
		return nil, fmt.Errorf("gate enforcer: %w", ErrNotConfigured)
	}
	if m.locator == nil {
		return nil, fmt.Errorf("artifact locator: %w", ErrNotConfigured)
	}
	artifactID = strings.TrimSpace(artifactID)
	return m.locator.Find(ctx, artifactID)
}
