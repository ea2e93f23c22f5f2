package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gavel/internal/campaign"
)

// ArtifactFixture describes an artifact document to write.
type ArtifactFixture struct {
	ID               string
	Type             string
	Status           string
	RequiresReview   string
	ApprovedAt       *time.Time
	ReviewGateStatus string
	// OmitID leaves meta.artifact_id out so the file stem becomes the id.
	OmitID bool
}

// WriteArtifact writes an artifact document named <ID>.json into dir and
// returns its path.
func WriteArtifact(t testing.TB, dir string, fx ArtifactFixture) string {
	t.Helper()

	meta := map[string]any{
		"artifact_type":      orDefault(fx.Type, "memo"),
		"status":             orDefault(fx.Status, "SPECULATIVE"),
		"requires_review":    nil,
		"approved_at":        nil,
		"review_gate_status": nil,
	}
	if !fx.OmitID {
		meta["artifact_id"] = fx.ID
	}
	if fx.RequiresReview != "" {
		meta["requires_review"] = fx.RequiresReview
	}
	if fx.ApprovedAt != nil {
		meta["approved_at"] = fx.ApprovedAt.UTC().Format(time.RFC3339)
	}
	if fx.ReviewGateStatus != "" {
		meta["review_gate_status"] = fx.ReviewGateStatus
	}
	path := filepath.Join(dir, fx.ID+".json")
	writeJSON(t, path, map[string]any{
		"meta": meta,
		"body": "draft text for " + fx.ID,
	})
	return path
}

// WriteQueue writes a gate queue document into dir and returns its path.
func WriteQueue(t testing.TB, dir, gate string, pending, decided []campaign.Review) string {
	t.Helper()

	if pending == nil {
		pending = []campaign.Review{}
	}
	if decided == nil {
		decided = []campaign.Review{}
	}
	path := filepath.Join(dir, gate+"_queue.json")
	writeJSON(t, path, map[string]any{
		"gate_id":          gate,
		"pending_reviews":  pending,
		"approved_reviews": decided,
	})
	return path
}

// Approval builds a decided APPROVE entry.
func Approval(artifactID, artifactPath, by string, at time.Time) campaign.Review {
	return campaign.Review{
		ArtifactID:   artifactID,
		ArtifactPath: artifactPath,
		Decision:     campaign.DecisionApprove,
		DecisionBy:   by,
		DecisionAt:   &at,
		Rationale:    "looks right",
	}
}

func writeJSON(t testing.TB, path string, v any) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
