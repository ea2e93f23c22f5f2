// Package artifacts reads and stamps the work-product documents produced by
// drafting collaborators. Each document is a JSON object with a required meta
// block; the rest of the document is opaque and is carried through unchanged
// when review decisions are stamped into meta.
package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gavel/internal/campaign"
	"gavel/internal/fileutil"
)

var (
	// ErrNotFound means no artifact directory holds a document with the id.
	ErrNotFound = errors.New("artifact not found")
	// ErrMalformed means a document exists but its meta block is invalid.
	ErrMalformed = errors.New("artifact malformed")
	// ErrInvalidID means the id could reach outside the artifact directories.
	ErrInvalidID = errors.New("invalid artifact id")
)

// Status is the lifecycle status of an artifact.
type Status string

const (
	StatusSpeculative Status = "SPECULATIVE"
	StatusActionable  Status = "ACTIONABLE"
)

// Meta is the control-plane view of an artifact's meta block.
type Meta struct {
	ArtifactID       string              `json:"artifact_id,omitempty"`
	ArtifactType     string              `json:"artifact_type"`
	Status           Status              `json:"status"`
	RequiresReview   *string             `json:"requires_review"`
	ApprovedAt       *time.Time          `json:"approved_at"`
	ReviewGateStatus *campaign.GateState `json:"review_gate_status"`
}

func (m Meta) validate() error {
	if strings.TrimSpace(m.ArtifactType) == "" {
		return errors.New("meta.artifact_type is empty")
	}
	switch m.Status {
	case StatusSpeculative, StatusActionable:
	default:
		return fmt.Errorf("meta.status %q is not SPECULATIVE or ACTIONABLE", m.Status)
	}
	if m.RequiresReview != nil && strings.TrimSpace(*m.RequiresReview) == "" {
		return errors.New("meta.requires_review is an empty string")
	}
	if m.ReviewGateStatus != nil {
		switch *m.ReviewGateStatus {
		case campaign.GateApproved, campaign.GateRejected:
		default:
			return fmt.Errorf("meta.review_gate_status %q is not APPROVED or REJECTED", *m.ReviewGateStatus)
		}
	}
	return nil
}

// Artifact is one decoded document.
type Artifact struct {
	Path string
	Meta Meta
}

// ID returns the stable artifact id, falling back to the file stem for
// documents written before ids were assigned.
func (a *Artifact) ID() string {
	if id := strings.TrimSpace(a.Meta.ArtifactID); id != "" {
		return id
	}
	return stem(a.Path)
}

// Gate returns the gate named by requires_review, or "".
func (a *Artifact) Gate() string {
	if a.Meta.RequiresReview == nil {
		return ""
	}
	return strings.TrimSpace(*a.Meta.RequiresReview)
}

// Ref converts the document into the workflow's artifact snapshot.
func (a *Artifact) Ref() campaign.ArtifactRef {
	ref := campaign.ArtifactRef{
		Exists:         true,
		RequiresReview: a.Gate() != "",
		ReviewGate:     a.Gate(),
		ArtifactID:     a.ID(),
		Path:           a.Path,
	}
	if a.Meta.ApprovedAt != nil {
		at := a.Meta.ApprovedAt.UTC()
		ref.ApprovedAt = &at
	}
	return ref
}

// Drift lists disagreements inside the meta block that indicate the document
// was edited outside the review flow.
func (a *Artifact) Drift() []string {
	var out []string
	gateApproved := a.Meta.ReviewGateStatus != nil && *a.Meta.ReviewGateStatus == campaign.GateApproved
	if a.Gate() != "" && a.Meta.Status == StatusActionable && a.Meta.ApprovedAt == nil {
		out = append(out, fmt.Sprintf("Artifact %s is ACTIONABLE without approved_at", a.ID()))
	}
	if gateApproved && a.Meta.ApprovedAt == nil {
		out = append(out, fmt.Sprintf("Artifact %s has review_gate_status APPROVED without approved_at", a.ID()))
	}
	return out
}

type document struct {
	Meta json.RawMessage `json:"meta"`
}

// Decode parses data as an artifact document located at path.
func Decode(path string, data []byte) (*Artifact, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	if len(doc.Meta) == 0 || string(doc.Meta) == "null" {
		return nil, fmt.Errorf("%w: %s: meta block is missing", ErrMalformed, path)
	}
	dec := json.NewDecoder(bytes.NewReader(doc.Meta))
	dec.DisallowUnknownFields()
	var meta Meta
	if err := dec.Decode(&meta); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	if err := meta.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	return &Artifact{Path: path, Meta: meta}, nil
}

// Load reads and decodes the document at path.
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}
	return Decode(path, data)
}

// StampDecision records a review decision in the document's meta block,
// leaving every other field untouched. Approval sets approved_at and marks
// the artifact ACTIONABLE; rejection clears approved_at and returns it to
// SPECULATIVE.
func StampDecision(ctx context.Context, path string, decision campaign.Decision, at time.Time) error {
	return fileutil.WithLock(ctx, path, func() error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read artifact %s: %w", path, err)
		}
		if _, err := Decode(path, data); err != nil {
			return err
		}
		var doc map[string]json.RawMessage
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
		}
		var meta map[string]json.RawMessage
		if err := json.Unmarshal(doc["meta"], &meta); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
		}

		switch decision {
		case campaign.DecisionApprove:
			meta["approved_at"] = mustJSON(at.UTC())
			meta["review_gate_status"] = mustJSON(campaign.GateApproved)
			meta["status"] = mustJSON(StatusActionable)
		case campaign.DecisionReject:
			meta["approved_at"] = json.RawMessage("null")
			meta["review_gate_status"] = mustJSON(campaign.GateRejected)
			meta["status"] = mustJSON(StatusSpeculative)
		default:
			return fmt.Errorf("unknown decision %q", decision)
		}

		doc["meta"] = mustJSON(meta)
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("encode artifact %s: %w", path, err)
		}
		return fileutil.WriteFileAtomic(path, append(out, '\n'), 0o644)
	})
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("artifacts: marshal %T: %v", v, err))
	}
	return data
}

func stem(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
