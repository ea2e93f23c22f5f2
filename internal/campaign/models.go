package campaign

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Review is one entry of a gate queue. Pending entries carry no decision;
// decided entries carry the decision, who made it, when, and why.
type Review struct {
	ReviewID     string     `json:"review_id,omitempty"`
	ArtifactID   string     `json:"artifact_id,omitempty"`
	ArtifactPath string     `json:"artifact_path,omitempty"`
	Decision     Decision   `json:"decision,omitempty"`
	DecisionBy   string     `json:"decision_by,omitempty"`
	DecisionAt   *time.Time `json:"decision_at,omitempty"`
	Rationale    string     `json:"rationale,omitempty"`
	SubmittedAt  *time.Time `json:"submitted_at,omitempty"`
}

// ValidateDecided checks the fields a decided review must carry.
func (r Review) ValidateDecided() error {
	if strings.TrimSpace(r.ArtifactID) == "" && strings.TrimSpace(r.ArtifactPath) == "" && strings.TrimSpace(r.ReviewID) == "" {
		return errors.New("review has no artifact_id, artifact_path, or review_id")
	}
	if _, ok := ParseDecision(string(r.Decision)); !ok {
		return fmt.Errorf("review decision %q is not APPROVE or REJECT", r.Decision)
	}
	if strings.TrimSpace(r.DecisionBy) == "" {
		return errors.New("review decision_by is empty")
	}
	if r.DecisionAt == nil || r.DecisionAt.IsZero() {
		return errors.New("review decision_at is missing")
	}
	return nil
}

// ValidatePending checks the fields a pending review must carry.
func (r Review) ValidatePending() error {
	if strings.TrimSpace(r.ArtifactID) == "" && strings.TrimSpace(r.ArtifactPath) == "" && strings.TrimSpace(r.ReviewID) == "" {
		return errors.New("review has no artifact_id, artifact_path, or review_id")
	}
	return nil
}

// Matches reports whether the review refers to the artifact with the given
// id and file path. The stable artifact_id is the primary key; path suffix,
// file name, and review id comparisons are kept for entries written by the
// older approval scripts, which recorded only a path relative to their own
// working directory.
func (r Review) Matches(artifactID, artifactPath string) bool {
	artifactID = strings.TrimSpace(artifactID)
	if artifactID != "" && strings.TrimSpace(r.ArtifactID) == artifactID {
		return true
	}
	return r.legacyMatch(artifactID, artifactPath)
}

func (r Review) legacyMatch(artifactID, artifactPath string) bool {
	reviewPath := filepath.ToSlash(strings.TrimSpace(r.ArtifactPath))
	artifactPath = filepath.ToSlash(strings.TrimSpace(artifactPath))
	if reviewPath != "" {
		if artifactPath != "" {
			if pathHasSuffix(artifactPath, reviewPath) || pathHasSuffix(reviewPath, path.Base(artifactPath)) {
				return true
			}
		}
		if artifactID != "" {
			name := path.Base(reviewPath)
			if name == artifactID || strings.TrimSuffix(name, path.Ext(name)) == artifactID {
				return true
			}
		}
	}
	return artifactID != "" && strings.TrimSpace(r.ReviewID) == artifactID
}

// pathHasSuffix reports whether suffix names the trailing path elements of full.
func pathHasSuffix(full, suffix string) bool {
	suffix = strings.TrimPrefix(suffix, "./")
	if suffix == "" || suffix == "." || suffix == "/" {
		return false
	}
	return full == suffix || strings.HasSuffix(full, "/"+strings.TrimPrefix(suffix, "/"))
}

// ReviewGateStatus is a read-only snapshot of one gate's queue.
type ReviewGateStatus struct {
	GateID          string    `json:"gate_id"`
	State           GateState `json:"state"`
	PendingReviews  []Review  `json:"pending_reviews"`
	ApprovedReviews []Review  `json:"approved_reviews"`
}

// ArtifactRef is the workflow's view of one tracked work-product.
type ArtifactRef struct {
	Exists         bool       `json:"exists"`
	RequiresReview bool       `json:"requires_review"`
	ReviewGate     string     `json:"review_gate,omitempty"`
	ArtifactID     string     `json:"artifact_id"`
	Path           string     `json:"path,omitempty"`
	ApprovedAt     *time.Time `json:"approved_at,omitempty"`
}

// ExternalConfirmation is independently sourced evidence of a real-world
// event, such as a bill being referred to committee.
type ExternalConfirmation struct {
	EventType       string    `json:"event_type"`
	Summary         string    `json:"summary,omitempty"`
	ConfirmedAt     time.Time `json:"confirmed_at"`
	SourceReference string    `json:"source_reference,omitempty"`
	ConfirmedBy     string    `json:"confirmed_by"`
}

// Empty reports whether the confirmation carries no usable evidence.
func (c *ExternalConfirmation) Empty() bool {
	if c == nil || strings.TrimSpace(c.EventType) == "" {
		return true
	}
	return strings.TrimSpace(c.Summary) == "" && strings.TrimSpace(c.SourceReference) == ""
}

// StateHistoryEntry records one applied transition.
type StateHistoryEntry struct {
	FromState            State                 `json:"from_state"`
	ToState              State                 `json:"to_state"`
	Timestamp            time.Time             `json:"timestamp"`
	ApprovedBy           string                `json:"approved_by"`
	ExternalConfirmation *ExternalConfirmation `json:"external_confirmation,omitempty"`
}

// Workflow is the per-campaign record.
type Workflow struct {
	ID                    string                          `json:"id"`
	LegislativeState      State                           `json:"legislative_state"`
	OrchestratorState     OrchestratorState               `json:"orchestrator_state"`
	StateHistory          []StateHistoryEntry             `json:"state_history"`
	ReviewGates           map[string]ReviewGateStatus     `json:"review_gates"`
	Artifacts             map[string]ArtifactRef          `json:"artifacts"`
	ExternalConfirmations map[string]ExternalConfirmation `json:"external_confirmations"`
	Diagnostics           []DiagnosticRecord              `json:"diagnostics"`
	LastError             *DiagnosticRecord               `json:"last_error"`
	Version               int64                           `json:"version"`
	CreatedAt             time.Time                       `json:"created_at"`
	UpdatedAt             time.Time                       `json:"updated_at"`
}

// NewWorkflow returns a workflow at the start of the legislative sequence.
func NewWorkflow(id string, now time.Time) *Workflow {
	now = now.UTC()
	return &Workflow{
		ID:                    strings.TrimSpace(id),
		LegislativeState:      StatePre,
		OrchestratorState:     OrchestratorActive,
		StateHistory:          []StateHistoryEntry{},
		ReviewGates:           map[string]ReviewGateStatus{},
		Artifacts:             map[string]ArtifactRef{},
		ExternalConfirmations: map[string]ExternalConfirmation{},
		Diagnostics:           []DiagnosticRecord{},
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// Validate rejects documents that could not have been produced by the
// control plane.
func (w *Workflow) Validate() error {
	if w == nil {
		return errors.New("workflow is nil")
	}
	if strings.TrimSpace(w.ID) == "" {
		return errors.New("workflow id is empty")
	}
	if !w.LegislativeState.Valid() {
		return fmt.Errorf("workflow %s: unknown legislative_state %q", w.ID, w.LegislativeState)
	}
	if _, ok := ParseOrchestratorState(string(w.OrchestratorState)); !ok {
		return fmt.Errorf("workflow %s: unknown orchestrator_state %q", w.ID, w.OrchestratorState)
	}
	if w.Version < 0 {
		return fmt.Errorf("workflow %s: negative version %d", w.ID, w.Version)
	}
	for i, entry := range w.StateHistory {
		if entry.FromState.Index() < 0 || entry.ToState.Index() != entry.FromState.Index()+1 {
			return fmt.Errorf("workflow %s: state_history[%d] %s -> %s is not a single forward step", w.ID, i, entry.FromState, entry.ToState)
		}
	}
	if n := len(w.StateHistory); n > 0 && w.StateHistory[n-1].ToState != w.LegislativeState {
		return fmt.Errorf("workflow %s: legislative_state %s disagrees with last history entry %s", w.ID, w.LegislativeState, w.StateHistory[n-1].ToState)
	}
	for gateID, gate := range w.ReviewGates {
		if _, ok := ParseGateState(string(gate.State)); !ok {
			return fmt.Errorf("workflow %s: gate %s has unknown state %q", w.ID, gateID, gate.State)
		}
	}
	for i, diag := range w.Diagnostics {
		if _, ok := ParseSeverity(string(diag.Severity)); !ok {
			return fmt.Errorf("workflow %s: diagnostics[%d] has unknown severity %q", w.ID, i, diag.Severity)
		}
	}
	return nil
}

// normalizeMaps replaces nil collections so callers can write without checks.
func (w *Workflow) normalizeMaps() {
	if w.StateHistory == nil {
		w.StateHistory = []StateHistoryEntry{}
	}
	if w.ReviewGates == nil {
		w.ReviewGates = map[string]ReviewGateStatus{}
	}
	if w.Artifacts == nil {
		w.Artifacts = map[string]ArtifactRef{}
	}
	if w.ExternalConfirmations == nil {
		w.ExternalConfirmations = map[string]ExternalConfirmation{}
	}
	if w.Diagnostics == nil {
		w.Diagnostics = []DiagnosticRecord{}
	}
}

// DecodeWorkflow parses a stored workflow document, rejecting unknown fields
// and invalid enum values.
func DecodeWorkflow(data []byte) (*Workflow, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var wf Workflow
	if err := dec.Decode(&wf); err != nil {
		return nil, fmt.Errorf("decode workflow: %w", err)
	}
	if err := wf.Validate(); err != nil {
		return nil, err
	}
	wf.normalizeMaps()
	return &wf, nil
}

// EncodeWorkflow serializes a workflow document.
func EncodeWorkflow(w *Workflow) ([]byte, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode workflow: %w", err)
	}
	return data, nil
}

// Clone returns a deep copy suitable for handing out as a read-only view.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	data, err := json.Marshal(w)
	if err != nil {
		return nil
	}
	var cp Workflow
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil
	}
	cp.normalizeMaps()
	return &cp
}

// RecordDiagnostic appends d to the history and mirrors it into LastError.
func (w *Workflow) RecordDiagnostic(d DiagnosticRecord) {
	w.normalizeMaps()
	w.Diagnostics = append(w.Diagnostics, d)
	last := d
	w.LastError = &last
}
