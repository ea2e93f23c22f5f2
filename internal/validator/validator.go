// Package validator decides whether a workflow may move to a target state.
//
// Checks run in three classes: transition legality, then required artifacts
// and their gate approvals, then external confirmation. The first failing
// class ends validation, but every failure inside that class is reported so
// an operator can fix them in one pass.
package validator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gavel/internal/campaign"
	"gavel/internal/gates"
	"gavel/internal/invariants"
	"gavel/internal/logging"
)

// GateChecker answers whether an artifact is approved at a gate.
// *gates.Enforcer satisfies it.
type GateChecker interface {
	RequireGate(ctx context.Context, gateID, artifactID, artifactPath string, wf *campaign.Workflow) gates.Result
}

// Result is the outcome of a validation. Issues holds one readable line per
// failure; Diagnostics holds the structured record for each.
type Result struct {
	Valid       bool
	Issues      []string
	Diagnostics []campaign.DiagnosticRecord
}

func (r *Result) add(issue string, diag campaign.DiagnosticRecord) {
	r.Issues = append(r.Issues, issue)
	r.Diagnostics = append(r.Diagnostics, diag)
}

func (r *Result) failed() bool {
	return len(r.Issues) > 0
}

// Validator applies the invariant table to workflow snapshots.
type Validator struct {
	table  *invariants.Table
	gates  GateChecker
	logger *slog.Logger
}

// New builds a validator. A nil table uses the built-in rules.
func New(table *invariants.Table, gates GateChecker, logger *slog.Logger) *Validator {
	if table == nil {
		table = invariants.Default()
	}
	return &Validator{
		table:  table,
		gates:  gates,
		logger: logging.NewComponentLogger(logger, "validator"),
	}
}

// Table returns the rule set in use.
func (v *Validator) Table() *invariants.Table {
	return v.table
}

// Validate checks whether wf may move to target. confirmation may be nil.
// The workflow is only read.
func (v *Validator) Validate(ctx context.Context, wf *campaign.Workflow, target campaign.State, confirmation *campaign.ExternalConfirmation) Result {
	var res Result
	if wf == nil {
		res.add("Workflow snapshot is missing", campaign.ErrorDiagnostic(campaign.CodeWorkflowNotFound, "Workflow snapshot is missing", nil))
		return res
	}
	ctx = logging.WithWorkflowID(ctx, wf.ID)
	logger := logging.WithContext(ctx, v.logger)
	from := wf.LegislativeState

	for _, class := range []func(context.Context, *campaign.Workflow, campaign.State, *campaign.ExternalConfirmation, *Result){
		v.checkLegality,
		v.checkArtifacts,
		v.checkConfirmation,
	} {
		class(ctx, wf, target, confirmation, &res)
		if res.failed() {
			logger.Debug("transition invalid",
				slog.String("from_state", string(from)),
				slog.String("to_state", string(target)),
				slog.Int("issues", len(res.Issues)),
			)
			return res
		}
	}
	res.Valid = true
	logger.Debug("transition valid",
		slog.String("from_state", string(from)),
		slog.String("to_state", string(target)),
		slog.String("rules_version", v.table.Version()),
	)
	return res
}

func (v *Validator) checkLegality(_ context.Context, wf *campaign.Workflow, target campaign.State, _ *campaign.ExternalConfirmation, res *Result) {
	from := wf.LegislativeState
	if v.table.Allowed(from, target) {
		return
	}
	allowed := v.table.Next(from)
	var msg string
	switch {
	case v.table.IsTerminal(from):
		msg = fmt.Sprintf("Invalid transition from %s to %s; %s is terminal and allows no further transitions", from, target, from)
	case len(allowed) == 1:
		msg = fmt.Sprintf("Invalid transition from %s to %s; allowed next state: %s", from, target, allowed[0])
	default:
		msg = fmt.Sprintf("Invalid transition from %s to %s; allowed next states: %s", from, target, joinStates(allowed))
	}
	res.add(msg, campaign.ErrorDiagnostic(campaign.CodeInvalidTransition, msg, map[string]any{
		"from_state":    string(from),
		"to_state":      string(target),
		"allowed_next":  stateStrings(allowed),
		"rules_version": v.table.Version(),
	}))
}

func (v *Validator) checkArtifacts(ctx context.Context, wf *campaign.Workflow, target campaign.State, _ *campaign.ExternalConfirmation, res *Result) {
	from := wf.LegislativeState
	for _, req := range v.table.Requirements(from) {
		ref, ok := wf.Artifacts[req.Name]
		if !ok || !ref.Exists {
			msg := fmt.Sprintf("Required artifact %s is missing", req.Name)
			res.add(msg, campaign.ErrorDiagnostic(campaign.CodeArtifactMissing, msg, map[string]any{
				"artifact_name": req.Name,
				"from_state":    string(from),
				"to_state":      string(target),
			}))
			continue
		}

		artifactID := ref.ArtifactID
		if artifactID == "" {
			artifactID = req.Name
		}
		required := effectiveGates(req, ref)
		if len(required) == 0 && ref.RequiresReview {
			msg := fmt.Sprintf("Artifact %s requires review but names no gate", artifactID)
			res.add(msg, campaign.ErrorDiagnostic(campaign.CodeGateNotApproved, msg, map[string]any{
				"artifact_name": req.Name,
				"artifact_id":   artifactID,
			}))
			continue
		}
		for _, gate := range required {
			if v.gates == nil {
				msg := fmt.Sprintf("Artifact %s is not approved at gate %s", artifactID, gate)
				res.add(msg, campaign.ErrorDiagnostic(campaign.CodeGateNotApproved, msg, map[string]any{"gate_id": gate, "artifact_id": artifactID}))
				continue
			}
			check := v.gates.RequireGate(ctx, gate, artifactID, ref.Path, wf)
			if check.Approved {
				continue
			}
			if check.Diagnostic != nil {
				res.add(check.Reason, *check.Diagnostic)
				continue
			}
			severity := campaign.SeverityError
			if check.Code == campaign.CodeGatePending {
				severity = campaign.SeverityWarning
			}
			res.add(check.Reason, campaign.NewDiagnostic(severity, check.Code, check.Reason, map[string]any{
				"gate_id":       gate,
				"artifact_id":   artifactID,
				"artifact_name": req.Name,
			}))
		}
	}
}

// effectiveGates is the union of the table's gate and the gate the artifact
// itself names, so a document that asks for review cannot skip it.
func effectiveGates(req invariants.ArtifactRequirement, ref campaign.ArtifactRef) []string {
	var out []string
	if req.Gate != "" {
		out = append(out, invariants.NormalizeGateID(req.Gate))
	}
	if ref.RequiresReview && strings.TrimSpace(ref.ReviewGate) != "" {
		gate := invariants.NormalizeGateID(ref.ReviewGate)
		if len(out) == 0 || out[0] != gate {
			out = append(out, gate)
		}
	}
	return out
}

func (v *Validator) checkConfirmation(_ context.Context, wf *campaign.Workflow, target campaign.State, supplied *campaign.ExternalConfirmation, res *Result) {
	from := wf.LegislativeState
	eventType, needed := v.table.RequiresConfirmation(from, target)
	if !needed {
		return
	}
	if supplied != nil && strings.TrimSpace(supplied.EventType) == eventType && !supplied.Empty() {
		return
	}
	if stored, ok := wf.ExternalConfirmations[eventType]; ok && !stored.Empty() {
		return
	}
	msg := fmt.Sprintf("External confirmation %s is required for %s -> %s", eventType, from, target)
	fields := map[string]any{
		"event_type": eventType,
		"from_state": string(from),
		"to_state":   string(target),
	}
	if supplied != nil && strings.TrimSpace(supplied.EventType) != "" {
		fields["supplied_event_type"] = supplied.EventType
	}
	res.add(msg, campaign.ErrorDiagnostic(campaign.CodeExternalConfirmationMissing, msg, fields))
}

func stateStrings(states []campaign.State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

func joinStates(states []campaign.State) string {
	if len(states) == 0 {
		return "none"
	}
	return strings.Join(stateStrings(states), ", ")
}
