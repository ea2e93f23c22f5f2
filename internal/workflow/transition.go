package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"gavel/internal/audit"
	"gavel/internal/campaign"
	"gavel/internal/logging"
	"gavel/internal/store"
)

// TransitionRequest asks to move a workflow to Target.
type TransitionRequest struct {
	WorkflowID   string
	Target       campaign.State
	Confirmation *campaign.ExternalConfirmation
	// ApprovedBy is recorded in the history entry. It defaults to the
	// confirmation's ConfirmedBy.
	ApprovedBy string
}

// TransitionResult is the outcome of RequestTransition. Issues and
// Diagnostics are empty, never nil, on success.
type TransitionResult struct {
	Success     bool
	WorkflowID  string
	From        campaign.State
	To          campaign.State
	Issues      []string
	Diagnostics []campaign.DiagnosticRecord
	// Workflow is the saved document after a successful transition.
	Workflow *campaign.Workflow
}

// RequestTransition validates and, when every check passes, applies one
// transition. Blocked requests are data: the returned error is nil and the
// result lists every blocking issue. The error is non-nil only when the
// workflow could not be read, the lease could not be taken, or a validated
// transition failed to save (wrapping ErrExecutionFailed).
func (m *Manager) RequestTransition(ctx context.Context, req TransitionRequest) (TransitionResult, error) {
	req.WorkflowID = strings.TrimSpace(req.WorkflowID)
	ctx = logging.WithWorkflowID(ctx, req.WorkflowID)
	if _, ok := logging.CorrelationID(ctx); !ok {
		ctx = logging.WithCorrelationID(ctx, "")
	}

	res := TransitionResult{
		WorkflowID:  req.WorkflowID,
		To:          req.Target,
		Issues:      []string{},
		Diagnostics: []campaign.DiagnosticRecord{},
	}
	// An id that cannot name a file cannot name a workflow, and must not
	// reach the lease, which builds a lock path from it.
	if err := store.ValidateID(req.WorkflowID); err != nil {
		return m.notFound(logging.WithContext(ctx, m.logger), req, res), nil
	}
	err := m.leases.with(ctx, req.WorkflowID, func() error {
		var err error
		res, err = m.transition(ctx, req, res)
		return err
	})
	if errors.Is(err, ErrWorkflowBusy) {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "transition lease unavailable", "transition_lease_timeout",
			slog.String("to_state", string(req.Target)),
			slog.String(logging.FieldErrorHint, "another request is working on this workflow; retry shortly"),
			slog.String(logging.FieldImpact, "transition not attempted"),
		)
	}
	return res, err
}

func (m *Manager) notFound(logger *slog.Logger, req TransitionRequest, res TransitionResult) TransitionResult {
	msg := fmt.Sprintf("Workflow %s not found", req.WorkflowID)
	res.Issues = []string{msg}
	res.Diagnostics = []campaign.DiagnosticRecord{
		campaign.ErrorDiagnostic(campaign.CodeWorkflowNotFound, msg, map[string]any{"workflow_id": req.WorkflowID}),
	}
	logging.WarnWithContext(logger, "transition requested for unknown workflow", "workflow_not_found",
		slog.String(logging.FieldErrorHint, "check the workflow id or run gavel init"),
	)
	return res
}

// approver is the identity recorded for a transition: the explicit approver,
// else whoever confirmed the external event.
func approver(req TransitionRequest, confirmation *campaign.ExternalConfirmation) string {
	approvedBy := strings.TrimSpace(req.ApprovedBy)
	if approvedBy == "" && confirmation != nil {
		approvedBy = strings.TrimSpace(confirmation.ConfirmedBy)
	}
	return approvedBy
}

func (m *Manager) transition(ctx context.Context, req TransitionRequest, res TransitionResult) (TransitionResult, error) {
	logger := logging.WithContext(ctx, m.logger)

	wf, err := m.store.Load(ctx, req.WorkflowID)
	if errors.Is(err, store.ErrNotFound) {
		return m.notFound(logger, req, res), nil
	}
	if err != nil {
		return res, fmt.Errorf("load workflow %s: %w", req.WorkflowID, err)
	}
	res.From = wf.LegislativeState

	issues, diags := m.check(ctx, wf, req)
	if len(issues) > 0 {
		res.Issues = issues
		res.Diagnostics = diags
		m.block(ctx, logger, wf, req, issues, diags)
		return res, nil
	}

	confirmation := m.confirmationFor(wf, req)
	approvedBy := approver(req, confirmation)
	now := m.now()
	wf.StateHistory = append(wf.StateHistory, campaign.StateHistoryEntry{
		FromState:            wf.LegislativeState,
		ToState:              req.Target,
		Timestamp:            now,
		ApprovedBy:           approvedBy,
		ExternalConfirmation: confirmation,
	})
	if confirmation != nil {
		wf.ExternalConfirmations[confirmation.EventType] = *confirmation
	}
	wf.LegislativeState = req.Target
	wf.UpdatedAt = now

	if err := m.store.Save(ctx, wf); err != nil {
		return m.failed(ctx, logger, req, res, err)
	}

	m.record(ctx, logger, audit.EventStateTransition, fmt.Sprintf("Workflow %s moved %s -> %s", wf.ID, res.From, req.Target), map[string]any{
		"workflow_id":   wf.ID,
		"from_state":    string(res.From),
		"to_state":      string(req.Target),
		"approved_by":   approvedBy,
		"version":       wf.Version,
		"rules_version": m.table.Version(),
	})
	logger.Info("transition applied",
		slog.String(logging.FieldEventType, "transition_applied"),
		slog.String("from_state", string(res.From)),
		slog.String("to_state", string(req.Target)),
		slog.String("approved_by", approvedBy),
		slog.Int64("version", wf.Version),
	)
	res.Success = true
	res.Workflow = wf.Clone()
	return res, nil
}

// check runs the orchestrator guard, the validator, and the optional audit
// class, stopping at the first class that reports anything.
func (m *Manager) check(ctx context.Context, wf *campaign.Workflow, req TransitionRequest) ([]string, []campaign.DiagnosticRecord) {
	switch wf.OrchestratorState {
	case campaign.OrchestratorError, campaign.OrchestratorPaused:
		msg := fmt.Sprintf("Workflow %s is halted (orchestrator state %s); resume it before requesting transitions", wf.ID, wf.OrchestratorState)
		return []string{msg}, []campaign.DiagnosticRecord{
			campaign.ErrorDiagnostic(campaign.CodeWorkflowHalted, msg, map[string]any{
				"workflow_id":        wf.ID,
				"orchestrator_state": string(wf.OrchestratorState),
			}),
		}
	}

	result := m.validator.Validate(ctx, wf, req.Target, req.Confirmation)
	if !result.Valid {
		return result.Issues, result.Diagnostics
	}
	if m.audit != nil && m.auditGate {
		if ok, issues, diags := m.audit.ValidateStateTransitionAudit(ctx, wf, req.Target); !ok {
			return issues, diags
		}
	}
	return nil, nil
}

// confirmationFor returns the evidence to store with the history entry: the
// supplied confirmation when it is usable, else the stored one the validator
// accepted.
func (m *Manager) confirmationFor(wf *campaign.Workflow, req TransitionRequest) *campaign.ExternalConfirmation {
	eventType, needed := m.table.RequiresConfirmation(wf.LegislativeState, req.Target)
	if req.Confirmation != nil && !req.Confirmation.Empty() {
		conf := *req.Confirmation
		conf.EventType = strings.TrimSpace(conf.EventType)
		if conf.ConfirmedAt.IsZero() {
			conf.ConfirmedAt = m.now()
		}
		if !needed || conf.EventType == eventType {
			return &conf
		}
	}
	if needed {
		if stored, ok := wf.ExternalConfirmations[eventType]; ok {
			return &stored
		}
	}
	return nil
}

// block persists a single TRANSITION_BLOCKED record summarizing the issues.
// legislative_state is never touched.
func (m *Manager) block(ctx context.Context, logger *slog.Logger, wf *campaign.Workflow, req TransitionRequest, issues []string, diags []campaign.DiagnosticRecord) {
	codes := make([]string, 0, len(diags))
	for _, d := range diags {
		codes = append(codes, string(d.ErrorCode))
	}
	msg := fmt.Sprintf("Transition %s -> %s blocked: %s", wf.LegislativeState, req.Target, strings.Join(issues, "; "))
	// a confirmation for the wrong event still names who asked
	confirmation := m.confirmationFor(wf, req)
	if confirmation == nil {
		confirmation = req.Confirmation
	}
	fields := map[string]any{
		"workflow_id": wf.ID,
		"from_state":  string(wf.LegislativeState),
		"to_state":    string(req.Target),
		"issues":      issues,
		"error_codes": codes,
		"approved_by": approver(req, confirmation),
	}
	diag := campaign.ErrorDiagnostic(campaign.CodeTransitionBlocked, msg, fields)
	if _, err := m.store.AppendDiagnostic(ctx, wf.ID, diag); err != nil {
		logging.ErrorWithContext(logger, "blocked transition diagnostic not saved", "diagnostic_persist_failed",
			slog.String(logging.FieldErrorCode, string(campaign.CodeTransitionBlocked)),
			slog.String(logging.FieldErrorHint, "check the workflow store"),
			logging.Error(err),
		)
	}

	event := maps.Clone(fields)
	event["diagnostic_id"] = diag.ID
	m.record(ctx, logger, audit.EventTransitionBlock, msg, event)
	logging.WarnWithContext(logger, "transition blocked", "transition_blocked",
		slog.String("from_state", string(wf.LegislativeState)),
		slog.String("to_state", string(req.Target)),
		slog.Any("error_codes", codes),
		slog.String(logging.FieldErrorHint, issues[0]),
		slog.String(logging.FieldImpact, "workflow stays at "+string(wf.LegislativeState)),
	)
}

func (m *Manager) failed(ctx context.Context, logger *slog.Logger, req TransitionRequest, res TransitionResult, cause error) (TransitionResult, error) {
	msg := fmt.Sprintf("Transition %s -> %s could not be saved: %v", res.From, req.Target, cause)
	fields := map[string]any{
		"workflow_id": req.WorkflowID,
		"from_state":  string(res.From),
		"to_state":    string(req.Target),
		"retryable":   true,
	}
	diag := campaign.ErrorDiagnostic(campaign.CodeTransitionExecutionFailed, msg, fields)
	if _, err := m.store.AppendDiagnostic(ctx, req.WorkflowID, diag); err != nil {
		logger.Debug("execution failure diagnostic not saved", logging.Error(err))
	}
	m.record(ctx, logger, audit.EventTransitionFailed, msg, fields)
	logging.ErrorWithContext(logger, "transition save failed", "transition_execution_failed",
		slog.String("from_state", string(res.From)),
		slog.String("to_state", string(req.Target)),
		slog.String(logging.FieldErrorHint, "retry the same request; nothing was changed"),
		logging.Error(cause),
	)
	res.Issues = []string{msg}
	res.Diagnostics = []campaign.DiagnosticRecord{diag}
	return res, fmt.Errorf("%w: %s: %w", ErrExecutionFailed, req.WorkflowID, cause)
}

// BlockTransition halts a workflow: the orchestrator moves to ERROR and the
// reason is recorded. The legislative state is left alone. An empty code
// records TRANSITION_BLOCKED.
func (m *Manager) BlockTransition(ctx context.Context, id, reason string, code campaign.ErrorCode, fields map[string]any) (*campaign.Workflow, error) {
	id = strings.TrimSpace(id)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.New("block reason is required")
	}
	if code == "" {
		code = campaign.CodeTransitionBlocked
	}
	ctx = logging.WithWorkflowID(ctx, id)
	logger := logging.WithContext(ctx, m.logger)

	var out *campaign.Workflow
	err := m.leases.with(ctx, id, func() error {
		wf, err := m.store.Load(ctx, id)
		if err != nil {
			return err
		}
		details := maps.Clone(fields)
		if details == nil {
			details = map[string]any{}
		}
		details["workflow_id"] = id
		details["legislative_state"] = string(wf.LegislativeState)
		details["previous_orchestrator_state"] = string(wf.OrchestratorState)

		diag := campaign.ErrorDiagnostic(code, reason, details)
		wf.RecordDiagnostic(diag)
		wf.OrchestratorState = campaign.OrchestratorError
		wf.UpdatedAt = m.now()
		if err := m.store.Save(ctx, wf); err != nil {
			return fmt.Errorf("save blocked workflow: %w", err)
		}

		event := maps.Clone(details)
		event["error_code"] = string(code)
		event["diagnostic_id"] = diag.ID
		m.record(ctx, logger, audit.EventWorkflowBlocked, reason, event)
		logging.ErrorWithContext(logger, "workflow halted", "workflow_blocked",
			slog.String(logging.FieldErrorCode, string(code)),
			slog.String("reason", reason),
			slog.String(logging.FieldErrorHint, "investigate, then run gavel resume"),
			slog.String(logging.FieldImpact, "no transitions until resumed"),
		)
		out = wf.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	if m.notifier != nil {
		if err := m.notifier.NotifyWorkflowHalted(ctx, id, reason); err != nil {
			logging.WarnWithContext(logger, "halt notification failed", "notification_failed",
				slog.String(logging.FieldErrorHint, "check the ntfy topic"),
				logging.Error(err),
			)
		}
	}
	return out, nil
}

// Resume returns a halted workflow to ACTIVE. Diagnostics are kept.
func (m *Manager) Resume(ctx context.Context, id, by string) (*campaign.Workflow, error) {
	id = strings.TrimSpace(id)
	ctx = logging.WithWorkflowID(ctx, id)
	logger := logging.WithContext(ctx, m.logger)

	var out *campaign.Workflow
	err := m.leases.with(ctx, id, func() error {
		wf, err := m.store.Load(ctx, id)
		if err != nil {
			return err
		}
		previous := wf.OrchestratorState
		if previous == campaign.OrchestratorActive {
			out = wf
			return nil
		}
		wf.OrchestratorState = campaign.OrchestratorActive
		wf.UpdatedAt = m.now()
		if err := m.store.Save(ctx, wf); err != nil {
			return fmt.Errorf("save resumed workflow: %w", err)
		}
		m.record(ctx, logger, audit.EventWorkflowResumed, fmt.Sprintf("Workflow %s resumed from %s", id, previous), map[string]any{
			"workflow_id":                 id,
			"previous_orchestrator_state": string(previous),
			"resumed_by":                  by,
		})
		logger.Info("workflow resumed",
			slog.String(logging.FieldEventType, "workflow_resumed"),
			slog.String("previous_orchestrator_state", string(previous)),
			slog.String("resumed_by", by),
		)
		out = wf.Clone()
		return nil
	})
	return out, err
}
