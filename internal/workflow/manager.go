package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gavel/internal/artifacts"
	"gavel/internal/audit"
	"gavel/internal/campaign"
	"gavel/internal/gates"
	"gavel/internal/invariants"
	"gavel/internal/logging"
	"gavel/internal/store"
	"gavel/internal/validator"
)

var (
	// ErrWorkflowNotFound is returned by lookups for unknown ids.
	ErrWorkflowNotFound = store.ErrNotFound
	// ErrWorkflowExists is returned by Start for a duplicate id.
	ErrWorkflowExists = errors.New("workflow already exists")
	// ErrExecutionFailed wraps a validated transition that could not be
	// saved. It is the only retryable transition failure.
	ErrExecutionFailed = errors.New("transition execution failed")
	// ErrRoleMismatch means a review decision came from a principal the gate
	// does not accept.
	ErrRoleMismatch = errors.New("decision maker not permitted")
	// ErrNotConfigured means an operation needs a collaborator the manager
	// was built without.
	ErrNotConfigured = errors.New("not configured")
)

// Notifier reports halted workflows out of band.
type Notifier interface {
	NotifyWorkflowHalted(ctx context.Context, workflowID, reason string) error
}

// Manager applies transitions and operator actions to stored workflows.
type Manager struct {
	store     store.Store
	validator *validator.Validator
	table     *invariants.Table
	gates     *gates.Enforcer
	audit     *audit.Enforcer
	auditLog  *audit.Log
	auditGate bool
	locator   *artifacts.Locator
	notifier  Notifier
	leases    *leases
	clock     func() time.Time
	logger    *slog.Logger
}

// Option configures optional Manager collaborators.
type Option func(*Manager)

// WithGates enables review decisions and gate snapshot syncing.
func WithGates(enforcer *gates.Enforcer) Option {
	return func(m *Manager) { m.gates = enforcer }
}

// WithAudit records every outcome in the enforcer's audit log. When
// checkTransitions is true the audit completeness check also runs as the
// last validation class of every transition.
func WithAudit(enforcer *audit.Enforcer, checkTransitions bool) Option {
	return func(m *Manager) {
		m.audit = enforcer
		m.auditGate = checkTransitions
		if enforcer != nil {
			m.auditLog = enforcer.Log()
		}
	}
}

// WithLocator lets the manager resolve artifact ids to documents.
func WithLocator(locator *artifacts.Locator) Option {
	return func(m *Manager) { m.locator = locator }
}

// WithNotifier sends a push when a workflow is halted.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithLeaseDir guards each workflow with a file lock in dir, waiting at most
// timeout to acquire it. An empty dir keeps the lease in-process only.
func WithLeaseDir(dir string, timeout time.Duration) Option {
	return func(m *Manager) { m.leases = newLeases(dir, timeout) }
}

// WithClock overrides the clock for deterministic testing.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// NewManager builds a manager over st using v for transition validation.
func NewManager(st store.Store, v *validator.Validator, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:     st,
		validator: v,
		table:     v.Table(),
		leases:    newLeases("", 0),
		clock:     time.Now,
		logger:    logging.NewComponentLogger(logger, "workflow"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store exposes the underlying workflow store.
func (m *Manager) Store() store.Store {
	return m.store
}

// Start creates a workflow at PRE_EVT with an ACTIVE orchestrator.
func (m *Manager) Start(ctx context.Context, id, createdBy string) (*campaign.Workflow, error) {
	id = strings.TrimSpace(id)
	ctx = logging.WithWorkflowID(ctx, id)
	logger := logging.WithContext(ctx, m.logger)

	wf := campaign.NewWorkflow(id, m.clock())
	if err := m.store.Create(ctx, wf); err != nil {
		if errors.Is(err, store.ErrExists) {
			return nil, fmt.Errorf("%w: %s", ErrWorkflowExists, id)
		}
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	m.record(ctx, logger, audit.EventWorkflowStarted, fmt.Sprintf("Workflow %s started at %s", id, wf.LegislativeState), map[string]any{
		"workflow_id": id,
		"created_by":  createdBy,
		"state":       string(wf.LegislativeState),
	})
	logger.Info("workflow started",
		slog.String(logging.FieldEventType, "workflow_started"),
		slog.String("created_by", createdBy),
	)
	return wf.Clone(), nil
}

// Workflow returns a copy of the stored document.
func (m *Manager) Workflow(ctx context.Context, id string) (*campaign.Workflow, error) {
	return m.store.Load(ctx, strings.TrimSpace(id))
}

// List returns stored workflows, optionally limited to states.
func (m *Manager) List(ctx context.Context, states ...campaign.State) ([]*campaign.Workflow, error) {
	return m.store.List(ctx, states...)
}

// CurrentPhase returns the workflow's legislative state.
func (m *Manager) CurrentPhase(ctx context.Context, id string) (campaign.State, error) {
	wf, err := m.store.Load(ctx, strings.TrimSpace(id))
	if err != nil {
		return "", err
	}
	return wf.LegislativeState, nil
}

// IsTerminalState reports whether state allows no further transitions.
func (m *Manager) IsTerminalState(state campaign.State) bool {
	return m.table.IsTerminal(state)
}

// ValidNextState returns the states reachable from state in one step.
func (m *Manager) ValidNextState(state campaign.State) []campaign.State {
	return m.table.Next(state)
}

// record appends an audit event. A failed write is logged; it never undoes
// the operation it describes.
func (m *Manager) record(ctx context.Context, logger *slog.Logger, eventType, message string, fields map[string]any) {
	if m.auditLog == nil {
		return
	}
	if _, err := m.auditLog.Record(ctx, eventType, message, fields); err != nil {
		logging.ErrorWithContext(logger, "audit log write failed", "audit_log_write_failed",
			slog.String("audit_event", eventType),
			slog.String("audit_log", m.auditLog.Path()),
			slog.String(logging.FieldErrorHint, "check permissions and free space in the log directory"),
			logging.Error(err),
		)
	}
}

func (m *Manager) now() time.Time {
	return m.clock().UTC()
}
