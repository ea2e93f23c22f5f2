package workflow

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gavel/internal/artifacts"
	"gavel/internal/audit"
	"gavel/internal/config"
	"gavel/internal/escalation"
	"gavel/internal/gates"
	"gavel/internal/invariants"
	"gavel/internal/notifications"
	"gavel/internal/store"
	"gavel/internal/validator"
)

// Runtime is every control-plane component built from one Config.
type Runtime struct {
	Config      *config.Config
	Logger      *slog.Logger
	Table       *invariants.Table
	Store       store.Store
	Escalations *escalation.Handler
	Queues      *gates.QueueStore
	Gates       *gates.Enforcer
	Audit       *audit.Enforcer
	Locator     *artifacts.Locator
	Notifier    notifications.Service
	Validator   *validator.Validator
	Manager     *Manager
}

// RuntimeOption adjusts Open.
type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	alerts   io.Writer
	notifier notifications.Service
	clock    func() time.Time
}

// WithAlerts sets where CRITICAL escalation alerts are printed when
// [escalation] stderr_alerts is on.
func WithAlerts(w io.Writer) RuntimeOption {
	return func(o *runtimeOptions) { o.alerts = w }
}

// WithNotificationService replaces the ntfy service built from the config.
func WithNotificationService(n notifications.Service) RuntimeOption {
	return func(o *runtimeOptions) { o.notifier = n }
}

// WithRuntimeClock fixes the clock used by the manager and escalations.
func WithRuntimeClock(clock func() time.Time) RuntimeOption {
	return func(o *runtimeOptions) { o.clock = clock }
}

// Open creates the configured directories and wires the store, escalation
// handler, gate queues, enforcers, and manager.
func Open(cfg *config.Config, logger *slog.Logger, opts ...RuntimeOption) (*Runtime, error) {
	options := runtimeOptions{alerts: os.Stderr, clock: time.Now}
	for _, opt := range opts {
		opt(&options)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	table := invariants.Default().WithRoles(cfg.Gates.Roles)
	if err := table.Check(); err != nil {
		return nil, fmt.Errorf("invariant table: %w", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		return nil, err
	}

	notifier := options.notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	alerts := options.alerts
	if !cfg.Escalation.StderrAlerts {
		alerts = nil
	}
	escalations := escalation.NewHandler(cfg.EscalationLogPath(), logger,
		escalation.WithThresholds(escalation.Thresholds{
			Confidence:      cfg.Escalation.ConfidenceThreshold,
			AssumptionDrift: cfg.Escalation.AssumptionDriftThreshold,
		}),
		escalation.WithNotifier(notifier),
		escalation.WithAlertWriter(alerts),
		escalation.WithClock(options.clock),
	)

	queues := gates.NewQueueStore(cfg.Paths.GateQueueDir)
	locator := artifacts.NewLocator(cfg.Paths.ArtifactDirs)
	gateEnforcer := gates.NewEnforcer(queues, table, escalations, logger)
	auditEnforcer := audit.NewEnforcer(locator, queues, audit.NewLog(cfg.AuditLogPath()), logger)
	v := validator.New(table, gateEnforcer, logger)

	leaseTimeout := time.Duration(cfg.Enforcement.LeaseTimeoutSeconds) * time.Second
	manager := NewManager(st, v, logger,
		WithGates(gateEnforcer),
		WithAudit(auditEnforcer, cfg.Enforcement.AuditOnTransition),
		WithLocator(locator),
		WithNotifier(notifier),
		WithLeaseDir(cfg.LockDir(), leaseTimeout),
		WithClock(options.clock),
	)

	return &Runtime{
		Config:      cfg,
		Logger:      logger,
		Table:       table,
		Store:       st,
		Escalations: escalations,
		Queues:      queues,
		Gates:       gateEnforcer,
		Audit:       auditEnforcer,
		Locator:     locator,
		Notifier:    notifier,
		Validator:   v,
		Manager:     manager,
	}, nil
}

// Close releases the workflow store.
func (r *Runtime) Close() error {
	if r == nil || r.Store == nil {
		return nil
	}
	return r.Store.Close()
}
