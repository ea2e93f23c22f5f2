// Package store persists workflow documents.
//
// Two backends implement Store: SQLite (the default), and one JSON file per
// workflow for deployments that want the documents on disk next to the gate
// queues. Both use the document's version field for optimistic concurrency:
// Save succeeds only when the stored version equals the caller's, and bumps
// it on success.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gavel/internal/campaign"
	"gavel/internal/config"
)

var (
	// ErrNotFound means no workflow has the requested id.
	ErrNotFound = errors.New("workflow not found")
	// ErrExists means Create was called for an id already stored.
	ErrExists = errors.New("workflow already exists")
	// ErrVersionConflict means the stored workflow changed since it was read.
	ErrVersionConflict = errors.New("workflow version conflict")
	// ErrInvalidID means the id cannot be used as a storage key.
	ErrInvalidID = errors.New("invalid workflow id")
)

// Store is the workflow persistence contract.
type Store interface {
	// Create stores a new workflow. The id must not exist yet.
	Create(ctx context.Context, wf *campaign.Workflow) error
	// Load returns the stored workflow or ErrNotFound.
	Load(ctx context.Context, id string) (*campaign.Workflow, error)
	// Save replaces the stored document when its version matches wf.Version,
	// then increments wf.Version. Otherwise it returns ErrVersionConflict and
	// leaves both copies untouched.
	Save(ctx context.Context, wf *campaign.Workflow) error
	// AppendDiagnostic adds d to the workflow's diagnostics and last_error in
	// one write and returns the updated document.
	AppendDiagnostic(ctx context.Context, id string, d campaign.DiagnosticRecord) (*campaign.Workflow, error)
	// List returns workflows ordered by id, optionally filtered by state.
	List(ctx context.Context, states ...campaign.State) ([]*campaign.Workflow, error)
	Close() error
}

// Open returns the backend selected by cfg.Store.Backend.
func Open(cfg *config.Config) (Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Store.Backend)) {
	case "", config.BackendSQLite:
		return OpenSQLite(cfg.DatabasePath(), cfg.Store.BusyTimeoutMS)
	case config.BackendFile:
		return OpenFile(cfg.WorkflowDir())
	default:
		return nil, fmt.Errorf("store backend %q is not supported", cfg.Store.Backend)
	}
}

// ValidateID rejects ids that cannot double as file names.
func ValidateID(id string) error {
	if id == "" || strings.TrimSpace(id) != id {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if strings.HasPrefix(id, ".") || len(id) > 128 {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-', r == '_', r == '.':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidID, id, r)
		}
	}
	return nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func matchesStates(wf *campaign.Workflow, states []campaign.State) bool {
	if len(states) == 0 {
		return true
	}
	for _, s := range states {
		if wf.LegislativeState == s {
			return true
		}
	}
	return false
}

// appendAttempts bounds the read-modify-write loop in AppendDiagnostic when
// other writers keep bumping the version.
const appendAttempts = 5

func appendWithRetry(ctx context.Context, st Store, id string, d campaign.DiagnosticRecord) (*campaign.Workflow, error) {
	var lastErr error
	for attempt := 0; attempt < appendAttempts; attempt++ {
		wf, err := st.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		wf.RecordDiagnostic(d)
		if err := st.Save(ctx, wf); err != nil {
			if errors.Is(err, ErrVersionConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		return wf, nil
	}
	return nil, fmt.Errorf("append diagnostic to %s: %w", id, lastErr)
}
