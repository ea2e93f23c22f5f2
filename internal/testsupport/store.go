package testsupport

import (
	"context"
	"testing"

	"gavel/internal/campaign"
	"gavel/internal/config"
	"gavel/internal/store"
)

// MustOpenStore opens the configured workflow store and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

// SeedWorkflow stores wf as-is, bypassing the manager, so tests can start
// from any legislative state.
func SeedWorkflow(t testing.TB, st store.Store, wf *campaign.Workflow) *campaign.Workflow {
	t.Helper()

	if err := st.Create(context.Background(), wf); err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	return wf
}
