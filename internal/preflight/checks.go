package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"

	"gavel/internal/config"
	"gavel/internal/gates"
	"gavel/internal/invariants"
	"gavel/internal/store"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckInvariantTable verifies the rule set, including any role overrides.
func CheckInvariantTable(table *invariants.Table) Result {
	const name = "Invariant table"
	if err := table.Check(); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	var open []string
	for _, gate := range table.Gates() {
		if _, ok := table.GateRoles(gate); !ok {
			open = append(open, gate)
		}
	}
	if len(open) > 0 {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("version %s; no role requirement at %s", table.Version(), strings.Join(open, ", "))}
	}
	return Result{Name: name, Passed: true, Detail: "version " + table.Version()}
}

// CheckStore opens the configured workflow store and closes it again, which
// creates or verifies the sqlite schema.
func CheckStore(cfg *config.Config) Result {
	name := "Workflow store (" + cfg.Store.Backend + ")"
	st, err := store.Open(cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	defer st.Close()
	location := cfg.WorkflowDir()
	if cfg.Store.Backend != config.BackendFile {
		location = cfg.DatabasePath()
	}
	return Result{Name: name, Passed: true, Detail: location}
}

// CheckGateQueues parses each gate's queue document. A queue that does not
// exist yet passes; one that does not parse fails, since its gate will stay
// closed.
func CheckGateQueues(_ context.Context, dir string, gateIDs []string) []Result {
	queues := gates.NewQueueStore(dir)
	results := make([]Result, 0, len(gateIDs))
	for _, gate := range gateIDs {
		name := "Gate queue " + gate
		queue, err := queues.Load(gate)
		switch {
		case errors.Is(err, gates.ErrQueueNotFound):
			results = append(results, Result{Name: name, Passed: true, Detail: "not created yet"})
		case err != nil:
			results = append(results, Result{Name: name, Detail: err.Error()})
		default:
			results = append(results, Result{
				Name:   name,
				Passed: true,
				Detail: fmt.Sprintf("%d pending, %d decided", len(queue.PendingReviews), len(queue.ApprovedReviews)),
			})
		}
	}
	return results
}
