package preflight

import (
	"context"
	"fmt"

	"gavel/internal/config"
	"gavel/internal/invariants"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Directories the control plane writes
	results = append(results,
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Gate queue directory", cfg.Paths.GateQueueDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	)

	// Artifact directories are written by drafting collaborators and stamped
	// by review decisions
	for i, dir := range cfg.Paths.ArtifactDirs {
		results = append(results, CheckDirectoryAccess(fmt.Sprintf("Artifact directory %d", i+1), dir))
	}

	table := invariants.Default().WithRoles(cfg.Gates.Roles)
	results = append(results, CheckInvariantTable(table))
	results = append(results, CheckStore(cfg))
	results = append(results, CheckGateQueues(ctx, cfg.Paths.GateQueueDir, table.Gates())...)

	return results
}
