// Package gates owns the human review gates: the per-gate queue documents,
// the principal and role rules for who may decide, and the checks the
// validator runs before a transition that needs an approved artifact.
//
// Queue documents live at <gate_queue_dir>/<GATE>_queue.json and are shared
// with reviewers' tooling, so every read goes back to disk and every write is
// an atomic replace under a sidecar flock.
package gates
