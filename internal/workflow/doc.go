// Package workflow owns the lifecycle of campaign workflows.
//
// The Manager is the only writer of legislative_state. Every transition runs
// under a per-workflow lease (an in-process slot plus a file lock shared with
// other gavel processes) and is saved with an optimistic version check, so two
// requests can never both move the same workflow. A request is validated by
// the validator package and, when enabled, by the audit enforcer; a blocked
// request leaves one TRANSITION_BLOCKED diagnostic behind and nothing else.
//
// Operator actions that are not transitions live here too: blocking and
// resuming a workflow, tracking artifacts, syncing gate snapshots from the
// queue files, and recording review decisions. Runtime wires all of it from a
// Config for the CLI.
package workflow
