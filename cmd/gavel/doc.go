// Package main provides the gavel command-line interface.
//
// Every command runs in-process against the configured state directory: the
// workflow store, gate queues, artifact directories, and the audit and
// escalation logs. There is no daemon; concurrent invocations are serialized
// per workflow by the lease in internal/workflow.
//
// Command groups:
//   - init, status, history, advance, block, resume: workflow lifecycle
//   - submit, approve, reject: gate queue decisions
//   - track, sync: artifact references and gate snapshots
//   - audit check, audit sweep: decision-log completeness
//   - escalate, escalations list: the escalation log
//   - log: tail of the audit, escalation, or application log
//   - doctor, config: readiness checks and configuration files
package main
