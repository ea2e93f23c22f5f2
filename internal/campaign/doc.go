// Package campaign defines the documents the control plane reads and writes:
// the per-campaign Workflow record, review gate snapshots, artifact
// references, external confirmations, and diagnostic records.
//
// The Workflow document is the canonical status surface for dashboards and
// the unit of persistence for the store package. Its legislative_state only
// moves forward one step at a time along the fixed sequence, and only the
// workflow.Manager writes it. Everything else in this package is plain data:
// constructors, parsers that reject unknown enum values, and Validate helpers
// that refuse malformed documents at the decode boundary instead of silently
// defaulting.
package campaign
