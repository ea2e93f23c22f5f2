// Package logging assembles structured slog loggers and formatting helpers used
// across gavel.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so enforcement code can tag log
// lines with workflow ids, gate ids, and correlation ids. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
//
// WARN and ERROR lines go through WarnWithContext and ErrorWithContext so
// every one carries an event_type and an error_hint.
package logging
