// Package logs reads the line-oriented logs gavel writes: the audit trail,
// the escalation log, and the application log.
//
// Tail returns the last lines of a file and the offset to continue from;
// Follow streams lines appended after an offset until its context ends.
// Both tolerate a file that does not exist yet, since the logs are created on
// first write.
package logs
