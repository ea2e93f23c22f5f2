// Package preflight provides readiness checks for the filesystem paths and
// documents gavel depends on.
//
// The CLI "gavel doctor" command runs RunAll and prints one row per check.
// A failed check never repairs anything; the detail says what is wrong.
package preflight
