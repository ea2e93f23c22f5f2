package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestRunExitCodes(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantCode   int
		wantStderr string
	}{
		{"success", nil, 0, ""},
		{"failure", errors.New("load config: missing"), exitFailure, "gavel: load config: missing\n"},
		{"blocked", fmt.Errorf("%w with 2 issue(s)", errTransitionBlocked), exitBlocked, "gavel: transition blocked with 2 issue(s)\n"},
		{"canceled", fmt.Errorf("advance: %w", context.Canceled), exitFailure, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var stderr bytes.Buffer
			code := run(func() error { return tc.err }, &stderr)
			if code != tc.wantCode {
				t.Fatalf("exit code = %d, want %d", code, tc.wantCode)
			}
			if stderr.String() != tc.wantStderr {
				t.Fatalf("stderr = %q, want %q", stderr.String(), tc.wantStderr)
			}
		})
	}
}

func TestBlockedAdvanceExitsWithBlockedCode(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := env.run(t, "init", "wf-1"); err != nil {
		t.Fatal(err)
	}
	_, _, err := env.run(t, advanceArgs("wf-1", "COMM_EVT", "committee_referral")...)
	if got := exitCode(err); got != exitBlocked {
		t.Fatalf("exit code = %d (err %v), want %d", got, err, exitBlocked)
	}
}
