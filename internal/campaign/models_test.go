package campaign

import (
	"strings"
	"testing"
	"time"
)

func TestParseState(t *testing.T) {
	cases := map[string]State{
		"PRE_EVT":   StatePre,
		"intro_evt": StateIntro,
		" comm ":    StateComm,
		"IMPL":      StateImpl,
	}
	for in, want := range cases {
		got, ok := ParseState(in)
		if !ok || got != want {
			t.Fatalf("ParseState(%q) = %q, %v", in, got, ok)
		}
	}
	for _, bad := range []string{"", "VETO_EVT", "EVT"} {
		if _, ok := ParseState(bad); ok {
			t.Fatalf("ParseState(%q) should fail", bad)
		}
	}
	if StatePre.Index() != 0 || StateImpl.Index() != 5 || State("X").Index() != -1 {
		t.Fatal("unexpected indexes")
	}
}

func TestParseDecisionAcceptsLegacySpelling(t *testing.T) {
	if d, ok := ParseDecision("approved"); !ok || d != DecisionApprove {
		t.Fatalf("approved -> %q %v", d, ok)
	}
	if d, ok := ParseDecision("REJECT"); !ok || d != DecisionReject {
		t.Fatalf("REJECT -> %q %v", d, ok)
	}
	if _, ok := ParseDecision("maybe"); ok {
		t.Fatal("maybe should not parse")
	}
}

func TestReviewMatches(t *testing.T) {
	cases := []struct {
		name   string
		review Review
		id     string
		path   string
		want   bool
	}{
		{"artifact id", Review{ArtifactID: "MEMO"}, "MEMO", "", true},
		{"different id", Review{ArtifactID: "MEMO"}, "PLAN", "", false},
		{"relative path suffix", Review{ArtifactPath: "artifacts/MEMO.json"}, "", "/srv/campaign/artifacts/MEMO.json", true},
		{"partial element is not a suffix", Review{ArtifactPath: "EMO.json"}, "", "/srv/MEMO.json", false},
		{"file stem equals id", Review{ArtifactPath: "old/place/MEMO.json"}, "MEMO", "", true},
		{"review id fallback", Review{ReviewID: "MEMO"}, "MEMO", "", true},
		{"nothing to compare", Review{}, "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.review.Matches(tc.id, tc.path); got != tc.want {
				t.Fatalf("Matches = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestExternalConfirmationEmpty(t *testing.T) {
	var nilConf *ExternalConfirmation
	if !nilConf.Empty() {
		t.Fatal("nil confirmation must be empty")
	}
	if !(&ExternalConfirmation{EventType: "bill_introduced"}).Empty() {
		t.Fatal("confirmation with no evidence must be empty")
	}
	if (&ExternalConfirmation{EventType: "bill_introduced", SourceReference: "HB 12"}).Empty() {
		t.Fatal("source reference counts as evidence")
	}
}

func TestWorkflowRoundTripRejectsUnknownFields(t *testing.T) {
	wf := NewWorkflow("wf-1", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	data, err := EncodeWorkflow(wf)
	if err != nil {
		t.Fatalf("EncodeWorkflow: %v", err)
	}
	back, err := DecodeWorkflow(data)
	if err != nil {
		t.Fatalf("DecodeWorkflow: %v", err)
	}
	if back.ID != "wf-1" || back.LegislativeState != StatePre || back.OrchestratorState != OrchestratorActive {
		t.Fatalf("unexpected workflow %+v", back)
	}

	tampered := strings.Replace(string(data), `"version": 0`, `"version": 0, "owner": "x"`, 1)
	if _, err := DecodeWorkflow([]byte(tampered)); err == nil {
		t.Fatal("unknown field should be rejected")
	}
	bad := strings.Replace(string(data), `"PRE_EVT"`, `"VETO_EVT"`, 1)
	if _, err := DecodeWorkflow([]byte(bad)); err == nil {
		t.Fatal("unknown state should be rejected")
	}
}

func TestWorkflowValidateHistory(t *testing.T) {
	now := time.Now()
	wf := NewWorkflow("wf", now)
	wf.StateHistory = append(wf.StateHistory, StateHistoryEntry{FromState: StatePre, ToState: StateComm, Timestamp: now})
	wf.LegislativeState = StateComm
	if err := wf.Validate(); err == nil {
		t.Fatal("skipping a state must fail validation")
	}
	wf.StateHistory[0].ToState = StateIntro
	if err := wf.Validate(); err == nil {
		t.Fatal("state disagreeing with history must fail validation")
	}
	wf.LegislativeState = StateIntro
	if err := wf.Validate(); err != nil {
		t.Fatalf("valid workflow rejected: %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	wf := NewWorkflow("wf", time.Now())
	wf.Artifacts["MEMO"] = ArtifactRef{ArtifactID: "MEMO", Exists: true}
	cp := wf.Clone()
	cp.Artifacts["MEMO"] = ArtifactRef{ArtifactID: "MEMO"}
	cp.RecordDiagnostic(ErrorDiagnostic(CodeArtifactMissing, "x", nil))
	if !wf.Artifacts["MEMO"].Exists || len(wf.Diagnostics) != 0 || wf.LastError != nil {
		t.Fatal("mutating the clone reached the original")
	}
	if cp.LastError == nil || cp.LastError.ErrorCode != CodeArtifactMissing {
		t.Fatalf("RecordDiagnostic did not set LastError: %+v", cp.LastError)
	}
}

func TestDiagnosticContextIsCopied(t *testing.T) {
	ctx := map[string]any{"k": "v"}
	d := WarningDiagnostic(CodeMetadataDrift, " drift ", ctx)
	ctx["k"] = "changed"
	if d.Context["k"] != "v" || d.Message != "drift" || d.ID == "" {
		t.Fatalf("unexpected diagnostic %+v", d)
	}
	if !CodeTransitionExecutionFailed.Retryable() || CodeInvalidTransition.Retryable() {
		t.Fatal("only execution failures are retryable")
	}
}
