package validator

import (
	"context"
	"fmt"
	"slices"
	"testing"
	"time"

	"gavel/internal/campaign"
	"gavel/internal/gates"
	"gavel/internal/invariants"
	"gavel/internal/logging"
	"gavel/internal/testsupport"
)

type stubGates struct {
	results map[string]gates.Result
	calls   []string
}

func (s *stubGates) RequireGate(_ context.Context, gateID, artifactID, _ string, _ *campaign.Workflow) gates.Result {
	key := gateID + "/" + artifactID
	s.calls = append(s.calls, key)
	if res, ok := s.results[key]; ok {
		return res
	}
	return gates.Result{Approved: true}
}

func workflowAt(state campaign.State) *campaign.Workflow {
	wf := campaign.NewWorkflow("wf-v", time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	wf.LegislativeState = state
	return wf
}

func confirmation(eventType string) *campaign.ExternalConfirmation {
	return &campaign.ExternalConfirmation{
		EventType:   eventType,
		Summary:     "recorded in the journal",
		ConfirmedAt: time.Now(),
		ConfirmedBy: "human:Campaign Director",
	}
}

func TestLegality(t *testing.T) {
	v := New(nil, &stubGates{}, logging.NewNop())
	cases := []struct {
		from, to campaign.State
		want     string
	}{
		{campaign.StateIntro, campaign.StateFloor, "Invalid transition from INTRO_EVT to FLOOR_EVT; allowed next state: COMM_EVT"},
		{campaign.StateComm, campaign.StateIntro, "Invalid transition from COMM_EVT to INTRO_EVT; allowed next state: FLOOR_EVT"},
		{campaign.StatePre, campaign.StatePre, "Invalid transition from PRE_EVT to PRE_EVT; allowed next state: INTRO_EVT"},
		{campaign.StateImpl, campaign.StateImpl, "Invalid transition from IMPL_EVT to IMPL_EVT; IMPL_EVT is terminal and allows no further transitions"},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s->%s", tc.from, tc.to), func(t *testing.T) {
			res := v.Validate(context.Background(), workflowAt(tc.from), tc.to, nil)
			if res.Valid || !slices.Equal(res.Issues, []string{tc.want}) {
				t.Fatalf("issues = %v", res.Issues)
			}
			if len(res.Diagnostics) != 1 || res.Diagnostics[0].ErrorCode != campaign.CodeInvalidTransition {
				t.Fatalf("diagnostics = %+v", res.Diagnostics)
			}
		})
	}
}

func TestLegalityShortCircuits(t *testing.T) {
	stub := &stubGates{}
	v := New(nil, stub, logging.NewNop())
	res := v.Validate(context.Background(), workflowAt(campaign.StateIntro), campaign.StateImpl, nil)
	if len(res.Issues) != 1 || len(stub.calls) != 0 {
		t.Fatalf("later classes ran: issues=%v calls=%v", res.Issues, stub.calls)
	}
}

func TestMissingArtifactsAccumulate(t *testing.T) {
	v := New(nil, &stubGates{}, logging.NewNop())
	wf := workflowAt(campaign.StatePre)
	wf.Artifacts["PRE_STAKEHOLDER_MAP"] = campaign.ArtifactRef{Exists: false, ArtifactID: "PRE_STAKEHOLDER_MAP"}
	res := v.Validate(context.Background(), wf, campaign.StateIntro, nil)
	want := []string{
		"Required artifact PRE_CONTEXT_SNAPSHOT is missing",
		"Required artifact PRE_STAKEHOLDER_MAP is missing",
	}
	if res.Valid || !slices.Equal(res.Issues, want) {
		t.Fatalf("issues = %v", res.Issues)
	}
}

func TestGateFailuresUseEnforcerReasons(t *testing.T) {
	stub := &stubGates{results: map[string]gates.Result{
		"HR_PRE/INTRO_CONCEPT_MEMO": {Code: campaign.CodeGatePending, Reason: "Artifact INTRO_CONCEPT_MEMO is pending review at gate HR_PRE"},
	}}
	v := New(nil, stub, logging.NewNop())
	wf := workflowAt(campaign.StateIntro)
	wf.Artifacts["INTRO_CONCEPT_MEMO"] = campaign.ArtifactRef{Exists: true, RequiresReview: true, ReviewGate: "HR_PRE", ArtifactID: "INTRO_CONCEPT_MEMO"}

	res := v.Validate(context.Background(), wf, campaign.StateComm, confirmation("committee_referral"))
	if res.Valid || !slices.Equal(res.Issues, []string{"Artifact INTRO_CONCEPT_MEMO is pending review at gate HR_PRE"}) {
		t.Fatalf("issues = %v", res.Issues)
	}
	if res.Diagnostics[0].Severity != campaign.SeverityWarning {
		t.Fatalf("pending should be a warning, got %s", res.Diagnostics[0].Severity)
	}
}

func TestArtifactGateIsAddedToTableGate(t *testing.T) {
	stub := &stubGates{}
	v := New(nil, stub, logging.NewNop())
	wf := workflowAt(campaign.StateIntro)
	wf.Artifacts["INTRO_CONCEPT_MEMO"] = campaign.ArtifactRef{Exists: true, RequiresReview: true, ReviewGate: "hr_lang", ArtifactID: "MEMO-1"}

	res := v.Validate(context.Background(), wf, campaign.StateComm, confirmation("committee_referral"))
	if !res.Valid {
		t.Fatalf("expected valid, got %v", res.Issues)
	}
	if !slices.Equal(stub.calls, []string{"HR_PRE/MEMO-1", "HR_LANG/MEMO-1"}) {
		t.Fatalf("gates checked = %v", stub.calls)
	}
}

func TestUngatedArtifactThatRequestsReviewFailsClosed(t *testing.T) {
	v := New(nil, &stubGates{}, logging.NewNop())
	wf := workflowAt(campaign.StatePre)
	wf.Artifacts["PRE_CONTEXT_SNAPSHOT"] = campaign.ArtifactRef{Exists: true, ArtifactID: "S"}
	wf.Artifacts["PRE_STAKEHOLDER_MAP"] = campaign.ArtifactRef{Exists: true, RequiresReview: true, ArtifactID: "M"}
	res := v.Validate(context.Background(), wf, campaign.StateIntro, confirmation("bill_introduced"))
	if res.Valid || len(res.Issues) != 1 {
		t.Fatalf("issues = %v", res.Issues)
	}
}

func TestConfirmation(t *testing.T) {
	v := New(nil, &stubGates{}, logging.NewNop())
	newWF := func() *campaign.Workflow {
		wf := workflowAt(campaign.StateIntro)
		wf.Artifacts["INTRO_CONCEPT_MEMO"] = campaign.ArtifactRef{Exists: true, RequiresReview: true, ReviewGate: "HR_PRE", ArtifactID: "INTRO_CONCEPT_MEMO"}
		return wf
	}
	want := "External confirmation committee_referral is required for INTRO_EVT -> COMM_EVT"

	cases := []struct {
		name  string
		conf  *campaign.ExternalConfirmation
		valid bool
	}{
		{"missing", nil, false},
		{"wrong type", confirmation("floor_vote"), false},
		{"no evidence", &campaign.ExternalConfirmation{EventType: "committee_referral"}, false},
		{"supplied", confirmation("committee_referral"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := v.Validate(context.Background(), newWF(), campaign.StateComm, tc.conf)
			if res.Valid != tc.valid {
				t.Fatalf("valid = %v, issues %v", res.Valid, res.Issues)
			}
			if !tc.valid && !slices.Equal(res.Issues, []string{want}) {
				t.Fatalf("issues = %v", res.Issues)
			}
		})
	}

	wf := newWF()
	wf.ExternalConfirmations["committee_referral"] = *confirmation("committee_referral")
	if res := v.Validate(context.Background(), wf, campaign.StateComm, nil); !res.Valid {
		t.Fatalf("stored confirmation should satisfy: %v", res.Issues)
	}
}

func TestMissingQueueThroughRealEnforcer(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	enforcer := gates.NewEnforcer(gates.NewQueueStore(cfg.Paths.GateQueueDir), invariants.Default(), nil, logging.NewNop())
	v := New(nil, enforcer, logging.NewNop())
	wf := workflowAt(campaign.StateIntro)
	wf.Artifacts["INTRO_CONCEPT_MEMO"] = campaign.ArtifactRef{Exists: true, RequiresReview: true, ReviewGate: "HR_PRE", ArtifactID: "INTRO_CONCEPT_MEMO"}

	res := v.Validate(context.Background(), wf, campaign.StateComm, confirmation("committee_referral"))
	if res.Valid || !slices.Equal(res.Issues, []string{"Review gate HR_PRE queue not found"}) {
		t.Fatalf("issues = %v", res.Issues)
	}
	if res.Diagnostics[0].ErrorCode != campaign.CodeGateQueueNotFound || res.Diagnostics[0].Severity != campaign.SeverityError {
		t.Fatalf("diagnostic = %+v", res.Diagnostics[0])
	}
	if wf.LegislativeState != campaign.StateIntro {
		t.Fatal("validation mutated the workflow")
	}
}
