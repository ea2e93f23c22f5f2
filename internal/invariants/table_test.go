package invariants

import (
	"slices"
	"testing"

	"gavel/internal/campaign"
)

func TestDefaultTableIsWellFormed(t *testing.T) {
	table := Default()
	if err := table.Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if table.Version() != Version {
		t.Fatalf("version = %s", table.Version())
	}
}

func TestTransitionsAreSingleForwardSteps(t *testing.T) {
	table := Default()
	states := campaign.States()
	for i, from := range states {
		for j, to := range states {
			want := j == i+1
			if got := table.Allowed(from, to); got != want {
				t.Fatalf("Allowed(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
	if !table.IsTerminal(campaign.StateImpl) || table.IsTerminal(campaign.StateFinal) {
		t.Fatal("only IMPL_EVT is terminal")
	}
	if next := table.Next(campaign.StateImpl); len(next) != 0 {
		t.Fatalf("terminal state has next %v", next)
	}
}

func TestRequirements(t *testing.T) {
	table := Default()
	cases := []struct {
		state        campaign.State
		artifacts    []string
		gate         string
		confirmation string
	}{
		{campaign.StatePre, []string{"PRE_CONTEXT_SNAPSHOT", "PRE_STAKEHOLDER_MAP"}, "", "bill_introduced"},
		{campaign.StateIntro, []string{"INTRO_CONCEPT_MEMO"}, GatePre, "committee_referral"},
		{campaign.StateComm, []string{"COMM_LEGISLATIVE_LANGUAGE"}, GateLang, "committee_vote"},
		{campaign.StateFloor, []string{"FLOOR_MESSAGING_PLAN"}, GateMsg, "floor_vote"},
		{campaign.StateFinal, []string{"FINAL_RELEASE_PACKAGE"}, GateRelease, "enactment"},
	}
	for _, tc := range cases {
		reqs := table.Requirements(tc.state)
		var names []string
		for _, r := range reqs {
			names = append(names, r.Name)
			if r.Gate != tc.gate {
				t.Fatalf("%s: %s gate = %q, want %q", tc.state, r.Name, r.Gate, tc.gate)
			}
		}
		if !slices.Equal(names, tc.artifacts) {
			t.Fatalf("%s artifacts = %v, want %v", tc.state, names, tc.artifacts)
		}
		next := table.Next(tc.state)[0]
		conf, ok := table.RequiresConfirmation(tc.state, next)
		if !ok || conf != tc.confirmation {
			t.Fatalf("%s confirmation = %q %v", tc.state, conf, ok)
		}
	}
	if _, ok := table.RequiresConfirmation(campaign.StatePre, campaign.StateComm); ok {
		t.Fatal("illegal transitions have no confirmation")
	}
}

func TestRequirementsAreCopies(t *testing.T) {
	table := Default()
	reqs := table.Requirements(campaign.StatePre)
	reqs[0].Name = "MUTATED"
	if table.Requirements(campaign.StatePre)[0].Name != "PRE_CONTEXT_SNAPSHOT" {
		t.Fatal("caller mutation reached the table")
	}
}

func TestGateRolesAndOverrides(t *testing.T) {
	table := Default()
	roles, ok := table.GateRoles("hr-release")
	if !ok || !slices.Equal(roles, []string{"Executive Director", "Legal Reviewer"}) {
		t.Fatalf("HR_RELEASE roles = %v %v", roles, ok)
	}

	custom := table.WithRoles(map[string][]string{
		"hr_pre": {" Field Organizer "},
		"HR_MSG": {},
	})
	if roles, _ := custom.GateRoles(GatePre); !slices.Equal(roles, []string{"Field Organizer"}) {
		t.Fatalf("override not applied: %v", roles)
	}
	if _, ok := custom.GateRoles(GateMsg); ok {
		t.Fatal("empty override should remove the requirement")
	}
	if roles, _ := table.GateRoles(GatePre); !slices.Equal(roles, []string{"Campaign Director", "Policy Director"}) {
		t.Fatalf("original table changed: %v", roles)
	}
	if err := custom.Check(); err != nil {
		t.Fatalf("custom table: %v", err)
	}
	if gates := custom.Gates(); !slices.Equal(gates, []string{GateLang, GateMsg, GatePre, GateRelease}) {
		t.Fatalf("Gates = %v", gates)
	}
}
