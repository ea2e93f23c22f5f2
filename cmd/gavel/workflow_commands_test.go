package main

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gavel/internal/campaign"
	"gavel/internal/escalation"
	"gavel/internal/testsupport"
)

func advanceArgs(id, target, eventType string) []string {
	return []string{
		"advance", id, target,
		"--confirmation", "introduced as HB 101",
		"--event-type", eventType,
		"--source", "house journal p. 4",
		"--confirmed-by", "human:Campaign Director",
	}
}

func TestInitStatusAndHistory(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "init", "wf-1")
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	requireContains(t, out, "Started workflow wf-1 at PRE_EVT")

	if _, _, err := env.run(t, "init", "wf-1"); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected duplicate init to fail, got %v", err)
	}

	out, _, err = env.run(t, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "wf-1")
	requireContains(t, out, "INTRO_EVT")

	out, _, err = env.run(t, "status", "wf-1", "--json")
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var wf campaign.Workflow
	if err := json.Unmarshal([]byte(out), &wf); err != nil {
		t.Fatalf("decode status json: %v\n%s", err, out)
	}
	if wf.ID != "wf-1" || wf.LegislativeState != campaign.StatePre {
		t.Fatalf("unexpected workflow %+v", wf)
	}

	out, _, err = env.run(t, "history", "wf-1")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No transitions applied")

	if _, _, err := env.run(t, "status", "missing"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAdvanceRequiresConfirmationText(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := env.run(t, "init", "wf-1"); err != nil {
		t.Fatal(err)
	}
	_, _, err := env.run(t, "advance", "wf-1", "INTRO", "--confirmation", "   ", "--confirmed-by", "human:Campaign Director")
	if err == nil || !strings.Contains(err.Error(), "--confirmation") {
		t.Fatalf("expected confirmation error, got %v", err)
	}
	if _, _, err := env.run(t, "advance", "wf-1", "INTRO", "--confirmed-by", "x"); err == nil {
		t.Fatal("expected error when --confirmation is absent")
	}
	if _, _, err := env.run(t, advanceArgs("wf-1", "NOWHERE", "bill_introduced")...); err == nil || !strings.Contains(err.Error(), "unknown state") {
		t.Fatalf("expected unknown state error, got %v", err)
	}
}

func TestAdvanceBlockedPrintsEveryIssue(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := env.run(t, "init", "wf-1"); err != nil {
		t.Fatal(err)
	}

	out, _, err := env.run(t, advanceArgs("wf-1", "COMM_EVT", "committee_referral")...)
	if err == nil {
		t.Fatal("expected skipped state to be refused")
	}
	requireContains(t, out, "Invalid transition from PRE_EVT to COMM_EVT; allowed next state: INTRO_EVT")

	out, _, err = env.run(t, advanceArgs("wf-1", "INTRO_EVT", "bill_introduced")...)
	if err == nil {
		t.Fatal("expected missing artifacts to block the transition")
	}
	requireContains(t, out, "Required artifact PRE_CONTEXT_SNAPSHOT is missing")
	requireContains(t, out, "Required artifact PRE_STAKEHOLDER_MAP is missing")

	out, _, err = env.run(t, "history", "wf-1")
	if err != nil {
		t.Fatal(err)
	}
	requireContains(t, out, "TRANSITION_BLOCKED")
}

func TestTrackAndAdvance(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := env.run(t, "init", "wf-1"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.run(t, "track", "wf-1", "PRE_CONTEXT_SNAPSHOT", "PRE_CONTEXT_SNAPSHOT"); err == nil {
		t.Fatal("expected tracking a missing document to fail")
	}
	for _, name := range []string{"PRE_CONTEXT_SNAPSHOT", "PRE_STAKEHOLDER_MAP"} {
		testsupport.WriteArtifact(t, env.artifactDir, testsupport.ArtifactFixture{ID: name})
		out, _, err := env.run(t, "track", "wf-1", strings.ToLower(name), name)
		if err != nil {
			t.Fatalf("track %s: %v", name, err)
		}
		requireContains(t, out, "Tracking "+name+" as "+name)
	}

	out, _, err := env.run(t, advanceArgs("wf-1", "intro", "bill_introduced")...)
	if err != nil {
		t.Fatalf("advance: %v\n%s", err, out)
	}
	requireContains(t, out, "Advanced wf-1: PRE_EVT -> INTRO_EVT")

	out, _, err = env.run(t, "history", "wf-1")
	if err != nil {
		t.Fatal(err)
	}
	requireContains(t, out, "bill_introduced (house journal p. 4)")

	out, _, err = env.run(t, "sync", "wf-1")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	requireContains(t, out, "2 artifact(s) refreshed, 0 missing")
}

func TestGateDecisionsThroughCLI(t *testing.T) {
	env := setupCLITestEnv(t)
	testsupport.WriteArtifact(t, env.artifactDir, testsupport.ArtifactFixture{ID: "INTRO_CONCEPT_MEMO", RequiresReview: "HR_PRE"})

	out, _, err := env.run(t, "submit", "HR_PRE", "INTRO_CONCEPT_MEMO")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, out, "Queued INTRO_CONCEPT_MEMO for review")

	_, _, err = env.run(t, "approve", "HR_PRE", "INTRO_CONCEPT_MEMO", "--by", "human:legal_reviewer")
	if err == nil || !strings.Contains(err.Error(), "decision refused") {
		t.Fatalf("expected role mismatch, got %v", err)
	}
	_, _, err = env.run(t, "approve", "HR_PRE", "INTRO_CONCEPT_MEMO", "--by", "agent:campaign_director")
	if err == nil {
		t.Fatal("expected agent approval to be refused")
	}

	out, _, err = env.run(t, "approve", "hr_pre", "INTRO_CONCEPT_MEMO", "--by", "human:Campaign Director", "--rationale", "matches the brief")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	requireContains(t, out, "Recorded APPROVE for INTRO_CONCEPT_MEMO at HR_PRE")

	out, _, err = env.run(t, "audit", "check", "INTRO_CONCEPT_MEMO")
	if err != nil {
		t.Fatalf("audit check: %v\n%s", err, out)
	}
	requireContains(t, out, "Audit complete")

	out, _, err = env.run(t, "escalations", "list", "--json")
	if err != nil {
		t.Fatalf("escalations list: %v", err)
	}
	var entries []escalation.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("decode escalations: %v\n%s", err, out)
	}
	if len(entries) < 2 {
		t.Fatalf("expected refused decisions to be escalated, got %d entries", len(entries))
	}
}

func TestAuditFindsUnbackedApproval(t *testing.T) {
	env := setupCLITestEnv(t)
	approved := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	testsupport.WriteArtifact(t, env.artifactDir, testsupport.ArtifactFixture{
		ID:               "COMM_LEGISLATIVE_LANGUAGE",
		RequiresReview:   "HR_LANG",
		Status:           "ACTIONABLE",
		ApprovedAt:       &approved,
		ReviewGateStatus: "APPROVED",
	})

	out, _, err := env.run(t, "audit", "check", "COMM_LEGISLATIVE_LANGUAGE")
	if err == nil {
		t.Fatal("expected audit check to fail")
	}
	requireContains(t, out, "Audit incomplete")

	out, _, err = env.run(t, "audit", "sweep")
	if err == nil {
		t.Fatal("expected sweep to report the violation")
	}
	requireContains(t, out, "1 checked, 1 incomplete")
}

func TestBlockAndResumeCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := env.run(t, "init", "wf-1"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.run(t, "block", "wf-1"); err == nil {
		t.Fatal("expected --reason to be required")
	}
	out, _, err := env.run(t, "block", "wf-1", "--reason", "counsel review pending", "--code", "gate_violation")
	if err != nil {
		t.Fatalf("block: %v", err)
	}
	requireContains(t, out, "halted (orchestrator ERROR)")

	out, _, err = env.run(t, advanceArgs("wf-1", "INTRO_EVT", "bill_introduced")...)
	if err == nil {
		t.Fatal("expected halted workflow to refuse transitions")
	}
	requireContains(t, out, "blocked")

	out, _, err = env.run(t, "resume", "wf-1")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	requireContains(t, out, "Workflow wf-1 is ACTIVE at PRE_EVT")
}

func TestEscalateCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := env.run(t, "escalate", "--reason", "draft relies on an unverified vote count", "--severity", "medium", "--confidence", "0.4", "--workflow", "wf-1")
	if err != nil {
		t.Fatalf("escalate: %v", err)
	}
	requireContains(t, out, "recorded at MEDIUM")

	if _, _, err := env.run(t, "escalate", "--reason", "unclear", "--severity", "urgent"); err != nil {
		t.Fatalf("escalate with unknown severity: %v", err)
	}

	out, _, err = env.run(t, "escalations", "list", "--severity", "high")
	if err != nil {
		t.Fatalf("escalations list: %v", err)
	}
	requireContains(t, out, "unclear")
	if strings.Contains(out, "unverified vote count") {
		t.Fatalf("severity filter leaked a MEDIUM entry:\n%s", out)
	}

	if _, _, err := env.run(t, "escalations", "list", "--severity", "bogus"); err == nil {
		t.Fatal("expected unknown filter severity to fail")
	}

	for _, args := range [][]string{{"--confidence", "NaN"}, {"--drift", "nan"}, {"--confidence", "+Inf"}} {
		_, _, err := env.run(t, append([]string{"escalate", "--reason", "scored"}, args...)...)
		if err == nil || !strings.Contains(err.Error(), "finite number") {
			t.Fatalf("escalate %v: expected rejection, got %v", args, err)
		}
	}
}

func TestLogCommandShowsAuditTrail(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := env.run(t, "init", "wf-1"); err != nil {
		t.Fatal(err)
	}
	out, _, err := env.run(t, "log", "audit", "-n", "5")
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	requireContains(t, out, "workflow_started")

	if _, _, err := env.run(t, "log", "daemon"); err == nil {
		t.Fatal("expected unknown log name to fail")
	}
}
