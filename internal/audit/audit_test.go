package audit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gavel/internal/artifacts"
	"gavel/internal/campaign"
	"gavel/internal/gates"
	"gavel/internal/logging"
	"gavel/internal/testsupport"
)

var approvedAt = time.Date(2026, 6, 2, 15, 0, 0, 0, time.UTC)

type fixture struct {
	enforcer    *Enforcer
	artifactDir string
	queueDir    string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	enforcer := NewEnforcer(
		artifacts.NewLocator(cfg.Paths.ArtifactDirs),
		gates.NewQueueStore(cfg.Paths.GateQueueDir),
		NewLog(cfg.AuditLogPath()),
		logging.NewNop(),
	)
	return fixture{
		enforcer:    enforcer,
		artifactDir: testsupport.ArtifactDir(cfg),
		queueDir:    cfg.Paths.GateQueueDir,
	}
}

func TestUnapprovedArtifactIsTriviallyComplete(t *testing.T) {
	f := newFixture(t)
	testsupport.WriteArtifact(t, f.artifactDir, testsupport.ArtifactFixture{ID: "MEMO", RequiresReview: "HR_PRE"})
	if check := f.enforcer.CheckDecisionLogCompleteness(context.Background(), "MEMO", ""); !check.Complete {
		t.Fatalf("expected complete, got %+v", check)
	}
}

func TestApprovedWithoutGateIsComplete(t *testing.T) {
	f := newFixture(t)
	testsupport.WriteArtifact(t, f.artifactDir, testsupport.ArtifactFixture{ID: "SNAP", ApprovedAt: &approvedAt})
	// a gate carried by a stale workflow snapshot must not override the
	// artifact's own requires_review: null
	for _, gate := range []string{"", "HR_PRE", "hr_lang"} {
		if check := f.enforcer.CheckDecisionLogCompleteness(context.Background(), "SNAP", gate); !check.Complete {
			t.Fatalf("gate %q: expected complete, got %+v", gate, check)
		}
	}
}

func TestApprovedAtWithoutDecisionEntryIsIncomplete(t *testing.T) {
	f := newFixture(t)
	testsupport.WriteArtifact(t, f.artifactDir, testsupport.ArtifactFixture{
		ID: "MEMO", Status: "ACTIONABLE", RequiresReview: "HR_PRE", ApprovedAt: &approvedAt, ReviewGateStatus: "APPROVED",
	})
	testsupport.WriteQueue(t, f.queueDir, "HR_PRE", nil, []campaign.Review{
		testsupport.Approval("OTHER", "", "human:Campaign Director", approvedAt),
	})

	check := f.enforcer.CheckDecisionLogCompleteness(context.Background(), "MEMO", "")
	if check.Complete {
		t.Fatal("approved_at without a decision entry must be incomplete")
	}
	if check.Diagnostic == nil || check.Diagnostic.ErrorCode != campaign.CodeAuditIncomplete || check.Diagnostic.Severity != campaign.SeverityError {
		t.Fatalf("unexpected diagnostic %+v", check.Diagnostic)
	}
	if !strings.Contains(check.Reason, "HR_PRE") {
		t.Fatalf("reason should name the gate: %q", check.Reason)
	}
}

func TestDecisionMatchingStrategies(t *testing.T) {
	cases := []struct {
		name   string
		review campaign.Review
	}{
		{"artifact id", testsupport.Approval("MEMO", "", "human:Policy Director", approvedAt)},
		{"path suffix", testsupport.Approval("", "artifacts/MEMO.json", "human:Policy Director", approvedAt)},
		{"file name", testsupport.Approval("", "elsewhere/MEMO.json", "human:Policy Director", approvedAt)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			testsupport.WriteArtifact(t, f.artifactDir, testsupport.ArtifactFixture{
				ID: "MEMO", Status: "ACTIONABLE", RequiresReview: "HR_PRE", ApprovedAt: &approvedAt,
			})
			testsupport.WriteQueue(t, f.queueDir, "HR_PRE", nil, []campaign.Review{tc.review})
			if check := f.enforcer.CheckDecisionLogCompleteness(context.Background(), "MEMO", ""); !check.Complete {
				t.Fatalf("expected complete, got %+v", check)
			}
		})
	}
}

func TestLatestRejectionMakesApprovalIncomplete(t *testing.T) {
	f := newFixture(t)
	testsupport.WriteArtifact(t, f.artifactDir, testsupport.ArtifactFixture{
		ID: "MEMO", Status: "ACTIONABLE", RequiresReview: "HR_PRE", ApprovedAt: &approvedAt,
	})
	reject := testsupport.Approval("MEMO", "", "human:Policy Director", approvedAt.Add(time.Hour))
	reject.Decision = campaign.DecisionReject
	testsupport.WriteQueue(t, f.queueDir, "HR_PRE", nil, []campaign.Review{
		testsupport.Approval("MEMO", "", "human:Policy Director", approvedAt),
		reject,
	})
	if check := f.enforcer.CheckDecisionLogCompleteness(context.Background(), "MEMO", ""); check.Complete {
		t.Fatal("latest REJECT must not satisfy the audit")
	}
}

func TestMissingArtifactFailsClosed(t *testing.T) {
	f := newFixture(t)
	check := f.enforcer.CheckDecisionLogCompleteness(context.Background(), "GHOST", "")
	if check.Complete || check.Diagnostic == nil || check.Diagnostic.ErrorCode != campaign.CodeArtifactNotFound {
		t.Fatalf("unexpected check %+v", check)
	}
}

func TestValidateStateTransitionAuditAggregates(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"A", "B"} {
		testsupport.WriteArtifact(t, f.artifactDir, testsupport.ArtifactFixture{
			ID: id, Status: "ACTIONABLE", RequiresReview: "HR_LANG", ApprovedAt: &approvedAt,
		})
	}
	testsupport.WriteArtifact(t, f.artifactDir, testsupport.ArtifactFixture{ID: "C", ApprovedAt: &approvedAt})

	wf := campaign.NewWorkflow("wf-audit", approvedAt)
	wf.LegislativeState = campaign.StateComm
	wf.Artifacts["A"] = campaign.ArtifactRef{Exists: true, RequiresReview: true, ReviewGate: "HR_LANG", ArtifactID: "A"}
	wf.Artifacts["B"] = campaign.ArtifactRef{Exists: true, RequiresReview: true, ReviewGate: "HR_LANG", ArtifactID: "B"}
	wf.Artifacts["C"] = campaign.ArtifactRef{Exists: true, ArtifactID: "C"}
	wf.Artifacts["D"] = campaign.ArtifactRef{Exists: false, RequiresReview: true, ReviewGate: "HR_LANG", ArtifactID: "D"}

	ok, issues, diags := f.enforcer.ValidateStateTransitionAudit(context.Background(), wf, campaign.StateFloor)
	if ok || len(issues) != 2 || len(diags) != 2 {
		t.Fatalf("expected two failures, got ok=%v issues=%v", ok, issues)
	}
	if diags[0].Context["target_state"] != "FLOOR_EVT" || diags[0].Context["workflow_id"] != "wf-audit" {
		t.Fatalf("diagnostic context missing transition: %+v", diags[0].Context)
	}
}

func TestHaltOnAuditViolationAppendsEvent(t *testing.T) {
	f := newFixture(t)
	diag := f.enforcer.HaltOnAuditViolation(context.Background(), "wf-1", "MEMO", "approval not logged", map[string]any{"gate_id": "HR_PRE"})
	if diag.ErrorCode != campaign.CodeAuditIncomplete || diag.Context["gate_id"] != "HR_PRE" {
		t.Fatalf("unexpected diagnostic %+v", diag)
	}
	events, err := f.enforcer.Log().ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(events) != 1 || events[0].EventType != EventAuditViolation || events[0].Context["workflow_id"] != "wf-1" {
		t.Fatalf("unexpected events %+v", events)
	}
}

func TestSweepReportsDriftAndIncompleteness(t *testing.T) {
	f := newFixture(t)
	testsupport.WriteArtifact(t, f.artifactDir, testsupport.ArtifactFixture{
		ID: "DRIFT", Status: "ACTIONABLE", RequiresReview: "HR_MSG", ReviewGateStatus: "APPROVED",
	})
	testsupport.WriteArtifact(t, f.artifactDir, testsupport.ArtifactFixture{
		ID: "UNLOGGED", Status: "ACTIONABLE", RequiresReview: "HR_MSG", ApprovedAt: &approvedAt,
	})
	testsupport.WriteArtifact(t, f.artifactDir, testsupport.ArtifactFixture{ID: "FINE"})
	if err := os.WriteFile(filepath.Join(f.artifactDir, "broken.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := f.enforcer.Sweep(context.Background(), nil)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if report.Checked != 3 || report.Drifted != 2 || report.Incomplete != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	var warnings, errs int
	for _, d := range report.Diagnostics {
		switch d.Severity {
		case campaign.SeverityWarning:
			warnings++
		case campaign.SeverityError:
			errs++
		}
	}
	// Two drift warnings plus the undecodable document.
	if warnings != 3 || errs != 1 {
		t.Fatalf("warnings=%d errors=%d", warnings, errs)
	}
	events, err := f.enforcer.Log().ReadAll()
	if err != nil || len(events) != 1 {
		t.Fatalf("expected one audit event, got %d (%v)", len(events), err)
	}
}

func TestSweepWorkflowScope(t *testing.T) {
	f := newFixture(t)
	testsupport.WriteArtifact(t, f.artifactDir, testsupport.ArtifactFixture{ID: "MEMO"})
	testsupport.WriteArtifact(t, f.artifactDir, testsupport.ArtifactFixture{ID: "UNTRACKED", Status: "ACTIONABLE", RequiresReview: "HR_PRE"})

	wf := campaign.NewWorkflow("wf", approvedAt)
	wf.Artifacts["INTRO_CONCEPT_MEMO"] = campaign.ArtifactRef{Exists: true, ArtifactID: "MEMO"}
	wf.Artifacts["GONE"] = campaign.ArtifactRef{Exists: true, ArtifactID: "GONE"}

	report, err := f.enforcer.Sweep(context.Background(), wf)
	if err != nil {
		t.Fatal(err)
	}
	if report.Checked != 1 || len(report.Diagnostics) != 1 || report.Diagnostics[0].ErrorCode != campaign.CodeArtifactNotFound {
		t.Fatalf("unexpected report %+v", report)
	}
}
