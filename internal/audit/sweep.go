package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gavel/internal/artifacts"
	"gavel/internal/campaign"
	"gavel/internal/logging"
)

// SweepReport summarizes one compliance sweep.
type SweepReport struct {
	WorkflowID  string
	Checked     int
	Incomplete  int
	Drifted     int
	Diagnostics []campaign.DiagnosticRecord
}

// Clean reports whether the sweep found nothing.
func (r SweepReport) Clean() bool {
	return len(r.Diagnostics) == 0
}

// Sweep audits artifacts outside of any transition. With a workflow it
// covers the workflow's tracked artifacts; with nil it covers every document
// in the artifact directories. Incomplete approvals are written to the audit
// log as violations and reported as ERROR diagnostics; meta drift is reported
// as WARNING.
func (e *Enforcer) Sweep(ctx context.Context, wf *campaign.Workflow) (SweepReport, error) {
	var report SweepReport
	if wf != nil {
		report.WorkflowID = wf.ID
		ctx = logging.WithWorkflowID(ctx, wf.ID)
	}
	logger := logging.WithContext(ctx, e.logger)

	docs, err := e.sweepTargets(ctx, wf, &report)
	if err != nil {
		return report, err
	}
	for _, art := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		for _, drift := range art.Drift() {
			report.Drifted++
			report.Diagnostics = append(report.Diagnostics, campaign.WarningDiagnostic(campaign.CodeMetadataDrift, drift, map[string]any{
				"artifact_id":   art.ID(),
				"artifact_path": art.Path,
			}))
		}
		check := e.CheckDecisionLogCompleteness(ctx, art.ID(), "")
		if check.Complete {
			continue
		}
		report.Incomplete++
		report.Diagnostics = append(report.Diagnostics, e.HaltOnAuditViolation(ctx, report.WorkflowID, art.ID(), check.Reason, map[string]any{
			"artifact_path": art.Path,
			"source":        "sweep",
		}))
	}

	level := slog.LevelInfo
	if !report.Clean() {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "audit sweep finished",
		slog.Int("checked", report.Checked),
		slog.Int("incomplete", report.Incomplete),
		slog.Int("drifted", report.Drifted),
		slog.String(logging.FieldEventType, "audit_sweep"),
	)
	return report, nil
}

func (e *Enforcer) sweepTargets(ctx context.Context, wf *campaign.Workflow, report *SweepReport) ([]*artifacts.Artifact, error) {
	if wf == nil {
		docs, failed, err := e.locator.All(ctx)
		if err != nil {
			return nil, fmt.Errorf("scan artifact directories: %w", err)
		}
		for path, cause := range failed {
			report.Diagnostics = append(report.Diagnostics, campaign.WarningDiagnostic(campaign.CodeArtifactLoadFailed,
				fmt.Sprintf("Artifact document %s could not be decoded", path),
				map[string]any{"artifact_path": path, "cause": cause.Error()}))
		}
		return docs, nil
	}

	var docs []*artifacts.Artifact
	for _, name := range sortedKeys(wf.Artifacts) {
		ref := wf.Artifacts[name]
		id := ref.ArtifactID
		if id == "" {
			id = name
		}
		art, err := e.locator.Find(ctx, id)
		switch {
		case err == nil:
			docs = append(docs, art)
		case errors.Is(err, artifacts.ErrNotFound):
			if ref.Exists {
				report.Diagnostics = append(report.Diagnostics, campaign.WarningDiagnostic(campaign.CodeArtifactNotFound,
					fmt.Sprintf("Tracked artifact %s (%s) is no longer present", name, id),
					map[string]any{"artifact_name": name, "artifact_id": id}))
			}
		default:
			report.Diagnostics = append(report.Diagnostics, campaign.WarningDiagnostic(campaign.CodeArtifactLoadFailed,
				fmt.Sprintf("Tracked artifact %s (%s) could not be loaded", name, id),
				map[string]any{"artifact_name": name, "artifact_id": id, "cause": err.Error()}))
		}
	}
	return docs, nil
}
