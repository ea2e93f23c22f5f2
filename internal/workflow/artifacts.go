package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"gavel/internal/artifacts"
	"gavel/internal/campaign"
	"gavel/internal/gates"
	"gavel/internal/invariants"
	"gavel/internal/logging"
)

// TrackArtifact records the document with artifactID under name in the
// workflow's artifact map, replacing any earlier snapshot.
func (m *Manager) TrackArtifact(ctx context.Context, id, name, artifactID string) (campaign.ArtifactRef, error) {
	id = strings.TrimSpace(id)
	name = strings.ToUpper(strings.TrimSpace(name))
	artifactID = strings.TrimSpace(artifactID)
	if name == "" || artifactID == "" {
		return campaign.ArtifactRef{}, errors.New("artifact name and id are required")
	}
	if m.locator == nil {
		return campaign.ArtifactRef{}, fmt.Errorf("artifact locator: %w", ErrNotConfigured)
	}
	ctx = logging.WithWorkflowID(ctx, id)
	logger := logging.WithContext(ctx, m.logger)

	doc, err := m.locator.Find(ctx, artifactID)
	if err != nil {
		return campaign.ArtifactRef{}, err
	}
	ref := doc.Ref()

	err = m.leases.with(ctx, id, func() error {
		wf, err := m.store.Load(ctx, id)
		if err != nil {
			return err
		}
		wf.Artifacts[name] = ref
		wf.UpdatedAt = m.now()
		return m.store.Save(ctx, wf)
	})
	if err != nil {
		return campaign.ArtifactRef{}, err
	}
	logger.Info("artifact tracked",
		slog.String(logging.FieldEventType, "artifact_tracked"),
		slog.String("artifact_name", name),
		slog.String(logging.FieldArtifactID, ref.ArtifactID),
		slog.String("path", ref.Path),
		slog.String("review_gate", ref.ReviewGate),
	)
	return ref, nil
}

// SyncReport summarizes a SyncArtifacts pass.
type SyncReport struct {
	WorkflowID string
	Refreshed  []string
	Missing    []string
	Gates      []string
	// Errors maps an artifact name or "gate <ID>" to the failure that left
	// its snapshot unchanged.
	Errors map[string]string
}

// SyncArtifacts refreshes every tracked artifact from the artifact
// directories and every gate snapshot from its queue file. A queue that does
// not exist leaves the existing snapshot in place.
func (m *Manager) SyncArtifacts(ctx context.Context, id string) (SyncReport, error) {
	id = strings.TrimSpace(id)
	ctx = logging.WithWorkflowID(ctx, id)
	logger := logging.WithContext(ctx, m.logger)
	report := SyncReport{WorkflowID: id, Errors: map[string]string{}}
	if m.locator == nil {
		return report, fmt.Errorf("artifact locator: %w", ErrNotConfigured)
	}

	err := m.leases.with(ctx, id, func() error {
		wf, err := m.store.Load(ctx, id)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(wf.Artifacts))
		for name := range wf.Artifacts {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			ref := wf.Artifacts[name]
			artifactID := ref.ArtifactID
			if artifactID == "" {
				artifactID = name
			}
			doc, err := m.locator.Find(ctx, artifactID)
			switch {
			case errors.Is(err, artifacts.ErrNotFound):
				ref.Exists = false
				wf.Artifacts[name] = ref
				report.Missing = append(report.Missing, name)
			case err != nil:
				report.Errors[name] = err.Error()
			default:
				wf.Artifacts[name] = doc.Ref()
				report.Refreshed = append(report.Refreshed, name)
			}
		}

		if m.gates != nil {
			for _, gate := range m.syncGateIDs(wf) {
				queue, err := m.gates.Queues().Load(gate)
				switch {
				case errors.Is(err, gates.ErrQueueNotFound):
				case err != nil:
					report.Errors["gate "+gate] = err.Error()
				default:
					wf.ReviewGates[gate] = queue.Status()
					report.Gates = append(report.Gates, gate)
				}
			}
		}

		wf.UpdatedAt = m.now()
		return m.store.Save(ctx, wf)
	})
	if err != nil {
		return report, err
	}

	attrs := []slog.Attr{
		slog.String(logging.FieldEventType, "artifacts_synced"),
		slog.Int("refreshed", len(report.Refreshed)),
		slog.Int("missing", len(report.Missing)),
		slog.Int("gates", len(report.Gates)),
	}
	if len(report.Errors) > 0 {
		logging.WarnWithContext(logger, "artifact sync incomplete", "artifact_sync_partial",
			append(attrs[1:],
				slog.Any("errors", report.Errors),
				slog.String(logging.FieldErrorHint, "fix the listed documents and sync again"),
			)...,
		)
	} else {
		logger.Info("artifacts synced", logging.Args(attrs...)...)
	}
	return report, nil
}

// syncGateIDs is every gate the table knows plus any gate a tracked artifact
// names, in order.
func (m *Manager) syncGateIDs(wf *campaign.Workflow) []string {
	out := m.table.Gates()
	for _, ref := range wf.Artifacts {
		if ref.ReviewGate == "" {
			continue
		}
		gate := invariants.NormalizeGateID(ref.ReviewGate)
		if !slices.Contains(out, gate) {
			out = append(out, gate)
		}
	}
	slices.Sort(out)
	return out
}
