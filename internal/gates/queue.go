package gates

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"gavel/internal/campaign"
	"gavel/internal/fileutil"
	"gavel/internal/invariants"
)

var (
	// ErrQueueNotFound means the gate has no queue document yet.
	ErrQueueNotFound = errors.New("gate queue not found")
	// ErrQueueMalformed means the queue document could not be decoded or
	// contains entries missing required fields.
	ErrQueueMalformed = errors.New("gate queue malformed")
)

// Queue is the review queue document for one gate.
type Queue struct {
	GateID          string            `json:"gate_id"`
	PendingReviews  []campaign.Review `json:"pending_reviews"`
	ApprovedReviews []campaign.Review `json:"approved_reviews"`
}

func (q *Queue) validate(gateID string) error {
	if q.GateID != "" && invariants.NormalizeGateID(q.GateID) != gateID {
		return fmt.Errorf("gate_id %q does not match %s", q.GateID, gateID)
	}
	for i, review := range q.PendingReviews {
		if err := review.ValidatePending(); err != nil {
			return fmt.Errorf("pending_reviews[%d]: %w", i, err)
		}
	}
	for i, review := range q.ApprovedReviews {
		if err := review.ValidateDecided(); err != nil {
			return fmt.Errorf("approved_reviews[%d]: %w", i, err)
		}
	}
	return nil
}

// Status summarizes the queue. Outstanding pending reviews make the gate
// PENDING; otherwise the most recent decision sets the state.
func (q *Queue) Status() campaign.ReviewGateStatus {
	status := campaign.ReviewGateStatus{
		GateID:          q.GateID,
		State:           campaign.GatePending,
		PendingReviews:  slices.Clone(q.PendingReviews),
		ApprovedReviews: slices.Clone(q.ApprovedReviews),
	}
	if status.PendingReviews == nil {
		status.PendingReviews = []campaign.Review{}
	}
	if status.ApprovedReviews == nil {
		status.ApprovedReviews = []campaign.Review{}
	}
	if len(q.PendingReviews) > 0 {
		return status
	}
	if latest, ok := latestDecision(q.ApprovedReviews, nil); ok {
		if d, _ := campaign.ParseDecision(string(latest.Decision)); d == campaign.DecisionApprove {
			status.State = campaign.GateApproved
		} else {
			status.State = campaign.GateRejected
		}
	}
	return status
}

// LatestDecision returns the newest decided review for the artifact.
func (q *Queue) LatestDecision(artifactID, artifactPath string) (campaign.Review, bool) {
	return latestDecision(q.ApprovedReviews, func(r campaign.Review) bool {
		return r.Matches(artifactID, artifactPath)
	})
}

// latestDecision returns the newest decided review accepted by match (all
// reviews when match is nil). Ties on decision_at go to the later entry.
func latestDecision(reviews []campaign.Review, match func(campaign.Review) bool) (campaign.Review, bool) {
	var (
		best  campaign.Review
		found bool
	)
	for _, review := range reviews {
		if match != nil && !match(review) {
			continue
		}
		if !found || !review.DecisionAt.Before(*best.DecisionAt) {
			best = review
			found = true
		}
	}
	return best, found
}

// QueueStore reads and writes gate queue documents in one directory. Queue
// files are re-read on every call; nothing is cached.
type QueueStore struct {
	dir   string
	clock func() time.Time
}

// NewQueueStore manages <dir>/<GATE>_queue.json files.
func NewQueueStore(dir string) *QueueStore {
	return &QueueStore{dir: dir, clock: time.Now}
}

// Dir reports the queue directory.
func (s *QueueStore) Dir() string {
	return s.dir
}

// Path returns the queue document location for gate.
func (s *QueueStore) Path(gateID string) string {
	return filepath.Join(s.dir, invariants.NormalizeGateID(gateID)+"_queue.json")
}

// Load reads the queue for gate.
func (s *QueueStore) Load(gateID string) (*Queue, error) {
	gateID = invariants.NormalizeGateID(gateID)
	path := s.Path(gateID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrQueueNotFound, path)
		}
		return nil, fmt.Errorf("read gate queue %s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var q Queue
	if err := dec.Decode(&q); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrQueueMalformed, path, err)
	}
	if err := q.validate(gateID); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrQueueMalformed, path, err)
	}
	if q.GateID == "" {
		q.GateID = gateID
	}
	return &q, nil
}

// Submit queues a pending review for an artifact. Resubmitting an artifact
// that is already pending returns the existing entry.
func (s *QueueStore) Submit(ctx context.Context, gateID, artifactID, artifactPath string) (campaign.Review, error) {
	gateID = invariants.NormalizeGateID(gateID)
	var out campaign.Review
	err := s.update(ctx, gateID, func(q *Queue) error {
		for _, pending := range q.PendingReviews {
			if pending.Matches(artifactID, artifactPath) {
				out = pending
				return errUnchanged
			}
		}
		now := s.clock().UTC()
		out = campaign.Review{
			ReviewID:     uuid.NewString(),
			ArtifactID:   strings.TrimSpace(artifactID),
			ArtifactPath: strings.TrimSpace(artifactPath),
			SubmittedAt:  &now,
		}
		q.PendingReviews = append(q.PendingReviews, out)
		return nil
	})
	return out, err
}

// RecordDecision moves the artifact's pending review, if any, into
// approved_reviews with the decision applied; otherwise a new decided entry
// is appended. Authorization is the caller's responsibility.
func (s *QueueStore) RecordDecision(ctx context.Context, gateID, artifactID, artifactPath string, decision campaign.Decision, by Principal, rationale string, at time.Time) (campaign.Review, error) {
	gateID = invariants.NormalizeGateID(gateID)
	if _, ok := campaign.ParseDecision(string(decision)); !ok {
		return campaign.Review{}, fmt.Errorf("unknown decision %q", decision)
	}
	if at.IsZero() {
		at = s.clock()
	}
	at = at.UTC()

	var out campaign.Review
	err := s.update(ctx, gateID, func(q *Queue) error {
		review := campaign.Review{
			ReviewID:     uuid.NewString(),
			ArtifactID:   strings.TrimSpace(artifactID),
			ArtifactPath: strings.TrimSpace(artifactPath),
		}
		remaining := q.PendingReviews[:0]
		for _, pending := range q.PendingReviews {
			if pending.Matches(artifactID, artifactPath) && review.SubmittedAt == nil {
				review.ReviewID = firstNonEmpty(pending.ReviewID, review.ReviewID)
				review.ArtifactPath = firstNonEmpty(review.ArtifactPath, pending.ArtifactPath)
				review.SubmittedAt = pending.SubmittedAt
				if review.SubmittedAt == nil {
					submitted := at
					review.SubmittedAt = &submitted
				}
				continue
			}
			remaining = append(remaining, pending)
		}
		q.PendingReviews = remaining

		review.Decision = decision
		review.DecisionBy = by.String()
		review.DecisionAt = &at
		review.Rationale = strings.TrimSpace(rationale)
		q.ApprovedReviews = append(q.ApprovedReviews, review)
		out = review
		return nil
	})
	return out, err
}

var errUnchanged = errors.New("queue unchanged")

func (s *QueueStore) update(ctx context.Context, gateID string, mutate func(*Queue) error) error {
	path := s.Path(gateID)
	return fileutil.WithLock(ctx, path, func() error {
		q, err := s.Load(gateID)
		if errors.Is(err, ErrQueueNotFound) {
			q = &Queue{GateID: gateID}
		} else if err != nil {
			return err
		}
		if err := mutate(q); err != nil {
			if errors.Is(err, errUnchanged) {
				return nil
			}
			return err
		}
		q.GateID = gateID
		if q.PendingReviews == nil {
			q.PendingReviews = []campaign.Review{}
		}
		if q.ApprovedReviews == nil {
			q.ApprovedReviews = []campaign.Review{}
		}
		data, err := json.MarshalIndent(q, "", "  ")
		if err != nil {
			return fmt.Errorf("encode gate queue %s: %w", gateID, err)
		}
		return fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644)
	})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
