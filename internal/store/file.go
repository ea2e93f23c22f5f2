package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gavel/internal/campaign"
	"gavel/internal/fileutil"
)

// FileStore keeps each workflow in <dir>/<id>.json. Writes replace the file
// atomically while holding its sidecar lock, so the version comparison and
// the write cannot interleave with another process.
type FileStore struct {
	dir string
}

// OpenFile uses dir, creating it when needed.
func OpenFile(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workflow directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

func (s *FileStore) read(id string) (*campaign.Workflow, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("read workflow %s: %w", id, err)
	}
	wf, err := campaign.DecodeWorkflow(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path(id), err)
	}
	return wf, nil
}

func (s *FileStore) write(wf *campaign.Workflow) error {
	data, err := campaign.EncodeWorkflow(wf)
	if err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(s.path(wf.ID), append(data, '\n'), 0o644)
}

// Create implements Store.
func (s *FileStore) Create(ctx context.Context, wf *campaign.Workflow) error {
	if err := ValidateID(wf.ID); err != nil {
		return err
	}
	return fileutil.WithLock(ensureContext(ctx), s.path(wf.ID), func() error {
		if _, err := os.Stat(s.path(wf.ID)); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, wf.ID)
		}
		return s.write(wf)
	})
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, id string) (*campaign.Workflow, error) {
	if err := ValidateID(id); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.read(id)
}

// Save implements Store.
func (s *FileStore) Save(ctx context.Context, wf *campaign.Workflow) error {
	if err := ValidateID(wf.ID); err != nil {
		return err
	}
	return fileutil.WithLock(ensureContext(ctx), s.path(wf.ID), func() error {
		stored, err := s.read(wf.ID)
		if err != nil {
			return err
		}
		if stored.Version != wf.Version {
			return fmt.Errorf("%w: %s has version %d, caller had %d", ErrVersionConflict, wf.ID, stored.Version, wf.Version)
		}
		next := *wf
		next.Version = wf.Version + 1
		if err := s.write(&next); err != nil {
			return err
		}
		wf.Version = next.Version
		return nil
	})
}

// AppendDiagnostic implements Store.
func (s *FileStore) AppendDiagnostic(ctx context.Context, id string, d campaign.DiagnosticRecord) (*campaign.Workflow, error) {
	return appendWithRetry(ctx, s, id, d)
}

// List implements Store.
func (s *FileStore) List(_ context.Context, states ...campaign.State) ([]*campaign.Workflow, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read workflow directory: %w", err)
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	slices.Sort(ids)

	var out []*campaign.Workflow
	for _, id := range ids {
		wf, err := s.read(id)
		if err != nil {
			return nil, err
		}
		if matchesStates(wf, states) {
			out = append(out, wf)
		}
	}
	return out, nil
}
