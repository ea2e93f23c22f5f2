package workflow

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"gavel/internal/fileutil"
	"gavel/internal/store"
)

// ErrWorkflowBusy means another request held the workflow's lease for longer
// than the lease timeout.
var ErrWorkflowBusy = errors.New("workflow is busy")

// leases serializes work on one workflow. The channel slot covers goroutines
// in this process; the file lock covers other processes sharing the state
// directory.
type leases struct {
	mu      sync.Mutex
	slots   map[string]chan struct{}
	dir     string
	timeout time.Duration
}

func newLeases(dir string, timeout time.Duration) *leases {
	return &leases{
		slots:   make(map[string]chan struct{}),
		dir:     dir,
		timeout: timeout,
	}
}

func (l *leases) slot(id string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[id]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[id] = ch
	}
	return ch
}

// with runs fn while holding the lease for id. fn receives the caller's
// context; only acquisition is bounded by the lease timeout. id becomes part
// of a lock path, so it must pass store.ValidateID.
func (l *leases) with(ctx context.Context, id string, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := store.ValidateID(id); err != nil {
		return fmt.Errorf("lease workflow: %w", err)
	}
	acquireCtx := ctx
	if l.timeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	slot := l.slot(id)
	select {
	case slot <- struct{}{}:
	case <-acquireCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s (waited %s)", ErrWorkflowBusy, id, l.timeout)
	}
	defer func() { <-slot }()

	if l.dir == "" {
		return fn()
	}

	acquired := false
	err := fileutil.WithLock(acquireCtx, filepath.Join(l.dir, id), func() error {
		acquired = true
		return fn()
	})
	if err != nil && !acquired {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if acquireCtx.Err() != nil {
			return fmt.Errorf("%w: %s (waited %s)", ErrWorkflowBusy, id, l.timeout)
		}
	}
	return err
}
