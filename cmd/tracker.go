package cmd

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/opencore-vm/ocpatch/pkg/logger"
	"github.com/opencore-vm/ocpatch/pkg/volume"
)

// mountTracker remembers which volumes this run mounted so an interrupt
// can release them before the process exits.
type mountTracker struct {
	mu      sync.Mutex
	ctl     *volume.MountController
	mounted map[string]struct{}
}

func newMountTracker(ctl *volume.MountController) *mountTracker {
	return &mountTracker{
		ctl:     ctl,
		mounted: make(map[string]struct{}),
	}
}

func (t *mountTracker) Add(identifier string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mounted[identifier] = struct{}{}
}

func (t *mountTracker) Remove(identifier string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.mounted, identifier)
}

// ReleaseAll unmounts every tracked volume, best effort. Failures are
// reported and left for manual cleanup; they are not retried.
func (t *mountTracker) ReleaseAll(ctx context.Context) {
	t.mu.Lock()
	ids := make([]string, 0, len(t.mounted))
	for id := range t.mounted {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	eg, egCtx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		eg.Go(func() error {
			if err := t.ctl.EnsureUnmounted(egCtx, id); err != nil {
				logger.L().Warn("failed to unmount during cleanup, please finish manually",
					slog.String("volume", id), slog.String("error", err.Error()))
				return nil
			}
			t.Remove(id)
			return nil
		})
	}
	_ = eg.Wait()
}
