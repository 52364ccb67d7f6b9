package workspace

import (
	"context"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/sells-group/lrs-events/internal/geoerr"
)

type resource struct {
	name    string
	release func(context.Context) error
}

// Track registers an acquired intermediate with the function that releases
// it. Cleanup releases tracked resources in reverse order.
func (w *Workspace) Track(name string, release func(context.Context) error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resources = append(w.resources, resource{name: name, release: release})
}

// TrackDataset marks a dataset as an intermediate and tracks it for release.
func (w *Workspace) TrackDataset(ctx context.Context, name string) error {
	if err := w.setRole(ctx, name, RoleIntermediate); err != nil {
		return err
	}
	w.Track(name, func(ctx context.Context) error { return w.Drop(ctx, name) })
	return nil
}

// Tracked returns the names of resources not yet released, in acquire order.
func (w *Workspace) Tracked() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, len(w.resources))
	for i, r := range w.resources {
		names[i] = r.name
	}
	return names
}

// Cleanup releases every tracked resource. Each failure is logged and the
// rest are still attempted; failed resources stay tracked. The returned
// error, if any, is a CleanupFailed error that callers report but must not
// treat as a run failure.
func (w *Workspace) Cleanup(ctx context.Context) error {
	w.mu.Lock()
	pending := w.resources
	w.resources = nil
	w.mu.Unlock()

	var errs error
	var failed []resource
	for i := len(pending) - 1; i >= 0; i-- {
		r := pending[i]
		if err := r.release(ctx); err != nil {
			w.log.Warn("cleanup: release failed", zap.String("resource", r.name), zap.Error(err))
			errs = multierr.Append(errs, err)
			failed = append([]resource{r}, failed...)
			continue
		}
		w.log.Debug("cleanup: released", zap.String("resource", r.name))
	}

	if errs == nil {
		w.log.Info("temp files cleaned up", zap.Int("released", len(pending)))
		return nil
	}

	w.mu.Lock()
	w.resources = append(failed, w.resources...)
	w.mu.Unlock()
	return geoerr.New(geoerr.CleanupFailed, "workspace: cleanup", errs)
}
