package watcher

import (
	"context"
	"errors"
	"log/slog"

	cierrors "github.com/Aman-CERP/codeindex/internal/errors"
	"github.com/Aman-CERP/codeindex/internal/index"
)

// Updater applies an incremental change set. *index.Builder implements it.
type Updater interface {
	Update(ctx context.Context, root string, changed, removed []string) (*index.UpdateResult, error)
}

// Source is the event side of a Runner. *Watcher implements it.
type Source interface {
	Start(ctx context.Context, root string) error
	Events() <-chan []FileEvent
	Errors() <-chan error
	Stop() error
}

// Runner connects a Source to an Updater.
type Runner struct {
	root     string
	source   Source
	updater  Updater
	resync   func(ctx context.Context) error
	onUpdate func(*index.UpdateResult)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithResync sets the function run when a .gitignore or config file changes.
// Without it those events are ignored.
func WithResync(fn func(ctx context.Context) error) RunnerOption {
	return func(r *Runner) { r.resync = fn }
}

// WithOnUpdate sets a callback invoked after every successful update.
func WithOnUpdate(fn func(*index.UpdateResult)) RunnerOption {
	return func(r *Runner) { r.onUpdate = fn }
}

// NewRunner creates a runner for root.
func NewRunner(root string, source Source, updater Updater, opts ...RunnerOption) *Runner {
	r := &Runner{root: root, source: source, updater: updater}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts the source and applies batches until ctx is cancelled. A batch
// that fails is logged and dropped; only a failure to start watching is
// returned.
func (r *Runner) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	startErr := make(chan error, 1)
	go func() { startErr <- r.source.Start(ctx, r.root) }()

	events, errs := r.source.Events(), r.source.Errors()
	for {
		select {
		case <-ctx.Done():
			_ = r.source.Stop()
			return nil
		case err := <-startErr:
			_ = r.source.Stop()
			if err == nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("watch_error", slog.String("error", err.Error()))
		case batch, ok := <-events:
			if !ok {
				return nil
			}
			r.apply(ctx, batch)
		}
	}
}

// apply turns one batch into an update, or a resync when discovery rules changed.
func (r *Runner) apply(ctx context.Context, batch []FileEvent) {
	changed, removed, resync := Split(batch)

	if resync && r.resync != nil {
		slog.Info("watch_resync")
		if err := r.resync(ctx); err != nil {
			slog.Error("watch_resync_failed", cierrors.LogAttrs(err)...)
		}
		return
	}
	if len(changed) == 0 && len(removed) == 0 {
		return
	}

	result, err := r.updater.Update(ctx, r.root, changed, removed)
	if err != nil {
		if cierrors.HasCode(err, cierrors.ErrCodeIndexLocked) {
			slog.Warn("watch_update_skipped", slog.String("reason", "index locked"),
				slog.Int("changed", len(changed)), slog.Int("removed", len(removed)))
			return
		}
		slog.Error("watch_update_failed", cierrors.LogAttrs(err)...)
		return
	}
	if r.onUpdate != nil {
		r.onUpdate(result)
	}
}

// Split partitions a batch into changed and removed paths. resync reports
// whether any event changed the rules that decide which files are indexed.
func Split(batch []FileEvent) (changed, removed []string, resync bool) {
	for _, ev := range batch {
		switch ev.Operation {
		case OpCreate, OpModify:
			changed = append(changed, ev.Path)
		case OpDelete:
			removed = append(removed, ev.Path)
		case OpGitignoreChange, OpConfigChange:
			resync = true
		}
	}
	return changed, removed, resync
}
