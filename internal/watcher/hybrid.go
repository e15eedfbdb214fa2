package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reports debounced batches of file events under one root. It uses
// fsnotify and falls back to polling when fsnotify cannot be created.
type Watcher struct {
	filter    Filter
	opts      Options
	debouncer *Debouncer
	fsw       *fsnotify.Watcher
	poller    *PollingWatcher

	root    string
	events  chan []FileEvent
	errors  chan error
	stopCh  chan struct{}
	mu      sync.RWMutex
	stopped bool
	dropped atomic.Uint64
}

// New creates a watcher that reports only paths accepted by filter.
func New(filter Filter, opts Options) (*Watcher, error) {
	if filter == nil {
		return nil, fmt.Errorf("watcher filter is required")
	}
	opts = opts.WithDefaults()

	w := &Watcher{
		filter:    filter,
		opts:      opts,
		debouncer: NewDebouncer(opts.DebounceWindow),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsw = fsw
			return w, nil
		}
		slog.Warn("watch_fsnotify_unavailable", slog.String("error", err.Error()))
	}
	w.poller = NewPollingWatcher(filter, opts.PollInterval)
	return w, nil
}

// Mode returns "fsnotify" or "polling".
func (w *Watcher) Mode() string {
	if w.fsw != nil {
		return "fsnotify"
	}
	return "polling"
}

// Start watches root until ctx is cancelled or Stop is called. It blocks.
func (w *Watcher) Start(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return fmt.Errorf("watch %s: %w", abs, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: not a directory", abs)
	}

	w.mu.Lock()
	w.root = abs
	w.mu.Unlock()

	go w.forward(ctx)

	if w.fsw != nil {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

func (w *Watcher) runFsnotify(ctx context.Context) error {
	if err := w.addTree(w.root, false); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	slog.Info("watch_started", slog.String("root", w.root), slog.String("mode", "fsnotify"))

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			case ev, ok := <-w.poller.Events():
				if !ok {
					return
				}
				w.dispatch(ev)
			case err, ok := <-w.poller.Errors():
				if !ok {
					return
				}
				w.emitError(err)
			}
		}
	}()
	slog.Info("watch_started", slog.String("root", w.root), slog.String("mode", "polling"))
	err := w.poller.Start(ctx, w.root)
	if ctx.Err() != nil {
		_ = w.Stop()
	}
	return err
}

// handle converts one fsnotify event.
func (w *Watcher) handle(ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || rel == "." {
		return
	}
	rel = filepath.ToSlash(rel)

	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}

	switch {
	case ev.Op&fsnotify.Create != 0:
		if isDir {
			if w.filter.SkipDir(rel) {
				return
			}
			// Files written before the watch was added produce no events of their own.
			if err := w.addTree(ev.Name, true); err != nil {
				w.emitError(err)
			}
			return
		}
		w.dispatch(FileEvent{Path: rel, Operation: OpCreate, Timestamp: time.Now()})
	case ev.Op&fsnotify.Write != 0:
		if !isDir {
			w.dispatch(FileEvent{Path: rel, Operation: OpModify, Timestamp: time.Now()})
		}
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.dispatch(FileEvent{Path: rel, Operation: OpDelete, Timestamp: time.Now()})
	}
}

// dispatch filters an event and queues it on the debouncer.
func (w *Watcher) dispatch(ev FileEvent) {
	switch {
	case isConfigFile(ev.Path) && ev.Operation != OpDelete:
		ev.Operation = OpConfigChange
	case isGitignore(ev.Path):
		if c, ok := w.filter.(gitignoreCache); ok {
			c.InvalidateGitignoreCache()
		}
		ev.Operation = OpGitignoreChange
	case ev.Operation == OpDelete:
		// A deleted path may have been a directory, so it cannot be checked
		// against file rules.
		if w.filter.SkipDir(ev.Path) {
			return
		}
	case ev.IsDir || !w.filter.Accept(ev.Path):
		return
	}
	w.debouncer.Add(ev)
}

// addTree watches dir and every non-skipped directory below it. With
// announce set, regular files found below dir are reported as created.
func (w *Watcher) addTree(dir string, announce bool) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		rel, _ := filepath.Rel(w.root, p)
		rel = filepath.ToSlash(rel)

		if !d.IsDir() {
			if announce {
				w.dispatch(FileEvent{Path: rel, Operation: OpCreate, Timestamp: time.Now()})
			}
			return nil
		}
		if rel != "." && w.filter.SkipDir(rel) {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

func (w *Watcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			w.emit(batch)
		}
	}
}

func (w *Watcher) emit(batch []FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.events <- batch:
	default:
		n := w.dropped.Add(1)
		slog.Warn("watch_buffer_full",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("dropped_batches", n))
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Events returns debounced batches. The channel is closed by Stop.
func (w *Watcher) Events() <-chan []FileEvent {
	return w.events
}

// Errors returns non-fatal watch errors. The channel is closed by Stop.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// DroppedBatches counts batches lost to a full Events buffer.
func (w *Watcher) DroppedBatches() uint64 {
	return w.dropped.Load()
}

// Stop releases the watcher. Safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()

	if w.fsw != nil {
		_ = w.fsw.Close()
	}
	if w.poller != nil {
		_ = w.poller.Stop()
	}
	close(w.events)
	close(w.errors)
	return nil
}
