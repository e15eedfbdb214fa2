package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codeindex/internal/scanner"
)

// extFilter accepts files by suffix and skips directories by base name.
type extFilter struct {
	ext         string
	skip        string
	invalidated atomic.Int32
}

func (f *extFilter) Accept(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if part == f.skip {
			return false
		}
	}
	return strings.HasSuffix(rel, f.ext)
}
func (f *extFilter) SkipDir(rel string) bool   { return filepath.Base(rel) == f.skip }
func (f *extFilter) InvalidateGitignoreCache() { f.invalidated.Add(1) }

func TestOperation_String(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpCreate, "CREATE"},
		{OpModify, "MODIFY"},
		{OpDelete, "DELETE"},
		{OpGitignoreChange, "GITIGNORE_CHANGE"},
		{OpConfigChange, "CONFIG_CHANGE"},
		{Operation(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.op.String())
		})
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	// Given: options with only the debounce window set
	opts := Options{DebounceWindow: time.Second}.WithDefaults()

	// Then: the rest come from DefaultOptions
	assert.Equal(t, time.Second, opts.DebounceWindow)
	assert.Equal(t, 5*time.Second, opts.PollInterval)
	assert.Equal(t, 100, opts.EventBufferSize)
	assert.Equal(t, DefaultOptions().WithDefaults(), DefaultOptions())
}

func TestSpecialFiles(t *testing.T) {
	assert.True(t, isGitignore(".gitignore"))
	assert.True(t, isGitignore("src/.gitignore"))
	assert.False(t, isGitignore("gitignore.md"))
	assert.True(t, isConfigFile(".codeindex.yaml"))
	assert.True(t, isConfigFile(".codeindex.yml"))
	assert.False(t, isConfigFile("sub/.codeindex.yaml"))
}

func TestNew_RequiresFilter(t *testing.T) {
	_, err := New(nil, DefaultOptions())
	require.Error(t, err)
}

func TestWatcher_Dispatch(t *testing.T) {
	// Given: a watcher whose filter accepts .py files outside vendor/
	f := &extFilter{ext: ".py", skip: "vendor"}
	w, err := New(f, Options{DebounceWindow: 20 * time.Millisecond, ForcePolling: true})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	// When: a mix of events is dispatched
	w.dispatch(FileEvent{Path: "a.py", Operation: OpCreate})
	w.dispatch(FileEvent{Path: "notes.txt", Operation: OpCreate})
	w.dispatch(FileEvent{Path: "vendor/x.py", Operation: OpModify})
	w.dispatch(FileEvent{Path: "vendor", Operation: OpDelete})
	w.dispatch(FileEvent{Path: "lib", Operation: OpDelete})
	w.dispatch(FileEvent{Path: ".gitignore", Operation: OpModify})
	w.dispatch(FileEvent{Path: ".codeindex.yaml", Operation: OpModify})

	// Then: only indexable paths and rule changes reach the batch
	batch := receiveBatch(t, w.debouncer.Output(), time.Second)
	got := map[string]Operation{}
	for _, ev := range batch {
		got[ev.Path] = ev.Operation
	}
	assert.Equal(t, map[string]Operation{
		".codeindex.yaml": OpConfigChange,
		".gitignore":      OpGitignoreChange,
		"a.py":            OpCreate,
		"lib":             OpDelete,
	}, got)
	assert.Equal(t, int32(1), f.invalidated.Load())
}

func TestWatcher_DroppedBatches(t *testing.T) {
	// Given: a watcher with room for one batch
	w, err := New(&extFilter{ext: ".py"}, Options{EventBufferSize: 1, ForcePolling: true})
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()
	assert.Zero(t, w.DroppedBatches())

	// When: three batches are emitted without a reader
	for i := 0; i < 3; i++ {
		w.emit([]FileEvent{{Path: "a.py", Operation: OpModify}})
	}

	// Then: two were dropped
	assert.Equal(t, uint64(2), w.DroppedBatches())
}

func TestWatcher_Start_InvalidRoot(t *testing.T) {
	w, err := New(&extFilter{ext: ".py"}, DefaultOptions())
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	err = w.Start(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWatcher_Stop_ClosesChannels(t *testing.T) {
	w, err := New(&extFilter{ext: ".py"}, DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok)
	_, ok = <-w.Errors()
	assert.False(t, ok)
}

// collect gathers events from batches until want reports true.
func collect(t *testing.T, w *Watcher, want func(map[string]Operation) bool) map[string]Operation {
	t.Helper()
	seen := map[string]Operation{}
	deadline := time.After(5 * time.Second)
	for !want(seen) {
		select {
		case batch, ok := <-w.Events():
			require.True(t, ok, "events closed")
			for _, ev := range batch {
				seen[ev.Path] = ev.Operation
			}
		case <-deadline:
			t.Fatalf("timeout; saw %v", seen)
		}
	}
	return seen
}

func startWatcher(t *testing.T, root string, opts Options) *Watcher {
	t.Helper()
	sc, err := scanner.New(scanner.Options{
		Root:            root,
		Extensions:      []string{".py", ".md"},
		ExtraIgnoreDirs: []string{".codeindex"},
	})
	require.NoError(t, err)

	w, err := New(sc, opts)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Start(ctx, root)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = w.Stop()
	})
	return w
}

func TestWatcher_Filesystem(t *testing.T) {
	modes := []struct {
		name string
		opts Options
	}{
		{"fsnotify", Options{DebounceWindow: 50 * time.Millisecond}},
		{"polling", Options{DebounceWindow: 50 * time.Millisecond, PollInterval: 50 * time.Millisecond, ForcePolling: true}},
	}
	for _, mode := range modes {
		t.Run(mode.name, func(t *testing.T) {
			// Given: a watched project with one indexed file
			root := t.TempDir()
			existing := filepath.Join(root, "old.py")
			require.NoError(t, os.WriteFile(existing, []byte("x = 1\n"), 0o644))
			require.NoError(t, os.MkdirAll(filepath.Join(root, ".codeindex"), 0o755))

			w := startWatcher(t, root, mode.opts)
			if mode.name == "fsnotify" && w.Mode() != "fsnotify" {
				t.Skip("fsnotify unavailable")
			}
			time.Sleep(200 * time.Millisecond)

			// When: files are created, ignored, and deleted
			require.NoError(t, os.WriteFile(filepath.Join(root, "new.py"), []byte("def f():\n    pass\n"), 0o644))
			require.NoError(t, os.WriteFile(filepath.Join(root, "image.png"), []byte{0x89, 'P'}, 0o644))
			require.NoError(t, os.WriteFile(filepath.Join(root, ".codeindex", "index.db"), []byte("db"), 0o644))
			require.NoError(t, os.Remove(existing))

			// Then: only the indexable changes are reported
			seen := collect(t, w, func(m map[string]Operation) bool {
				_, created := m["new.py"]
				_, removed := m["old.py"]
				return created && removed
			})
			assert.Contains(t, []Operation{OpCreate, OpModify}, seen["new.py"])
			assert.Equal(t, OpDelete, seen["old.py"])
			assert.NotContains(t, seen, "image.png")
			assert.NotContains(t, seen, ".codeindex/index.db")
		})
	}
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	// Given: a watched empty project
	root := t.TempDir()
	w := startWatcher(t, root, Options{DebounceWindow: 50 * time.Millisecond})
	if w.Mode() != "fsnotify" {
		t.Skip("fsnotify unavailable")
	}
	time.Sleep(200 * time.Millisecond)

	// When: a directory with a file appears, then a second file is written into it
	dir := filepath.Join(root, "pkg")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("a = 1\n"), 0o644))
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("# B\n"), 0o644))

	// Then: both files are reported
	seen := collect(t, w, func(m map[string]Operation) bool {
		_, a := m["pkg/a.py"]
		_, b := m["pkg/b.md"]
		return a && b
	})
	assert.Contains(t, []Operation{OpCreate, OpModify}, seen["pkg/b.md"])
}
