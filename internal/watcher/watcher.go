package watcher

import (
	"strings"
	"time"
)

// Operation is the kind of change reported for a path.
type Operation int

const (
	// OpCreate is a new file.
	OpCreate Operation = iota
	// OpModify is a write to an existing file.
	OpModify
	// OpDelete is a removed or renamed-away file or directory.
	OpDelete
	// OpGitignoreChange is a write to any .gitignore; discovery rules changed.
	OpGitignoreChange
	// OpConfigChange is a write to the project config file.
	OpConfigChange
)

// String returns the operation name.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpGitignoreChange:
		return "GITIGNORE_CHANGE"
	case OpConfigChange:
		return "CONFIG_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change under the watched root.
type FileEvent struct {
	// Path is slash-separated and relative to the root.
	Path      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Filter decides which paths are worth reporting. *scanner.Scanner implements it.
type Filter interface {
	// Accept reports whether a root-relative file path would be indexed.
	Accept(rel string) bool

	// SkipDir reports whether a root-relative directory is excluded entirely.
	SkipDir(rel string) bool
}

// gitignoreCache is implemented by filters that cache parsed .gitignore files.
type gitignoreCache interface {
	InvalidateGitignoreCache()
}

// ConfigFileNames are reported as OpConfigChange instead of regular file events.
var ConfigFileNames = []string{".codeindex.yaml", ".codeindex.yml"}

func isConfigFile(rel string) bool {
	for _, name := range ConfigFileNames {
		if rel == name {
			return true
		}
	}
	return false
}

func isGitignore(rel string) bool {
	return rel == ".gitignore" || strings.HasSuffix(rel, "/.gitignore")
}

// Options configures a Watcher.
type Options struct {
	// DebounceWindow is how long a path must stay quiet before its event is emitted.
	DebounceWindow time.Duration

	// PollInterval is the scan interval of the polling fallback.
	PollInterval time.Duration

	// EventBufferSize is the capacity of the batch channel.
	EventBufferSize int

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 100,
	}
}

// WithDefaults fills zero fields from DefaultOptions.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	return o
}
