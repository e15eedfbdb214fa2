// Package scanner discovers indexable files under a project root, honoring the
// ignored directory names, exclude globs, size cap and binary detection.
package scanner

import (
	"path"
	"strings"
	"time"
)

// DefaultMaxFileSize is the default per-file size cap (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// DefaultIgnoreDirs are directory names skipped at any depth.
var DefaultIgnoreDirs = []string{".git", "__pycache__", "node_modules", ".venv", "venv"}

// FileInfo describes a discovered file.
type FileInfo struct {
	// Path is slash-separated and relative to the scan root.
	Path    string
	AbsPath string
	Size    int64
	ModTime time.Time

	// Ext is the lowercased extension including the dot.
	Ext string
}

// Options configures a Scanner.
type Options struct {
	// Root is the directory to scan. Empty means the working directory.
	Root string

	// Extensions restricts discovery to these extensions (".py", "md", ...).
	// Empty accepts every extension.
	Extensions []string

	// IgnoreDirs are directory base names skipped at any depth. Nil means DefaultIgnoreDirs.
	IgnoreDirs []string

	// ExtraIgnoreDirs are appended to IgnoreDirs, typically the index directory.
	ExtraIgnoreDirs []string

	// Exclude holds gitignore-style patterns relative to Root.
	Exclude []string

	// RespectGitignore additionally applies .gitignore files found in the tree.
	RespectGitignore bool

	// MaxFileSize skips files larger than this many bytes (0 = DefaultMaxFileSize).
	MaxFileSize int64

	// FollowSymlinks includes symlinked files.
	FollowSymlinks bool
}

// Ext returns the lowercased extension of p including the dot, or "" if none.
func Ext(p string) string {
	return strings.ToLower(path.Ext(strings.ReplaceAll(p, "\\", "/")))
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
