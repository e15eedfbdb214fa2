package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/codeindex/internal/gitignore"
)

// gitignoreCacheSize bounds the number of per-directory matchers kept in memory.
const gitignoreCacheSize = 1000

// binarySniffSize is how many leading bytes are checked for NUL.
const binarySniffSize = 512

// Scanner discovers indexable files in a project directory.
type Scanner struct {
	root        string
	exts        map[string]bool
	ignoreDirs  map[string]bool
	exclude     *gitignore.Matcher
	gitignore   bool
	maxFileSize int64
	symlinks    bool

	// gitignoreCache holds one matcher per directory; nil entries mean no .gitignore.
	gitignoreCache *lru.Cache[string, *gitignore.Matcher]
}

// New validates the root and builds a Scanner.
func New(opts Options) (*Scanner, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", absRoot)
	}

	cache, err := lru.New[string, *gitignore.Matcher](gitignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create gitignore cache: %w", err)
	}

	s := &Scanner{
		root:           absRoot,
		exts:           make(map[string]bool, len(opts.Extensions)),
		ignoreDirs:     make(map[string]bool),
		exclude:        gitignore.New(opts.Exclude...),
		gitignore:      opts.RespectGitignore,
		maxFileSize:    opts.MaxFileSize,
		symlinks:       opts.FollowSymlinks,
		gitignoreCache: cache,
	}
	if s.maxFileSize <= 0 {
		s.maxFileSize = DefaultMaxFileSize
	}
	for _, ext := range opts.Extensions {
		if ext = normalizeExt(ext); ext != "" {
			s.exts[ext] = true
		}
	}

	ignore := opts.IgnoreDirs
	if ignore == nil {
		ignore = DefaultIgnoreDirs
	}
	for _, d := range append(append([]string{}, ignore...), opts.ExtraIgnoreDirs...) {
		if d = strings.Trim(d, "/"); d != "" {
			s.ignoreDirs[d] = true
		}
	}
	return s, nil
}

// Root returns the absolute scan root.
func (s *Scanner) Root() string {
	return s.root
}

// Scan walks the tree and returns accepted files sorted by Path.
func (s *Scanner) Scan(ctx context.Context) ([]FileInfo, error) {
	var files []FileInfo

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Unreadable entries are skipped, the root itself is not.
			if p == s.root {
				return err
			}
			slog.Debug("scan_skip_unreadable", slog.String("path", p), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if s.skipDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !s.symlinks {
			return nil
		}
		if !s.acceptName(rel) {
			return nil
		}

		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		if info.Size() > s.maxFileSize {
			slog.Debug("scan_skip_large", slog.String("path", rel), slog.Int64("size", info.Size()))
			return nil
		}
		if isBinaryFile(p) {
			slog.Debug("scan_skip_binary", slog.String("path", rel))
			return nil
		}

		files = append(files, FileInfo{
			Path:    rel,
			AbsPath: p,
			Size:    info.Size(),
			ModTime: info.ModTime(),
			Ext:     Ext(rel),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan %s: %w", s.root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Accept reports whether a root-relative path would be discovered, judging by
// path alone (no size or binary check). The watcher filters events with it.
func (s *Scanner) Accept(rel string) bool {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." || strings.HasPrefix(rel, "../") {
		return false
	}
	for dir := path.Dir(rel); dir != "."; dir = path.Dir(dir) {
		if s.skipDir(dir) {
			return false
		}
	}
	return s.acceptName(rel)
}

// SkipDir reports whether a root-relative directory is pruned from discovery.
func (s *Scanner) SkipDir(rel string) bool {
	return s.skipDir(strings.Trim(filepath.ToSlash(rel), "/"))
}

func (s *Scanner) skipDir(rel string) bool {
	if s.ignoreDirs[path.Base(rel)] {
		return true
	}
	if s.exclude.Match(rel, true) {
		return true
	}
	return s.gitignore && s.gitignored(rel, true)
}

func (s *Scanner) acceptName(rel string) bool {
	if len(s.exts) > 0 && !s.exts[Ext(rel)] {
		return false
	}
	if s.exclude.Match(rel, false) {
		return false
	}
	return !(s.gitignore && s.gitignored(rel, false))
}

// gitignored applies the .gitignore of every directory from the root down to
// rel's parent.
func (s *Scanner) gitignored(rel string, isDir bool) bool {
	if m := s.matcherFor(""); m != nil && m.Match(rel, isDir) {
		return true
	}

	parent := path.Dir(rel)
	if parent == "." {
		return false
	}
	base := ""
	for _, part := range strings.Split(parent, "/") {
		if base == "" {
			base = part
		} else {
			base = base + "/" + part
		}
		if m := s.matcherFor(base); m != nil && m.Match(rel, isDir) {
			return true
		}
	}
	return false
}

func (s *Scanner) matcherFor(base string) *gitignore.Matcher {
	if m, ok := s.gitignoreCache.Get(base); ok {
		return m
	}

	var m *gitignore.Matcher
	file := filepath.Join(s.root, filepath.FromSlash(base), ".gitignore")
	if _, err := os.Stat(file); err == nil {
		m = gitignore.New()
		if err := m.AddFile(file, base); err != nil {
			slog.Warn("gitignore_unreadable", slog.String("path", file), slog.String("error", err.Error()))
			m = nil
		}
	}
	s.gitignoreCache.Add(base, m)
	return m
}

// InvalidateGitignoreCache drops cached matchers after a .gitignore changes.
func (s *Scanner) InvalidateGitignoreCache() {
	s.gitignoreCache.Purge()
}

// isBinaryFile reports whether the first bytes of a file contain NUL.
func isBinaryFile(p string) bool {
	f, err := os.Open(p)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, binarySniffSize)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}
