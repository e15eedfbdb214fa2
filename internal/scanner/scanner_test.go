package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func paths(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Path
	}
	return out
}

func TestScanner_Scan_IgnoresDirectoriesAndSorts(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"b.py":                   "x = 1\n",
		"a/b.py":                 "x = 2\n",
		"a.py":                   "x = 3\n",
		".git/config.py":         "no\n",
		"pkg/__pycache__/c.py":   "no\n",
		"web/node_modules/m.js":  "no\n",
		".venv/lib/site.py":      "no\n",
		"venv/lib/site.py":       "no\n",
		".codeindex/report.json": "{}\n",
		"docs/README.md":         "# hi\n",
		"image.png":              "png",
	})

	s, err := New(Options{
		Root:            root,
		Extensions:      []string{".py", "md", ".json", ".js"},
		ExtraIgnoreDirs: []string{".codeindex"},
	})
	require.NoError(t, err)

	files, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "a/b.py", "b.py", "docs/README.md"}, paths(files))

	assert.Equal(t, ".md", files[3].Ext)
	assert.Equal(t, filepath.Join(root, "docs", "README.md"), files[3].AbsPath)
	assert.EqualValues(t, 5, files[3].Size)
}

func TestScanner_Scan_ExcludePatterns(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/main.go":        "package main\n",
		"src/main_test.go":   "package main\n",
		"gen/api.go":         "package gen\n",
		"third_party/x/y.go": "package y\n",
	})

	s, err := New(Options{Root: root, Exclude: []string{"*_test.go", "/gen/", "third_party/**"}})
	require.NoError(t, err)

	files, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"src/main.go"}, paths(files))
}

func TestScanner_Scan_SkipsBinaryAndLarge(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"small.txt": "ok\n",
		"big.txt":   "0123456789abcdef\n",
		"bin.txt":   "abc\x00def",
	})

	s, err := New(Options{Root: root, MaxFileSize: 10})
	require.NoError(t, err)

	files, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"small.txt"}, paths(files))
}

func TestScanner_Scan_RespectGitignore(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":     "*.log.txt\nbuild/\n",
		"pkg/.gitignore": "local.py\n",
		"app.py":         "a\n",
		"debug.log.txt":  "no\n",
		"build/out.py":   "no\n",
		"pkg/local.py":   "no\n",
		"pkg/shared.py":  "yes\n",
		"other/local.py": "yes\n",
	})

	opts := Options{Root: root, Extensions: []string{".py", ".txt"}}

	s, err := New(opts)
	require.NoError(t, err)
	files, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, files, 6, ".gitignore is off by default")

	opts.RespectGitignore = true
	s, err = New(opts)
	require.NoError(t, err)
	files, err = s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"app.py", "other/local.py", "pkg/shared.py"}, paths(files))
}

func TestScanner_Accept(t *testing.T) {
	root := t.TempDir()
	s, err := New(Options{
		Root:            root,
		Extensions:      []string{".py"},
		ExtraIgnoreDirs: []string{".codeindex"},
		Exclude:         []string{"legacy/"},
	})
	require.NoError(t, err)

	tests := map[string]bool{
		"a.py":                true,
		"pkg/a.py":            true,
		"pkg/a.go":            false,
		"node_modules/x/a.py": false,
		".codeindex/store.py": false,
		"legacy/old.py":       false,
		"src/legacy/old.py":   false,
		"../outside.py":       false,
		"":                    false,
	}
	for rel, want := range tests {
		assert.Equal(t, want, s.Accept(rel), rel)
	}
	assert.True(t, s.SkipDir(".git"))
	assert.False(t, s.SkipDir("src"))
}

func TestScanner_Scan_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.py": "x\n"})

	s, err := New(Options{Root: root})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_InvalidRoot(t *testing.T) {
	_, err := New(Options{Root: filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = New(Options{Root: file})
	assert.Error(t, err)
}

func TestExt(t *testing.T) {
	assert.Equal(t, ".py", Ext("a/b/C.PY"))
	assert.Equal(t, "", Ext("Makefile"))
	assert.Equal(t, ".md", Ext(`docs\readme.md`))
}
