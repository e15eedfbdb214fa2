package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cierrors "github.com/Aman-CERP/codeindex/internal/errors"
	"github.com/Aman-CERP/codeindex/internal/index"
	"github.com/Aman-CERP/codeindex/internal/search"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not indexed", fmt.Errorf("query: %w", search.ErrNotIndexed), ErrCodeIndexNotFound},
		{"inconsistent", search.ErrInconsistentResults, ErrCodeInternalError},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeTimeout},
		{"embedding", cierrors.New(cierrors.ErrCodeEmbeddingFailed, "ollama down", nil), ErrCodeEmbeddingFailed},
		{"locked", cierrors.New(cierrors.ErrCodeIndexLocked, "busy", nil), ErrCodeIndexBusy},
		{"validation", cierrors.New(cierrors.ErrCodeQueryEmpty, "empty", nil), ErrCodeInvalidParams},
		{"network", cierrors.New(cierrors.ErrCodeNetworkTimeout, "slow", nil), ErrCodeTimeout},
		{"store", cierrors.New(cierrors.ErrCodeStoreWriteFailed, "disk full", nil), ErrCodeInternalError},
		{"unknown", errors.New("boom"), ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, MapError(tt.err).Code)
		})
	}
	assert.Nil(t, MapError(nil))

	passthrough := NewInvalidParamsError("bad")
	assert.Same(t, passthrough, MapError(fmt.Errorf("wrap: %w", passthrough)))
}

func TestMapError_IncludesSuggestion(t *testing.T) {
	err := cierrors.New(cierrors.ErrCodeDimensionMismatch, "index uses 768 dimensions", nil).
		WithSuggestion("Run 'codeindex index --force'.")
	assert.Equal(t, "index uses 768 dimensions Run 'codeindex index --force'.", MapError(err).Message)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 5, clampLimit(0, 5, 50))
	assert.Equal(t, 5, clampLimit(-1, 5, 50))
	assert.Equal(t, 7, clampLimit(7, 5, 50))
	assert.Equal(t, 50, clampLimit(500, 5, 50))
}

func TestIsValidPath(t *testing.T) {
	for _, p := range []string{"a.py", "src/lib/b.ts", "./c.md", "dir/../d.go"} {
		assert.True(t, isValidPath(p), p)
	}
	for _, p := range []string{"", "/abs.py", "../up.py", "a/../../up.py", "C:\\win.py"} {
		assert.False(t, isValidPath(p), p)
	}
}

func TestMimeTypeForPath(t *testing.T) {
	tests := map[string]string{
		"main.go":        "text/x-go",
		"app.py":         "text/x-python",
		"ui/View.TSX":    "text/typescript",
		"README.md":      "text/markdown",
		"conf.yml":       "application/yaml",
		"notes.txt":      "text/plain",
		"Makefile":       "text/plain",
		"data.unknown":   "text/plain",
		"pyproject.toml": "application/toml",
	}
	for path, want := range tests {
		assert.Equal(t, want, MimeTypeForPath(path), path)
	}
}

func TestProjectDetector(t *testing.T) {
	tests := []struct {
		name, file, content string
		wantName, wantType  string
	}{
		{"go", "go.mod", "module github.com/acme/widget\n\ngo 1.22\n", "widget", "go"},
		{"node scoped", "package.json", `{"name": "@acme/web", "version": "1.0.0"}`, "web", "node"},
		{"python", "pyproject.toml", "[project]\nname = \"acme-py\"\nversion = \"0.1\"\n", "acme-py", "python"},
		{"poetry", "pyproject.toml", "[tool.poetry]\nname = \"poet\"\n", "poet", "python"},
		{"rust", "Cargo.toml", "[package]\nname = \"crab\"\nversion = \"0.1.0\"\n", "crab", "rust"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, tt.file), []byte(tt.content), 0o644))

			info := NewProjectDetector(dir, nil).Detect()
			assert.Equal(t, tt.wantName, info.Name)
			assert.Equal(t, tt.wantType, info.Type)
			assert.Equal(t, dir, info.RootPath)
		})
	}
}

func TestProjectDetector_Fallback(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plain-dir")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"), []byte("not [valid toml"), 0o644))

	info := NewProjectDetector(dir, nil).Detect()
	assert.Equal(t, "plain-dir", info.Name)
	assert.Equal(t, "unknown", info.Type)
}

func TestFormatIndexReport_ListsThreeErrors(t *testing.T) {
	r := &index.Report{
		IndexedFiles:  []string{"a.py", "b.py"},
		TotalElements: 9,
		Errors:        []string{"e1", "e2", "e3", "e4", "e5"},
	}
	want := "Indexing complete!\n" +
		"Files indexed: 2\n" +
		"Code elements found: 9\n" +
		"Errors: 5\n" +
		"  - e1\n  - e2\n  - e3\n  - ... and 2 more\n" +
		"\nYou can now search the codebase using semantic queries!"
	assert.Equal(t, want, formatIndexReport(r))
}
