package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codeindex/internal/config"
	"github.com/Aman-CERP/codeindex/internal/index"
	"github.com/Aman-CERP/codeindex/internal/search"
	"github.com/Aman-CERP/codeindex/internal/ui"
	"github.com/Aman-CERP/codeindex/pkg/version"
)

var sampleProject = map[string]string{
	"app.py": "import os\n\n" +
		"class Greeter:\n" +
		"    \"\"\"Says hello.\"\"\"\n" +
		"    def greet(self):\n" +
		"        return 'hi'\n\n" +
		"def main():\n" +
		"    return Greeter().greet()\n",
	"README.md": "# Demo\n\nA tiny project.\n\n## Usage\n\nRun app.py.\n",
}

// isolate points HOME and the user config at temp dirs so commands never
// touch the real log file or config.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")
	t.Setenv("CI", "1")
}

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range sampleProject {
		require.NoError(t, os.WriteFile(filepath.Join(dir, rel), []byte(content), 0o644))
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	// Given: the root command
	cmd := NewRootCmd()

	// Then: every subcommand is registered
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{
		"index", "search", "files", "types", "structure", "status",
		"watch", "serve", "init", "version", "logs",
	} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("debug"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestIndexThenQuery(t *testing.T) {
	isolate(t)
	dir := writeProject(t)

	// When: indexing the project
	out, err := execute(t, "index", dir, "--no-tui")

	// Then: the summary counts both files and the index directory exists
	require.NoError(t, err, out)
	assert.Contains(t, out, "Complete: 2 files")
	assert.DirExists(t, filepath.Join(dir, config.DefaultIndexDir))

	t.Run("search", func(t *testing.T) {
		out, err := execute(t, "search", "say", "hello", "-p", dir, "-n", "2")
		require.NoError(t, err)
		assert.Contains(t, out, "Result 1 (similarity:")
		assert.NotContains(t, out, "Result 3")
	})

	t.Run("search filtered json", func(t *testing.T) {
		out, err := execute(t, "search", "usage", "-p", dir, "--file-type", "md", "--json")
		require.NoError(t, err)

		var res search.Results
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		require.NotEmpty(t, res.Items)
		for _, item := range res.Items {
			assert.Equal(t, "README.md", item.FilePath)
		}
	})

	t.Run("files", func(t *testing.T) {
		out, err := execute(t, "files", "greeter", "-p", dir, "-n", "1")
		require.NoError(t, err)
		assert.Contains(t, out, "File 1 (similarity:")
		assert.NotContains(t, out, "File 2")
	})

	t.Run("types", func(t *testing.T) {
		out, err := execute(t, "types", "class", "-p", dir)
		require.NoError(t, err)
		assert.Contains(t, out, "Class 1:\n  Name: Greeter\n  File: app.py\n  Lines: 3-6\n")
	})

	t.Run("structure", func(t *testing.T) {
		out, err := execute(t, "structure", filepath.Join(dir, "app.py"), "-p", dir)
		require.NoError(t, err)
		assert.Contains(t, out, "File: app.py\n")
		assert.Contains(t, out, "CLASSES:\n  - Greeter (lines 3-6)\n")
	})

	t.Run("status json", func(t *testing.T) {
		out, err := execute(t, "status", "-p", dir, "--json")
		require.NoError(t, err)

		var info ui.StatusInfo
		require.NoError(t, json.Unmarshal([]byte(out), &info))
		assert.True(t, info.Indexed)
		assert.Equal(t, 2, info.Summaries)
		assert.Positive(t, info.Elements)
		assert.Equal(t, "static-256", info.Embedder)
		require.NotNil(t, info.LastRun)
		assert.Equal(t, 2, info.LastRun.IndexedFiles)
	})
}

func TestIndex_ForceRebuilds(t *testing.T) {
	isolate(t)
	dir := writeProject(t)
	_, err := execute(t, "index", dir, "--no-tui")
	require.NoError(t, err)

	// When: forcing a rebuild
	out, err := execute(t, "index", dir, "--no-tui", "--force")

	// Then: the index is dropped first and rebuilt with the same files
	require.NoError(t, err, out)
	assert.Contains(t, out, "Dropping existing index")
	assert.Contains(t, out, "Complete: 2 files")
}

func TestIndex_MissingDirectory(t *testing.T) {
	isolate(t)

	_, err := execute(t, "index", filepath.Join(t.TempDir(), "missing"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ERR_201")
}

func TestQuery_NotIndexed(t *testing.T) {
	isolate(t)
	dir := writeProject(t)

	// When: searching a project that was never indexed
	out, err := execute(t, "search", "anything", "-p", dir)

	// Then: the sentinel is printed and no index directory is created
	require.NoError(t, err)
	assert.Equal(t, search.NotIndexedMessage+"\n", out)
	assert.NoDirExists(t, filepath.Join(dir, config.DefaultIndexDir))

	// And: JSON output reports it as a failure
	_, err = execute(t, "types", "function", "-p", dir, "--json")
	require.Error(t, err)
	assert.ErrorIs(t, err, search.ErrNotIndexed)
}

func TestStatus_NotIndexed(t *testing.T) {
	isolate(t)
	dir := writeProject(t)

	out, err := execute(t, "status", "-p", dir)

	require.NoError(t, err)
	assert.Contains(t, out, "not indexed")
}

func TestInit(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	target := filepath.Join(dir, config.ProjectConfigFile)

	// When: initializing a project
	out, err := execute(t, "init", dir)

	// Then: the template is written and loads cleanly
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+target)
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, config.NewConfig(), cfg)

	// And: a second init refuses to overwrite
	_, err = execute(t, "init", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// And: --force backs the old file up first
	require.NoError(t, os.WriteFile(target, []byte("version: 1\n"), 0o644))
	out, err = execute(t, "init", dir, "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Backed up .codeindex.yaml")

	backups, err := config.ListBackups(target)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	data, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.Equal(t, "version: 1\n", string(data))
}

func TestInit_ExplicitConfigPath(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	target := filepath.Join(dir, "custom.yaml")

	_, err := execute(t, "init", dir, "--config", target)

	require.NoError(t, err)
	assert.FileExists(t, target)
	assert.NoFileExists(t, filepath.Join(dir, config.ProjectConfigFile))
}

func TestVersionCmd(t *testing.T) {
	isolate(t)

	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Version+"\n", out)

	out, err = execute(t, "version", "--json")
	require.NoError(t, err)
	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
}

func TestLogsCmd_FiltersByLevel(t *testing.T) {
	isolate(t)
	logFile := filepath.Join(t.TempDir(), "codeindex.log")
	lines := []string{
		`{"time":"2026-01-02T15:04:05.000Z","level":"INFO","msg":"index_started","root":"/p"}`,
		`{"time":"2026-01-02T15:04:06.000Z","level":"ERROR","msg":"index_failed","error":"disk full"}`,
	}
	require.NoError(t, os.WriteFile(logFile, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	out, err := execute(t, "logs", "--file", logFile, "--level", "error", "--no-color")

	require.NoError(t, err)
	assert.Contains(t, out, "ERROR index_failed error=disk full")
	assert.NotContains(t, out, "index_started")
}

func TestLogsCmd_InvalidPattern(t *testing.T) {
	isolate(t)
	logFile := filepath.Join(t.TempDir(), "codeindex.log")
	require.NoError(t, os.WriteFile(logFile, nil, 0o644))

	_, err := execute(t, "logs", "--file", logFile, "--grep", "(")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --grep pattern")
}

func TestRelToRoot(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "work", "proj")
	assert.Equal(t, "pkg/a.py", relToRoot(root, filepath.Join(root, "pkg", "a.py")))
	assert.Equal(t, "pkg/a.py", relToRoot(root, "pkg/a.py"))

	outside := filepath.Join(string(filepath.Separator), "elsewhere", "b.py")
	assert.Equal(t, outside, relToRoot(root, outside))
}

func TestFormatUpdate(t *testing.T) {
	assert.Equal(t, "Updated: 2 files re-indexed, 1 removed, 7 elements, 1 errors",
		formatUpdate(&index.UpdateResult{
			Indexed:  []string{"a.py", "b.py"},
			Removed:  []string{"c.py"},
			Elements: 7,
			Errors:   []string{"b.py: boom"},
		}))
}

func TestProfileFlags(t *testing.T) {
	isolate(t)
	cpu := filepath.Join(t.TempDir(), "cpu.out")
	heap := filepath.Join(t.TempDir(), "heap.out")

	_, err := execute(t, "version", "--short", "--profile-cpu", cpu, "--profile-mem", heap)

	require.NoError(t, err)
	assert.FileExists(t, cpu)
	assert.FileExists(t, heap)
}
