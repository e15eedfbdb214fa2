package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codeindex/internal/config"
	"github.com/Aman-CERP/codeindex/internal/embed"
	cierrors "github.com/Aman-CERP/codeindex/internal/errors"
	"github.com/Aman-CERP/codeindex/internal/index"
	"github.com/Aman-CERP/codeindex/internal/search"
	"github.com/Aman-CERP/codeindex/internal/store"
	"github.com/Aman-CERP/codeindex/internal/telemetry"
)

var projectFiles = map[string]string{
	"app.py": "import os\n\n" +
		"class Greeter:\n" +
		"    \"\"\"Says hello.\"\"\"\n" +
		"    def greet(self):\n" +
		"        return 'hi'\n\n" +
		"def main():\n" +
		"    return Greeter().greet()\n",
	"README.md": "# Demo\n\nA tiny project.\n\n## Usage\n\nRun app.py.\n",
}

type fixture struct {
	root    string
	server  *Server
	builder *index.Builder
	metrics *telemetry.Metrics
}

func newFixture(t *testing.T, indexed bool) *fixture {
	t.Helper()
	root := t.TempDir()
	for rel, content := range projectFiles {
		require.NoError(t, os.WriteFile(filepath.Join(root, rel), []byte(content), 0o644))
	}

	st, err := store.NewSQLiteStore("", store.SQLiteOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.NewConfig()
	emb := embed.NewStaticEmbedder(0)
	metrics := telemetry.NewMetrics()

	b, err := index.NewBuilder(index.Dependencies{Store: st, Embedder: emb, Config: cfg, Metrics: metrics})
	require.NoError(t, err)
	if indexed {
		_, err = b.Index(context.Background(), root)
		require.NoError(t, err)
	}

	engine, err := search.New(st, emb, search.WithMetrics(metrics))
	require.NoError(t, err)

	s, err := NewServer(engine, Options{
		Root:     root,
		Config:   cfg,
		Indexer:  b,
		Store:    st,
		Embedder: emb,
		Metrics:  metrics,
	})
	require.NoError(t, err)
	return &fixture{root: root, server: s, builder: b, metrics: metrics}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return text.Text
}

func TestNewServer_RequiresSearcher(t *testing.T) {
	_, err := NewServer(nil, Options{})
	require.Error(t, err)
}

func TestServer_ListTools(t *testing.T) {
	f := newFixture(t, false)
	names := []string{}
	for _, tool := range f.server.ListTools() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{
		"index_project", "semantic_search", "find_files",
		"find_elements_by_type", "get_file_structure", "index_status",
	}, names)

	// Without an indexer the server is read-only.
	s, err := NewServer(f.server.searcher, Options{Root: f.root})
	require.NoError(t, err)
	assert.Len(t, s.ListTools(), 5)

	name, ver := s.Info()
	assert.Equal(t, "codeindex", name)
	assert.NotEmpty(t, ver)
}

func TestServer_NotIndexedSentinel(t *testing.T) {
	// Given: a project that was never indexed
	f := newFixture(t, false)
	ctx := context.Background()

	// When: each read tool is called
	res, _, err := f.server.semanticSearchHandler(ctx, nil, SemanticSearchInput{Query: "greet"})
	require.NoError(t, err)
	assert.Equal(t, search.NotIndexedMessage, resultText(t, res))

	res, _, err = f.server.findFilesHandler(ctx, nil, FindFilesInput{Query: "greet"})
	require.NoError(t, err)
	assert.Equal(t, search.NotIndexedMessage, resultText(t, res))

	res, _, err = f.server.findElementsHandler(ctx, nil, FindElementsInput{Kind: "class"})
	require.NoError(t, err)
	assert.Equal(t, search.NotIndexedMessage, resultText(t, res))

	res, _, err = f.server.fileStructureHandler(ctx, nil, FileStructureInput{Path: "app.py"})
	require.NoError(t, err)
	assert.Equal(t, search.NotIndexedMessage, resultText(t, res))
}

func TestServer_IndexProjectThenSearch(t *testing.T) {
	// Given: an unindexed project
	f := newFixture(t, false)
	ctx := context.Background()

	// When: index_project runs
	res, out, err := f.server.indexProjectHandler(ctx, nil, IndexProjectInput{})
	require.NoError(t, err)

	// Then: the report is returned as text and structured output
	text := resultText(t, res)
	assert.True(t, strings.HasPrefix(text, "Indexing complete!\nFiles indexed: 2\n"), text)
	assert.Contains(t, text, "You can now search the codebase using semantic queries!")
	assert.Equal(t, 2, out.IndexedFiles)
	assert.NotEmpty(t, out.RunID)

	// And: searches now return results
	res, results, err := f.server.semanticSearchHandler(ctx, nil, SemanticSearchInput{Query: "Greeter", Limit: 3})
	require.NoError(t, err)
	assert.NotEmpty(t, results.Items)
	assert.LessOrEqual(t, len(results.Items), 3)
	assert.Contains(t, resultText(t, res), "Result 1 (similarity: ")

	// Rebuild keeps the same contents.
	_, again, err := f.server.indexProjectHandler(ctx, nil, IndexProjectInput{Force: true})
	require.NoError(t, err)
	assert.Equal(t, out.TotalElements, again.TotalElements)
	assert.NotEqual(t, out.RunID, again.RunID)
}

func TestServer_ReadTools(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	t.Run("semantic search with filters", func(t *testing.T) {
		_, results, err := f.server.semanticSearchHandler(ctx, nil,
			SemanticSearchInput{Query: "usage", FileType: "md", Kind: "markdown_section"})
		require.NoError(t, err)
		require.NotEmpty(t, results.Items)
		for _, item := range results.Items {
			assert.Equal(t, "README.md", item.FilePath)
			assert.Equal(t, "markdown_section", item.Kind)
		}
	})

	t.Run("find files", func(t *testing.T) {
		res, files, err := f.server.findFilesHandler(ctx, nil, FindFilesInput{Query: "greeter class", Limit: 1})
		require.NoError(t, err)
		assert.Len(t, files.Items, 1)
		assert.Contains(t, resultText(t, res), "File 1 (similarity: ")
	})

	t.Run("elements by type", func(t *testing.T) {
		res, list, err := f.server.findElementsHandler(ctx, nil, FindElementsInput{Kind: "class"})
		require.NoError(t, err)
		require.Len(t, list.Items, 1)
		assert.Equal(t, "Greeter", list.Items[0].Name)
		assert.Contains(t, resultText(t, res), "Class 1:")
	})

	t.Run("file structure", func(t *testing.T) {
		res, structure, err := f.server.fileStructureHandler(ctx, nil, FileStructureInput{Path: "app.py"})
		require.NoError(t, err)
		assert.True(t, structure.Found())
		text := resultText(t, res)
		assert.True(t, strings.HasPrefix(text, "File: app.py\n"), text)
		assert.Contains(t, text, "CLASSES:\n  - Greeter (lines 3-6)\n")
	})
}

func TestServer_InvalidParams(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	_, _, err := f.server.semanticSearchHandler(ctx, nil, SemanticSearchInput{Query: "  "})
	assertMCPCode(t, err, ErrCodeInvalidParams)

	_, _, err = f.server.findFilesHandler(ctx, nil, FindFilesInput{})
	assertMCPCode(t, err, ErrCodeInvalidParams)

	_, _, err = f.server.findElementsHandler(ctx, nil, FindElementsInput{})
	assertMCPCode(t, err, ErrCodeInvalidParams)

	for _, p := range []string{"", "/etc/passwd", "../secret.py", "a/../../b.py"} {
		_, _, err = f.server.fileStructureHandler(ctx, nil, FileStructureInput{Path: p})
		assertMCPCode(t, err, ErrCodeInvalidParams)
	}
}

func TestServer_IndexLocked(t *testing.T) {
	f := newFixture(t, false)
	s, err := NewServer(f.server.searcher, Options{
		Root:    f.root,
		Indexer: lockedIndexer{},
	})
	require.NoError(t, err)

	_, _, err = s.indexProjectHandler(context.Background(), nil, IndexProjectInput{})
	assertMCPCode(t, err, ErrCodeIndexBusy)
}

type lockedIndexer struct{}

func (lockedIndexer) Index(context.Context, string) (*index.Report, error) {
	return nil, cierrors.New(cierrors.ErrCodeIndexLocked, "held", nil)
}
func (l lockedIndexer) Rebuild(ctx context.Context, root string) (*index.Report, error) {
	return l.Index(ctx, root)
}

func TestServer_IndexStatus(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, os.WriteFile(filepath.Join(f.root, "go.mod"), []byte("module example.com/demo\n"), 0o644))
	ctx := context.Background()
	_, _, err := f.server.semanticSearchHandler(ctx, nil, SemanticSearchInput{Query: "main"})
	require.NoError(t, err)

	_, out, err := f.server.indexStatusHandler(ctx, nil, IndexStatusInput{})
	require.NoError(t, err)

	assert.Equal(t, "demo", out.Project.Name)
	assert.Equal(t, "go", out.Project.Type)
	assert.True(t, out.Index.Indexed)
	assert.Equal(t, 2, out.Index.Summaries)
	assert.Positive(t, out.Index.Elements)
	require.NotNil(t, out.Index.LastRun)
	assert.Equal(t, "ready", out.Embeddings.Status)
	assert.True(t, out.Embeddings.IsFallbackActive)
	assert.Equal(t, embed.StaticDimensions, out.Embeddings.Dimensions)
	require.NotNil(t, out.Queries)
	assert.Equal(t, int64(1), out.Queries.TotalQueries)
}

func TestServer_OverStdioProtocol(t *testing.T) {
	// Given: a server connected to an in-memory client
	f := newFixture(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clientT, serverT := mcp.NewInMemoryTransports()
	done := make(chan error, 1)
	go func() { done <- f.server.ServeTransport(ctx, serverT) }()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	defer func() { _ = session.Close() }()

	// When: the client lists and calls tools
	tools, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, tools.Tools, 6)

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "find_elements_by_type",
		Arguments: map[string]any{"kind": "function"},
	})
	require.NoError(t, err)

	// Then: the formatted text comes back with structured output
	assert.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Function 1:")
	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"kind":"function"`)

	// And: the report resource is readable
	rr, err := session.ReadResource(ctx, &mcp.ReadResourceParams{URI: ReportURI})
	require.NoError(t, err)
	require.Len(t, rr.Contents, 1)
	assert.Contains(t, rr.Contents[0].Text, `"run_id"`)
}

func assertMCPCode(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "got %T: %v", err, err)
	assert.Equal(t, code, mcpErr.Code)
}
