package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/codeindex/internal/config"
	"github.com/Aman-CERP/codeindex/internal/embed"
	"github.com/Aman-CERP/codeindex/internal/index"
	"github.com/Aman-CERP/codeindex/internal/search"
	"github.com/Aman-CERP/codeindex/internal/store"
	"github.com/Aman-CERP/codeindex/internal/telemetry"
	"github.com/Aman-CERP/codeindex/pkg/version"
)

// ServerName is reported to clients during initialization.
const ServerName = "codeindex"

// Searcher answers the read-only tools. *search.Engine implements it.
type Searcher interface {
	SemanticSearch(ctx context.Context, query string, k int, filter search.Filter) (*search.Results, error)
	FindFilesByContent(ctx context.Context, query string, k int) (*search.FileResults, error)
	FindElementsByType(ctx context.Context, kind string, limit int) (*search.ElementList, error)
	GetFileStructure(ctx context.Context, filePath string) (*search.FileStructure, error)
}

// Indexer runs index_project. *index.Builder implements it.
type Indexer interface {
	Index(ctx context.Context, root string) (*index.Report, error)
	Rebuild(ctx context.Context, root string) (*index.Report, error)
}

// Options are the optional collaborators of a Server.
type Options struct {
	// Root is the project directory; it defaults to the working directory.
	Root string

	// Config defaults to config.NewConfig().
	Config *config.Config

	// Indexer enables index_project when set.
	Indexer Indexer

	// Store and Embedder feed index_status.
	Store    store.VectorStore
	Embedder embed.Embedder

	// Metrics enables the query_metrics resource.
	Metrics *telemetry.Metrics

	Logger *slog.Logger
}

// Server bridges MCP clients with the search engine.
type Server struct {
	mcp      *mcp.Server
	searcher Searcher
	indexer  Indexer
	store    store.VectorStore
	embedder embed.Embedder
	metrics  *telemetry.Metrics
	config   *config.Config
	logger   *slog.Logger
	root     string
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "index_project",
		Description: "Index the project so it can be searched. Run this first, and again after large changes. Set force to rebuild from scratch.",
	},
	{
		Name:        "semantic_search",
		Description: "Find functions, classes, imports, markdown sections and text chunks by meaning. Optionally filter by file type or element type.",
	},
	{
		Name:        "find_files",
		Description: "Find whole files whose content matches a description. Returns per-file summaries with the element types each file contains.",
	},
	{
		Name:        "find_elements_by_type",
		Description: "List indexed elements of one type, e.g. every class or every function.",
	},
	{
		Name:        "get_file_structure",
		Description: "Show the outline of one indexed file: its elements grouped by type, in source order, with line ranges.",
	},
	{
		Name:        "index_status",
		Description: "Check whether the project is indexed, how many elements and files it holds, and which embedder is active.",
	},
}

// NewServer creates an MCP server over searcher.
func NewServer(searcher Searcher, opts Options) (*Server, error) {
	if searcher == nil {
		return nil, errors.New("searcher is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	root := opts.Root
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}

	s := &Server{
		searcher: searcher,
		indexer:  opts.Indexer,
		store:    opts.Store,
		embedder: opts.Embedder,
		metrics:  opts.Metrics,
		config:   cfg,
		logger:   logger,
		root:     absRoot,
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version.Version}, nil)
	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	if s.indexer != nil {
		return append([]ToolInfo(nil), tools...)
	}
	out := make([]ToolInfo, 0, len(tools)-1)
	for _, t := range tools {
		if t.Name != "index_project" {
			out = append(out, t)
		}
	}
	return out
}

func (s *Server) registerTools() {
	for _, t := range s.ListTools() {
		tool := &mcp.Tool{Name: t.Name, Description: t.Description}
		switch t.Name {
		case "index_project":
			mcp.AddTool(s.mcp, tool, s.indexProjectHandler)
		case "semantic_search":
			mcp.AddTool(s.mcp, tool, s.semanticSearchHandler)
		case "find_files":
			mcp.AddTool(s.mcp, tool, s.findFilesHandler)
		case "find_elements_by_type":
			mcp.AddTool(s.mcp, tool, s.findElementsHandler)
		case "get_file_structure":
			mcp.AddTool(s.mcp, tool, s.fileStructureHandler)
		case "index_status":
			mcp.AddTool(s.mcp, tool, s.indexStatusHandler)
		}
		s.logger.Debug("mcp_tool_registered", slog.String("name", t.Name))
	}
}

// Serve runs the server on stdin/stdout until ctx is cancelled or the client
// disconnects.
func (s *Server) Serve(ctx context.Context) error {
	return s.ServeTransport(ctx, &mcp.StdioTransport{})
}

// ServeTransport runs the server on an arbitrary transport.
func (s *Server) ServeTransport(ctx context.Context, t mcp.Transport) error {
	s.logger.Info("mcp_server_started", slog.String("root", s.root), slog.Int("tools", len(s.ListTools())))
	err := s.mcp.Run(ctx, t)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp_server_stopped")
	return nil
}
