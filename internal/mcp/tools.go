package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/codeindex/internal/index"
	"github.com/Aman-CERP/codeindex/internal/search"
	"github.com/Aman-CERP/codeindex/internal/telemetry"
	"github.com/Aman-CERP/codeindex/internal/ui"
)

// Result limits accepted from clients.
const (
	maxSearchResults = 50
	maxTypeResults   = 200
)

// IndexProjectInput defines the input schema for the index_project tool.
type IndexProjectInput struct {
	Force bool `json:"force,omitempty" jsonschema:"drop the existing index and rebuild it from scratch"`
}

// IndexProjectOutput summarizes one indexing run.
type IndexProjectOutput struct {
	RunID          string   `json:"run_id"`
	IndexedFiles   int      `json:"indexed_files"`
	TotalElements  int      `json:"total_elements"`
	StaleElements  int      `json:"stale_elements"`
	PrunedElements int      `json:"pruned_elements"`
	DurationMS     int64    `json:"duration_ms"`
	Errors         []string `json:"errors,omitempty"`
}

// SemanticSearchInput defines the input schema for the semantic_search tool.
type SemanticSearchInput struct {
	Query    string `json:"query" jsonschema:"natural-language description of the code to find"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 5"`
	FileType string `json:"file_type,omitempty" jsonschema:"restrict to one file extension, e.g. .py or md"`
	Kind     string `json:"kind,omitempty" jsonschema:"restrict to one element type: function, class, import, markdown_section, text_chunk"`
}

// FindFilesInput defines the input schema for the find_files tool.
type FindFilesInput struct {
	Query string `json:"query" jsonschema:"natural-language description of the files to find"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of files, default 5"`
}

// FindElementsInput defines the input schema for the find_elements_by_type tool.
type FindElementsInput struct {
	Kind  string `json:"kind" jsonschema:"element type: function, class, import, markdown_section, text_chunk"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of elements, default 10"`
}

// FileStructureInput defines the input schema for the get_file_structure tool.
type FileStructureInput struct {
	Path string `json:"path" jsonschema:"file path relative to the project root"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Project    ProjectInfo              `json:"project"`
	Index      ui.StatusInfo            `json:"index"`
	Embeddings EmbeddingInfo            `json:"embeddings"`
	Queries    *telemetry.QuerySnapshot `json:"queries,omitempty"`
}

// ProjectInfo contains information about the indexed project.
type ProjectInfo struct {
	Name     string `json:"name"`
	RootPath string `json:"root_path"`
	Type     string `json:"type"`
}

// EmbeddingInfo describes the configured and active embedder.
type EmbeddingInfo struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	Status     string `json:"status"`

	// IsFallbackActive is true when the static hashing embedder is in use.
	IsFallbackActive bool `json:"is_fallback_active"`
}

// textResult wraps formatted text as a tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit > max {
		return max
	}
	return limit
}

// sentinelResult turns the not-indexed and inconsistent-data conditions into
// plain text answers. Any other error is mapped to an MCP error.
func sentinelResult(err error, subject string) (*mcp.CallToolResult, error) {
	if text, ok := search.Sentinel(err, subject); ok {
		return textResult(text), nil
	}
	return nil, MapError(err)
}

func (s *Server) indexProjectHandler(ctx context.Context, _ *mcp.CallToolRequest, input IndexProjectInput) (
	*mcp.CallToolResult,
	*IndexProjectOutput,
	error,
) {
	if s.indexer == nil {
		return nil, nil, &MCPError{Code: ErrCodeInternalError, Message: "indexing is not available on this server"}
	}

	start := time.Now()
	run := s.indexer.Index
	if input.Force {
		run = s.indexer.Rebuild
	}
	report, err := run(ctx, s.root)
	if err != nil {
		s.logger.Warn("mcp_index_failed", slog.String("error", err.Error()))
		return nil, nil, MapError(err)
	}

	out := &IndexProjectOutput{
		RunID:          report.RunID,
		IndexedFiles:   len(report.IndexedFiles),
		TotalElements:  report.TotalElements,
		StaleElements:  report.StaleElements,
		PrunedElements: report.PrunedElements,
		DurationMS:     report.DurationMS,
		Errors:         report.Errors,
	}
	s.logger.Info("mcp_index_complete",
		slog.String("run_id", report.RunID),
		slog.Int("files", out.IndexedFiles),
		slog.Duration("duration", time.Since(start)))
	return textResult(formatIndexReport(report)), out, nil
}

// formatIndexReport lists at most three errors.
func formatIndexReport(r *index.Report) string {
	var sb strings.Builder
	sb.WriteString("Indexing complete!\n")
	fmt.Fprintf(&sb, "Files indexed: %d\n", len(r.IndexedFiles))
	fmt.Fprintf(&sb, "Code elements found: %d\n", r.TotalElements)
	if len(r.Errors) > 0 {
		fmt.Fprintf(&sb, "Errors: %d\n", len(r.Errors))
		for _, e := range ui.ErrorLines(r.Errors, 3) {
			fmt.Fprintf(&sb, "  - %s\n", e)
		}
	}
	sb.WriteString("\nYou can now search the codebase using semantic queries!")
	return sb.String()
}

func (s *Server) semanticSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SemanticSearchInput) (
	*mcp.CallToolResult,
	*search.Results,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, nil, NewInvalidParamsError("query parameter is required")
	}
	limit := clampLimit(input.Limit, s.defaultLimit(), maxSearchResults)
	filter := search.Filter{FileType: input.FileType, Kind: input.Kind}

	results, err := s.searcher.SemanticSearch(ctx, input.Query, limit, filter)
	if err != nil {
		res, err := sentinelResult(err, input.Query)
		return res, &search.Results{Query: input.Query}, err
	}
	return textResult(search.FormatResults(results)), results, nil
}

func (s *Server) findFilesHandler(ctx context.Context, _ *mcp.CallToolRequest, input FindFilesInput) (
	*mcp.CallToolResult,
	*search.FileResults,
	error,
) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, nil, NewInvalidParamsError("query parameter is required")
	}
	limit := clampLimit(input.Limit, s.defaultLimit(), maxSearchResults)

	results, err := s.searcher.FindFilesByContent(ctx, input.Query, limit)
	if err != nil {
		res, err := sentinelResult(err, input.Query)
		return res, &search.FileResults{Query: input.Query}, err
	}
	return textResult(search.FormatFiles(results)), results, nil
}

func (s *Server) findElementsHandler(ctx context.Context, _ *mcp.CallToolRequest, input FindElementsInput) (
	*mcp.CallToolResult,
	*search.ElementList,
	error,
) {
	if strings.TrimSpace(input.Kind) == "" {
		return nil, nil, NewInvalidParamsError("kind parameter is required")
	}
	limit := clampLimit(input.Limit, search.DefaultTypeLimit, maxTypeResults)

	list, err := s.searcher.FindElementsByType(ctx, input.Kind, limit)
	if err != nil {
		res, err := sentinelResult(err, input.Kind)
		return res, &search.ElementList{Kind: input.Kind}, err
	}
	return textResult(search.FormatElements(list)), list, nil
}

func (s *Server) fileStructureHandler(ctx context.Context, _ *mcp.CallToolRequest, input FileStructureInput) (
	*mcp.CallToolResult,
	*search.FileStructure,
	error,
) {
	if !isValidPath(input.Path) {
		return nil, nil, NewInvalidParamsError(fmt.Sprintf("invalid path: %q", input.Path))
	}

	structure, err := s.searcher.GetFileStructure(ctx, input.Path)
	if err != nil {
		res, err := sentinelResult(err, input.Path)
		return res, &search.FileStructure{Path: input.Path}, err
	}
	return textResult(search.FormatStructure(structure)), structure, nil
}

func (s *Server) indexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out, err := s.indexStatus(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, out, nil
}

// indexStatus reports the index and embedder state so clients can decide
// whether to call index_project first.
func (s *Server) indexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	out := &IndexStatusOutput{
		Project: *NewProjectDetector(s.root, s.logger).Detect(),
		Embeddings: EmbeddingInfo{
			Provider: s.config.Embeddings.Provider,
			Model:    s.config.Embeddings.Model,
			Status:   "unavailable",
		},
	}

	if s.store != nil {
		info, err := index.Status(ctx, s.store, s.config, s.root)
		if err != nil {
			return nil, err
		}
		out.Index = *info
	}

	if s.embedder != nil {
		out.Embeddings.Model = s.embedder.ModelName()
		out.Embeddings.Dimensions = s.embedder.Dimensions()
		out.Embeddings.IsFallbackActive = strings.HasPrefix(s.embedder.ModelName(), "static")
		if s.embedder.Available(ctx) {
			out.Embeddings.Status = "ready"
		}
		out.Index.Embedder = s.embedder.ModelName()
	}

	if s.metrics != nil {
		out.Queries = s.metrics.Queries().Snapshot()
	}
	return out, nil
}

func (s *Server) defaultLimit() int {
	if s.config.Search.MaxResults > 0 {
		return s.config.Search.MaxResults
	}
	return search.DefaultLimit
}
