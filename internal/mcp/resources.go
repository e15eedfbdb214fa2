package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/codeindex/internal/index"
	"github.com/Aman-CERP/codeindex/internal/store"
	"github.com/Aman-CERP/codeindex/internal/summary"
	"github.com/Aman-CERP/codeindex/internal/telemetry"
)

// MaxResourceSize is the maximum file size served as a resource (1MB).
const MaxResourceSize = 1024 * 1024

// Fixed resource URIs.
const (
	QueryMetricsURI = "codeindex://query_metrics"
	ReportURI       = "codeindex://report"
)

// registerResources adds the resources that need no store access.
func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        "indexing_report",
		URI:         ReportURI,
		Description: "Report of the last full indexing run",
		MIMEType:    "application/json",
	}, s.handleReport)

	if s.metrics != nil {
		s.mcp.AddResource(&mcp.Resource{
			Name:        "query_metrics",
			URI:         QueryMetricsURI,
			Description: "Query pattern telemetry for this server session",
			MIMEType:    "application/json",
		}, s.handleQueryMetrics)
	}
}

// RegisterFileResources exposes every indexed file as a file:// resource.
// It returns the number registered; a project that was never indexed has none.
func (s *Server) RegisterFileResources(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	res, err := s.store.Get(ctx, store.CollectionSummaries, nil, 0)
	if errors.Is(err, store.ErrCollectionNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("list indexed files: %w", err)
	}
	matches, err := res.Matches()
	if err != nil {
		return 0, fmt.Errorf("list indexed files: %w", err)
	}

	n := 0
	for _, m := range matches {
		fs, ok := summary.FromMetadata(m.Metadata)
		if !ok {
			continue
		}
		s.registerFileResource(fs)
		n++
	}
	s.logger.Info("mcp_resources_registered", "count", n)
	return n, nil
}

func (s *Server) registerFileResource(fs summary.FileSummary) {
	path := fs.FilePath
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        filepath.Base(path),
			URI:         "file://" + path,
			Description: fmt.Sprintf("%s (%d lines, %d elements)", path, fs.LineCount, fs.ElementCount),
			MIMEType:    MimeTypeForPath(path),
		},
		func(context.Context, *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.readFile(path)
		},
	)
}

// readFile serves a root-relative file after path and size checks.
func (s *Server) readFile(rel string) (*mcp.ReadResourceResult, error) {
	if !isValidPath(rel) {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid path: %s", rel))
	}
	full := filepath.Join(s.root, filepath.FromSlash(rel))

	info, err := os.Stat(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, NewResourceNotFoundError("file://" + rel)
	}
	if err != nil {
		return nil, MapError(err)
	}
	if info.Size() > MaxResourceSize {
		return nil, NewInvalidParamsError(fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), MaxResourceSize))
	}

	content, err := os.ReadFile(full)
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      "file://" + rel,
			MIMEType: MimeTypeForPath(rel),
			Text:     string(content),
		}},
	}, nil
}

func (s *Server) handleReport(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	report, err := index.ReadReport(s.config.IndexPath(s.root))
	if errors.Is(err, os.ErrNotExist) {
		return nil, NewResourceNotFoundError(ReportURI)
	}
	if err != nil {
		return nil, MapError(err)
	}
	return jsonResource(ReportURI, report)
}

func (s *Server) handleQueryMetrics(_ context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	snapshot := s.metrics.Queries().Snapshot()
	return jsonResource(QueryMetricsURI, struct {
		ZeroResultPct float64 `json:"zero_result_pct"`
		*telemetry.QuerySnapshot
	}{snapshot.ZeroResultPercentage(), snapshot})
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(content),
		}},
	}, nil
}

// isValidPath rejects empty, absolute and parent-escaping paths.
func isValidPath(path string) bool {
	if path == "" || filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return false
	}
	// Windows drive letters.
	if len(path) >= 2 && path[1] == ':' {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(filepath.Clean(path)), "/") {
		if part == ".." {
			return false
		}
	}
	return true
}
