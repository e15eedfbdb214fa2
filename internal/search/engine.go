package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/Aman-CERP/codeindex/internal/chunk"
	"github.com/Aman-CERP/codeindex/internal/embed"
	cierrors "github.com/Aman-CERP/codeindex/internal/errors"
	"github.com/Aman-CERP/codeindex/internal/store"
	"github.com/Aman-CERP/codeindex/internal/summary"
	"github.com/Aman-CERP/codeindex/internal/telemetry"
)

// Engine runs read-only queries against the elements and summaries collections.
// It is safe for concurrent use.
type Engine struct {
	store    store.VectorStore
	embedder embed.Embedder
	scorer   Scorer
	metrics  *telemetry.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics records every query in m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithMaxDistance sets the distance that maps to similarity 0 for bounded metrics.
func WithMaxDistance(d float64) Option {
	return func(e *Engine) {
		e.scorer = NewScorer(e.store.Metric(), d)
	}
}

// New creates an engine over st, embedding queries with embedder.
func New(st store.VectorStore, embedder embed.Embedder, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("%w: vector store is required", ErrNilDependency)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrNilDependency)
	}
	e := &Engine{
		store:    st,
		embedder: embedder,
		scorer:   NewScorer(st.Metric(), 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// SemanticSearch returns up to k elements nearest to query, most similar first.
// Rows with malformed metadata are skipped and counted.
func (e *Engine) SemanticSearch(ctx context.Context, query string, k int, filter Filter) (*Results, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, emptyQuery()
	}
	if k <= 0 {
		k = DefaultLimit
	}

	matches, err := e.nearest(ctx, store.CollectionElements, query, k, filter.where())
	if err != nil {
		return nil, err
	}

	res := &Results{Query: query, Items: []Result{}}
	for _, m := range matches {
		el, ok := chunk.ElementFromMetadata(m.Metadata)
		if !ok {
			res.Skipped++
			slog.Debug("search_skip_malformed", slog.String("id", m.ID))
			continue
		}
		res.Items = append(res.Items, Result{
			Element:    elementFrom(m.ID, el),
			Distance:   m.Distance,
			Similarity: e.scorer.Similarity(m.Distance),
		})
	}

	e.record("semantic", query, len(res.Items), res.Skipped, start)
	return res, nil
}

// FindFilesByContent returns up to k file summaries nearest to query.
func (e *Engine) FindFilesByContent(ctx context.Context, query string, k int) (*FileResults, error) {
	start := time.Now()
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, emptyQuery()
	}
	if k <= 0 {
		k = DefaultLimit
	}

	matches, err := e.nearest(ctx, store.CollectionSummaries, query, k, nil)
	if err != nil {
		return nil, err
	}

	res := &FileResults{Query: query, Items: []FileResult{}}
	for _, m := range matches {
		fs, ok := summary.FromMetadata(m.Metadata)
		if !ok {
			res.Skipped++
			continue
		}
		res.Items = append(res.Items, FileResult{
			FileSummary: fs,
			Distance:    m.Distance,
			Similarity:  e.scorer.Similarity(m.Distance),
		})
	}

	e.record("files", query, len(res.Items), res.Skipped, start)
	return res, nil
}

// FindElementsByType returns up to limit elements of kind, unranked.
func (e *Engine) FindElementsByType(ctx context.Context, kind string, limit int) (*ElementList, error) {
	start := time.Now()
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return nil, cierrors.New(cierrors.ErrCodeInvalidInput, "element kind is required", nil).
			WithSuggestion("Use one of: function, class, import, markdown_section, text_chunk")
	}
	if limit <= 0 {
		limit = DefaultTypeLimit
	}

	matches, err := e.get(ctx, store.CollectionElements, store.Where{chunk.MetaKind: kind}, limit)
	if err != nil {
		return nil, err
	}

	res := &ElementList{Kind: kind, Items: []Element{}}
	for _, m := range matches {
		el, ok := chunk.ElementFromMetadata(m.Metadata)
		if !ok {
			res.Skipped++
			continue
		}
		res.Items = append(res.Items, elementFrom(m.ID, el))
	}

	e.record("types", kind, len(res.Items), res.Skipped, start)
	return res, nil
}

// GetFileStructure returns every element of filePath grouped by kind, plus the
// file summary when one is stored.
func (e *Engine) GetFileStructure(ctx context.Context, filePath string) (*FileStructure, error) {
	start := time.Now()
	filePath = normalizePath(filePath)
	if filePath == "" {
		return nil, cierrors.New(cierrors.ErrCodeInvalidPath, "file path is required", nil)
	}

	matches, err := e.get(ctx, store.CollectionElements, store.Where{chunk.MetaFilePath: filePath}, 0)
	if err != nil {
		return nil, err
	}

	res := &FileStructure{Path: filePath, Groups: []Group{}}
	elements := make([]Element, 0, len(matches))
	for _, m := range matches {
		el, ok := chunk.ElementFromMetadata(m.Metadata)
		if !ok {
			res.Skipped++
			continue
		}
		elements = append(elements, elementFrom(m.ID, el))
	}
	sort.SliceStable(elements, func(i, j int) bool {
		if elements[i].StartLine != elements[j].StartLine {
			return elements[i].StartLine < elements[j].StartLine
		}
		return elements[i].EndLine > elements[j].EndLine
	})

	index := make(map[string]int)
	for _, el := range elements {
		i, ok := index[el.Kind]
		if !ok {
			i = len(res.Groups)
			index[el.Kind] = i
			res.Groups = append(res.Groups, Group{Kind: el.Kind})
		}
		res.Groups[i].Elements = append(res.Groups[i].Elements, el)
	}

	summaries, err := e.get(ctx, store.CollectionSummaries, store.Where{summary.MetaFilePath: filePath}, 1)
	switch {
	case errors.Is(err, ErrNotIndexed):
	case err != nil:
		return nil, err
	case len(summaries) > 0:
		if fs, ok := summary.FromMetadata(summaries[0].Metadata); ok {
			res.Summary = &fs
		}
	}

	e.record("structure", filePath, len(elements), res.Skipped, start)
	return res, nil
}

// nearest embeds query and runs a ranked lookup.
func (e *Engine) nearest(ctx context.Context, collection, query string, k int, where store.Where) ([]store.Match, error) {
	// An unindexed project must not reach the embedder.
	if _, err := e.store.Count(ctx, collection); err != nil {
		return nil, storeError(err, collection)
	}

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, cierrors.Wrapf(cierrors.ErrCodeEmbeddingFailed, err, "embed query")
	}

	res, err := e.store.Query(ctx, collection, vector, k, where)
	if err != nil {
		return nil, storeError(err, collection)
	}
	return res.Matches()
}

func (e *Engine) get(ctx context.Context, collection string, where store.Where, limit int) ([]store.Match, error) {
	res, err := e.store.Get(ctx, collection, where, limit)
	if err != nil {
		return nil, storeError(err, collection)
	}
	return res.Matches()
}

func (e *Engine) record(op, query string, results, skipped int, start time.Time) {
	d := time.Since(start)
	e.metrics.RecordSearch(op, query, results, skipped, d)
	slog.Debug("search_complete",
		slog.String("op", op),
		slog.Int("results", results),
		slog.Int("skipped", skipped),
		slog.Duration("duration", d))
}

func storeError(err error, collection string) error {
	var dim store.ErrDimensionMismatch
	switch {
	case errors.Is(err, store.ErrCollectionNotFound):
		return ErrNotIndexed
	case errors.As(err, &dim):
		return cierrors.Wrap(cierrors.ErrCodeDimensionMismatch, err).
			WithSuggestion("The embedder changed since indexing, run `codeindex index --force`")
	default:
		return cierrors.Wrapf(cierrors.ErrCodeSearchFailed, err, "query %s", collection)
	}
}

func emptyQuery() error {
	return cierrors.New(cierrors.ErrCodeQueryEmpty, "query must not be empty", nil)
}
