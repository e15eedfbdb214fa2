// Package index builds the searchable index of a source tree: discover, parse,
// summarize, embed and upsert, one file at a time.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/codeindex/internal/chunk"
	"github.com/Aman-CERP/codeindex/internal/config"
	"github.com/Aman-CERP/codeindex/internal/embed"
	cierrors "github.com/Aman-CERP/codeindex/internal/errors"
	"github.com/Aman-CERP/codeindex/internal/scanner"
	"github.com/Aman-CERP/codeindex/internal/store"
	"github.com/Aman-CERP/codeindex/internal/summary"
	"github.com/Aman-CERP/codeindex/internal/telemetry"
	"github.com/Aman-CERP/codeindex/internal/ui"
)

// Dependencies are the process-scoped handles a Builder writes through.
type Dependencies struct {
	// Store and Embedder are required.
	Store    store.VectorStore
	Embedder embed.Embedder

	// Config defaults to config.NewConfig().
	Config *config.Config

	// Registry defaults to one built from Config.Index.
	Registry *chunk.Registry

	// Metrics and Renderer are optional.
	Metrics  *telemetry.Metrics
	Renderer ui.Renderer
}

// Builder indexes project trees into the elements and summaries collections.
type Builder struct {
	store    store.VectorStore
	embedder embed.Embedder
	config   *config.Config
	registry *chunk.Registry
	metrics  *telemetry.Metrics
	renderer ui.Renderer
}

// NewBuilder validates deps and fills in defaults.
func NewBuilder(deps Dependencies) (*Builder, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}

	cfg := deps.Config
	if cfg == nil {
		cfg = config.NewConfig()
	}
	registry := deps.Registry
	if registry == nil {
		registry = chunk.NewRegistry(
			chunk.WithChunkLines(cfg.Index.ChunkLines),
			chunk.WithFallbackExtensions(cfg.Index.FallbackExtensions),
		)
	}
	renderer := deps.Renderer
	if renderer == nil {
		renderer = ui.Nop{}
	}

	return &Builder{
		store:    deps.Store,
		embedder: deps.Embedder,
		config:   cfg,
		registry: registry,
		metrics:  deps.Metrics,
		renderer: renderer,
	}, nil
}

// Index runs a full pass over root and writes the report to the index directory.
// Per-file read and parse failures are recorded in the report; embedding and
// store failures abort the run.
func (b *Builder) Index(ctx context.Context, root string) (*Report, error) {
	return b.run(ctx, root, false)
}

// Rebuild drops both collections and then indexes root from scratch.
func (b *Builder) Rebuild(ctx context.Context, root string) (*Report, error) {
	return b.run(ctx, root, true)
}

func (b *Builder) run(ctx context.Context, root string, rebuild bool) (*Report, error) {
	absRoot, indexDir, err := b.prepare(root)
	if err != nil {
		return nil, err
	}

	lock, err := acquireLock(indexDir)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	report := newReport(uuid.NewString(), time.Now())
	log := slog.With(slog.String("run_id", report.RunID))
	log.Info("index_started", slog.String("root", absRoot), slog.Bool("rebuild", rebuild))

	err = b.indexTree(ctx, absRoot, indexDir, rebuild, report, log)
	report.DurationMS = time.Since(report.StartedAt).Milliseconds()
	b.metrics.RecordIndexRun(telemetry.IndexRun{
		Files:    len(report.IndexedFiles),
		Elements: report.TotalElements,
		Errors:   len(report.Errors),
		Stale:    report.StaleElements,
		Pruned:   report.PrunedElements,
		Duration: time.Duration(report.DurationMS) * time.Millisecond,
		Failed:   err != nil,
	})
	if err != nil {
		log.Error("index_failed", cierrors.LogAttrs(err)...)
		return nil, err
	}

	if err := report.Write(indexDir); err != nil {
		log.Warn("index_report_write_failed", slog.String("error", err.Error()))
	}

	b.renderer.Complete(ui.CompletionStats{
		Files:    len(report.IndexedFiles),
		Elements: report.TotalElements,
		Stale:    report.StaleElements,
		Pruned:   report.PrunedElements,
		Duration: time.Duration(report.DurationMS) * time.Millisecond,
		Errors:   report.Errors,
		Embedder: b.embedder.ModelName(),
		Backend:  b.config.Store.Backend,
	})
	log.Info("index_complete",
		slog.Int("files", len(report.IndexedFiles)),
		slog.Int("elements", report.TotalElements),
		slog.Int("errors", len(report.Errors)),
		slog.Int("stale_elements", report.StaleElements),
		slog.Int("pruned_elements", report.PrunedElements),
		slog.Int64("duration_ms", report.DurationMS))
	return report, nil
}

func (b *Builder) prepare(root string) (string, string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", "", cierrors.Wrapf(cierrors.ErrCodeInvalidPath, err, "resolve %s", root)
	}
	indexDir := b.config.IndexPath(absRoot)
	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return "", "", cierrors.Wrapf(cierrors.ErrCodeIndexFailed, err, "create index directory")
	}
	return absRoot, indexDir, nil
}

func (b *Builder) indexTree(ctx context.Context, absRoot, indexDir string, rebuild bool, report *Report, log *slog.Logger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rebuild {
		for _, c := range []string{store.CollectionElements, store.CollectionSummaries} {
			if err := b.store.DropCollection(ctx, c); err != nil {
				return cierrors.Wrapf(cierrors.ErrCodeStoreWriteFailed, err, "drop %s", c)
			}
		}
	}
	for _, c := range []string{store.CollectionElements, store.CollectionSummaries} {
		if err := b.store.CreateCollection(ctx, c); err != nil {
			return cierrors.Wrapf(cierrors.ErrCodeStoreWriteFailed, err, "create %s", c)
		}
	}

	b.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "Scanning " + absRoot})
	sc, err := b.newScanner(absRoot, indexDir)
	if err != nil {
		return err
	}
	files, err := sc.Scan(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return cierrors.Wrap(cierrors.ErrCodeIndexFailed, err)
	}
	log.Info("index_scan_complete", slog.Int("files", len(files)))

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       ui.StageParsing,
			Current:     i + 1,
			Total:       len(files),
			CurrentFile: f.Path,
		})
		if err := b.indexFile(ctx, f, report, log); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) newScanner(absRoot, indexDir string) (*scanner.Scanner, error) {
	sc, err := scanner.New(scanner.Options{
		Root:             absRoot,
		Extensions:       b.registry.SupportedExtensions(),
		ExtraIgnoreDirs:  []string{filepath.Base(indexDir)},
		Exclude:          b.config.Paths.Exclude,
		RespectGitignore: b.config.Paths.RespectGitignore,
		MaxFileSize:      b.config.Paths.MaxFileSize,
	})
	if err != nil {
		return nil, cierrors.Wrap(cierrors.ErrCodeInvalidPath, err)
	}
	return sc, nil
}

// indexFile writes one file's elements and summary. A returned error aborts the run.
func (b *Builder) indexFile(ctx context.Context, f scanner.FileInfo, report *Report, log *slog.Logger) error {
	raw, err := os.ReadFile(f.AbsPath)
	if err != nil {
		log.Warn("index_read_failed", slog.String("path", f.Path), slog.String("error", err.Error()))
		b.fileError(report, f.Path, err)
		return nil
	}
	text := strings.ToValidUTF8(string(raw), "")

	parser, ok := b.registry.ParserFor(f.Path)
	if !ok {
		return nil
	}
	elements, err := parser.Parse(ctx, f.Path, []byte(text))
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("index_parse_failed", slog.String("path", f.Path), slog.String("error", err.Error()))
		b.fileError(report, f.Path, err)
		elements = nil
	}

	fs := summary.Summarize(f.Path, text, elements)
	stale, pruned, err := b.write(ctx, f.Path, elements, fs)
	if err != nil {
		return err
	}

	report.IndexedFiles = append(report.IndexedFiles, f.Path)
	report.TotalElements += len(elements)
	report.StaleElements += stale
	report.PrunedElements += pruned
	if stale > 0 {
		log.Info("index_stale_elements", slog.String("path", f.Path),
			slog.Int("stale", stale), slog.Int("pruned", pruned))
	}
	return nil
}

func (b *Builder) fileError(report *Report, path string, err error) {
	report.addError(path, err)
	b.renderer.AddError(ui.ErrorEvent{File: path, Err: err, IsWarn: true})
}

// write embeds elements and the summary in one batch, upserts the elements as
// one write and the summary as another, then handles ids the file no longer
// produces.
func (b *Builder) write(ctx context.Context, path string, elements []chunk.Element, fs summary.FileSummary) (stale, pruned int, err error) {
	previous, err := b.storedIDs(ctx, path)
	if err != nil {
		return 0, 0, err
	}

	docs := make([]string, 0, len(elements)+1)
	for i := range elements {
		docs = append(docs, elements[i].Document())
	}
	docs = append(docs, fs.Document())

	start := time.Now()
	vectors, err := b.embedder.EmbedBatch(ctx, docs)
	b.metrics.RecordEmbedBatch(time.Since(start))
	if err != nil {
		return 0, 0, embedError(err, path)
	}
	if len(vectors) != len(docs) {
		return 0, 0, cierrors.New(cierrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("embedder returned %d vectors for %d texts in %s", len(vectors), len(docs), path), nil)
	}

	current := make(map[string]bool, len(elements))
	if len(elements) > 0 {
		records := make([]store.Record, len(elements))
		for i := range elements {
			e := &elements[i]
			records[i] = store.Record{ID: e.ID(), Document: docs[i], Metadata: e.Metadata(), Embedding: vectors[i]}
			current[records[i].ID] = true
		}
		if err := b.store.Upsert(ctx, store.CollectionElements, records); err != nil {
			return 0, 0, cierrors.Wrapf(cierrors.ErrCodeStoreWriteFailed, err, "write elements of %s", path)
		}
	}

	summaryRecord := store.Record{
		ID:        fs.ID(),
		Document:  docs[len(docs)-1],
		Metadata:  fs.Metadata(),
		Embedding: vectors[len(vectors)-1],
	}
	if err := b.store.Upsert(ctx, store.CollectionSummaries, []store.Record{summaryRecord}); err != nil {
		return 0, 0, cierrors.Wrapf(cierrors.ErrCodeStoreWriteFailed, err, "write summary of %s", path)
	}

	var staleIDs []string
	for _, id := range previous {
		if !current[id] {
			staleIDs = append(staleIDs, id)
		}
	}
	if len(staleIDs) == 0 || !b.config.Index.PruneStale {
		return len(staleIDs), 0, nil
	}
	if err := b.store.Delete(ctx, store.CollectionElements, staleIDs); err != nil {
		return 0, 0, cierrors.Wrapf(cierrors.ErrCodeStoreWriteFailed, err, "prune stale elements of %s", path)
	}
	return len(staleIDs), len(staleIDs), nil
}

// storedIDs returns the element ids currently stored for path.
func (b *Builder) storedIDs(ctx context.Context, path string) ([]string, error) {
	res, err := b.store.Get(ctx, store.CollectionElements, store.Where{chunk.MetaFilePath: path}, 0)
	if errors.Is(err, store.ErrCollectionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, cierrors.Wrapf(cierrors.ErrCodeStoreWriteFailed, err, "read stored elements of %s", path)
	}
	return res.IDs, nil
}

func embedError(err error, path string) error {
	if ce, ok := cierrors.As(err); ok && ce.Code == cierrors.ErrCodeEmbeddingFailed {
		return err
	}
	return cierrors.Wrapf(cierrors.ErrCodeEmbeddingFailed, err, "embed %s", path)
}

// UpdateResult summarizes an incremental update.
type UpdateResult struct {
	Indexed  []string
	Removed  []string
	Elements int
	Errors   []string
}

// Update re-indexes changed files and drops removed ones. Paths are relative
// to root. Paths the scanner would not discover are ignored; a changed path
// that no longer exists is treated as removed. The run report is not rewritten.
func (b *Builder) Update(ctx context.Context, root string, changed, removed []string) (*UpdateResult, error) {
	absRoot, indexDir, err := b.prepare(root)
	if err != nil {
		return nil, err
	}
	lock, err := acquireLock(indexDir)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	sc, err := b.newScanner(absRoot, indexDir)
	if err != nil {
		return nil, err
	}
	for _, c := range []string{store.CollectionElements, store.CollectionSummaries} {
		if err := b.store.CreateCollection(ctx, c); err != nil {
			return nil, cierrors.Wrapf(cierrors.ErrCodeStoreWriteFailed, err, "create %s", c)
		}
	}

	result := &UpdateResult{}
	report := newReport(uuid.NewString(), time.Now())
	log := slog.With(slog.String("run_id", report.RunID))

	for _, rel := range removed {
		rel = filepath.ToSlash(rel)
		paths, err := b.removeFile(ctx, rel)
		if err != nil {
			return nil, err
		}
		result.Removed = append(result.Removed, paths...)
	}

	for _, rel := range changed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rel = filepath.ToSlash(rel)
		if !sc.Accept(rel) {
			continue
		}
		abs := filepath.Join(absRoot, filepath.FromSlash(rel))
		info, err := os.Stat(abs)
		if errors.Is(err, os.ErrNotExist) {
			paths, err := b.removeFile(ctx, rel)
			if err != nil {
				return nil, err
			}
			result.Removed = append(result.Removed, paths...)
			continue
		}
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if limit := b.config.Paths.MaxFileSize; limit > 0 && info.Size() > limit {
			continue
		}

		f := scanner.FileInfo{Path: rel, AbsPath: abs, Size: info.Size(), ModTime: info.ModTime(), Ext: scanner.Ext(rel)}
		if err := b.indexFile(ctx, f, report, log); err != nil {
			return nil, err
		}
	}

	result.Indexed = report.IndexedFiles
	result.Elements = report.TotalElements
	result.Errors = report.Errors
	log.Info("index_update_complete",
		slog.Int("indexed", len(result.Indexed)),
		slog.Int("removed", len(result.Removed)),
		slog.Int("elements", result.Elements),
		slog.Int("errors", len(result.Errors)))
	return result, nil
}

// removeFile deletes the elements and summary of rel. When rel has no summary
// it is treated as a directory and every file below it is removed.
func (b *Builder) removeFile(ctx context.Context, rel string) ([]string, error) {
	summaries, err := b.store.Get(ctx, store.CollectionSummaries, nil, 0)
	if err != nil && !errors.Is(err, store.ErrCollectionNotFound) {
		return nil, cierrors.Wrapf(cierrors.ErrCodeStoreWriteFailed, err, "read summaries")
	}

	var paths []string
	if summaries != nil {
		prefix := strings.TrimSuffix(rel, "/") + "/"
		for _, id := range summaries.IDs {
			if id == rel || strings.HasPrefix(id, prefix) {
				paths = append(paths, id)
			}
		}
	}

	for _, p := range paths {
		ids, err := b.storedIDs(ctx, p)
		if err != nil {
			return nil, err
		}
		if len(ids) > 0 {
			if err := b.store.Delete(ctx, store.CollectionElements, ids); err != nil {
				return nil, cierrors.Wrapf(cierrors.ErrCodeStoreWriteFailed, err, "delete elements of %s", p)
			}
		}
	}
	if len(paths) > 0 {
		if err := b.store.Delete(ctx, store.CollectionSummaries, paths); err != nil {
			return nil, cierrors.Wrapf(cierrors.ErrCodeStoreWriteFailed, err, "delete summaries under %s", rel)
		}
		slog.Info("index_removed", slog.String("path", rel), slog.Int("files", len(paths)))
	}
	return paths, nil
}
