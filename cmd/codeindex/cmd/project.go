package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/codeindex/internal/chunk"
	"github.com/Aman-CERP/codeindex/internal/config"
	"github.com/Aman-CERP/codeindex/internal/embed"
	cierrors "github.com/Aman-CERP/codeindex/internal/errors"
	"github.com/Aman-CERP/codeindex/internal/index"
	"github.com/Aman-CERP/codeindex/internal/scanner"
	"github.com/Aman-CERP/codeindex/internal/search"
	"github.com/Aman-CERP/codeindex/internal/store"
	"github.com/Aman-CERP/codeindex/internal/telemetry"
	"github.com/Aman-CERP/codeindex/internal/ui"
)

// project holds the process-scoped handles of one command invocation.
type project struct {
	root     string
	config   *config.Config
	store    store.VectorStore
	embedder embed.Embedder
	metrics  *telemetry.Metrics
	parsers  *chunk.Registry
}

// openMode says whether a command may create the index directory.
type openMode int

const (
	readOnly openMode = iota
	readWrite
)

// openProject resolves path, loads its configuration and opens the embedder
// and store. A read-only open of a project without an index directory uses an
// empty in-memory store, so queries report "not indexed" without creating files.
func openProject(ctx context.Context, opts *rootOptions, path string, mode openMode) (*project, error) {
	root, err := resolveRoot(path)
	if err != nil {
		return nil, err
	}

	cfg, err := config.LoadFile(root, opts.configPath)
	if err != nil {
		return nil, cierrors.Wrap(cierrors.ErrCodeConfigInvalid, err)
	}
	return openWithConfig(ctx, root, cfg, mode)
}

func openWithConfig(ctx context.Context, root string, cfg *config.Config, mode openMode) (*project, error) {
	metric, err := store.ParseMetric(cfg.Store.Metric)
	if err != nil {
		return nil, cierrors.Wrap(cierrors.ErrCodeConfigInvalid, err)
	}

	emb, err := embed.NewEmbedder(ctx, embed.Options{
		Provider:    cfg.Embeddings.Provider,
		Model:       cfg.Embeddings.Model,
		Host:        cfg.Embeddings.OllamaHost,
		Dimensions:  cfg.Embeddings.Dimensions,
		BatchSize:   cfg.Embeddings.BatchSize,
		Concurrency: cfg.Embeddings.Concurrency,
		Timeout:     cfg.EmbedTimeout(),
		MaxRetries:  cfg.Embeddings.MaxRetries,
		CacheDir:    cfg.Embeddings.ModelCacheDir,
		CacheSize:   cfg.Embeddings.CacheSize,
	})
	if err != nil {
		return nil, err
	}

	dir := cfg.IndexPath(root)
	switch mode {
	case readWrite:
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = emb.Close()
			return nil, cierrors.Wrapf(cierrors.ErrCodeIndexFailed, err, "failed to create %s", dir)
		}
	default:
		if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
			dir = ""
		}
	}

	st, err := store.Open(store.Config{
		Backend:     cfg.Store.Backend,
		Dir:         dir,
		Metric:      metric,
		Dimensions:  emb.Dimensions(),
		ANN:         cfg.Store.ANN,
		ANNM:        cfg.Store.ANNM,
		ANNEfSearch: cfg.Store.ANNEfSearch,
		Compress:    cfg.Store.Compress,
	})
	if err != nil {
		_ = emb.Close()
		return nil, cierrors.Wrapf(cierrors.ErrCodeCorruptIndex, err, "failed to open the %s store in %s", cfg.Store.Backend, dir).
			WithSuggestion("Run 'codeindex index --force' to rebuild the index")
	}

	slog.Debug("project_opened",
		slog.String("root", root),
		slog.String("backend", cfg.Store.Backend),
		slog.String("embedder", emb.ModelName()),
		slog.Bool("in_memory", dir == ""))

	return &project{
		root:     root,
		config:   cfg,
		store:    st,
		embedder: emb,
		metrics:  telemetry.NewMetrics(),
	}, nil
}

// Close releases the store and the embedder.
func (p *project) Close() error {
	return errors.Join(p.store.Close(), p.embedder.Close())
}

func (p *project) builder(renderer ui.Renderer) (*index.Builder, error) {
	return index.NewBuilder(index.Dependencies{
		Store:    p.store,
		Embedder: p.embedder,
		Config:   p.config,
		Registry: p.registry(),
		Metrics:  p.metrics,
		Renderer: renderer,
	})
}

func (p *project) registry() *chunk.Registry {
	if p.parsers == nil {
		p.parsers = chunk.NewRegistry(
			chunk.WithChunkLines(p.config.Index.ChunkLines),
			chunk.WithFallbackExtensions(p.config.Index.FallbackExtensions),
		)
	}
	return p.parsers
}

// scanner discovers the same files the builder indexes.
func (p *project) scanner() (*scanner.Scanner, error) {
	return scanner.New(scanner.Options{
		Root:             p.root,
		Extensions:       p.registry().SupportedExtensions(),
		ExtraIgnoreDirs:  []string{filepath.Base(p.config.IndexPath(p.root))},
		Exclude:          p.config.Paths.Exclude,
		RespectGitignore: p.config.Paths.RespectGitignore,
		MaxFileSize:      p.config.Paths.MaxFileSize,
	})
}

func (p *project) engine() (*search.Engine, error) {
	return search.New(p.store, p.embedder,
		search.WithMetrics(p.metrics),
		search.WithMaxDistance(p.config.Search.MaxDistance))
}

// resolveRoot returns path as an absolute directory; "" means the working directory.
func resolveRoot(path string) (string, error) {
	if path == "" {
		path = "."
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", cierrors.Wrapf(cierrors.ErrCodeFileNotFound, err, "project directory %s", abs)
	}
	if !info.IsDir() {
		return "", cierrors.New(cierrors.ErrCodeFileNotFound, fmt.Sprintf("%s is not a directory", abs), nil)
	}
	return abs, nil
}
