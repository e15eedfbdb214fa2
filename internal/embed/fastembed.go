//go:build cgo

package embed

import (
	"context"
	"fmt"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedConfig configures the local ONNX embedder.
type FastEmbedConfig struct {
	// Model is the fastembed model name (default: sentence-transformers/all-MiniLM-L6-v2).
	Model string

	// CacheDir holds downloaded model files.
	CacheDir string

	// MaxLength is the maximum input sequence length (default: 512).
	MaxLength int

	// BatchSize is passed to PassageEmbed (default: DefaultBatchSize).
	BatchSize int
}

var fastembedModels = map[string]struct {
	model fastembed.EmbeddingModel
	dims  int
}{
	"sentence-transformers/all-MiniLM-L6-v2": {fastembed.AllMiniLML6V2, 384},
	"BAAI/bge-small-en-v1.5":                 {fastembed.BGESmallENV15, 384},
	"BAAI/bge-base-en-v1.5":                  {fastembed.BGEBaseENV15, 768},
}

// DefaultFastEmbedModel is the default local model.
const DefaultFastEmbedModel = "sentence-transformers/all-MiniLM-L6-v2"

// FastEmbedder runs an ONNX embedding model in-process.
type FastEmbedder struct {
	mu        sync.Mutex
	model     *fastembed.FlagEmbedding
	name      string
	dims      int
	batchSize int
}

var _ Embedder = (*FastEmbedder)(nil)

// NewFastEmbedder loads the model, downloading it to CacheDir on first use.
func NewFastEmbedder(cfg FastEmbedConfig) (*FastEmbedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultFastEmbedModel
	}
	known, ok := fastembedModels[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("fastembed: unsupported model %q", cfg.Model)
	}
	if cfg.MaxLength <= 0 {
		cfg.MaxLength = 512
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	showProgress := false
	model, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                known.model,
		CacheDir:             cfg.CacheDir,
		MaxLength:            cfg.MaxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("fastembed: load %s: %w", cfg.Model, err)
	}

	return &FastEmbedder{model: model, name: cfg.Model, dims: known.dims, batchSize: cfg.BatchSize}, nil
}

// Embed implements Embedder. Single texts are embedded as queries.
func (e *FastEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil, fmt.Errorf("embedder is closed")
	}
	return e.model.QueryEmbed(text)
}

// EmbedBatch implements Embedder. Batches are embedded as passages.
func (e *FastEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil, fmt.Errorf("embedder is closed")
	}
	return e.model.PassageEmbed(texts, e.batchSize)
}

func (e *FastEmbedder) Dimensions() int   { return e.dims }
func (e *FastEmbedder) ModelName() string { return e.name }

// Available implements Embedder.
func (e *FastEmbedder) Available(_ context.Context) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model != nil
}

// Close implements Embedder.
func (e *FastEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil
	}
	err := e.model.Destroy()
	e.model = nil
	return err
}
