package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	cierrors "github.com/Aman-CERP/codeindex/internal/errors"
)

const (
	// DefaultOllamaHost is the default Ollama API endpoint.
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the default embedding model.
	DefaultOllamaModel = "nomic-embed-text"
)

// OllamaConfig configures the Ollama embedder.
type OllamaConfig struct {
	Host  string
	Model string

	// Dimensions overrides auto-detection (0 = detect from a probe request).
	Dimensions int

	// BatchSize is the number of texts per request.
	BatchSize int

	// Concurrency is the number of requests in flight during EmbedBatch.
	Concurrency int

	// Timeout applies to each HTTP request.
	Timeout time.Duration

	// MaxRetries bounds retries of transient failures.
	MaxRetries int

	// SkipHealthCheck skips the startup availability check and dimension probe.
	SkipHealthCheck bool
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// OllamaEmbedder generates embeddings with Ollama's /api/embed endpoint.
type OllamaEmbedder struct {
	client *http.Client
	config OllamaConfig
	dims   int

	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*OllamaEmbedder)(nil)

// NewOllamaEmbedder creates an Ollama embedder. Unless SkipHealthCheck is set it
// verifies the model is installed and detects its dimension.
func NewOllamaEmbedder(ctx context.Context, cfg OllamaConfig) (*OllamaEmbedder, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	e := &OllamaEmbedder{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: cfg.Concurrency,
				IdleConnTimeout:     10 * time.Second,
			},
		},
		config: cfg,
		dims:   cfg.Dimensions,
	}

	if cfg.SkipHealthCheck {
		return e, nil
	}

	if err := e.checkModel(ctx); err != nil {
		e.client.CloseIdleConnections()
		return nil, err
	}
	if e.dims == 0 {
		vecs, err := e.embedWithRetry(ctx, []string{"dimension probe"})
		if err != nil {
			e.client.CloseIdleConnections()
			return nil, fmt.Errorf("detect embedding dimensions: %w", err)
		}
		e.dims = len(vecs[0])
	}
	return e, nil
}

func (e *OllamaEmbedder) checkModel(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return cierrors.Wrap(cierrors.ErrCodeConfigInvalid, err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return cierrors.New(cierrors.ErrCodeNetworkUnavailable, "connect to Ollama at "+e.config.Host, err).
			WithSuggestion("start Ollama with 'ollama serve' or set embeddings.provider to static")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return cierrors.New(cierrors.ErrCodeProviderStatus, fmt.Sprintf("ollama /api/tags returned %d", resp.StatusCode), nil)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return cierrors.New(cierrors.ErrCodeEmbeddingFailed, "decode ollama model list", err)
	}
	for _, m := range tags.Models {
		if m.Name == e.config.Model || strings.TrimSuffix(m.Name, ":latest") == e.config.Model {
			return nil
		}
	}
	return cierrors.New(cierrors.ErrCodeEmbeddingFailed, fmt.Sprintf("model %q is not installed", e.config.Model), nil).
		WithSuggestion("run 'ollama pull " + e.config.Model + "'")
}

func (e *OllamaEmbedder) checkOpen() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return fmt.Errorf("embedder is closed")
	}
	return nil
}

// Embed implements Embedder.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements Embedder. Texts are split into BatchSize requests, up to
// Concurrency of which run at once; blank texts get a zero vector without a request.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	results := make([][]float32, len(texts))
	var idx []int
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.dims)
			continue
		}
		idx = append(idx, i)
	}
	if len(idx) == 0 {
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.Concurrency)

	for start := 0; start < len(idx); start += e.config.BatchSize {
		end := min(start+e.config.BatchSize, len(idx))
		batch := idx[start:end]

		g.Go(func() error {
			batchTexts := make([]string, len(batch))
			for j, i := range batch {
				batchTexts[j] = texts[i]
			}
			vecs, err := e.embedWithRetry(gctx, batchTexts)
			if err != nil {
				return err
			}
			for j, i := range batch {
				results[i] = vecs[j]
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, cierrors.Wrapf(cierrors.ErrCodeEmbeddingFailed, err, "embed %d texts", len(idx))
	}
	return results, nil
}

func (e *OllamaEmbedder) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	cfg := cierrors.DefaultRetryConfig()
	cfg.MaxRetries = e.config.MaxRetries
	cfg.RetryableOnly = true

	attempt := 0
	return cierrors.RetryWithResult(ctx, cfg, func() ([][]float32, error) {
		attempt++
		vecs, err := e.doEmbed(ctx, texts)
		if err != nil {
			slog.Debug("ollama_embed_failed",
				slog.Int("attempt", attempt),
				slog.Int("texts", len(texts)),
				slog.String("error", err.Error()))
		}
		return vecs, err
	})
}

func (e *OllamaEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if reqCtx.Err() != nil {
			return nil, cierrors.New(cierrors.ErrCodeNetworkTimeout, "ollama request timed out", err)
		}
		return nil, cierrors.New(cierrors.ErrCodeNetworkUnavailable, "ollama request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		text := fmt.Sprintf("ollama returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, cierrors.New(cierrors.ErrCodeProviderStatus, text, nil)
		}
		return nil, cierrors.New(cierrors.ErrCodeEmbeddingFailed, text, nil)
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, cierrors.New(cierrors.ErrCodeEmbeddingFailed, "decode ollama response", err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, cierrors.New(cierrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("ollama returned %d embeddings for %d texts", len(out.Embeddings), len(texts)), nil)
	}
	if e.dims > 0 {
		for _, v := range out.Embeddings {
			if len(v) != e.dims {
				return nil, cierrors.New(cierrors.ErrCodeDimensionMismatch,
					fmt.Sprintf("expected %d dimensions, got %d", e.dims, len(v)), nil)
			}
		}
	}
	return out.Embeddings, nil
}

// Dimensions implements Embedder.
func (e *OllamaEmbedder) Dimensions() int {
	return e.dims
}

// ModelName implements Embedder.
func (e *OllamaEmbedder) ModelName() string {
	return e.config.Model
}

// Available implements Embedder.
func (e *OllamaEmbedder) Available(ctx context.Context) bool {
	if e.checkOpen() != nil {
		return false
	}
	return e.checkModel(ctx) == nil
}

// Close implements Embedder.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		e.client.CloseIdleConnections()
	}
	return nil
}
