package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Provider names an embedding backend.
type Provider string

const (
	// ProviderStatic uses hash-based embeddings (default, offline).
	ProviderStatic Provider = "static"

	// ProviderOllama uses a local Ollama server.
	ProviderOllama Provider = "ollama"

	// ProviderFastEmbed runs an ONNX model in-process (cgo builds only).
	ProviderFastEmbed Provider = "fastembed"
)

// ValidProviders returns the accepted provider names.
func ValidProviders() []string {
	return []string{string(ProviderStatic), string(ProviderOllama), string(ProviderFastEmbed)}
}

// ParseProvider converts a provider name, defaulting to static for "".
func ParseProvider(s string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(s))) {
	case "", ProviderStatic:
		return ProviderStatic, nil
	case ProviderOllama:
		return ProviderOllama, nil
	case ProviderFastEmbed:
		return ProviderFastEmbed, nil
	default:
		return "", fmt.Errorf("unknown embedding provider %q (valid: %s)", s, strings.Join(ValidProviders(), ", "))
	}
}

// Options selects and configures an embedder.
type Options struct {
	Provider    string
	Model       string
	Host        string
	Dimensions  int
	BatchSize   int
	Concurrency int
	Timeout     time.Duration
	MaxRetries  int
	CacheDir    string

	// CacheSize > 0 wraps the embedder in a CachedEmbedder.
	CacheSize int
}

// NewEmbedder constructs the embedder described by opts.
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	provider, err := ParseProvider(opts.Provider)
	if err != nil {
		return nil, err
	}

	var e Embedder
	switch provider {
	case ProviderOllama:
		e, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:        opts.Host,
			Model:       opts.Model,
			Dimensions:  opts.Dimensions,
			BatchSize:   opts.BatchSize,
			Concurrency: opts.Concurrency,
			Timeout:     opts.Timeout,
			MaxRetries:  opts.MaxRetries,
		})
	case ProviderFastEmbed:
		e, err = NewFastEmbedder(FastEmbedConfig{
			Model:     opts.Model,
			CacheDir:  opts.CacheDir,
			BatchSize: opts.BatchSize,
		})
	default:
		e = NewStaticEmbedder(opts.Dimensions)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("embedder_ready",
		slog.String("provider", string(provider)),
		slog.String("model", e.ModelName()),
		slog.Int("dimensions", e.Dimensions()))

	if opts.CacheSize > 0 {
		return NewCachedEmbedder(e, opts.CacheSize), nil
	}
	return e, nil
}
