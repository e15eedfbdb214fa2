//go:build !cgo

package embed

import (
	"context"
	"errors"
)

// ErrFastEmbedUnavailable is returned by builds without cgo.
var ErrFastEmbedUnavailable = errors.New("fastembed: not available (binary built without cgo, use the static or ollama provider)")

// FastEmbedConfig configures the local ONNX embedder.
type FastEmbedConfig struct {
	Model     string
	CacheDir  string
	MaxLength int
	BatchSize int
}

// DefaultFastEmbedModel is the default local model.
const DefaultFastEmbedModel = "sentence-transformers/all-MiniLM-L6-v2"

// FastEmbedder is unavailable without cgo.
type FastEmbedder struct{}

var _ Embedder = (*FastEmbedder)(nil)

// NewFastEmbedder always fails without cgo.
func NewFastEmbedder(_ FastEmbedConfig) (*FastEmbedder, error) {
	return nil, ErrFastEmbedUnavailable
}

func (e *FastEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrFastEmbedUnavailable
}

func (e *FastEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, ErrFastEmbedUnavailable
}

func (e *FastEmbedder) Dimensions() int                { return 0 }
func (e *FastEmbedder) ModelName() string              { return DefaultFastEmbedModel }
func (e *FastEmbedder) Available(context.Context) bool { return false }
func (e *FastEmbedder) Close() error                   { return nil }
