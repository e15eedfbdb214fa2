// Package embed turns element and query text into fixed-dimension vectors.
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// MaxBatchSize bounds a single provider request.
	MaxBatchSize = 256

	// DefaultBatchSize is the default number of texts per provider request.
	DefaultBatchSize = 32

	// DefaultTimeout is the per-request timeout for remote providers.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of retries for transient failures.
	DefaultMaxRetries = 3

	// DefaultConcurrency is the number of sub-batches sent in parallel.
	DefaultConcurrency = 2
)

// StaticDimensions is the default dimension of the static embedder.
const StaticDimensions = 256

// Embedder generates vector embeddings for text.
// Output is deterministic for identical input under a fixed model.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts; output order matches input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector scales v to unit length. A zero vector is returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
