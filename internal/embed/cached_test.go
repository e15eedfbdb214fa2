package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cierrors "github.com/Aman-CERP/codeindex/internal/errors"
)

func TestCachedEmbedder_Embed_CachesRepeatedText(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	first, err := c.Embed(ctx, "query")
	require.NoError(t, err)
	second, err := c.Embed(ctx, "query")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), inner.embedCalls.Load())

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestCachedEmbedder_EmbedBatch_OnlyMissesReachInner(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 10)
	ctx := context.Background()

	_, err := c.Embed(ctx, "bb")
	require.NoError(t, err)

	out, err := c.EmbedBatch(ctx, []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, []float32{1, 1}, out[0])
	assert.Equal(t, []float32{2, 1}, out[1])
	assert.Equal(t, []float32{3, 1}, out[2])
	assert.Equal(t, []int{2}, inner.batchSizes)

	_, err = c.EmbedBatch(ctx, []string{"a", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), inner.batchCalls.Load(), "fully cached batch makes no call")
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 0)

	assert.Equal(t, 2, c.Dimensions())
	assert.Equal(t, "counting", c.ModelName())
	assert.True(t, c.Available(context.Background()))
	assert.Same(t, inner, c.Inner().(*countingEmbedder))
	assert.NoError(t, c.Close())
}

// shortBatchEmbedder drops the last vector of every batch.
type shortBatchEmbedder struct {
	countingEmbedder
}

func (m *shortBatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out, err := m.countingEmbedder.EmbedBatch(ctx, texts)
	if err != nil || len(out) == 0 {
		return out, err
	}
	return out[:len(out)-1], nil
}

func TestCachedEmbedder_EmbedBatch_ShortInnerResult(t *testing.T) {
	c := NewCachedEmbedder(&shortBatchEmbedder{}, 10)

	out, err := c.EmbedBatch(context.Background(), []string{"a", "bb"})

	require.Error(t, err)
	assert.Nil(t, out)
	assert.Contains(t, err.Error(), "returned 1 embeddings for 2 texts")

	var ce *cierrors.CodeError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cierrors.ErrCodeEmbeddingFailed, ce.Code)
}
