package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestChromem(t *testing.T, dims int) *ChromemStore {
	t.Helper()
	s, err := NewChromemStore("", dims, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestChromemStore_QueryAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestChromem(t, 2)

	require.NoError(t, s.Upsert(ctx, "c", []Record{
		record("b", []float32{0, 1}, map[string]string{"kind": "class"}),
		record("a", []float32{1, 0}, map[string]string{"kind": "function"}),
		record("c", []float32{1, 0.2}, map[string]string{"kind": "function"}),
	}))

	res, err := s.Query(ctx, "c", []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "b"}, res.IDs)
	assert.IsNonDecreasing(t, res.Distances)
	assert.InDelta(t, 0, res.Distances[0], 1e-5)

	res, err = s.Query(ctx, "c", []float32{0, 1}, 1, Where{"kind": "function"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, res.IDs)

	got, err := s.Get(ctx, "c", Where{"kind": "function"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, got.IDs)
	assert.Nil(t, got.Distances)

	got, err = s.Get(ctx, "c", nil, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.IDs)
}

func TestChromemStore_UpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	s := newTestChromem(t, 2)

	require.NoError(t, s.Upsert(ctx, "c", []Record{record("a", []float32{1, 0}, nil)}))
	require.NoError(t, s.Upsert(ctx, "c", []Record{{ID: "a", Document: "v2", Embedding: []float32{0, 1}}}))

	n, err := s.Count(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.Get(ctx, "c", nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, got.Documents)
}

func TestChromemStore_MissingAndDrop(t *testing.T) {
	ctx := context.Background()
	s := newTestChromem(t, 2)

	_, err := s.Query(ctx, "nope", []float32{1, 0}, 1, nil)
	assert.ErrorIs(t, err, ErrCollectionNotFound)
	_, err = s.Get(ctx, "nope", nil, 0)
	assert.ErrorIs(t, err, ErrCollectionNotFound)

	require.NoError(t, s.CreateCollection(ctx, "c"))
	res, err := s.Query(ctx, "c", []float32{1, 0}, 3, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Len())

	require.NoError(t, s.Upsert(ctx, "c", []Record{record("a", []float32{1, 0}, nil), record("b", []float32{0, 1}, nil)}))
	require.NoError(t, s.Delete(ctx, "c", []string{"a"}))
	n, err := s.Count(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	names, err := s.Collections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, names)

	require.NoError(t, s.DropCollection(ctx, "c"))
	require.NoError(t, s.DropCollection(ctx, "c"))
	_, err = s.Count(ctx, "c")
	assert.ErrorIs(t, err, ErrCollectionNotFound)
}

func TestChromemStore_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s := newTestChromem(t, 3)

	err := s.Upsert(ctx, "c", []Record{record("a", []float32{1, 0}, nil)})
	var dm ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Expected)

	_, err = NewChromemStore("", 0, false)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(Config{Dir: dir})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	assert.Equal(t, MetricCosine, s.Metric())
	require.NoError(t, s.Close())

	s, err = Open(Config{Backend: "chromem", Dir: dir, Dimensions: 4, Compress: true})
	require.NoError(t, err)
	assert.IsType(t, &ChromemStore{}, s)
	require.NoError(t, s.Close())

	_, err = Open(Config{Backend: "chromem", Metric: MetricL2, Dimensions: 4})
	assert.Error(t, err)

	_, err = Open(Config{Backend: "redis"})
	assert.Error(t, err)
}
