package store

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func annFixture(n int) map[string][]float32 {
	vecs := make(map[string][]float32, n)
	for i := 0; i < n; i++ {
		vecs[fmt.Sprintf("r%02d", i)] = []float32{float32(i%7) + 1, float32(i%5) + 1, float32(i)}
	}
	return vecs
}

func exactTopK(metric Metric, vecs map[string][]float32, q []float32, k int) []annHit {
	hits := make([]annHit, 0, len(vecs))
	for id, v := range vecs {
		hits = append(hits, annHit{id: id, distance: metric.Distance(q, v)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].distance != hits[j].distance {
			return hits[i].distance < hits[j].distance
		}
		return hits[i].id < hits[j].id
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func TestANNIndex_SmallCollectionIsExact(t *testing.T) {
	// Given: 40 vectors, one deleted and one replaced, under the efSearch size
	vecs := annFixture(40)
	idx := newANNIndex(MetricCosine, 16, 64)
	for id, v := range vecs {
		idx.add(id, v)
	}
	idx.remove("r05")
	delete(vecs, "r05")
	idx.add("r03", vecs["r03"])

	// When: searching
	q := []float32{3, 2, 10}
	got := idx.search(q, 5)

	// Then: the result is exactly the brute-force top 5
	assert.Equal(t, exactTopK(MetricCosine, vecs, q, 5), got)
	assert.Equal(t, 39, idx.len())
}

func TestANNIndex_GraphSearchSkipsOrphans(t *testing.T) {
	// Given: more vectors than efSearch, so the graph is used
	vecs := annFixture(60)
	idx := newANNIndex(MetricL2, 8, 10)
	for id, v := range vecs {
		idx.add(id, v)
	}
	idx.remove("r10")

	// When: searching for the removed vector
	got := idx.search(vecs["r10"], 5)

	// Then: k live ids come back in distance order
	require.Len(t, got, 5)
	for i, h := range got {
		assert.NotEqual(t, "r10", h.id)
		if i > 0 {
			assert.LessOrEqual(t, got[i-1].distance, h.distance)
		}
	}
}
