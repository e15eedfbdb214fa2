package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{499 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.d), tt.d.String())
	}
}

func TestRingBuffer_EvictsOldest(t *testing.T) {
	b := NewRingBuffer[int](3)
	assert.Empty(t, b.Items())

	for i := 1; i <= 5; i++ {
		b.Add(i)
	}
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []int{3, 4, 5}, b.Items())
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"parse", "config"}, ExtractTerms("  Parse a CONFIG "))
	assert.Nil(t, ExtractTerms("a b"))
}

func TestQueryStats_Snapshot(t *testing.T) {
	s := NewQueryStats(QueryStatsConfig{TopTermsCapacity: 10, ZeroResultsCapacity: 2})

	s.Record(QueryEvent{Op: "semantic_search", Query: "load config", ResultCount: 3, Latency: time.Millisecond})
	s.Record(QueryEvent{Op: "semantic_search", Query: "config parser", ResultCount: 0, Latency: 20 * time.Millisecond})
	s.Record(QueryEvent{Op: "find_files", Query: "missing", ResultCount: 0})
	s.Record(QueryEvent{Op: "find_files", Query: "gone", ResultCount: 0})

	snap := s.Snapshot()
	assert.Equal(t, int64(4), snap.TotalQueries)
	assert.Equal(t, int64(3), snap.ZeroResultCount)
	assert.InDelta(t, 75.0, snap.ZeroResultPercentage(), 0.001)
	assert.Equal(t, int64(2), snap.OpCounts["find_files"])
	assert.Equal(t, int64(3), snap.LatencyDistribution[BucketP10])
	assert.Equal(t, []string{"missing", "gone"}, snap.ZeroResultQueries)

	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, TermCount{Term: "config", Count: 2}, snap.TopTerms[0])
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordIndexRun(IndexRun{Files: 1})
	m.RecordSearch("semantic_search", "q", 0, 0, time.Millisecond)
	m.RecordEmbedBatch(time.Millisecond)
	assert.Nil(t, m.Queries())
}

func TestMetrics_RecordsAndServes(t *testing.T) {
	m := NewMetrics()

	m.RecordIndexRun(IndexRun{Files: 3, Elements: 12, Errors: 1, Stale: 2, Pruned: 2, Duration: time.Second})
	m.RecordIndexRun(IndexRun{Failed: true})
	m.RecordSearch("semantic_search", "foo", 0, 2, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexRuns.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IndexRuns.WithLabelValues("failed")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.IndexElements))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StaleElements.WithLabelValues("pruned")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ZeroResults.WithLabelValues("semantic_search")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SkippedRows.WithLabelValues("semantic_search")))
	assert.Equal(t, int64(1), m.Queries().Snapshot().TotalQueries)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "codeindex_index_files_total 3"))
}

func TestNewMetrics_IndependentRegistries(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.IndexFiles.Inc()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.IndexFiles))
}
