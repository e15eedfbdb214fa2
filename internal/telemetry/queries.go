package telemetry

import (
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LatencyBucket is a coarse latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is a single search operation.
type QueryEvent struct {
	Op          string
	Query       string
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// RingBuffer is a fixed-capacity FIFO that evicts the oldest item when full.
type RingBuffer[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int
	size  int
}

// NewRingBuffer creates a buffer; capacity <= 0 means 100.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &RingBuffer[T]{items: make([]T, capacity)}
}

// Add appends item, evicting the oldest if full.
func (b *RingBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % len(b.items)
	if b.size < len(b.items) {
		b.size++
	}
}

// Items returns the contents oldest first.
func (b *RingBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]T, 0, b.size)
	start := (b.head - b.size + len(b.items)) % len(b.items)
	for i := 0; i < b.size; i++ {
		out = append(out, b.items[(start+i)%len(b.items)])
	}
	return out
}

// Len returns the number of items held.
func (b *RingBuffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms lowercases query and keeps words of at least 3 bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a query term and how often it was seen.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// QueryStatsConfig sizes the in-memory trackers.
type QueryStatsConfig struct {
	TopTermsCapacity    int
	ZeroResultsCapacity int
}

// DefaultQueryStatsConfig tracks 100 terms and the last 100 zero-result queries.
func DefaultQueryStatsConfig() QueryStatsConfig {
	return QueryStatsConfig{TopTermsCapacity: 100, ZeroResultsCapacity: 100}
}

// QueryStats aggregates search activity for the lifetime of a process.
type QueryStats struct {
	mu sync.Mutex

	ops         map[string]int64
	latencies   map[LatencyBucket]int64
	terms       *lru.Cache[string, int64]
	zeroResults *RingBuffer[string]
	total       int64
	zeroCount   int64
	since       time.Time
}

// NewQueryStats creates an empty tracker.
func NewQueryStats(cfg QueryStatsConfig) *QueryStats {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	terms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	return &QueryStats{
		ops:         make(map[string]int64),
		latencies:   make(map[LatencyBucket]int64),
		terms:       terms,
		zeroResults: NewRingBuffer[string](cfg.ZeroResultsCapacity),
		since:       time.Now(),
	}
}

// Record adds one event.
func (s *QueryStats) Record(e QueryEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.ops[e.Op]++
	s.latencies[LatencyToBucket(e.Latency)]++
	for _, term := range ExtractTerms(e.Query) {
		n, _ := s.terms.Get(term)
		s.terms.Add(term, n+1)
	}
	if e.ResultCount == 0 {
		s.zeroCount++
		s.zeroResults.Add(e.Query)
	}
}

// QuerySnapshot is a point-in-time copy of QueryStats.
type QuerySnapshot struct {
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	OpCounts            map[string]int64        `json:"op_counts"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage is 0 when nothing was recorded.
func (s *QuerySnapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Snapshot copies the current state. Top terms are ordered by count, then term.
func (s *QueryStats) Snapshot() *QuerySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	ops := make(map[string]int64, len(s.ops))
	for k, v := range s.ops {
		ops[k] = v
	}
	lat := make(map[LatencyBucket]int64, len(s.latencies))
	for k, v := range s.latencies {
		lat[k] = v
	}

	terms := make([]TermCount, 0, s.terms.Len())
	for _, k := range s.terms.Keys() {
		if n, ok := s.terms.Peek(k); ok {
			terms = append(terms, TermCount{Term: k, Count: n})
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})

	return &QuerySnapshot{
		TotalQueries:        s.total,
		ZeroResultCount:     s.zeroCount,
		OpCounts:            ops,
		LatencyDistribution: lat,
		TopTerms:            terms,
		ZeroResultQueries:   s.zeroResults.Items(),
		Since:               s.since,
	}
}
