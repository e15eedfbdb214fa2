package search

import "github.com/Aman-CERP/codeindex/internal/store"

// Scorer converts store distances into similarity scores.
//
// Bounded metrics (cosine, dot) map linearly: 1 - d/maxDistance, so a distance
// of 0 scores 1. Euclidean distance is unbounded and maps to 1/(1+d).
type Scorer struct {
	metric      store.Metric
	maxDistance float64
}

// NewScorer creates a scorer for metric. A non-positive maxDistance means 1.
func NewScorer(metric store.Metric, maxDistance float64) Scorer {
	if maxDistance <= 0 {
		maxDistance = 1
	}
	return Scorer{metric: metric, maxDistance: maxDistance}
}

// Similarity scores one distance. Higher is more similar.
func (s Scorer) Similarity(distance float32) float64 {
	d := float64(distance)
	if s.metric == store.MetricL2 {
		return 1 / (1 + d)
	}
	return 1 - d/s.maxDistance
}

// Metric returns the metric the scorer was built for.
func (s Scorer) Metric() store.Metric {
	return s.metric
}
