package store

import (
	"fmt"
	"math"
	"strings"
)

// Metric selects the distance function. Lower distance means closer.
type Metric string

const (
	// MetricCosine is 1 - cosine similarity, in [0, 2].
	MetricCosine Metric = "cosine"

	// MetricL2 is euclidean distance, in [0, inf).
	MetricL2 Metric = "l2"

	// MetricDot is 1 - dot product; equals cosine distance for unit vectors.
	MetricDot Metric = "dot"
)

// ParseMetric converts a metric name. "" and "cos" mean cosine.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cos", "cosine":
		return MetricCosine, nil
	case "l2", "euclidean":
		return MetricL2, nil
	case "dot", "ip":
		return MetricDot, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q (valid: cosine, l2, dot)", s)
	}
}

// Distance computes the metric between equal-length vectors.
func (m Metric) Distance(a, b []float32) float32 {
	switch m {
	case MetricL2:
		return euclidean(a, b)
	case MetricDot:
		return 1 - dot(a, b)
	default:
		return cosineDistance(a, b)
	}
}

func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

func euclidean(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

// cosineDistance treats a zero vector as orthogonal to everything.
func cosineDistance(a, b []float32) float32 {
	var d, na, nb float64
	for i := range a {
		d += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	sim := d / (math.Sqrt(na) * math.Sqrt(nb))
	// Rounding in the norms can put identical vectors a hair away from 1.
	if sim > 1-1e-9 {
		return 0
	}
	if sim < -1 {
		sim = -1
	}
	return float32(1 - sim)
}
