// Package store persists embedded records in named collections and answers
// nearest-neighbor and metadata-filter queries over them.
package store

import (
	"context"
	"errors"
	"fmt"
)

// Collection names used by the indexer.
const (
	CollectionElements  = "code_elements"
	CollectionSummaries = "file_summaries"
)

var (
	// ErrCollectionNotFound means the collection has never been written.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInconsistentResults means the parallel result arrays have different lengths.
	ErrInconsistentResults = errors.New("inconsistent result arrays")

	// ErrClosed is returned by any call after Close.
	ErrClosed = errors.New("store is closed")
)

// ErrDimensionMismatch indicates a vector whose length differs from the collection's.
type ErrDimensionMismatch struct {
	Collection string
	Expected   int
	Got        int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch in %s: expected %d, got %d", e.Collection, e.Expected, e.Got)
}

// Record is one stored item.
type Record struct {
	ID        string
	Document  string
	Embedding []float32
	Metadata  map[string]string
}

// Where is an exact-match metadata filter; all pairs must match.
type Where map[string]string

// Result holds query or get output as parallel arrays, nearest first for queries.
// Distances is nil for Get. A nil Metadatas entry marks a row whose stored
// metadata could not be decoded.
type Result struct {
	IDs       []string
	Documents []string
	Metadatas []map[string]string
	Distances []float32
}

// Match is one row of a Result.
type Match struct {
	ID       string
	Document string
	Metadata map[string]string
	Distance float32
}

// Len returns the number of rows.
func (r *Result) Len() int {
	return len(r.IDs)
}

// Matches zips the parallel arrays, or returns ErrInconsistentResults when
// their lengths disagree.
func (r *Result) Matches() ([]Match, error) {
	n := len(r.IDs)
	if len(r.Documents) != n || len(r.Metadatas) != n || (r.Distances != nil && len(r.Distances) != n) {
		return nil, fmt.Errorf("%w: ids=%d documents=%d metadatas=%d distances=%d",
			ErrInconsistentResults, n, len(r.Documents), len(r.Metadatas), len(r.Distances))
	}

	out := make([]Match, n)
	for i := range out {
		out[i] = Match{ID: r.IDs[i], Document: r.Documents[i], Metadata: r.Metadatas[i]}
		if r.Distances != nil {
			out[i].Distance = r.Distances[i]
		}
	}
	return out, nil
}

func (r *Result) append(m Match, withDistance bool) {
	r.IDs = append(r.IDs, m.ID)
	r.Documents = append(r.Documents, m.Document)
	r.Metadatas = append(r.Metadatas, m.Metadata)
	if withDistance {
		r.Distances = append(r.Distances, m.Distance)
	}
}

// VectorStore is a collection-partitioned vector database.
type VectorStore interface {
	// CreateCollection creates an empty collection. Existing collections are left untouched.
	CreateCollection(ctx context.Context, collection string) error

	// Upsert inserts or overwrites records by id, creating the collection on first
	// use. A single call is applied entirely or not at all.
	Upsert(ctx context.Context, collection string, records []Record) error

	// Query returns up to k records nearest to vector in ascending distance,
	// restricted to rows matching where.
	Query(ctx context.Context, collection string, vector []float32, k int, where Where) (*Result, error)

	// Get returns records matching where without ranking, ordered by id.
	// limit <= 0 means no limit.
	Get(ctx context.Context, collection string, where Where, limit int) (*Result, error)

	// Delete removes records by id. Unknown ids are ignored.
	Delete(ctx context.Context, collection string, ids []string) error

	// Count returns the number of records in a collection.
	Count(ctx context.Context, collection string) (int, error)

	// Collections lists existing collection names, sorted.
	Collections(ctx context.Context) ([]string, error)

	// DropCollection removes a collection and all its records. Missing collections are ignored.
	DropCollection(ctx context.Context, collection string) error

	// Metric returns the distance metric used by Query.
	Metric() Metric

	Close() error
}
