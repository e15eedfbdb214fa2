package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

var errNoEmbedding = errors.New("chromem store requires precomputed embeddings")

// ChromemStore implements VectorStore on chromem-go's persistent gob files.
// chromem ranks by cosine similarity only, so Metric is always cosine.
type ChromemStore struct {
	mu     sync.RWMutex
	db     *chromem.DB
	dims   int
	closed bool
}

var _ VectorStore = (*ChromemStore)(nil)

// NewChromemStore opens the chromem directory at path. An empty path keeps
// everything in memory. dims is the embedding dimension used for unranked reads.
func NewChromemStore(path string, dims int, compress bool) (*ChromemStore, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("chromem store needs a positive dimension, got %d", dims)
	}

	var db *chromem.DB
	if path == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		var err error
		db, err = chromem.NewPersistentDB(path, compress)
		if err != nil {
			return nil, fmt.Errorf("creating chromem DB: %w", err)
		}
	}
	return &ChromemStore{db: db, dims: dims}, nil
}

// embedFunc is never called: every document and query carries its embedding.
func embedFunc(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedding
}

// Metric implements VectorStore.
func (s *ChromemStore) Metric() Metric {
	return MetricCosine
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	c := s.db.GetCollection(name, embedFunc)
	if c == nil {
		return nil, ErrCollectionNotFound
	}
	return c, nil
}

// CreateCollection implements VectorStore.
func (s *ChromemStore) CreateCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, err := s.db.GetOrCreateCollection(name, nil, embedFunc)
	return err
}

// Upsert implements VectorStore.
func (s *ChromemStore) Upsert(ctx context.Context, collection string, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	c, err := s.db.GetOrCreateCollection(collection, nil, embedFunc)
	if err != nil {
		return fmt.Errorf("getting/creating collection %s: %w", collection, err)
	}
	if len(records) == 0 {
		return nil
	}

	// Validate the whole batch first so a bad record leaves the collection untouched.
	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record with empty id in %s", collection)
		}
		if len(r.Embedding) != s.dims {
			return ErrDimensionMismatch{Collection: collection, Expected: s.dims, Got: len(r.Embedding)}
		}
		meta := make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			meta[k] = v
		}
		emb := make([]float32, len(r.Embedding))
		copy(emb, r.Embedding)
		docs[i] = chromem.Document{ID: r.ID, Content: r.Document, Metadata: meta, Embedding: emb}
	}

	if err := c.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}
	return nil
}

// Query implements VectorStore.
func (s *ChromemStore) Query(ctx context.Context, collection string, vector []float32, k int, where Where) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != s.dims {
		return nil, ErrDimensionMismatch{Collection: collection, Expected: s.dims, Got: len(vector)}
	}

	matches, err := s.query(ctx, c, vector, k, where)
	if err != nil {
		return nil, err
	}
	res := &Result{Distances: []float32{}}
	for _, m := range matches {
		res.append(m, true)
	}
	return res, nil
}

func (s *ChromemStore) query(ctx context.Context, c *chromem.Collection, vector []float32, k int, where Where) ([]Match, error) {
	// chromem requires nResults <= document count.
	n := min(k, c.Count())
	if n <= 0 {
		return nil, nil
	}

	var filter map[string]string
	if len(where) > 0 {
		filter = map[string]string(where)
	}
	results, err := c.QueryEmbedding(ctx, vector, n, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", c.Name, err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{ID: r.ID, Document: r.Content, Metadata: r.Metadata, Distance: 1 - r.Similarity}
	}
	sortMatches(matches)
	return matches, nil
}

// Get implements VectorStore. chromem has no unranked scan, so Get probes with a
// unit vector over every document and reorders by id.
func (s *ChromemStore) Get(ctx context.Context, collection string, where Where, limit int) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}

	probe := make([]float32, s.dims)
	probe[0] = 1
	matches, err := s.query(ctx, c, probe, c.Count(), where)
	if err != nil {
		return nil, err
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	res := &Result{}
	for _, m := range matches {
		res.append(m, false)
	}
	return res, nil
}

// Delete implements VectorStore.
func (s *ChromemStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	c, err := s.collection(collection)
	if errors.Is(err, ErrCollectionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := c.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("deleting from %s: %w", collection, err)
	}
	return nil
}

// Count implements VectorStore.
func (s *ChromemStore) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	c, err := s.collection(collection)
	if err != nil {
		return 0, err
	}
	return c.Count(), nil
}

// Collections implements VectorStore.
func (s *ChromemStore) Collections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	names := make([]string, 0)
	for name := range s.db.ListCollections() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DropCollection implements VectorStore.
func (s *ChromemStore) DropCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if s.db.GetCollection(collection, embedFunc) == nil {
		return nil
	}
	return s.db.DeleteCollection(collection)
}

// Close implements VectorStore. chromem persists on every write, so there is
// nothing to flush.
func (s *ChromemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
