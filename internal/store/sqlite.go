package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// SQLiteOptions configures a SQLiteStore.
type SQLiteOptions struct {
	Metric Metric

	// ANN enables an in-memory HNSW graph per collection for unfiltered queries.
	ANN         bool
	ANNM        int
	ANNEfSearch int
}

// SQLiteStore implements VectorStore on a single SQLite database. Embeddings are
// float32 BLOBs, metadata is a JSON object, and queries scan exactly unless the
// ANN graph is enabled.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	opts   SQLiteOptions
	closed bool

	annMu sync.Mutex
	ann   map[string]*annIndex
}

var _ VectorStore = (*SQLiteStore)(nil)

// deleteBatch bounds the IN clause of batched deletes.
const deleteBatch = 500

// NewSQLiteStore opens or creates the database at path. An empty path opens an
// in-memory database.
func NewSQLiteStore(path string, opts SQLiteOptions) (*SQLiteStore, error) {
	if opts.Metric == "" {
		opts.Metric = MetricCosine
	}

	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		dsn = path
	}

	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: a single writer, and an in-memory database lives per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	s := &SQLiteStore{
		db:   db,
		path: path,
		opts: opts,
		ann:  make(map[string]*annIndex),
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- dimensions is 0 until the first vector is written
	CREATE TABLE IF NOT EXISTS collections (
		name       TEXT PRIMARY KEY,
		dimensions INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS records (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		document   TEXT NOT NULL,
		metadata   TEXT NOT NULL,
		embedding  BLOB NOT NULL,
		PRIMARY KEY (collection, id)
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Metric implements VectorStore.
func (s *SQLiteStore) Metric() Metric {
	return s.opts.Metric
}

// collectionDims returns the stored dimension of a collection.
func collectionDims(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, name string) (int, error) {
	var dims int
	err := q.QueryRowContext(ctx, `SELECT dimensions FROM collections WHERE name = ?`, name).Scan(&dims)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrCollectionNotFound
	}
	return dims, err
}

// CreateCollection creates an empty collection if it does not exist.
func (s *SQLiteStore) CreateCollection(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO collections (name, dimensions) VALUES (?, 0)`, name)
	return err
}

// Upsert implements VectorStore.
func (s *SQLiteStore) Upsert(ctx context.Context, collection string, records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO collections (name, dimensions) VALUES (?, 0)`, collection); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", collection, err)
	}
	if len(records) == 0 {
		return tx.Commit()
	}

	dims, err := collectionDims(ctx, tx, collection)
	if err != nil {
		return err
	}
	if dims == 0 {
		dims = len(records[0].Embedding)
		if _, err := tx.ExecContext(ctx, `UPDATE collections SET dimensions = ? WHERE name = ?`, dims, collection); err != nil {
			return fmt.Errorf("failed to set dimensions of %s: %w", collection, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (collection, id, document, metadata, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			document = excluded.document,
			metadata = excluded.metadata,
			embedding = excluded.embedding`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("record with empty id in %s", collection)
		}
		if len(r.Embedding) != dims {
			return ErrDimensionMismatch{Collection: collection, Expected: dims, Got: len(r.Embedding)}
		}
		meta, err := encodeMetadata(r.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of %s: %w", r.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, collection, r.ID, r.Document, meta, encodeVector(r.Embedding)); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}

	if idx := s.loadedANN(collection); idx != nil {
		for _, r := range records {
			idx.add(r.ID, r.Embedding)
		}
	}
	return nil
}

// whereClause renders an exact-match metadata filter. Rows whose metadata is not
// valid JSON never match.
func whereClause(where Where) (string, []any) {
	if len(where) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	args := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		sb.WriteString(` AND (CASE WHEN json_valid(metadata) THEN json_extract(metadata, ?) END) = ?`)
		args = append(args, `$."`+k+`"`, where[k])
	}
	return sb.String(), args
}

// Query implements VectorStore.
func (s *SQLiteStore) Query(ctx context.Context, collection string, vector []float32, k int, where Where) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	dims, err := collectionDims(ctx, s.db, collection)
	if err != nil {
		return nil, err
	}
	if k <= 0 || dims == 0 {
		return &Result{Distances: []float32{}}, nil
	}
	if len(vector) != dims {
		return nil, ErrDimensionMismatch{Collection: collection, Expected: dims, Got: len(vector)}
	}

	if s.opts.ANN && len(where) == 0 {
		return s.queryANN(ctx, collection, vector, k)
	}
	return s.queryScan(ctx, collection, vector, k, where)
}

func (s *SQLiteStore) queryScan(ctx context.Context, collection string, vector []float32, k int, where Where) (*Result, error) {
	clause, args := whereClause(where)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document, metadata, embedding FROM records WHERE collection = ?`+clause,
		append([]any{collection}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var id, doc, meta string
		var blob []byte
		if err := rows.Scan(&id, &doc, &meta, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil || len(vec) != len(vector) {
			slog.Warn("store_skip_corrupt_vector", slog.String("collection", collection), slog.String("id", id))
			continue
		}
		matches = append(matches, Match{
			ID:       id,
			Document: doc,
			Metadata: decodeMetadata(meta),
			Distance: s.opts.Metric.Distance(vector, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortMatches(matches)
	if len(matches) > k {
		matches = matches[:k]
	}

	res := &Result{Distances: []float32{}}
	for _, m := range matches {
		res.append(m, true)
	}
	return res, nil
}

// sortMatches orders by ascending distance, ties broken by id.
func sortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})
}

func (s *SQLiteStore) queryANN(ctx context.Context, collection string, vector []float32, k int) (*Result, error) {
	idx, err := s.annFor(ctx, collection)
	if err != nil {
		return nil, err
	}

	hits := idx.search(vector, k)
	res := &Result{Distances: []float32{}}
	if len(hits) == 0 {
		return res, nil
	}

	ids := make([]any, len(hits))
	placeholders := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.id
		placeholders[i] = "?"
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document, metadata FROM records WHERE collection = ? AND id IN (`+strings.Join(placeholders, ",")+`)`,
		append([]any{collection}, ids...)...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	found := make(map[string]Match, len(hits))
	for rows.Next() {
		var m Match
		var meta string
		if err := rows.Scan(&m.ID, &m.Document, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		m.Metadata = decodeMetadata(meta)
		found[m.ID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, h := range hits {
		m, ok := found[h.id]
		if !ok {
			continue
		}
		m.Distance = h.distance
		res.append(m, true)
	}
	return res, nil
}

// loadedANN returns the graph for collection if it has been built.
func (s *SQLiteStore) loadedANN(collection string) *annIndex {
	if !s.opts.ANN {
		return nil
	}
	s.annMu.Lock()
	defer s.annMu.Unlock()
	return s.ann[collection]
}

// annFor returns the graph for collection, building it from stored vectors on first use.
func (s *SQLiteStore) annFor(ctx context.Context, collection string) (*annIndex, error) {
	s.annMu.Lock()
	defer s.annMu.Unlock()

	if idx, ok := s.ann[collection]; ok {
		return idx, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM records WHERE collection = ?`, collection)
	if err != nil {
		return nil, fmt.Errorf("load vectors of %s: %w", collection, err)
	}
	defer rows.Close()

	idx := newANNIndex(s.opts.Metric, s.opts.ANNM, s.opts.ANNEfSearch)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			continue
		}
		idx.add(id, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slog.Debug("ann_index_built", slog.String("collection", collection), slog.Int("vectors", idx.len()))
	s.ann[collection] = idx
	return idx, nil
}

// Get implements VectorStore.
func (s *SQLiteStore) Get(ctx context.Context, collection string, where Where, limit int) (*Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	if _, err := collectionDims(ctx, s.db, collection); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}

	clause, args := whereClause(where)
	args = append([]any{collection}, args...)
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document, metadata FROM records WHERE collection = ?`+clause+` ORDER BY id LIMIT ?`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", collection, err)
	}
	defer rows.Close()

	res := &Result{}
	for rows.Next() {
		var m Match
		var meta string
		if err := rows.Scan(&m.ID, &m.Document, &meta); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		m.Metadata = decodeMetadata(meta)
		res.append(m, false)
	}
	return res, rows.Err()
}

// Delete implements VectorStore.
func (s *SQLiteStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for start := 0; start < len(ids); start += deleteBatch {
		batch := ids[start:min(start+deleteBatch, len(ids))]
		placeholders := make([]string, len(batch))
		args := make([]any, 0, len(batch)+1)
		args = append(args, collection)
		for i, id := range batch {
			placeholders[i] = "?"
			args = append(args, id)
		}
		q := `DELETE FROM records WHERE collection = ? AND id IN (` + strings.Join(placeholders, ",") + `)`
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", collection, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}

	if idx := s.loadedANN(collection); idx != nil {
		for _, id := range ids {
			idx.remove(id)
		}
	}
	return nil
}

// Count implements VectorStore.
func (s *SQLiteStore) Count(ctx context.Context, collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	if _, err := collectionDims(ctx, s.db, collection); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE collection = ?`, collection).Scan(&n)
	return n, err
}

// Collections implements VectorStore.
func (s *SQLiteStore) Collections(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// DropCollection implements VectorStore.
func (s *SQLiteStore) DropCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, collection); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, collection); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	s.annMu.Lock()
	delete(s.ann, collection)
	s.annMu.Unlock()
	return nil
}

// Close checkpoints the WAL and closes the database. Calling Close twice is a no-op.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.path != "" {
		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			slog.Debug("sqlite_checkpoint_failed", slog.String("error", err.Error()))
		}
	}
	return s.db.Close()
}
