package store

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Backend names.
const (
	BackendSQLite  = "sqlite"
	BackendChromem = "chromem"
)

// Persisted file and directory names inside the index directory.
const (
	SQLiteFileName = "store.db"
	ChromemDirName = "chromem"
)

// Config selects and configures a backend.
type Config struct {
	// Backend is "sqlite" (default) or "chromem".
	Backend string

	// Dir is the index directory. Empty keeps the store in memory.
	Dir string

	Metric Metric

	// Dimensions is required by chromem for unranked reads.
	Dimensions int

	ANN         bool
	ANNM        int
	ANNEfSearch int

	// Compress gzips chromem's files.
	Compress bool
}

// Open constructs the configured backend.
func Open(cfg Config) (VectorStore, error) {
	metric := cfg.Metric
	if metric == "" {
		metric = MetricCosine
	}

	switch strings.ToLower(cfg.Backend) {
	case "", BackendSQLite:
		path := ""
		if cfg.Dir != "" {
			path = filepath.Join(cfg.Dir, SQLiteFileName)
		}
		return NewSQLiteStore(path, SQLiteOptions{
			Metric:      metric,
			ANN:         cfg.ANN,
			ANNM:        cfg.ANNM,
			ANNEfSearch: cfg.ANNEfSearch,
		})

	case BackendChromem:
		if metric != MetricCosine {
			return nil, fmt.Errorf("chromem backend supports only the cosine metric, got %s", metric)
		}
		path := ""
		if cfg.Dir != "" {
			path = filepath.Join(cfg.Dir, ChromemDirName)
		}
		return NewChromemStore(path, cfg.Dimensions, cfg.Compress)

	default:
		return nil, fmt.Errorf("unknown store backend %q (valid: sqlite, chromem)", cfg.Backend)
	}
}
