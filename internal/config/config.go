package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Project config file names, in lookup order.
const (
	ProjectConfigFile    = ".codeindex.yaml"
	ProjectConfigFileAlt = ".codeindex.yml"
)

// DefaultIndexDir is the index directory created under the project root.
const DefaultIndexDir = ".codeindex"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CODEINDEX_"

// Config is the complete codeindex configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Watch      WatchConfig      `yaml:"watch" json:"watch"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// PathsConfig controls file discovery.
type PathsConfig struct {
	// IndexDir is the index directory, relative to the project root unless absolute.
	IndexDir string `yaml:"index_dir" json:"index_dir"`

	// Exclude holds gitignore-style patterns relative to the project root.
	Exclude []string `yaml:"exclude" json:"exclude"`

	RespectGitignore bool  `yaml:"respect_gitignore" json:"respect_gitignore"`
	MaxFileSize      int64 `yaml:"max_file_size" json:"max_file_size"`
}

// IndexConfig controls parsing and stale-entry handling.
type IndexConfig struct {
	// ChunkLines is the window size for fallback text files.
	ChunkLines int `yaml:"chunk_lines" json:"chunk_lines"`

	// FallbackExtensions are indexed as fixed-size text windows.
	FallbackExtensions []string `yaml:"fallback_extensions" json:"fallback_extensions"`

	// PruneStale deletes stored elements of a file that a new run no longer produces.
	PruneStale bool `yaml:"prune_stale" json:"prune_stale"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is static, ollama or fastembed.
	Provider    string `yaml:"provider" json:"provider"`
	Model       string `yaml:"model" json:"model"`
	Dimensions  int    `yaml:"dimensions" json:"dimensions"`
	BatchSize   int    `yaml:"batch_size" json:"batch_size"`
	Concurrency int    `yaml:"concurrency" json:"concurrency"`
	Timeout     string `yaml:"timeout" json:"timeout"`
	MaxRetries  int    `yaml:"max_retries" json:"max_retries"`
	OllamaHost  string `yaml:"ollama_host" json:"ollama_host"`

	// CacheSize is the LRU size for repeated query embeddings (0 disables).
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// ModelCacheDir holds downloaded fastembed models.
	ModelCacheDir string `yaml:"model_cache_dir" json:"model_cache_dir"`
}

// StoreConfig selects the vector store.
type StoreConfig struct {
	Backend     string `yaml:"backend" json:"backend"`
	Metric      string `yaml:"metric" json:"metric"`
	ANN         bool   `yaml:"ann" json:"ann"`
	ANNM        int    `yaml:"ann_m" json:"ann_m"`
	ANNEfSearch int    `yaml:"ann_ef_search" json:"ann_ef_search"`
	Compress    bool   `yaml:"compress" json:"compress"`
}

// SearchConfig shapes query results.
type SearchConfig struct {
	MaxResults int `yaml:"max_results" json:"max_results"`

	// MaxDistance normalizes cosine and dot distances into similarity.
	MaxDistance float64 `yaml:"max_distance" json:"max_distance"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce string `yaml:"debounce" json:"debounce"`
}

// ServerConfig configures the MCP server and logging.
type ServerConfig struct {
	LogLevel    string `yaml:"log_level" json:"log_level"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
}

// NewConfig returns a Config holding the defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			IndexDir:    DefaultIndexDir,
			Exclude:     []string{},
			MaxFileSize: 10 * 1024 * 1024,
		},
		Index: IndexConfig{
			ChunkLines: 50,
			FallbackExtensions: []string{
				".jsx", ".txt", ".rst", ".yaml", ".yml", ".toml", ".json", ".sh", ".cfg", ".ini",
			},
			PruneStale: false,
		},
		Embeddings: EmbeddingsConfig{
			Provider:    "static",
			Model:       "",
			Dimensions:  0,
			BatchSize:   32,
			Concurrency: 2,
			Timeout:     "60s",
			MaxRetries:  3,
			OllamaHost:  "",
			CacheSize:   1000,
		},
		Store: StoreConfig{
			Backend:     "sqlite",
			Metric:      "cosine",
			ANN:         false,
			ANNM:        16,
			ANNEfSearch: 64,
			Compress:    true,
		},
		Search: SearchConfig{
			MaxResults:  5,
			MaxDistance: 1,
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
		Server: ServerConfig{
			LogLevel: "info",
		},
	}
}

// GetUserConfigPath returns the user/global configuration file, following XDG:
// $XDG_CONFIG_HOME/codeindex/config.yaml, else ~/.config/codeindex/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "codeindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "codeindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "codeindex", "config.yaml")
}

// Load resolves configuration for the project at dir, in increasing precedence:
//  1. Defaults
//  2. User config (GetUserConfigPath)
//  3. Project config (.codeindex.yaml or .codeindex.yml in dir)
//  4. CODEINDEX_* environment variables
//
// The result is validated.
func Load(dir string) (*Config, error) {
	return LoadFile(dir, "")
}

// LoadFile is Load with an explicit project config file replacing the lookup in dir.
func LoadFile(dir, explicit string) (*Config, error) {
	cfg := NewConfig()

	if user := GetUserConfigPath(); fileExists(user) {
		if err := cfg.loadYAML(user); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	project := explicit
	if project == "" {
		project = FindProjectConfig(dir)
	}
	if project != "" {
		if err := cfg.loadYAML(project); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// FindProjectConfig returns the project config file in dir, or "" if none exists.
func FindProjectConfig(dir string) string {
	for _, name := range []string{ProjectConfigFile, ProjectConfigFileAlt} {
		if p := filepath.Join(dir, name); fileExists(p) {
			return p
		}
	}
	return ""
}

// loadYAML decodes a file over the current values. Keys absent from the file
// keep their value; unknown keys are an error.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies CODEINDEX_* variables (highest precedence).
func (c *Config) applyEnvOverrides() error {
	str := map[string]*string{
		"EMBEDDINGS_PROVIDER": &c.Embeddings.Provider,
		"EMBEDDINGS_MODEL":    &c.Embeddings.Model,
		"OLLAMA_HOST":         &c.Embeddings.OllamaHost,
		"STORE_BACKEND":       &c.Store.Backend,
		"STORE_METRIC":        &c.Store.Metric,
		"INDEX_DIR":           &c.Paths.IndexDir,
		"LOG_LEVEL":           &c.Server.LogLevel,
		"METRICS_ADDR":        &c.Server.MetricsAddr,
		"WATCH_DEBOUNCE":      &c.Watch.Debounce,
	}
	for key, dst := range str {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"EMBEDDINGS_DIMENSIONS": &c.Embeddings.Dimensions,
		"MAX_RESULTS":           &c.Search.MaxResults,
		"CHUNK_LINES":           &c.Index.ChunkLines,
	}
	for key, dst := range ints {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s%s must be an integer, got %q", EnvPrefix, key, v)
			}
			*dst = n
		}
	}

	bools := map[string]*bool{
		"STORE_ANN":         &c.Store.ANN,
		"PRUNE_STALE":       &c.Index.PruneStale,
		"RESPECT_GITIGNORE": &c.Paths.RespectGitignore,
	}
	for key, dst := range bools {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s must be a boolean, got %q", EnvPrefix, key, v)
			}
			*dst = b
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Index.ChunkLines <= 0 {
		return fmt.Errorf("index.chunk_lines must be positive, got %d", c.Index.ChunkLines)
	}
	if c.Paths.MaxFileSize < 0 {
		return fmt.Errorf("paths.max_file_size must be non-negative, got %d", c.Paths.MaxFileSize)
	}
	if strings.TrimSpace(c.Paths.IndexDir) == "" {
		return fmt.Errorf("paths.index_dir must not be empty")
	}

	validProviders := map[string]bool{"static": true, "ollama": true, "fastembed": true}
	if !validProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'static', 'ollama' or 'fastembed', got %s", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings.dimensions must be non-negative, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchSize < 0 || c.Embeddings.BatchSize > 256 {
		return fmt.Errorf("embeddings.batch_size must be between 0 and 256, got %d", c.Embeddings.BatchSize)
	}
	if c.Embeddings.Timeout != "" {
		if _, err := time.ParseDuration(c.Embeddings.Timeout); err != nil {
			return fmt.Errorf("embeddings.timeout: %w", err)
		}
	}

	validBackends := map[string]bool{"sqlite": true, "chromem": true}
	backend := strings.ToLower(c.Store.Backend)
	if !validBackends[backend] {
		return fmt.Errorf("store.backend must be 'sqlite' or 'chromem', got %s", c.Store.Backend)
	}
	validMetrics := map[string]bool{"cosine": true, "cos": true, "l2": true, "euclidean": true, "dot": true, "ip": true}
	metric := strings.ToLower(c.Store.Metric)
	if !validMetrics[metric] {
		return fmt.Errorf("store.metric must be 'cosine', 'l2' or 'dot', got %s", c.Store.Metric)
	}
	if backend == "chromem" && metric != "cosine" && metric != "cos" {
		return fmt.Errorf("store.backend 'chromem' supports only the cosine metric, got %s", c.Store.Metric)
	}

	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.Search.MaxDistance <= 0 {
		return fmt.Errorf("search.max_distance must be positive, got %g", c.Search.MaxDistance)
	}

	if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
		return fmt.Errorf("watch.debounce: %w", err)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}
	return nil
}

// IndexPath resolves the index directory against the project root.
func (c *Config) IndexPath(root string) string {
	if filepath.IsAbs(c.Paths.IndexDir) {
		return c.Paths.IndexDir
	}
	return filepath.Join(root, c.Paths.IndexDir)
}

// EmbedTimeout returns the parsed embedding timeout, or 0 when unset.
func (c *Config) EmbedTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Embeddings.Timeout)
	return d
}

// WatchDebounce returns the parsed debounce interval.
func (c *Config) WatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
