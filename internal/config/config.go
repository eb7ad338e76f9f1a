package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the complete cascade engine configuration.
// It carries the data directory, the cascade and embedder tunables, and the
// store and server settings.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	DataDir    string           `yaml:"data_dir" json:"data_dir"`
	Cascade    CascadeConfig    `yaml:"cascade" json:"cascade"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// CascadeConfig configures the four-layer retrieval pipeline.
type CascadeConfig struct {
	// CacheCapacity is the QueryCache's maximum entry count (LRU eviction).
	CacheCapacity int `yaml:"cache_capacity" json:"cache_capacity"`

	// FtsCandidateCap bounds how many BM25 candidates the FtsSearcher returns
	// to the HybridReranker.
	FtsCandidateCap int `yaml:"fts_candidate_cap" json:"fts_candidate_cap"`

	// HybridAlpha weights vector similarity against normalized BM25 score in
	// the hybrid blend: score_hybrid = alpha*sim + (1-alpha)*score_fts_norm.
	HybridAlpha float64 `yaml:"hybrid_alpha" json:"hybrid_alpha"`

	// HybridThreshold is the minimum similarity (tau) a hybrid candidate must
	// clear to survive, unless its FTS score alone already clears it.
	HybridThreshold float64 `yaml:"hybrid_threshold" json:"hybrid_threshold"`

	// MaxResults is the default result-set size when a caller omits one.
	MaxResults int `yaml:"max_results" json:"max_results"`
}

// EmbeddingsConfig configures the embedder used by the hybrid layer.
type EmbeddingsConfig struct {
	// Enabled toggles the embedder. When false, the cascade serves layers
	// 1-3 only and never attempts layer 4.
	Enabled bool `yaml:"embedder_enabled" json:"embedder_enabled"`

	// Dimensions is the fixed embedding width D (spec default 384).
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// CacheCapacity bounds the embed-result memoization layer in front of
	// the embedder (distinct from the cascade's QueryCache).
	CacheCapacity int `yaml:"cache_capacity" json:"cache_capacity"`
}

// StoreConfig configures the persistent Store and its FTS backend.
type StoreConfig struct {
	// Backend selects the full-text index implementation.
	// Options: "sqlite" (default, FTS5 + BM25, WAL mode) or "bleve".
	Backend string `yaml:"bm25_backend" json:"bm25_backend"`

	// SQLiteCacheMB sets SQLite's page cache size in megabytes.
	SQLiteCacheMB int `yaml:"sqlite_cache_mb" json:"sqlite_cache_mb"`

	// CompactionTombstoneFraction is the fraction of tombstoned rows in the
	// VectorIndex's dense matrix at or above which an ingest compacts it.
	CompactionTombstoneFraction float64 `yaml:"compaction_tombstone_fraction" json:"compaction_tombstone_fraction"`
}

// ServerConfig configures the MCP server and CLI transport.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	Port      int    `yaml:"port" json:"port"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a new Config with the spec's default values.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		DataDir: defaultDataDir(),
		Cascade: CascadeConfig{
			CacheCapacity:   512,
			FtsCandidateCap: 20,
			HybridAlpha:     0.7,
			HybridThreshold: 0.5,
			MaxResults:      5,
		},
		Embeddings: EmbeddingsConfig{
			Enabled:       true,
			Dimensions:    384,
			CacheCapacity: 256,
		},
		Store: StoreConfig{
			Backend:                     "sqlite",
			SQLiteCacheMB:               64,
			CompactionTombstoneFraction: 0.25,
		},
		Server: ServerConfig{
			Transport: "stdio",
			Port:      8765,
			LogLevel:  "info",
		},
	}
}

// defaultDataDir returns the default directory for the document store,
// vector index, and mapping file (~/.cascade-docs/data).
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".cascade-docs", "data")
	}
	return filepath.Join(home, ".cascade-docs", "data")
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/cascade-docs/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/cascade-docs/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "cascade-docs", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "cascade-docs", "config.yaml")
	}
	return filepath.Join(home, ".config", "cascade-docs", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration from the specified directory, applying overrides
// in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/cascade-docs/config.yaml)
//  3. Project config (.cascade-docs.yaml in dir)
//  4. Environment variables (CASCADE_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .cascade-docs.yaml or .yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".cascade-docs.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".cascade-docs.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	// Seed the toggle from the current value so a file without an
	// embedder_enabled key leaves it unchanged.
	parsed := Config{Embeddings: EmbeddingsConfig{Enabled: c.Embeddings.Enabled}}
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}

	if other.Cascade.CacheCapacity != 0 {
		c.Cascade.CacheCapacity = other.Cascade.CacheCapacity
	}
	if other.Cascade.FtsCandidateCap != 0 {
		c.Cascade.FtsCandidateCap = other.Cascade.FtsCandidateCap
	}
	if other.Cascade.HybridAlpha != 0 {
		c.Cascade.HybridAlpha = other.Cascade.HybridAlpha
	}
	if other.Cascade.HybridThreshold != 0 {
		c.Cascade.HybridThreshold = other.Cascade.HybridThreshold
	}
	if other.Cascade.MaxResults != 0 {
		c.Cascade.MaxResults = other.Cascade.MaxResults
	}

	// Embedder can be explicitly disabled, so merge whenever any embeddings
	// field was set in the overriding document.
	if other.Embeddings.Dimensions != 0 || other.Embeddings.CacheCapacity != 0 || other.Embeddings.Enabled != c.Embeddings.Enabled {
		c.Embeddings.Enabled = other.Embeddings.Enabled
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.CacheCapacity != 0 {
		c.Embeddings.CacheCapacity = other.Embeddings.CacheCapacity
	}

	if other.Store.Backend != "" {
		c.Store.Backend = other.Store.Backend
	}
	if other.Store.SQLiteCacheMB != 0 {
		c.Store.SQLiteCacheMB = other.Store.SQLiteCacheMB
	}
	if other.Store.CompactionTombstoneFraction != 0 {
		c.Store.CompactionTombstoneFraction = other.Store.CompactionTombstoneFraction
	}

	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies CASCADE_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CASCADE_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("CASCADE_EMBEDDER_ENABLED"); v != "" {
		c.Embeddings.Enabled = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("CASCADE_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Cascade.CacheCapacity = n
		}
	}
	if v := os.Getenv("CASCADE_FTS_CANDIDATE_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Cascade.FtsCandidateCap = n
		}
	}
	if v := os.Getenv("CASCADE_HYBRID_ALPHA"); v != "" {
		if f, err := parseFloat64(v); err == nil && f >= 0 && f <= 1 {
			c.Cascade.HybridAlpha = f
		}
	}
	if v := os.Getenv("CASCADE_HYBRID_THRESHOLD"); v != "" {
		if f, err := parseFloat64(v); err == nil && f >= 0 && f <= 1 {
			c.Cascade.HybridThreshold = f
		}
	}
	if v := os.Getenv("CASCADE_BM25_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("CASCADE_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("CASCADE_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}

	if c.Cascade.CacheCapacity <= 0 {
		return fmt.Errorf("cascade.cache_capacity must be positive, got %d", c.Cascade.CacheCapacity)
	}
	if c.Cascade.FtsCandidateCap <= 0 {
		return fmt.Errorf("cascade.fts_candidate_cap must be positive, got %d", c.Cascade.FtsCandidateCap)
	}
	if c.Cascade.HybridAlpha < 0 || c.Cascade.HybridAlpha > 1 {
		return fmt.Errorf("cascade.hybrid_alpha must be between 0 and 1, got %f", c.Cascade.HybridAlpha)
	}
	if c.Cascade.HybridThreshold < 0 || c.Cascade.HybridThreshold > 1 {
		return fmt.Errorf("cascade.hybrid_threshold must be between 0 and 1, got %f", c.Cascade.HybridThreshold)
	}
	if c.Cascade.MaxResults <= 0 {
		return fmt.Errorf("cascade.max_results must be positive, got %d", c.Cascade.MaxResults)
	}

	if c.Embeddings.Enabled && c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("embeddings.dimensions must be positive when the embedder is enabled, got %d", c.Embeddings.Dimensions)
	}

	validBackends := map[string]bool{"sqlite": true, "bleve": true}
	if !validBackends[strings.ToLower(c.Store.Backend)] {
		return fmt.Errorf("store.bm25_backend must be 'sqlite' or 'bleve', got %s", c.Store.Backend)
	}
	if c.Store.CompactionTombstoneFraction < 0 || c.Store.CompactionTombstoneFraction > 1 {
		return fmt.Errorf("store.compaction_tombstone_fraction must be between 0 and 1, got %f", c.Store.CompactionTombstoneFraction)
	}

	validTransports := map[string]bool{"stdio": true, "sse": true}
	if !validTransports[strings.ToLower(c.Server.Transport)] {
		return fmt.Errorf("server.transport must be 'stdio' or 'sse', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
