// Package config loads filescout configuration from defaults, an optional
// YAML file, and FILESCOUT_* environment overrides, in that order of
// increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete filescout configuration.
type Config struct {
	Version    int              `yaml:"version"`
	Paths      PathsConfig      `yaml:"paths"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Indexing   IndexingConfig   `yaml:"indexing"`
	Search     SearchConfig     `yaml:"search"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PathsConfig configures where filescout keeps its data.
type PathsConfig struct {
	// DataDir holds the metadata database and vector index files.
	// Defaults to ~/.filescout.
	DataDir string `yaml:"data_dir"`
}

// ExtractionConfig configures the enrichment providers.
type ExtractionConfig struct {
	// Provider selects the extraction backend: "ollama" (local, default),
	// "openai" (cloud), or "none" (metadata-only indexing).
	Provider string `yaml:"provider"`

	// VisionModel is the local vision model for captions and tags.
	VisionModel string `yaml:"vision_model"`

	// OCRModel is the local vision model used for text extraction.
	// Defaults to the same model as VisionModel.
	OCRModel string `yaml:"ocr_model"`

	// OllamaHost is the Ollama API endpoint (default: http://localhost:11434).
	OllamaHost string `yaml:"ollama_host"`

	// OpenAIModel is the cloud vision model for the fallback provider.
	OpenAIModel string `yaml:"openai_model"`

	// CloudFallback enables falling back to the cloud provider when the
	// local provider is unavailable. Requires OPENAI_API_KEY.
	CloudFallback bool `yaml:"cloud_fallback"`

	// RequestTimeout is the per-file extraction timeout.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// MaxRetries bounds retry attempts for transient provider failures.
	MaxRetries int `yaml:"max_retries"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "ollama" (default), "openai", or
	// "static" (deterministic, offline).
	Provider string `yaml:"provider"`

	// Model is the embedding model name.
	Model string `yaml:"model"`

	// Dimensions is the embedding dimensionality. 0 means auto-detect
	// from the provider.
	Dimensions int `yaml:"dimensions"`

	// OllamaHost is the Ollama API endpoint (default: http://localhost:11434).
	OllamaHost string `yaml:"ollama_host"`
}

// IndexingConfig configures the ingestion pipeline.
type IndexingConfig struct {
	// Workers is the extraction worker pool size.
	Workers int `yaml:"workers"`

	// MaxFileSizeMB skips files larger than this (default: 100).
	MaxFileSizeMB int `yaml:"max_file_size_mb"`

	// WatchDebounce is the settle window for watch mode.
	WatchDebounce string `yaml:"watch_debounce"`
}

// SearchConfig configures the query engine.
type SearchConfig struct {
	// MaxResults caps the number of results returned (default: 20).
	MaxResults int `yaml:"max_results"`

	// SemanticCandidates is how many nearest neighbours the semantic leg
	// fetches before intersecting with predicate candidates.
	SemanticCandidates int `yaml:"semantic_candidates"`

	// CacheSize is the record cache capacity in the query engine.
	CacheSize int `yaml:"cache_size"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: DefaultDataDir(),
		},
		Extraction: ExtractionConfig{
			Provider:       "ollama",
			VisionModel:    "llava:7b",
			OCRModel:       "",
			OllamaHost:     "http://localhost:11434",
			OpenAIModel:    "gpt-4o-mini",
			CloudFallback:  false,
			RequestTimeout: 60 * time.Second,
			MaxRetries:     3,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 0,
			OllamaHost: "http://localhost:11434",
		},
		Indexing: IndexingConfig{
			Workers:       runtime.NumCPU(),
			MaxFileSizeMB: 100,
			WatchDebounce: "500ms",
		},
		Search: SearchConfig{
			MaxResults:         20,
			SemanticCandidates: 50,
			CacheSize:          1000,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// DefaultDataDir returns the default data directory (~/.filescout).
// Falls back to temp directory if home directory is unavailable.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".filescout")
	}
	return filepath.Join(home, ".filescout")
}

// DefaultConfigPath returns the path to the configuration file.
// It follows XDG Base Directory conventions:
//   - $XDG_CONFIG_HOME/filescout/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/filescout/config.yaml (default)
func DefaultConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "filescout", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "filescout", "config.yaml")
	}
	return filepath.Join(home, ".config", "filescout", "config.yaml")
}

// Load loads configuration with increasing precedence:
//  1. Hardcoded defaults
//  2. Config file (explicit path, or the default location if it exists)
//  3. Environment variables (FILESCOUT_*)
func Load(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		if p := DefaultConfigPath(); fileExists(p) {
			path = p
		}
	}
	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
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

	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}

	if other.Extraction.Provider != "" {
		c.Extraction.Provider = other.Extraction.Provider
	}
	if other.Extraction.VisionModel != "" {
		c.Extraction.VisionModel = other.Extraction.VisionModel
	}
	if other.Extraction.OCRModel != "" {
		c.Extraction.OCRModel = other.Extraction.OCRModel
	}
	if other.Extraction.OllamaHost != "" {
		c.Extraction.OllamaHost = other.Extraction.OllamaHost
	}
	if other.Extraction.OpenAIModel != "" {
		c.Extraction.OpenAIModel = other.Extraction.OpenAIModel
	}
	if other.Extraction.CloudFallback {
		c.Extraction.CloudFallback = true
	}
	if other.Extraction.RequestTimeout != 0 {
		c.Extraction.RequestTimeout = other.Extraction.RequestTimeout
	}
	if other.Extraction.MaxRetries != 0 {
		c.Extraction.MaxRetries = other.Extraction.MaxRetries
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}

	if other.Indexing.Workers != 0 {
		c.Indexing.Workers = other.Indexing.Workers
	}
	if other.Indexing.MaxFileSizeMB != 0 {
		c.Indexing.MaxFileSizeMB = other.Indexing.MaxFileSizeMB
	}
	if other.Indexing.WatchDebounce != "" {
		c.Indexing.WatchDebounce = other.Indexing.WatchDebounce
	}

	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.SemanticCandidates != 0 {
		c.Search.SemanticCandidates = other.Search.SemanticCandidates
	}
	if other.Search.CacheSize != 0 {
		c.Search.CacheSize = other.Search.CacheSize
	}

	if other.Logging.Level != "" {
		c.Logging.Level = other.Logging.Level
	}
	if other.Logging.File != "" {
		c.Logging.File = other.Logging.File
	}
}

// applyEnvOverrides applies FILESCOUT_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("FILESCOUT_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("FILESCOUT_EXTRACTION_PROVIDER"); v != "" {
		c.Extraction.Provider = v
	}
	if v := os.Getenv("FILESCOUT_VISION_MODEL"); v != "" {
		c.Extraction.VisionModel = v
	}
	if v := os.Getenv("FILESCOUT_OLLAMA_HOST"); v != "" {
		c.Extraction.OllamaHost = v
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("FILESCOUT_CLOUD_FALLBACK"); v != "" {
		c.Extraction.CloudFallback = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("FILESCOUT_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("FILESCOUT_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("FILESCOUT_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Indexing.Workers = n
		}
	}
	if v := os.Getenv("FILESCOUT_MAX_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.MaxResults = n
		}
	}
	if v := os.Getenv("FILESCOUT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	validExtraction := map[string]bool{"ollama": true, "openai": true, "none": true}
	if !validExtraction[strings.ToLower(c.Extraction.Provider)] {
		return fmt.Errorf("extraction.provider must be 'ollama', 'openai', or 'none', got %s", c.Extraction.Provider)
	}

	validEmbedders := map[string]bool{"ollama": true, "openai": true, "static": true}
	if !validEmbedders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'ollama', 'openai', or 'static', got %s", c.Embeddings.Provider)
	}

	if c.Indexing.Workers < 1 {
		return fmt.Errorf("indexing.workers must be positive, got %d", c.Indexing.Workers)
	}
	if c.Search.MaxResults < 1 {
		return fmt.Errorf("search.max_results must be positive, got %d", c.Search.MaxResults)
	}
	if c.Extraction.MaxRetries < 0 {
		return fmt.Errorf("extraction.max_retries must be non-negative, got %d", c.Extraction.MaxRetries)
	}

	if c.Indexing.WatchDebounce != "" {
		if _, err := time.ParseDuration(c.Indexing.WatchDebounce); err != nil {
			return fmt.Errorf("indexing.watch_debounce is not a valid duration: %w", err)
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}

	return nil
}

// WatchDebounceDuration returns the parsed watch debounce window.
func (c *Config) WatchDebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Indexing.WatchDebounce)
	if err != nil || d <= 0 {
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

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
