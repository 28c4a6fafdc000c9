// Package config loads the layered YAML configuration for a demongrep
// project root: hardcoded defaults, an optional .demongrep.yml in the
// project root, then environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the complete demongrep configuration, covering the
// chunking, embedding, retrieval, and watch layers.
type Config struct {
	Version   int             `yaml:"version"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ChunkingConfig configures the semantic chunker.
type ChunkingConfig struct {
	MaxLines     int `yaml:"max_lines"`
	MaxChars     int `yaml:"max_chars"`
	OverlapLines int `yaml:"overlap_lines"`
	ContextLines int `yaml:"context_lines"`
}

// EmbeddingConfig configures the embedding service.
type EmbeddingConfig struct {
	Model      string `yaml:"model"`
	BatchSize  int    `yaml:"batch_size"`
	Dimensions int    `yaml:"dimensions"`
}

// RetrievalConfig configures the hybrid retriever.
type RetrievalConfig struct {
	RRFK         int     `yaml:"rrf_k"`
	Rerank       bool    `yaml:"rerank"`
	RerankTop    int     `yaml:"rerank_top"`
	RerankWeight float64 `yaml:"rerank_weight"`
}

// WatchConfig configures the watch loop.
type WatchConfig struct {
	DebounceMS int `yaml:"debounce_ms"`
}

// embedBatchSizeEnv overrides the embedding batch size; it is the only
// environment knob the core recognizes.
const embedBatchSizeEnv = "DEMONGREP_EMBED_BATCH_SIZE"

// NewConfig returns a Config populated with the system's defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Chunking: ChunkingConfig{
			MaxLines:     120,
			MaxChars:     4000,
			OverlapLines: 10,
			ContextLines: 3,
		},
		Embedding: EmbeddingConfig{
			Model:      "",
			BatchSize:  32,
			Dimensions: 0, // 0 means auto-detect from the embedder
		},
		Retrieval: RetrievalConfig{
			RRFK:         20,
			Rerank:       false,
			RerankTop:    50,
			RerankWeight: 0.575,
		},
		Watch: WatchConfig{
			DebounceMS: 300,
		},
	}
}

// Load reads configuration for the project rooted at dir: defaults, then
// <dir>/.demongrep.yml if present, then environment overrides.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".demongrep.yml", ".demongrep.yaml"} {
		path := filepath.Join(dir, name)
		if !fileExists(path) {
			continue
		}
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
	return nil
}

func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Chunking.MaxLines != 0 {
		c.Chunking.MaxLines = other.Chunking.MaxLines
	}
	if other.Chunking.MaxChars != 0 {
		c.Chunking.MaxChars = other.Chunking.MaxChars
	}
	if other.Chunking.OverlapLines != 0 {
		c.Chunking.OverlapLines = other.Chunking.OverlapLines
	}
	if other.Chunking.ContextLines != 0 {
		c.Chunking.ContextLines = other.Chunking.ContextLines
	}
	if other.Embedding.Model != "" {
		c.Embedding.Model = other.Embedding.Model
	}
	if other.Embedding.BatchSize != 0 {
		c.Embedding.BatchSize = other.Embedding.BatchSize
	}
	if other.Embedding.Dimensions != 0 {
		c.Embedding.Dimensions = other.Embedding.Dimensions
	}
	if other.Retrieval.RRFK != 0 {
		c.Retrieval.RRFK = other.Retrieval.RRFK
	}
	if other.Retrieval.Rerank {
		c.Retrieval.Rerank = other.Retrieval.Rerank
	}
	if other.Retrieval.RerankTop != 0 {
		c.Retrieval.RerankTop = other.Retrieval.RerankTop
	}
	if other.Retrieval.RerankWeight != 0 {
		c.Retrieval.RerankWeight = other.Retrieval.RerankWeight
	}
	if other.Watch.DebounceMS != 0 {
		c.Watch.DebounceMS = other.Watch.DebounceMS
	}
}

// applyEnvOverrides applies the single recognized environment knob.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(embedBatchSizeEnv); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embedding.BatchSize = n
		}
	}
}

// Validate rejects configurations the core components cannot run with.
func (c *Config) Validate() error {
	if c.Chunking.MaxLines <= 0 {
		return fmt.Errorf("chunking.max_lines must be positive, got %d", c.Chunking.MaxLines)
	}
	if c.Chunking.MaxChars <= 0 {
		return fmt.Errorf("chunking.max_chars must be positive, got %d", c.Chunking.MaxChars)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Retrieval.RRFK <= 0 {
		return fmt.Errorf("retrieval.rrf_k must be positive, got %d", c.Retrieval.RRFK)
	}
	if c.Retrieval.RerankWeight < 0 || c.Retrieval.RerankWeight > 1 {
		return fmt.Errorf("retrieval.rerank_weight must be between 0 and 1, got %f", c.Retrieval.RerankWeight)
	}
	if c.Watch.DebounceMS < 0 {
		return fmt.Errorf("watch.debounce_ms must be non-negative, got %d", c.Watch.DebounceMS)
	}
	return nil
}

// WriteYAML writes the configuration to path as YAML.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// FindProjectRoot walks up from startDir looking for a .git directory or a
// .demongrep.yml/.yaml file, falling back to startDir if neither is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".demongrep.yml")) ||
			fileExists(filepath.Join(currentDir, ".demongrep.yaml")) {
			return currentDir, nil
		}
		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// DefaultIndexWorkers returns a worker-pool size equal to the host's CPU
// count.
func DefaultIndexWorkers() int {
	return runtime.NumCPU()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
