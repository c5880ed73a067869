// Package config loads and validates the engine configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cyzus/suzent-sub001/memory"
)

// Config is the full engine configuration.
type Config struct {
	// DataDir roots all persisted data: source logs, the search index,
	// and session files.
	DataDir string `yaml:"data_dir"`

	Memory     MemoryConfig     `yaml:"memory"`
	Session    SessionConfig    `yaml:"session"`
	Extraction ExtractionConfig `yaml:"extraction"`
}

// MemoryConfig tunes the memory pipeline.
type MemoryConfig struct {
	// Embedding provider: "mock", "openai" or "ollama".
	EmbeddingProvider string `yaml:"embedding_provider"`
	EmbeddingModel    string `yaml:"embedding_model"`
	EmbeddingDim      int    `yaml:"embedding_dim"`
	EmbeddingBaseURL  string `yaml:"embedding_base_url"`

	DedupThreshold     float64 `yaml:"dedup_threshold"`
	ImportantThreshold float64 `yaml:"important_threshold"`
	RetrieveLimit      int     `yaml:"retrieve_limit"`
	SummaryTopN        int     `yaml:"summary_top_n"`

	// Hybrid ranking gains.
	SemanticWeight   float64 `yaml:"semantic_weight"`
	LexicalWeight    float64 `yaml:"lexical_weight"`
	ImportanceWeight float64 `yaml:"importance_weight"`
	RecencyWeight    float64 `yaml:"recency_weight"`

	// RecencyHalfLifeHours controls recency decay (default one week).
	RecencyHalfLifeHours int `yaml:"recency_half_life_hours"`

	// TranscriptIndexing opts sessions into chunked transcript indexing;
	// off by default because it multiplies storage volume.
	TranscriptIndexing bool `yaml:"transcript_indexing"`
	ChunkSize          int  `yaml:"chunk_size"`
	ChunkOverlap       int  `yaml:"chunk_overlap"`
}

// SessionConfig is the session reset policy.
type SessionConfig struct {
	DailyResetHour     int `yaml:"daily_reset_hour"`
	IdleTimeoutMinutes int `yaml:"idle_timeout_minutes"`
	MaxTurns           int `yaml:"max_turns"`
}

// ExtractionConfig tunes the LLM extraction collaborator.
type ExtractionConfig struct {
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DataDir: ".suzent",
		Memory: MemoryConfig{
			EmbeddingProvider:    "mock",
			EmbeddingDim:         384,
			DedupThreshold:       0.85,
			ImportantThreshold:   0.7,
			RetrieveLimit:        5,
			SummaryTopN:          20,
			SemanticWeight:       0.7,
			LexicalWeight:        0.3,
			ImportanceWeight:     0.2,
			RecencyWeight:        0.1,
			RecencyHalfLifeHours: 168,
			ChunkSize:            400,
			ChunkOverlap:         80,
		},
		Session: SessionConfig{
			DailyResetHour: 4,
		},
		Extraction: ExtractionConfig{
			TimeoutSeconds: 30,
			MaxRetries:     3,
		},
	}
}

// Load reads a YAML config file over the defaults: absent keys keep their
// default values. An empty path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects configurations the engine cannot start with.
// Configuration errors are fatal at startup, never masked at runtime.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if c.Memory.EmbeddingDim <= 0 {
		return fmt.Errorf("config: embedding_dim must be positive, got %d", c.Memory.EmbeddingDim)
	}
	switch c.Memory.EmbeddingProvider {
	case "mock", "openai", "ollama":
	default:
		return fmt.Errorf("config: unknown embedding_provider %q", c.Memory.EmbeddingProvider)
	}
	if t := c.Memory.DedupThreshold; t < 0 || t > 1 {
		return fmt.Errorf("config: dedup_threshold must be in [0,1], got %v", t)
	}
	if t := c.Memory.ImportantThreshold; t < 0 || t > 1 {
		return fmt.Errorf("config: important_threshold must be in [0,1], got %v", t)
	}
	if h := c.Session.DailyResetHour; h < 0 || h > 23 {
		return fmt.Errorf("config: daily_reset_hour must be in [0,23], got %d", h)
	}
	if c.Session.IdleTimeoutMinutes < 0 {
		return fmt.Errorf("config: idle_timeout_minutes must not be negative")
	}
	if c.Session.MaxTurns < 0 {
		return fmt.Errorf("config: max_turns must not be negative")
	}
	if c.Memory.ChunkOverlap >= c.Memory.ChunkSize && c.Memory.ChunkSize > 0 {
		return fmt.Errorf("config: chunk_overlap (%d) must be smaller than chunk_size (%d)",
			c.Memory.ChunkOverlap, c.Memory.ChunkSize)
	}
	return nil
}

// SourceDir is where daily logs and the curated summary live.
func (c *Config) SourceDir() string {
	return filepath.Join(c.DataDir, "memory")
}

// IndexPath is the search index database file.
func (c *Config) IndexPath() string {
	return filepath.Join(c.DataDir, "index", "memory.db")
}

// SessionDir roots transcripts, state snapshots and session metadata.
func (c *Config) SessionDir() string {
	return filepath.Join(c.DataDir, "sessions")
}

// SearchWeights returns the configured hybrid ranking gains.
func (c *Config) SearchWeights() memory.SearchWeights {
	return memory.SearchWeights{
		Semantic:        c.Memory.SemanticWeight,
		Lexical:         c.Memory.LexicalWeight,
		ImportanceBoost: c.Memory.ImportanceWeight,
		RecencyBoost:    c.Memory.RecencyWeight,
	}
}

// RecencyHalfLife converts the configured hours to a duration.
func (c *Config) RecencyHalfLife() time.Duration {
	return time.Duration(c.Memory.RecencyHalfLifeHours) * time.Hour
}

// IdleTimeout converts the configured minutes to a duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Session.IdleTimeoutMinutes) * time.Minute
}

// ExtractionTimeout converts the configured seconds to a duration.
func (c *Config) ExtractionTimeout() time.Duration {
	return time.Duration(c.Extraction.TimeoutSeconds) * time.Second
}
