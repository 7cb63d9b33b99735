// ABOUTME: Engine configuration loaded from YAML with MEMOFORGE_* environment overrides.
// ABOUTME: Defaults mirror the pipeline's built-in budgets so an empty file is a valid config.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration.
type Config struct {
	Extraction ExtractionConfig `yaml:"extraction"`
	Generation GenerationConfig `yaml:"generation"`
	Parser     ParserConfig     `yaml:"parser"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Server     ServerConfig     `yaml:"server"`
}

// ExtractionConfig tunes the parallel extraction coordinator.
type ExtractionConfig struct {
	// MaxRetries bounds selective retry rounds for failed sections.
	MaxRetries int `yaml:"max_retries"`
	// TopK is the retrieval depth per section query.
	TopK int `yaml:"top_k"`
}

// GenerationConfig tunes the sequential generation pipeline.
type GenerationConfig struct {
	MaxRetries    int `yaml:"max_retries"`
	MinChars      int `yaml:"min_chars"`
	MinParagraphs int `yaml:"min_paragraphs"`
	TopK          int `yaml:"top_k"`
}

// ParserConfig tunes the bounded parser pool and its cache.
type ParserConfig struct {
	// Workers caps concurrent parses.
	Workers int `yaml:"workers"`
	// CacheTTLDays is the parse cache lifetime in days.
	CacheTTLDays int `yaml:"cache_ttl_days"`
	// CachePath is the SQLite cache file. Empty means in-memory only.
	CachePath string `yaml:"cache_path"`
}

// OpenAIConfig configures the model client for agents.
type OpenAIConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Bind string `yaml:"bind"`
}

// Default returns the configuration used when no file or overrides are given.
func Default() *Config {
	return &Config{
		Extraction: ExtractionConfig{MaxRetries: 2, TopK: 10},
		Generation: GenerationConfig{MaxRetries: 2, MinChars: 100, MinParagraphs: 2, TopK: 10},
		Parser:     ParserConfig{Workers: 4, CacheTTLDays: 30},
		OpenAI:     OpenAIConfig{Model: "gpt-4o", Temperature: 0.3},
		Server:     ServerConfig{Bind: "127.0.0.1:7790"},
	}
}

// Load reads a YAML config file, layers it over the defaults, applies
// MEMOFORGE_* environment overrides, and validates the result. An empty
// path skips the file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays MEMOFORGE_* environment variables. OPENAI_API_KEY is
// honored as a fallback for the key since most deployments already set it.
func (c *Config) applyEnv() {
	if v := os.Getenv("MEMOFORGE_OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = v
	}
	if v := os.Getenv("MEMOFORGE_MODEL"); v != "" {
		c.OpenAI.Model = v
	}
	if v := os.Getenv("MEMOFORGE_BASE_URL"); v != "" {
		c.OpenAI.BaseURL = v
	}
	if v := os.Getenv("MEMOFORGE_BIND"); v != "" {
		c.Server.Bind = v
	}
	if v := os.Getenv("MEMOFORGE_CACHE_PATH"); v != "" {
		c.Parser.CachePath = v
	}
	if v := os.Getenv("MEMOFORGE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Extraction.MaxRetries = n
			c.Generation.MaxRetries = n
		}
	}
}

// Validation errors.
var (
	ErrNegativeRetries = errors.New("max_retries must not be negative")
	ErrNoWorkers       = errors.New("parser workers must be positive")
)

// Validate checks budget fields for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.Extraction.MaxRetries < 0 || c.Generation.MaxRetries < 0 {
		return ErrNegativeRetries
	}
	if c.Parser.Workers <= 0 {
		return ErrNoWorkers
	}
	if c.Parser.CacheTTLDays <= 0 {
		return fmt.Errorf("parser cache_ttl_days must be positive, got %d", c.Parser.CacheTTLDays)
	}
	if c.Generation.MinChars <= 0 || c.Generation.MinParagraphs <= 0 {
		return fmt.Errorf("generation thresholds must be positive")
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 2 {
		return fmt.Errorf("openai temperature %v out of range [0, 2]", c.OpenAI.Temperature)
	}
	return nil
}
