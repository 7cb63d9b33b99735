// ABOUTME: Tests for config loading: defaults, YAML layering, env overrides, validation.
package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsAreValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Extraction.MaxRetries != 2 || cfg.Parser.Workers != 4 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadLayersYAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memoforge.yaml")
	body := `
extraction:
  max_retries: 5
openai:
  model: gpt-4o-mini
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Extraction.MaxRetries != 5 {
		t.Errorf("max_retries = %d, want 5", cfg.Extraction.MaxRetries)
	}
	if cfg.OpenAI.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want gpt-4o-mini", cfg.OpenAI.Model)
	}
	// Untouched fields keep defaults.
	if cfg.Generation.MinChars != 100 {
		t.Errorf("min_chars = %d, want default 100", cfg.Generation.MinChars)
	}
}

func TestEnvOverridesWin(t *testing.T) {
	t.Setenv("MEMOFORGE_MODEL", "gpt-5")
	t.Setenv("MEMOFORGE_BIND", "127.0.0.1:9999")
	t.Setenv("MEMOFORGE_MAX_RETRIES", "1")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAI.Model != "gpt-5" {
		t.Errorf("model = %q, want env override", cfg.OpenAI.Model)
	}
	if cfg.Server.Bind != "127.0.0.1:9999" {
		t.Errorf("bind = %q, want env override", cfg.Server.Bind)
	}
	if cfg.Extraction.MaxRetries != 1 || cfg.Generation.MaxRetries != 1 {
		t.Errorf("retries = %d/%d, want 1/1", cfg.Extraction.MaxRetries, cfg.Generation.MaxRetries)
	}
}

func TestOpenAIKeyFallback(t *testing.T) {
	t.Setenv("MEMOFORGE_OPENAI_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-fallback")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OpenAI.APIKey != "sk-fallback" {
		t.Errorf("api key = %q, want OPENAI_API_KEY fallback", cfg.OpenAI.APIKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative retries", func(c *Config) { c.Extraction.MaxRetries = -1 }},
		{"zero workers", func(c *Config) { c.Parser.Workers = 0 }},
		{"zero ttl", func(c *Config) { c.Parser.CacheTTLDays = 0 }},
		{"zero min chars", func(c *Config) { c.Generation.MinChars = 0 }},
		{"temperature out of range", func(c *Config) { c.OpenAI.Temperature = 3.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate accepted %s", tc.name)
			}
		})
	}
}

func TestLoadRejectsUnreadableFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("Load should fail on a missing file")
	}
}
