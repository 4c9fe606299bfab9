package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Provider names recognized for the LLM and embedding backends.
const (
	ProviderGoogle = "google"
	ProviderOpenAI = "openai"
)

// Config represents the top-level moneyrag.yaml configuration.
type Config struct {
	// Provider selects the LLM backend: "google" or "openai".
	Provider string `yaml:"provider"`
	// Model is the chat/decoder model identifier, e.g. "gemini-2.5-flash".
	Model string `yaml:"model"`
	// EmbeddingModel is the embedding model identifier.
	EmbeddingModel string `yaml:"embedding_model"`
	// EmbeddingDim is the fixed embedding dimensionality.
	EmbeddingDim int `yaml:"embedding_dim"`
	// APIKey is usually left empty and taken from GOOGLE_API_KEY or
	// OPENAI_API_KEY instead.
	APIKey string `yaml:"api_key,omitempty"`

	// EnrichmentConcurrency bounds outstanding merchant lookups.
	EnrichmentConcurrency int `yaml:"enrichment_concurrency"`
	// RouterMaxSteps caps tool invocations per question.
	RouterMaxSteps int `yaml:"router_max_steps"`
	// SemanticTopK is the default k for semantic search.
	SemanticTopK int `yaml:"semantic_top_k"`
	// MappingConfidence is the heuristic threshold below which schema
	// mapping escalates to the LLM.
	MappingConfidence float64 `yaml:"mapping_confidence"`

	// SignOverrides forces a sign convention per source file. Keys are
	// filename substrings (case-insensitive), values are
	// "spending_is_negative" or "spending_is_positive". Overrides win over
	// the per-file heuristic for exotic bank formats.
	SignOverrides map[string]string `yaml:"sign_overrides,omitempty"`

	// DataDir holds the session stores. Empty means a per-session temp
	// directory, removed on close.
	DataDir string `yaml:"data_dir,omitempty"`
}

// Default returns a Config with sensible defaults for a new session.
func Default() *Config {
	return &Config{
		Provider:              ProviderGoogle,
		Model:                 "gemini-2.5-flash",
		EmbeddingModel:        "text-embedding-004",
		EmbeddingDim:          768,
		EnrichmentConcurrency: 5,
		RouterMaxSteps:        6,
		SemanticTopK:          5,
		MappingConfidence:     0.75,
	}
}

// Load reads a moneyrag.yaml file from disk and applies env overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ApplyEnv fills APIKey from the provider's environment variable when the
// config itself carries none.
func (c *Config) ApplyEnv() {
	if c.APIKey != "" {
		return
	}
	switch c.Provider {
	case ProviderGoogle:
		c.APIKey = os.Getenv("GOOGLE_API_KEY")
	case ProviderOpenAI:
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// Validate checks option values that would otherwise fail much later.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGoogle, ProviderOpenAI:
	default:
		return fmt.Errorf("config: unknown provider %q (want %q or %q)",
			c.Provider, ProviderGoogle, ProviderOpenAI)
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("config: embedding_dim must be positive, got %d", c.EmbeddingDim)
	}
	if c.EnrichmentConcurrency <= 0 {
		return fmt.Errorf("config: enrichment_concurrency must be positive, got %d", c.EnrichmentConcurrency)
	}
	if c.RouterMaxSteps <= 0 {
		return fmt.Errorf("config: router_max_steps must be positive, got %d", c.RouterMaxSteps)
	}
	if c.SemanticTopK <= 0 {
		return fmt.Errorf("config: semantic_top_k must be positive, got %d", c.SemanticTopK)
	}
	for k, v := range c.SignOverrides {
		if v != "spending_is_negative" && v != "spending_is_positive" {
			return fmt.Errorf("config: sign_overrides[%q]: unknown convention %q", k, v)
		}
	}
	return nil
}
