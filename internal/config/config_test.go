package config

import (
	"path/filepath"
	"testing"
)

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moneyrag.yaml")

	cfg := Default()
	cfg.Provider = ProviderOpenAI
	cfg.Model = "gpt-4o-mini"
	cfg.EmbeddingModel = "text-embedding-3-small"
	cfg.EmbeddingDim = 1536
	cfg.APIKey = "sk-test"
	cfg.SignOverrides = map[string]string{"amex": "spending_is_positive"}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got.Provider != ProviderOpenAI || got.Model != "gpt-4o-mini" {
		t.Errorf("provider/model = %s/%s", got.Provider, got.Model)
	}
	if got.EmbeddingDim != 1536 {
		t.Errorf("embedding_dim = %d, want 1536", got.EmbeddingDim)
	}
	if got.SignOverrides["amex"] != "spending_is_positive" {
		t.Errorf("sign_overrides = %v", got.SignOverrides)
	}
	if got.RouterMaxSteps != Default().RouterMaxSteps {
		t.Errorf("router_max_steps = %d, want default %d", got.RouterMaxSteps, Default().RouterMaxSteps)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(c *Config) {}, false},
		{"unknown provider", func(c *Config) { c.Provider = "anthropic" }, true},
		{"zero embedding dim", func(c *Config) { c.EmbeddingDim = 0 }, true},
		{"zero concurrency", func(c *Config) { c.EnrichmentConcurrency = 0 }, true},
		{"zero max steps", func(c *Config) { c.RouterMaxSteps = 0 }, true},
		{"zero top k", func(c *Config) { c.SemanticTopK = 0 }, true},
		{"bad sign override", func(c *Config) {
			c.SignOverrides = map[string]string{"amex": "upside_down"}
		}, true},
		{"good sign override", func(c *Config) {
			c.SignOverrides = map[string]string{"amex": "spending_is_negative"}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("OPENAI_API_KEY", "o-key")

	google := Default()
	google.ApplyEnv()
	if google.APIKey != "g-key" {
		t.Errorf("google key = %q, want g-key", google.APIKey)
	}

	openAI := Default()
	openAI.Provider = ProviderOpenAI
	openAI.ApplyEnv()
	if openAI.APIKey != "o-key" {
		t.Errorf("openai key = %q, want o-key", openAI.APIKey)
	}

	// An explicit key is never overridden by the environment.
	explicit := Default()
	explicit.APIKey = "from-file"
	explicit.ApplyEnv()
	if explicit.APIKey != "from-file" {
		t.Errorf("explicit key = %q, want from-file", explicit.APIKey)
	}
}
