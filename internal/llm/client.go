package llm

import (
	"context"
	"fmt"

	"github.com/dvloznov/moneyrag/internal/config"
)

// Client is the opaque language-model capability: given a prompt it returns
// text, and it can embed texts into fixed-length vectors. All
// non-determinism in the system flows through this one seam.
type Client interface {
	// Generate sends a single-turn prompt and returns the raw model text.
	Generate(ctx context.Context, prompt string) (string, error)
	// Embed returns one vector per input text, each of the configured
	// dimensionality.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// New selects a provider implementation from the configuration.
func New(ctx context.Context, cfg *config.Config) (Client, error) {
	switch cfg.Provider {
	case config.ProviderGoogle:
		return newGoogleClient(ctx, cfg)
	case config.ProviderOpenAI:
		return newOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("llm.New: unknown provider %q", cfg.Provider)
	}
}
