package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/dvloznov/moneyrag/internal/config"
)

// googleClient backs the Client interface with the Gemini API.
type googleClient struct {
	client         *genai.Client
	model          string
	embeddingModel string
	embeddingDim   int32
}

func newGoogleClient(ctx context.Context, cfg *config.Config) (*googleClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("newGoogleClient: create genai client: %w", err)
	}
	return &googleClient{
		client:         client,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		embeddingDim:   int32(cfg.EmbeddingDim),
	}, nil
}

func (c *googleClient) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("googleClient.Generate: generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("googleClient.Generate: empty response from model")
	}
	return text, nil
}

func (c *googleClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range texts {
		contents = append(contents, &genai.Content{
			Parts: []*genai.Part{{Text: t}},
		})
	}

	resp, err := c.client.Models.EmbedContent(ctx, c.embeddingModel, contents, &genai.EmbedContentConfig{
		OutputDimensionality: genai.Ptr(c.embeddingDim),
	})
	if err != nil {
		return nil, fmt.Errorf("googleClient.Embed: embed content: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("googleClient.Embed: got %d embeddings for %d texts",
			len(resp.Embeddings), len(texts))
	}

	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}
