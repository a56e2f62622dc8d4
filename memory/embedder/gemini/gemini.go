// Package gemini embeds text through the Google GenAI API.
package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

const defaultModel = "gemini-embedding-001"

// Embedder calls the GenAI embedding endpoint.
type Embedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

// New creates an embedder. model may be empty for the default.
func New(ctx context.Context, apiKey, model string) (*Embedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	if model == "" {
		model = defaultModel
	}
	return &Embedder{
		client:     client,
		model:      model,
		dimensions: dimensionsFor(model),
	}, nil
}

// Embed converts a single text to an embedding vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("gemini embed: empty response")
	}
	return resp.Embeddings[0].Values, nil
}

// Dimensions returns the embedding size for the configured model.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// dimensionsFor maps known models to their vector sizes.
func dimensionsFor(model string) int {
	switch model {
	case "text-embedding-004", "embedding-001":
		return 768
	default:
		// gemini-embedding-001
		return 3072
	}
}
