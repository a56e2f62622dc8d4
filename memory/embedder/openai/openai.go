// Package openai embeds text through the OpenAI embeddings endpoint.
package openai

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Embedder calls the OpenAI embeddings API.
// A custom base URL serves any OpenAI-compatible backend.
type Embedder struct {
	client     openai.Client
	model      string
	dimensions int
}

// New creates an embedder for the given model.
// baseURL may be empty for the default endpoint.
func New(apiKey, baseURL, model string) *Embedder {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &Embedder{
		client:     openai.NewClient(opts...),
		model:      model,
		dimensions: dimensionsFor(model),
	}
}

// Embed converts a single text to an embedding vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: []string{text},
		},
		Model: e.model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai embed: empty response")
	}

	raw := resp.Data[0].Embedding
	embedding := make([]float32, len(raw))
	for i, v := range raw {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

// Dimensions returns the embedding size for the configured model.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// dimensionsFor maps known models to their vector sizes.
func dimensionsFor(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	default:
		// text-embedding-3-small, text-embedding-ada-002
		return 1536
	}
}
