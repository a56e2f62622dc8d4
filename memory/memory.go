package memory

import "context"

// Embedder converts text to vector embeddings.
//
// Implementations:
//   - mock: deterministic hash-seeded vectors (offline runs, tests)
//   - openai: OpenAI embeddings endpoint (also serves compatible base URLs)
//   - gemini: Google GenAI EmbedContent
//   - onnx: local MiniLM via onnxruntime (build tag "onnx")
//   - cache: ristretto-backed wrapper around any of the above
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// VectorStore is the similarity index backend.
// Entries are embedded by the Manager before they reach the store.
//
// Implementations: chromem.Store (in-memory, rebuilt per request).
type VectorStore interface {
	// Add indexes one entry under the given embedding.
	Add(ctx context.Context, entry Entry, embedding []float32) error

	// Query returns the entries nearest to the embedding, best first.
	Query(ctx context.Context, embedding []float32, limit int) ([]Result, error)

	// Close releases resources.
	Close() error
}

// Result is a retrieved entry with its relevance score.
// Vector scores are cosine similarities; keyword scores are the
// fraction of query tokens found in the entry content.
type Result struct {
	Entry Entry
	Score float64
}
