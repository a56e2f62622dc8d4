// Package chromem wraps chromem-go as the per-request vector index.
//
// chromem-go is a pure Go, embedded vector database. The index is
// built fresh for every request and discarded afterwards; nothing is
// persisted to disk.
package chromem

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/aide/memory"
)

// Store indexes memory entries in a single in-memory collection.
// Entry fields ride along as document metadata so queried entries come
// back whole.
type Store struct {
	col *chromem.Collection
}

// New creates an empty Store.
func New() (*Store, error) {
	db := chromem.NewDB()

	col, err := db.CreateCollection(
		"memories",
		nil, // No custom embedding func (we provide embeddings)
		nil, // No custom distance func (use default cosine)
	)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &Store{col: col}, nil
}

// Add indexes one entry under the given embedding.
func (s *Store) Add(ctx context.Context, entry memory.Entry, embedding []float32) error {
	doc := chromem.Document{
		ID:        uuid.New().String(),
		Content:   entry.Content,
		Embedding: embedding,
		Metadata:  encodeMetadata(entry),
	}

	if err := s.col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Query retrieves the entries nearest to the embedding, best first.
func (s *Store) Query(ctx context.Context, embedding []float32, limit int) ([]memory.Result, error) {
	if limit <= 0 {
		return nil, nil
	}

	// chromem-go requires nResults <= collection size.
	// Retry with smaller limits if necessary.
	var results []chromem.Result
	for currentLimit := limit; currentLimit >= 1; currentLimit-- {
		var err error
		results, err = s.col.QueryEmbedding(ctx, embedding, currentLimit, nil, nil)
		if err == nil {
			break
		}

		if isInsufficientDocsError(err) {
			if currentLimit == 1 {
				log.Printf("[CHROMEM] Collection is empty")
				return nil, nil
			}
			continue
		}

		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]memory.Result, 0, len(results))
	for _, result := range results {
		out = append(out, memory.Result{
			Entry: decodeEntry(result),
			Score: float64(result.Similarity),
		})
	}
	return out, nil
}

// Close releases resources.
func (s *Store) Close() error {
	// chromem-go keeps everything in memory, nothing to close.
	return nil
}

func encodeMetadata(entry memory.Entry) map[string]string {
	md := map[string]string{
		"source": entry.Source,
	}
	if entry.Timestamp != "" {
		md["timestamp"] = entry.Timestamp
	}
	if entry.User != "" {
		md["user"] = entry.User
	}
	if entry.RelatedQuestion != "" {
		md["related_question"] = entry.RelatedQuestion
	}
	return md
}

func decodeEntry(result chromem.Result) memory.Entry {
	return memory.Entry{
		Content:         result.Content,
		Source:          result.Metadata["source"],
		Timestamp:       result.Metadata["timestamp"],
		User:            result.Metadata["user"],
		RelatedQuestion: result.Metadata["related_question"],
	}
}

// isInsufficientDocsError checks if the error reports more results
// requested than documents stored.
func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
