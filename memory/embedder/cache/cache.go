// Package cache wraps an embedder with a ristretto cache.
//
// The memory index is rebuilt for every request, so unchanged entries
// would be re-embedded each run. Within one process the cache collapses
// those repeats: the question plus its profile probe alone hit the
// embedder several times with identical text.
package cache

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/aide/memory"
)

// Embedder caches vectors from an inner embedder, keyed by exact text.
type Embedder struct {
	inner memory.Embedder
	cache *ristretto.Cache
}

// New wraps inner with a cache sized for maxEntries vectors.
func New(inner memory.Embedder, maxEntries int64) (*Embedder, error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}

	// Cost is bytes per vector (4 bytes per dimension).
	vectorCost := int64(inner.Dimensions()) * 4
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries * vectorCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	return &Embedder{inner: inner, cache: cache}, nil
}

// Embed returns the cached vector for text, delegating on a miss.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.Get(text); ok {
		if vec, ok := cached.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	e.cache.Set(text, vec, int64(len(vec))*4)
	return vec, nil
}

// Dimensions returns the inner embedder's vector size.
func (e *Embedder) Dimensions() int {
	return e.inner.Dimensions()
}

// Wait blocks until pending cache writes are applied. Ristretto
// admits entries asynchronously; tests call this before asserting
// on hits.
func (e *Embedder) Wait() {
	e.cache.Wait()
}
