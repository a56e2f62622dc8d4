package cache

import (
	"context"
	"testing"

	"github.com/becomeliminal/aide/memory/embedder/mock"
)

// countingEmbedder counts delegated calls.
type countingEmbedder struct {
	inner *mock.Embedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) Dimensions() int {
	return c.inner.Dimensions()
}

func TestEmbedCachesRepeats(t *testing.T) {
	counting := &countingEmbedder{inner: mock.New()}
	e, err := New(counting, 16)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	first, err := e.Embed(ctx, "same text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	e.Wait()

	second, err := e.Embed(ctx, "same text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if counting.calls != 1 {
		t.Errorf("inner embedder called %d times, want 1", counting.calls)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached vector differs at index %d", i)
		}
	}
}

func TestEmbedDistinctTextsDelegate(t *testing.T) {
	counting := &countingEmbedder{inner: mock.New()}
	e, err := New(counting, 16)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	if _, err := e.Embed(ctx, "one"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if _, err := e.Embed(ctx, "two"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if counting.calls != 2 {
		t.Errorf("inner embedder called %d times, want 2", counting.calls)
	}
}

func TestDimensionsPassThrough(t *testing.T) {
	inner := mock.New()
	e, err := New(inner, 0)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if e.Dimensions() != inner.Dimensions() {
		t.Errorf("Dimensions() = %d, want %d", e.Dimensions(), inner.Dimensions())
	}
}
