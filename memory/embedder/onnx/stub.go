//go:build !onnx

package onnx

import (
	"context"
	"errors"
)

var errNotBuilt = errors.New("onnx embedder not built in; rebuild with -tags onnx")

// Embedder is unavailable without the onnx build tag.
type Embedder struct{}

// New reports that local embeddings are not compiled in.
func New(cfg Config) (*Embedder, error) {
	return nil, errNotBuilt
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errNotBuilt
}

func (e *Embedder) Dimensions() int { return 0 }

func (e *Embedder) Close() error { return nil }
