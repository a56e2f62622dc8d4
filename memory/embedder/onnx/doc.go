// Package onnx embeds text locally with an ONNX MiniLM model.
//
// The implementation is gated behind the "onnx" build tag because it
// needs the onnxruntime shared library at run time. Binaries built
// without the tag still compile against this package; New then reports
// that local embeddings are unavailable and callers degrade to another
// embedder.
package onnx

// Config configures the local embedder.
type Config struct {
	// ModelPath is the path to the ONNX model file.
	ModelPath string

	// TokenizerPath is the path to the tokenizer.json file.
	TokenizerPath string

	// LibraryPath locates the onnxruntime shared library, for example
	// /usr/lib/libonnxruntime.so. Empty falls back to the
	// ONNX_LIBRARY_PATH environment variable.
	LibraryPath string

	// Dimensions is the embedding vector size (default: 384 for
	// all-MiniLM-L6-v2).
	Dimensions int
}
