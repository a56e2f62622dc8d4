// Package memory holds the assistant's memory model: entries loaded
// from the git repository, the per-request retrieval index over them,
// and the analyzer that decides how the store should change.
//
// Architecture:
//   - Entry/Note: records and freeform files from the repository
//   - Manager: ephemeral index; vector retrieval with keyword fallback
//   - Analyzer: one structured LLM request classifying candidates
//
// Lifecycle per question:
//   - LOAD: repository entries are indexed into a fresh Manager
//   - RETRIEVE: Candidates picks the analyzer's working set
//   - ANALYZE: the verdict (relevant, to create, to delete) is
//     validated against the candidates before anyone acts on it
//
// The index never outlives the request. Persistence is the
// repository's job; this package only ever proposes changes.
//
// Backends:
//   - chromem-go vector store (memory/store/chromem)
//   - token-overlap scorer (memory/store/keyword)
//   - embedders: openai, gemini, onnx, mock, plus a ristretto cache
//     wrapper (memory/embedder/...)
package memory
