package memory

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/becomeliminal/aide/memory/store/keyword"
)

// Manager builds the per-request memory index and serves retrieval.
//
// A Manager is constructed fresh for every question and discarded
// afterwards; nothing in it persists. Retrieval prefers vector
// similarity when an embedder and vector store are wired, and degrades
// permanently to keyword scoring on the first embedding or store
// failure. The keyword path is always available.
type Manager struct {
	entries  []Entry
	keywords *keyword.Store

	embedder Embedder
	vectors  VectorStore

	config   RetrievalConfig
	degraded bool
}

// RetrievalConfig tunes candidate selection and context formatting.
type RetrievalConfig struct {
	// QuestionK is the top-k for the question probe.
	QuestionK int

	// ProfileK is the top-k for the profile probe.
	ProfileK int

	// ContextBudget is the total character budget spread across the
	// formatted entries.
	ContextBudget int

	// MinEntryBudget is the per-entry floor of that budget.
	MinEntryBudget int
}

// DefaultRetrievalConfig returns the standard retrieval settings.
var DefaultRetrievalConfig = RetrievalConfig{
	QuestionK:      5,
	ProfileK:       3,
	ContextBudget:  2000,
	MinEntryBudget: 100,
}

// Option configures a Manager.
type Option func(*Manager)

// WithEmbedder wires the embedder used for vector retrieval.
func WithEmbedder(e Embedder) Option {
	return func(m *Manager) { m.embedder = e }
}

// WithVectorStore wires the vector index backend.
func WithVectorStore(s VectorStore) Option {
	return func(m *Manager) { m.vectors = s }
}

// WithConfig overrides the retrieval settings.
func WithConfig(cfg RetrievalConfig) Option {
	return func(m *Manager) { m.config = cfg }
}

// NewManager creates an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		keywords: keyword.New(),
		config:   DefaultRetrievalConfig,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load records the entries, in order, and seeds the vector index when
// one is wired. Embedding failures never abort the request: the first
// one logs and permanently degrades this manager to keyword scoring.
func (m *Manager) Load(ctx context.Context, entries []Entry) {
	m.entries = make([]Entry, len(entries))
	copy(m.entries, entries)

	texts := make([]string, len(m.entries))
	for i, entry := range m.entries {
		texts[i] = entry.Content
	}
	m.keywords.Index(texts)

	if m.embedder == nil || m.vectors == nil {
		return
	}

	indexed := 0
	for _, entry := range m.entries {
		if entry.Content == "" {
			continue
		}
		vec, err := m.embedder.Embed(ctx, entry.Content)
		if err != nil {
			m.degrade("embed entry", err)
			return
		}
		if err := m.vectors.Add(ctx, entry, vec); err != nil {
			m.degrade("index entry", err)
			return
		}
		indexed++
	}
	log.Printf("[MEMORY] Indexed %d entries for vector retrieval", indexed)
}

// Len returns the number of loaded entries.
func (m *Manager) Len() int {
	return len(m.entries)
}

// Degraded reports whether vector retrieval was configured but
// abandoned after a failure.
func (m *Manager) Degraded() bool {
	return m.degraded
}

// Retrieve returns the top-k entries for the query, best first.
// Ties keep load order. An empty corpus or non-positive k yields nil;
// retrieval never errors.
func (m *Manager) Retrieve(ctx context.Context, query string, k int) []Result {
	if k <= 0 || len(m.entries) == 0 {
		return nil
	}

	if m.vectorReady() {
		results, err := m.retrieveVector(ctx, query, k)
		if err != nil {
			m.degrade("vector retrieval", err)
		} else {
			return results
		}
	}

	return m.retrieveKeyword(query, k)
}

// profileProbe seeds the candidate set with who-the-user-is entries
// independent of the question wording.
const profileProbe = "user profile preferences general information"

// Candidates assembles the analyzer's working set: entries retrieved
// for the question itself plus a general profile probe, deduplicated
// by source with question matches first.
func (m *Manager) Candidates(ctx context.Context, question string) []Result {
	questionResults := m.Retrieve(ctx, question, m.config.QuestionK)
	profileResults := m.Retrieve(ctx, profileProbe, m.config.ProfileK)

	seen := make(map[string]struct{}, len(questionResults)+len(profileResults))
	candidates := make([]Result, 0, len(questionResults)+len(profileResults))
	for _, r := range questionResults {
		if _, dup := seen[r.Entry.Source]; dup {
			continue
		}
		seen[r.Entry.Source] = struct{}{}
		candidates = append(candidates, r)
	}
	for _, r := range profileResults {
		if _, dup := seen[r.Entry.Source]; dup {
			continue
		}
		seen[r.Entry.Source] = struct{}{}
		candidates = append(candidates, r)
	}

	log.Printf("[MEMORY] %d candidate memories for question: %q",
		len(candidates), truncateLog(question, 50))
	return candidates
}

// FormatContext renders results for prompt injection. The content
// budget is spread evenly across entries with a per-entry floor;
// content beyond its share is truncated with "...". Empty input
// renders to an empty string.
func (m *Manager) FormatContext(results []Result) string {
	if len(results) == 0 {
		return ""
	}

	budget := m.config.ContextBudget / len(results)
	if budget < m.config.MinEntryBudget {
		budget = m.config.MinEntryBudget
	}

	var b strings.Builder
	b.WriteString("## Relevant Memories:\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. **%s**", i+1, r.Entry.Source)
		if r.Entry.Timestamp != "" {
			fmt.Fprintf(&b, " (from %s)", r.Entry.Timestamp)
		}
		b.WriteString("\n")
		b.WriteString(truncate(r.Entry.Content, budget))
		b.WriteString("\n\n")
	}
	return b.String()
}

func (m *Manager) vectorReady() bool {
	return m.embedder != nil && m.vectors != nil && !m.degraded
}

func (m *Manager) degrade(stage string, err error) {
	m.degraded = true
	log.Printf("[MEMORY] %s: %v", stage, err)
	log.Printf("[MEMORY]   Falling back to keyword scoring")
}

func (m *Manager) retrieveVector(ctx context.Context, query string, k int) ([]Result, error) {
	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := m.vectors.Query(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("query store: %w", err)
	}

	log.Printf("[MEMORY] Retrieved %d memories for query: %q",
		len(results), truncateLog(query, 50))
	return results, nil
}

func (m *Manager) retrieveKeyword(query string, k int) []Result {
	matches := m.keywords.Search(query, k)

	results := make([]Result, 0, len(matches))
	for _, match := range matches {
		results = append(results, Result{
			Entry: m.entries[match.Index],
			Score: match.Score,
		})
	}

	log.Printf("[MEMORY] Keyword scoring matched %d memories for query: %q",
		len(results), truncateLog(query, 50))
	return results
}
