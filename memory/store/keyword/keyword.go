// Package keyword ranks documents by token overlap with a query.
//
// It is the always-available fallback scorer for memory retrieval:
// no model, no network, no state beyond the indexed corpus. Callers
// index plain strings and map the returned indices back to their own
// records.
package keyword

import (
	"regexp"
	"sort"
	"strings"
)

// Match pairs a document index with its overlap score.
type Match struct {
	// Index is the position of the document in the indexed corpus.
	Index int

	// Score is the fraction of query tokens found in the document,
	// in (0.0, 1.0]. Zero-overlap documents are never returned.
	Score float64
}

// Store holds tokenized documents for overlap ranking.
type Store struct {
	docs []map[string]struct{}
}

// New creates an empty Store.
func New() *Store {
	return &Store{}
}

// Index replaces the corpus with the given documents.
func (s *Store) Index(texts []string) {
	s.docs = make([]map[string]struct{}, len(texts))
	for i, text := range texts {
		s.docs[i] = tokenize(text)
	}
}

// Len returns the number of indexed documents.
func (s *Store) Len() int {
	return len(s.docs)
}

// Search ranks indexed documents against the query, best first.
// Ties keep corpus order. Documents sharing no token with the query
// are excluded. An empty query or corpus yields no matches.
func (s *Store) Search(query string, limit int) []Match {
	if limit <= 0 || len(s.docs) == 0 {
		return nil
	}
	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(s.docs))
	for i, doc := range s.docs {
		overlap := 0
		for token := range queryTokens {
			if _, ok := doc[token]; ok {
				overlap++
			}
		}
		if overlap == 0 {
			continue
		}
		matches = append(matches, Match{
			Index: i,
			Score: float64(overlap) / float64(len(queryTokens)),
		})
	}

	sort.SliceStable(matches, func(a, b int) bool {
		return matches[a].Score > matches[b].Score
	})
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// stopWords are excluded from both query and document tokens.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "is": {}, "are": {}, "was": {}, "were": {}, "be": {},
	"been": {}, "being": {}, "have": {}, "has": {}, "had": {},
	"do": {}, "does": {}, "did": {}, "will": {}, "would": {},
	"should": {}, "could": {}, "may": {}, "might": {}, "must": {},
	"can": {}, "this": {}, "that": {}, "these": {}, "those": {},
}

// maxTokens caps the token set per document; long documents are
// scored on their leading keywords only.
const maxTokens = 50

// tokenize lowercases text, extracts alphanumeric runs, and drops
// stop words and tokens shorter than three characters.
func tokenize(text string) map[string]struct{} {
	words := tokenPattern.FindAllString(strings.ToLower(text), -1)
	tokens := make(map[string]struct{})
	for _, w := range words {
		if len(w) <= 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		tokens[w] = struct{}{}
		if len(tokens) >= maxTokens {
			break
		}
	}
	return tokens
}
