package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/becomeliminal/aide/llm"
)

// Draft is a proposed new memory entry. The repository assigns the
// source and timestamp when the draft is persisted.
type Draft struct {
	Content         string
	RelatedQuestion string
}

// Analysis is the analyzer's verdict on one question.
//
// Relevant and ToDelete only ever reference entries from the candidate
// set the analyzer was shown; identifiers the model invents are
// dropped during validation.
type Analysis struct {
	Relevant []Entry
	ToCreate []Draft
	ToDelete []string
	Reason   string
}

// Analyzer classifies candidate memories against a question in one
// structured LLM request: which candidates matter, what to remember,
// what is now outdated.
type Analyzer struct {
	provider llm.Provider
}

// NewAnalyzer creates an Analyzer on the given provider.
func NewAnalyzer(provider llm.Provider) *Analyzer {
	return &Analyzer{provider: provider}
}

// analyzerResponse is the JSON shape the model is asked to emit.
type analyzerResponse struct {
	RelevantSources []string `json:"relevant_sources"`
	ShouldRemember  bool     `json:"should_remember"`
	MemoryContent   string   `json:"memory_content"`
	SourcesToDelete []string `json:"memory_sources_to_delete"`
	Reason          string   `json:"reason"`
}

const analyzerSystem = `You maintain the personal memory store of an assistant. Given a question and the candidate memories, decide which memories are relevant to the question, whether the question contains information worth remembering, and whether any memory is now outdated.`

// Analyze runs the single classification request for a question.
// Malformed or empty model output is not an error: the analysis
// degrades to keeping every candidate and changing nothing. Only
// provider failure returns an error.
func (a *Analyzer) Analyze(ctx context.Context, question, user string, candidates []Result) (*Analysis, error) {
	resp, err := a.provider.Generate(ctx, &llm.Request{
		System: analyzerSystem,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: analyzerPrompt(question, user, candidates)},
		},
	})
	if err != nil {
		if errors.Is(err, llm.ErrNoContent) {
			log.Printf("[MEMORY] Analyzer returned no content; keeping all candidates")
			return keepAll(candidates, "empty analyzer response"), nil
		}
		return nil, fmt.Errorf("analyze memories: %w", err)
	}

	return parseAnalysis(resp.Text, question, candidates), nil
}

func analyzerPrompt(question, user string, candidates []Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", question)
	fmt.Fprintf(&b, "User: %s\n\n", user)

	b.WriteString("Candidate memories:\n")
	if len(candidates) == 0 {
		b.WriteString("  (none)\n")
	}
	for i, r := range candidates {
		fmt.Fprintf(&b, "%d. source: %s", i+1, r.Entry.Source)
		if r.Entry.Timestamp != "" {
			fmt.Fprintf(&b, " (from %s)", r.Entry.Timestamp)
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "   %s\n", truncate(r.Entry.Content, 500))
	}

	b.WriteString(`
Consider:
1. Which candidate memories are relevant to answering the question?
2. Does the question contain personal preferences, facts, or context about ongoing work worth remembering for future interactions?
3. Does the question make any candidate memory outdated (contradicted facts, changed preferences, stale version information)?

Use only source values listed above. Respond with JSON:
{
    "relevant_sources": ["..."],
    "should_remember": true/false,
    "memory_content": "what to remember (if should_remember is true)",
    "memory_sources_to_delete": ["..."] or [],
    "reason": "brief explanation"
}`)

	return b.String()
}

// parseAnalysis validates the model output against the candidate set.
func parseAnalysis(raw, question string, candidates []Result) *Analysis {
	payload := extractJSON(raw)
	if payload == "" {
		log.Printf("[MEMORY] No JSON object in analyzer response; keeping all candidates")
		return keepAll(candidates, "unparseable analyzer response")
	}

	var parsed analyzerResponse
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		log.Printf("[MEMORY] Malformed analyzer JSON (%v); keeping all candidates", err)
		return keepAll(candidates, "malformed analyzer response")
	}

	bySource := make(map[string]Entry, len(candidates))
	for _, r := range candidates {
		bySource[r.Entry.Source] = r.Entry
	}

	analysis := &Analysis{Reason: parsed.Reason}
	for _, source := range parsed.RelevantSources {
		entry, ok := bySource[source]
		if !ok {
			log.Printf("[MEMORY] Analyzer referenced unknown source %q; dropped", source)
			continue
		}
		analysis.Relevant = append(analysis.Relevant, entry)
	}
	for _, source := range parsed.SourcesToDelete {
		if _, ok := bySource[source]; !ok {
			log.Printf("[MEMORY] Analyzer asked to delete unknown source %q; dropped", source)
			continue
		}
		analysis.ToDelete = append(analysis.ToDelete, source)
	}
	if parsed.ShouldRemember && strings.TrimSpace(parsed.MemoryContent) != "" {
		analysis.ToCreate = append(analysis.ToCreate, Draft{
			Content:         parsed.MemoryContent,
			RelatedQuestion: question,
		})
	}

	return analysis
}

// keepAll is the degraded analysis: every candidate stays relevant,
// nothing is created or deleted.
func keepAll(candidates []Result, reason string) *Analysis {
	relevant := make([]Entry, len(candidates))
	for i, r := range candidates {
		relevant[i] = r.Entry
	}
	return &Analysis{Relevant: relevant, Reason: reason}
}

// extractJSON strips markdown fences and returns the outermost JSON
// object in raw, or "" when none is present.
func extractJSON(raw string) string {
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "```json") {
		text = text[len("```json"):]
	} else if strings.HasPrefix(text, "```") {
		text = text[len("```"):]
	}
	if strings.HasSuffix(text, "```") {
		text = text[:len(text)-len("```")]
	}
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}
