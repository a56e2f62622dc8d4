package memory_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/becomeliminal/aide/llm"
	"github.com/becomeliminal/aide/memory"
)

// fakeProvider returns a canned response and records the request.
type fakeProvider struct {
	response *llm.Response
	err      error
	lastReq  *llm.Request
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.response, nil
}

func candidateResults() []memory.Result {
	return []memory.Result{
		{Entry: memory.Entry{Content: "jack prefers metric units", Source: "memories/a.json", Timestamp: "2025-01-01 08:00:00"}},
		{Entry: memory.Entry{Content: "pytorch 1.13.1 is the latest version", Source: "memories/b.json", Timestamp: "2024-06-01 10:00:00"}},
	}
}

func TestAnalyzeParsesVerdict(t *testing.T) {
	provider := &fakeProvider{response: &llm.Response{Text: "```json\n" + `{
		"relevant_sources": ["memories/a.json"],
		"should_remember": true,
		"memory_content": "jack now uses pytorch 2.x",
		"memory_sources_to_delete": ["memories/b.json"],
		"reason": "version info outdated"
	}` + "\n```"}}

	analyzer := memory.NewAnalyzer(provider)
	analysis, err := analyzer.Analyze(context.Background(), "how do I upgrade pytorch", "jack", candidateResults())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if len(analysis.Relevant) != 1 || analysis.Relevant[0].Source != "memories/a.json" {
		t.Errorf("Relevant = %+v, want the a.json entry", analysis.Relevant)
	}
	if len(analysis.ToDelete) != 1 || analysis.ToDelete[0] != "memories/b.json" {
		t.Errorf("ToDelete = %v, want [memories/b.json]", analysis.ToDelete)
	}
	if len(analysis.ToCreate) != 1 {
		t.Fatalf("ToCreate = %+v, want one draft", analysis.ToCreate)
	}
	if analysis.ToCreate[0].Content != "jack now uses pytorch 2.x" {
		t.Errorf("draft content = %q", analysis.ToCreate[0].Content)
	}
	if analysis.ToCreate[0].RelatedQuestion != "how do I upgrade pytorch" {
		t.Errorf("draft question = %q", analysis.ToCreate[0].RelatedQuestion)
	}
	if analysis.Reason != "version info outdated" {
		t.Errorf("Reason = %q", analysis.Reason)
	}

	// The prompt must show the candidates it validates against.
	if !strings.Contains(provider.lastReq.Messages[0].Content, "memories/b.json") {
		t.Error("prompt does not list candidate sources")
	}
}

func TestAnalyzeDropsForeignSources(t *testing.T) {
	provider := &fakeProvider{response: &llm.Response{Text: `{
		"relevant_sources": ["memories/a.json", "memories/invented.json"],
		"should_remember": false,
		"memory_content": "",
		"memory_sources_to_delete": ["memories/ghost.json"],
		"reason": "testing"
	}`}}

	analyzer := memory.NewAnalyzer(provider)
	analysis, err := analyzer.Analyze(context.Background(), "q", "u", candidateResults())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if len(analysis.Relevant) != 1 || analysis.Relevant[0].Source != "memories/a.json" {
		t.Errorf("foreign relevant source not dropped: %+v", analysis.Relevant)
	}
	if len(analysis.ToDelete) != 0 {
		t.Errorf("foreign delete source not dropped: %v", analysis.ToDelete)
	}
}

func TestAnalyzeMalformedKeepsAllCandidates(t *testing.T) {
	for _, text := range []string{
		"these two memories look relevant to me",
		"```json\nnot actually json\n```",
		`{"relevant_sources": "not an array"}`,
	} {
		provider := &fakeProvider{response: &llm.Response{Text: text}}
		analyzer := memory.NewAnalyzer(provider)

		analysis, err := analyzer.Analyze(context.Background(), "q", "u", candidateResults())
		if err != nil {
			t.Fatalf("Analyze(%q) failed: %v", text, err)
		}

		if len(analysis.Relevant) != 2 {
			t.Errorf("Analyze(%q): Relevant has %d entries, want all 2", text, len(analysis.Relevant))
		}
		if len(analysis.ToCreate) != 0 || len(analysis.ToDelete) != 0 {
			t.Errorf("Analyze(%q): degraded analysis must not propose changes", text)
		}
	}
}

func TestAnalyzeEmptyContentMakesNoDraft(t *testing.T) {
	provider := &fakeProvider{response: &llm.Response{Text: `{
		"relevant_sources": [],
		"should_remember": true,
		"memory_content": "   ",
		"memory_sources_to_delete": [],
		"reason": "nothing of substance"
	}`}}

	analyzer := memory.NewAnalyzer(provider)
	analysis, err := analyzer.Analyze(context.Background(), "q", "u", candidateResults())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(analysis.ToCreate) != 0 {
		t.Errorf("blank memory_content produced a draft: %+v", analysis.ToCreate)
	}
}

func TestAnalyzeProviderErrorPropagates(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection refused")}
	analyzer := memory.NewAnalyzer(provider)

	if _, err := analyzer.Analyze(context.Background(), "q", "u", candidateResults()); err == nil {
		t.Fatal("expected provider error to propagate")
	}
}

func TestAnalyzeNoContentDegrades(t *testing.T) {
	provider := &fakeProvider{err: &llm.ProviderError{Provider: "fake", Err: llm.ErrNoContent}}
	analyzer := memory.NewAnalyzer(provider)

	analysis, err := analyzer.Analyze(context.Background(), "q", "u", candidateResults())
	if err != nil {
		t.Fatalf("empty model output should degrade, not error: %v", err)
	}
	if len(analysis.Relevant) != 2 {
		t.Errorf("degraded analysis keeps %d candidates, want 2", len(analysis.Relevant))
	}
}
