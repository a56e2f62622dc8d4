package memory_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/becomeliminal/aide/memory"
	"github.com/becomeliminal/aide/memory/embedder/mock"
	chromemstore "github.com/becomeliminal/aide/memory/store/chromem"
)

func testEntries() []memory.Entry {
	return []memory.Entry{
		{
			Content:   "jack preferences: metric units for weather",
			Source:    "memories/memory_20250101_080000.json",
			Timestamp: "2025-01-01 08:00:00",
		},
		{
			Content:   "user profile information for general use",
			Source:    "memories/memory_20250102_090000.json",
			Timestamp: "2025-01-02 09:00:00",
		},
		{
			Content:   "deploy pipeline runs nightly",
			Source:    "memories/memory_20250103_100000.json",
			Timestamp: "2025-01-03 10:00:00",
		},
	}
}

func TestRetrieveKeywordOnly(t *testing.T) {
	m := memory.NewManager()
	m.Load(context.Background(), testEntries())

	results := m.Retrieve(context.Background(), "what metric units does jack use", 5)
	if len(results) == 0 {
		t.Fatal("expected keyword matches")
	}
	if results[0].Entry.Source != "memories/memory_20250101_080000.json" {
		t.Errorf("best match = %q, want the units entry", results[0].Entry.Source)
	}
	if m.Degraded() {
		t.Error("keyword-only manager must not report degradation")
	}
}

func TestRetrieveVectorPath(t *testing.T) {
	store, err := chromemstore.New()
	if err != nil {
		t.Fatalf("chromem store: %v", err)
	}

	m := memory.NewManager(memory.WithEmbedder(mock.New()), memory.WithVectorStore(store))
	m.Load(context.Background(), testEntries())

	// The mock embedder is hash-based: only identical text lands on
	// the identical vector, so query with an exact entry content.
	results := m.Retrieve(context.Background(), "deploy pipeline runs nightly", 1)
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Entry.Source != "memories/memory_20250103_100000.json" {
		t.Errorf("best match = %q, want the pipeline entry", results[0].Entry.Source)
	}
	if results[0].Score < 0.99 {
		t.Errorf("identical text similarity = %v, want ~1.0", results[0].Score)
	}
	if m.Degraded() {
		t.Error("healthy vector path must not report degradation")
	}
}

// failingEmbedder errors once its call budget is spent.
type failingEmbedder struct {
	calls     int
	failAfter int
}

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls > f.failAfter {
		return nil, errors.New("embedding backend down")
	}
	return mock.New().Embed(ctx, text)
}

func (f *failingEmbedder) Dimensions() int { return 384 }

func TestLoadDegradesOnEmbedFailure(t *testing.T) {
	store, err := chromemstore.New()
	if err != nil {
		t.Fatalf("chromem store: %v", err)
	}

	m := memory.NewManager(
		memory.WithEmbedder(&failingEmbedder{failAfter: 0}),
		memory.WithVectorStore(store),
	)
	m.Load(context.Background(), testEntries())

	if !m.Degraded() {
		t.Fatal("manager should degrade when entry embedding fails")
	}

	// Keyword fallback still answers.
	results := m.Retrieve(context.Background(), "deploy pipeline", 5)
	if len(results) == 0 {
		t.Fatal("keyword fallback returned nothing")
	}
	if results[0].Entry.Source != "memories/memory_20250103_100000.json" {
		t.Errorf("best match = %q, want the pipeline entry", results[0].Entry.Source)
	}
}

func TestRetrieveDegradesOnQueryEmbedFailure(t *testing.T) {
	store, err := chromemstore.New()
	if err != nil {
		t.Fatalf("chromem store: %v", err)
	}

	// Three entries embed fine at load; the query embed fails.
	m := memory.NewManager(
		memory.WithEmbedder(&failingEmbedder{failAfter: 3}),
		memory.WithVectorStore(store),
	)
	m.Load(context.Background(), testEntries())
	if m.Degraded() {
		t.Fatal("load should have succeeded")
	}

	results := m.Retrieve(context.Background(), "deploy pipeline", 5)
	if !m.Degraded() {
		t.Error("query embed failure should degrade the manager")
	}
	if len(results) == 0 {
		t.Fatal("fallback within the same call returned nothing")
	}
}

func TestCandidatesDedupBySource(t *testing.T) {
	m := memory.NewManager()
	m.Load(context.Background(), testEntries())

	// The preferences entry matches both the question and the profile
	// probe; it must appear once, in question position.
	candidates := m.Candidates(context.Background(), "what metric units does jack use")

	seen := map[string]int{}
	for _, r := range candidates {
		seen[r.Entry.Source]++
	}
	for source, n := range seen {
		if n > 1 {
			t.Errorf("source %q appears %d times", source, n)
		}
	}
	if len(candidates) == 0 || candidates[0].Entry.Source != "memories/memory_20250101_080000.json" {
		t.Error("question match should lead the candidate list")
	}
	found := false
	for _, r := range candidates {
		if r.Entry.Source == "memories/memory_20250102_090000.json" {
			found = true
		}
	}
	if !found {
		t.Error("profile probe match missing from candidates")
	}
}

func TestRetrieveEmptyCorpusAndZeroK(t *testing.T) {
	m := memory.NewManager()
	if got := m.Retrieve(context.Background(), "anything", 5); got != nil {
		t.Errorf("empty corpus: got %v, want nil", got)
	}

	m.Load(context.Background(), testEntries())
	if got := m.Retrieve(context.Background(), "anything", 0); got != nil {
		t.Errorf("zero k: got %v, want nil", got)
	}
}

func TestFormatContext(t *testing.T) {
	m := memory.NewManager()

	out := m.FormatContext([]memory.Result{
		{Entry: memory.Entry{Content: "likes tea", Source: "a.json", Timestamp: "2025-01-01 08:00:00"}},
		{Entry: memory.Entry{Content: "no timestamp entry", Source: "b.json"}},
	})

	if !strings.HasPrefix(out, "## Relevant Memories:\n\n") {
		t.Errorf("missing header:\n%s", out)
	}
	if !strings.Contains(out, "1. **a.json** (from 2025-01-01 08:00:00)\nlikes tea\n") {
		t.Errorf("first entry misformatted:\n%s", out)
	}
	if !strings.Contains(out, "2. **b.json**\nno timestamp entry\n") {
		t.Errorf("timestamp-less entry misformatted:\n%s", out)
	}

	if m.FormatContext(nil) != "" {
		t.Error("empty results should render empty string")
	}
}

func TestFormatContextTruncates(t *testing.T) {
	m := memory.NewManager(memory.WithConfig(memory.RetrievalConfig{
		QuestionK:      5,
		ProfileK:       3,
		ContextBudget:  20,
		MinEntryBudget: 10,
	}))

	long := strings.Repeat("x", 100)
	out := m.FormatContext([]memory.Result{
		{Entry: memory.Entry{Content: long, Source: "a.json"}},
		{Entry: memory.Entry{Content: long, Source: "b.json"}},
	})

	// Budget 20 over two entries floors at 10 per entry.
	want := strings.Repeat("x", 7) + "..."
	if !strings.Contains(out, want) {
		t.Errorf("expected truncated content %q in:\n%s", want, out)
	}
	if strings.Contains(out, strings.Repeat("x", 11)) {
		t.Errorf("content exceeds per-entry budget:\n%s", out)
	}
}
