// Package engine runs the question pipeline: sync the memory
// repository, index the corpus, analyze which memories matter, decide
// on a web search, generate the answer, and persist memory changes.
//
// Every capability except answer generation is optional and degrades:
// a failed repository, embedder, analyzer, or search leaves a marker
// in Response.Degraded and the run continues. Only a provider failure
// while generating the answer aborts a run.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/becomeliminal/aide/llm"
	"github.com/becomeliminal/aide/memory"
	"github.com/becomeliminal/aide/memory/repository"
)

// Repository syncs the memory corpus and persists approved changes.
// *repository.Manager is the production implementation.
type Repository interface {
	EnsureReady(ctx context.Context) (string, error)
	LoadEntries(ctx context.Context) ([]memory.Entry, []memory.Note, error)
	ApplyChanges(ctx context.Context, changes repository.Changes) error
}

// Analyzer classifies candidate memories against a question.
// *memory.Analyzer is the production implementation.
type Analyzer interface {
	Analyze(ctx context.Context, question, user string, candidates []memory.Result) (*memory.Analysis, error)
}

// Searcher runs a web search and returns render-ready results.
type Searcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// SearchDecider decides whether a question needs information fresher
// than what memories provide.
type SearchDecider interface {
	ShouldSearch(ctx context.Context, question, memoryContext string) (bool, string)
}

// GitHubRunner executes a github_operations tool call and renders the
// outcome as a tool result string.
type GitHubRunner interface {
	Run(ctx context.Context, args string) string
}

// Engine wires the pipeline together. Construct one per question: the
// memory index it carries is per-request state.
type Engine struct {
	provider llm.Provider
	repo     Repository
	index    *memory.Manager
	analyzer Analyzer
	decider  SearchDecider
	searcher Searcher
	github   GitHubRunner
	tools    []llm.Tool
}

// Option configures the engine.
type Option func(*Engine)

// WithRepository wires the memory repository. Without one the engine
// answers memory-less and never persists.
func WithRepository(r Repository) Option {
	return func(e *Engine) {
		e.repo = r
	}
}

// WithMemory sets the memory index manager. The manager is
// per-request state; hand a fresh one to each engine. Without one a
// bare keyword-only manager is used.
func WithMemory(m *memory.Manager) Option {
	return func(e *Engine) {
		e.index = m
	}
}

// WithAnalyzer wires the memory analyzer. Without one every candidate
// memory is treated as relevant and nothing is created or deleted.
func WithAnalyzer(a Analyzer) Option {
	return func(e *Engine) {
		e.analyzer = a
	}
}

// WithSearch wires the web search capability: the decider chooses
// when to search, the searcher runs the query. Both must be non-nil
// for the search phase to run.
func WithSearch(d SearchDecider, s Searcher) Option {
	return func(e *Engine) {
		e.decider = d
		e.searcher = s
	}
}

// WithGitHub wires the executor for github_operations tool calls.
func WithGitHub(g GitHubRunner) Option {
	return func(e *Engine) {
		e.github = g
	}
}

// WithTools sets the tool definitions offered to the provider. Empty
// means answer generation never attempts tool calling.
func WithTools(defs []llm.Tool) Option {
	return func(e *Engine) {
		e.tools = defs
	}
}

// New creates an engine on the given provider.
func New(provider llm.Provider, opts ...Option) *Engine {
	e := &Engine{provider: provider}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Request is one question to process.
type Request struct {
	// Question is the user's question.
	Question string

	// User identifies who is asking.
	User string

	// AskedAt is when the question was asked.
	AskedAt time.Time
}

// Response is the outcome of a run.
type Response struct {
	// Answer is the generated answer text.
	Answer string

	// MemoriesUsed counts the memories injected into the context.
	MemoriesUsed int

	// SearchUsed reports whether web search results fed the answer.
	SearchUsed bool

	// Created and Deleted count the memory changes actually persisted.
	Created int
	Deleted int

	// Degraded names the capabilities that failed during this run:
	// "memory", "embeddings", "analysis", "search", "persistence".
	Degraded []string
}

// maxToolTurns bounds the tool-calling loop. A turn is one provider
// round trip; each may carry several tool calls.
const maxToolTurns = 3

// Run processes one question through the pipeline. The returned error
// is non-nil only for invalid input or a provider failure during
// answer generation; every other failure degrades the response
// instead.
func (e *Engine) Run(ctx context.Context, req *Request) (*Response, error) {
	if e.provider == nil {
		return nil, errors.New("no llm provider configured")
	}
	if req == nil || strings.TrimSpace(req.Question) == "" {
		return nil, errors.New("empty question")
	}

	log.Printf("[ENGINE] Processing question from %s: %s", req.User, truncate(req.Question, 100))

	resp := &Response{}

	// === PHASE 1: REPOSITORY ===
	var entries []memory.Entry
	var notes []memory.Note
	repoReady := false
	if e.repo != nil {
		if _, err := e.repo.EnsureReady(ctx); err != nil {
			log.Printf("[ENGINE] Memory repository unavailable: %v", err)
			log.Printf("[ENGINE]   Continuing without memories")
			resp.Degraded = append(resp.Degraded, "memory")
		} else if loaded, found, err := e.repo.LoadEntries(ctx); err != nil {
			log.Printf("[ENGINE] Loading memories failed: %v", err)
			log.Printf("[ENGINE]   Continuing without memories")
			resp.Degraded = append(resp.Degraded, "memory")
		} else {
			entries, notes = loaded, found
			repoReady = true
			log.Printf("[ENGINE] Loaded %d memories and %d notes", len(entries), len(notes))
		}
	}

	// === PHASE 2: INDEX ===
	index := e.index
	if index == nil {
		index = memory.NewManager()
	}
	index.Load(ctx, entries)

	// === PHASE 3: ANALYZE ===
	candidates := index.Candidates(ctx, req.Question)
	if index.Degraded() {
		resp.Degraded = append(resp.Degraded, "embeddings")
	}

	var analysis *memory.Analysis
	if e.analyzer != nil {
		a, err := e.analyzer.Analyze(ctx, req.Question, req.User, candidates)
		if err != nil {
			log.Printf("[ENGINE] Memory analysis failed: %v", err)
			log.Printf("[ENGINE]   Keeping all candidate memories")
			resp.Degraded = append(resp.Degraded, "analysis")
		} else {
			analysis = a
		}
	}
	if analysis == nil {
		analysis = &memory.Analysis{}
		for _, r := range candidates {
			analysis.Relevant = append(analysis.Relevant, r.Entry)
		}
	}

	used := filterRelevant(candidates, analysis.Relevant)
	memoryContext := index.FormatContext(used)
	resp.MemoriesUsed = len(used)

	// === PHASE 4: SEARCH ===
	var searchResults string
	if e.decider != nil && e.searcher != nil {
		if needed, query := e.decider.ShouldSearch(ctx, req.Question, memoryContext); needed && query != "" {
			log.Printf("[ENGINE] Performing search: %s", query)
			results, err := e.searcher.Search(ctx, query)
			if err != nil {
				log.Printf("[ENGINE] Search failed: %v", err)
				resp.Degraded = append(resp.Degraded, "search")
			} else {
				searchResults = results
				resp.SearchUsed = true
			}
		}
	}

	// === PHASE 5: ANSWER ===
	var contextParts []string
	if memoryContext != "" {
		contextParts = append(contextParts, "**Relevant Memories:**\n"+memoryContext)
	}
	if noteBlock := formatNotes(notes); noteBlock != "" {
		contextParts = append(contextParts, "**Notes:**\n"+noteBlock)
	}
	if searchResults != "" {
		contextParts = append(contextParts, "**Search Results:**\n"+searchResults)
	}
	fullContext := strings.Join(contextParts, "\n\n")

	answer, err := e.answer(ctx, req.Question, fullContext, resp.SearchUsed)
	if err != nil {
		return nil, err
	}
	resp.Answer = answer

	// === PHASE 6: PERSIST ===
	if repoReady {
		var timestamp string
		if !req.AskedAt.IsZero() {
			timestamp = req.AskedAt.Format(time.RFC3339)
		}
		changes := repository.Changes{Delete: analysis.ToDelete}
		for _, draft := range analysis.ToCreate {
			changes.Create = append(changes.Create, memory.Entry{
				Content:         draft.Content,
				Timestamp:       timestamp,
				User:            req.User,
				RelatedQuestion: draft.RelatedQuestion,
			})
		}
		if !changes.Empty() {
			if err := e.repo.ApplyChanges(ctx, changes); err != nil {
				log.Printf("[ENGINE] Persisting memory changes failed: %v", err)
				resp.Degraded = append(resp.Degraded, "persistence")
			} else {
				resp.Created = len(changes.Create)
				resp.Deleted = len(changes.Delete)
			}
		}
	}

	return resp, nil
}

// answer generates the answer text, exactly once. With tools
// configured it tries a tool-enabled request first; a provider without
// tool calling, a failed tool loop, or a generic non-answer falls back
// to the direct request, whose result replaces the first attempt.
func (e *Engine) answer(ctx context.Context, question, contextText string, searched bool) (string, error) {
	if len(e.tools) > 0 {
		text, err := e.answerWithTools(ctx, question, contextText, searched)
		switch {
		case err == nil && !looksGeneric(text):
			return text, nil
		case err == nil:
			log.Printf("[ENGINE] Tool answer looks generic, using direct request")
		case errors.Is(err, llm.ErrToolsUnsupported):
			log.Printf("[ENGINE] Provider has no tool calling, using direct request")
		default:
			log.Printf("[ENGINE] Tool loop failed: %v", err)
			log.Printf("[ENGINE]   Using direct request")
		}
	}
	return e.answerDirect(ctx, question, contextText)
}

// toolSystemPrompt frames the assistant for tool-enabled requests.
const toolSystemPrompt = `You are a helpful personal assistant with access to:
- Personal memory repository with past interactions and preferences
- Google Search for current information
- GitHub operations for repository management

Use the available tools to answer questions accurately. When you have relevant memories, use them. When you need current information, use search. When asked about GitHub repositories, use the GitHub tool.

Always be helpful, accurate, and concise.`

// searchAnswerTemplate is the user prompt when search results are
// already in the context: %s context, %s question.
const searchAnswerTemplate = `You are a helpful personal assistant. Answer the question using the search results and context provided.

%s

Question: %s

Provide a comprehensive answer based on the search results above.`

// answerWithTools runs the bounded tool-calling loop. It returns the
// final text, or an error when the provider fails, rejects tools, or
// the loop exhausts its turns without a text answer.
func (e *Engine) answerWithTools(ctx context.Context, question, contextText string, searched bool) (string, error) {
	var prompt string
	if searched {
		prompt = fmt.Sprintf(searchAnswerTemplate, contextText, question)
	} else {
		prompt = withContext(contextText, "Question: "+question)
	}

	messages := []llm.Message{{Role: llm.RoleUser, Content: prompt}}
	for turn := 0; turn < maxToolTurns; turn++ {
		resp, err := e.provider.Generate(ctx, &llm.Request{
			System:   toolSystemPrompt,
			Messages: messages,
			Tools:    e.tools,
		})
		if err != nil {
			return "", err
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Text, nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			log.Printf("[ENGINE] Tool call: %s", call.Name)
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    e.executeTool(ctx, call),
				ToolCallID: call.ID,
			})
		}
	}

	return "", fmt.Errorf("tool loop exceeded %d turns", maxToolTurns)
}

// directSystemPrompt frames the assistant for plain requests.
const directSystemPrompt = `You are a helpful personal assistant. Use the provided context to answer questions accurately and comprehensively.

When search results are provided, prioritize that information as it contains the most current data. Combine search results with memories when relevant.

Provide clear, direct answers based on the available information.`

// answerDirect makes the plain completion request. Failure here is
// fatal for the run.
func (e *Engine) answerDirect(ctx context.Context, question, contextText string) (string, error) {
	prompt := withContext(contextText,
		fmt.Sprintf("Question: %s\n\nPlease provide a helpful, comprehensive answer based on the context above.", question))

	resp, err := e.provider.Generate(ctx, &llm.Request{
		System:   directSystemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return resp.Text, nil
}

// executeTool dispatches one tool call. Failures become tool result
// strings for the model, never errors.
func (e *Engine) executeTool(ctx context.Context, call llm.ToolCall) string {
	switch call.Name {
	case "google_search":
		if e.searcher == nil {
			return "Search is not configured."
		}
		var args struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil || strings.TrimSpace(args.Query) == "" {
			return "Error: google_search requires a query parameter."
		}
		results, err := e.searcher.Search(ctx, args.Query)
		if err != nil {
			return fmt.Sprintf("Error performing search: %v", err)
		}
		return results
	case "github_operations":
		if e.github == nil {
			return "GitHub operations are not configured."
		}
		return e.github.Run(ctx, call.Arguments)
	}
	return fmt.Sprintf("Unknown tool: %s", call.Name)
}

// filterRelevant keeps the candidates the analyzer marked relevant,
// preserving candidate order and scores.
func filterRelevant(candidates []memory.Result, relevant []memory.Entry) []memory.Result {
	keep := make(map[string]struct{}, len(relevant))
	for _, entry := range relevant {
		keep[entry.Source] = struct{}{}
	}

	var used []memory.Result
	for _, r := range candidates {
		if _, ok := keep[r.Entry.Source]; ok {
			used = append(used, r)
		}
	}
	return used
}

// noteBudget caps how much of each freeform note reaches the prompt.
const noteBudget = 600

// formatNotes renders freeform repository notes for prompt injection.
func formatNotes(notes []memory.Note) string {
	if len(notes) == 0 {
		return ""
	}

	var b strings.Builder
	for _, n := range notes {
		fmt.Fprintf(&b, "### %s\n%s\n\n", n.Path, truncate(n.Content, noteBudget))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// looksGeneric reports whether a tool-path answer is a non-answer
// worth replacing with a direct request.
func looksGeneric(text string) bool {
	if text == "" || len(text) < 50 {
		return true
	}
	return strings.Contains(strings.ToLower(text), "how can i help")
}

// withContext prefixes rest with the context block when one exists.
func withContext(contextText, rest string) string {
	if contextText == "" {
		return rest
	}
	return contextText + "\n\n" + rest
}

// truncate shortens s to max characters, marking the cut with "...".
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
