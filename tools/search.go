package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/becomeliminal/aide/llm"
)

const (
	searchEndpoint  = "https://www.googleapis.com/customsearch/v1"
	searchResultCap = 5
	searchTimeout   = 10 * time.Second
)

// SearchClient queries the Google Custom Search JSON API.
type SearchClient struct {
	apiKey     string
	cseID      string
	endpoint   string
	httpClient *http.Client
}

// SearchOption configures a SearchClient.
type SearchOption func(*SearchClient)

// WithSearchEndpoint points the client at a different API endpoint.
func WithSearchEndpoint(endpoint string) SearchOption {
	return func(c *SearchClient) { c.endpoint = endpoint }
}

// WithSearchHTTPClient replaces the underlying HTTP client.
func WithSearchHTTPClient(client *http.Client) SearchOption {
	return func(c *SearchClient) { c.httpClient = client }
}

// NewSearchClient returns a client authenticated with the given API key
// and custom search engine ID.
func NewSearchClient(apiKey, cseID string, opts ...SearchOption) *SearchClient {
	c := &SearchClient{
		apiKey:     apiKey,
		cseID:      cseID,
		endpoint:   searchEndpoint,
		httpClient: &http.Client{Timeout: searchTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search runs the query and formats the top results as markdown. Errors
// go back to the caller, which answers without search results instead
// of failing the question.
func (c *SearchClient) Search(ctx context.Context, query string) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	q.Set("cx", c.cseID)
	q.Set("q", query)
	q.Set("num", strconv.Itoa(searchResultCap))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("perform search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search failed with status %d: %s", resp.StatusCode, clipText(string(body), 200))
	}

	var parsed struct {
		Items []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode search response: %w", err)
	}
	if len(parsed.Items) == 0 {
		return "No search results found.", nil
	}

	var b strings.Builder
	b.WriteString("**Search Results:**\n\n")
	for i, item := range parsed.Items {
		fmt.Fprintf(&b, "%d. **%s**\n", i+1, item.Title)
		fmt.Fprintf(&b, "   URL: %s\n", item.Link)
		fmt.Fprintf(&b, "   %s\n\n", item.Snippet)
	}

	log.Printf("[SEARCH] %d results for %q", len(parsed.Items), query)
	return b.String(), nil
}

// Decider asks the LLM whether a question needs a web search before
// answering.
type Decider struct {
	provider llm.Provider
}

// NewDecider returns a Decider backed by the given provider.
func NewDecider(provider llm.Provider) *Decider {
	return &Decider{provider: provider}
}

const searchDecisionTemplate = `Analyze the following question and determine if a web search is needed to answer it accurately.

Question: %s
%s
Consider:
1. Does it require CURRENT information (news, weather, current events, recent developments)?
2. Does it ask for SPECIFIC FACTS that might not be in the knowledge base?
3. Does it require REAL-TIME data (stock prices, sports scores, etc.)?
4. Can it be answered with general knowledge or existing context?

Respond with JSON:
{
    "search_needed": true/false,
    "search_query": "optimized search query" or null,
    "reason": "brief explanation"
}`

func decisionPrompt(question, context string) string {
	ctxLine := ""
	if context != "" {
		ctxLine = fmt.Sprintf("Context: %s\n", context)
	}
	return fmt.Sprintf(searchDecisionTemplate, question, ctxLine)
}

// ShouldSearch returns whether to search and the query to use. Any
// failure degrades to (false, ""): a skipped search never aborts the
// question.
func (d *Decider) ShouldSearch(ctx context.Context, question, memoryContext string) (bool, string) {
	req := &llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: decisionPrompt(question, memoryContext)}},
	}
	resp, err := d.provider.Generate(ctx, req)
	if err != nil {
		log.Printf("[SEARCH] Decision request failed: %v", err)
		return false, ""
	}

	raw := strings.TrimSpace(resp.Text)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var verdict struct {
		SearchNeeded bool   `json:"search_needed"`
		SearchQuery  string `json:"search_query"`
		Reason       string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		log.Printf("[SEARCH] Unparseable search decision: %v", err)
		return false, ""
	}

	query := strings.TrimSpace(verdict.SearchQuery)
	if !verdict.SearchNeeded || query == "" {
		log.Printf("[SEARCH] No search needed: %s", verdict.Reason)
		return false, ""
	}

	log.Printf("[SEARCH] Search needed, query %q: %s", query, verdict.Reason)
	return true, query
}

// clipText shortens s to max bytes with a trailing ellipsis.
func clipText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
