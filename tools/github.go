package tools

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const githubAPI = "https://api.github.com"

// GitHubClient performs repository operations against the GitHub REST
// API on behalf of the github_operations tool.
type GitHubClient struct {
	token      string
	base       string
	httpClient *http.Client
}

// GitHubOption configures a GitHubClient.
type GitHubOption func(*GitHubClient)

// WithGitHubBaseURL points the client at a different API host.
func WithGitHubBaseURL(base string) GitHubOption {
	return func(c *GitHubClient) { c.base = strings.TrimSuffix(base, "/") }
}

// WithGitHubHTTPClient replaces the underlying HTTP client.
func WithGitHubHTTPClient(client *http.Client) GitHubOption {
	return func(c *GitHubClient) { c.httpClient = client }
}

// NewGitHubClient returns a client authenticated with the given token.
// An empty token leaves the tool unconfigured; every operation then
// reports that instead of calling the API.
func NewGitHubClient(token string, opts ...GitHubOption) *GitHubClient {
	c := &GitHubClient{
		token:      token,
		base:       githubAPI,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes one github_operations call. Failures are reported in
// the result string so the model can react to them; a tool call never
// crashes the question.
func (c *GitHubClient) Run(ctx context.Context, rawArgs string) string {
	if c.token == "" {
		return "GitHub tool is not configured: missing access token."
	}

	var args struct {
		Operation  string `json:"operation"`
		Repository string `json:"repository"`
		IssueTitle string `json:"issue_title"`
		IssueBody  string `json:"issue_body"`
		FilePath   string `json:"file_path"`
		Branch     string `json:"branch"`
	}
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return fmt.Sprintf("Error: invalid github_operations arguments: %v", err)
	}

	switch args.Operation {
	case "list_repos":
		return c.listRepos(ctx)
	case "get_repo_info":
		if args.Repository == "" {
			return "Error: repository parameter required for get_repo_info"
		}
		return c.repoInfo(ctx, args.Repository)
	case "create_issue":
		if args.Repository == "" || args.IssueTitle == "" {
			return "Error: repository and issue_title required for create_issue"
		}
		return c.createIssue(ctx, args.Repository, args.IssueTitle, args.IssueBody)
	case "list_issues":
		if args.Repository == "" {
			return "Error: repository parameter required for list_issues"
		}
		return c.listIssues(ctx, args.Repository)
	case "get_file_content":
		if args.Repository == "" || args.FilePath == "" {
			return "Error: repository and file_path required for get_file_content"
		}
		branch := args.Branch
		if branch == "" {
			branch = "main"
		}
		return c.fileContent(ctx, args.Repository, args.FilePath, branch)
	default:
		return fmt.Sprintf("Unknown operation: %s", args.Operation)
	}
}

func (c *GitHubClient) listRepos(ctx context.Context) string {
	var repos []struct {
		FullName    string `json:"full_name"`
		Description string `json:"description"`
		Language    string `json:"language"`
		Stars       int    `json:"stargazers_count"`
		Private     bool   `json:"private"`
	}
	if err := c.get(ctx, "/user/repos?per_page=20", &repos); err != nil {
		return fmt.Sprintf("Error listing repositories: %v", err)
	}
	if len(repos) == 0 {
		return "No repositories found."
	}

	var b strings.Builder
	b.WriteString("**Repositories:**\n\n")
	for _, repo := range repos {
		fmt.Fprintf(&b, "- **%s**", repo.FullName)
		if repo.Private {
			b.WriteString(" (private)")
		}
		fmt.Fprintf(&b, "\n  %s\n", repo.Description)
		fmt.Fprintf(&b, "  Language: %s, Stars: %d\n\n", repo.Language, repo.Stars)
	}
	return b.String()
}

func (c *GitHubClient) repoInfo(ctx context.Context, name string) string {
	var repo struct {
		FullName      string `json:"full_name"`
		Description   string `json:"description"`
		Language      string `json:"language"`
		Stars         int    `json:"stargazers_count"`
		Forks         int    `json:"forks_count"`
		OpenIssues    int    `json:"open_issues_count"`
		CreatedAt     string `json:"created_at"`
		UpdatedAt     string `json:"updated_at"`
		DefaultBranch string `json:"default_branch"`
	}
	if err := c.get(ctx, "/repos/"+name, &repo); err != nil {
		return fmt.Sprintf("Error getting repository info: %v", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Repository: %s**\n\n", repo.FullName)
	fmt.Fprintf(&b, "Description: %s\n", repo.Description)
	fmt.Fprintf(&b, "Language: %s\n", repo.Language)
	fmt.Fprintf(&b, "Stars: %d, Forks: %d\n", repo.Stars, repo.Forks)
	fmt.Fprintf(&b, "Open Issues: %d\n", repo.OpenIssues)
	fmt.Fprintf(&b, "Default Branch: %s\n", repo.DefaultBranch)
	fmt.Fprintf(&b, "Created: %s\n", repo.CreatedAt)
	fmt.Fprintf(&b, "Updated: %s\n", repo.UpdatedAt)
	return b.String()
}

func (c *GitHubClient) createIssue(ctx context.Context, repo, title, body string) string {
	payload := map[string]string{"title": title, "body": body}
	var issue struct {
		Number  int    `json:"number"`
		HTMLURL string `json:"html_url"`
		Title   string `json:"title"`
	}
	if err := c.do(ctx, http.MethodPost, "/repos/"+repo+"/issues", payload, &issue); err != nil {
		return fmt.Sprintf("Error creating issue: %v", err)
	}
	return fmt.Sprintf("Issue created successfully:\n- Number: %d\n- URL: %s\n- Title: %s",
		issue.Number, issue.HTMLURL, issue.Title)
}

func (c *GitHubClient) listIssues(ctx context.Context, repo string) string {
	var issues []struct {
		Number  int    `json:"number"`
		Title   string `json:"title"`
		HTMLURL string `json:"html_url"`
		Body    string `json:"body"`
	}
	if err := c.get(ctx, "/repos/"+repo+"/issues?state=open&per_page=10", &issues); err != nil {
		return fmt.Sprintf("Error listing issues: %v", err)
	}
	if len(issues) == 0 {
		return "No open issues found."
	}

	var b strings.Builder
	b.WriteString("**Issues (open):**\n\n")
	for _, issue := range issues {
		fmt.Fprintf(&b, "#%d: %s\n", issue.Number, issue.Title)
		fmt.Fprintf(&b, "  URL: %s\n", issue.HTMLURL)
		if issue.Body != "" {
			fmt.Fprintf(&b, "  %s\n", clipText(issue.Body, 100))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (c *GitHubClient) fileContent(ctx context.Context, repo, path, branch string) string {
	var file struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	endpoint := fmt.Sprintf("/repos/%s/contents/%s?ref=%s", repo, path, url.QueryEscape(branch))
	if err := c.get(ctx, endpoint, &file); err != nil {
		return fmt.Sprintf("Error getting file content: %v", err)
	}

	content := file.Content
	if file.Encoding == "base64" {
		// The API wraps base64 payloads with newlines.
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(file.Content, "\n", ""))
		if err != nil {
			return fmt.Sprintf("Error decoding file content: %v", err)
		}
		content = string(decoded)
	}

	return fmt.Sprintf("**File: %s (branch: %s)**\n\n```\n%s\n```", path, branch, content)
}

func (c *GitHubClient) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *GitHubClient) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("GitHub API error (%d): %s", resp.StatusCode, apiMessage(data))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// apiMessage pulls the message field out of a GitHub error payload.
func apiMessage(data []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &e) == nil && e.Message != "" {
		return e.Message
	}
	return clipText(string(data), 200)
}
