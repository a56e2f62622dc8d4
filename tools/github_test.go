package tools_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/becomeliminal/aide/tools"
)

func githubServer(t *testing.T, handler http.HandlerFunc) *tools.GitHubClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return tools.NewGitHubClient("test-token", tools.WithGitHubBaseURL(srv.URL))
}

func TestRunListRepos(t *testing.T) {
	var gotAuth string
	c := githubServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/user/repos" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`[
			{"full_name": "jack/dotfiles", "description": "Config files", "language": "Shell", "stargazers_count": 3, "private": true},
			{"full_name": "jack/aide", "description": "Assistant", "language": "Go", "stargazers_count": 42, "private": false}
		]`))
	})

	out := c.Run(context.Background(), `{"operation": "list_repos"}`)
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	for _, want := range []string{
		"**Repositories:**",
		"- **jack/dotfiles** (private)",
		"Language: Go, Stars: 42",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunGetRepoInfo(t *testing.T) {
	c := githubServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/jack/aide" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"full_name": "jack/aide", "description": "Assistant", "language": "Go",
			"stargazers_count": 42, "forks_count": 7, "open_issues_count": 2,
			"created_at": "2025-01-01T00:00:00Z", "updated_at": "2026-08-01T00:00:00Z",
			"default_branch": "main"
		}`))
	})

	out := c.Run(context.Background(), `{"operation": "get_repo_info", "repository": "jack/aide"}`)
	for _, want := range []string{
		"**Repository: jack/aide**",
		"Stars: 42, Forks: 7",
		"Open Issues: 2",
		"Default Branch: main",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunCreateIssue(t *testing.T) {
	var gotBody map[string]string
	c := githubServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/repos/jack/aide/issues" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"number": 7, "html_url": "https://github.com/jack/aide/issues/7", "title": "Fix flaky test"}`))
	})

	out := c.Run(context.Background(), `{"operation": "create_issue", "repository": "jack/aide", "issue_title": "Fix flaky test", "issue_body": "It fails on CI."}`)
	if gotBody["title"] != "Fix flaky test" || gotBody["body"] != "It fails on CI." {
		t.Errorf("request body = %v", gotBody)
	}
	if !strings.Contains(out, "Issue created successfully") || !strings.Contains(out, "- Number: 7") {
		t.Errorf("output = %q", out)
	}
}

func TestRunListIssues(t *testing.T) {
	c := githubServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != "open" {
			t.Errorf("state = %q", r.URL.Query().Get("state"))
		}
		w.Write([]byte(`[
			{"number": 3, "title": "Crash on empty config", "html_url": "https://github.com/jack/aide/issues/3", "body": "Panics when config.yaml is empty."}
		]`))
	})

	out := c.Run(context.Background(), `{"operation": "list_issues", "repository": "jack/aide"}`)
	for _, want := range []string{"**Issues (open):**", "#3: Crash on empty config", "Panics when config.yaml is empty."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunGetFileContent(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("# aide\n\nA personal assistant.\n"))
	c := githubServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/jack/aide/contents/README.md" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("ref") != "dev" {
			t.Errorf("ref = %q", r.URL.Query().Get("ref"))
		}
		json.NewEncoder(w).Encode(map[string]string{"content": encoded, "encoding": "base64"})
	})

	out := c.Run(context.Background(), `{"operation": "get_file_content", "repository": "jack/aide", "file_path": "README.md", "branch": "dev"}`)
	if !strings.Contains(out, "**File: README.md (branch: dev)**") {
		t.Errorf("output missing header:\n%s", out)
	}
	if !strings.Contains(out, "A personal assistant.") {
		t.Errorf("content not decoded:\n%s", out)
	}
}

func TestRunUnknownOperation(t *testing.T) {
	c := tools.NewGitHubClient("test-token")
	out := c.Run(context.Background(), `{"operation": "teleport"}`)
	if out != "Unknown operation: teleport" {
		t.Errorf("output = %q", out)
	}
}

func TestRunMissingToken(t *testing.T) {
	c := tools.NewGitHubClient("")
	out := c.Run(context.Background(), `{"operation": "list_repos"}`)
	if !strings.Contains(out, "not configured") {
		t.Errorf("output = %q", out)
	}
}

func TestRunMissingParams(t *testing.T) {
	c := tools.NewGitHubClient("test-token")
	out := c.Run(context.Background(), `{"operation": "get_repo_info"}`)
	if !strings.Contains(out, "repository parameter required") {
		t.Errorf("output = %q", out)
	}
}

func TestRunAPIError(t *testing.T) {
	c := githubServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "Not Found"}`))
	})

	out := c.Run(context.Background(), `{"operation": "get_repo_info", "repository": "jack/ghost"}`)
	if !strings.Contains(out, "Not Found") {
		t.Errorf("output = %q", out)
	}
}
