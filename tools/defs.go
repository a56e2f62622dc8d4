// Package tools implements the web search and GitHub capabilities the
// assistant can reach for while answering, plus the JSON Schema
// definitions that describe them to tool-calling providers.
package tools

import (
	"github.com/becomeliminal/aide/llm"
)

// Definitions returns the tool set advertised to providers that support
// native tool calling.
func Definitions() []llm.Tool {
	return []llm.Tool{
		{
			Name: "google_search",
			Description: "Search Google for current information, news, facts, or recent developments. " +
				"Use this when the question requires up-to-date information that might not be in the knowledge base.",
			InputSchema: ObjectSchema(map[string]interface{}{
				"query": StringProperty("The search query to execute"),
			}, "query"),
		},
		{
			Name: "github_operations",
			Description: "Perform GitHub operations. Available operations: " +
				"list_repos lists all repositories accessible to the user, " +
				"get_repo_info describes a specific repository, " +
				"create_issue opens an issue in a repository, " +
				"list_issues lists open issues in a repository, " +
				"get_file_content reads a file from a repository.",
			InputSchema: ObjectSchema(map[string]interface{}{
				"operation": StringEnumProperty("Operation to perform",
					"list_repos", "get_repo_info", "create_issue", "list_issues", "get_file_content"),
				"repository":  StringProperty("Repository name (owner/repo)"),
				"issue_title": StringProperty("Issue title (for create_issue)"),
				"issue_body":  StringProperty("Issue body (for create_issue)"),
				"file_path":   StringProperty("File path (for get_file_content)"),
				"branch":      StringProperty("Branch name (for get_file_content, defaults to main)"),
			}, "operation"),
		},
	}
}
