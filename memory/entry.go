package memory

// Entry is one structured memory record.
//
// Source is the stable identity of an entry: relevance lists and
// delete requests refer to entries by source, which is the
// repository-relative path of the file the entry was loaded from.
type Entry struct {
	Content         string `json:"content"`
	Source          string `json:"source"`
	Timestamp       string `json:"timestamp"`
	User            string `json:"user,omitempty"`
	RelatedQuestion string `json:"related_question,omitempty"`
}

// Note is a freeform markdown or text file from the repository.
// Notes are carried as context material but are never indexed for
// similarity search and never offered to the analyzer for deletion.
type Note struct {
	Path    string
	Content string
}

// truncate shortens s to maxLen, marking the cut with "...".
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen < 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}

// truncateLog shortens text for log lines.
func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
