// Package maintenance consolidates the memory repository.
//
// Every answered question can leave a small memory record behind, and
// over time most of them are conversational noise. The maintenance job
// classifies each record as a solid instruction or simple talk, folds
// the important information from the simple talks into one rolling
// document at memories/dynamic_memory.json, deletes the consolidated
// files, and commits the result as a single push.
//
// When extraction produces nothing the source files stay in place and
// nothing is committed. A failed push rolls the commit back and the
// run reports an error.
package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/becomeliminal/aide/llm"
	"github.com/becomeliminal/aide/memory"
	"github.com/becomeliminal/aide/memory/repository"
)

// Statuses reported by Run.
const (
	StatusSuccess    = "success"
	StatusNoMemories = "no_memories"
)

const (
	memoriesDir       = "memories"
	memoryFilePattern = "memory_*.json"
	dynamicMemoryFile = "dynamic_memory.json"

	categorySolid      = "solid_instruction"
	categorySimpleTalk = "simple_talk"
)

// Report summarizes one maintenance run.
type Report struct {
	Status               string `json:"status"`
	TotalMemories        int    `json:"total_memories"`
	SolidInstructions    int    `json:"solid_instructions"`
	SimpleTalks          int    `json:"simple_talks"`
	DeletedFiles         int    `json:"deleted_files"`
	DynamicMemoryUpdated bool   `json:"dynamic_memory_updated"`
}

// DynamicMemory is the rolling consolidation document stored at
// memories/dynamic_memory.json in the repository.
type DynamicMemory struct {
	Version             string         `json:"version"`
	Created             string         `json:"created"`
	LastUpdated         string         `json:"last_updated"`
	IntegratedInfo      string         `json:"integrated_info"`
	SourceMemoriesCount int            `json:"source_memories_count"`
	UpdateHistory       []UpdateRecord `json:"update_history"`
}

// UpdateRecord is one line of consolidation history.
type UpdateRecord struct {
	Timestamp            string `json:"timestamp"`
	MemoriesIntegrated   int    `json:"memories_integrated"`
	IntegratedInfoLength int    `json:"integrated_info_length"`
}

// Repository is the slice of the git-backed memory store the job needs.
type Repository interface {
	EnsureReady(ctx context.Context) (string, error)
	CommitAndPush(ctx context.Context, message string) error
}

// Maintainer runs the consolidation job against one repository.
type Maintainer struct {
	provider llm.Provider
	repo     Repository
}

// New creates a Maintainer that uses provider for classification and
// consolidation requests.
func New(provider llm.Provider, repo Repository) *Maintainer {
	return &Maintainer{provider: provider, repo: repo}
}

// record pairs a loaded entry with the file it came from. Deletion goes
// by file, not by source, so records with hand-edited source fields
// still resolve.
type record struct {
	entry memory.Entry
	file  string
}

// verdict is the JSON shape of one categorization response.
type verdict struct {
	Category         string `json:"category"`
	Reasoning        string `json:"reasoning"`
	HasImportantInfo bool   `json:"has_important_info"`
	ImportantInfo    string `json:"important_info"`
}

const categorizePrompt = `Analyze the following memory and categorize it:

Memory Content: %s
Source: %s
Timestamp: %s

Categorize this memory into one of two categories:
1. "solid_instruction" - Contains important instructions, preferences, facts, or information that should be preserved as-is
2. "simple_talk" - Contains casual conversation, testing, or simple interactions that can be integrated into a summary

Consider:
- Does it contain actionable instructions or important facts?
- Is it a preference or setting that should be remembered?
- Is it just casual conversation or testing?
- Does it have lasting value or is it transient?

Respond with JSON:
{
    "category": "solid_instruction" or "simple_talk",
    "reasoning": "brief explanation of why",
    "has_important_info": true/false,
    "important_info": "extracted important information if has_important_info is true, otherwise null"
}
`

const extractPrompt = `Analyze the following simple talk memories and extract all important information.

These are casual conversations or testing interactions. Extract:
- Important facts mentioned
- Preferences expressed
- Questions asked and answers given
- Any actionable information
- User characteristics or patterns

Ignore:
- Generic greetings
- Pure testing without substance
- Redundant information already captured

Memories:
%s

Provide a comprehensive summary that integrates all important information from these memories.
Focus on extracting facts, preferences, and useful information, not the conversation flow itself.
`

const integratePrompt = `Integrate the following new information with existing integrated information.

Existing Integrated Information:
%s

New Information to Integrate:
%s

Provide a comprehensive, integrated summary that:
- Combines both sets of information
- Removes redundancy
- Maintains all important facts and preferences
- Organizes information logically
- Updates any conflicting information with the newer data
`

// Run executes one maintenance pass and reports what it did.
//
// A record that cannot be categorized counts as simple talk. Extraction
// failure ends the run with the report so far and no file changes.
// Commit or push failure returns an error after the checkout has been
// rolled back.
func (m *Maintainer) Run(ctx context.Context) (*Report, error) {
	log.Printf("[MAINT] Starting memory maintenance")

	root, err := m.repo.EnsureReady(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare repository: %w", err)
	}

	records, err := loadRecords(root)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		log.Printf("[MAINT] No memories to maintain")
		return &Report{Status: StatusNoMemories}, nil
	}

	log.Printf("[MAINT] Categorizing %d memories", len(records))
	var solid, simple []record
	for _, r := range records {
		if m.categorize(ctx, r.entry) == categorySolid {
			solid = append(solid, r)
		} else {
			simple = append(simple, r)
		}
	}
	log.Printf("[MAINT] Categorized: %d solid instructions, %d simple talks", len(solid), len(simple))

	report := &Report{
		Status:            StatusSuccess,
		TotalMemories:     len(records),
		SolidInstructions: len(solid),
		SimpleTalks:       len(simple),
	}
	if len(simple) == 0 {
		log.Printf("[MAINT] No simple talks to integrate")
		return report, nil
	}

	extracted := m.extract(ctx, simple)
	if extracted == "" {
		log.Printf("[MAINT] Nothing extracted from simple talks, keeping files")
		return report, nil
	}

	if err := m.integrate(ctx, root, len(simple), extracted); err != nil {
		return nil, err
	}
	report.DynamicMemoryUpdated = true
	report.DeletedFiles = deleteFiles(uniqueFiles(simple))

	message := fmt.Sprintf("Memory maintenance: Integrated %d simple talks into dynamic memory, deleted %d files",
		len(simple), report.DeletedFiles)
	if err := m.repo.CommitAndPush(ctx, message); err != nil {
		return nil, fmt.Errorf("commit maintenance changes: %w", err)
	}

	return report, nil
}

// categorize classifies one entry. Any failure, transport or parse,
// counts as simple talk.
func (m *Maintainer) categorize(ctx context.Context, entry memory.Entry) string {
	prompt := fmt.Sprintf(categorizePrompt, entry.Content, entry.Source, entry.Timestamp)
	resp, err := m.provider.Generate(ctx, &llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: prompt}},
	})
	if err != nil {
		log.Printf("[MAINT] Categorization failed for %s: %v", entry.Source, err)
		return categorySimpleTalk
	}

	payload := extractJSON(resp.Text)
	if payload == "" {
		log.Printf("[MAINT] No JSON in categorization response for %s", entry.Source)
		return categorySimpleTalk
	}
	var v verdict
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		log.Printf("[MAINT] Malformed categorization for %s: %v", entry.Source, err)
		return categorySimpleTalk
	}

	log.Printf("[MAINT]   %s categorized as %s: %s", entry.Source, v.Category, truncate(v.Reasoning, 120))
	if v.HasImportantInfo && v.ImportantInfo != "" {
		log.Printf("[MAINT]   Flagged info in %s: %s", entry.Source, truncate(v.ImportantInfo, 120))
	}
	if v.Category != categorySolid {
		return categorySimpleTalk
	}
	return categorySolid
}

// extract pulls the important information out of the simple talk batch
// in one request. A failed or empty response yields "".
func (m *Maintainer) extract(ctx context.Context, records []record) string {
	log.Printf("[MAINT] Extracting important information from %d simple talk memories", len(records))

	summaries := make([]string, len(records))
	for i, r := range records {
		summaries[i] = fmt.Sprintf("Memory %d (%s):\n%s\nSource: %s\n",
			i+1, r.entry.Timestamp, r.entry.Content, r.entry.Source)
	}

	resp, err := m.provider.Generate(ctx, &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: fmt.Sprintf(extractPrompt, strings.Join(summaries, "\n---\n"))},
		},
	})
	if err != nil {
		log.Printf("[MAINT] Extraction failed: %v", err)
		return ""
	}
	return strings.TrimSpace(resp.Text)
}

// integrate folds the extracted information into the dynamic memory
// document on disk.
func (m *Maintainer) integrate(ctx context.Context, root string, integrated int, extracted string) error {
	file := filepath.Join(root, memoriesDir, dynamicMemoryFile)
	now := time.Now().Format(time.RFC3339)

	dynamic := loadDynamicMemory(file, now)
	merged := extracted
	if dynamic.IntegratedInfo != "" {
		merged = m.merge(ctx, dynamic.IntegratedInfo, extracted)
	}

	dynamic.IntegratedInfo = merged
	dynamic.LastUpdated = now
	dynamic.SourceMemoriesCount += integrated
	dynamic.UpdateHistory = append(dynamic.UpdateHistory, UpdateRecord{
		Timestamp:            now,
		MemoriesIntegrated:   integrated,
		IntegratedInfoLength: len(merged),
	})

	data, err := json.MarshalIndent(dynamic, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dynamic memory: %w", err)
	}
	if err := os.WriteFile(file, data, 0o644); err != nil {
		return fmt.Errorf("write dynamic memory: %w", err)
	}
	log.Printf("[MAINT] Saved dynamic memory (%d chars integrated)", len(merged))
	return nil
}

// merge asks the model to fold new information into the existing
// summary. On failure the new information is appended instead so
// nothing is lost.
func (m *Maintainer) merge(ctx context.Context, existing, fresh string) string {
	resp, err := m.provider.Generate(ctx, &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: fmt.Sprintf(integratePrompt, existing, fresh)},
		},
	})
	if err != nil {
		log.Printf("[MAINT] Integration request failed, appending instead: %v", err)
		return existing + "\n\n---\n\n" + fresh
	}
	merged := strings.TrimSpace(resp.Text)
	if merged == "" {
		log.Printf("[MAINT] Empty integration response, appending instead")
		return existing + "\n\n---\n\n" + fresh
	}
	log.Printf("[MAINT] Integrated new information with existing summary")
	return merged
}

// loadRecords reads every memories/memory_*.json file under root.
// Unreadable files are logged and skipped so one corrupt record cannot
// halt maintenance.
func loadRecords(root string) ([]record, error) {
	matches, err := filepath.Glob(filepath.Join(root, memoriesDir, memoryFilePattern))
	if err != nil {
		return nil, fmt.Errorf("scan memories: %w", err)
	}

	var records []record
	for _, file := range matches {
		rel, err := filepath.Rel(root, file)
		if err != nil {
			rel = filepath.Base(file)
		}
		entries, err := repository.ReadRecords(file, filepath.ToSlash(rel))
		if err != nil {
			log.Printf("[MAINT] Skipping unreadable memory file %s: %v", filepath.Base(file), err)
			continue
		}
		for _, e := range entries {
			records = append(records, record{entry: e, file: file})
		}
	}

	log.Printf("[MAINT] Loaded %d memories from repository", len(records))
	return records, nil
}

// loadDynamicMemory reads the consolidation document, or starts a fresh
// one when the file is missing or unreadable.
func loadDynamicMemory(file, now string) *DynamicMemory {
	fresh := &DynamicMemory{Version: "1.0", Created: now, LastUpdated: now}

	data, err := os.ReadFile(file)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[MAINT] Unreadable dynamic memory, starting fresh: %v", err)
		}
		return fresh
	}
	var dynamic DynamicMemory
	if err := json.Unmarshal(data, &dynamic); err != nil {
		log.Printf("[MAINT] Malformed dynamic memory, starting fresh: %v", err)
		return fresh
	}
	if dynamic.Version == "" {
		dynamic.Version = "1.0"
	}
	if dynamic.Created == "" {
		dynamic.Created = now
	}
	return &dynamic
}

// uniqueFiles returns the distinct files behind the records, first-seen
// order preserved.
func uniqueFiles(records []record) []string {
	seen := make(map[string]bool, len(records))
	var files []string
	for _, r := range records {
		if r.file == "" || seen[r.file] {
			continue
		}
		seen[r.file] = true
		files = append(files, r.file)
	}
	return files
}

// deleteFiles removes the consolidated source files and returns how
// many were actually deleted.
func deleteFiles(files []string) int {
	deleted := 0
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			log.Printf("[MAINT] Error deleting memory file %s: %v", filepath.Base(file), err)
			continue
		}
		log.Printf("[MAINT] Deleted memory file: %s", filepath.Base(file))
		deleted++
	}
	return deleted
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

// truncate shortens text for log lines.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
