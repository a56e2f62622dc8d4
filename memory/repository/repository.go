// Package repository syncs the memory corpus with its backing git
// repository.
//
// The corpus is a plain git checkout of JSON memory records plus
// free-form notes. EnsureReady clones or fast-forwards the checkout,
// LoadEntries reads every record on disk, and ApplyChanges writes
// creates and deletes as a single commit that is pushed immediately.
// When the push is rejected the commit is rolled back, so the checkout
// never diverges from the remote.
//
// Without a configured URL the package manages a purely local
// repository; changes are committed but never pushed.
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/becomeliminal/aide/memory"
)

// ErrAccessDenied reports that the remote rejected our credentials.
// Callers can distinguish it from transient git failures with errors.Is.
var ErrAccessDenied = errors.New("repository access denied")

const (
	commitAuthor = "aide"
	commitEmail  = "aide@localhost"

	defaultTimeout = 60 * time.Second
)

// Config holds the connection settings for the memory repository.
type Config struct {
	// URL is the remote repository. Empty puts the manager in
	// offline mode: a local repository at Path with no sync.
	URL string
	// Token authenticates against the remote. It is injected as the
	// username in the clone URL, the form GitHub expects.
	Token string
	// Path is the local checkout directory.
	Path string
	// Timeout bounds each network operation.
	Timeout time.Duration
}

// Changes is the set of memory mutations to persist atomically.
type Changes struct {
	Create []memory.Entry
	Delete []string
}

// Empty reports whether there is nothing to apply.
func (c Changes) Empty() bool {
	return len(c.Create) == 0 && len(c.Delete) == 0
}

// Manager owns the local checkout of the memory repository.
type Manager struct {
	url     string
	token   string
	path    string
	timeout time.Duration

	repo *git.Repository
}

// New returns a manager for the repository described by cfg.
func New(cfg Config) *Manager {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Manager{
		url:     cfg.URL,
		token:   cfg.Token,
		path:    cfg.Path,
		timeout: timeout,
	}
}

// Path returns the local checkout directory.
func (m *Manager) Path() string {
	return m.path
}

// EnsureReady makes the local checkout usable and returns its path. An
// existing clone is opened and fast-forwarded, a missing one is cloned.
// With no URL configured a local repository is initialized instead.
// The call is idempotent.
func (m *Manager) EnsureReady(ctx context.Context) (string, error) {
	if m.repo != nil {
		return m.path, nil
	}

	if m.url == "" {
		if err := m.openLocal(); err != nil {
			return "", err
		}
		return m.path, nil
	}

	repo, err := git.PlainOpen(m.path)
	switch {
	case err == nil:
		m.repo = repo
		if err := m.pull(ctx); err != nil {
			return "", err
		}
	case errors.Is(err, git.ErrRepositoryNotExists):
		if err := m.clone(ctx); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("open repository: %w", err)
	}

	log.Printf("[REPO] Memory repository ready at %s", m.path)
	return m.path, nil
}

// LoadEntries reads every memory record and note in the checkout.
// JSON files hold records, one per object file or one per array
// element; records without a source get the file's relative path.
// Markdown and text files come back as notes. Unreadable files are
// skipped, not fatal.
func (m *Manager) LoadEntries(ctx context.Context) ([]memory.Entry, []memory.Note, error) {
	if m.repo == nil {
		return nil, nil, errors.New("repository not ready")
	}

	var entries []memory.Entry
	var notes []memory.Note

	err := filepath.WalkDir(m.path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(m.path, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		switch strings.ToLower(filepath.Ext(path)) {
		case ".json":
			loaded, err := ReadRecords(path, rel)
			if err != nil {
				log.Printf("[REPO] Skipping unreadable memory file %s: %v", rel, err)
				return nil
			}
			entries = append(entries, loaded...)
		case ".md", ".txt":
			data, err := os.ReadFile(path)
			if err != nil {
				log.Printf("[REPO] Skipping unreadable note %s: %v", rel, err)
				return nil
			}
			notes = append(notes, memory.Note{Path: rel, Content: string(data)})
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk repository: %w", err)
	}

	log.Printf("[REPO] Loaded %d memories and %d notes from %s", len(entries), len(notes), m.path)
	return entries, notes, nil
}

// ApplyChanges persists the given mutations as one commit and pushes it.
// The whole batch either lands on the remote or leaves the checkout
// untouched: a failed push hard-resets the branch to the pre-commit
// HEAD. Deleting a source that no longer exists is logged and skipped.
// An empty change set is a no-op.
func (m *Manager) ApplyChanges(ctx context.Context, changes Changes) error {
	if m.repo == nil {
		return errors.New("repository not ready")
	}
	if changes.Empty() {
		return nil
	}

	now := time.Now()
	for i, entry := range changes.Create {
		if err := m.writeEntry(entry, now, i+1); err != nil {
			return err
		}
	}

	var deleted []string
	for _, source := range changes.Delete {
		ok, err := m.deleteSource(source)
		if err != nil {
			return err
		}
		if ok {
			deleted = append(deleted, source)
		}
	}

	return m.CommitAndPush(ctx, commitMessage(changes.Create, deleted, now))
}

// CommitAndPush stages every pending worktree change and records it as
// one commit with the given message, pushing when a remote is
// configured. A failed push hard-resets the branch to the pre-commit
// HEAD so the checkout never diverges from the remote. A clean
// worktree is a no-op.
func (m *Manager) CommitAndPush(ctx context.Context, message string) error {
	if m.repo == nil {
		return errors.New("repository not ready")
	}

	w, err := m.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	if err := w.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("stage changes: %w", err)
	}
	status, err := w.Status()
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	if status.IsClean() {
		log.Printf("[REPO] No memory changes to commit")
		return nil
	}

	prev, err := m.headHash()
	if err != nil {
		return err
	}

	hash, err := w.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: commitAuthor, Email: commitEmail, When: time.Now()},
	})
	if err != nil {
		return fmt.Errorf("commit changes: %w", err)
	}
	log.Printf("[REPO] Committed memory changes (%s)", hash.String()[:8])

	if !m.hasRemote() {
		log.Printf("[REPO] No remote configured, keeping changes local")
		return nil
	}

	if err := m.push(ctx); err != nil {
		if rbErr := m.rollback(w, prev); rbErr != nil {
			log.Printf("[REPO] Rollback after failed push also failed: %v", rbErr)
		} else {
			log.Printf("[REPO] Push failed, rolled back local commit")
		}
		return err
	}

	log.Printf("[REPO] Pushed memory changes to remote")
	return nil
}

func (m *Manager) openLocal() error {
	if err := os.MkdirAll(m.path, 0o755); err != nil {
		return fmt.Errorf("create repository dir: %w", err)
	}

	repo, err := git.PlainOpen(m.path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(m.path, false)
	}
	if err != nil {
		return fmt.Errorf("open local repository: %w", err)
	}

	m.repo = repo
	log.Printf("[REPO] Using local memory repository at %s (no remote configured)", m.path)
	return nil
}

func (m *Manager) clone(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	cloneURL := m.authURL()
	log.Printf("[REPO] Cloning memory repository from %s", maskURL(cloneURL))

	repo, err := git.PlainCloneContext(ctx, m.path, false, &git.CloneOptions{URL: cloneURL})
	if err != nil {
		return accessErr("clone repository", err)
	}
	m.repo = repo
	return nil
}

func (m *Manager) pull(ctx context.Context) error {
	w, err := m.repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err = w.PullContext(ctx, &git.PullOptions{RemoteName: "origin", Auth: m.auth()})
	switch {
	case err == nil:
		log.Printf("[REPO] Pulled latest memories")
	case errors.Is(err, git.NoErrAlreadyUpToDate):
		log.Printf("[REPO] Memory repository already up to date")
	default:
		return accessErr("pull repository", err)
	}
	return nil
}

func (m *Manager) push(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.repo.PushContext(ctx, &git.PushOptions{RemoteName: "origin", Auth: m.auth()})
	if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return accessErr("push changes", err)
}

// rollback returns the branch to the commit that preceded a failed
// push so a half-applied batch never survives locally.
func (m *Manager) rollback(w *git.Worktree, prev plumbing.Hash) error {
	if prev.IsZero() {
		return errors.New("no previous commit to reset to")
	}
	return w.Reset(&git.ResetOptions{Commit: prev, Mode: git.HardReset})
}

func (m *Manager) headHash() (plumbing.Hash, error) {
	ref, err := m.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return plumbing.ZeroHash, nil
		}
		return plumbing.ZeroHash, fmt.Errorf("read HEAD: %w", err)
	}
	return ref.Hash(), nil
}

func (m *Manager) hasRemote() bool {
	remotes, err := m.repo.Remotes()
	return err == nil && len(remotes) > 0
}

func (m *Manager) auth() transport.AuthMethod {
	if m.token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: m.token}
}

// authURL injects the access token as the URL username. URLs that
// already carry credentials are left alone.
func (m *Manager) authURL() string {
	if m.token == "" || !strings.HasPrefix(m.url, "https://") {
		return m.url
	}
	u, err := url.Parse(m.url)
	if err != nil || u.User != nil {
		return m.url
	}
	u.User = url.User(m.token)
	return u.String()
}

func (m *Manager) writeEntry(entry memory.Entry, now time.Time, n int) error {
	if entry.Timestamp == "" {
		entry.Timestamp = now.Format(time.RFC3339)
	}

	dir := filepath.Join(m.path, "memories")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create memories dir: %w", err)
	}

	name := fmt.Sprintf("memory_%s_%d.json", now.Format("20060102_150405"), n)
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encode memory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write memory file: %w", err)
	}

	log.Printf("[REPO] Wrote memory file memories/%s", name)
	return nil
}

// deleteSource removes the memory identified by source. A source that
// names a file removes the whole file; otherwise the matching record is
// removed from whichever JSON file holds it. Returns false when nothing
// matched.
func (m *Manager) deleteSource(source string) (bool, error) {
	full := filepath.Join(m.path, filepath.FromSlash(source))
	rel, err := filepath.Rel(m.path, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		log.Printf("[REPO] Ignoring memory source outside repository: %s", source)
		return false, nil
	}

	if info, err := os.Stat(full); err == nil && !info.IsDir() {
		if err := os.Remove(full); err != nil {
			return false, fmt.Errorf("delete memory file: %w", err)
		}
		log.Printf("[REPO] Deleted memory file %s", source)
		return true, nil
	}

	removed, err := m.deleteRecord(source)
	if err != nil {
		return false, err
	}
	if !removed {
		log.Printf("[REPO] No memory found for source %s, skipping", source)
	}
	return removed, nil
}

// deleteRecord removes the record with the given source from whichever
// JSON file holds it. Array files are rewritten in place and removed
// entirely once the last record is gone.
func (m *Manager) deleteRecord(source string) (bool, error) {
	var paths []string
	err := filepath.WalkDir(m.path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".json") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("walk repository: %w", err)
	}

	for _, path := range paths {
		rel, err := filepath.Rel(m.path, path)
		if err != nil {
			continue
		}
		rel = filepath.ToSlash(rel)

		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) == 0 {
			continue
		}

		if trimmed[0] == '[' {
			var list []memory.Entry
			if json.Unmarshal(trimmed, &list) != nil {
				continue
			}
			kept := make([]memory.Entry, 0, len(list))
			for _, e := range list {
				src := e.Source
				if src == "" {
					src = rel
				}
				if src != source {
					kept = append(kept, e)
				}
			}
			if len(kept) == len(list) {
				continue
			}
			if len(kept) == 0 {
				if err := os.Remove(path); err != nil {
					return false, fmt.Errorf("delete emptied memory file: %w", err)
				}
				log.Printf("[REPO] Removed %s after deleting its last memory", rel)
				return true, nil
			}
			out, err := json.MarshalIndent(kept, "", "  ")
			if err != nil {
				return false, fmt.Errorf("encode memory file: %w", err)
			}
			if err := os.WriteFile(path, out, 0o644); err != nil {
				return false, fmt.Errorf("rewrite memory file: %w", err)
			}
			log.Printf("[REPO] Deleted memory %s from %s", source, rel)
			return true, nil
		}

		var one memory.Entry
		if json.Unmarshal(trimmed, &one) != nil {
			continue
		}
		src := one.Source
		if src == "" {
			src = rel
		}
		if src == source {
			if err := os.Remove(path); err != nil {
				return false, fmt.Errorf("delete memory file: %w", err)
			}
			log.Printf("[REPO] Deleted memory file %s (source %s)", rel, source)
			return true, nil
		}
	}

	return false, nil
}

// ReadRecords parses one memory file into entries. Arrays yield one
// entry per element, objects exactly one. Records without a source get
// rel, the file's repository-relative path.
func ReadRecords(path, rel string) ([]memory.Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var list []memory.Entry
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		for i := range list {
			if list[i].Source == "" {
				list[i].Source = rel
			}
		}
		return list, nil
	}

	var one memory.Entry
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, err
	}
	if one.Source == "" {
		one.Source = rel
	}
	return []memory.Entry{one}, nil
}

// commitMessage builds the summary line plus timestamp trailer. Batches
// with creates use the create summary even when deletes rode along.
func commitMessage(created []memory.Entry, deleted []string, now time.Time) string {
	var summary string
	switch {
	case len(created) > 0:
		first := created[0]
		summary = fmt.Sprintf("Add memory: %s (user: %s)", clip(first.Content, 100), first.User)
	default:
		shown := deleted
		if len(shown) > 3 {
			shown = shown[:3]
		}
		parts := make([]string, len(shown))
		for i, s := range shown {
			parts[i] = clip(s, 50)
		}
		summary = fmt.Sprintf("Delete %d outdated memory(ies): %s", len(deleted), strings.Join(parts, ", "))
		if extra := len(deleted) - len(shown); extra > 0 {
			summary += fmt.Sprintf(" and %d more", extra)
		}
	}
	return summary + fmt.Sprintf("\n\nTimestamp: %s", now.Format("2006-01-02 15:04:05"))
}

// accessErr maps credential rejections onto ErrAccessDenied so callers
// can tell them apart from transient git failures.
func accessErr(op string, err error) error {
	if errors.Is(err, transport.ErrAuthenticationRequired) || errors.Is(err, transport.ErrAuthorizationFailed) {
		return fmt.Errorf("%s: %w: %v", op, ErrAccessDenied, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// maskURL hides embedded credentials so tokens never reach the logs.
func maskURL(raw string) string {
	at := strings.Index(raw, "@")
	if at < 0 {
		return raw
	}
	head := raw[:at]
	if len(head) > 10 {
		head = head[:10]
	}
	return head + "***@" + raw[at+1:]
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
