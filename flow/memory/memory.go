// Package memory provides the session memory capability consumed by memory
// nodes: a short-term transcript of the current session and a searchable
// long-term store of past material.
//
// Memory failures are never fatal to a workflow run; callers log and
// continue. The file-backed implementation keeps everything as plain files
// under the session storage directory so memories survive restarts and can
// be inspected or edited by hand.
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Entry is one stored memory document.
type Entry struct {
	// Filename identifies the entry within its store.
	Filename string `json:"filename"`

	// Source describes where the entry came from ("transcript", "manual",
	// an import path).
	Source string `json:"source"`

	// Content is the entry text.
	Content string `json:"content"`

	// CharCount is len(Content) at write time.
	CharCount int `json:"char_count"`
}

// SearchResult is one scored hit from Manager.Search.
type SearchResult struct {
	Entry Entry   `json:"entry"`
	Score float64 `json:"score"`
}

// Manager is the memory capability handed to workflow nodes.
type Manager interface {
	// Initialize prepares the backing store. Called once at session init.
	Initialize() error

	// RecordMessage appends one message to the short-term transcript.
	RecordMessage(role, content string) error

	// Search returns up to maxResults long-term entries relevant to query,
	// best first.
	Search(query string, maxResults int) ([]SearchResult, error)

	// AutoFlush persists the short-term transcript into long-term storage.
	// Called best-effort at session cleanup.
	AutoFlush() error
}

// FileManager is a directory-backed Manager. Layout under dir:
//
//	transcript.jsonl   short-term transcript, one message per line
//	memory/*.md        long-term entries
type FileManager struct {
	mu  sync.Mutex
	dir string
}

// NewFileManager returns a FileManager rooted at dir.
func NewFileManager(dir string) *FileManager {
	return &FileManager{dir: dir}
}

// Initialize creates the storage directories.
func (m *FileManager) Initialize() error {
	if err := os.MkdirAll(m.longTermDir(), 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	return nil
}

func (m *FileManager) transcriptPath() string { return filepath.Join(m.dir, "transcript.jsonl") }
func (m *FileManager) longTermDir() string    { return filepath.Join(m.dir, "memory") }

type transcriptLine struct {
	Time    time.Time `json:"time"`
	Role    string    `json:"role"`
	Content string    `json:"content"`
}

// RecordMessage appends one message to the transcript file.
func (m *FileManager) RecordMessage(role, content string) error {
	b, err := json.Marshal(transcriptLine{Time: time.Now().UTC(), Role: role, Content: content})
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := os.OpenFile(m.transcriptPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()
	_, err = f.Write(append(b, '\n'))
	return err
}

// Search scores every long-term entry by query term overlap and returns the
// top maxResults hits. Scoring counts occurrences of each query term,
// case-insensitive; entries with no overlap are skipped.
func (m *FileManager) Search(query string, maxResults int) ([]SearchResult, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	names, err := filepath.Glob(filepath.Join(m.longTermDir(), "*.md"))
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, path := range names {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		content := string(data)
		lower := strings.ToLower(content)
		score := 0.0
		for _, t := range terms {
			score += float64(strings.Count(lower, t))
		}
		if score == 0 {
			continue
		}
		results = append(results, SearchResult{
			Entry: Entry{
				Filename:  filepath.Base(path),
				Source:    "memory",
				Content:   content,
				CharCount: len(content),
			},
			Score: score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// AutoFlush moves the current transcript into a timestamped long-term entry
// and truncates the transcript. A missing or empty transcript is a no-op.
func (m *FileManager) AutoFlush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.transcriptPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Session transcript (%s)\n\n", time.Now().UTC().Format(time.RFC3339))
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var msg transcriptLine
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue
		}
		fmt.Fprintf(&sb, "**%s**: %s\n\n", msg.Role, msg.Content)
	}

	if err := os.MkdirAll(m.longTermDir(), 0o755); err != nil {
		return err
	}
	name := fmt.Sprintf("transcript-%s.md", time.Now().UTC().Format("20060102-150405"))
	if err := os.WriteFile(filepath.Join(m.longTermDir(), name), []byte(sb.String()), 0o644); err != nil {
		return err
	}
	return os.Truncate(m.transcriptPath(), 0)
}

// Put writes a long-term entry directly. Used by imports and tests.
func (m *FileManager) Put(filename, content string) error {
	if err := os.MkdirAll(m.longTermDir(), 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(m.longTermDir(), filename), []byte(content), 0o644)
}

func tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,;:!?\"'()[]{}")
		if len(f) >= 3 {
			out = append(out, f)
		}
	}
	return out
}
