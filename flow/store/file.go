package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dshills/agentflow-go/flow"
)

// FileStore persists workflow definitions as one JSON file per workflow
// under a directory. Designed for local development: the files are
// human-readable and editable.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates a file-backed store rooted at dir, creating the
// directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// path maps a workflow ID to its file. IDs are sanitized to a safe
// character set so a crafted ID cannot escape the store directory.
func (s *FileStore) path(id string) string {
	var sb strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	return filepath.Join(s.dir, sb.String()+".json")
}

// Save implements Store.
func (s *FileStore) Save(_ context.Context, def *flow.Definition) error {
	if def == nil || def.ID == "" {
		return fmt.Errorf("definition must have an ID")
	}
	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.WriteFile(s.path(def.ID), data, 0o644); err != nil {
		return fmt.Errorf("failed to write workflow file: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, id string) (*flow.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(id))
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}

	var def flow.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow: %w", err)
	}
	return &def, nil
}

// Delete implements Store.
func (s *FileStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(id))
	if os.IsNotExist(err) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete workflow file: %w", err)
	}
	return nil
}

// ListAll implements Store. Results are sorted by name for stable output.
func (s *FileStore) ListAll(_ context.Context) ([]*flow.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read store directory: %w", err)
	}

	defs := make([]*flow.Definition, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read workflow file: %w", err)
		}
		var def flow.Definition
		if err := json.Unmarshal(data, &def); err != nil {
			// Skip unparseable files rather than failing the whole listing.
			continue
		}
		defs = append(defs, &def)
	}

	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// ListTemplates implements Store.
func (s *FileStore) ListTemplates(ctx context.Context) ([]*flow.Definition, error) {
	defs, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return splitByTemplate(defs, true), nil
}

// ListUserWorkflows implements Store.
func (s *FileStore) ListUserWorkflows(ctx context.Context) ([]*flow.Definition, error) {
	defs, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return splitByTemplate(defs, false), nil
}

// Exists implements Store.
func (s *FileStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.path(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat workflow file: %w", err)
	}
	return true, nil
}

// Close implements Store. Files need no teardown.
func (s *FileStore) Close() error { return nil }

// Dir returns the store's root directory.
func (s *FileStore) Dir() string { return s.dir }
