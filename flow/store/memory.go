package store

import (
	"context"
	"sort"
	"sync"

	"github.com/dshills/agentflow-go/flow"
)

// MemoryStore is an in-memory Store for tests and prototyping. Data is lost
// when the process exits.
type MemoryStore struct {
	mu   sync.RWMutex
	defs map[string]*flow.Definition
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{defs: make(map[string]*flow.Definition)}
}

// Save implements Store. Stored and loaded definitions are shallow copies:
// callers must not mutate the Nodes or Edges slices of a loaded definition
// in place.
func (s *MemoryStore) Save(_ context.Context, def *flow.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *def
	s.defs[def.ID] = &cp
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, id string) (*flow.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.defs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *def
	return &cp, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[id]; !ok {
		return ErrNotFound
	}
	delete(s.defs, id)
	return nil
}

// ListAll implements Store.
func (s *MemoryStore) ListAll(_ context.Context) ([]*flow.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	defs := make([]*flow.Definition, 0, len(s.defs))
	for _, def := range s.defs {
		cp := *def
		defs = append(defs, &cp)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

// ListTemplates implements Store.
func (s *MemoryStore) ListTemplates(ctx context.Context) ([]*flow.Definition, error) {
	defs, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return splitByTemplate(defs, true), nil
}

// ListUserWorkflows implements Store.
func (s *MemoryStore) ListUserWorkflows(ctx context.Context) ([]*flow.Definition, error) {
	defs, err := s.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return splitByTemplate(defs, false), nil
}

// Exists implements Store.
func (s *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.defs[id]
	return ok, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
