package memory

import "sync"

// MockManager is an in-memory Manager for tests: scripted search results,
// recorded calls, and optional injected errors.
type MockManager struct {
	mu sync.Mutex

	// Results is returned by Search (truncated to maxResults).
	Results []SearchResult

	// Errs, when set, are returned by the matching method.
	InitErr   error
	RecordErr error
	SearchErr error
	FlushErr  error

	// Recorded calls.
	Recorded    []Entry
	Searches    []string
	Initialized bool
	Flushed     int
}

// Initialize implements Manager.
func (m *MockManager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InitErr != nil {
		return m.InitErr
	}
	m.Initialized = true
	return nil
}

// RecordMessage implements Manager.
func (m *MockManager) RecordMessage(role, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.RecordErr != nil {
		return m.RecordErr
	}
	m.Recorded = append(m.Recorded, Entry{
		Filename:  role,
		Source:    "mock",
		Content:   content,
		CharCount: len(content),
	})
	return nil
}

// Search implements Manager.
func (m *MockManager) Search(query string, maxResults int) ([]SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	m.Searches = append(m.Searches, query)
	results := m.Results
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	out := make([]SearchResult, len(results))
	copy(out, results)
	return out, nil
}

// AutoFlush implements Manager.
func (m *MockManager) AutoFlush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FlushErr != nil {
		return m.FlushErr
	}
	m.Flushed++
	return nil
}
