package model

import (
	"context"
	"errors"
	"sync"
)

// MockAdapter is a scripted Adapter for tests.
//
// Responses are returned in order; when they run out, the last one repeats.
// Errs, when set, are consumed in order before responses (a nil entry means
// "no error for this call"). Every call is appended to Calls.
type MockAdapter struct {
	mu sync.Mutex

	// Responses are the scripted results, consumed in order.
	Responses []Result

	// Errs are per-call errors consumed alongside responses.
	Errs []error

	// Calls records the messages and options of every Invoke.
	Calls []MockCall

	// CleanedUp counts Cleanup invocations.
	CleanedUp int

	call int
}

// MockCall is one recorded Invoke.
type MockCall struct {
	Messages []Message
	Opts     InvokeOptions
}

// NewMockAdapter scripts a sequence of plain-text responses.
func NewMockAdapter(responses ...string) *MockAdapter {
	m := &MockAdapter{}
	for _, r := range responses {
		m.Responses = append(m.Responses, Result{Content: r, StopReason: "end_turn"})
	}
	return m
}

// Invoke implements Adapter.
func (m *MockAdapter) Invoke(ctx context.Context, messages []Message, opts InvokeOptions) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := make([]Message, len(messages))
	copy(msgs, messages)
	m.Calls = append(m.Calls, MockCall{Messages: msgs, Opts: opts})

	idx := m.call
	m.call++

	if idx < len(m.Errs) && m.Errs[idx] != nil {
		return Result{}, m.Errs[idx]
	}
	if len(m.Responses) == 0 {
		return Result{}, errors.New("mock adapter has no scripted responses")
	}
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	res := m.Responses[idx]
	if res.Model == "" {
		res.Model = opts.Model
	}
	return res, nil
}

// Cleanup implements Adapter.
func (m *MockAdapter) Cleanup(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CleanedUp++
	return nil
}

// Initialized implements Adapter.
func (m *MockAdapter) Initialized() bool { return true }

// Metadata implements Adapter.
func (m *MockAdapter) Metadata() Metadata {
	return Metadata{SessionID: "mock", ModelName: "mock-model"}
}

// CallCount returns the number of Invoke calls so far.
func (m *MockAdapter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}
