package mock

import (
	"context"
	"strings"
	"sync"
)

// MockCompleter is a test double for ai.Completer.
// It allows custom behavior injection via function fields.
// Safe for concurrent use, matching the real completer.
type MockCompleter struct {
	// CompleteFunc is called by Complete if set.
	// If nil, returns a short canned completion.
	CompleteFunc func(ctx context.Context, prompt string) (string, error)

	// CountTokensFunc is called by CountTokens if set.
	// If nil, counts whitespace-separated words, which is close enough to a
	// real tokenizer for threshold tests.
	CountTokensFunc func(text string) int

	mu        sync.Mutex
	callCount int
}

// NewMockCompleter creates a mock completer with default behavior.
// Note: Returns concrete type to allow test assertions via GetMockCompleter().
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{}
}

// Complete returns the injected completion or a canned response.
func (m *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}

	return "mock completion", nil
}

// CountTokens counts tokens with the injected function or by word count.
func (m *MockCompleter) CountTokens(text string) int {
	if m.CountTokensFunc != nil {
		return m.CountTokensFunc(text)
	}
	return len(strings.Fields(text))
}

// CallCount returns the number of times Complete was called.
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset clears the call count and injected behavior.
func (m *MockCompleter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.CompleteFunc = nil
	m.CountTokensFunc = nil
}
