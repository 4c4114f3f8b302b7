package ai

import (
	"context"
	"sync"
)

// MockReply is one scripted answer of a MockProvider.
type MockReply struct {
	Content string
	Err     error
}

// MockProvider is a test double for AI providers. Scripted Replies are
// consumed in order; once they run out, Response and Err apply.
type MockProvider struct {
	Response string
	Err      error
	Replies  []MockReply

	mu          sync.Mutex
	Requests    []CompletionRequest
	LastRequest *CompletionRequest // captures the last request for inspection
}

// NewMockProvider creates a MockProvider that returns the given response.
func NewMockProvider(response string) *MockProvider {
	return &MockProvider{Response: response}
}

// NewScriptedMockProvider creates a MockProvider that answers with replies in order.
func NewScriptedMockProvider(replies ...MockReply) *MockProvider {
	return &MockProvider{Replies: replies}
}

func (m *MockProvider) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, req)
	m.LastRequest = &m.Requests[len(m.Requests)-1]

	content, err := m.Response, m.Err
	if len(m.Replies) > 0 {
		content, err = m.Replies[0].Content, m.Replies[0].Err
		m.Replies = m.Replies[1:]
	}
	if err != nil {
		return CompletionResponse{}, err
	}
	return CompletionResponse{
		Content:      content,
		Model:        "mock",
		InputTokens:  10,
		OutputTokens: len(content),
	}, nil
}

// Calls returns how many completions were requested.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

func (m *MockProvider) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "mock", Name: "Mock Model", MaxTokens: 4096, Description: "Test mock"},
	}
}

func (m *MockProvider) HealthCheck(_ context.Context) error {
	return m.Err
}
