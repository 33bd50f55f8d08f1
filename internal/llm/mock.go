package llm

import (
	"context"
	"fmt"
	"sync"

	"morgus/internal/agent/ports"
)

// MockClient implements ports.LLMClient with a scripted sequence of
// responses, for tests and offline runs.
type MockClient struct {
	mu        sync.Mutex
	model     string
	responses []*ports.CompletionResponse
	index     int

	// Requests records every request received, in order.
	Requests []ports.CompletionRequest
}

// NewMockClient returns a client that replays responses in order. Once the
// script is exhausted it keeps returning the final response.
func NewMockClient(model string, responses ...*ports.CompletionResponse) *MockClient {
	return &MockClient{model: model, responses: responses}
}

func (m *MockClient) Model() string {
	return m.model
}

func (m *MockClient) Complete(ctx context.Context, req ports.CompletionRequest) (*ports.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, req)

	if len(m.responses) == 0 {
		return nil, fmt.Errorf("mock client has no scripted responses")
	}
	resp := m.responses[m.index]
	if m.index < len(m.responses)-1 {
		m.index++
	}
	return resp, nil
}

// CallCount reports how many completions were requested.
func (m *MockClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// TextResponse builds a plain assistant reply.
func TextResponse(content string) *ports.CompletionResponse {
	return &ports.CompletionResponse{
		Content:    content,
		StopReason: "stop",
		Usage:      ports.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

// ToolCallResponse builds a reply that requests the given tool calls.
func ToolCallResponse(calls ...ports.ToolCall) *ports.CompletionResponse {
	return &ports.CompletionResponse{
		ToolCalls:  calls,
		StopReason: "tool_calls",
		Usage:      ports.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}
