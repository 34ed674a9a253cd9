package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockResponse is one scripted reply.
type MockResponse struct {
	Content   string
	ToolCalls []ToolCall
	Err       error
}

// MockClient returns scripted responses in order, repeating the last one.
// With no script it echoes the latest user message, which keeps local runs
// usable without provider credentials.
type MockClient struct {
	mu        sync.Mutex
	responses []MockResponse
	next      int
	calls     []ChatRequest
}

func NewMockClient(responses ...MockResponse) *MockClient {
	return &MockClient{responses: responses}
}

func (m *MockClient) Name() string { return "mock" }

func (m *MockClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	select {
	case <-ctx.Done():
		return ChatResponse{}, ctx.Err()
	default:
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)

	if len(m.responses) == 0 {
		return ChatResponse{Content: echoReply(req)}, nil
	}
	idx := m.next
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	} else {
		m.next++
	}
	r := m.responses[idx]
	if r.Err != nil {
		return ChatResponse{}, r.Err
	}
	return ChatResponse{Content: r.Content, ToolCalls: r.ToolCalls}, nil
}

// Calls returns a copy of every request received so far.
func (m *MockClient) Calls() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ChatRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

func echoReply(req ChatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		m := req.Messages[i]
		if m.Role != RoleUser {
			continue
		}
		if m.Image != nil {
			return fmt.Sprintf("I see an image (%d bytes).", len(m.Image.Data))
		}
		if text := strings.TrimSpace(m.Content); text != "" {
			return fmt.Sprintf("I heard you: %s", text)
		}
	}
	return "I am listening."
}
