package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicClientChat(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q, want /v1/messages", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude",
			"content": [
				{"type": "text", "text": "Let me check."},
				{"type": "tool_use", "id": "tu_1", "name": "get_current_time", "input": {"timezone": "Asia/Tokyo"}}
			],
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 20, "output_tokens": 7}
		}`))
	}))
	defer srv.Close()

	c, err := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewAnthropicClient() error = %v", err)
	}
	resp, err := c.Chat(context.Background(), ChatRequest{
		Model:     "claude",
		System:    "sys",
		Messages:  []Message{{Role: RoleUser, Content: "time in Tokyo?"}},
		MaxTokens: 256,
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if resp.Content != "Let me check." {
		t.Fatalf("Content = %q", resp.Content)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].ID != "tu_1" {
		t.Fatalf("ToolCalls = %+v", resp.ToolCalls)
	}
	var args map[string]string
	if err := json.Unmarshal(resp.ToolCalls[0].Arguments, &args); err != nil || args["timezone"] != "Asia/Tokyo" {
		t.Fatalf("Arguments = %s (err %v)", resp.ToolCalls[0].Arguments, err)
	}
	if resp.Usage.InputTokens != 20 || resp.Usage.OutputTokens != 7 {
		t.Fatalf("Usage = %+v", resp.Usage)
	}
	if got["model"] != "claude" {
		t.Fatalf("model = %v", got["model"])
	}
}

func TestAnthropicClientWrapsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type": "error", "error": {"type": "overloaded_error", "message": "busy"}}`))
	}))
	defer srv.Close()

	c, err := NewAnthropicClient(AnthropicConfig{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewAnthropicClient() error = %v", err)
	}
	_, err = c.Chat(context.Background(), ChatRequest{Model: "claude", MaxTokens: 10, Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("error = %v, want *APIError with 503", err)
	}
}

func TestBuildAnthropicParamsGroupsToolResults(t *testing.T) {
	params, err := buildAnthropicParams(ChatRequest{
		Model: "claude",
		Messages: []Message{
			{Role: RoleUser, Content: "q"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{
				{ID: "a", Name: "t1", Arguments: json.RawMessage(`{}`)},
				{ID: "b", Name: "t2", Arguments: json.RawMessage(`{"x":1}`)},
			}},
			{Role: RoleTool, ToolCallID: "a", Content: "ra"},
			{Role: RoleTool, ToolCallID: "b", Content: "rb"},
			{Role: RoleUser, Content: "", Image: &Image{MIMEType: "image/jpeg", Data: []byte{1}}},
		},
		Tools: []ToolDefinition{{
			Name:       "t1",
			Parameters: map[string]any{"type": "object", "properties": map[string]any{}, "required": []string{"x"}},
		}},
	})
	if err != nil {
		t.Fatalf("buildAnthropicParams() error = %v", err)
	}
	if len(params.Messages) != 4 {
		t.Fatalf("len(Messages) = %d, want 4", len(params.Messages))
	}
	if n := len(params.Messages[2].Content); n != 2 {
		t.Fatalf("tool result blocks = %d, want 2", n)
	}
	if len(params.Tools) != 1 || len(params.Tools[0].OfTool.InputSchema.Required) != 1 {
		t.Fatalf("Tools = %+v", params.Tools)
	}
}

func TestBuildAnthropicParamsRejectsBadToolArguments(t *testing.T) {
	_, err := buildAnthropicParams(ChatRequest{Messages: []Message{
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "a", Name: "t", Arguments: json.RawMessage(`{`)}}},
	}})
	if err == nil {
		t.Fatalf("error = nil, want argument decode error")
	}
}
