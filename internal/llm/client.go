// Package llm is the provider-neutral chat model abstraction used by the relay.
package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Image is an inline image attached to a user message.
type Image struct {
	MIMEType string
	Data     []byte
}

// DataURI renders the image as a base64 data URI.
func (i *Image) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MIMEType, base64.StdEncoding.EncodeToString(i.Data))
}

// Message is one conversation message. Tool results use RoleTool with
// ToolCallID set to the id of the call they answer.
type Message struct {
	Role       Role
	Content    string
	Image      *Image
	ToolCalls  []ToolCall
	ToolCallID string
}

// ToolDefinition describes a callable tool. Parameters is a JSON schema object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

type Usage struct {
	InputTokens  int
	OutputTokens int
}

type ChatRequest struct {
	Model     string
	System    string
	Messages  []Message
	Tools     []ToolDefinition
	MaxTokens int
}

type ChatResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Client sends one chat turn to a model provider.
type Client interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
}

// APIError is a non-2xx response from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s api status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s api status %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// HTTPStatus lets reliability.Classify label provider failures.
func (e *APIError) HTTPStatus() int { return e.StatusCode }
