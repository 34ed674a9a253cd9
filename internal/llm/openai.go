package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/oauth2"
)

const (
	GeminiOpenAIBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"

	defaultTimeout = 60 * time.Second
)

// VertexOpenAIBaseURL returns the Vertex AI OpenAI-compatible endpoint.
func VertexOpenAIBaseURL(projectID, location string) string {
	if location == "" {
		location = "us-central1"
	}
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com/v1/projects/%s/locations/%s/endpoints/openapi",
		location, projectID, location)
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	// ModelPrefix is prepended to bare model names ("google/" on Vertex).
	ModelPrefix string
	Timeout     time.Duration
	HTTPClient  *http.Client
	// TokenSource authenticates requests with OAuth2 bearer tokens instead
	// of a static API key.
	TokenSource oauth2.TokenSource
}

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint.
type OpenAIClient struct {
	client      *openai.Client
	modelPrefix string
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" && cfg.TokenSource == nil {
		return nil, errors.New("openai-compatible client requires an API key or token source")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if cfg.TokenSource != nil {
		// The oauth2 transport overwrites the Authorization header set from APIKey.
		base := httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		wrapped := *httpClient
		wrapped.Transport = &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, cfg.TokenSource), Base: base}
		httpClient = &wrapped
	}
	oc.HTTPClient = httpClient
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(oc),
		modelPrefix: cfg.ModelPrefix,
	}, nil
}

func (c *OpenAIClient) Name() string { return "openai" }

func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(req))
	if err != nil {
		return ChatResponse{}, wrapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return ChatResponse{}, errors.New("openai chat: no choices returned")
	}

	msg := resp.Choices[0].Message
	out := ChatResponse{
		Content: msg.Content,
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: []byte(tc.Function.Arguments),
		})
	}
	return out, nil
}

func (c *OpenAIClient) model(name string) string {
	if c.modelPrefix == "" || strings.Contains(name, "/") {
		return name
	}
	return c.modelPrefix + name
}

func (c *OpenAIClient) buildRequest(req ChatRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, toOpenAIMessage(m))
	}

	out := openai.ChatCompletionRequest{
		Model:     c.model(req.Model),
		Messages:  messages,
		MaxTokens: req.MaxTokens,
	}
	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func toOpenAIMessage(m Message) openai.ChatCompletionMessage {
	switch m.Role {
	case RoleTool:
		return openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
	case RoleAssistant:
		out := openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: m.Content,
		}
		for _, tc := range m.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		return out
	default:
		if m.Image == nil {
			return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content}
		}
		parts := make([]openai.ChatMessagePart, 0, 2)
		if m.Content != "" {
			parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: m.Content})
		}
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: m.Image.DataURI(), Detail: openai.ImageURLDetailAuto},
		})
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, MultiContent: parts}
	}
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &APIError{Provider: "openai", StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{Provider: "openai", StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return fmt.Errorf("openai chat: %w", err)
}
