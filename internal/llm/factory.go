package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

type Config struct {
	Provider        string
	APIKey          string
	AnthropicAPIKey string
	BaseURL         string
	GoogleProjectID string
	GoogleLocation  string
	Timeout         time.Duration
	// GoogleTokenSource overrides Application Default Credentials for Vertex AI.
	GoogleTokenSource oauth2.TokenSource
}

// NewClient builds the client named by cfg.Provider. "auto" prefers an
// OpenAI-compatible key, then Vertex AI when a Google project is set, then an
// Anthropic key, and falls back to the mock.
func NewClient(ctx context.Context, cfg Config) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "auto"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	switch provider {
	case "auto":
		switch {
		case strings.TrimSpace(cfg.APIKey) != "", strings.TrimSpace(cfg.GoogleProjectID) != "":
			return newOpenAIFromConfig(ctx, cfg, timeout)
		case strings.TrimSpace(cfg.AnthropicAPIKey) != "":
			return NewAnthropicClient(AnthropicConfig{APIKey: cfg.AnthropicAPIKey, HTTPClient: &http.Client{Timeout: timeout}})
		default:
			return NewMockClient(), nil
		}
	case "openai":
		return newOpenAIFromConfig(ctx, cfg, timeout)
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:     cfg.AnthropicAPIKey,
			BaseURL:    cfg.BaseURL,
			HTTPClient: &http.Client{Timeout: timeout},
		})
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

func newOpenAIFromConfig(ctx context.Context, cfg Config, timeout time.Duration) (*OpenAIClient, error) {
	oc := OpenAIConfig{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Timeout: timeout}
	project := strings.TrimSpace(cfg.GoogleProjectID)
	if project != "" {
		oc.ModelPrefix = "google/"
		if oc.BaseURL == "" {
			oc.BaseURL = VertexOpenAIBaseURL(project, cfg.GoogleLocation)
		}
		if strings.TrimSpace(oc.APIKey) == "" {
			ts := cfg.GoogleTokenSource
			if ts == nil {
				creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
				if err != nil {
					return nil, fmt.Errorf("vertex ai credentials for project %s: %w", project, err)
				}
				ts = creds.TokenSource
			}
			oc.TokenSource = ts
		}
	} else if oc.BaseURL == "" {
		oc.BaseURL = GeminiOpenAIBaseURL
	}
	return NewOpenAIClient(oc)
}
