package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/antoniostano/linerelay/internal/llm"
	"github.com/antoniostano/linerelay/internal/policy"
)

const (
	BraveAPIURL = "https://api.search.brave.com/res/v1/web/search"

	defaultSearchCount = 5
	maxSearchCount     = 10
)

type braveResponse struct {
	Web struct {
		Results []braveResult `json:"results"`
	} `json:"web"`
}

type braveResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// WebSearch queries the Brave Search API.
type WebSearch struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func NewWebSearch(apiKey string) *WebSearch {
	return &WebSearch{
		apiKey:   apiKey,
		endpoint: BraveAPIURL,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (w *WebSearch) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        "web_search",
		Description: "Search the web for recent or factual information. Returns titles, URLs and snippets.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "Search query."},
				"count": map[string]any{"type": "integer", "description": "Number of results, 1-10."},
			},
			"required": []string{"query"},
		},
	}
}

func (w *WebSearch) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var in struct {
		Query string `json:"query"`
		Count int    `json:"count"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	// Personal data never leaves for the search provider.
	query, _ := policy.RedactPII(strings.TrimSpace(in.Query))
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	count := in.Count
	if count <= 0 {
		count = defaultSearchCount
	}
	if count > maxSearchCount {
		count = maxSearchCount
	}

	reqURL, err := url.Parse(w.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse search url: %w", err)
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(count))
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", w.apiKey)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send search request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &llm.APIError{Provider: "brave", StatusCode: resp.StatusCode}
	}

	var parsed braveResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse search response: %w", err)
	}
	return formatResults(parsed.Web.Results), nil
}

func formatResults(results []braveResult) string {
	if len(results) == 0 {
		return "No results found."
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s\nURL: %s\n%s\n\n", i+1, r.Title, r.URL, r.Description)
	}
	return strings.TrimSpace(b.String())
}
