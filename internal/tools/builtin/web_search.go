package builtin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"morgus/internal/agent/ports"
)

type webSearch struct {
	client *http.Client
	apiKey string
}

// NewWebSearch builds the Tavily-backed search tool.
func NewWebSearch(apiKey string) ports.ToolExecutor {
	return newWebSearch(apiKey, nil)
}

func newWebSearch(apiKey string, client *http.Client) *webSearch {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &webSearch{client: client, apiKey: apiKey}
}

func (t *webSearch) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	query, ok := call.Arguments["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'query'")}, nil
	}

	if t.apiKey == "" {
		return &ports.ToolResult{
			CallID:  call.ID,
			Content: "Web search not configured. Set TAVILY_API_KEY to enable the search_web tool.",
		}, nil
	}

	maxResults := 5
	if raw, ok := call.Arguments["num_results"]; ok {
		if n := numberToInt(raw); n > 0 && n <= 10 {
			maxResults = n
		}
	}

	payload := map[string]any{
		"api_key":     t.apiKey,
		"query":       query,
		"max_results": maxResults,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.tavily.com/search", bytes.NewBuffer(body))
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("search failed: %w", err)}, nil
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("read search response: %w", err)}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("search failed with status %d", resp.StatusCode)}, nil
	}

	var searchResp struct {
		Query   string `json:"query"`
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.Unmarshal(respBody, &searchResp); err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("decode search response: %w", err)}, nil
	}

	if len(searchResp.Results) == 0 {
		return &ports.ToolResult{CallID: call.ID, Content: "No results found"}, nil
	}

	var output strings.Builder
	for _, r := range searchResp.Results {
		fmt.Fprintf(&output, "Title: %s\nURL: %s\nSnippet: %s\n\n", r.Title, r.URL, r.Content)
	}
	return &ports.ToolResult{CallID: call.ID, Content: strings.TrimSpace(output.String())}, nil
}

func (t *webSearch) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "search_web",
		Description: "Search the web for information. Returns a list of search results with titles and snippets.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"query":       {Type: "string", Description: "Search query"},
				"num_results": {Type: "integer", Description: "Number of results to return (default: 5)", Default: 5},
			},
			Required: []string{"query"},
		},
	}
}

func (t *webSearch) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "search_web", Version: "1.0.0", Category: "web", Tags: []string{"search", "web"}}
}
