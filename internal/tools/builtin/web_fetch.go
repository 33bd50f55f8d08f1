package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	lru "github.com/hashicorp/golang-lru/v2"

	"morgus/internal/agent/ports"
)

const (
	fetchContentLimit = 8000
	fetchCacheSize    = 256
	fetchCacheTTL     = 15 * time.Minute
	fetchMaxBodyBytes = 2 * 1024 * 1024
)

type fetchCacheEntry struct {
	content   string
	fetchedAt time.Time
}

type webFetch struct {
	client *http.Client
	cache  *lru.Cache[string, fetchCacheEntry]
}

// NewWebFetch builds the URL fetch tool. Fetched pages are reduced to plain
// text and cached briefly so repeated lookups within a task are cheap.
func NewWebFetch() ports.ToolExecutor {
	return newWebFetch(nil)
}

func newWebFetch(client *http.Client) *webFetch {
	if client == nil {
		client = &http.Client{
			Timeout: 15 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		}
	}
	cache, _ := lru.New[string, fetchCacheEntry](fetchCacheSize)
	return &webFetch{client: client, cache: cache}
}

func (t *webFetch) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	rawURL, ok := call.Arguments["url"].(string)
	if !ok || strings.TrimSpace(rawURL) == "" {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("missing 'url'")}, nil
	}

	parsed, err := neturl.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("invalid URL %q", rawURL)}, nil
	}

	if entry, ok := t.cache.Get(rawURL); ok && time.Since(entry.fetchedAt) < fetchCacheTTL {
		return &ports.ToolResult{CallID: call.ID, Content: entry.content}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: err}, nil
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; MorgusBot/1.0)")

	resp, err := t.client.Do(req)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("failed to fetch URL: %w", err)}, nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("fetch failed with status %d", resp.StatusCode)}, nil
	}

	body := io.LimitReader(resp.Body, fetchMaxBodyBytes)
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return &ports.ToolResult{CallID: call.ID, Error: fmt.Errorf("parse HTML: %w", err)}, nil
	}

	text := extractText(doc)
	if len(text) > fetchContentLimit {
		text = text[:fetchContentLimit] + fmt.Sprintf("\n\n... (truncated, total %d chars)", len(text))
	}

	t.cache.Add(rawURL, fetchCacheEntry{content: text, fetchedAt: time.Now()})
	return &ports.ToolResult{CallID: call.ID, Content: text}, nil
}

// extractText strips boilerplate elements and collapses whitespace into a
// readable plain-text rendering of the page.
func extractText(doc *goquery.Document) string {
	doc.Find("script, style, nav, footer, header").Remove()

	raw := doc.Find("body").Text()
	if strings.TrimSpace(raw) == "" {
		raw = doc.Text()
	}

	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return strings.Join(lines, "\n")
}

func (t *webFetch) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "fetch_url",
		Description: "Fetch and extract text content from a URL",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"url": {Type: "string", Description: "URL to fetch"},
			},
			Required: []string{"url"},
		},
	}
}

func (t *webFetch) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "fetch_url", Version: "1.0.0", Category: "web", Tags: []string{"web", "fetch", "http"}}
}
