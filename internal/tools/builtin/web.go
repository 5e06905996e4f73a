package builtin

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"codesm/internal/agent/ports"
	"codesm/internal/shared/jsonx"
)

// webContentCap bounds how much reduced page text returns to the model.
const webContentCap = 50 * 1024

type webFetchTool struct {
	client *http.Client
}

func NewWebFetch(deps Deps) ports.ToolExecutor {
	return &webFetchTool{client: &http.Client{Timeout: 30 * time.Second}}
}

func (t *webFetchTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	url := argString(call.Arguments, "url")
	if url == "" {
		return failf(call.ID, "missing 'url'"), nil
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failf(call.ID, "bad url: %v", err), nil
	}
	req.Header.Set("User-Agent", "codesm/0.1 (web content fetcher)")

	resp, err := t.client.Do(req)
	if err != nil {
		return failf(call.ID, "fetch failed: %v", err), nil
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return failf(call.ID, "fetch failed: HTTP %d", resp.StatusCode), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return failf(call.ID, "read body: %v", err), nil
	}

	content := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		if text, err := htmlToText(content); err == nil {
			content = text
		}
	}
	if len(content) > webContentCap {
		content = content[:webContentCap] + "\n... (content truncated)"
	}
	return ok(call.ID, content), nil
}

// htmlToText reduces a page to headings, paragraphs, and list items.
func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	doc.Find("script, style, nav, footer, header, noscript").Remove()

	var b strings.Builder
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			b.WriteString("# " + text + "\n")
		}
	})
	doc.Find("p, article, section, td, pre").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			b.WriteString(text + "\n")
		}
	})
	doc.Find("li").Each(func(_ int, s *goquery.Selection) {
		if text := strings.TrimSpace(s.Text()); text != "" {
			b.WriteString("- " + text + "\n")
		}
	})
	text := b.String()
	if strings.TrimSpace(text) == "" {
		text = strings.TrimSpace(doc.Text())
	}
	return text, nil
}

func (t *webFetchTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "webfetch",
		Description: "Fetch a URL and return its content, with HTML reduced to readable text.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"url": {Type: "string", Description: "URL to fetch"},
			},
			Required: []string{"url"},
		},
	}
}

func (t *webFetchTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "webfetch", Version: "1.0.0", Category: "web"}
}

type webSearchTool struct {
	apiKey string
	client *http.Client
}

// NewWebSearch builds the Tavily-backed search tool. Without a key the
// tool stays registered and explains how to configure it.
func NewWebSearch(deps Deps) ports.ToolExecutor {
	apiKey := deps.APIKeys["tavily"]
	if apiKey == "" {
		apiKey = os.Getenv("TAVILY_API_KEY")
	}
	return &webSearchTool{apiKey: apiKey, client: &http.Client{Timeout: 30 * time.Second}}
}

func (t *webSearchTool) Execute(ctx context.Context, call ports.ToolCall) (*ports.ToolResult, error) {
	query := argString(call.Arguments, "query")
	if query == "" {
		return failf(call.ID, "missing 'query'"), nil
	}
	if t.apiKey == "" {
		return ok(call.ID, "Web search is not configured. Set TAVILY_API_KEY to enable it, or use webfetch with a known URL."), nil
	}

	maxResults := argInt(call.Arguments, "max_results", 5)
	if maxResults < 1 {
		maxResults = 1
	}
	if maxResults > 10 {
		maxResults = 10
	}

	payload, err := jsonx.Marshal(map[string]any{
		"api_key":        t.apiKey,
		"query":          query,
		"max_results":    maxResults,
		"include_answer": true,
	})
	if err != nil {
		return failf(call.ID, "encode request: %v", err), nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.tavily.com/search", bytes.NewReader(payload))
	if err != nil {
		return failf(call.ID, "build request: %v", err), nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return failf(call.ID, "search failed: %v", err), nil
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return failf(call.ID, "read response: %v", err), nil
	}
	if resp.StatusCode != http.StatusOK {
		return failf(call.ID, "search failed: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil
	}

	var result struct {
		Answer  string `json:"answer"`
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := jsonx.Unmarshal(body, &result); err != nil {
		return failf(call.ID, "parse response: %v", err), nil
	}

	var b strings.Builder
	if result.Answer != "" {
		b.WriteString(result.Answer + "\n\n")
	}
	for i, hit := range result.Results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   %s\n", i+1, hit.Title, hit.URL, strings.TrimSpace(hit.Content))
	}
	if b.Len() == 0 {
		return ok(call.ID, "No results"), nil
	}
	return ok(call.ID, strings.TrimRight(b.String(), "\n")), nil
}

func (t *webSearchTool) Definition() ports.ToolDefinition {
	return ports.ToolDefinition{
		Name:        "websearch",
		Description: "Search the web and return titles, links, and summaries.",
		Parameters: ports.ParameterSchema{
			Type: "object",
			Properties: map[string]ports.Property{
				"query":       {Type: "string", Description: "Search query"},
				"max_results": {Type: "integer", Description: "1-10 results, default 5"},
			},
			Required: []string{"query"},
		},
	}
}

func (t *webSearchTool) Metadata() ports.ToolMetadata {
	return ports.ToolMetadata{Name: "websearch", Version: "1.0.0", Category: "web"}
}
