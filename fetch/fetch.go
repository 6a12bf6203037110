// Package fetch retrieves and reduces page content for strategy discovery.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	// Sites like Devpost reject default Go user agents.
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

	maxBodyBytes = 2 << 20
	maxTextChars = 10000
)

// pageRenderer is the JS-rendering fallback contract; satisfied by Renderer.
type pageRenderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// Client fetches raw page content with a bounded timeout. When a Renderer is
// attached, pages whose static HTML carries no visible text are re-fetched
// through a headless browser.
type Client struct {
	httpClient *http.Client
	userAgent  string
	renderer   pageRenderer
}

func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  defaultUserAgent,
	}
}

// WithRenderer enables the JS-rendering fallback.
func (c *Client) WithRenderer(r *Renderer) *Client {
	c.renderer = r
	return c
}

// FetchPage returns the page reduced to readable text, sized for a strategy
// prompt. One fetch, no retries; retry policy belongs to the operator, not
// here.
func (c *Client) FetchPage(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("bad fetch URL %q: %v", url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/json,*/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", fmt.Errorf("fetch %s: reading body: %v", url, err)
	}

	content := string(body)
	if c.renderer != nil && looksContentFree(content) {
		rendered, rerr := c.renderer.Render(ctx, url)
		if rerr == nil {
			content = rendered
		}
		// Rendering is best effort; fall back to the static body.
	}
	return ExtractText(content), nil
}

// looksContentFree detects JS-shell pages whose static HTML has almost no
// visible text.
func looksContentFree(body string) bool {
	return len(strings.TrimSpace(ExtractText(body))) < 200
}

// ExtractText reduces an HTML document to readable text for the strategy
// LLM: scripts, styles and markup dropped, whitespace collapsed, output
// truncated.
func ExtractText(body string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return truncateText(body)
	}

	var b strings.Builder
	var walker func(*html.Node)
	walker = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				b.WriteString(text)
				b.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walker(c)
		}
	}
	walker(doc)

	return truncateText(collapseBlankLines(b.String()))
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, "\n")
}

func truncateText(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxTextChars {
		return s[:maxTextChars] + "\n... (content truncated)"
	}
	return s
}
