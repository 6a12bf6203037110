package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
)

// Strategy is the discovery verdict for one source: either a direct JSON API
// was found, or the page needs a generated scraper.
type Strategy struct {
	APIFound      bool   `json:"api_found"`
	EndpointURL   string `json:"endpoint_url,omitempty"`
	Method        string `json:"method,omitempty"`
	ScrapingNotes string `json:"scraping_notes,omitempty"`
}

const strategyPrompt = `You are analyzing a website that lists hackathons.

URL: %s

Page content (reduced to text):
---
%s
---

Decide how to extract hackathon listings from this source.
First, look for evidence of a JSON API (fetch calls, /api/ paths, embedded JSON).
If an API exists, report it. Otherwise the page must be scraped.

Reply with ONLY a JSON object, no prose:
{"api_found": true|false, "endpoint_url": "...", "method": "GET", "scraping_notes": "what markup holds the listings"}`

// DiscoverStrategy classifies one source. The page content should already be
// reduced to text and truncated by the caller.
func (c *Client) DiscoverStrategy(ctx context.Context, pageContent, sourceURL string) (*Strategy, error) {
	reply, err := c.Chat(ctx, fmt.Sprintf(strategyPrompt, sourceURL, pageContent))
	if err != nil {
		return nil, fmt.Errorf("strategy discovery for %s: %v", sourceURL, err)
	}

	raw, err := extractJSONObject(reply)
	if err != nil {
		return nil, fmt.Errorf("strategy reply for %s has no JSON object: %v", sourceURL, err)
	}

	var s Strategy
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("unparseable strategy for %s: %v", sourceURL, err)
	}
	if s.APIFound {
		if strings.TrimSpace(s.EndpointURL) == "" {
			return nil, fmt.Errorf("strategy for %s claims an API but gives no endpoint", sourceURL)
		}
		if s.Method == "" {
			s.Method = "GET"
		}
		log.Printf("🧠 [LLM] %s: API found at %s", sourceURL, s.EndpointURL)
	} else {
		log.Printf("🧠 [LLM] %s: scraping required", sourceURL)
	}
	return &s, nil
}

// extractJSONObject pulls the first balanced top-level JSON object out of a
// possibly chatty model reply.
func extractJSONObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return "", fmt.Errorf("no opening brace")
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced braces")
}
