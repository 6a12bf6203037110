package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
)

const generatorPrompt = `Write a Python function that extracts hackathon listings from this website.

URL: %s
Scraping notes from analysis: %s

Requirements:
- Define exactly one function: extract_hackathons(url) returning a list of dicts.
- Each dict should carry the keys: title, deadline, prize, url. Use "" when a
  value is not on the page, never omit title.
- Only these libraries are available: requests, BeautifulSoup, json, re.
  Do not import anything; the names are already in scope.
- No file access, no subprocesses, no prints. Return the list.

Return only the Python code in a markdown code block tagged python.`

// GenerateExtractor asks the model for scraper code. The returned text is
// only stripped of markdown fences; the sandbox is the sole safety boundary,
// so no static analysis happens here.
func (c *Client) GenerateExtractor(ctx context.Context, sourceURL string, strategy *Strategy) (string, error) {
	notes := "none"
	if strategy != nil && strings.TrimSpace(strategy.ScrapingNotes) != "" {
		notes = strategy.ScrapingNotes
	}

	reply, err := c.Chat(ctx, fmt.Sprintf(generatorPrompt, sourceURL, notes))
	if err != nil {
		return "", fmt.Errorf("extractor generation for %s: %v", sourceURL, err)
	}

	code := stripCodeFences(reply)
	if strings.TrimSpace(code) == "" {
		return "", fmt.Errorf("extractor generation for %s returned empty code", sourceURL)
	}
	log.Printf("🧠 [LLM] Generated extractor for %s (%d bytes)", sourceURL, len(code))
	return code, nil
}

// CraftNudge writes a short personalized notification about matching
// hackathons.
func (c *Client) CraftNudge(ctx context.Context, prefText string, matches []string) (string, error) {
	prompt := fmt.Sprintf(`User interests: %s
Matching hackathons:
%s

Write a brief, friendly Telegram message (under 300 characters) telling the
user about these opportunities. Plain text only.`, prefText, strings.Join(matches, "\n"))

	reply, err := c.Chat(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("nudge crafting: %v", err)
	}
	return strings.TrimSpace(reply), nil
}

// stripCodeFences removes surrounding markdown code fences if present. Only
// the fences are touched; the code body is never rewritten.
func stripCodeFences(reply string) string {
	trimmed := strings.TrimSpace(reply)
	if !strings.HasPrefix(trimmed, "```") {
		// Some models reply with prose before the fence.
		if idx := strings.Index(trimmed, "```"); idx != -1 {
			trimmed = trimmed[idx:]
		} else {
			return trimmed
		}
	}
	if nl := strings.IndexByte(trimmed, '\n'); nl != -1 {
		trimmed = trimmed[nl+1:]
	} else {
		return strings.TrimSpace(reply)
	}
	if end := strings.LastIndex(trimmed, "```"); end != -1 {
		trimmed = trimmed[:end]
	}
	return strings.TrimSpace(trimmed)
}
