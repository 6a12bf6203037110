package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractJSONObject(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"bare object", `{"api_found": false}`, `{"api_found": false}`, false},
		{"chatty prefix", "Sure! Here is the analysis:\n{\"api_found\": true, \"endpoint_url\": \"https://x/api\"}", `{"api_found": true, "endpoint_url": "https://x/api"}`, false},
		{"nested braces", `{"a": {"b": 1}, "c": 2}`, `{"a": {"b": 1}, "c": 2}`, false},
		{"braces inside strings", `{"notes": "look for {data} blocks"}`, `{"notes": "look for {data} blocks"}`, false},
		{"escaped quotes", `{"notes": "he said \"api\" twice"}`, `{"notes": "he said \"api\" twice"}`, false},
		{"trailing prose", `{"api_found": false} Hope that helps!`, `{"api_found": false}`, false},
		{"no object", "I could not find anything.", "", true},
		{"unbalanced", `{"api_found": false`, "", true},
	}

	for _, tc := range cases {
		got, err := extractJSONObject(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("%s: expected error, got %q", tc.name, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, got, tc.want)
		}
		if !json.Valid([]byte(got)) {
			t.Errorf("%s: extracted text is not valid JSON: %q", tc.name, got)
		}
	}
}

func TestStripCodeFences(t *testing.T) {
	code := "def extract_hackathons(url):\n    return []"

	cases := []struct {
		name string
		in   string
	}{
		{"python fence", "```python\n" + code + "\n```"},
		{"bare fence", "```\n" + code + "\n```"},
		{"prose before fence", "Here you go:\n\n```python\n" + code + "\n```"},
		{"no fence", code},
		{"trailing prose", "```python\n" + code + "\n```\nLet me know if it works!"},
	}

	for _, tc := range cases {
		got := stripCodeFences(tc.in)
		if got != code {
			t.Errorf("%s: got %q, want %q", tc.name, got, code)
		}
	}
}

func TestStripCodeFencesPreservesBody(t *testing.T) {
	// Triple backticks inside the code body must survive fence stripping of
	// everything up to the last fence.
	in := "```python\nx = 1\n```"
	if got := stripCodeFences(in); strings.Contains(got, "```") {
		t.Errorf("fences leaked into code: %q", got)
	}
}

func ollamaStub(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		resp, _ := json.Marshal(map[string]string{"response": reply})
		w.Write(resp)
	}))
}

func TestDiscoverStrategyAPIFound(t *testing.T) {
	srv := ollamaStub(t, `The site exposes an API.
{"api_found": true, "endpoint_url": "https://devpost.com/api/hackathons", "method": ""}`)
	defer srv.Close()

	c := NewClient(Config{Provider: "ollama", BaseURL: srv.URL, Model: "test"})
	s, err := c.DiscoverStrategy(context.Background(), "page text", "https://devpost.com/hackathons")
	if err != nil {
		t.Fatal(err)
	}
	if !s.APIFound || s.EndpointURL != "https://devpost.com/api/hackathons" {
		t.Errorf("strategy = %+v", s)
	}
	if s.Method != "GET" {
		t.Errorf("empty method should default to GET, got %q", s.Method)
	}
}

func TestDiscoverStrategyScraperRequired(t *testing.T) {
	srv := ollamaStub(t, `{"api_found": false, "scraping_notes": "listings in .challenge-card divs"}`)
	defer srv.Close()

	c := NewClient(Config{Provider: "ollama", BaseURL: srv.URL, Model: "test"})
	s, err := c.DiscoverStrategy(context.Background(), "page text", "https://hackerearth.com/challenges")
	if err != nil {
		t.Fatal(err)
	}
	if s.APIFound {
		t.Error("strategy should require scraping")
	}
	if s.ScrapingNotes == "" {
		t.Error("scraping notes lost")
	}
}

func TestDiscoverStrategyRejectsAPIWithoutEndpoint(t *testing.T) {
	srv := ollamaStub(t, `{"api_found": true, "endpoint_url": ""}`)
	defer srv.Close()

	c := NewClient(Config{Provider: "ollama", BaseURL: srv.URL, Model: "test"})
	if _, err := c.DiscoverStrategy(context.Background(), "page", "https://x.dev"); err == nil {
		t.Error("api_found without an endpoint must be rejected")
	}
}

func TestGenerateExtractor(t *testing.T) {
	code := "def extract_hackathons(url):\n    return []"
	srv := ollamaStub(t, fmt.Sprintf("```python\n%s\n```", code))
	defer srv.Close()

	c := NewClient(Config{Provider: "ollama", BaseURL: srv.URL, Model: "test"})
	got, err := c.GenerateExtractor(context.Background(), "https://x.dev", &Strategy{ScrapingNotes: "cards"})
	if err != nil {
		t.Fatal(err)
	}
	if got != code {
		t.Errorf("got %q, want %q", got, code)
	}
}

func TestGenerateExtractorEmptyReply(t *testing.T) {
	srv := ollamaStub(t, "```python\n\n```")
	defer srv.Close()

	c := NewClient(Config{Provider: "ollama", BaseURL: srv.URL, Model: "test"})
	if _, err := c.GenerateExtractor(context.Background(), "https://x.dev", nil); err == nil {
		t.Error("empty generated code must be an error")
	}
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(Config{})
	if c.cfg.Provider != "ollama" {
		t.Errorf("default provider = %q, want ollama", c.cfg.Provider)
	}
	if c.cfg.BaseURL == "" {
		t.Error("default base URL must be set")
	}
}
