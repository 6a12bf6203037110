package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestExtractTextDropsScriptsAndStyles(t *testing.T) {
	body := `<html><head>
<style>body { color: red }</style>
<script>window.app = {};</script>
</head><body>
<h1>Upcoming Hackathons</h1>
<noscript>Enable JavaScript</noscript>
<p>AI for Good Challenge</p>
</body></html>`

	got := ExtractText(body)
	if !strings.Contains(got, "Upcoming Hackathons") || !strings.Contains(got, "AI for Good Challenge") {
		t.Errorf("visible text lost: %q", got)
	}
	for _, banned := range []string{"color: red", "window.app", "Enable JavaScript"} {
		if strings.Contains(got, banned) {
			t.Errorf("non-content text leaked: %q", banned)
		}
	}
}

func TestExtractTextCollapsesWhitespace(t *testing.T) {
	body := "<p>  one  </p>\n\n\n<p>two</p>\n<p>   </p>"
	got := ExtractText(body)
	if got != "one\ntwo" {
		t.Errorf("got %q, want %q", got, "one\ntwo")
	}
}

func TestExtractTextTruncates(t *testing.T) {
	body := "<p>" + strings.Repeat("hackathon ", 5000) + "</p>"
	got := ExtractText(body)
	if len(got) > maxTextChars+64 {
		t.Errorf("output not truncated: %d chars", len(got))
	}
	if !strings.HasSuffix(got, "(content truncated)") {
		t.Error("truncation marker missing")
	}
}

func TestFetchPageReturnsReducedText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "Mozilla") {
			t.Errorf("browser user agent not sent: %q", ua)
		}
		w.Write([]byte(`<html><body><script>x()</script><h1>Devpost Hackathons</h1></body></html>`))
	}))
	defer srv.Close()

	c := New(0)
	got, err := c.FetchPage(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "Devpost Hackathons") {
		t.Errorf("content lost: %q", got)
	}
	if strings.Contains(got, "<h1>") || strings.Contains(got, "x()") {
		t.Errorf("markup or script leaked: %q", got)
	}
}

func TestFetchPageNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := New(0)
	if _, err := c.FetchPage(context.Background(), srv.URL); err == nil {
		t.Error("non-2xx must be an error")
	}
}

type fakeRenderer struct {
	content     string
	calls       int
	hadDeadline bool
}

func (f *fakeRenderer) Render(ctx context.Context, url string) (string, error) {
	f.calls++
	_, f.hadDeadline = ctx.Deadline()
	return f.content, nil
}

func TestFetchPageRendersShellPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div id="app"></div><script src="/bundle.js"></script></body></html>`))
	}))
	defer srv.Close()

	renderer := &fakeRenderer{content: "<html><body><h1>Rendered Hackathons</h1></body></html>"}
	c := New(0)
	c.renderer = renderer

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := c.FetchPage(ctx, srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if renderer.calls != 1 {
		t.Fatalf("renderer calls = %d, want 1", renderer.calls)
	}
	if !renderer.hadDeadline {
		t.Error("the fetch deadline must reach the renderer")
	}
	if !strings.Contains(got, "Rendered Hackathons") {
		t.Errorf("rendered content lost: %q", got)
	}
}

func TestFetchPageSkipsRendererForFullPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>" + strings.Repeat("real hackathon listings here ", 20) + "</p></body></html>"))
	}))
	defer srv.Close()

	renderer := &fakeRenderer{}
	c := New(0)
	c.renderer = renderer

	if _, err := c.FetchPage(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}
	if renderer.calls != 0 {
		t.Error("pages with visible text must not be re-rendered")
	}
}

func TestLooksContentFree(t *testing.T) {
	shell := `<html><body><div id="app"></div><script src="/bundle.js"></script></body></html>`
	if !looksContentFree(shell) {
		t.Error("a JS shell page should look content-free")
	}

	full := "<html><body><p>" + strings.Repeat("real hackathon listings here ", 20) + "</p></body></html>"
	if looksContentFree(full) {
		t.Error("a page with visible text is not content-free")
	}
}
