package fetch

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	pw "github.com/playwright-community/playwright-go"
)

// Renderer fetches pages through headless Chromium for sources that only
// populate their listings from JavaScript.
type Renderer struct {
	mu      sync.Mutex
	pw      *pw.Playwright
	browser pw.Browser
	timeout float64
}

// NewRenderer launches a shared headless browser. Callers must Close it.
func NewRenderer(timeoutMs float64) (*Renderer, error) {
	run, err := pw.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %v", err)
	}
	browser, err := run.Chromium.Launch(pw.BrowserTypeLaunchOptions{
		Headless: pw.Bool(true),
	})
	if err != nil {
		run.Stop()
		return nil, fmt.Errorf("failed to launch browser: %v", err)
	}
	if timeoutMs <= 0 {
		timeoutMs = 15000
	}
	return &Renderer{pw: run, browser: browser, timeout: timeoutMs}, nil
}

// Render loads url in a fresh page and returns the post-JS HTML. Navigation
// never outlives the caller's deadline.
func (r *Renderer) Render(ctx context.Context, url string) (string, error) {
	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		remaining := float64(time.Until(deadline).Milliseconds())
		if remaining < timeout {
			timeout = remaining
		}
		if timeout <= 0 {
			return "", fmt.Errorf("render %s: %v", url, ctx.Err())
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	page, err := r.browser.NewPage()
	if err != nil {
		return "", fmt.Errorf("render %s: page creation failed: %v", url, err)
	}
	defer page.Close()

	if _, err := page.Goto(url, pw.PageGotoOptions{
		WaitUntil: pw.WaitUntilStateNetworkidle,
		Timeout:   pw.Float(timeout),
	}); err != nil {
		return "", fmt.Errorf("render %s: navigation failed: %v", url, err)
	}

	content, err := page.Content()
	if err != nil {
		return "", fmt.Errorf("render %s: reading content failed: %v", url, err)
	}
	log.Printf("🌐 [FETCH] Rendered %s (%d bytes)", url, len(content))
	return content, nil
}

func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		_ = r.browser.Close()
	}
	if r.pw != nil {
		_ = r.pw.Stop()
	}
}
