// Package llm wraps the external language-model collaborators: strategy
// discovery, extractor generation, notification crafting and embeddings.
// The model's reasoning is opaque to the rest of the system.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Config selects the model endpoint. Provider is "openai" for any
// OpenAI-compatible chat API or "ollama" for a local Ollama daemon.
type Config struct {
	Provider   string
	BaseURL    string
	Model      string
	EmbedModel string
	APIKey     string
	Timeout    time.Duration
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Provider == "" {
		cfg.Provider = "ollama"
	}
	if cfg.BaseURL == "" {
		if cfg.Provider == "ollama" {
			cfg.BaseURL = "http://localhost:11434"
		} else {
			cfg.BaseURL = "https://api.openai.com"
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// NewClientFromEnv builds a client from LLM_PROVIDER, LLM_BASE_URL,
// LLM_MODEL, LLM_EMBED_MODEL and LLM_API_KEY.
func NewClientFromEnv() *Client {
	return NewClient(Config{
		Provider:   os.Getenv("LLM_PROVIDER"),
		BaseURL:    strings.TrimSuffix(os.Getenv("LLM_BASE_URL"), "/"),
		Model:      os.Getenv("LLM_MODEL"),
		EmbedModel: os.Getenv("LLM_EMBED_MODEL"),
		APIKey:     os.Getenv("LLM_API_KEY"),
	})
}

// Chat sends one prompt and returns the raw completion text.
func (c *Client) Chat(ctx context.Context, prompt string) (string, error) {
	if c.cfg.Provider == "ollama" {
		return c.chatOllama(ctx, prompt)
	}
	return c.chatOpenAI(ctx, prompt)
}

func (c *Client) chatOpenAI(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := c.post(ctx, "/v1/chat/completions", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) chatOllama(ctx context.Context, prompt string) (string, error) {
	body := map[string]any{
		"model":  c.cfg.Model,
		"prompt": prompt,
		"stream": false,
	}
	var resp struct {
		Response string `json:"response"`
	}
	if err := c.post(ctx, "/api/generate", body, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

// Embed returns an embedding vector for text, used for preference matching.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	model := c.cfg.EmbedModel
	if model == "" {
		model = c.cfg.Model
	}
	if c.cfg.Provider == "ollama" {
		body := map[string]any{"model": model, "prompt": text}
		var resp struct {
			Embedding []float64 `json:"embedding"`
		}
		if err := c.post(ctx, "/api/embeddings", body, &resp); err != nil {
			return nil, err
		}
		return resp.Embedding, nil
	}

	body := map[string]any{"model": model, "input": text}
	var resp struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/v1/embeddings", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("LLM returned no embedding")
	}
	return resp.Data[0].Embedding, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("LLM request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("LLM returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
