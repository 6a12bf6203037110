// Package config loads service configuration from an optional YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type LLMConfig struct {
	Provider   string `yaml:"provider"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	EmbedModel string `yaml:"embed_model"`
	APIKey     string `yaml:"api_key"`
}

type SandboxConfig struct {
	Image          string  `yaml:"image"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MemoryMB       int     `yaml:"memory_mb"`
	CPUs           float64 `yaml:"cpus"`
	PidsLimit      int     `yaml:"pids_limit"`
}

type FetchConfig struct {
	TimeoutSeconds int  `yaml:"timeout_seconds"`
	RenderJS       bool `yaml:"render_js"`
}

type Config struct {
	HTTPAddr      string        `yaml:"http_addr"`
	RedisAddr     string        `yaml:"redis_addr"`
	NATSURL       string        `yaml:"nats_url"`
	NATSSubject   string        `yaml:"nats_subject"`
	LLM           LLMConfig     `yaml:"llm"`
	Sandbox       SandboxConfig `yaml:"sandbox"`
	Fetch         FetchConfig   `yaml:"fetch"`
	CacheTTLHours int           `yaml:"cache_ttl_hours"`
	Sources       []string      `yaml:"sources"`
	TelegramToken string        `yaml:"telegram_token"`
	NudgeSchedule string        `yaml:"nudge_schedule"`
}

func defaults() *Config {
	return &Config{
		HTTPAddr:  ":8090",
		RedisAddr: "localhost:6379",
		Sandbox: SandboxConfig{
			TimeoutSeconds: 60,
			MemoryMB:       512,
			CPUs:           1.0,
			PidsLimit:      128,
		},
		Fetch: FetchConfig{TimeoutSeconds: 10},
		// Staleness is handled by manual invalidation, not TTL.
		CacheTTLHours: 0,
		Sources: []string{
			"https://devpost.com/hackathons",
			"https://hackerearth.com/challenges/hackathon/",
		},
		// Monday 09:00, matching the original weekly nudge.
		NudgeSchedule: "0 9 * * 1",
	}
}

// Load reads path (when non-empty), then applies env overrides. A missing
// file is an error; an empty path just means env-and-defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %v", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %v", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.HTTPAddr, "SCOUT_HTTP_ADDR")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.NATSURL, "NATS_URL")
	setString(&c.NATSSubject, "NATS_SUBJECT")
	setString(&c.LLM.Provider, "LLM_PROVIDER")
	setString(&c.LLM.BaseURL, "LLM_BASE_URL")
	setString(&c.LLM.Model, "LLM_MODEL")
	setString(&c.LLM.EmbedModel, "LLM_EMBED_MODEL")
	setString(&c.LLM.APIKey, "LLM_API_KEY")
	setString(&c.Sandbox.Image, "SANDBOX_IMAGE")
	setInt(&c.Sandbox.TimeoutSeconds, "SANDBOX_TIMEOUT_SECONDS")
	setInt(&c.Sandbox.MemoryMB, "SANDBOX_MEMORY_MB")
	setFloat(&c.Sandbox.CPUs, "SANDBOX_CPUS")
	setInt(&c.Sandbox.PidsLimit, "SANDBOX_PIDS_LIMIT")
	setInt(&c.Fetch.TimeoutSeconds, "FETCH_TIMEOUT_SECONDS")
	setBool(&c.Fetch.RenderJS, "FETCH_RENDER_JS")
	setInt(&c.CacheTTLHours, "TOOL_CACHE_TTL_HOURS")
	setString(&c.TelegramToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.NudgeSchedule, "NUDGE_SCHEDULE")
	if v := os.Getenv("SCOUT_SOURCES"); v != "" {
		parts := strings.Split(v, ",")
		sources := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				sources = append(sources, s)
			}
		}
		if len(sources) > 0 {
			c.Sources = sources
		}
	}
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

func (c *Config) SandboxTimeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutSeconds) * time.Second
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, env string) {
	if v := os.Getenv(env); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, env string) {
	if v := strings.TrimSpace(strings.ToLower(os.Getenv(env))); v != "" {
		*dst = v == "1" || v == "true" || v == "yes"
	}
}
