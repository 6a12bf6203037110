// Package toolcache stores per-source extraction strategies in Redis so the
// scout never pays for the same LLM discovery twice.
package toolcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	KindAPIEndpoint = "api_endpoint"
	KindScraper     = "scraper"
)

// ErrNotFound is returned by Lookup when no entry exists for a source key.
// Callers must not confuse it with a backend failure: a genuine miss triggers
// re-discovery, a backend failure must not.
var ErrNotFound = errors.New("tool cache: entry not found")

// APIDescriptor describes a direct JSON API discovered for a source.
type APIDescriptor struct {
	EndpointURL string `json:"endpoint_url"`
	HTTPMethod  string `json:"http_method"`
	Notes       string `json:"notes,omitempty"`
}

// Entry is one cached strategy. Kind decides which payload field is valid:
// api_endpoint entries carry Endpoint, scraper entries carry ScraperCode.
type Entry struct {
	SourceKey   string         `json:"source_key"`
	Kind        string         `json:"kind"`
	Endpoint    *APIDescriptor `json:"endpoint,omitempty"`
	ScraperCode string         `json:"scraper_code,omitempty"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Validate checks the kind/payload pairing before an entry is written.
func (e *Entry) Validate() error {
	if strings.TrimSpace(e.SourceKey) == "" {
		return fmt.Errorf("entry has empty source key")
	}
	switch e.Kind {
	case KindAPIEndpoint:
		if e.Endpoint == nil || strings.TrimSpace(e.Endpoint.EndpointURL) == "" {
			return fmt.Errorf("api_endpoint entry for %s has no endpoint descriptor", e.SourceKey)
		}
		if e.ScraperCode != "" {
			return fmt.Errorf("api_endpoint entry for %s also carries scraper code", e.SourceKey)
		}
	case KindScraper:
		if strings.TrimSpace(e.ScraperCode) == "" {
			return fmt.Errorf("scraper entry for %s has no code", e.SourceKey)
		}
		if e.Endpoint != nil {
			return fmt.Errorf("scraper entry for %s also carries an endpoint descriptor", e.SourceKey)
		}
	default:
		return fmt.Errorf("unknown entry kind %q for %s", e.Kind, e.SourceKey)
	}
	return nil
}

// Cache is a Redis-backed key-value store of extraction strategies.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a cache on an existing Redis client. ttlHours of 0 means
// entries never expire; staleness is handled by manual invalidation.
func New(client *redis.Client, ttlHours int) *Cache {
	return &Cache{
		client: client,
		ttl:    time.Duration(ttlHours) * time.Hour,
	}
}

func NewFromAddr(addr string, ttlHours int) *Cache {
	return New(redis.NewClient(&redis.Options{Addr: addr}), ttlHours)
}

func cacheKey(sourceKey string) string {
	return "tool:" + sourceKey
}

// Lookup returns the entry for sourceKey, ErrNotFound on a genuine miss, or a
// backend error when Redis is unreachable or the stored value is unreadable.
func (c *Cache) Lookup(ctx context.Context, sourceKey string) (*Entry, error) {
	data, err := c.client.Get(ctx, cacheKey(sourceKey)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("tool cache lookup for %s: %v", sourceKey, err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("tool cache entry for %s is unreadable: %v", sourceKey, err)
	}
	// Redis is shared; a foreign writer or partial write can leave an entry
	// whose kind and payload disagree. That is corruption, not a miss.
	if err := entry.Validate(); err != nil {
		return nil, fmt.Errorf("tool cache entry for %s is unreadable: %v", sourceKey, err)
	}
	return &entry, nil
}

// Save upserts an entry, overwriting any prior strategy for the same source.
// Last writer wins; strategies are cheap and idempotent to regenerate.
func (c *Cache) Save(ctx context.Context, entry *Entry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("refusing to cache invalid entry: %v", err)
	}
	entry.LastUpdated = time.Now().UTC()

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %v", err)
	}
	if err := c.client.Set(ctx, cacheKey(entry.SourceKey), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store cache entry for %s: %v", entry.SourceKey, err)
	}
	log.Printf("📦 [CACHE] Saved %s strategy for %s", entry.Kind, entry.SourceKey)
	return nil
}

// Invalidate removes one entry. Missing entries are not an error.
func (c *Cache) Invalidate(ctx context.Context, sourceKey string) error {
	if err := c.client.Del(ctx, cacheKey(sourceKey)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate %s: %v", sourceKey, err)
	}
	log.Printf("📦 [CACHE] Invalidated %s", sourceKey)
	return nil
}

// NormalizeSourceKey maps a raw URL to the canonical cache key: lowercase
// host, scheme and default port stripped, fragment dropped, no trailing
// slash. Every caller must key through this function or cache misses
// compound silently.
func NormalizeSourceKey(rawURL string) (string, error) {
	s := strings.TrimSpace(rawURL)
	if s == "" {
		return "", fmt.Errorf("empty source URL")
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("unparseable source URL %q: %v", rawURL, err)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("source URL %q has no host", rawURL)
	}
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		host = host + ":" + port
	}

	path := strings.TrimSuffix(u.EscapedPath(), "/")
	key := host + path
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key, nil
}
