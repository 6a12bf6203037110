package scout

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// HackathonRecord is the canonical normalized listing. Records are immutable
// after creation; re-discovery recreates the same ID so durable storage can
// upsert instead of duplicating.
type HackathonRecord struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Deadline     string         `json:"deadline,omitempty"`
	Prize        string         `json:"prize,omitempty"`
	SourceURL    string         `json:"source_url"`
	DiscoveredAt time.Time      `json:"discovered_at"`
	RawPayload   map[string]any `json:"raw_payload,omitempty"`
}

// RecordID derives the deterministic record identity from title and source
// URL. The same logical hackathon always hashes to the same ID.
func RecordID(title, sourceURL string) string {
	sum := sha256.Sum256([]byte(title + "|" + sourceURL))
	return hex.EncodeToString(sum[:])
}

// Field aliases seen across extractor outputs and source APIs.
var (
	titleKeys    = []string{"title", "name", "hackathon_name"}
	deadlineKeys = []string{"deadline", "submission_deadline", "end_date", "ends_at", "submission_period_dates"}
	prizeKeys    = []string{"prize", "prizes", "prize_amount", "prize_pool"}
	urlKeys      = []string{"url", "link", "href", "source_url"}
)

// NormalizeRecords maps raw extractor output to HackathonRecords. Entries
// without a title are dropped and counted, never fatal: a partially
// malformed extractor must not abort the pipeline.
func NormalizeRecords(raw []map[string]any, sourceURL string, now time.Time) (records []HackathonRecord, dropped int) {
	for _, item := range raw {
		if item == nil {
			dropped++
			continue
		}
		title := firstString(item, titleKeys)
		if title == "" {
			dropped++
			continue
		}
		records = append(records, HackathonRecord{
			ID:           RecordID(title, sourceURL),
			Title:        title,
			Deadline:     firstString(item, deadlineKeys),
			Prize:        firstString(item, prizeKeys),
			SourceURL:    sourceURL,
			DiscoveredAt: now,
			RawPayload:   item,
		})
	}
	return records, dropped
}

func firstString(m map[string]any, keys []string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				return s
			}
		case []any:
			parts := make([]string, 0, len(val))
			for _, e := range val {
				if s, ok := e.(string); ok && strings.TrimSpace(s) != "" {
					parts = append(parts, strings.TrimSpace(s))
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, ", ")
			}
		case float64:
			return fmt.Sprintf("%v", val)
		}
	}
	return ""
}
