// Package store holds the durable Redis-backed stores: hackathon records,
// user preferences and notification history.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"hackscout/scout"
)

const (
	hackathonKeyPrefix = "hackathon:"
	hackathonTimeIndex = "hackathons:by_time"
)

// Hackathons is the durable record store, keyed by the deterministic record
// ID so re-discovery upserts instead of duplicating.
type Hackathons struct {
	client *redis.Client
}

func NewHackathons(client *redis.Client) *Hackathons {
	return &Hackathons{client: client}
}

// Upsert writes one record and indexes it by discovery time. Overwrites are
// harmless: the same logical hackathon always carries the same ID.
func (h *Hackathons) Upsert(ctx context.Context, record *scout.HackathonRecord) error {
	if record.ID == "" {
		return fmt.Errorf("record %q has no id", record.Title)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %v", record.ID, err)
	}
	if err := h.client.Set(ctx, hackathonKeyPrefix+record.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store record %s: %v", record.ID, err)
	}
	err = h.client.ZAdd(ctx, hackathonTimeIndex, redis.Z{
		Score:  float64(record.DiscoveredAt.Unix()),
		Member: record.ID,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to index record %s: %v", record.ID, err)
	}
	return nil
}

// Get returns one record by ID.
func (h *Hackathons) Get(ctx context.Context, id string) (*scout.HackathonRecord, error) {
	data, err := h.client.Get(ctx, hackathonKeyPrefix+id).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("hackathon %s not found", id)
		}
		return nil, fmt.Errorf("failed to load hackathon %s: %v", id, err)
	}
	var rec scout.HackathonRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("hackathon %s is unreadable: %v", id, err)
	}
	return &rec, nil
}

// Recent returns up to n records, newest discovery first.
func (h *Hackathons) Recent(ctx context.Context, n int) ([]*scout.HackathonRecord, error) {
	if n <= 0 {
		n = 50
	}
	ids, err := h.client.ZRevRange(ctx, hackathonTimeIndex, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list recent hackathons: %v", err)
	}

	records := make([]*scout.HackathonRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := h.Get(ctx, id)
		if err != nil {
			// Index entries can outlive records; skip and keep going.
			log.Printf("⚠️ [STORE] Skipping indexed record %s: %v", id, err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// SaveVector caches an embedding for one record, used by preference
// matching. Vectors are derivative data and carry a TTL.
func (h *Hackathons) SaveVector(ctx context.Context, id string, vector []float64) error {
	data, err := json.Marshal(vector)
	if err != nil {
		return err
	}
	return h.client.Set(ctx, "vec:hackathon:"+id, data, 30*24*time.Hour).Err()
}

// GetVector returns the cached embedding for one record, or nil when absent.
func (h *Hackathons) GetVector(ctx context.Context, id string) ([]float64, error) {
	data, err := h.client.Get(ctx, "vec:hackathon:"+id).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var vec []float64
	if err := json.Unmarshal([]byte(data), &vec); err != nil {
		return nil, err
	}
	return vec, nil
}
