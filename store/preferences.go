package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoPreference is returned when a user has never stored preferences.
var ErrNoPreference = errors.New("store: no preference for user")

// Preference is one user's stored interest text plus its embedding vector.
type Preference struct {
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	Vector    []float64 `json:"vector,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	prefKeyPrefix = "pref:"
	prefUserSet   = "prefs:users"
)

// Preferences stores user interest profiles for the nudge agent.
type Preferences struct {
	client *redis.Client
}

func NewPreferences(client *redis.Client) *Preferences {
	return &Preferences{client: client}
}

// Save upserts one user's preference and registers the user as active.
func (p *Preferences) Save(ctx context.Context, pref *Preference) error {
	if pref.UserID == "" {
		return fmt.Errorf("preference has no user id")
	}
	pref.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(pref)
	if err != nil {
		return fmt.Errorf("failed to marshal preference for %s: %v", pref.UserID, err)
	}
	if err := p.client.Set(ctx, prefKeyPrefix+pref.UserID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store preference for %s: %v", pref.UserID, err)
	}
	if err := p.client.SAdd(ctx, prefUserSet, pref.UserID).Err(); err != nil {
		return fmt.Errorf("failed to register user %s: %v", pref.UserID, err)
	}
	return nil
}

// Get returns one user's preference or ErrNoPreference.
func (p *Preferences) Get(ctx context.Context, userID string) (*Preference, error) {
	data, err := p.client.Get(ctx, prefKeyPrefix+userID).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNoPreference
		}
		return nil, fmt.Errorf("failed to load preference for %s: %v", userID, err)
	}
	var pref Preference
	if err := json.Unmarshal([]byte(data), &pref); err != nil {
		return nil, fmt.Errorf("preference for %s is unreadable: %v", userID, err)
	}
	return &pref, nil
}

// ActiveUsers lists every user with stored preferences.
func (p *Preferences) ActiveUsers(ctx context.Context) ([]string, error) {
	users, err := p.client.SMembers(ctx, prefUserSet).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %v", err)
	}
	return users, nil
}
