package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Notifications records which hackathons each user has already been told
// about, so the nudge agent never repeats itself.
type Notifications struct {
	client *redis.Client
}

func NewNotifications(client *redis.Client) *Notifications {
	return &Notifications{client: client}
}

func notifiedKey(userID string) string {
	return "notified:" + userID
}

func (n *Notifications) MarkNotified(ctx context.Context, userID, hackathonID string) error {
	if err := n.client.SAdd(ctx, notifiedKey(userID), hackathonID).Err(); err != nil {
		return fmt.Errorf("failed to record notification for %s: %v", userID, err)
	}
	return nil
}

func (n *Notifications) WasNotified(ctx context.Context, userID, hackathonID string) (bool, error) {
	seen, err := n.client.SIsMember(ctx, notifiedKey(userID), hackathonID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check notification history for %s: %v", userID, err)
	}
	return seen, nil
}
