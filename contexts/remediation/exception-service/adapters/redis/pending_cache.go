package redisadapter

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const pendingCountKey = "waivery:exception:pending_count"

// PendingCountCache mirrors the notifier's authoritative count into redis so
// polling observers on other processes read a fresh snapshot without hitting
// the request store.
type PendingCountCache struct {
	client *redis.Client
}

func NewPendingCountCache(client *redis.Client) *PendingCountCache {
	return &PendingCountCache{client: client}
}

func (c *PendingCountCache) SetPendingCount(ctx context.Context, count int) error {
	return c.client.Set(ctx, pendingCountKey, count, 0).Err()
}

// GetPendingCount returns the cached count, or false when no snapshot has
// been written yet.
func (c *PendingCountCache) GetPendingCount(ctx context.Context) (int, bool, error) {
	raw, err := c.client.Get(ctx, pendingCountKey).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}
