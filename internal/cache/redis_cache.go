package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

type completedValue struct {
	CallID      string    `json:"call_id"`
	CompletedAt time.Time `json:"completed_at"`
}

func (c *RedisCache) StoreCompleted(ctx context.Context, reminderID int64, callID string, completedAt time.Time) error {
	key := fmt.Sprintf("reminder:%d", reminderID)
	val := completedValue{
		CallID:      callID,
		CompletedAt: completedAt.UTC(),
	}

	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, key, b, c.ttl).Err()
}
