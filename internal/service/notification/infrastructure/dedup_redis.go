package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"shopflow/internal/pkg/redis"
)

// RedisDeduplicator 用 SETNX 记录处理过的 event-id
type RedisDeduplicator struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduplicator(client *redis.Client, ttl time.Duration) *RedisDeduplicator {
	return &RedisDeduplicator{client: client, ttl: ttl}
}

func (d *RedisDeduplicator) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.client.GetClient().SetNX(ctx, "notification:event:"+eventID, 1, d.ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "dedup event %s", eventID)
	}
	return ok, nil
}
