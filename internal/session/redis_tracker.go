package session

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTracker stores flags as Redis keys so several bot replicas share them.
// Consumption uses GETDEL, which is atomic on the server.
type RedisTracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisTracker creates a tracker; ttl <= 0 keeps flags until consumed.
func NewRedisTracker(client *redis.Client, prefix string, ttl time.Duration) *RedisTracker {
	if prefix == "" {
		prefix = "support:awaiting:"
	}
	return &RedisTracker{client: client, prefix: prefix, ttl: ttl}
}

func (t *RedisTracker) key(reporterID int64) string {
	return t.prefix + strconv.FormatInt(reporterID, 10)
}

func (t *RedisTracker) MarkAwaiting(ctx context.Context, reporterID int64) error {
	ttl := t.ttl
	if ttl < 0 {
		ttl = 0
	}
	return t.client.Set(ctx, t.key(reporterID), "1", ttl).Err()
}

func (t *RedisTracker) ConsumeIfAwaiting(ctx context.Context, reporterID int64) (bool, error) {
	_, err := t.client.GetDel(ctx, t.key(reporterID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (t *RedisTracker) Reset(ctx context.Context, reporterID int64) error {
	return t.client.Del(ctx, t.key(reporterID)).Err()
}
