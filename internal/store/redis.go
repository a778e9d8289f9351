package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const activityTTL = 7 * 24 * time.Hour

// RedisStore handles Redis operations: rate-limit counters (used by the
// middleware through Client()) and the channel activity leaderboard shown
// on the stats endpoint.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying client for the rate limiter middleware.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

const activityKey = "channels:activity"

// TouchChannelActivity bumps a channel's score on the activity leaderboard.
// Best-effort: callers ignore failures here.
func (s *RedisStore) TouchChannelActivity(ctx context.Context, channelID string) error {
	pipe := s.client.Pipeline()
	pipe.ZIncrBy(ctx, activityKey, 1, channelID)
	pipe.Expire(ctx, activityKey, activityTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// RecentChannelActivity returns channel IDs ordered by recent message
// volume, highest first.
func (s *RedisStore) RecentChannelActivity(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.client.ZRevRange(ctx, activityKey, 0, int64(limit)-1).Result()
}
