package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	appsettlement "github.com/marketplace/backend/internal/application/settlement"
	"github.com/redis/go-redis/v9"
)

// RedisRateCounter implements the automation rate counter on Redis.
// All instances share the same counters, so per-seller and global approval
// caps hold across the whole deployment, not per process. Counters reset by
// key expiry: the first increment of a window sets the TTL, later increments
// reuse it.
type RedisRateCounter struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisRateCounter creates a rate counter backed by an existing Redis client
func NewRedisRateCounter(client *redis.Client, keyPrefix string) *RedisRateCounter {
	if keyPrefix == "" {
		keyPrefix = "settlement:rate:"
	}
	return &RedisRateCounter{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Increment adds delta to the counter for key and returns the new value.
// INCRBY and the conditional EXPIRE run in a pipeline so a crash between
// them cannot leave a counter without expiry.
func (c *RedisRateCounter) Increment(ctx context.Context, key string, delta int64, window time.Duration) (int64, error) {
	fullKey := c.keyPrefix + key

	var incr *redis.IntCmd
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.IncrBy(ctx, fullKey, delta)
		pipe.ExpireNX(ctx, fullKey, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment rate counter: %w", err)
	}

	return incr.Val(), nil
}

// Current returns the counter's current value, zero if expired or unset
func (c *RedisRateCounter) Current(ctx context.Context, key string) (int64, error) {
	val, err := c.client.Get(ctx, c.keyPrefix+key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read rate counter: %w", err)
	}
	return val, nil
}

// Ensure RedisRateCounter implements RateCounter
var _ appsettlement.RateCounter = (*RedisRateCounter)(nil)
