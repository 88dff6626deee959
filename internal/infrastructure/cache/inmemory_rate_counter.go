package cache

import (
	"context"
	"sync"
	"time"

	appsettlement "github.com/marketplace/backend/internal/application/settlement"
)

// counterEntry represents a counter value with a window expiry
type counterEntry struct {
	value     int64
	expiresAt time.Time
}

// InMemoryRateCounter implements the automation rate counter with an
// in-process map. Suitable for single-instance deployments and testing;
// multi-instance deployments must use the Redis-backed counter or the caps
// multiply by the number of instances.
type InMemoryRateCounter struct {
	mu       sync.Mutex
	counters map[string]counterEntry
}

// NewInMemoryRateCounter creates a new in-memory rate counter
func NewInMemoryRateCounter() *InMemoryRateCounter {
	return &InMemoryRateCounter{
		counters: make(map[string]counterEntry),
	}
}

// Increment adds delta to the counter for key and returns the new value.
// The first increment of a window sets the expiry; later increments reuse it.
func (c *InMemoryRateCounter) Increment(ctx context.Context, key string, delta int64, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	e, exists := c.counters[key]
	if !exists || now.After(e.expiresAt) {
		e = counterEntry{expiresAt: now.Add(window)}
	}
	e.value += delta
	c.counters[key] = e

	return e.value, nil
}

// Current returns the counter's current value, zero if expired or unset
func (c *InMemoryRateCounter) Current(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.counters[key]
	if !exists || time.Now().After(e.expiresAt) {
		return 0, nil
	}
	return e.value, nil
}

// Ensure InMemoryRateCounter implements RateCounter
var _ appsettlement.RateCounter = (*InMemoryRateCounter)(nil)
