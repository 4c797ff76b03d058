package logics

import (
	"context"
	"sync"
	"time"

	"formshield-server/internal/repositories"
)

// RetryCounter counts failed attempts per identity within a trailing window.
// Incr must be atomic so two concurrent failing requests cannot both read a
// count just under the ban threshold.
type RetryCounter interface {
	// Incr adds one to the counter for key and returns the new total. The
	// counter expires after window once no increments arrive.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)

	// Reset clears the counter for key
	Reset(ctx context.Context, key string) error
}

// redisRetryCounter is the production counter, backed by INCR with a
// window-sized expiry
type redisRetryCounter struct{}

func NewRedisRetryCounter() RetryCounter {
	return &redisRetryCounter{}
}

func (c *redisRetryCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := repositories.DBS.Redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// Set the expiry only on the first increment so the window slides from
	// the first failure, not the latest one
	if count == 1 {
		repositories.DBS.Redis.Expire(ctx, key, window)
	}
	return count, nil
}

func (c *redisRetryCounter) Reset(ctx context.Context, key string) error {
	return repositories.DBS.Redis.Del(ctx, key).Err()
}

// memoryRetryCounter keeps counters in process memory. Used by tests and as
// a degraded fallback when Redis is not configured.
type memoryRetryCounter struct {
	mu      sync.Mutex
	counts  map[string]int64
	expires map[string]time.Time
}

func NewMemoryRetryCounter() RetryCounter {
	return &memoryRetryCounter{
		counts:  make(map[string]int64),
		expires: make(map[string]time.Time),
	}
}

func (c *memoryRetryCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if expiry, ok := c.expires[key]; ok && time.Now().After(expiry) {
		delete(c.counts, key)
		delete(c.expires, key)
	}

	c.counts[key]++
	if c.counts[key] == 1 {
		c.expires[key] = time.Now().Add(window)
	}
	return c.counts[key], nil
}

func (c *memoryRetryCounter) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, key)
	delete(c.expires, key)
	return nil
}
