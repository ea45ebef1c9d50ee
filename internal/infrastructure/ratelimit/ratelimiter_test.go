package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/keygate/internal/shared/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestPolicy_Interval(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 10*time.Second, p.Interval(CategorySubscribe))
	assert.Equal(t, 3*time.Second, p.Interval("unknown"))
	assert.Equal(t, 10*time.Second, p.longest())

	cfg := PolicyFromConfig(5*time.Second, map[string]time.Duration{"callback": time.Second})
	assert.Equal(t, time.Second, cfg.Interval(CategoryCallback))
	assert.Equal(t, 5*time.Second, cfg.Interval(CategoryMessage))
}

func TestMemoryRateLimiter_Cooldown(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewMemoryRateLimiter(DefaultPolicy(), clock)

	assert.True(t, limiter.Allow(ctx, 1, CategoryCallback))
	clock.Advance(1999 * time.Millisecond)
	assert.False(t, limiter.Allow(ctx, 1, CategoryCallback), "inside the interval")

	// the rejected call above did not move the window
	clock.Advance(time.Millisecond)
	assert.True(t, limiter.Allow(ctx, 1, CategoryCallback), "exactly one interval after the last allowed call")
	assert.False(t, limiter.Allow(ctx, 1, CategoryCallback))
}

func TestMemoryRateLimiter_IsolatesActorsAndCategories(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	limiter := NewMemoryRateLimiter(DefaultPolicy(), clock)

	assert.True(t, limiter.Allow(ctx, 1, CategorySubscribe))
	assert.True(t, limiter.Allow(ctx, 2, CategorySubscribe))
	assert.True(t, limiter.Allow(ctx, 1, CategoryCallback))
	assert.False(t, limiter.Allow(ctx, 1, CategorySubscribe))
	assert.False(t, limiter.Allow(ctx, 2, CategorySubscribe))
}

func TestMemoryRateLimiter_ZeroIntervalAlwaysAllows(t *testing.T) {
	limiter := NewMemoryRateLimiter(Policy{Intervals: map[Category]time.Duration{}}, nil)
	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(context.Background(), 1, CategoryMessage))
	}
}

func TestRedisRateLimiter_Cooldown(t *testing.T) {
	ctx := context.Background()
	mr, client := setupTestRedis(t)
	limiter := NewRedisRateLimiter(client, DefaultPolicy(), logger.NewNop())

	assert.True(t, limiter.Allow(ctx, 7, CategorySubscribe))
	assert.False(t, limiter.Allow(ctx, 7, CategorySubscribe))
	assert.True(t, limiter.Allow(ctx, 8, CategorySubscribe))

	ttl := mr.TTL("keygate:ratelimit:subscribe:7")
	assert.Equal(t, 10*time.Second, ttl)

	mr.FastForward(9 * time.Second)
	assert.False(t, limiter.Allow(ctx, 7, CategorySubscribe))
	mr.FastForward(time.Second)
	assert.True(t, limiter.Allow(ctx, 7, CategorySubscribe))
}

func TestRedisRateLimiter_FailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(func() { client.Close() })
	limiter := NewRedisRateLimiter(client, DefaultPolicy(), logger.NewNop())

	require.True(t, limiter.Allow(context.Background(), 1, CategoryCommand))
	assert.True(t, limiter.Allow(context.Background(), 1, CategoryCommand), "no state is recorded while redis is down")
}
