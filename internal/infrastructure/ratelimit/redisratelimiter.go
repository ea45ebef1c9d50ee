package ratelimit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/orris-inc/keygate/internal/shared/constants"
	"github.com/orris-inc/keygate/internal/shared/logger"
)

// RedisRateLimiter shares cooldowns between replicas. Each allowed call sets a key that
// expires after the category interval; SET NX leaves the key untouched when it already exists.
type RedisRateLimiter struct {
	client *redis.Client
	policy Policy
	logger logger.Interface
}

func NewRedisRateLimiter(client *redis.Client, policy Policy, log logger.Interface) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, policy: policy, logger: log}
}

// Allow fails open when Redis is unreachable; the cooldown is a courtesy gate, not a security control.
func (l *RedisRateLimiter) Allow(ctx context.Context, actorID int64, category Category) bool {
	interval := l.policy.Interval(category)
	if interval <= 0 {
		return true
	}

	ok, err := l.client.SetNX(ctx, l.key(actorID, category), 1, interval).Result()
	if err != nil {
		l.logger.Warnw("rate limiter unavailable, allowing action",
			"actor_id", actorID,
			"category", category,
			"error", err,
		)
		return true
	}
	return ok
}

func (l *RedisRateLimiter) key(actorID int64, category Category) string {
	return fmt.Sprintf("%s%s:%d", constants.RedisKeyRateLimitScope, category, actorID)
}
