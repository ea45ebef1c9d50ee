package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/orris-inc/keygate/internal/shared/biztime"
)

const defaultMaxTrackedKeys = 100_000

// MemoryRateLimiter keeps the last allowed time per (actor, category) in a bounded LRU.
// Entries live for the longest configured interval, after which they can no longer reject.
type MemoryRateLimiter struct {
	policy Policy
	clock  biztime.Clock

	mu   sync.Mutex
	last *expirable.LRU[string, time.Time]
}

func NewMemoryRateLimiter(policy Policy, clock biztime.Clock) *MemoryRateLimiter {
	if clock == nil {
		clock = biztime.SystemClock()
	}
	ttl := policy.longest()
	if ttl <= 0 {
		ttl = time.Second
	}
	return &MemoryRateLimiter{
		policy: policy,
		clock:  clock,
		last:   expirable.NewLRU[string, time.Time](defaultMaxTrackedKeys, nil, ttl),
	}
}

func (l *MemoryRateLimiter) Allow(_ context.Context, actorID int64, category Category) bool {
	interval := l.policy.Interval(category)
	if interval <= 0 {
		return true
	}

	key := strconv.FormatInt(actorID, 10) + ":" + string(category)
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if last, ok := l.last.Get(key); ok && now.Sub(last) < interval {
		return false
	}
	l.last.Add(key, now)
	return true
}
