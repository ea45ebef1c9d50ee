package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/orris-inc/keygate/internal/shared/constants"
)

// RedisReminderStore records sent reminders with SETNX so a restart does not resend them.
type RedisReminderStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisReminderStore(client *redis.Client, ttl time.Duration) *RedisReminderStore {
	return &RedisReminderStore{client: client, ttl: ttl}
}

// TryMark returns true only for the first caller with this key.
func (s *RedisReminderStore) TryMark(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, constants.RedisKeyReminder+key, 1, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark reminder: %w", err)
	}
	return ok, nil
}

const maxTrackedReminders = 100_000

// MemoryReminderStore is the single-process variant. Marks are lost on restart.
type MemoryReminderStore struct {
	mu   sync.Mutex
	sent *expirable.LRU[string, struct{}]
}

func NewMemoryReminderStore(ttl time.Duration) *MemoryReminderStore {
	return &MemoryReminderStore{sent: expirable.NewLRU[string, struct{}](maxTrackedReminders, nil, ttl)}
}

func (s *MemoryReminderStore) TryMark(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent.Contains(key) {
		return false, nil
	}
	s.sent.Add(key, struct{}{})
	return true, nil
}
