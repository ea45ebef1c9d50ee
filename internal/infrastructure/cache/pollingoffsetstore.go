package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"github.com/orris-inc/keygate/internal/shared/constants"
)

// PollingOffsetStore persists the Telegram polling offset across restarts.
type PollingOffsetStore struct {
	client *redis.Client
}

func NewPollingOffsetStore(client *redis.Client) *PollingOffsetStore {
	return &PollingOffsetStore{client: client}
}

// GetOffset returns the last saved offset, or 0 if not found.
func (s *PollingOffsetStore) GetOffset(ctx context.Context) (int64, error) {
	val, err := s.client.Get(ctx, constants.RedisKeyPollingOffset).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get polling offset: %w", err)
	}

	offset, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse polling offset: %w", err)
	}
	return offset, nil
}

func (s *PollingOffsetStore) SaveOffset(ctx context.Context, offset int64) error {
	val := strconv.FormatInt(offset, 10)
	if err := s.client.Set(ctx, constants.RedisKeyPollingOffset, val, 0).Err(); err != nil {
		return fmt.Errorf("failed to save polling offset: %w", err)
	}
	return nil
}

// MemoryOffsetStore is used when Redis is disabled. Telegram redelivers unconfirmed updates
// for 24 hours, so a restart may replay recent ones.
type MemoryOffsetStore struct {
	offset atomic.Int64
}

func (s *MemoryOffsetStore) GetOffset(context.Context) (int64, error) {
	return s.offset.Load(), nil
}

func (s *MemoryOffsetStore) SaveOffset(_ context.Context, offset int64) error {
	s.offset.Store(offset)
	return nil
}
