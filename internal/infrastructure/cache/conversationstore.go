package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/orris-inc/keygate/internal/application/conversation"
	"github.com/orris-inc/keygate/internal/shared/constants"
)

// RedisConversationStore keeps conversation states in Redis so flows survive a restart.
// Every Put refreshes the TTL.
type RedisConversationStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisConversationStore(client *redis.Client, ttl time.Duration) *RedisConversationStore {
	return &RedisConversationStore{client: client, ttl: ttl}
}

var _ conversation.StateStore = (*RedisConversationStore)(nil)

func (s *RedisConversationStore) buildKey(actorID int64) string {
	return constants.RedisKeyConversation + strconv.FormatInt(actorID, 10)
}

func (s *RedisConversationStore) Get(ctx context.Context, actorID int64) (*conversation.State, error) {
	data, err := s.client.Get(ctx, s.buildKey(actorID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get conversation state: %w", err)
	}

	var st conversation.State
	if err := json.Unmarshal(data, &st); err != nil {
		// unreadable state is treated as no flow; the actor starts over
		_ = s.client.Del(ctx, s.buildKey(actorID)).Err()
		return nil, nil
	}
	return &st, nil
}

func (s *RedisConversationStore) Put(ctx context.Context, state *conversation.State) error {
	if state == nil || state.ActorID == 0 {
		return errors.New("conversation state requires an actor")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation state: %w", err)
	}
	if err := s.client.Set(ctx, s.buildKey(state.ActorID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store conversation state: %w", err)
	}
	return nil
}

func (s *RedisConversationStore) Delete(ctx context.Context, actorID int64) error {
	if err := s.client.Del(ctx, s.buildKey(actorID)).Err(); err != nil {
		return fmt.Errorf("failed to delete conversation state: %w", err)
	}
	return nil
}
