package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/keygate/internal/application/conversation"
	vo "github.com/orris-inc/keygate/internal/domain/entitlement/valueobjects"
	"github.com/orris-inc/keygate/internal/shared/constants"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisConversationStore(t *testing.T) {
	mr, client := setupRedis(t)
	store := NewRedisConversationStore(client, 30*time.Minute)
	ctx := context.Background()

	got, err := store.Get(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got)

	st := &conversation.State{
		ActorID:       42,
		FlowID:        "a1b2c3d4e5f6",
		Step:          conversation.StepAwaitPayment,
		PlanID:        "1_month",
		PaymentRef:    "inv-1",
		PaymentMethod: vo.PaymentMethodCrypto,
		UpdatedAt:     time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Put(ctx, st))
	assert.Equal(t, 30*time.Minute, mr.TTL(constants.RedisKeyConversation+"42"))

	got, err = store.Get(ctx, 42)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, st.FlowID, got.FlowID)
	assert.Equal(t, st.Step, got.Step)
	assert.Equal(t, vo.PaymentMethodCrypto, got.PaymentMethod)
	assert.True(t, st.UpdatedAt.Equal(got.UpdatedAt))

	require.NoError(t, store.Delete(ctx, 42))
	got, err = store.Get(ctx, 42)
	require.NoError(t, err)
	assert.Nil(t, got)

	t.Run("expires with ttl", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, st))
		mr.FastForward(31 * time.Minute)
		got, err := store.Get(ctx, 42)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("corrupt value reads as empty", func(t *testing.T) {
		require.NoError(t, mr.Set(constants.RedisKeyConversation+"7", "{not json"))
		got, err := store.Get(ctx, 7)
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.False(t, mr.Exists(constants.RedisKeyConversation+"7"))
	})

	t.Run("requires actor", func(t *testing.T) {
		assert.Error(t, store.Put(ctx, &conversation.State{}))
	})

}

func TestReminderStores(t *testing.T) {
	_, client := setupRedis(t)
	ctx := context.Background()

	stores := map[string]interface {
		TryMark(ctx context.Context, key string) (bool, error)
	}{
		"redis":  NewRedisReminderStore(client, 7*24*time.Hour),
		"memory": NewMemoryReminderStore(7 * 24 * time.Hour),
	}
	for name, store := range stores {
		t.Run(name, func(t *testing.T) {
			first, err := store.TryMark(ctx, "5:1775000000")
			require.NoError(t, err)
			assert.True(t, first)

			again, err := store.TryMark(ctx, "5:1775000000")
			require.NoError(t, err)
			assert.False(t, again)

			renewed, err := store.TryMark(ctx, "5:1777600000")
			require.NoError(t, err)
			assert.True(t, renewed)
		})
	}
}

func TestPollingOffsetStore(t *testing.T) {
	_, client := setupRedis(t)
	store := NewPollingOffsetStore(client)
	ctx := context.Background()

	offset, err := store.GetOffset(ctx)
	require.NoError(t, err)
	assert.Zero(t, offset)

	require.NoError(t, store.SaveOffset(ctx, 981234))
	offset, err = store.GetOffset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(981234), offset)

	mem := &MemoryOffsetStore{}
	require.NoError(t, mem.SaveOffset(ctx, 12))
	offset, err = mem.GetOffset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), offset)
}
