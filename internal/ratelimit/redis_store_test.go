package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/constants"
	"github.com/turtacn/aegis/pkg/logger"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store, err := NewRedisStore(client, constants.DefaultStateRetention, logger.NewNoopLogger())
	require.NoError(t, err)
	return store, mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	state := models.NewClientState("user:cust-42", now)
	state.Records = append(state.Records, models.RequestRecord{Timestamp: now, Success: true})
	state.SuspicionLevel = 30

	require.NoError(t, store.Put(ctx, state))

	got, err := store.Get(ctx, "user:cust-42")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "user:cust-42", got.Key)
	assert.Equal(t, 30, got.SuspicionLevel)
	require.Len(t, got.Records, 1)
	assert.True(t, got.Records[0].Timestamp.Equal(now))
}

func TestRedisStoreMissingKey(t *testing.T) {
	store, _ := newRedisStore(t)

	got, err := store.Get(context.Background(), "user:unknown")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStoreCorruptStateDropped(t *testing.T) {
	store, mr := newRedisStore(t)

	require.NoError(t, mr.Set(redisStateKeyPrefix+"user:bad", "not json"))

	got, err := store.Get(context.Background(), "user:bad")
	require.NoError(t, err)
	assert.Nil(t, got, "corrupt state must be treated as absent")
}

func TestRedisStoreBlockedTTLOutlivesRetention(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	// Tiny retention so the block expiry dominates the TTL.
	store, err := NewRedisStore(client, time.Minute, logger.NewNoopLogger())
	require.NoError(t, err)
	ctx := context.Background()

	state := models.NewClientState("anon:deadbeef", time.Now())
	state.Blocked = true
	state.BlockExpiresAt = time.Now().Add(30 * time.Minute)
	require.NoError(t, store.Put(ctx, state))

	ttl := mr.TTL(redisStateKeyPrefix + "anon:deadbeef")
	assert.Greater(t, ttl, 29*time.Minute, "TTL must cover the remaining block")
}

func TestRedisStoreDelete(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	state := models.NewClientState("user:cust-1", time.Now())
	require.NoError(t, store.Put(ctx, state))
	require.NoError(t, store.Delete(ctx, "user:cust-1"))

	got, err := store.Get(ctx, "user:cust-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting an absent key is not an error.
	assert.NoError(t, store.Delete(ctx, "user:cust-1"))
}
