package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/aegis/internal/domain/models"
	"github.com/turtacn/aegis/pkg/errors"
	"github.com/turtacn/aegis/pkg/logger"
)

const redisStateKeyPrefix = "aegis:ratelimit:state:"

// RedisStore is a shared-cache ClientStateStore so horizontally scaled
// instances can converge on one view of a client. State is stored as a JSON
// blob per client with a TTL; expiry replaces the periodic sweep.
type RedisStore struct {
	client    redis.UniversalClient
	retention time.Duration
	log       logger.Logger
}

// NewRedisStore creates a Redis-backed client state store.
func NewRedisStore(client redis.UniversalClient, retention time.Duration, log logger.Logger) (*RedisStore, error) {
	if client == nil {
		return nil, errors.ErrInvalidRequest("redis client is required")
	}
	return &RedisStore{
		client:    client,
		retention: retention,
		log:       log.WithComponent("redis_state_store"),
	}, nil
}

// Get returns the state for a client key, or nil if the client is unknown.
func (s *RedisStore) Get(ctx context.Context, key string) (*models.ClientState, error) {
	data, err := s.client.Get(ctx, redisStateKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ErrStoreUnavailable(err.Error()).WithCause(err)
	}

	var state models.ClientState
	if err := json.Unmarshal(data, &state); err != nil {
		// Corrupt state is dropped rather than wedging the client forever.
		s.log.Warn(ctx, "discarding unreadable client state", logger.String("key", key))
		return nil, nil
	}
	return &state, nil
}

// Put stores the state. The TTL covers the retention window, extended past a
// block expiry so a blocked client cannot shed its block through key expiry.
func (s *RedisStore) Put(ctx context.Context, state *models.ClientState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal client state: %w", err)
	}

	ttl := s.retention
	if state.Blocked {
		if until := time.Until(state.BlockExpiresAt); until > ttl {
			ttl = until + time.Minute
		}
	}

	if err := s.client.Set(ctx, redisStateKeyPrefix+state.Key, data, ttl).Err(); err != nil {
		return errors.ErrStoreUnavailable(err.Error()).WithCause(err)
	}
	return nil
}

// Delete removes all state for a client key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, redisStateKeyPrefix+key).Err(); err != nil && err != redis.Nil {
		return errors.ErrStoreUnavailable(err.Error()).WithCause(err)
	}
	return nil
}

// Sweep is a no-op for Redis; key TTLs bound retention. History pruning still
// happens inline in the limiter before each strategy decision.
func (s *RedisStore) Sweep(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	return 0, nil
}
