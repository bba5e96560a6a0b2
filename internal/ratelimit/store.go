// Package ratelimit implements the multi-strategy request limiter and its
// abuse-detection layer.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/turtacn/aegis/internal/domain/models"
)

// ClientStateStore holds per-client limiter state. Implementations do not
// serialize access per key; the Limiter does that with its own key locks.
type ClientStateStore interface {
	// Get returns the state for a client key, or nil if none exists.
	Get(ctx context.Context, key string) (*models.ClientState, error)

	// Put stores the state for a client key.
	Put(ctx context.Context, state *models.ClientState) error

	// Delete removes all state for a client key.
	Delete(ctx context.Context, key string) error

	// Sweep prunes request history older than the retention window, clears
	// expired blocks, and garbage-collects idle unblocked clients. Returns
	// the number of clients removed.
	Sweep(ctx context.Context, now time.Time, retention time.Duration) (int, error)
}

// MemoryStore is the process-local ClientStateStore.
type MemoryStore struct {
	mu      sync.RWMutex
	clients map[string]*models.ClientState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clients: make(map[string]*models.ClientState),
	}
}

// Get returns the state for a client key, or nil if the client is unknown.
func (s *MemoryStore) Get(ctx context.Context, key string) (*models.ClientState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients[key], nil
}

// Put stores the state for a client key.
func (s *MemoryStore) Put(ctx context.Context, state *models.ClientState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[state.Key] = state
	return nil
}

// Delete removes all state for a client key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, key)
	return nil
}

// Sweep prunes history and garbage-collects idle clients. A blocked client
// always survives the sweep, even when pruning leaves it with no history.
func (s *MemoryStore) Sweep(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-retention)
	removed := 0

	for key, state := range s.clients {
		state.ClearExpiredBlock(now)
		state.Prune(cutoff)

		if !state.Blocked && len(state.Records) == 0 && state.LastSeen.Before(cutoff) {
			delete(s.clients, key)
			removed++
		}
	}

	return removed, nil
}

// Size returns the number of tracked clients.
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
