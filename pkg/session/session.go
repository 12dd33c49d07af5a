package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"vpnstore/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

// State is the short-lived per-chat conversation state (e.g. "waiting for
// promo code input"). It is stored with a TTL so abandoned wizards evaporate.
type State struct {
	Step    string            `json:"step"`
	Payload map[string]string `json:"payload,omitempty"`
}

// Store is injected wherever conversation state is needed; it is never a
// package-level map so it can be tested and swapped for a shared backend.
type Store interface {
	Get(ctx context.Context, chatID string) (*State, error)
	Set(ctx context.Context, chatID string, state *State) error
	Clear(ctx context.Context, chatID string) error
}

var Module = fx.Module("session",
	fx.Provide(NewRedisStore),
)

const defaultTTL = 15 * time.Minute

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client) Store {
	return &RedisStore{rdb: rdb, ttl: defaultTTL}
}

func (s *RedisStore) Get(ctx context.Context, chatID string) (*State, error) {
	raw, err := s.rdb.Get(ctx, rediskey.BuildSessionKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *RedisStore) Set(ctx context.Context, chatID string, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, rediskey.BuildSessionKey(chatID), raw, s.ttl).Err()
}

func (s *RedisStore) Clear(ctx context.Context, chatID string) error {
	return s.rdb.Del(ctx, rediskey.BuildSessionKey(chatID)).Err()
}

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

// MemoryStore is the in-process Store used in tests and single-node setups.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
	}
}

func (s *MemoryStore) Get(ctx context.Context, chatID string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[chatID]
	if !ok {
		return nil, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.entries, chatID)
		return nil, nil
	}
	state := entry.state
	return &state, nil
}

func (s *MemoryStore) Set(ctx context.Context, chatID string, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[chatID] = memoryEntry{state: *state, expiresAt: time.Now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, chatID)
	return nil
}
