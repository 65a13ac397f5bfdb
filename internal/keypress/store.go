// Package keypress remembers the last keypad digit pressed during a call
// until the call summary consumes it.
package keypress

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is a short-lived token -> digit map. Take deletes what it returns.
type Store interface {
	Set(ctx context.Context, token, digit string, ttl time.Duration) error
	Take(ctx context.Context, token string) (digit string, ok bool, err error)
}

type memEntry struct {
	digit     string
	expiresAt time.Time
}

// MemoryStore keeps digits in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memEntry{}, now: time.Now}
}

func (s *MemoryStore) Set(_ context.Context, token, digit string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = memEntry{digit: digit, expiresAt: s.now().Add(ttl)}
	s.evictLocked()
	return nil
}

func (s *MemoryStore) Take(_ context.Context, token string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[token]
	if !ok {
		return "", false, nil
	}
	delete(s.entries, token)
	if !s.now().Before(e.expiresAt) {
		return "", false, nil
	}
	return e.digit, true, nil
}

// evictLocked drops expired entries; callers hold mu.
func (s *MemoryStore) evictLocked() {
	now := s.now()
	for k, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}

// RedisStore shares digits between replicas receiving webhooks.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "vm:dtmf:"}
}

func (s *RedisStore) Set(ctx context.Context, token, digit string, ttl time.Duration) error {
	return s.rdb.Set(ctx, s.prefix+token, digit, ttl).Err()
}

func (s *RedisStore) Take(ctx context.Context, token string) (string, bool, error) {
	v, err := s.rdb.GetDel(ctx, s.prefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}
