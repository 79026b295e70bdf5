package utils

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionStore tracks which visitor session keys were issued by this service.
type SessionStore interface {
	// Touch registers key, or extends it, for ttl.
	Touch(ctx context.Context, key string, ttl time.Duration) error
	// Exists reports whether key is registered and not expired.
	Exists(ctx context.Context, key string) (bool, error)
}

const sessionKeyPrefix = "hitcount:session:"

// RedisSessionStore keeps session keys in Redis with a TTL, shared across instances.
type RedisSessionStore struct {
	rc *redis.Client
}

// NewRedisSessionStore wraps rc.
func NewRedisSessionStore(rc *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{rc: rc}
}

func (s *RedisSessionStore) Touch(ctx context.Context, key string, ttl time.Duration) error {
	return s.rc.Set(ctx, sessionKeyPrefix+key, "1", ttl).Err()
}

func (s *RedisSessionStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rc.Exists(ctx, sessionKeyPrefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemorySessionStore is the single-instance fallback used when Redis is unavailable.
type MemorySessionStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemorySessionStore creates an empty in-process store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{entries: map[string]time.Time{}, now: time.Now}
}

func (s *MemorySessionStore) Touch(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	// expired keys are dropped lazily on writes
	for k, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, k)
		}
	}
	s.entries[key] = now.Add(ttl)
	return nil
}

func (s *MemorySessionStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if s.now().After(exp) {
		delete(s.entries, key)
		return false, nil
	}
	return true, nil
}

// NewSessionStore prefers Redis and falls back to memory when kind is "memory" or
// Redis cannot be reached.
func NewSessionStore(kind string) SessionStore {
	if kind != "memory" {
		rc, err := GetRedis()
		if err == nil {
			return NewRedisSessionStore(rc)
		}
		Sugar.Warnf("redis unavailable, sessions fall back to memory: %v", err)
	}
	return NewMemorySessionStore()
}
