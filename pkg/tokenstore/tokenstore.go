// Package tokenstore records revoked token ids until the tokens expire.
package tokenstore

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Store tracks revoked JWT ids.
type Store interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
	// RevokeOnce revokes jti atomically. It reports false when jti was
	// already revoked or has expired, so at most one caller wins.
	RevokeOnce(ctx context.Context, jti string, expiresAt time.Time) (bool, error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// MemoryStore keeps revocations in process.
type MemoryStore struct {
	cache *cache.Cache
	now   func() time.Time
}

func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: cache.New(cache.NoExpiration, cleanupInterval),
		now:   time.Now,
	}
}

func (s *MemoryStore) Revoke(_ context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	s.cache.Set(jti, struct{}{}, ttl)
	return nil
}

func (s *MemoryStore) RevokeOnce(_ context.Context, jti string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return false, nil
	}
	// Add fails when the key is present.
	return s.cache.Add(jti, struct{}{}, ttl) == nil, nil
}

func (s *MemoryStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	_, found := s.cache.Get(jti)
	return found, nil
}

// RedisClient is the subset of go-redis the store uses.
type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore shares revocations between API instances.
type RedisStore struct {
	client RedisClient
	prefix string
	now    func() time.Time
}

func NewRedisStore(client RedisClient) *RedisStore {
	return &RedisStore{client: client, prefix: "records:revoked:", now: time.Now}
}

func (s *RedisStore) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.prefix+jti, 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

func (s *RedisStore) RevokeOnce(ctx context.Context, jti string, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return false, nil
	}
	ok, err := s.client.SetNX(ctx, s.prefix+jti, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to revoke token: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+jti).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token revocation: %w", err)
	}
	return n > 0, nil
}
