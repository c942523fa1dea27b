package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const refreshKeyPrefix = "refresh_token"

// RevocationStore holds allow-records for outstanding refresh tokens. A
// refresh token is only honoured while its record exists.
type RevocationStore interface {
	Allow(ctx context.Context, subject, token string, ttl time.Duration) error
	IsAllowed(ctx context.Context, subject, token string) (bool, error)
	Revoke(ctx context.Context, subject, token string) error
	RevokeAll(ctx context.Context, subject string) (int, error)
	// Consume deletes the record and reports whether this call removed it.
	Consume(ctx context.Context, subject, token string) (bool, error)
}

// RedisRevocationStore keeps allow-records in Redis so every API replica
// sees the same state.
type RedisRevocationStore struct {
	client    redis.UniversalClient
	scanBatch int64
}

// NewRedisRevocationStore constructs the store.
func NewRedisRevocationStore(client redis.UniversalClient) *RedisRevocationStore {
	return &RedisRevocationStore{client: client, scanBatch: 100}
}

func refreshKey(subject, token string) string {
	return fmt.Sprintf("%s:%s:%s", refreshKeyPrefix, subject, token)
}

// Allow records token as live for ttl.
func (s *RedisRevocationStore) Allow(ctx context.Context, subject, token string, ttl time.Duration) error {
	return s.client.Set(ctx, refreshKey(subject, token), "1", ttl).Err()
}

// IsAllowed reports whether the allow-record exists.
func (s *RedisRevocationStore) IsAllowed(ctx context.Context, subject, token string) (bool, error) {
	n, err := s.client.Exists(ctx, refreshKey(subject, token)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Revoke removes the allow-record. Missing records are not an error.
func (s *RedisRevocationStore) Revoke(ctx context.Context, subject, token string) error {
	return s.client.Del(ctx, refreshKey(subject, token)).Err()
}

// Consume removes the allow-record atomically; only one concurrent caller
// observes true.
func (s *RedisRevocationStore) Consume(ctx context.Context, subject, token string) (bool, error) {
	n, err := s.client.Del(ctx, refreshKey(subject, token)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RevokeAll scans for every allow-record of subject and deletes them,
// returning the number removed. Keys are collected over the full scan
// before any delete so the cursor never skips records.
func (s *RedisRevocationStore) RevokeAll(ctx context.Context, subject string) (int, error) {
	pattern := fmt.Sprintf("%s:%s:*", refreshKeyPrefix, subject)
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, s.scanBatch).Result()
		if err != nil {
			return 0, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	removed := 0
	for start := 0; start < len(keys); start += int(s.scanBatch) {
		end := min(start+int(s.scanBatch), len(keys))
		n, err := s.client.Del(ctx, keys[start:end]...).Result()
		if err != nil {
			return removed, err
		}
		removed += int(n)
	}
	return removed, nil
}
