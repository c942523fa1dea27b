package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adminory/adminory/internal/shared"
)

// Purpose namespaces one-time tokens so a token minted for one flow cannot
// be redeemed by another.
type Purpose string

const (
	PurposePasswordReset     Purpose = "password_reset"
	PurposeEmailVerification Purpose = "email_verification"
	PurposeWorkspaceInvite   Purpose = "workspace_invite"
)

const oneTimeTokenBytes = 32

// OneTimeStore mints and redeems single-use opaque tokens.
type OneTimeStore interface {
	Mint(ctx context.Context, purpose Purpose, subject string, ttl time.Duration) (string, error)
	Redeem(ctx context.Context, purpose Purpose, token string) (string, error)
}

// RedisOneTimeStore stores purpose:token -> subject with a TTL.
type RedisOneTimeStore struct {
	client  redis.UniversalClient
	entropy io.Reader
}

// OneTimeOption customises a RedisOneTimeStore.
type OneTimeOption func(*RedisOneTimeStore)

// WithOneTimeEntropy replaces crypto/rand as the token source.
func WithOneTimeEntropy(r io.Reader) OneTimeOption {
	return func(s *RedisOneTimeStore) { s.entropy = r }
}

// NewRedisOneTimeStore constructs the store.
func NewRedisOneTimeStore(client redis.UniversalClient, opts ...OneTimeOption) *RedisOneTimeStore {
	s := &RedisOneTimeStore{client: client, entropy: rand.Reader}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func oneTimeKey(purpose Purpose, token string) string {
	return fmt.Sprintf("%s:%s", purpose, token)
}

// Mint generates a fresh token bound to subject for ttl. The record is
// written with SET NX so a colliding token never overwrites a live one.
func (s *RedisOneTimeStore) Mint(ctx context.Context, purpose Purpose, subject string, ttl time.Duration) (string, error) {
	if purpose == "" {
		return "", errors.New("auth: one-time token purpose required")
	}
	buf := make([]byte, oneTimeTokenBytes)
	if _, err := io.ReadFull(s.entropy, buf); err != nil {
		return "", fmt.Errorf("auth: generate one-time token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	ok, err := s.client.SetNX(ctx, oneTimeKey(purpose, token), subject, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("auth: store one-time token: %w", err)
	}
	if !ok {
		return "", errors.New("auth: one-time token collision")
	}
	return token, nil
}

// Redeem returns the bound subject and deletes the token in the same
// command, so a token can be redeemed at most once.
func (s *RedisOneTimeStore) Redeem(ctx context.Context, purpose Purpose, token string) (string, error) {
	if token == "" {
		return "", shared.ErrOneTimeTokenInvalid
	}
	subject, err := s.client.GetDel(ctx, oneTimeKey(purpose, token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", shared.ErrOneTimeTokenInvalid
	}
	if err != nil {
		return "", fmt.Errorf("auth: redeem one-time token: %w", err)
	}
	return subject, nil
}
