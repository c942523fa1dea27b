package perf

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/adminory/adminory/internal/auth"
	"github.com/adminory/adminory/internal/shared"
)

type staticPrincipals struct {
	user *auth.User
}

func (s staticPrincipals) FindByID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func newBenchTokens(b *testing.B) (*auth.TokenService, *auth.User) {
	b.Helper()
	mr := miniredis.RunT(b)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b.Cleanup(func() { _ = client.Close() })

	user := &auth.User{ID: uuid.New(), Email: "bench@example.com", Role: auth.RoleUser, IsActive: true}
	tokens, err := auth.NewTokenService(auth.NewRedisRevocationStore(client), staticPrincipals{user: user}, "bench-access", "bench-refresh")
	if err != nil {
		b.Fatalf("token service: %v", err)
	}
	return tokens, user
}

func BenchmarkTokenIssue(b *testing.B) {
	tokens, user := newBenchTokens(b)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tokens.Issue(ctx, user.Principal()); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkAccessVerify(b *testing.B) {
	tokens, user := newBenchTokens(b)
	pair, err := tokens.Issue(context.Background(), user.Principal())
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := tokens.Verify(pair.AccessToken, auth.TokenAccess); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRefreshRotation(b *testing.B) {
	tokens, user := newBenchTokens(b)
	ctx := context.Background()
	pair, err := tokens.Issue(ctx, user.Principal())
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pair, err = tokens.Refresh(ctx, pair.RefreshToken)
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPasswordHash(b *testing.B) {
	hasher := auth.NewPasswordHasher(auth.DefaultArgon2Params)
	for i := 0; i < b.N; i++ {
		if _, err := hasher.Hash("correct horse battery staple"); err != nil {
			b.Fatal(err)
		}
	}
}
