package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/adminory/adminory/internal/auth"
	"github.com/adminory/adminory/internal/shared"
	_ "github.com/adminory/adminory/testing"
)

const (
	testAccessSecret  = "access-secret-for-tests"
	testRefreshSecret = "refresh-secret-for-tests"
)

var cheapArgon2 = auth.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type memRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*auth.User
	err   error
}

func newMemRepo() *memRepo {
	return &memRepo{users: make(map[uuid.UUID]*auth.User)}
}

func (m *memRepo) put(u *auth.User) *auth.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return u
}

func (m *memRepo) setActive(id uuid.UUID, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].IsActive = active
}

func (m *memRepo) remove(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
}

func (m *memRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, u := range m.users {
		if u.Email == auth.NormalizeEmail(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memRepo) FindByID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memRepo) Create(_ context.Context, user *auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return shared.ErrEmailTaken
		}
	}
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memRepo) MarkEmailVerified(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.EmailVerifiedAt = &at
	return nil
}

func (m *memRepo) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	u.LastLoginAt = &at
	return nil
}

type sentEmail struct {
	kind  string
	email string
	token string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (n *recordingNotifier) SendVerificationEmail(_ context.Context, email, _ string, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentEmail{kind: "verification", email: email, token: token})
	return nil
}

func (n *recordingNotifier) SendPasswordResetEmail(_ context.Context, email, _ string, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentEmail{kind: "password_reset", email: email, token: token})
	return nil
}

func (n *recordingNotifier) last(kind string) (sentEmail, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].kind == kind {
			return n.sent[i], true
		}
	}
	return sentEmail{}, false
}

type testEnv struct {
	mr       *miniredis.Miniredis
	client   *redis.Client
	repo     *memRepo
	store    *auth.RedisRevocationStore
	onetime  *auth.RedisOneTimeStore
	tokens   *auth.TokenService
	notifier *recordingNotifier
	service  *auth.Service
	hasher   *auth.PasswordHasher
}

func newTestEnv(t *testing.T, opts ...auth.TokenOption) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	env := &testEnv{
		mr:       mr,
		client:   client,
		repo:     newMemRepo(),
		store:    auth.NewRedisRevocationStore(client),
		onetime:  auth.NewRedisOneTimeStore(client),
		notifier: &recordingNotifier{},
		hasher:   auth.NewPasswordHasher(cheapArgon2),
	}
	tokens, err := auth.NewTokenService(env.store, env.repo, testAccessSecret, testRefreshSecret, opts...)
	require.NoError(t, err)
	env.tokens = tokens
	env.service = auth.NewService(auth.ServiceDeps{
		Repo:     env.repo,
		Tokens:   tokens,
		OneTime:  env.onetime,
		Hasher:   env.hasher,
		Notifier: env.notifier,
	})
	return env
}

func (e *testEnv) seedUser(t *testing.T, email, password string) *auth.User {
	t.Helper()
	hash, err := e.hasher.Hash(password)
	require.NoError(t, err)
	return e.repo.put(&auth.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Name:         "Test User",
		Role:         auth.RoleUser,
		IsActive:     true,
	})
}
