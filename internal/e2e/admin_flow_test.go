package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adminory/adminory/internal/app"
	"github.com/adminory/adminory/internal/auth"
	"github.com/adminory/adminory/internal/observability"
	"github.com/adminory/adminory/internal/rbac"
	"github.com/adminory/adminory/internal/shared"
	"github.com/adminory/adminory/internal/users"
	_ "github.com/adminory/adminory/testing"
)

// userStore backs both the auth and users repositories.
type userStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]*auth.User
	order []uuid.UUID
}

func newUserStore() *userStore {
	return &userStore{users: make(map[uuid.UUID]*auth.User)}
}

func (s *userStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *userStore) FindByID(_ context.Context, id uuid.UUID) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *userStore) GetUser(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	return s.FindByID(ctx, id)
}

func (s *userStore) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return shared.ErrEmailTaken
		}
	}
	cp := *user
	s.users[user.ID] = &cp
	s.order = append(s.order, user.ID)
	return nil
}

func (s *userStore) update(id uuid.UUID, fn func(*auth.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return shared.ErrNotFound
	}
	fn(u)
	return nil
}

func (s *userStore) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	return s.update(id, func(u *auth.User) { u.PasswordHash = hash })
}

func (s *userStore) MarkEmailVerified(_ context.Context, id uuid.UUID, at time.Time) error {
	return s.update(id, func(u *auth.User) { u.EmailVerifiedAt = &at })
}

func (s *userStore) TouchLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	return s.update(id, func(u *auth.User) { u.LastLoginAt = &at })
}

func (s *userStore) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	return s.update(id, func(u *auth.User) { u.IsActive = active })
}

func (s *userStore) SetRole(_ context.Context, id uuid.UUID, role auth.Role) error {
	return s.update(id, func(u *auth.User) { u.Role = role })
}

func (s *userStore) ListUsers(_ context.Context, filter users.ListFilter) ([]auth.User, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.User, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.users[id])
	}
	return out, len(out), nil
}

type discardNotifier struct{}

func (discardNotifier) SendVerificationEmail(context.Context, string, string, string) error {
	return nil
}

func (discardNotifier) SendPasswordResetEmail(context.Context, string, string, string) error {
	return nil
}

type stack struct {
	router http.Handler
	store  *userStore
}

func newStack(t *testing.T) *stack {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newUserStore()
	metrics := observability.NewMetrics()
	tokens, err := auth.NewTokenService(auth.NewRedisRevocationStore(client), store, "e2e-access", "e2e-refresh", auth.WithTokenMetrics(metrics))
	require.NoError(t, err)
	authService := auth.NewService(auth.ServiceDeps{
		Repo:     store,
		Tokens:   tokens,
		OneTime:  auth.NewRedisOneTimeStore(client),
		Hasher:   auth.NewPasswordHasher(auth.Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}),
		Notifier: discardNotifier{},
	})
	authn := auth.NewAuthenticator(tokens, store, nil)
	rbacMW := rbac.Middleware{}

	router := app.NewRouter(app.RouterParams{
		Config:        &app.Config{},
		Authenticator: authn,
		AuthHandler:   auth.NewHandler(nil, authService, authn),
		UsersHandler:  users.NewHandler(nil, users.NewService(store, tokens, nil, nil), rbacMW),
		Metrics:       metrics,
	})
	return &stack{router: router, store: store}
}

func (s *stack) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload string
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = string(raw)
	}
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	res := httptest.NewRecorder()
	s.router.ServeHTTP(res, req)
	return res
}

func (s *stack) register(t *testing.T, email string) uuid.UUID {
	t.Helper()
	res := s.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{"email": email, "password": "s3cret-pass", "name": "Test"})
	require.Equal(t, http.StatusCreated, res.Code, res.Body.String())
	var out struct {
		UserID uuid.UUID `json:"user_id"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out))
	return out.UserID
}

func (s *stack) login(t *testing.T, email string) auth.TokenPair {
	t.Helper()
	res := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": email, "password": "s3cret-pass"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var out auth.LoginResult
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &out))
	return out.TokenPair
}

func TestAdminDeactivationEndsSessions(t *testing.T) {
	s := newStack(t)
	adminID := s.register(t, "admin@example.com")
	require.NoError(t, s.store.SetRole(context.Background(), adminID, auth.RoleAdmin))
	bobID := s.register(t, "bob@example.com")

	admin := s.login(t, "admin@example.com")
	bob := s.login(t, "bob@example.com")

	res := s.do(t, http.MethodGet, "/api/v1/users/", bob.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, res.Code, "plain users cannot list principals")

	res = s.do(t, http.MethodGet, "/api/v1/users/", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var page users.Page
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &page))
	assert.Len(t, page.Items, 2)

	res = s.do(t, http.MethodPost, "/api/v1/users/"+bobID.String()+"/deactivate", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	res = s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": bob.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, res.Code)

	res = s.do(t, http.MethodGet, "/api/v1/auth/me", bob.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, res.Code, "inactive principals are refused even with a live access token")

	res = s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "bob@example.com", "password": "s3cret-pass"})
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = s.do(t, http.MethodPost, "/api/v1/users/"+bobID.String()+"/activate", admin.AccessToken, nil)
	require.Equal(t, http.StatusOK, res.Code)
	s.login(t, "bob@example.com")
}

func TestRoleChangeRequiresSuperAdmin(t *testing.T) {
	s := newStack(t)
	rootID := s.register(t, "root@example.com")
	require.NoError(t, s.store.SetRole(context.Background(), rootID, auth.RoleSuperAdmin))
	adminID := s.register(t, "admin@example.com")
	require.NoError(t, s.store.SetRole(context.Background(), adminID, auth.RoleAdmin))
	carolID := s.register(t, "carol@example.com")

	root := s.login(t, "root@example.com")
	admin := s.login(t, "admin@example.com")

	res := s.do(t, http.MethodPut, "/api/v1/users/"+carolID.String()+"/role", admin.AccessToken, map[string]string{"role": "admin"})
	assert.Equal(t, http.StatusForbidden, res.Code)

	res = s.do(t, http.MethodPut, "/api/v1/users/"+carolID.String()+"/role", root.AccessToken, map[string]string{"role": "admin"})
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())

	carol := s.login(t, "carol@example.com")
	res = s.do(t, http.MethodGet, "/api/v1/users/"+adminID.String(), carol.AccessToken, nil)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestMetricsReflectAuthTraffic(t *testing.T) {
	s := newStack(t)
	s.register(t, "m@example.com")
	pair := s.login(t, "m@example.com")

	res := s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": pair.RefreshToken})
	require.Equal(t, http.StatusOK, res.Code)
	res = s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refresh_token": "garbage"})
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = s.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	body := res.Body.String()
	assert.Contains(t, body, observability.MetricTokensIssued+" 2")
	assert.Contains(t, body, observability.MetricRefreshOutcomes+`{result="rotated"} 1`)
	assert.Contains(t, body, observability.MetricRefreshOutcomes+`{result="invalid"} 1`)
}
