package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/adminory/adminory/internal/shared"
)

// TokenType distinguishes access from refresh credentials.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims is the signed payload of both token types.
type Claims struct {
	Email string    `json:"email"`
	Role  Role      `json:"role"`
	Type  TokenType `json:"type"`
	jwt.RegisteredClaims
}

// SubjectID parses the subject claim.
func (c *Claims) SubjectID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// PrincipalLookup resolves token subjects to accounts.
type PrincipalLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
}

// TokenMetrics receives token lifecycle events.
type TokenMetrics interface {
	TokensIssued()
	RefreshOutcome(result string)
	Revocations(kind string, n int)
}

type nopTokenMetrics struct{}

func (nopTokenMetrics) TokensIssued()           {}
func (nopTokenMetrics) RefreshOutcome(string)   {}
func (nopTokenMetrics) Revocations(string, int) {}

// TokenService issues, verifies, rotates and revokes bearer tokens.
type TokenService struct {
	store      RevocationStore
	principals PrincipalLookup
	metrics    TokenMetrics
	now        func() time.Time

	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration

	// strict consumes the old refresh allow-record before issuing the new pair.
	strict bool
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime and its allow-record TTL.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithStrictRotation makes refresh consume the presented token atomically
// before the replacement pair is issued.
func WithStrictRotation(strict bool) TokenOption {
	return func(s *TokenService) {
		s.strict = strict
	}
}

// WithTokenMetrics attaches a metrics sink.
func WithTokenMetrics(m TokenMetrics) TokenOption {
	return func(s *TokenService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewTokenService constructs a TokenService. The two secrets must be
// non-empty and distinct.
func NewTokenService(store RevocationStore, principals PrincipalLookup, accessSecret, refreshSecret string, opts ...TokenOption) (*TokenService, error) {
	if store == nil || principals == nil {
		return nil, errors.New("auth: token service requires a revocation store and principal lookup")
	}
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("auth: access and refresh secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	svc := &TokenService{
		store:         store,
		principals:    principals,
		metrics:       nopTokenMetrics{},
		now:           time.Now,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// AccessTTL exposes the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration {
	return s.accessTTL
}

// Issue signs a new access/refresh pair for p and registers the refresh
// token's allow-record.
func (s *TokenService) Issue(ctx context.Context, p shared.Principal) (TokenPair, error) {
	now := s.now()
	access, err := s.sign(p, TokenAccess, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(p, TokenRefresh, now)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.store.Allow(ctx, p.ID.String(), refresh, s.refreshTTL); err != nil {
		return TokenPair{}, fmt.Errorf("auth: allow refresh token: %w", err)
	}
	s.metrics.TokensIssued()
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.accessTTL / time.Second),
	}, nil
}

// Verify checks signature, expiry and type of raw. It never consults the
// revocation store.
func (s *TokenService) Verify(raw string, typ TokenType) (*Claims, error) {
	var secret []byte
	switch typ {
	case TokenAccess:
		secret = s.accessSecret
	case TokenRefresh:
		secret = s.refreshSecret
	default:
		return nil, fmt.Errorf("%w: unknown token type %q", shared.ErrInvalidToken, typ)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, shared.ErrInvalidToken
	}
	if claims.Type != typ {
		return nil, fmt.Errorf("%w: expected %s token", shared.ErrInvalidToken, typ)
	}
	if _, err := claims.SubjectID(); err != nil {
		return nil, fmt.Errorf("%w: bad subject", shared.ErrInvalidToken)
	}
	return claims, nil
}

// Refresh exchanges a live refresh token for a new pair and retires the
// presented one.
func (s *TokenService) Refresh(ctx context.Context, raw string) (TokenPair, error) {
	claims, err := s.Verify(raw, TokenRefresh)
	if err != nil {
		s.metrics.RefreshOutcome("invalid")
		return TokenPair{}, err
	}

	allowed, err := s.store.IsAllowed(ctx, claims.Subject, raw)
	if err != nil {
		return TokenPair{}, fmt.Errorf("auth: check refresh token: %w", err)
	}
	if !allowed {
		s.metrics.RefreshOutcome("revoked")
		return TokenPair{}, shared.ErrRevokedToken
	}

	user, err := s.activePrincipal(ctx, claims)
	if err != nil {
		s.metrics.RefreshOutcome("principal")
		return TokenPair{}, err
	}

	if s.strict {
		consumed, err := s.store.Consume(ctx, claims.Subject, raw)
		if err != nil {
			return TokenPair{}, fmt.Errorf("auth: consume refresh token: %w", err)
		}
		if !consumed {
			s.metrics.RefreshOutcome("revoked")
			return TokenPair{}, shared.ErrRevokedToken
		}
		pair, err := s.Issue(ctx, user.Principal())
		if err != nil {
			return TokenPair{}, err
		}
		s.metrics.RefreshOutcome("rotated")
		return pair, nil
	}

	pair, err := s.Issue(ctx, user.Principal())
	if err != nil {
		return TokenPair{}, err
	}
	// Until this delete lands the old and new refresh tokens are both honoured.
	if err := s.store.Revoke(ctx, claims.Subject, raw); err != nil {
		return TokenPair{}, fmt.Errorf("auth: revoke rotated token: %w", err)
	}
	s.metrics.RefreshOutcome("rotated")
	return pair, nil
}

// Revoke deletes the allow-record of one refresh token. Unknown tokens are ignored.
func (s *TokenService) Revoke(ctx context.Context, subject uuid.UUID, refreshToken string) error {
	if err := s.store.Revoke(ctx, subject.String(), refreshToken); err != nil {
		return fmt.Errorf("auth: revoke refresh token: %w", err)
	}
	s.metrics.Revocations("single", 1)
	return nil
}

// RevokeAll deletes every allow-record of subject, ending all its sessions.
func (s *TokenService) RevokeAll(ctx context.Context, subject uuid.UUID) (int, error) {
	n, err := s.store.RevokeAll(ctx, subject.String())
	if err != nil {
		return n, fmt.Errorf("auth: revoke all refresh tokens: %w", err)
	}
	s.metrics.Revocations("all", n)
	return n, nil
}

func (s *TokenService) activePrincipal(ctx context.Context, claims *Claims) (*User, error) {
	id, err := claims.SubjectID()
	if err != nil {
		return nil, shared.ErrInvalidToken
	}
	user, err := s.principals.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("auth: load principal: %w", err)
	}
	if !user.IsActive {
		return nil, shared.ErrPrincipalInactive
	}
	return user, nil
}

func (s *TokenService) sign(p shared.Principal, typ TokenType, now time.Time) (string, error) {
	ttl, secret := s.accessTTL, s.accessSecret
	if typ == TokenRefresh {
		ttl, secret = s.refreshTTL, s.refreshSecret
	}
	claims := Claims{
		Email: p.Email,
		Role:  Role(p.Role),
		Type:  typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        ulid.Make().String(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign %s token: %w", typ, err)
	}
	return signed, nil
}
