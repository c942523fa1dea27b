package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/adminory/adminory/internal/platform/httpx"
	"github.com/adminory/adminory/internal/shared"
)

// Authenticator validates bearer access tokens and attaches the current
// principal to the request context.
type Authenticator struct {
	tokens *TokenService
	users  PrincipalLookup
	logger *slog.Logger
	group  singleflight.Group
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(tokens *TokenService, users PrincipalLookup, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{tokens: tokens, users: users, logger: logger}
}

// Middleware rejects requests without a valid access token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		claims, err := a.tokens.Verify(raw, TokenAccess)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		id, _ := claims.SubjectID()

		// Concurrent requests of one principal share a single lookup, which
		// must outlive the request that happened to start it.
		lookupCtx := context.WithoutCancel(r.Context())
		v, err, _ := a.group.Do(claims.Subject, func() (any, error) {
			return a.users.FindByID(lookupCtx, id)
		})
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				httpx.RespondError(w, shared.ErrPrincipalNotFound)
				return
			}
			a.logger.Error("authenticate principal lookup", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		user := v.(*User)
		if !user.IsActive {
			httpx.RespondError(w, shared.ErrPrincipalInactive)
			return
		}
		ctx := shared.ContextWithPrincipal(r.Context(), user.Principal())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
