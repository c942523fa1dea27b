package rbac

import (
	"log/slog"
	"net/http"

	"github.com/adminory/adminory/internal/auth"
	"github.com/adminory/adminory/internal/platform/httpx"
	"github.com/adminory/adminory/internal/shared"
)

// Middleware wires role-based authorization helpers for HTTP handlers. It
// expects the authenticator to have placed the principal in context.
type Middleware struct {
	Logger *slog.Logger
}

// RequireAtLeast allows principals whose global role ranks at or above min.
func (m Middleware) RequireAtLeast(min auth.Role) func(http.Handler) http.Handler {
	return m.gate(func(role auth.Role) bool {
		return role.AtLeast(min)
	})
}

// RequireAny allows principals holding one of roles exactly. An empty role
// set denies everyone.
func (m Middleware) RequireAny(roles ...auth.Role) func(http.Handler) http.Handler {
	allowed := make(map[auth.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return m.gate(func(role auth.Role) bool {
		_, ok := allowed[role]
		return ok
	})
}

func (m Middleware) gate(permit func(auth.Role) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			if !permit(auth.Role(principal.Role)) {
				if m.Logger != nil {
					m.Logger.Warn("rbac denied",
						slog.String("principal", principal.ID.String()),
						slog.String("role", principal.Role),
						slog.String("path", r.URL.Path))
				}
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
