package shared

import (
	"context"

	"github.com/google/uuid"
)

type (
	principalContextKey struct{}
	workspaceContextKey struct{}
)

// Principal is the authenticated actor attached to a request.
type Principal struct {
	ID    uuid.UUID
	Email string
	Role  string
}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

// ContextWithWorkspaceID stores the requested workspace in context.
func ContextWithWorkspaceID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, workspaceContextKey{}, id)
}

// WorkspaceIDFromContext extracts the requested workspace from context.
func WorkspaceIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(workspaceContextKey{}).(uuid.UUID)
	return id, ok && id != uuid.Nil
}
