package users

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/adminory/adminory/internal/auth"
	"github.com/adminory/adminory/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filter ListFilter) ([]auth.User, int, error)
	GetUser(ctx context.Context, id uuid.UUID) (*auth.User, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	SetRole(ctx context.Context, id uuid.UUID, role auth.Role) error
}

// SessionRevoker ends every session of a principal.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, subject uuid.UUID) (int, error)
}

// Service handles user business logic.
type Service struct {
	repo    RepositoryPort
	revoker SessionRevoker
	audit   shared.AuditRecorder
	logger  *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, revoker SessionRevoker, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAudit{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, revoker: revoker, audit: audit, logger: logger}
}

// ListUsers returns a page of users.
func (s *Service) ListUsers(ctx context.Context, filter ListFilter) (Page, error) {
	filter = filter.normalized()
	items, total, err := s.repo.ListUsers(ctx, filter)
	if err != nil {
		return Page{}, err
	}
	if items == nil {
		items = []auth.User{}
	}
	return Page{Items: items, Pagination: shared.NewPagination(filter.Page, filter.Limit, total)}, nil
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	return s.repo.GetUser(ctx, id)
}

// Deactivate disables the account and ends all of its sessions.
func (s *Service) Deactivate(ctx context.Context, actor shared.Principal, id uuid.UUID) (*auth.User, error) {
	if actor.ID == id {
		return nil, fmt.Errorf("%w: cannot deactivate your own account", shared.ErrValidation)
	}
	target, err := s.target(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		return nil, err
	}
	revoked, err := s.revoker.RevokeAll(ctx, id)
	if err != nil {
		return nil, err
	}
	target.IsActive = false
	s.record(ctx, actor, "user.deactivated", id, map[string]any{"sessions_revoked": revoked})
	return target, nil
}

// Activate re-enables the account.
func (s *Service) Activate(ctx context.Context, actor shared.Principal, id uuid.UUID) (*auth.User, error) {
	target, err := s.target(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetActive(ctx, id, true); err != nil {
		return nil, err
	}
	target.IsActive = true
	s.record(ctx, actor, "user.activated", id, nil)
	return target, nil
}

// ChangeRole sets the global role of another principal.
func (s *Service) ChangeRole(ctx context.Context, actor shared.Principal, id uuid.UUID, role auth.Role) (*auth.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", shared.ErrValidation, role)
	}
	if actor.ID == id {
		return nil, fmt.Errorf("%w: cannot change your own role", shared.ErrValidation)
	}
	if !auth.Role(actor.Role).AtLeast(auth.RoleSuperAdmin) {
		return nil, shared.ErrForbidden
	}
	target, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetRole(ctx, id, role); err != nil {
		return nil, err
	}
	previous := target.Role
	target.Role = role
	s.record(ctx, actor, "user.role_changed", id, map[string]any{"from": previous, "to": role})
	return target, nil
}

// target loads id and refuses to act on principals ranked above actor.
func (s *Service) target(ctx context.Context, actor shared.Principal, id uuid.UUID) (*auth.User, error) {
	target, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if target.Role.Rank() > auth.Role(actor.Role).Rank() {
		return nil, shared.ErrForbidden
	}
	return target, nil
}

func (s *Service) record(ctx context.Context, actor shared.Principal, action string, id uuid.UUID, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actor.ID, Action: action, Entity: "user", EntityID: id.String(), Meta: meta})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
