package workspaces

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/adminory/adminory/internal/platform/db"
	"github.com/adminory/adminory/internal/shared"
)

// RepositoryPort defines data access for workspaces and members.
type RepositoryPort interface {
	SlugExists(ctx context.Context, slug string) (bool, error)
	CreateWithOwner(ctx context.Context, ws *Workspace) error
	Get(ctx context.Context, id uuid.UUID) (*Workspace, error)
	GetBySlug(ctx context.Context, slug string) (*Workspace, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]Membership, error)
	Update(ctx context.Context, ws *Workspace) error
	Delete(ctx context.Context, id uuid.UUID) error

	MemberByUser(ctx context.Context, workspaceID, userID uuid.UUID) (*Member, error)
	MemberByID(ctx context.Context, workspaceID, memberID uuid.UUID) (*Member, error)
	ListMembers(ctx context.Context, workspaceID uuid.UUID) ([]Member, error)
	AddMember(ctx context.Context, m *Member) error
	UpdateMemberRole(ctx context.Context, workspaceID, memberID uuid.UUID, role Role) error
	RemoveMember(ctx context.Context, workspaceID, memberID uuid.UUID) error
}

// Repository implements RepositoryPort with PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const workspaceColumns = `w.id, w.name, w.slug, w.owner_id, w.plan, w.sso_enabled, w.sso_enforced, w.settings, w.metadata, w.created_at, w.updated_at`

func scanWorkspace(row pgx.Row, extra ...any) (*Workspace, error) {
	var ws Workspace
	dest := []any{&ws.ID, &ws.Name, &ws.Slug, &ws.OwnerID, &ws.Plan, &ws.SSOEnabled, &ws.SSOEnforced, &ws.Settings, &ws.Metadata, &ws.CreatedAt, &ws.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &ws, nil
}

// SlugExists reports whether slug is taken.
func (r *Repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM workspaces WHERE slug = $1)`, slug).Scan(&exists)
	return exists, err
}

// CreateWithOwner inserts the workspace and its owner membership atomically.
// A slug collision surfaces as shared.ErrConflict.
func (r *Repository) CreateWithOwner(ctx context.Context, ws *Workspace) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO workspaces (id, name, slug, owner_id, plan, settings, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at, updated_at`,
			ws.ID, ws.Name, ws.Slug, ws.OwnerID, ws.Plan, ws.Settings, ws.Metadata,
		).Scan(&ws.CreatedAt, &ws.UpdatedAt)
		if err != nil {
			if db.IsUniqueViolation(err, "workspaces_slug_key") {
				return fmt.Errorf("%w: slug %q", shared.ErrConflict, ws.Slug)
			}
			return fmt.Errorf("workspaces: insert workspace: %w", err)
		}
		_, err = tx.Exec(ctx, `INSERT INTO workspace_members (id, workspace_id, user_id, role, permissions) VALUES ($1, $2, $3, $4, '{}'::jsonb)`,
			uuid.New(), ws.ID, ws.OwnerID, RoleOwner)
		if err != nil {
			return fmt.Errorf("workspaces: insert owner member: %w", err)
		}
		return nil
	})
}

// Get loads a workspace.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*Workspace, error) {
	return scanWorkspace(r.pool.QueryRow(ctx, `SELECT `+workspaceColumns+` FROM workspaces w WHERE w.id = $1`, id))
}

// GetBySlug loads a workspace by its unique slug.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*Workspace, error) {
	return scanWorkspace(r.pool.QueryRow(ctx, `SELECT `+workspaceColumns+` FROM workspaces w WHERE w.slug = $1`, slug))
}

// ListForUser returns the workspaces userID belongs to, newest first.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]Membership, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+workspaceColumns+`, m.role
FROM workspaces w
JOIN workspace_members m ON m.workspace_id = w.id
WHERE m.user_id = $1
ORDER BY w.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Membership
	for rows.Next() {
		var role Role
		ws, err := scanWorkspace(rows, &role)
		if err != nil {
			return nil, err
		}
		out = append(out, Membership{Workspace: *ws, UserRole: role, Members: []Member{}})
	}
	return out, rows.Err()
}

// Update persists mutable workspace fields.
func (r *Repository) Update(ctx context.Context, ws *Workspace) error {
	err := r.pool.QueryRow(ctx, `UPDATE workspaces
SET name = $2, settings = $3, sso_enabled = $4, sso_enforced = $5, updated_at = NOW()
WHERE id = $1
RETURNING updated_at`, ws.ID, ws.Name, ws.Settings, ws.SSOEnabled, ws.SSOEnforced).Scan(&ws.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}

// Delete removes the workspace; members cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM workspaces WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

const memberColumns = `m.id, m.workspace_id, m.user_id, m.role, m.permissions, u.email, u.name, m.created_at`

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	if err := row.Scan(&m.ID, &m.WorkspaceID, &m.UserID, &m.Role, &m.Permissions, &m.Email, &m.Name, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// MemberByUser returns the membership of userID.
func (r *Repository) MemberByUser(ctx context.Context, workspaceID, userID uuid.UUID) (*Member, error) {
	return scanMember(r.pool.QueryRow(ctx, `SELECT `+memberColumns+`
FROM workspace_members m JOIN users u ON u.id = m.user_id
WHERE m.workspace_id = $1 AND m.user_id = $2`, workspaceID, userID))
}

// MemberByID returns one membership row.
func (r *Repository) MemberByID(ctx context.Context, workspaceID, memberID uuid.UUID) (*Member, error) {
	return scanMember(r.pool.QueryRow(ctx, `SELECT `+memberColumns+`
FROM workspace_members m JOIN users u ON u.id = m.user_id
WHERE m.workspace_id = $1 AND m.id = $2`, workspaceID, memberID))
}

// ListMembers returns members in join order.
func (r *Repository) ListMembers(ctx context.Context, workspaceID uuid.UUID) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+memberColumns+`
FROM workspace_members m JOIN users u ON u.id = m.user_id
WHERE m.workspace_id = $1
ORDER BY m.created_at`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	members := []Member{}
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, *m)
	}
	return members, rows.Err()
}

// AddMember inserts a membership. Duplicates surface as shared.ErrConflict.
func (r *Repository) AddMember(ctx context.Context, m *Member) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.Permissions == nil {
		m.Permissions = map[string]any{}
	}
	err := r.pool.QueryRow(ctx, `INSERT INTO workspace_members (id, workspace_id, user_id, role, permissions)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`, m.ID, m.WorkspaceID, m.UserID, m.Role, m.Permissions).Scan(&m.CreatedAt)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_workspace_member") {
			return fmt.Errorf("%w: user is already a member", shared.ErrConflict)
		}
		return fmt.Errorf("workspaces: insert member: %w", err)
	}
	return nil
}

// UpdateMemberRole changes a member's role.
func (r *Repository) UpdateMemberRole(ctx context.Context, workspaceID, memberID uuid.UUID, role Role) error {
	tag, err := r.pool.Exec(ctx, `UPDATE workspace_members SET role = $3 WHERE workspace_id = $1 AND id = $2`, workspaceID, memberID, role)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// RemoveMember deletes a membership.
func (r *Repository) RemoveMember(ctx context.Context, workspaceID, memberID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM workspace_members WHERE workspace_id = $1 AND id = $2`, workspaceID, memberID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

var _ RepositoryPort = (*Repository)(nil)
