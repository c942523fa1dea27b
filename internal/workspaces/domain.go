package workspaces

import (
	"time"

	"github.com/google/uuid"
)

// Role is a member's role inside one workspace.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

var roleRank = map[Role]int{
	RoleOwner:  4,
	RoleAdmin:  3,
	RoleMember: 2,
	RoleViewer: 1,
}

// Rank orders workspace roles; unknown roles rank 0.
func (r Role) Rank() int {
	return roleRank[r]
}

// AtLeast reports whether r ranks at or above min.
func (r Role) AtLeast(min Role) bool {
	return r.Rank() > 0 && r.Rank() >= min.Rank()
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r.Rank() > 0
}

// Assignable reports whether r may be granted through member management.
// Ownership only comes from creating the workspace.
func (r Role) Assignable() bool {
	return r.Valid() && r != RoleOwner
}

// Plan is the billing tier.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// Workspace is a tenant.
type Workspace struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Slug        string         `json:"slug"`
	OwnerID     uuid.UUID      `json:"owner_id"`
	Plan        Plan           `json:"plan"`
	SSOEnabled  bool           `json:"sso_enabled"`
	SSOEnforced bool           `json:"sso_enforced"`
	Settings    map[string]any `json:"settings"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Member links a principal to a workspace.
type Member struct {
	ID          uuid.UUID      `json:"id"`
	WorkspaceID uuid.UUID      `json:"workspace_id"`
	UserID      uuid.UUID      `json:"user_id"`
	Role        Role           `json:"role"`
	Permissions map[string]any `json:"permissions"`
	Email       string         `json:"email,omitempty"`
	Name        string         `json:"name,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Membership pairs a workspace with the caller's role in it.
type Membership struct {
	Workspace
	UserRole Role     `json:"user_role,omitempty"`
	Members  []Member `json:"members"`
}

// CreateInput carries workspace creation fields.
type CreateInput struct {
	Name string
	Slug string
}

// UpdateInput carries optional workspace changes; nil fields are left alone.
type UpdateInput struct {
	Name        *string
	Settings    map[string]any
	SSOEnabled  *bool
	SSOEnforced *bool
}

// AddMemberInput identifies the principal by id or email.
type AddMemberInput struct {
	UserID *uuid.UUID
	Email  string
	Role   Role
}

// Invite is the payload bound to a workspace invitation token.
type Invite struct {
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	InvitedBy   uuid.UUID `json:"invited_by"`
}
