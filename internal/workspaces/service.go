package workspaces

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adminory/adminory/internal/auth"
	"github.com/adminory/adminory/internal/shared"
)

const maxSlugAttempts = 100

// UserLookup resolves principals for member management.
type UserLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*auth.User, error)
	FindByEmail(ctx context.Context, email string) (*auth.User, error)
}

// InviteNotifier delivers invitation emails.
type InviteNotifier interface {
	SendWorkspaceInvite(ctx context.Context, email, workspaceName, inviterName, role, token string) error
}

// ServiceDeps bundles Service collaborators.
type ServiceDeps struct {
	Repo      RepositoryPort
	Users     UserLookup
	OneTime   auth.OneTimeStore
	Notifier  InviteNotifier
	Audit     shared.AuditRecorder
	Logger    *slog.Logger
	InviteTTL time.Duration
}

// Service implements workspace and membership rules.
type Service struct {
	repo      RepositoryPort
	users     UserLookup
	onetime   auth.OneTimeStore
	notifier  InviteNotifier
	audit     shared.AuditRecorder
	logger    *slog.Logger
	inviteTTL time.Duration
}

// NewService constructs a Service.
func NewService(deps ServiceDeps) *Service {
	svc := &Service{
		repo:      deps.Repo,
		users:     deps.Users,
		onetime:   deps.OneTime,
		notifier:  deps.Notifier,
		audit:     deps.Audit,
		logger:    deps.Logger,
		inviteTTL: deps.InviteTTL,
	}
	if svc.audit == nil {
		svc.audit = shared.NopAudit{}
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.inviteTTL <= 0 {
		svc.inviteTTL = 7 * 24 * time.Hour
	}
	return svc
}

// Create makes a workspace owned by actor. The slug defaults to the
// slugified name and gains a numeric suffix on collision.
func (s *Service) Create(ctx context.Context, actor shared.Principal, in CreateInput) (*Workspace, error) {
	base := Slugify(in.Slug)
	if base == "" {
		base = Slugify(in.Name)
	}
	if base == "" {
		return nil, fmt.Errorf("%w: name must contain letters or digits", shared.ErrValidation)
	}

	ws := &Workspace{
		Name:     strings.TrimSpace(in.Name),
		OwnerID:  actor.ID,
		Plan:     PlanFree,
		Settings: map[string]any{},
		Metadata: map[string]any{},
	}
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		candidate := base
		if attempt > 0 {
			candidate = base + "-" + strconv.Itoa(attempt)
		}
		taken, err := s.repo.SlugExists(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if taken {
			continue
		}
		ws.ID = uuid.New()
		ws.Slug = candidate
		err = s.repo.CreateWithOwner(ctx, ws)
		if errors.Is(err, shared.ErrConflict) {
			// Lost a race for this slug; try the next suffix.
			continue
		}
		if err != nil {
			return nil, err
		}
		s.logger.Info("workspace created", slog.String("workspace_id", ws.ID.String()), slog.String("slug", ws.Slug))
		s.record(ctx, actor, "workspace.created", ws.ID, map[string]any{"slug": ws.Slug})
		return ws, nil
	}
	return nil, fmt.Errorf("%w: no free slug for %q", shared.ErrConflict, base)
}

// List returns the caller's workspaces with the caller's role.
func (s *Service) List(ctx context.Context, actor shared.Principal) ([]Membership, error) {
	list, err := s.repo.ListForUser(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Membership{}
	}
	return list, nil
}

// Get returns a workspace with its members. Non-members are refused.
func (s *Service) Get(ctx context.Context, actor shared.Principal, id uuid.UUID) (*Membership, error) {
	role, err := s.requireRole(ctx, actor, id, RoleViewer)
	if err != nil {
		return nil, err
	}
	ws, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	members, err := s.repo.ListMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Membership{Workspace: *ws, UserRole: role, Members: members}, nil
}

// GetBySlug is Get addressed by slug. Requires membership.
func (s *Service) GetBySlug(ctx context.Context, actor shared.Principal, slug string) (*Membership, error) {
	ws, err := s.repo.GetBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, actor, ws.ID)
}

// Current resolves the workspace selected by the request context.
func (s *Service) Current(ctx context.Context, actor shared.Principal) (*Membership, error) {
	id, ok := shared.WorkspaceIDFromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("%w: no workspace context, set X-Workspace-ID", shared.ErrValidation)
	}
	return s.Get(ctx, actor, id)
}

// Update applies in. Requires owner or admin.
func (s *Service) Update(ctx context.Context, actor shared.Principal, id uuid.UUID, in UpdateInput) (*Membership, error) {
	role, err := s.requireRole(ctx, actor, id, RoleAdmin)
	if err != nil {
		return nil, err
	}
	ws, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", shared.ErrValidation)
		}
		ws.Name = name
	}
	if in.Settings != nil {
		ws.Settings = in.Settings
	}
	if in.SSOEnabled != nil {
		ws.SSOEnabled = *in.SSOEnabled
	}
	if in.SSOEnforced != nil {
		ws.SSOEnforced = *in.SSOEnforced
	}
	if ws.SSOEnforced && !ws.SSOEnabled {
		return nil, fmt.Errorf("%w: sso_enforced requires sso_enabled", shared.ErrValidation)
	}
	if err := s.repo.Update(ctx, ws); err != nil {
		return nil, err
	}
	s.record(ctx, actor, "workspace.updated", id, nil)
	return &Membership{Workspace: *ws, UserRole: role, Members: []Member{}}, nil
}

// Delete removes a workspace. Only its owner may do this.
func (s *Service) Delete(ctx context.Context, actor shared.Principal, id uuid.UUID) error {
	ws, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if ws.OwnerID != actor.ID {
		return fmt.Errorf("%w: only the workspace owner can delete it", shared.ErrForbidden)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("workspace deleted", slog.String("workspace_id", id.String()))
	s.record(ctx, actor, "workspace.deleted", id, map[string]any{"slug": ws.Slug})
	return nil
}

// ListMembers returns the members of a workspace the caller belongs to.
func (s *Service) ListMembers(ctx context.Context, actor shared.Principal, id uuid.UUID) ([]Member, error) {
	if _, err := s.requireRole(ctx, actor, id, RoleViewer); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, id)
}

// AddMember adds an existing principal. Requires owner or admin.
func (s *Service) AddMember(ctx context.Context, actor shared.Principal, id uuid.UUID, in AddMemberInput) (*Member, error) {
	role := in.Role
	if role == "" {
		role = RoleMember
	}
	if !role.Assignable() {
		return nil, fmt.Errorf("%w: role %q cannot be assigned", shared.ErrValidation, role)
	}
	if _, err := s.requireRole(ctx, actor, id, RoleAdmin); err != nil {
		return nil, err
	}

	var (
		user *auth.User
		err  error
	)
	switch {
	case in.UserID != nil:
		user, err = s.users.FindByID(ctx, *in.UserID)
	case in.Email != "":
		user, err = s.users.FindByEmail(ctx, auth.NormalizeEmail(in.Email))
	default:
		return nil, fmt.Errorf("%w: user_id or email is required", shared.ErrValidation)
	}
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("%w: user not found", shared.ErrNotFound)
		}
		return nil, err
	}

	member := &Member{WorkspaceID: id, UserID: user.ID, Role: role, Email: user.Email, Name: user.Name}
	if err := s.repo.AddMember(ctx, member); err != nil {
		return nil, err
	}
	s.record(ctx, actor, "workspace.member_added", id, map[string]any{"user_id": user.ID.String(), "role": role})
	return member, nil
}

// UpdateMemberRole changes a member's role. The owner's membership is immutable.
func (s *Service) UpdateMemberRole(ctx context.Context, actor shared.Principal, id, memberID uuid.UUID, role Role) (*Member, error) {
	if !role.Assignable() {
		return nil, fmt.Errorf("%w: role %q cannot be assigned", shared.ErrValidation, role)
	}
	if _, err := s.requireRole(ctx, actor, id, RoleAdmin); err != nil {
		return nil, err
	}
	member, err := s.repo.MemberByID(ctx, id, memberID)
	if err != nil {
		return nil, err
	}
	if member.Role == RoleOwner {
		return nil, fmt.Errorf("%w: the owner's role cannot be changed", shared.ErrValidation)
	}
	if err := s.repo.UpdateMemberRole(ctx, id, memberID, role); err != nil {
		return nil, err
	}
	member.Role = role
	s.record(ctx, actor, "workspace.member_role_changed", id, map[string]any{"member_id": memberID.String(), "role": role})
	return member, nil
}

// RemoveMember deletes a membership. The owner cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, actor shared.Principal, id, memberID uuid.UUID) error {
	member, err := s.repo.MemberByID(ctx, id, memberID)
	if err != nil {
		return err
	}
	if member.Role == RoleOwner {
		return fmt.Errorf("%w: cannot remove workspace owner", shared.ErrValidation)
	}
	if _, err := s.requireRole(ctx, actor, id, RoleAdmin); err != nil {
		return err
	}
	if err := s.repo.RemoveMember(ctx, id, memberID); err != nil {
		return err
	}
	s.record(ctx, actor, "workspace.member_removed", id, map[string]any{"user_id": member.UserID.String()})
	return nil
}

// Invite mints a workspace invitation and emails it. Requires owner or admin.
func (s *Service) Invite(ctx context.Context, actor shared.Principal, id uuid.UUID, email string, role Role) (*Invite, error) {
	if role == "" {
		role = RoleMember
	}
	if !role.Assignable() {
		return nil, fmt.Errorf("%w: role %q cannot be assigned", shared.ErrValidation, role)
	}
	if _, err := s.requireRole(ctx, actor, id, RoleAdmin); err != nil {
		return nil, err
	}
	ws, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	invite := &Invite{WorkspaceID: id, Email: auth.NormalizeEmail(email), Role: role, InvitedBy: actor.ID}
	payload, err := json.Marshal(invite)
	if err != nil {
		return nil, err
	}
	token, err := s.onetime.Mint(ctx, auth.PurposeWorkspaceInvite, string(payload), s.inviteTTL)
	if err != nil {
		return nil, err
	}
	inviter := actor.Email
	if u, err := s.users.FindByID(ctx, actor.ID); err == nil && u.Name != "" {
		inviter = u.Name
	}
	if err := s.notifier.SendWorkspaceInvite(ctx, invite.Email, ws.Name, inviter, string(role), token); err != nil {
		return nil, fmt.Errorf("workspaces: enqueue invite email: %w", err)
	}
	s.record(ctx, actor, "workspace.member_invited", id, map[string]any{"email": invite.Email, "role": role})
	return invite, nil
}

// AcceptInvite redeems an invitation for actor. The token is spent by the
// attempt even when the caller's email does not match.
func (s *Service) AcceptInvite(ctx context.Context, actor shared.Principal, token string) (*Member, error) {
	payload, err := s.onetime.Redeem(ctx, auth.PurposeWorkspaceInvite, token)
	if err != nil {
		return nil, err
	}
	var invite Invite
	if err := json.Unmarshal([]byte(payload), &invite); err != nil || invite.WorkspaceID == uuid.Nil {
		return nil, shared.ErrOneTimeTokenInvalid
	}
	if auth.NormalizeEmail(actor.Email) != invite.Email {
		return nil, fmt.Errorf("%w: invitation was sent to a different email", shared.ErrForbidden)
	}
	if _, err := s.repo.Get(ctx, invite.WorkspaceID); err != nil {
		return nil, err
	}
	member := &Member{WorkspaceID: invite.WorkspaceID, UserID: actor.ID, Role: invite.Role, Email: invite.Email}
	if err := s.repo.AddMember(ctx, member); err != nil {
		return nil, err
	}
	s.record(ctx, actor, "workspace.invite_accepted", invite.WorkspaceID, map[string]any{"role": invite.Role})
	return member, nil
}

// requireRole returns actor's role in the workspace, refusing non-members
// and members ranked below min.
func (s *Service) requireRole(ctx context.Context, actor shared.Principal, id uuid.UUID, min Role) (Role, error) {
	member, err := s.repo.MemberByUser(ctx, id, actor.ID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", fmt.Errorf("%w: you do not have access to this workspace", shared.ErrForbidden)
		}
		return "", err
	}
	if !member.Role.AtLeast(min) {
		return "", fmt.Errorf("%w: insufficient workspace permissions", shared.ErrForbidden)
	}
	return member.Role, nil
}

func (s *Service) record(ctx context.Context, actor shared.Principal, action string, id uuid.UUID, meta map[string]any) {
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actor.ID, Action: action, Entity: "workspace", EntityID: id.String(), Meta: meta})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
