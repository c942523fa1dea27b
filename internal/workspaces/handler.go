package workspaces

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/adminory/adminory/internal/platform/httpx"
	"github.com/adminory/adminory/internal/shared"
)

// Handler serves workspace endpoints. Routes expect an authenticated principal.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: httpx.NewValidator()}
}

// MountRoutes registers workspace routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(ContextMiddleware(h.logger))
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/current", h.current)
	r.Get("/by-slug/{slug}", h.getBySlug)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.update)
		r.Delete("/", h.remove)
		r.Get("/members", h.listMembers)
		r.Post("/members", h.addMember)
		r.Put("/members/{memberID}", h.updateMember)
		r.Delete("/members/{memberID}", h.removeMember)
		r.Post("/invites", h.invite)
	})
}

// MountInviteRoutes registers invitation redemption.
func (h *Handler) MountInviteRoutes(r chi.Router) {
	r.Post("/accept", h.acceptInvite)
}

type createRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
	Slug string `json:"slug" validate:"omitempty,max=100"`
}

type updateRequest struct {
	Name        *string        `json:"name" validate:"omitempty,min=1,max=255"`
	Settings    map[string]any `json:"settings"`
	SSOEnabled  *bool          `json:"sso_enabled"`
	SSOEnforced *bool          `json:"sso_enforced"`
}

type addMemberRequest struct {
	UserID *uuid.UUID `json:"user_id" validate:"required_without=Email"`
	Email  string     `json:"email" validate:"omitempty,email"`
	Role   string     `json:"role" validate:"omitempty,oneof=admin member viewer"`
}

type memberRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin member viewer"`
}

type inviteRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"omitempty,oneof=admin member viewer"`
}

type acceptRequest struct {
	Token string `json:"token" validate:"required"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	actor, _ := shared.PrincipalFromContext(r.Context())
	ws, err := h.service.Create(r.Context(), actor, CreateInput{Name: req.Name, Slug: req.Slug})
	if err != nil {
		h.fail(w, "create workspace", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, Membership{Workspace: *ws, UserRole: RoleOwner, Members: []Member{}})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.PrincipalFromContext(r.Context())
	list, err := h.service.List(r.Context(), actor)
	if err != nil {
		h.fail(w, "list workspaces", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.PrincipalFromContext(r.Context())
	ws, err := h.service.Current(r.Context(), actor)
	if err != nil {
		h.fail(w, "current workspace", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ws)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.param(w, r, "id")
	if !ok {
		return
	}
	actor, _ := shared.PrincipalFromContext(r.Context())
	ws, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "get workspace", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ws)
}

func (h *Handler) getBySlug(w http.ResponseWriter, r *http.Request) {
	actor, _ := shared.PrincipalFromContext(r.Context())
	ws, err := h.service.GetBySlug(r.Context(), actor, chi.URLParam(r, "slug"))
	if err != nil {
		h.fail(w, "get workspace by slug", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ws)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.param(w, r, "id")
	if !ok {
		return
	}
	var req updateRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	actor, _ := shared.PrincipalFromContext(r.Context())
	ws, err := h.service.Update(r.Context(), actor, id, UpdateInput{
		Name:        req.Name,
		Settings:    req.Settings,
		SSOEnabled:  req.SSOEnabled,
		SSOEnforced: req.SSOEnforced,
	})
	if err != nil {
		h.fail(w, "update workspace", err)
		return
	}
	httpx.JSON(w, http.StatusOK, ws)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.param(w, r, "id")
	if !ok {
		return
	}
	actor, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		h.fail(w, "delete workspace", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	id, ok := h.param(w, r, "id")
	if !ok {
		return
	}
	actor, _ := shared.PrincipalFromContext(r.Context())
	members, err := h.service.ListMembers(r.Context(), actor, id)
	if err != nil {
		h.fail(w, "list members", err)
		return
	}
	httpx.JSON(w, http.StatusOK, members)
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	id, ok := h.param(w, r, "id")
	if !ok {
		return
	}
	var req addMemberRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	actor, _ := shared.PrincipalFromContext(r.Context())
	member, err := h.service.AddMember(r.Context(), actor, id, AddMemberInput{UserID: req.UserID, Email: req.Email, Role: Role(req.Role)})
	if err != nil {
		h.fail(w, "add member", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, member)
}

func (h *Handler) updateMember(w http.ResponseWriter, r *http.Request) {
	id, ok := h.param(w, r, "id")
	if !ok {
		return
	}
	memberID, ok := h.param(w, r, "memberID")
	if !ok {
		return
	}
	var req memberRoleRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	actor, _ := shared.PrincipalFromContext(r.Context())
	member, err := h.service.UpdateMemberRole(r.Context(), actor, id, memberID, Role(req.Role))
	if err != nil {
		h.fail(w, "update member", err)
		return
	}
	httpx.JSON(w, http.StatusOK, member)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	id, ok := h.param(w, r, "id")
	if !ok {
		return
	}
	memberID, ok := h.param(w, r, "memberID")
	if !ok {
		return
	}
	actor, _ := shared.PrincipalFromContext(r.Context())
	if err := h.service.RemoveMember(r.Context(), actor, id, memberID); err != nil {
		h.fail(w, "remove member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) invite(w http.ResponseWriter, r *http.Request) {
	id, ok := h.param(w, r, "id")
	if !ok {
		return
	}
	var req inviteRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	actor, _ := shared.PrincipalFromContext(r.Context())
	inv, err := h.service.Invite(r.Context(), actor, id, req.Email, Role(req.Role))
	if err != nil {
		h.fail(w, "invite member", err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, inv)
}

func (h *Handler) acceptInvite(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if !httpx.Bind(w, r, h.validator, &req) {
		return
	}
	actor, _ := shared.PrincipalFromContext(r.Context())
	member, err := h.service.AcceptInvite(r.Context(), actor, req.Token)
	if err != nil {
		h.fail(w, "accept invite", err)
		return
	}
	httpx.JSON(w, http.StatusOK, member)
}

func (h *Handler) param(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _ := httpx.Classify(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
