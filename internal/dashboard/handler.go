package dashboard

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pathshala-edu/pathshala/internal/platform/httpx"
	"github.com/pathshala-edu/pathshala/internal/shared"
)

// Handler exposes the administrative surface over permissions, roles,
// grants and memberships. Everything mounts behind the admin.roles
// permission; reads at LevelRead, mutations at LevelWrite, purges at
// LevelAdmin.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	authz    Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), authz: authz}
}

// MountRoutes registers the admin RBAC routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireRead(PermAdminRoles))
		r.Get("/permissions", h.listPermissions)
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{roleID}/grants", h.listRoleGrants)
		r.Get("/users/{userID}/memberships", h.listUserMemberships)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireWrite(PermAdminRoles))
		r.Post("/permissions", h.createPermission)
		r.Patch("/permissions/{id}", h.updatePermission)
		r.Delete("/permissions/{id}", h.deactivatePermission)
		r.Post("/permissions/{id}/restore", h.restorePermission)

		r.Post("/roles", h.createRole)
		r.Patch("/roles/{id}", h.updateRole)
		r.Delete("/roles/{id}", h.deactivateRole)
		r.Post("/roles/{id}/restore", h.restoreRole)

		r.Put("/roles/{roleID}/grants/{permissionID}", h.upsertGrant)
		r.Delete("/roles/{roleID}/grants/{permissionID}", h.revokeGrant)

		r.Put("/users/{userID}/memberships/{roleID}", h.assignMembership)
		r.Post("/users/{userID}/memberships/{roleID}/deactivate", h.deactivateMembership)
		r.Delete("/users/{userID}/memberships/{roleID}", h.revokeMembership)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireAdmin(PermAdminRoles))
		r.Delete("/roles/{id}/purge", h.purgeRole)
	})
}

type permissionResponse struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
	Deleted     bool   `json:"deleted"`
}

func toPermissionResponse(p Permission) permissionResponse {
	return permissionResponse{ID: p.ID, Code: p.Code, Name: p.Name, Description: p.Description, IsActive: p.IsActive, Deleted: p.IsDeleted()}
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("all") == "1"
	perms, err := h.service.ListPermissions(r.Context(), includeDeleted)
	if err != nil {
		h.fail(w, r, "list permissions", err)
		return
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, toPermissionResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": out})
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var input CreatePermissionInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	perm, err := h.service.CreatePermission(r.Context(), h.actor(r), input)
	if err != nil {
		h.fail(w, r, "create permission", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPermissionResponse(perm))
}

type updatePermissionRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=255"`
	IsActive    bool   `json:"is_active"`
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req updatePermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	perm := Permission{ID: id, Name: req.Name, Description: req.Description, IsActive: req.IsActive}
	if err := h.service.UpdatePermission(r.Context(), h.actor(r), perm); err != nil {
		h.fail(w, r, "update permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) deactivatePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeactivatePermission(r.Context(), h.actor(r), id); err != nil {
		h.fail(w, r, "deactivate permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) restorePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.RestorePermission(r.Context(), h.actor(r), id); err != nil {
		h.fail(w, r, "restore permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"restored": true})
}

type roleResponse struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	IsSystemRole bool   `json:"is_system_role"`
	IsActive     bool   `json:"is_active"`
	Deleted      bool   `json:"deleted"`
}

func toRoleResponse(ro Role) roleResponse {
	return roleResponse{ID: ro.ID, Name: ro.Name, Slug: ro.Slug, IsSystemRole: ro.IsSystemRole, IsActive: ro.IsActive, Deleted: ro.IsDeleted()}
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	includeDeleted := r.URL.Query().Get("all") == "1"
	roles, err := h.service.ListRoles(r.Context(), includeDeleted)
	if err != nil {
		h.fail(w, r, "list roles", err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, ro := range roles {
		out = append(out, toRoleResponse(ro))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var input CreateRoleInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.service.CreateRole(r.Context(), h.actor(r), input)
	if err != nil {
		h.fail(w, r, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

type updateRoleRequest struct {
	Name     string `json:"name" validate:"required,max=80"`
	IsActive bool   `json:"is_active"`
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.UpdateRole(r.Context(), h.actor(r), Role{ID: id, Name: req.Name, IsActive: req.IsActive}); err != nil {
		h.fail(w, r, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) deactivateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeactivateRole(r.Context(), h.actor(r), id); err != nil {
		h.fail(w, r, "deactivate role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (h *Handler) restoreRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.RestoreRole(r.Context(), h.actor(r), id); err != nil {
		h.fail(w, r, "restore role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"restored": true})
}

func (h *Handler) purgeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	err := h.service.PurgeRole(r.Context(), h.actor(r), id)
	if errors.Is(err, ErrRoleInUse) {
		httpx.Problem(w, http.StatusConflict, "Role In Use", "The role still has active memberships.")
		return
	}
	if err != nil {
		h.fail(w, r, "purge role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"purged": true})
}

type grantResponse struct {
	ID           int64  `json:"id"`
	RoleID       int64  `json:"role_id"`
	PermissionID int64  `json:"permission_id"`
	Level        string `json:"level"`
}

func (h *Handler) listRoleGrants(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	grants, err := h.service.RoleGrants(r.Context(), roleID)
	if err != nil {
		h.fail(w, r, "list role grants", err)
		return
	}
	out := make([]grantResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, grantResponse{ID: g.ID, RoleID: g.RoleID, PermissionID: g.PermissionID, Level: g.Level.String()})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"grants": out})
}

type upsertGrantRequest struct {
	Level string `json:"level" validate:"required"`
}

func (h *Handler) upsertGrant(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	permissionID, ok := h.pathID(w, r, "permissionID")
	if !ok {
		return
	}
	var req upsertGrantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	level, err := ParseLevel(req.Level)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "level must be one of none, read, write, admin")
		return
	}
	grant, err := h.service.UpsertGrant(r.Context(), h.actor(r), roleID, permissionID, level)
	if err != nil {
		h.fail(w, r, "upsert grant", err)
		return
	}
	httpx.JSON(w, http.StatusOK, grantResponse{ID: grant.ID, RoleID: grant.RoleID, PermissionID: grant.PermissionID, Level: grant.Level.String()})
}

func (h *Handler) revokeGrant(w http.ResponseWriter, r *http.Request) {
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	permissionID, ok := h.pathID(w, r, "permissionID")
	if !ok {
		return
	}
	if err := h.service.RevokeGrant(r.Context(), h.actor(r), roleID, permissionID); err != nil {
		h.fail(w, r, "revoke grant", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"revoked": true})
}

type membershipResponse struct {
	ID       int64 `json:"id"`
	UserID   int64 `json:"user_id"`
	RoleID   int64 `json:"role_id"`
	IsActive bool  `json:"is_active"`
}

func (h *Handler) listUserMemberships(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	members, err := h.service.UserMemberships(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "list memberships", err)
		return
	}
	out := make([]membershipResponse, 0, len(members))
	for _, m := range members {
		out = append(out, membershipResponse{ID: m.ID, UserID: m.UserID, RoleID: m.RoleID, IsActive: m.IsActive})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"memberships": out})
}

func (h *Handler) assignMembership(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	member, err := h.service.AssignMembership(r.Context(), h.actor(r), userID, roleID)
	if err != nil {
		h.fail(w, r, "assign membership", err)
		return
	}
	httpx.JSON(w, http.StatusOK, membershipResponse{ID: member.ID, UserID: member.UserID, RoleID: member.RoleID, IsActive: member.IsActive})
}

func (h *Handler) deactivateMembership(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.DeactivateMembership(r.Context(), h.actor(r), userID, roleID); err != nil {
		h.fail(w, r, "deactivate membership", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deactivated": true})
}

func (h *Handler) revokeMembership(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	roleID, ok := h.pathID(w, r, "roleID")
	if !ok {
		return
	}
	if err := h.service.RevokeMembership(r.Context(), h.actor(r), userID, roleID); err != nil {
		h.fail(w, r, "revoke membership", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"revoked": true})
}

func (h *Handler) actor(r *http.Request) shared.Principal {
	return shared.PrincipalFromContext(r.Context())
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid identifier")
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if h.logger != nil {
		h.logger.Error(op+" failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
