package guardian

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pathshala-edu/pathshala/internal/dashboard"
	"github.com/pathshala-edu/pathshala/internal/platform/httpx"
	"github.com/pathshala-edu/pathshala/internal/shared"
)

// Handler exposes the admin surface for guardian relationships. Listing is
// guarded by relationships.view; workflow mutations need Write on the same
// code since support staff act on behalf of families.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	authz    dashboard.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz dashboard.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), authz: authz}
}

// MountRoutes registers the relationship routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireRead(dashboard.PermRelationshipsView))
		r.Get("/", h.list)
		r.Get("/{id}", h.get)
		r.Get("/parent/{id}", h.listForParent)
		r.Get("/student/{id}", h.listForStudent)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireWrite(dashboard.PermRelationshipsView))
		r.Post("/", h.request)
		r.Post("/{id}/approve", h.approve)
		r.Post("/{id}/reject", h.reject)
		r.Post("/{id}/revoke", h.revoke)
		r.Patch("/{id}/flags", h.updateFlags)
		r.Delete("/{id}", h.remove)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	status := RelationshipStatus(r.URL.Query().Get("status"))
	switch status {
	case "", StatusPending, StatusActive, StatusRejected, StatusRevoked:
	default:
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown status filter")
		return
	}
	page, perPage := shared.PageFromRequest(r)
	rels, pagination, err := h.service.List(r.Context(), status, page, perPage)
	if err != nil {
		h.fail(w, r, "list relationships", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"relationships": rels, "pagination": pagination})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	rel, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get relationship", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rel)
}

func (h *Handler) listForParent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	rels, err := h.service.ForParent(r.Context(), id)
	if err != nil {
		h.fail(w, r, "list for parent", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"relationships": rels})
}

func (h *Handler) listForStudent(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	rels, err := h.service.ForStudent(r.Context(), id)
	if err != nil {
		h.fail(w, r, "list for student", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"relationships": rels})
}

func (h *Handler) request(w http.ResponseWriter, r *http.Request) {
	var input RequestLinkInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
		return
	}
	rel, err := h.service.RequestLink(r.Context(), principal.GetID(), input)
	if err != nil {
		h.fail(w, r, "request link", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rel)
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "approve link", h.service.Approve)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "reject link", h.service.Reject)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "revoke link", h.service.Revoke)
}

type flagsRequest struct {
	CanViewProgress    bool `json:"can_view_progress"`
	CanReceiveReports  bool `json:"can_receive_reports"`
	CanViewAssessments bool `json:"can_view_assessments"`
}

func (h *Handler) updateFlags(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req flagsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.service.UpdateFlags(r.Context(), id, req.CanViewProgress, req.CanReceiveReports, req.CanViewAssessments); err != nil {
		h.fail(w, r, "update flags", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Remove(r.Context(), id); err != nil {
		h.fail(w, r, "remove relationship", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, int64) (Relationship, error)) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	rel, err := fn(r.Context(), id)
	if err != nil {
		h.fail(w, r, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rel)
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
	if errors.Is(err, ErrInvalidTransition) {
		httpx.Problem(w, http.StatusConflict, "Conflict", "the relationship does not allow this transition")
		return
	}
	httpx.RespondError(w, err)
}
