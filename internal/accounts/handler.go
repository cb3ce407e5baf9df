package accounts

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pathshala-edu/pathshala/internal/dashboard"
	"github.com/pathshala-edu/pathshala/internal/platform/httpx"
	"github.com/pathshala-edu/pathshala/internal/shared"
)

// Handler exposes the admin user-management surface. Reads sit behind
// users.view at Read; mutations need Write of the same permission.
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

// MountRoutes registers admin user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireRead(dashboard.PermUsersView))
		r.Get("/", h.searchUsers)
		r.Get("/{id}", h.getUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.RequireWrite(dashboard.PermUsersView))
		r.Post("/", h.createUser)
		r.Put("/{id}/roles/{role}", h.assignRole)
		r.Delete("/{id}/roles/{role}", h.removeRole)
		r.Post("/{id}/deactivate", h.deactivateUser)
		r.Post("/{id}/reactivate", h.reactivateUser)
		r.Delete("/{id}", h.deleteUser)
		r.Put("/{id}/profile/student", h.saveStudentProfile)
		r.Put("/{id}/profile/parent", h.saveParentProfile)
		r.Put("/{id}/profile/teacher", h.saveTeacherProfile)
	})
}

type userResponse struct {
	ID          int64    `json:"id"`
	Phone       string   `json:"phone"`
	Email       string   `json:"email"`
	FullName    string   `json:"full_name"`
	IsActive    bool     `json:"is_active"`
	IsStaff     bool     `json:"is_staff"`
	IsSuperuser bool     `json:"is_superuser"`
	Roles       []string `json:"roles"`
}

func toUserResponse(u User) userResponse {
	roles := make([]string, 0, len(u.Roles))
	for _, role := range u.Roles {
		roles = append(roles, string(role))
	}
	return userResponse{
		ID: u.ID, Phone: u.Phone, Email: u.Email, FullName: u.FullName,
		IsActive: u.IsActive, IsStaff: u.IsStaff, IsSuperuser: u.IsSuperuser, Roles: roles,
	}
}

func (h *Handler) searchUsers(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	users, pagination, err := h.service.SearchUsers(r.Context(), r.URL.Query().Get("q"), page, perPage)
	if err != nil {
		h.fail(w, r, "search users", err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResponse(u))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": out, "pagination": pagination})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var input CreateUserInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(input); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	user, err := h.service.CreateUser(r.Context(), input)
	if err != nil {
		h.fail(w, r, "create user", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toUserResponse(user))
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	role := PlatformRole(chi.URLParam(r, "role"))
	if !role.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role must be one of student, parent, teacher, admin")
		return
	}
	if err := h.service.AssignPlatformRole(r.Context(), id, role); err != nil {
		h.fail(w, r, "assign platform role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assigned": true})
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	role := PlatformRole(chi.URLParam(r, "role"))
	if err := h.service.RemovePlatformRole(r.Context(), id, role); err != nil {
		h.fail(w, r, "remove platform role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"removed": true})
}

func (h *Handler) deactivateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Deactivate(r.Context(), id); err != nil {
		h.fail(w, r, "deactivate user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deactivated": true})
}

func (h *Handler) reactivateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Reactivate(r.Context(), id); err != nil {
		h.fail(w, r, "reactivate user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"reactivated": true})
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.fail(w, r, "delete user", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": true})
}

type studentProfileRequest struct {
	GradeLabel string `json:"grade_label" validate:"max=40"`
	SchoolName string `json:"school_name" validate:"max=120"`
	BirthDate  string `json:"birth_date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) saveStudentProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req studentProfileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	profile := StudentProfile{UserID: id, GradeLabel: req.GradeLabel, SchoolName: req.SchoolName}
	if req.BirthDate != "" {
		birth, _ := time.Parse("2006-01-02", req.BirthDate)
		profile.BirthDate = &birth
	}
	saved, err := h.service.SaveStudentProfile(r.Context(), profile)
	if err != nil {
		h.fail(w, r, "save student profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"profile_id": saved.ID})
}

type parentProfileRequest struct {
	Occupation string `json:"occupation" validate:"max=120"`
	Address    string `json:"address" validate:"max=255"`
}

func (h *Handler) saveParentProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req parentProfileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	saved, err := h.service.SaveParentProfile(r.Context(), ParentProfile{UserID: id, Occupation: req.Occupation, Address: req.Address})
	if err != nil {
		h.fail(w, r, "save parent profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"profile_id": saved.ID})
}

type teacherProfileRequest struct {
	Bio       string `json:"bio" validate:"max=1000"`
	Expertise string `json:"expertise" validate:"max=255"`
}

func (h *Handler) saveTeacherProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req teacherProfileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	saved, err := h.service.SaveTeacherProfile(r.Context(), TeacherProfile{UserID: id, Bio: req.Bio, Expertise: req.Expertise})
	if err != nil {
		h.fail(w, r, "save teacher profile", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"profile_id": saved.ID})
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
