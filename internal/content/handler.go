package content

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pathshala-edu/pathshala/internal/dashboard"
	"github.com/pathshala-edu/pathshala/internal/platform/httpx"
	"github.com/pathshala-edu/pathshala/internal/shared"
)

// Handler exposes the catalog admin surface. Each entity family sits behind
// its own content.* permission; publish operations are guarded separately by
// content.publish so curation and release can be delegated independently.
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

// MountRoutes registers the catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/grades", func(r chi.Router) {
		r.With(h.authz.RequireRead(dashboard.PermContentGrade)).Get("/", h.listGrades)
		r.Group(func(r chi.Router) {
			r.Use(h.authz.RequireWrite(dashboard.PermContentGrade))
			r.Post("/", h.createGrade)
			r.Patch("/{id}", h.updateGrade)
			r.Delete("/{id}", h.deleteGrade)
		})
	})

	r.Route("/subjects", func(r chi.Router) {
		r.With(h.authz.RequireRead(dashboard.PermContentSubject)).Get("/", h.listSubjects)
		r.Group(func(r chi.Router) {
			r.Use(h.authz.RequireWrite(dashboard.PermContentSubject))
			r.Post("/", h.createSubject)
			r.Patch("/{id}", h.updateSubject)
			r.Delete("/{id}", h.deleteSubject)
		})
	})

	r.Route("/courses", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.authz.RequireRead(dashboard.PermContentCourse))
			r.Get("/", h.listCourses)
			r.Get("/{id}", h.getCourse)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.authz.RequireWrite(dashboard.PermContentCourse))
			r.Post("/", h.createCourse)
			r.Patch("/{id}", h.updateCourse)
			r.Delete("/{id}", h.deleteCourse)
		})
		r.With(h.authz.RequireRead(dashboard.PermContentModule)).Get("/{id}/modules", h.listModules)
		r.With(h.authz.RequireWrite(dashboard.PermContentModule)).Post("/{id}/modules", h.createModule)
	})

	r.Route("/placements", func(r chi.Router) {
		r.With(h.authz.RequireRead(dashboard.PermContentPlacement)).Get("/", h.listShelf)
		r.Group(func(r chi.Router) {
			r.Use(h.authz.RequireWrite(dashboard.PermContentPlacement))
			r.Post("/", h.placeCourse)
			r.Patch("/{id}/order", h.reorderPlacement)
			r.Delete("/{id}", h.removePlacement)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.authz.RequireWrite(dashboard.PermContentPublish))
			r.Post("/{id}/publish", h.publishPlacement)
			r.Post("/{id}/unpublish", h.unpublishPlacement)
		})
	})

	r.Route("/modules/{id}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.authz.RequireWrite(dashboard.PermContentModule))
			r.Patch("/", h.updateModule)
			r.Delete("/", h.deleteModule)
		})
		r.With(h.authz.RequireRead(dashboard.PermContentLesson)).Get("/lessons", h.listLessons)
		r.With(h.authz.RequireWrite(dashboard.PermContentLesson)).Post("/lessons", h.createLesson)
	})

	r.Route("/lessons/{id}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.authz.RequireWrite(dashboard.PermContentLesson))
			r.Patch("/", h.updateLesson)
			r.Delete("/", h.deleteLesson)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.authz.RequireWrite(dashboard.PermContentPublish))
			r.Post("/publish", h.publishLesson)
			r.Post("/unpublish", h.unpublishLesson)
		})
		r.With(h.authz.RequireRead(dashboard.PermContentBlock)).Get("/blocks", h.listBlocks)
		r.With(h.authz.RequireWrite(dashboard.PermContentBlock)).Post("/blocks", h.createBlock)
	})

	r.Route("/blocks/{id}", func(r chi.Router) {
		r.Use(h.authz.RequireWrite(dashboard.PermContentBlock))
		r.Patch("/", h.updateBlock)
		r.Delete("/", h.deleteBlock)
	})
}

type gradeRequest struct {
	Name      string `json:"name" validate:"required,max=60"`
	SortOrder int    `json:"sort_order" validate:"gte=0"`
	IsActive  *bool  `json:"is_active"`
}

func (h *Handler) listGrades(w http.ResponseWriter, r *http.Request) {
	grades, err := h.service.GradeLevels(r.Context())
	if err != nil {
		h.fail(w, r, "list grades", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"grades": grades})
}

func (h *Handler) createGrade(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if !h.decode(w, r, &req) {
		return
	}
	grade, err := h.service.CreateGradeLevel(r.Context(), req.Name, req.SortOrder)
	if err != nil {
		h.fail(w, r, "create grade", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, grade)
}

func (h *Handler) updateGrade(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req gradeRequest
	if !h.decode(w, r, &req) {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	if err := h.service.UpdateGradeLevel(r.Context(), GradeLevel{ID: id, Name: req.Name, SortOrder: req.SortOrder, IsActive: active}); err != nil {
		h.fail(w, r, "update grade", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) deleteGrade(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "delete grade", h.service.DeleteGradeLevel)
}

type subjectRequest struct {
	Name     string `json:"name" validate:"required,max=80"`
	Slug     string `json:"slug" validate:"max=80"`
	IsActive *bool  `json:"is_active"`
}

func (h *Handler) listSubjects(w http.ResponseWriter, r *http.Request) {
	subjects, err := h.service.Subjects(r.Context())
	if err != nil {
		h.fail(w, r, "list subjects", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"subjects": subjects})
}

func (h *Handler) createSubject(w http.ResponseWriter, r *http.Request) {
	var req subjectRequest
	if !h.decode(w, r, &req) {
		return
	}
	subject, err := h.service.CreateSubject(r.Context(), req.Name, req.Slug)
	if err != nil {
		h.fail(w, r, "create subject", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, subject)
}

func (h *Handler) updateSubject(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req subjectRequest
	if !h.decode(w, r, &req) {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	if err := h.service.UpdateSubject(r.Context(), Subject{ID: id, Name: req.Name, IsActive: active}); err != nil {
		h.fail(w, r, "update subject", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) deleteSubject(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "delete subject", h.service.DeleteSubject)
}

func (h *Handler) listCourses(w http.ResponseWriter, r *http.Request) {
	page, perPage := shared.PageFromRequest(r)
	courses, pagination, err := h.service.Courses(r.Context(), page, perPage)
	if err != nil {
		h.fail(w, r, "list courses", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"courses": courses, "pagination": pagination})
}

func (h *Handler) getCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	course, err := h.service.GetCourse(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get course", err)
		return
	}
	httpx.JSON(w, http.StatusOK, course)
}

func (h *Handler) createCourse(w http.ResponseWriter, r *http.Request) {
	var input CreateCourseInput
	if !h.decode(w, r, &input) {
		return
	}
	course, err := h.service.CreateCourse(r.Context(), input)
	if err != nil {
		h.fail(w, r, "create course", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, course)
}

type updateCourseRequest struct {
	Title            string `json:"title" validate:"required,max=200"`
	ShortDescription string `json:"short_description" validate:"max=500"`
	CoverImageURL    string `json:"cover_image_url" validate:"omitempty,url"`
	IsActive         *bool  `json:"is_active"`
}

func (h *Handler) updateCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateCourseRequest
	if !h.decode(w, r, &req) {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	course := Course{ID: id, Title: req.Title, ShortDescription: req.ShortDescription, CoverImageURL: req.CoverImageURL, IsActive: active}
	if err := h.service.UpdateCourse(r.Context(), course); err != nil {
		h.fail(w, r, "update course", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) deleteCourse(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "delete course", h.service.DeleteCourse)
}

type placeCourseRequest struct {
	GradeLevelID int64 `json:"grade_level_id" validate:"required,gt=0"`
	SubjectID    int64 `json:"subject_id" validate:"required,gt=0"`
	CourseID     int64 `json:"course_id" validate:"required,gt=0"`
	SortOrder    int   `json:"sort_order" validate:"gte=0"`
}

func (h *Handler) listShelf(w http.ResponseWriter, r *http.Request) {
	gradeID, _ := strconv.ParseInt(r.URL.Query().Get("grade_level_id"), 10, 64)
	subjectID, _ := strconv.ParseInt(r.URL.Query().Get("subject_id"), 10, 64)
	if gradeID <= 0 || subjectID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "grade_level_id and subject_id are required")
		return
	}
	placements, err := h.service.ShelfPlacements(r.Context(), gradeID, subjectID)
	if err != nil {
		h.fail(w, r, "list shelf", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"placements": placements})
}

func (h *Handler) placeCourse(w http.ResponseWriter, r *http.Request) {
	var req placeCourseRequest
	if !h.decode(w, r, &req) {
		return
	}
	placement, err := h.service.PlaceCourse(r.Context(), req.GradeLevelID, req.SubjectID, req.CourseID, req.SortOrder)
	if err != nil {
		h.fail(w, r, "place course", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, placement)
}

type reorderRequest struct {
	SortOrder int `json:"sort_order" validate:"gte=0"`
}

func (h *Handler) reorderPlacement(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req reorderRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.service.ReorderPlacement(r.Context(), id, req.SortOrder); err != nil {
		h.fail(w, r, "reorder placement", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) publishPlacement(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "publish placement", h.service.PublishPlacement)
}

func (h *Handler) unpublishPlacement(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "unpublish placement", h.service.UnpublishPlacement)
}

func (h *Handler) removePlacement(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "remove placement", h.service.RemovePlacement)
}

type moduleRequest struct {
	Title        string `json:"title" validate:"required,max=200"`
	SortOrder    int    `json:"sort_order" validate:"gte=0"`
	IsSequential bool   `json:"is_sequential"`
	IsActive     *bool  `json:"is_active"`
}

func (h *Handler) listModules(w http.ResponseWriter, r *http.Request) {
	courseID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	modules, err := h.service.CourseModules(r.Context(), courseID)
	if err != nil {
		h.fail(w, r, "list modules", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"modules": modules})
}

func (h *Handler) createModule(w http.ResponseWriter, r *http.Request) {
	courseID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req moduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	module, err := h.service.CreateModule(r.Context(), courseID, req.Title, req.SortOrder, req.IsSequential)
	if err != nil {
		h.fail(w, r, "create module", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, module)
}

func (h *Handler) updateModule(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req moduleRequest
	if !h.decode(w, r, &req) {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	module := Module{ID: id, Title: req.Title, SortOrder: req.SortOrder, IsSequential: req.IsSequential, IsActive: active}
	if err := h.service.UpdateModule(r.Context(), module); err != nil {
		h.fail(w, r, "update module", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) deleteModule(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "delete module", h.service.DeleteModule)
}

type lessonRequest struct {
	Title     string `json:"title" validate:"required,max=200"`
	SortOrder int    `json:"sort_order" validate:"gte=0"`
	Type      string `json:"type" validate:"required"`
}

func (h *Handler) listLessons(w http.ResponseWriter, r *http.Request) {
	moduleID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	lessons, err := h.service.ModuleLessons(r.Context(), moduleID)
	if err != nil {
		h.fail(w, r, "list lessons", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lessons": lessons})
}

func (h *Handler) createLesson(w http.ResponseWriter, r *http.Request) {
	moduleID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req lessonRequest
	if !h.decode(w, r, &req) {
		return
	}
	lesson, err := h.service.CreateLesson(r.Context(), moduleID, req.Title, req.SortOrder, LessonType(req.Type))
	if err != nil {
		h.fail(w, r, "create lesson", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lesson)
}

func (h *Handler) updateLesson(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req lessonRequest
	if !h.decode(w, r, &req) {
		return
	}
	lesson := Lesson{ID: id, Title: req.Title, SortOrder: req.SortOrder, Type: LessonType(req.Type)}
	if err := h.service.UpdateLesson(r.Context(), lesson); err != nil {
		h.fail(w, r, "update lesson", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) publishLesson(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "publish lesson", h.service.PublishLesson)
}

func (h *Handler) unpublishLesson(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "unpublish lesson", h.service.UnpublishLesson)
}

func (h *Handler) deleteLesson(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "delete lesson", h.service.DeleteLesson)
}

func (h *Handler) listBlocks(w http.ResponseWriter, r *http.Request) {
	lessonID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	blocks, err := h.service.LessonBlocks(r.Context(), lessonID)
	if err != nil {
		h.fail(w, r, "list blocks", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"blocks": blocks})
}

func (h *Handler) createBlock(w http.ResponseWriter, r *http.Request) {
	lessonID, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var input CreateBlockInput
	if !h.decode(w, r, &input) {
		return
	}
	block, err := h.service.CreateBlock(r.Context(), lessonID, input)
	if err != nil {
		h.fail(w, r, "create block", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, block)
}

type updateBlockRequest struct {
	SortOrder int             `json:"sort_order" validate:"gte=0"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
	IsActive  *bool           `json:"is_active"`
}

func (h *Handler) updateBlock(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateBlockRequest
	if !h.decode(w, r, &req) {
		return
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	block := ContentBlock{ID: id, SortOrder: req.SortOrder, Payload: req.Payload, IsActive: active}
	if err := h.service.UpdateBlock(r.Context(), block); err != nil {
		h.fail(w, r, "update block", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"updated": true})
}

func (h *Handler) deleteBlock(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "delete block", h.service.DeleteBlock)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) deleteByID(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, int64) error) {
	id, ok := h.pathID(w, r, "id")
	if !ok {
		return
	}
	if err := fn(r.Context(), id); err != nil {
		h.fail(w, r, op, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"ok": true})
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
