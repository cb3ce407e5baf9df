package content

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pathshala-edu/pathshala/internal/shared"
)

// RepositoryPort mirrors Repository for test doubles.
type RepositoryPort = Repository

// Service handles catalog business logic.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateGradeLevel adds a grade rung.
func (s *Service) CreateGradeLevel(ctx context.Context, name string, order int) (GradeLevel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return GradeLevel{}, fmt.Errorf("content: grade level name required")
	}
	return s.repo.InsertGradeLevel(ctx, GradeLevel{Name: name, SortOrder: order, IsActive: true})
}

// UpdateGradeLevel corrects a grade rung.
func (s *Service) UpdateGradeLevel(ctx context.Context, g GradeLevel) error {
	return s.repo.UpdateGradeLevel(ctx, g)
}

// DeleteGradeLevel soft-deletes a grade rung.
func (s *Service) DeleteGradeLevel(ctx context.Context, id int64) error {
	return s.repo.SoftDeleteGradeLevel(ctx, id)
}

// GradeLevels lists the active ladder in display order.
func (s *Service) GradeLevels(ctx context.Context) ([]GradeLevel, error) {
	return s.repo.ListGradeLevels(ctx)
}

// CreateSubject adds a subject, generating the slug from the name when absent.
func (s *Service) CreateSubject(ctx context.Context, name, slug string) (Subject, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Subject{}, fmt.Errorf("content: subject name required")
	}
	if slug = strings.TrimSpace(slug); slug == "" {
		slug = shared.Slugify(name)
	}
	return s.repo.InsertSubject(ctx, Subject{Name: name, Slug: slug, IsActive: true})
}

// UpdateSubject corrects a subject; the slug is immutable.
func (s *Service) UpdateSubject(ctx context.Context, sub Subject) error {
	return s.repo.UpdateSubject(ctx, sub)
}

// DeleteSubject soft-deletes a subject.
func (s *Service) DeleteSubject(ctx context.Context, id int64) error {
	return s.repo.SoftDeleteSubject(ctx, id)
}

// Subjects lists active subjects.
func (s *Service) Subjects(ctx context.Context) ([]Subject, error) {
	return s.repo.ListSubjects(ctx)
}

// CreateCourseInput describes a new course.
type CreateCourseInput struct {
	Title            string `json:"title" validate:"required,max=200"`
	Slug             string `json:"slug" validate:"max=200"`
	ShortDescription string `json:"short_description" validate:"max=500"`
	CoverImageURL    string `json:"cover_image_url" validate:"omitempty,url"`
}

// CreateCourse adds a course, generating the slug from the title when absent.
func (s *Service) CreateCourse(ctx context.Context, input CreateCourseInput) (Course, error) {
	slug := strings.TrimSpace(input.Slug)
	if slug == "" {
		slug = shared.Slugify(input.Title)
	}
	course, err := s.repo.InsertCourse(ctx, Course{
		Title:            strings.TrimSpace(input.Title),
		Slug:             slug,
		ShortDescription: strings.TrimSpace(input.ShortDescription),
		CoverImageURL:    strings.TrimSpace(input.CoverImageURL),
		IsActive:         true,
	})
	if err != nil {
		return Course{}, err
	}
	s.logger.Info("course created", slog.Int64("course_id", course.ID), slog.String("slug", course.Slug))
	return course, nil
}

// GetCourse returns one live course.
func (s *Service) GetCourse(ctx context.Context, id int64) (Course, error) {
	return s.repo.CourseByID(ctx, id)
}

// UpdateCourse corrects course fields; the slug is immutable.
func (s *Service) UpdateCourse(ctx context.Context, c Course) error {
	return s.repo.UpdateCourse(ctx, c)
}

// DeleteCourse soft-deletes a course.
func (s *Service) DeleteCourse(ctx context.Context, id int64) error {
	return s.repo.SoftDeleteCourse(ctx, id)
}

// Courses lists live courses with pagination.
func (s *Service) Courses(ctx context.Context, page, perPage int) ([]Course, shared.Pagination, error) {
	total, err := s.repo.CountCourses(ctx)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	pagination := shared.NewPagination(page, perPage, total)
	courses, err := s.repo.ListCourses(ctx, pagination.PerPage, pagination.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return courses, pagination, nil
}

// PlaceCourse puts a course on a grade+subject shelf. The shelf position and
// the (grade, subject, course) triple are both unique; a duplicate of either
// surfaces as ErrDuplicate.
func (s *Service) PlaceCourse(ctx context.Context, gradeID, subjectID, courseID int64, order int) (CoursePlacement, error) {
	if _, err := s.repo.CourseByID(ctx, courseID); err != nil {
		return CoursePlacement{}, err
	}
	return s.repo.InsertPlacement(ctx, CoursePlacement{
		GradeLevelID: gradeID,
		SubjectID:    subjectID,
		CourseID:     courseID,
		SortOrder:    order,
	})
}

// ReorderPlacement moves a placement within its shelf.
func (s *Service) ReorderPlacement(ctx context.Context, id int64, order int) error {
	return s.repo.UpdatePlacementOrder(ctx, id, order)
}

// PublishPlacement makes the shelf entry visible to learners.
func (s *Service) PublishPlacement(ctx context.Context, id int64) error {
	if err := s.repo.SetPlacementPublished(ctx, id, true); err != nil {
		return err
	}
	s.logger.Info("placement published", slog.Int64("placement_id", id))
	return nil
}

// UnpublishPlacement hides the shelf entry again.
func (s *Service) UnpublishPlacement(ctx context.Context, id int64) error {
	return s.repo.SetPlacementPublished(ctx, id, false)
}

// RemovePlacement soft-deletes a shelf entry.
func (s *Service) RemovePlacement(ctx context.Context, id int64) error {
	return s.repo.SoftDeletePlacement(ctx, id)
}

// ShelfPlacements lists a shelf in display order.
func (s *Service) ShelfPlacements(ctx context.Context, gradeID, subjectID int64) ([]CoursePlacement, error) {
	return s.repo.ListPlacementsForShelf(ctx, gradeID, subjectID)
}

// CreateModule adds a module to a course.
func (s *Service) CreateModule(ctx context.Context, courseID int64, title string, order int, sequential bool) (Module, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Module{}, fmt.Errorf("content: module title required")
	}
	if _, err := s.repo.CourseByID(ctx, courseID); err != nil {
		return Module{}, err
	}
	return s.repo.InsertModule(ctx, Module{
		CourseID:     courseID,
		Title:        title,
		SortOrder:    order,
		IsSequential: sequential,
		IsActive:     true,
	})
}

// UpdateModule corrects module fields.
func (s *Service) UpdateModule(ctx context.Context, m Module) error {
	return s.repo.UpdateModule(ctx, m)
}

// DeleteModule soft-deletes a module.
func (s *Service) DeleteModule(ctx context.Context, id int64) error {
	return s.repo.SoftDeleteModule(ctx, id)
}

// CourseModules lists a course's modules in order.
func (s *Service) CourseModules(ctx context.Context, courseID int64) ([]Module, error) {
	return s.repo.ListModulesForCourse(ctx, courseID)
}

// CreateLesson adds a lesson to a module. New lessons start unpublished.
func (s *Service) CreateLesson(ctx context.Context, moduleID int64, title string, order int, lessonType LessonType) (Lesson, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Lesson{}, fmt.Errorf("content: lesson title required")
	}
	if !lessonType.Valid() {
		return Lesson{}, fmt.Errorf("content: unknown lesson type %q", lessonType)
	}
	if _, err := s.repo.ModuleByID(ctx, moduleID); err != nil {
		return Lesson{}, err
	}
	return s.repo.InsertLesson(ctx, Lesson{
		ModuleID:  moduleID,
		Title:     title,
		SortOrder: order,
		Type:      lessonType,
	})
}

// UpdateLesson corrects lesson fields; publish state has its own operations.
func (s *Service) UpdateLesson(ctx context.Context, l Lesson) error {
	if !l.Type.Valid() {
		return fmt.Errorf("content: unknown lesson type %q", l.Type)
	}
	return s.repo.UpdateLesson(ctx, l)
}

// PublishLesson makes a lesson visible to learners.
func (s *Service) PublishLesson(ctx context.Context, id int64) error {
	if err := s.repo.SetLessonPublished(ctx, id, true); err != nil {
		return err
	}
	s.logger.Info("lesson published", slog.Int64("lesson_id", id))
	return nil
}

// UnpublishLesson hides a lesson again.
func (s *Service) UnpublishLesson(ctx context.Context, id int64) error {
	return s.repo.SetLessonPublished(ctx, id, false)
}

// DeleteLesson soft-deletes a lesson.
func (s *Service) DeleteLesson(ctx context.Context, id int64) error {
	return s.repo.SoftDeleteLesson(ctx, id)
}

// ModuleLessons lists a module's lessons in order.
func (s *Service) ModuleLessons(ctx context.Context, moduleID int64) ([]Lesson, error) {
	return s.repo.ListLessonsForModule(ctx, moduleID)
}

// CreateBlockInput describes a new content block.
type CreateBlockInput struct {
	Type      BlockType       `json:"type" validate:"required"`
	SortOrder int             `json:"sort_order" validate:"gte=0"`
	Payload   json.RawMessage `json:"payload" validate:"required"`
}

// CreateBlock adds a typed block to a lesson. The payload must be a JSON
// object; per-type schema validation lives client-side and in review tooling.
func (s *Service) CreateBlock(ctx context.Context, lessonID int64, input CreateBlockInput) (ContentBlock, error) {
	if !input.Type.Valid() {
		return ContentBlock{}, fmt.Errorf("content: unknown block type %q", input.Type)
	}
	if !json.Valid(input.Payload) {
		return ContentBlock{}, fmt.Errorf("content: block payload is not valid JSON")
	}
	if _, err := s.repo.LessonByID(ctx, lessonID); err != nil {
		return ContentBlock{}, err
	}
	return s.repo.InsertBlock(ctx, ContentBlock{
		LessonID:  lessonID,
		Type:      input.Type,
		SortOrder: input.SortOrder,
		Payload:   input.Payload,
		IsActive:  true,
	})
}

// UpdateBlock corrects a block's order, payload and active flag.
func (s *Service) UpdateBlock(ctx context.Context, b ContentBlock) error {
	if !json.Valid(b.Payload) {
		return fmt.Errorf("content: block payload is not valid JSON")
	}
	return s.repo.UpdateBlock(ctx, b)
}

// DeleteBlock soft-deletes a block.
func (s *Service) DeleteBlock(ctx context.Context, id int64) error {
	return s.repo.SoftDeleteBlock(ctx, id)
}

// LessonBlocks lists a lesson's blocks in order.
func (s *Service) LessonBlocks(ctx context.Context, lessonID int64) ([]ContentBlock, error) {
	return s.repo.ListBlocksForLesson(ctx, lessonID)
}
