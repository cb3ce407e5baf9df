package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pathshala-edu/pathshala/internal/shared"
)

// Repository provides PostgreSQL backed persistence for the content catalog.
type Repository interface {
	InsertGradeLevel(ctx context.Context, g GradeLevel) (GradeLevel, error)
	UpdateGradeLevel(ctx context.Context, g GradeLevel) error
	SoftDeleteGradeLevel(ctx context.Context, id int64) error
	ListGradeLevels(ctx context.Context) ([]GradeLevel, error)

	InsertSubject(ctx context.Context, s Subject) (Subject, error)
	UpdateSubject(ctx context.Context, s Subject) error
	SoftDeleteSubject(ctx context.Context, id int64) error
	ListSubjects(ctx context.Context) ([]Subject, error)

	CourseByID(ctx context.Context, id int64) (Course, error)
	InsertCourse(ctx context.Context, c Course) (Course, error)
	UpdateCourse(ctx context.Context, c Course) error
	SoftDeleteCourse(ctx context.Context, id int64) error
	ListCourses(ctx context.Context, limit, offset int) ([]Course, error)
	CountCourses(ctx context.Context) (int, error)

	PlacementByID(ctx context.Context, id int64) (CoursePlacement, error)
	InsertPlacement(ctx context.Context, p CoursePlacement) (CoursePlacement, error)
	UpdatePlacementOrder(ctx context.Context, id int64, order int) error
	SetPlacementPublished(ctx context.Context, id int64, published bool) error
	SoftDeletePlacement(ctx context.Context, id int64) error
	ListPlacementsForShelf(ctx context.Context, gradeID, subjectID int64) ([]CoursePlacement, error)

	ModuleByID(ctx context.Context, id int64) (Module, error)
	InsertModule(ctx context.Context, m Module) (Module, error)
	UpdateModule(ctx context.Context, m Module) error
	SoftDeleteModule(ctx context.Context, id int64) error
	ListModulesForCourse(ctx context.Context, courseID int64) ([]Module, error)

	LessonByID(ctx context.Context, id int64) (Lesson, error)
	InsertLesson(ctx context.Context, l Lesson) (Lesson, error)
	UpdateLesson(ctx context.Context, l Lesson) error
	SetLessonPublished(ctx context.Context, id int64, published bool) error
	SoftDeleteLesson(ctx context.Context, id int64) error
	ListLessonsForModule(ctx context.Context, moduleID int64) ([]Lesson, error)

	InsertBlock(ctx context.Context, b ContentBlock) (ContentBlock, error)
	UpdateBlock(ctx context.Context, b ContentBlock) error
	SoftDeleteBlock(ctx context.Context, id int64) error
	ListBlocksForLesson(ctx context.Context, lessonID int64) ([]ContentBlock, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db dbtx
}

// NewRepository constructs a repository backed by the provided pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func wrapInsertErr(entity string, err error) error {
	if isUniqueViolation(err) {
		return fmt.Errorf("content: %s: %w", entity, shared.ErrDuplicate)
	}
	return err
}

func notFoundOnZero(tag pgconn.CommandTag, err error) error {
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) InsertGradeLevel(ctx context.Context, g GradeLevel) (GradeLevel, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO grade_levels (name, sort_order, is_active)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		g.Name, g.SortOrder, g.IsActive,
	).Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return GradeLevel{}, wrapInsertErr("grade level "+g.Name, err)
	}
	return g, nil
}

func (r *repository) UpdateGradeLevel(ctx context.Context, g GradeLevel) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE grade_levels SET name = $2, sort_order = $3, is_active = $4, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, g.ID, g.Name, g.SortOrder, g.IsActive)
	return notFoundOnZero(tag, err)
}

func (r *repository) SoftDeleteGradeLevel(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE grade_levels SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	return notFoundOnZero(tag, err)
}

func (r *repository) ListGradeLevels(ctx context.Context) ([]GradeLevel, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, sort_order, is_active, created_at, updated_at, deleted_at
		FROM grade_levels WHERE deleted_at IS NULL ORDER BY sort_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GradeLevel
	for rows.Next() {
		var g GradeLevel
		if err := rows.Scan(&g.ID, &g.Name, &g.SortOrder, &g.IsActive, &g.CreatedAt, &g.UpdatedAt, &g.DeletedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *repository) InsertSubject(ctx context.Context, s Subject) (Subject, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO subjects (name, slug, is_active)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		s.Name, s.Slug, s.IsActive,
	).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return Subject{}, wrapInsertErr("subject "+s.Slug, err)
	}
	return s, nil
}

func (r *repository) UpdateSubject(ctx context.Context, s Subject) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE subjects SET name = $2, is_active = $3, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, s.ID, s.Name, s.IsActive)
	return notFoundOnZero(tag, err)
}

func (r *repository) SoftDeleteSubject(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE subjects SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	return notFoundOnZero(tag, err)
}

func (r *repository) ListSubjects(ctx context.Context) ([]Subject, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, name, slug, is_active, created_at, updated_at, deleted_at
		FROM subjects WHERE deleted_at IS NULL ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Subject
	for rows.Next() {
		var s Subject
		if err := rows.Scan(&s.ID, &s.Name, &s.Slug, &s.IsActive, &s.CreatedAt, &s.UpdatedAt, &s.DeletedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const courseColumns = `id, title, slug, short_description, cover_image_url, is_active, created_at, updated_at, deleted_at`

func scanCourse(row pgx.Row) (Course, error) {
	var c Course
	err := row.Scan(&c.ID, &c.Title, &c.Slug, &c.ShortDescription, &c.CoverImageURL, &c.IsActive, &c.CreatedAt, &c.UpdatedAt, &c.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Course{}, shared.ErrNotFound
	}
	return c, err
}

func (r *repository) CourseByID(ctx context.Context, id int64) (Course, error) {
	return scanCourse(r.db.QueryRow(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (r *repository) InsertCourse(ctx context.Context, c Course) (Course, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO courses (title, slug, short_description, cover_image_url, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		c.Title, c.Slug, c.ShortDescription, c.CoverImageURL, c.IsActive,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Course{}, wrapInsertErr("course "+c.Slug, err)
	}
	return c, nil
}

func (r *repository) UpdateCourse(ctx context.Context, c Course) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE courses SET title = $2, short_description = $3, cover_image_url = $4, is_active = $5, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		c.ID, c.Title, c.ShortDescription, c.CoverImageURL, c.IsActive)
	return notFoundOnZero(tag, err)
}

func (r *repository) SoftDeleteCourse(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE courses SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	return notFoundOnZero(tag, err)
}

func (r *repository) ListCourses(ctx context.Context, limit, offset int) ([]Course, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+courseColumns+` FROM courses
		WHERE deleted_at IS NULL ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) CountCourses(ctx context.Context) (int, error) {
	var total int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM courses WHERE deleted_at IS NULL`).Scan(&total)
	return total, err
}

const placementColumns = `id, grade_level_id, subject_id, course_id, sort_order, is_published, published_at, created_at, updated_at, deleted_at`

func scanPlacement(row pgx.Row) (CoursePlacement, error) {
	var p CoursePlacement
	err := row.Scan(&p.ID, &p.GradeLevelID, &p.SubjectID, &p.CourseID, &p.SortOrder, &p.IsPublished, &p.PublishedAt, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return CoursePlacement{}, shared.ErrNotFound
	}
	return p, err
}

func (r *repository) PlacementByID(ctx context.Context, id int64) (CoursePlacement, error) {
	return scanPlacement(r.db.QueryRow(ctx, `SELECT `+placementColumns+` FROM course_placements WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (r *repository) InsertPlacement(ctx context.Context, p CoursePlacement) (CoursePlacement, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO course_placements (grade_level_id, subject_id, course_id, sort_order, is_published)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		p.GradeLevelID, p.SubjectID, p.CourseID, p.SortOrder, p.IsPublished,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return CoursePlacement{}, wrapInsertErr("placement", err)
	}
	return p, nil
}

func (r *repository) UpdatePlacementOrder(ctx context.Context, id int64, order int) error {
	tag, err := r.db.Exec(ctx, `UPDATE course_placements SET sort_order = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id, order)
	if isUniqueViolation(err) {
		return fmt.Errorf("content: placement order: %w", shared.ErrDuplicate)
	}
	return notFoundOnZero(tag, err)
}

// SetPlacementPublished stamps published_at on the first publish only, so the
// timestamp records the original release.
func (r *repository) SetPlacementPublished(ctx context.Context, id int64, published bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE course_placements
		SET is_published = $2,
		    published_at = CASE WHEN $2 AND published_at IS NULL THEN now() ELSE published_at END,
		    updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id, published)
	return notFoundOnZero(tag, err)
}

func (r *repository) SoftDeletePlacement(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE course_placements SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	return notFoundOnZero(tag, err)
}

func (r *repository) ListPlacementsForShelf(ctx context.Context, gradeID, subjectID int64) ([]CoursePlacement, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+placementColumns+` FROM course_placements
		WHERE grade_level_id = $1 AND subject_id = $2 AND deleted_at IS NULL
		ORDER BY sort_order`, gradeID, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CoursePlacement
	for rows.Next() {
		p, err := scanPlacement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const moduleColumns = `id, course_id, title, sort_order, is_sequential, is_active, created_at, updated_at, deleted_at`

func scanModule(row pgx.Row) (Module, error) {
	var m Module
	err := row.Scan(&m.ID, &m.CourseID, &m.Title, &m.SortOrder, &m.IsSequential, &m.IsActive, &m.CreatedAt, &m.UpdatedAt, &m.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Module{}, shared.ErrNotFound
	}
	return m, err
}

func (r *repository) ModuleByID(ctx context.Context, id int64) (Module, error) {
	return scanModule(r.db.QueryRow(ctx, `SELECT `+moduleColumns+` FROM modules WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (r *repository) InsertModule(ctx context.Context, m Module) (Module, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO modules (course_id, title, sort_order, is_sequential, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		m.CourseID, m.Title, m.SortOrder, m.IsSequential, m.IsActive,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return Module{}, wrapInsertErr("module", err)
	}
	return m, nil
}

func (r *repository) UpdateModule(ctx context.Context, m Module) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE modules SET title = $2, sort_order = $3, is_sequential = $4, is_active = $5, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		m.ID, m.Title, m.SortOrder, m.IsSequential, m.IsActive)
	if isUniqueViolation(err) {
		return fmt.Errorf("content: module order: %w", shared.ErrDuplicate)
	}
	return notFoundOnZero(tag, err)
}

func (r *repository) SoftDeleteModule(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE modules SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	return notFoundOnZero(tag, err)
}

func (r *repository) ListModulesForCourse(ctx context.Context, courseID int64) ([]Module, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+moduleColumns+` FROM modules
		WHERE course_id = $1 AND deleted_at IS NULL ORDER BY sort_order`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Module
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const lessonColumns = `id, module_id, title, sort_order, lesson_type, is_published, published_at, created_at, updated_at, deleted_at`

func scanLesson(row pgx.Row) (Lesson, error) {
	var l Lesson
	err := row.Scan(&l.ID, &l.ModuleID, &l.Title, &l.SortOrder, &l.Type, &l.IsPublished, &l.PublishedAt, &l.CreatedAt, &l.UpdatedAt, &l.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lesson{}, shared.ErrNotFound
	}
	return l, err
}

func (r *repository) LessonByID(ctx context.Context, id int64) (Lesson, error) {
	return scanLesson(r.db.QueryRow(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE id = $1 AND deleted_at IS NULL`, id))
}

func (r *repository) InsertLesson(ctx context.Context, l Lesson) (Lesson, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO lessons (module_id, title, sort_order, lesson_type, is_published)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		l.ModuleID, l.Title, l.SortOrder, string(l.Type), l.IsPublished,
	).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return Lesson{}, wrapInsertErr("lesson", err)
	}
	return l, nil
}

func (r *repository) UpdateLesson(ctx context.Context, l Lesson) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE lessons SET title = $2, sort_order = $3, lesson_type = $4, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		l.ID, l.Title, l.SortOrder, string(l.Type))
	if isUniqueViolation(err) {
		return fmt.Errorf("content: lesson order: %w", shared.ErrDuplicate)
	}
	return notFoundOnZero(tag, err)
}

func (r *repository) SetLessonPublished(ctx context.Context, id int64, published bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE lessons
		SET is_published = $2,
		    published_at = CASE WHEN $2 AND published_at IS NULL THEN now() ELSE published_at END,
		    updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id, published)
	return notFoundOnZero(tag, err)
}

func (r *repository) SoftDeleteLesson(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE lessons SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	return notFoundOnZero(tag, err)
}

func (r *repository) ListLessonsForModule(ctx context.Context, moduleID int64) ([]Lesson, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+lessonColumns+` FROM lessons
		WHERE module_id = $1 AND deleted_at IS NULL ORDER BY sort_order`, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *repository) InsertBlock(ctx context.Context, b ContentBlock) (ContentBlock, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO content_blocks (lesson_id, block_type, sort_order, payload, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`,
		b.LessonID, string(b.Type), b.SortOrder, b.Payload, b.IsActive,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return ContentBlock{}, wrapInsertErr("content block", err)
	}
	return b, nil
}

func (r *repository) UpdateBlock(ctx context.Context, b ContentBlock) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE content_blocks SET sort_order = $2, payload = $3, is_active = $4, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		b.ID, b.SortOrder, b.Payload, b.IsActive)
	if isUniqueViolation(err) {
		return fmt.Errorf("content: block order: %w", shared.ErrDuplicate)
	}
	return notFoundOnZero(tag, err)
}

func (r *repository) SoftDeleteBlock(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE content_blocks SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	return notFoundOnZero(tag, err)
}

func (r *repository) ListBlocksForLesson(ctx context.Context, lessonID int64) ([]ContentBlock, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, lesson_id, block_type, sort_order, payload, is_active, created_at, updated_at, deleted_at
		FROM content_blocks
		WHERE lesson_id = $1 AND deleted_at IS NULL ORDER BY sort_order`, lessonID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ContentBlock
	for rows.Next() {
		var b ContentBlock
		if err := rows.Scan(&b.ID, &b.LessonID, &b.Type, &b.SortOrder, &b.Payload, &b.IsActive, &b.CreatedAt, &b.UpdatedAt, &b.DeletedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
