package content

import (
	"encoding/json"
	"time"
)

// GradeLevel is one rung of the academic ladder, e.g. "Class 5".
type GradeLevel struct {
	ID        int64
	Name      string
	SortOrder int
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

func (g *GradeLevel) IsDeleted() bool { return g.DeletedAt != nil }

// Subject is a teaching discipline, e.g. "Mathematics".
type Subject struct {
	ID        int64
	Name      string
	Slug      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

func (s *Subject) IsDeleted() bool { return s.DeletedAt != nil }

// Course is a unit of sellable, placeable curriculum.
type Course struct {
	ID               int64
	Title            string
	Slug             string
	ShortDescription string
	CoverImageURL    string
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
}

func (c *Course) IsDeleted() bool { return c.DeletedAt != nil }

// CoursePlacement puts a course on a grade+subject shelf. Order is unique
// within a shelf; the published flag controls learner visibility.
type CoursePlacement struct {
	ID           int64
	GradeLevelID int64
	SubjectID    int64
	CourseID     int64
	SortOrder    int
	IsPublished  bool
	PublishedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

func (p *CoursePlacement) IsDeleted() bool { return p.DeletedAt != nil }

// Module groups lessons inside a course. Sequential modules force learners
// through lessons in order.
type Module struct {
	ID           int64
	CourseID     int64
	Title        string
	SortOrder    int
	IsSequential bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

func (m *Module) IsDeleted() bool { return m.DeletedAt != nil }

// LessonType distinguishes how a lesson is consumed.
type LessonType string

const (
	LessonTypeLecture    LessonType = "lecture"
	LessonTypePractice   LessonType = "practice"
	LessonTypeAssessment LessonType = "assessment"
)

func (lt LessonType) Valid() bool {
	switch lt {
	case LessonTypeLecture, LessonTypePractice, LessonTypeAssessment:
		return true
	}
	return false
}

// Lesson is one teachable unit inside a module.
type Lesson struct {
	ID          int64
	ModuleID    int64
	Title       string
	SortOrder   int
	Type        LessonType
	IsPublished bool
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

func (l *Lesson) IsDeleted() bool { return l.DeletedAt != nil }

// BlockType enumerates the renderable block kinds inside a lesson.
type BlockType string

const (
	BlockTypeVideo     BlockType = "video"
	BlockTypeAnimation BlockType = "animation"
	BlockTypeText      BlockType = "text"
	BlockTypeQuiz      BlockType = "quiz"
	BlockTypeVisual    BlockType = "visual"
	BlockTypeFile      BlockType = "file"
)

func (bt BlockType) Valid() bool {
	switch bt {
	case BlockTypeVideo, BlockTypeAnimation, BlockTypeText, BlockTypeQuiz, BlockTypeVisual, BlockTypeFile:
		return true
	}
	return false
}

// ContentBlock is a typed payload inside a lesson. The payload schema depends
// on the block type and is stored as JSONB.
type ContentBlock struct {
	ID        int64
	LessonID  int64
	Type      BlockType
	SortOrder int
	Payload   json.RawMessage
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

func (b *ContentBlock) IsDeleted() bool { return b.DeletedAt != nil }
