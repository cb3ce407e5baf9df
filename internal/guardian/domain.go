package guardian

import (
	"errors"
	"time"
)

// ErrInvalidTransition is returned when a status change is requested that the
// relationship lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid relationship transition")

// RelationshipStatus tracks the lifecycle of a parent-student link.
// pending moves to active or rejected, active moves to revoked. rejected and
// revoked are terminal; a fresh link requires a new request after the old row
// is soft deleted.
type RelationshipStatus string

const (
	StatusPending  RelationshipStatus = "pending"
	StatusActive   RelationshipStatus = "active"
	StatusRejected RelationshipStatus = "rejected"
	StatusRevoked  RelationshipStatus = "revoked"
)

// CanTransition reports whether moving to next is a legal lifecycle step.
func (s RelationshipStatus) CanTransition(next RelationshipStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusActive || next == StatusRejected
	case StatusActive:
		return next == StatusRevoked
	default:
		return false
	}
}

// Terminal reports whether no further transitions are possible.
func (s RelationshipStatus) Terminal() bool {
	return s == StatusRejected || s == StatusRevoked
}

// Relationship links a parent account to a student account. The pair is
// unique among live rows. Flags scope what the parent may see once the link
// is active.
type Relationship struct {
	ID        int64              `json:"id"`
	ParentID  int64              `json:"parent_id"`
	StudentID int64              `json:"student_id"`
	Relation  string             `json:"relation"`
	Status    RelationshipStatus `json:"status"`

	CanViewProgress    bool `json:"can_view_progress"`
	CanReceiveReports  bool `json:"can_receive_reports"`
	CanViewAssessments bool `json:"can_view_assessments"`

	RequestedBy int64      `json:"requested_by"`
	RequestedAt time.Time  `json:"requested_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-"`
}

// IsDeleted reports whether the relationship has been soft deleted.
func (r Relationship) IsDeleted() bool { return r.DeletedAt != nil }
