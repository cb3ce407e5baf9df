package guardian

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pathshala-edu/pathshala/internal/accounts"
	"github.com/pathshala-edu/pathshala/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort = Repository

// UsersPort is the slice of the accounts service the linking workflow needs.
type UsersPort interface {
	GetUser(ctx context.Context, id int64) (accounts.User, error)
}

// Service runs the parent-student linking workflow.
type Service struct {
	repo   RepositoryPort
	users  UsersPort
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, users UsersPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, users: users, logger: logger}
}

// RequestLinkInput carries a new link request.
type RequestLinkInput struct {
	ParentID  int64  `json:"parent_id" validate:"required,gt=0"`
	StudentID int64  `json:"student_id" validate:"required,gt=0"`
	Relation  string `json:"relation" validate:"required,max=40"`

	CanViewProgress    bool `json:"can_view_progress"`
	CanReceiveReports  bool `json:"can_receive_reports"`
	CanViewAssessments bool `json:"can_view_assessments"`
}

// RequestLink opens a pending relationship between a parent and a student.
// Both accounts must be active and carry the matching platform role. A pair
// with a live pending or active row cannot be requested again.
func (s *Service) RequestLink(ctx context.Context, requestedBy int64, input RequestLinkInput) (Relationship, error) {
	if input.ParentID == input.StudentID {
		return Relationship{}, fmt.Errorf("guardian: self link: %w", shared.ErrDuplicate)
	}
	parent, err := s.users.GetUser(ctx, input.ParentID)
	if err != nil {
		return Relationship{}, fmt.Errorf("guardian: load parent: %w", err)
	}
	student, err := s.users.GetUser(ctx, input.StudentID)
	if err != nil {
		return Relationship{}, fmt.Errorf("guardian: load student: %w", err)
	}
	if !parent.IsActive || !parent.HasRole(accounts.RoleParent) {
		return Relationship{}, fmt.Errorf("guardian: user %d is not a parent: %w", input.ParentID, shared.ErrNotFound)
	}
	if !student.IsActive || !student.HasRole(accounts.RoleStudent) {
		return Relationship{}, fmt.Errorf("guardian: user %d is not a student: %w", input.StudentID, shared.ErrNotFound)
	}

	if _, err := s.repo.ActiveOrPendingByPair(ctx, input.ParentID, input.StudentID); err == nil {
		return Relationship{}, fmt.Errorf("guardian: pair already linked: %w", shared.ErrDuplicate)
	} else if !errors.Is(err, shared.ErrNotFound) {
		return Relationship{}, err
	}

	rel, err := s.repo.Insert(ctx, Relationship{
		ParentID:           input.ParentID,
		StudentID:          input.StudentID,
		Relation:           input.Relation,
		Status:             StatusPending,
		CanViewProgress:    input.CanViewProgress,
		CanReceiveReports:  input.CanReceiveReports,
		CanViewAssessments: input.CanViewAssessments,
		RequestedBy:        requestedBy,
	})
	if err != nil {
		return Relationship{}, err
	}
	s.logger.Info("guardian link requested",
		slog.Int64("relationship_id", rel.ID),
		slog.Int64("parent_id", rel.ParentID),
		slog.Int64("student_id", rel.StudentID))
	return rel, nil
}

// Approve moves a pending relationship to active.
func (s *Service) Approve(ctx context.Context, id int64) (Relationship, error) {
	return s.transition(ctx, id, StatusActive)
}

// Reject closes a pending relationship without activating it.
func (s *Service) Reject(ctx context.Context, id int64) (Relationship, error) {
	return s.transition(ctx, id, StatusRejected)
}

// Revoke ends an active relationship.
func (s *Service) Revoke(ctx context.Context, id int64) (Relationship, error) {
	return s.transition(ctx, id, StatusRevoked)
}

func (s *Service) transition(ctx context.Context, id int64, next RelationshipStatus) (Relationship, error) {
	rel, err := s.repo.ByID(ctx, id)
	if err != nil {
		return Relationship{}, err
	}
	if !rel.Status.CanTransition(next) {
		return Relationship{}, fmt.Errorf("guardian: %s to %s: %w", rel.Status, next, ErrInvalidTransition)
	}
	if err := s.repo.SetStatus(ctx, id, next); err != nil {
		return Relationship{}, err
	}
	s.logger.Info("guardian link transitioned",
		slog.Int64("relationship_id", id),
		slog.String("from", string(rel.Status)),
		slog.String("to", string(next)))
	return s.repo.ByID(ctx, id)
}

// UpdateFlags changes what an active relationship lets the parent see.
func (s *Service) UpdateFlags(ctx context.Context, id int64, viewProgress, receiveReports, viewAssessments bool) error {
	rel, err := s.repo.ByID(ctx, id)
	if err != nil {
		return err
	}
	if rel.Status != StatusActive {
		return fmt.Errorf("guardian: flags on %s relationship: %w", rel.Status, ErrInvalidTransition)
	}
	rel.CanViewProgress = viewProgress
	rel.CanReceiveReports = receiveReports
	rel.CanViewAssessments = viewAssessments
	return s.repo.UpdateFlags(ctx, rel)
}

// Remove soft deletes a relationship. A removed pair may request a new link.
func (s *Service) Remove(ctx context.Context, id int64) error {
	return s.repo.SoftDelete(ctx, id)
}

// Get returns a single live relationship.
func (s *Service) Get(ctx context.Context, id int64) (Relationship, error) {
	return s.repo.ByID(ctx, id)
}

// ForParent lists the live relationships a parent holds.
func (s *Service) ForParent(ctx context.Context, parentID int64) ([]Relationship, error) {
	return s.repo.ListForParent(ctx, parentID)
}

// ForStudent lists the live relationships attached to a student.
func (s *Service) ForStudent(ctx context.Context, studentID int64) ([]Relationship, error) {
	return s.repo.ListForStudent(ctx, studentID)
}

// List pages through relationships, optionally filtered by status.
func (s *Service) List(ctx context.Context, status RelationshipStatus, page, perPage int) ([]Relationship, shared.Pagination, error) {
	total, err := s.repo.Count(ctx, status)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	pagination := shared.NewPagination(page, perPage, total)
	rels, err := s.repo.List(ctx, status, pagination.PerPage, (pagination.Page-1)*pagination.PerPage)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return rels, pagination, nil
}
