package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pathshala-edu/pathshala/internal/shared"
)

// RepositoryPort defines data access methods the service needs.
type RepositoryPort interface {
	UserByID(ctx context.Context, id int64) (User, error)
	ActiveUserByPhone(ctx context.Context, phone string) (User, error)
	InsertUser(ctx context.Context, u User) (User, error)
	UpdateUser(ctx context.Context, u User) error
	SetUserActive(ctx context.Context, id int64, active bool) error
	SoftDeleteUser(ctx context.Context, id int64) error
	SearchUsers(ctx context.Context, query string, limit, offset int) ([]User, error)
	CountUsers(ctx context.Context, query string) (int, error)
	AddPlatformRole(ctx context.Context, userID int64, role PlatformRole) error
	RemovePlatformRole(ctx context.Context, userID int64, role PlatformRole) error
	UpsertStudentProfile(ctx context.Context, p StudentProfile) (StudentProfile, error)
	UpsertParentProfile(ctx context.Context, p ParentProfile) (ParentProfile, error)
	UpsertTeacherProfile(ctx context.Context, p TeacherProfile) (TeacherProfile, error)
	StudentProfileByUser(ctx context.Context, userID int64) (StudentProfile, error)
	ParentProfileByUser(ctx context.Context, userID int64) (ParentProfile, error)
	TeacherProfileByUser(ctx context.Context, userID int64) (TeacherProfile, error)
}

// dummyHash is a valid bcrypt digest compared against when the phone lookup
// misses, so both failure paths cost one bcrypt verification.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Service handles account business logic.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// CreateUserInput describes a new account.
type CreateUserInput struct {
	Phone    string       `json:"phone" validate:"required,max=20"`
	Email    string       `json:"email" validate:"omitempty,email"`
	FullName string       `json:"full_name" validate:"required,max=120"`
	Password string       `json:"password" validate:"required,min=8"`
	Role     PlatformRole `json:"role" validate:"required"`
	IsStaff  bool         `json:"is_staff"`
}

// CreateUser registers an account with a hashed password and its platform
// role row.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (User, error) {
	if !input.Role.Valid() {
		return User{}, fmt.Errorf("accounts: unknown platform role %q", input.Role)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("accounts: hash password: %w", err)
	}
	user, err := s.repo.InsertUser(ctx, User{
		Phone:        strings.TrimSpace(input.Phone),
		Email:        strings.TrimSpace(input.Email),
		FullName:     strings.TrimSpace(input.FullName),
		PasswordHash: string(hash),
		IsActive:     true,
		IsStaff:      input.IsStaff,
	})
	if err != nil {
		return User{}, err
	}
	if err := s.repo.AddPlatformRole(ctx, user.ID, input.Role); err != nil {
		return User{}, err
	}
	user.Roles = []PlatformRole{input.Role}
	s.logger.Info("user created", slog.Int64("user_id", user.ID), slog.String("role", string(input.Role)))
	return user, nil
}

// Authenticate verifies phone+password against the active user row. Every
// failure mode returns the same ErrInvalidCredentials so callers cannot probe
// which accounts exist.
func (s *Service) Authenticate(ctx context.Context, phone, password string) (User, error) {
	user, err := s.repo.ActiveUserByPhone(ctx, strings.TrimSpace(phone))
	if err != nil {
		// Equalise timing between unknown-phone and wrong-password paths.
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

// GetUser returns a live user by id.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.UserByID(ctx, id)
}

// SearchUsers returns a paginated active-view listing.
func (s *Service) SearchUsers(ctx context.Context, query string, page, perPage int) ([]User, shared.Pagination, error) {
	total, err := s.repo.CountUsers(ctx, query)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	pagination := shared.NewPagination(page, perPage, total)
	users, err := s.repo.SearchUsers(ctx, query, pagination.PerPage, pagination.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return users, pagination, nil
}

// AssignPlatformRole adds a platform role to a user.
func (s *Service) AssignPlatformRole(ctx context.Context, userID int64, role PlatformRole) error {
	if !role.Valid() {
		return fmt.Errorf("accounts: unknown platform role %q", role)
	}
	if _, err := s.repo.UserByID(ctx, userID); err != nil {
		return err
	}
	return s.repo.AddPlatformRole(ctx, userID, role)
}

// RemovePlatformRole removes a platform role from a user.
func (s *Service) RemovePlatformRole(ctx context.Context, userID int64, role PlatformRole) error {
	return s.repo.RemovePlatformRole(ctx, userID, role)
}

// Deactivate flips the account inactive; sessions die at next token check.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	return s.repo.SetUserActive(ctx, id, false)
}

// Reactivate flips the account back to active.
func (s *Service) Reactivate(ctx context.Context, id int64) error {
	return s.repo.SetUserActive(ctx, id, true)
}

// Delete soft-deletes the account.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.SoftDeleteUser(ctx, id)
}

// SaveStudentProfile upserts the one student profile row of a user.
func (s *Service) SaveStudentProfile(ctx context.Context, p StudentProfile) (StudentProfile, error) {
	return s.repo.UpsertStudentProfile(ctx, p)
}

// SaveParentProfile upserts the one parent profile row of a user.
func (s *Service) SaveParentProfile(ctx context.Context, p ParentProfile) (ParentProfile, error) {
	return s.repo.UpsertParentProfile(ctx, p)
}

// SaveTeacherProfile upserts the one teacher profile row of a user.
func (s *Service) SaveTeacherProfile(ctx context.Context, p TeacherProfile) (TeacherProfile, error) {
	return s.repo.UpsertTeacherProfile(ctx, p)
}

// StudentProfile returns the live student profile of a user.
func (s *Service) StudentProfile(ctx context.Context, userID int64) (StudentProfile, error) {
	return s.repo.StudentProfileByUser(ctx, userID)
}

// ParentProfile returns the live parent profile of a user.
func (s *Service) ParentProfile(ctx context.Context, userID int64) (ParentProfile, error) {
	return s.repo.ParentProfileByUser(ctx, userID)
}

// TeacherProfile returns the live teacher profile of a user.
func (s *Service) TeacherProfile(ctx context.Context, userID int64) (TeacherProfile, error) {
	return s.repo.TeacherProfileByUser(ctx, userID)
}
