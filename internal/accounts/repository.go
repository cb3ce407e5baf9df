package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pathshala-edu/pathshala/internal/shared"
)

// Repository provides PostgreSQL backed persistence for accounts.
type Repository interface {
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
	PlatformRoles(ctx context.Context, userID int64) ([]PlatformRole, error)

	UpsertStudentProfile(ctx context.Context, p StudentProfile) (StudentProfile, error)
	UpsertParentProfile(ctx context.Context, p ParentProfile) (ParentProfile, error)
	UpsertTeacherProfile(ctx context.Context, p TeacherProfile) (TeacherProfile, error)
	StudentProfileByUser(ctx context.Context, userID int64) (StudentProfile, error)
	ParentProfileByUser(ctx context.Context, userID int64) (ParentProfile, error)
	TeacherProfileByUser(ctx context.Context, userID int64) (TeacherProfile, error)
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

const userColumns = `id, phone, email, full_name, password_hash, is_active, is_staff, is_superuser, created_at, updated_at, deleted_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Phone, &u.Email, &u.FullName, &u.PasswordHash,
		&u.IsActive, &u.IsStaff, &u.IsSuperuser, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, shared.ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

func (r *repository) UserByID(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id))
	if err != nil {
		return User{}, err
	}
	u.Roles, err = r.PlatformRoles(ctx, u.ID)
	return u, err
}

// ActiveUserByPhone is the credential lookup. Inactive and soft-deleted rows
// are invisible here so they cannot log in.
func (r *repository) ActiveUserByPhone(ctx context.Context, phone string) (User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone = $1 AND is_active AND deleted_at IS NULL`, phone))
	if err != nil {
		return User{}, err
	}
	u.Roles, err = r.PlatformRoles(ctx, u.ID)
	return u, err
}

func (r *repository) InsertUser(ctx context.Context, u User) (User, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO users (phone, email, full_name, password_hash, is_active, is_staff, is_superuser)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		u.Phone, u.Email, u.FullName, u.PasswordHash, u.IsActive, u.IsStaff, u.IsSuperuser,
	).Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return User{}, fmt.Errorf("accounts: user %s: %w", u.Phone, shared.ErrDuplicate)
		}
		return User{}, err
	}
	return u, nil
}

func (r *repository) UpdateUser(ctx context.Context, u User) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET email = $2, full_name = $3, password_hash = $4, is_staff = $5, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		u.ID, u.Email, u.FullName, u.PasswordHash, u.IsStaff)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) SetUserActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET is_active = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) SoftDeleteUser(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SearchUsers matches phone, email or name, active view only.
func (r *repository) SearchUsers(ctx context.Context, query string, limit, offset int) ([]User, error) {
	pattern := "%" + strings.TrimSpace(query) + "%"
	rows, err := r.db.Query(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE deleted_at IS NULL
		  AND (phone ILIKE $1 OR email ILIKE $1 OR full_name ILIKE $1)
		ORDER BY id
		LIMIT $2 OFFSET $3`, pattern, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *repository) CountUsers(ctx context.Context, query string) (int, error) {
	pattern := "%" + strings.TrimSpace(query) + "%"
	var total int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM users
		WHERE deleted_at IS NULL
		  AND (phone ILIKE $1 OR email ILIKE $1 OR full_name ILIKE $1)`, pattern).Scan(&total)
	return total, err
}

func (r *repository) AddPlatformRole(ctx context.Context, userID int64, role PlatformRole) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
		ON CONFLICT (user_id, role) DO NOTHING`, userID, string(role))
	return err
}

func (r *repository) RemovePlatformRole(ctx context.Context, userID int64, role PlatformRole) error {
	_, err := r.db.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role = $2`, userID, string(role))
	return err
}

func (r *repository) PlatformRoles(ctx context.Context, userID int64) ([]PlatformRole, error) {
	rows, err := r.db.Query(ctx, `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []PlatformRole
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, PlatformRole(role))
	}
	return roles, rows.Err()
}

func (r *repository) UpsertStudentProfile(ctx context.Context, p StudentProfile) (StudentProfile, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO student_profiles (user_id, grade_label, school_name, birth_date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET grade_label = EXCLUDED.grade_label, school_name = EXCLUDED.school_name,
		    birth_date = EXCLUDED.birth_date, deleted_at = NULL, updated_at = now()
		RETURNING id, created_at, updated_at`,
		p.UserID, p.GradeLabel, p.SchoolName, p.BirthDate,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repository) UpsertParentProfile(ctx context.Context, p ParentProfile) (ParentProfile, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO parent_profiles (user_id, occupation, address)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET occupation = EXCLUDED.occupation, address = EXCLUDED.address,
		    deleted_at = NULL, updated_at = now()
		RETURNING id, created_at, updated_at`,
		p.UserID, p.Occupation, p.Address,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repository) UpsertTeacherProfile(ctx context.Context, p TeacherProfile) (TeacherProfile, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO teacher_profiles (user_id, bio, expertise)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET bio = EXCLUDED.bio, expertise = EXCLUDED.expertise,
		    deleted_at = NULL, updated_at = now()
		RETURNING id, created_at, updated_at`,
		p.UserID, p.Bio, p.Expertise,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *repository) StudentProfileByUser(ctx context.Context, userID int64) (StudentProfile, error) {
	var p StudentProfile
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, grade_label, school_name, birth_date, created_at, updated_at, deleted_at
		FROM student_profiles WHERE user_id = $1 AND deleted_at IS NULL`, userID,
	).Scan(&p.ID, &p.UserID, &p.GradeLabel, &p.SchoolName, &p.BirthDate, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return StudentProfile{}, shared.ErrNotFound
	}
	return p, err
}

func (r *repository) ParentProfileByUser(ctx context.Context, userID int64) (ParentProfile, error) {
	var p ParentProfile
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, occupation, address, created_at, updated_at, deleted_at
		FROM parent_profiles WHERE user_id = $1 AND deleted_at IS NULL`, userID,
	).Scan(&p.ID, &p.UserID, &p.Occupation, &p.Address, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ParentProfile{}, shared.ErrNotFound
	}
	return p, err
}

func (r *repository) TeacherProfileByUser(ctx context.Context, userID int64) (TeacherProfile, error) {
	var p TeacherProfile
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, bio, expertise, created_at, updated_at, deleted_at
		FROM teacher_profiles WHERE user_id = $1 AND deleted_at IS NULL`, userID,
	).Scan(&p.ID, &p.UserID, &p.Bio, &p.Expertise, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return TeacherProfile{}, shared.ErrNotFound
	}
	return p, err
}
