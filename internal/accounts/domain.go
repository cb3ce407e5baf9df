package accounts

import "time"

// PlatformRole classifies what a user is on the learning platform. It is
// orthogonal to dashboard roles: a teacher may additionally hold dashboard
// memberships, a student never does.
type PlatformRole string

const (
	RoleStudent PlatformRole = "student"
	RoleParent  PlatformRole = "parent"
	RoleTeacher PlatformRole = "teacher"
	RoleAdmin   PlatformRole = "admin"
)

// Valid reports whether the role is one of the known platform roles.
func (r PlatformRole) Valid() bool {
	switch r {
	case RoleStudent, RoleParent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

// User is a platform account. The phone number is the login identifier.
type User struct {
	ID           int64
	Phone        string
	Email        string
	FullName     string
	PasswordHash string
	IsActive     bool
	IsStaff      bool
	IsSuperuser  bool
	Roles        []PlatformRole
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// GetID implements shared.Principal.
func (u *User) GetID() int64 { return u.ID }

// IsSuperUser implements shared.Principal.
func (u *User) IsSuperUser() bool { return u.IsSuperuser }

// IsDeleted reports whether the user row is soft-deleted.
func (u *User) IsDeleted() bool { return u.DeletedAt != nil }

// HasRole reports whether the user carries the given platform role.
func (u *User) HasRole(role PlatformRole) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// StudentProfile carries student-specific attributes, one row per user.
type StudentProfile struct {
	ID         int64
	UserID     int64
	GradeLabel string
	SchoolName string
	BirthDate  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

// ParentProfile carries parent-specific attributes.
type ParentProfile struct {
	ID         int64
	UserID     int64
	Occupation string
	Address    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

// TeacherProfile carries teacher-specific attributes.
type TeacherProfile struct {
	ID        int64
	UserID    int64
	Bio       string
	Expertise string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}
