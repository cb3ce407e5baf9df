package dashboard

import "time"

// Permission is a single capability in the admin dashboard, identified by a
// stable code such as "content.course" or "purchases.refund". Codes are never
// repurposed; retired capabilities are deactivated instead.
type Permission struct {
	ID          int64
	Code        string
	Name        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
}

// Role is a named bundle of permission grants, e.g. "Content Admin".
// System roles are provisioned by the seeder and must not be edited casually.
type Role struct {
	ID           int64
	Name         string
	Slug         string
	IsSystemRole bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// Grant assigns a permission at a level to a role. At most one live grant
// exists per (role, permission) pair; re-granting updates the level in place.
type Grant struct {
	ID           int64
	RoleID       int64
	PermissionID int64
	Level        Level
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// Membership links a user to a role. At most one live membership exists per
// (user, role) pair. Inactive memberships keep their row but contribute
// nothing to resolution.
type Membership struct {
	ID        int64
	UserID    int64
	RoleID    int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// IsDeleted reports whether the permission is soft-deleted.
func (p Permission) IsDeleted() bool { return p.DeletedAt != nil }

// IsDeleted reports whether the role is soft-deleted.
func (r Role) IsDeleted() bool { return r.DeletedAt != nil }

// IsDeleted reports whether the grant is soft-deleted.
func (g Grant) IsDeleted() bool { return g.DeletedAt != nil }

// IsDeleted reports whether the membership is soft-deleted.
func (m Membership) IsDeleted() bool { return m.DeletedAt != nil }
