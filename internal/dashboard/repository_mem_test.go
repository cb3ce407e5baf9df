package dashboard

import (
	"context"
	"time"

	"github.com/pathshala-edu/pathshala/internal/shared"
)

// memoryRepo is an in-memory Repository used by service and seeder tests.
// Uniqueness and soft-delete semantics mirror the SQL implementation.
type memoryRepo struct {
	perms   map[int64]*Permission
	roles   map[int64]*Role
	grants  map[int64]*Grant
	members map[int64]*Membership
	nextID  int64

	// failErr, when set, makes every lookup fail to simulate an outage.
	failErr error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		perms:   make(map[int64]*Permission),
		roles:   make(map[int64]*Role),
		grants:  make(map[int64]*Grant),
		members: make(map[int64]*Membership),
	}
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.failErr != nil {
		return r.failErr
	}
	return fn(ctx, r)
}

func (r *memoryRepo) ActivePermissionByCode(ctx context.Context, code string) (Permission, error) {
	if r.failErr != nil {
		return Permission{}, r.failErr
	}
	for _, p := range r.perms {
		if p.Code == code && p.IsActive && p.DeletedAt == nil {
			return *p, nil
		}
	}
	return Permission{}, errNotFound()
}

func (r *memoryRepo) MaxGrantLevel(ctx context.Context, userID, permissionID int64) (Level, error) {
	if r.failErr != nil {
		return LevelNone, r.failErr
	}
	max := LevelNone
	for _, g := range r.grants {
		if g.PermissionID != permissionID || g.DeletedAt != nil {
			continue
		}
		role, ok := r.roles[g.RoleID]
		if !ok || !role.IsActive || role.DeletedAt != nil {
			continue
		}
		for _, m := range r.members {
			if m.UserID == userID && m.RoleID == role.ID && m.IsActive && m.DeletedAt == nil {
				max = MaxLevel(max, g.Level)
			}
		}
	}
	return max, nil
}

func (r *memoryRepo) PermissionByCodeAny(ctx context.Context, code string) (Permission, error) {
	for _, p := range r.perms {
		if p.Code == code {
			return *p, nil
		}
	}
	return Permission{}, errNotFound()
}

func (r *memoryRepo) InsertPermission(ctx context.Context, p Permission) (Permission, error) {
	for _, existing := range r.perms {
		if existing.Code == p.Code {
			return Permission{}, errDuplicate()
		}
	}
	p.ID = r.id()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.perms[p.ID] = &p
	return p, nil
}

func (r *memoryRepo) UpdatePermission(ctx context.Context, p Permission) error {
	existing, ok := r.perms[p.ID]
	if !ok {
		return errNotFound()
	}
	existing.Name = p.Name
	existing.Description = p.Description
	existing.IsActive = p.IsActive
	existing.UpdatedAt = time.Now()
	return nil
}

func (r *memoryRepo) RestorePermission(ctx context.Context, id int64) error {
	p, ok := r.perms[id]
	if !ok || p.DeletedAt == nil {
		return errNotFound()
	}
	p.DeletedAt = nil
	return nil
}

func (r *memoryRepo) SoftDeletePermission(ctx context.Context, id int64) error {
	p, ok := r.perms[id]
	if !ok || p.DeletedAt != nil {
		return errNotFound()
	}
	now := time.Now()
	p.DeletedAt = &now
	return nil
}

func (r *memoryRepo) ListActivePermissions(ctx context.Context) ([]Permission, error) {
	var out []Permission
	for _, p := range r.perms {
		if p.DeletedAt == nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListAllPermissions(ctx context.Context) ([]Permission, error) {
	var out []Permission
	for _, p := range r.perms {
		out = append(out, *p)
	}
	return out, nil
}

func (r *memoryRepo) RoleByID(ctx context.Context, id int64) (Role, error) {
	ro, ok := r.roles[id]
	if !ok {
		return Role{}, errNotFound()
	}
	return *ro, nil
}

func (r *memoryRepo) RoleBySlugAny(ctx context.Context, slug string) (Role, error) {
	for _, ro := range r.roles {
		if ro.Slug == slug {
			return *ro, nil
		}
	}
	return Role{}, errNotFound()
}

func (r *memoryRepo) InsertRole(ctx context.Context, ro Role) (Role, error) {
	for _, existing := range r.roles {
		if existing.Slug == ro.Slug || existing.Name == ro.Name {
			return Role{}, errDuplicate()
		}
	}
	ro.ID = r.id()
	ro.CreatedAt = time.Now()
	ro.UpdatedAt = ro.CreatedAt
	r.roles[ro.ID] = &ro
	return ro, nil
}

func (r *memoryRepo) UpdateRole(ctx context.Context, ro Role) error {
	existing, ok := r.roles[ro.ID]
	if !ok {
		return errNotFound()
	}
	existing.Name = ro.Name
	existing.IsSystemRole = ro.IsSystemRole
	existing.IsActive = ro.IsActive
	existing.UpdatedAt = time.Now()
	return nil
}

func (r *memoryRepo) RestoreRole(ctx context.Context, id int64) error {
	ro, ok := r.roles[id]
	if !ok || ro.DeletedAt == nil {
		return errNotFound()
	}
	ro.DeletedAt = nil
	return nil
}

func (r *memoryRepo) SoftDeleteRole(ctx context.Context, id int64) error {
	ro, ok := r.roles[id]
	if !ok || ro.DeletedAt != nil {
		return errNotFound()
	}
	now := time.Now()
	ro.DeletedAt = &now
	return nil
}

func (r *memoryRepo) HardDeleteRole(ctx context.Context, id int64) error {
	if _, ok := r.roles[id]; !ok {
		return errNotFound()
	}
	count, _ := r.CountActiveMemberships(ctx, id)
	if count > 0 {
		return ErrRoleInUse
	}
	for gid, g := range r.grants {
		if g.RoleID == id {
			delete(r.grants, gid)
		}
	}
	delete(r.roles, id)
	return nil
}

func (r *memoryRepo) ListActiveRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	for _, ro := range r.roles {
		if ro.DeletedAt == nil {
			out = append(out, *ro)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListAllRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	for _, ro := range r.roles {
		out = append(out, *ro)
	}
	return out, nil
}

func (r *memoryRepo) CountActiveMemberships(ctx context.Context, roleID int64) (int, error) {
	count := 0
	for _, m := range r.members {
		if m.RoleID == roleID && m.IsActive && m.DeletedAt == nil {
			count++
		}
	}
	return count, nil
}

func (r *memoryRepo) GrantByRolePermissionAny(ctx context.Context, roleID, permissionID int64) (Grant, error) {
	for _, g := range r.grants {
		if g.RoleID == roleID && g.PermissionID == permissionID {
			return *g, nil
		}
	}
	return Grant{}, errNotFound()
}

func (r *memoryRepo) InsertGrant(ctx context.Context, g Grant) (Grant, error) {
	for _, existing := range r.grants {
		if existing.RoleID == g.RoleID && existing.PermissionID == g.PermissionID {
			return Grant{}, errDuplicate()
		}
	}
	g.ID = r.id()
	g.CreatedAt = time.Now()
	g.UpdatedAt = g.CreatedAt
	r.grants[g.ID] = &g
	return g, nil
}

func (r *memoryRepo) UpdateGrantLevel(ctx context.Context, id int64, level Level) error {
	g, ok := r.grants[id]
	if !ok {
		return errNotFound()
	}
	g.Level = level
	g.UpdatedAt = time.Now()
	return nil
}

func (r *memoryRepo) RestoreGrant(ctx context.Context, id int64) error {
	g, ok := r.grants[id]
	if !ok || g.DeletedAt == nil {
		return errNotFound()
	}
	g.DeletedAt = nil
	return nil
}

func (r *memoryRepo) SoftDeleteGrant(ctx context.Context, id int64) error {
	g, ok := r.grants[id]
	if !ok || g.DeletedAt != nil {
		return errNotFound()
	}
	now := time.Now()
	g.DeletedAt = &now
	return nil
}

func (r *memoryRepo) ListActiveGrantsForRole(ctx context.Context, roleID int64) ([]Grant, error) {
	var out []Grant
	for _, g := range r.grants {
		if g.RoleID == roleID && g.DeletedAt == nil {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (r *memoryRepo) MembershipByUserRoleAny(ctx context.Context, userID, roleID int64) (Membership, error) {
	for _, m := range r.members {
		if m.UserID == userID && m.RoleID == roleID {
			return *m, nil
		}
	}
	return Membership{}, errNotFound()
}

func (r *memoryRepo) InsertMembership(ctx context.Context, m Membership) (Membership, error) {
	for _, existing := range r.members {
		if existing.UserID == m.UserID && existing.RoleID == m.RoleID {
			return Membership{}, errDuplicate()
		}
	}
	m.ID = r.id()
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	r.members[m.ID] = &m
	return m, nil
}

func (r *memoryRepo) SetMembershipActive(ctx context.Context, id int64, active bool) error {
	m, ok := r.members[id]
	if !ok {
		return errNotFound()
	}
	m.IsActive = active
	m.UpdatedAt = time.Now()
	return nil
}

func (r *memoryRepo) RestoreMembership(ctx context.Context, id int64) error {
	m, ok := r.members[id]
	if !ok || m.DeletedAt == nil {
		return errNotFound()
	}
	m.DeletedAt = nil
	return nil
}

func (r *memoryRepo) SoftDeleteMembership(ctx context.Context, id int64) error {
	m, ok := r.members[id]
	if !ok || m.DeletedAt != nil {
		return errNotFound()
	}
	now := time.Now()
	m.DeletedAt = &now
	return nil
}

func (r *memoryRepo) ListActiveMembershipsForUser(ctx context.Context, userID int64) ([]Membership, error) {
	var out []Membership
	for _, m := range r.members {
		if m.UserID == userID && m.DeletedAt == nil {
			out = append(out, *m)
		}
	}
	return out, nil
}

func errNotFound() error  { return shared.ErrNotFound }
func errDuplicate() error { return shared.ErrDuplicate }
