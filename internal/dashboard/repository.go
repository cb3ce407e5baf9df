package dashboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pathshala-edu/pathshala/internal/platform/db"
	"github.com/pathshala-edu/pathshala/internal/shared"
)

// ErrRoleInUse blocks hard deletion of a role still referenced by active
// memberships. Deleting it silently would orphan delegated access.
var ErrRoleInUse = errors.New("dashboard: role has active memberships")

// Repository provides PostgreSQL backed persistence for the dashboard RBAC
// tables. WithTx yields a Repository bound to a repeatable-read transaction so
// multi-statement reads observe one snapshot.
//
// Listing methods come in Active/All pairs: Active views hide soft-deleted
// rows, All views include them for restore and audit tooling.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	ActivePermissionByCode(ctx context.Context, code string) (Permission, error)
	MaxGrantLevel(ctx context.Context, userID, permissionID int64) (Level, error)

	PermissionByCodeAny(ctx context.Context, code string) (Permission, error)
	InsertPermission(ctx context.Context, p Permission) (Permission, error)
	UpdatePermission(ctx context.Context, p Permission) error
	RestorePermission(ctx context.Context, id int64) error
	SoftDeletePermission(ctx context.Context, id int64) error
	ListActivePermissions(ctx context.Context) ([]Permission, error)
	ListAllPermissions(ctx context.Context) ([]Permission, error)

	RoleByID(ctx context.Context, id int64) (Role, error)
	RoleBySlugAny(ctx context.Context, slug string) (Role, error)
	InsertRole(ctx context.Context, r Role) (Role, error)
	UpdateRole(ctx context.Context, r Role) error
	RestoreRole(ctx context.Context, id int64) error
	SoftDeleteRole(ctx context.Context, id int64) error
	HardDeleteRole(ctx context.Context, id int64) error
	ListActiveRoles(ctx context.Context) ([]Role, error)
	ListAllRoles(ctx context.Context) ([]Role, error)
	CountActiveMemberships(ctx context.Context, roleID int64) (int, error)

	GrantByRolePermissionAny(ctx context.Context, roleID, permissionID int64) (Grant, error)
	InsertGrant(ctx context.Context, g Grant) (Grant, error)
	UpdateGrantLevel(ctx context.Context, id int64, level Level) error
	RestoreGrant(ctx context.Context, id int64) error
	SoftDeleteGrant(ctx context.Context, id int64) error
	ListActiveGrantsForRole(ctx context.Context, roleID int64) ([]Grant, error)

	MembershipByUserRoleAny(ctx context.Context, userID, roleID int64) (Membership, error)
	InsertMembership(ctx context.Context, m Membership) (Membership, error)
	SetMembershipActive(ctx context.Context, id int64, active bool) error
	RestoreMembership(ctx context.Context, id int64) error
	SoftDeleteMembership(ctx context.Context, id int64) error
	ListActiveMembershipsForUser(ctx context.Context, userID int64) ([]Membership, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db   dbtx
	pool *pgxpool.Pool
}

// NewRepository constructs a repository backed by the provided pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const permissionColumns = `id, code, name, description, is_active, created_at, updated_at, deleted_at`

func scanPermission(row pgx.Row) (Permission, error) {
	var p Permission
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.IsActive, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, shared.ErrNotFound
		}
		return Permission{}, err
	}
	return p, nil
}

// ActivePermissionByCode returns the live, active permission for a code.
// Unknown, deactivated and soft-deleted codes all come back as ErrNotFound so
// resolution fails closed on every one of them.
func (r *repository) ActivePermissionByCode(ctx context.Context, code string) (Permission, error) {
	row := r.db.QueryRow(ctx, `SELECT `+permissionColumns+` FROM admin_permissions WHERE code = $1 AND is_active AND deleted_at IS NULL`, code)
	return scanPermission(row)
}

// MaxGrantLevel aggregates the user's effective level for a permission over
// all grants whose grant, role and membership rows are simultaneously live:
// the grant not soft-deleted, the role active and not soft-deleted, and the
// membership active and not soft-deleted.
func (r *repository) MaxGrantLevel(ctx context.Context, userID, permissionID int64) (Level, error) {
	var level int
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(MAX(rp.level), 0)
		FROM admin_role_permissions rp
		JOIN admin_roles ro ON ro.id = rp.role_id
		JOIN admin_memberships m ON m.role_id = ro.id
		WHERE rp.permission_id = $1
		  AND rp.deleted_at IS NULL
		  AND ro.is_active AND ro.deleted_at IS NULL
		  AND m.user_id = $2
		  AND m.is_active AND m.deleted_at IS NULL`, permissionID, userID).Scan(&level)
	if err != nil {
		return LevelNone, err
	}
	return Level(level), nil
}

func (r *repository) PermissionByCodeAny(ctx context.Context, code string) (Permission, error) {
	row := r.db.QueryRow(ctx, `SELECT `+permissionColumns+` FROM admin_permissions WHERE code = $1`, code)
	return scanPermission(row)
}

func (r *repository) InsertPermission(ctx context.Context, p Permission) (Permission, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO admin_permissions (code, name, description, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING `+permissionColumns, p.Code, p.Name, p.Description, p.IsActive)
	created, err := scanPermission(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Permission{}, shared.ErrDuplicate
		}
		return Permission{}, err
	}
	return created, nil
}

func (r *repository) UpdatePermission(ctx context.Context, p Permission) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE admin_permissions SET name = $2, description = $3, is_active = $4, updated_at = NOW()
		WHERE id = $1`, p.ID, p.Name, p.Description, p.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) RestorePermission(ctx context.Context, id int64) error {
	return r.setDeleted(ctx, "admin_permissions", id, false)
}

func (r *repository) SoftDeletePermission(ctx context.Context, id int64) error {
	return r.setDeleted(ctx, "admin_permissions", id, true)
}

func (r *repository) ListActivePermissions(ctx context.Context) ([]Permission, error) {
	return r.listPermissions(ctx, `SELECT `+permissionColumns+` FROM admin_permissions WHERE deleted_at IS NULL ORDER BY code`)
}

func (r *repository) ListAllPermissions(ctx context.Context) ([]Permission, error) {
	return r.listPermissions(ctx, `SELECT `+permissionColumns+` FROM admin_permissions ORDER BY code`)
}

func (r *repository) listPermissions(ctx context.Context, query string) ([]Permission, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Description, &p.IsActive, &p.CreatedAt, &p.UpdatedAt, &p.DeletedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

const roleColumns = `id, name, slug, is_system_role, is_active, created_at, updated_at, deleted_at`

func scanRole(row pgx.Row) (Role, error) {
	var ro Role
	err := row.Scan(&ro.ID, &ro.Name, &ro.Slug, &ro.IsSystemRole, &ro.IsActive, &ro.CreatedAt, &ro.UpdatedAt, &ro.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, shared.ErrNotFound
		}
		return Role{}, err
	}
	return ro, nil
}

func (r *repository) RoleByID(ctx context.Context, id int64) (Role, error) {
	row := r.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM admin_roles WHERE id = $1`, id)
	return scanRole(row)
}

func (r *repository) RoleBySlugAny(ctx context.Context, slug string) (Role, error) {
	row := r.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM admin_roles WHERE slug = $1`, slug)
	return scanRole(row)
}

func (r *repository) InsertRole(ctx context.Context, ro Role) (Role, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO admin_roles (name, slug, is_system_role, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING `+roleColumns, ro.Name, ro.Slug, ro.IsSystemRole, ro.IsActive)
	created, err := scanRole(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Role{}, shared.ErrDuplicate
		}
		return Role{}, err
	}
	return created, nil
}

func (r *repository) UpdateRole(ctx context.Context, ro Role) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE admin_roles SET name = $2, is_system_role = $3, is_active = $4, updated_at = NOW()
		WHERE id = $1`, ro.ID, ro.Name, ro.IsSystemRole, ro.IsActive)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) RestoreRole(ctx context.Context, id int64) error {
	return r.setDeleted(ctx, "admin_roles", id, false)
}

func (r *repository) SoftDeleteRole(ctx context.Context, id int64) error {
	return r.setDeleted(ctx, "admin_roles", id, true)
}

// HardDeleteRole permanently removes a role and cascades its grants. Roles
// still referenced by active memberships are protected.
func (r *repository) HardDeleteRole(ctx context.Context, id int64) error {
	count, err := r.CountActiveMemberships(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrRoleInUse
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM admin_role_permissions WHERE role_id = $1`, id); err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM admin_roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) ListActiveRoles(ctx context.Context) ([]Role, error) {
	return r.listRoles(ctx, `SELECT `+roleColumns+` FROM admin_roles WHERE deleted_at IS NULL ORDER BY name`)
}

func (r *repository) ListAllRoles(ctx context.Context) ([]Role, error) {
	return r.listRoles(ctx, `SELECT `+roleColumns+` FROM admin_roles ORDER BY name`)
}

func (r *repository) listRoles(ctx context.Context, query string) ([]Role, error) {
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var ro Role
		if err := rows.Scan(&ro.ID, &ro.Name, &ro.Slug, &ro.IsSystemRole, &ro.IsActive, &ro.CreatedAt, &ro.UpdatedAt, &ro.DeletedAt); err != nil {
			return nil, err
		}
		roles = append(roles, ro)
	}
	return roles, rows.Err()
}

func (r *repository) CountActiveMemberships(ctx context.Context, roleID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM admin_memberships
		WHERE role_id = $1 AND is_active AND deleted_at IS NULL`, roleID).Scan(&count)
	return count, err
}

const grantColumns = `id, role_id, permission_id, level, created_at, updated_at, deleted_at`

func scanGrant(row pgx.Row) (Grant, error) {
	var g Grant
	var level int
	err := row.Scan(&g.ID, &g.RoleID, &g.PermissionID, &level, &g.CreatedAt, &g.UpdatedAt, &g.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Grant{}, shared.ErrNotFound
		}
		return Grant{}, err
	}
	g.Level = Level(level)
	return g, nil
}

func (r *repository) GrantByRolePermissionAny(ctx context.Context, roleID, permissionID int64) (Grant, error) {
	row := r.db.QueryRow(ctx, `SELECT `+grantColumns+` FROM admin_role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	return scanGrant(row)
}

func (r *repository) InsertGrant(ctx context.Context, g Grant) (Grant, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO admin_role_permissions (role_id, permission_id, level, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING `+grantColumns, g.RoleID, g.PermissionID, int(g.Level))
	created, err := scanGrant(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Grant{}, shared.ErrDuplicate
		}
		return Grant{}, err
	}
	return created, nil
}

func (r *repository) UpdateGrantLevel(ctx context.Context, id int64, level Level) error {
	tag, err := r.db.Exec(ctx, `UPDATE admin_role_permissions SET level = $2, updated_at = NOW() WHERE id = $1`, id, int(level))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) RestoreGrant(ctx context.Context, id int64) error {
	return r.setDeleted(ctx, "admin_role_permissions", id, false)
}

func (r *repository) SoftDeleteGrant(ctx context.Context, id int64) error {
	return r.setDeleted(ctx, "admin_role_permissions", id, true)
}

func (r *repository) ListActiveGrantsForRole(ctx context.Context, roleID int64) ([]Grant, error) {
	rows, err := r.db.Query(ctx, `SELECT `+grantColumns+` FROM admin_role_permissions WHERE role_id = $1 AND deleted_at IS NULL ORDER BY permission_id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		var g Grant
		var level int
		if err := rows.Scan(&g.ID, &g.RoleID, &g.PermissionID, &level, &g.CreatedAt, &g.UpdatedAt, &g.DeletedAt); err != nil {
			return nil, err
		}
		g.Level = Level(level)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

const membershipColumns = `id, user_id, role_id, is_active, created_at, updated_at, deleted_at`

func scanMembership(row pgx.Row) (Membership, error) {
	var m Membership
	err := row.Scan(&m.ID, &m.UserID, &m.RoleID, &m.IsActive, &m.CreatedAt, &m.UpdatedAt, &m.DeletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Membership{}, shared.ErrNotFound
		}
		return Membership{}, err
	}
	return m, nil
}

func (r *repository) MembershipByUserRoleAny(ctx context.Context, userID, roleID int64) (Membership, error) {
	row := r.db.QueryRow(ctx, `SELECT `+membershipColumns+` FROM admin_memberships WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return scanMembership(row)
}

func (r *repository) InsertMembership(ctx context.Context, m Membership) (Membership, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO admin_memberships (user_id, role_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING `+membershipColumns, m.UserID, m.RoleID, m.IsActive)
	created, err := scanMembership(row)
	if err != nil {
		if isUniqueViolation(err) {
			return Membership{}, shared.ErrDuplicate
		}
		return Membership{}, err
	}
	return created, nil
}

func (r *repository) SetMembershipActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE admin_memberships SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) RestoreMembership(ctx context.Context, id int64) error {
	return r.setDeleted(ctx, "admin_memberships", id, false)
}

func (r *repository) SoftDeleteMembership(ctx context.Context, id int64) error {
	return r.setDeleted(ctx, "admin_memberships", id, true)
}

func (r *repository) ListActiveMembershipsForUser(ctx context.Context, userID int64) ([]Membership, error) {
	rows, err := r.db.Query(ctx, `SELECT `+membershipColumns+` FROM admin_memberships WHERE user_id = $1 AND deleted_at IS NULL ORDER BY role_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []Membership
	for rows.Next() {
		var m Membership
		if err := rows.Scan(&m.ID, &m.UserID, &m.RoleID, &m.IsActive, &m.CreatedAt, &m.UpdatedAt, &m.DeletedAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// setDeleted flips the soft-delete marker on any of the four RBAC tables.
func (r *repository) setDeleted(ctx context.Context, table string, id int64, deleted bool) error {
	var query string
	if deleted {
		query = fmt.Sprintf(`UPDATE %s SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, table)
	} else {
		query = fmt.Sprintf(`UPDATE %s SET deleted_at = NULL, updated_at = NOW() WHERE id = $1 AND deleted_at IS NOT NULL`, table)
	}
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
