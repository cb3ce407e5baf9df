package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/pathshala-edu/pathshala/internal/shared"
)

// AuditPort records admin mutations for the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements permission resolution and the administrative surface
// over the four RBAC tables.
type Service struct {
	repo            Repository
	cache           *LevelCache
	audit           AuditPort
	logger          *slog.Logger
	logUnknownCodes bool
	group           singleflight.Group
}

// ServiceOption customises Service construction.
type ServiceOption func(*Service)

// WithLevelCache attaches the resolved-level cache.
func WithLevelCache(cache *LevelCache) ServiceOption {
	return func(s *Service) { s.cache = cache }
}

// WithAudit attaches the audit recorder.
func WithAudit(audit AuditPort) ServiceOption {
	return func(s *Service) { s.audit = audit }
}

// WithUnknownCodeLogging enables a warning log whenever resolution sees a
// permission code missing from the catalog. Off by default: an unknown code
// is a caller bug surfaced through monitoring, not a request blocker.
func WithUnknownCodeLogging() ServiceOption {
	return func(s *Service) { s.logUnknownCodes = true }
}

// NewService constructs the dashboard service.
func NewService(repo Repository, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{repo: repo, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ResolveLevel computes the highest level the principal holds for a
// permission code.
//
// The superuser branch is a break-glass mechanism: it short-circuits before
// any catalog lookup, so a superuser resolves to LevelAdmin even for codes
// that do not exist. Every other path fails closed: anonymous callers and
// unknown or deactivated codes resolve to LevelNone.
//
// Store failures are reported as shared.ErrUnavailable, never as LevelNone,
// so callers can tell an outage from a legitimate denial.
func (s *Service) ResolveLevel(ctx context.Context, principal shared.Principal, code string) (Level, error) {
	if principal == nil {
		return LevelNone, nil
	}
	if principal.IsSuperUser() {
		return LevelAdmin, nil
	}

	userID := principal.GetID()
	if level, ok := s.cache.Get(ctx, userID, code); ok {
		return level, nil
	}

	// Concurrent misses for the same user and code collapse into one lookup.
	key := strconv.FormatInt(userID, 10) + ":" + code
	resolved, err, _ := s.group.Do(key, func() (any, error) {
		// The cache version is captured before the store read. A mutation
		// committing after this point bumps the version, so the write below
		// cannot publish a pre-mutation level under a reachable key.
		version := s.cache.Snapshot(ctx)
		var level Level
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
			perm, err := tx.ActivePermissionByCode(ctx, code)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					if s.logUnknownCodes && s.logger != nil {
						s.logger.Warn("unknown permission code in resolution", slog.String("code", code))
					}
					level = LevelNone
					return nil
				}
				return err
			}
			level, err = tx.MaxGrantLevel(ctx, userID, perm.ID)
			return err
		})
		if err != nil {
			return LevelNone, err
		}
		s.cache.Set(ctx, userID, code, level, version)
		return level, nil
	})
	if err != nil {
		return LevelNone, fmt.Errorf("dashboard: resolve level for %q: %w: %v", code, shared.ErrUnavailable, err)
	}
	return resolved.(Level), nil
}

// Authorized reports whether the principal's effective level meets the
// minimum. An empty permission code always denies: it means the protected
// operation forgot to declare its requirement.
func (s *Service) Authorized(ctx context.Context, principal shared.Principal, code string, min Level) (bool, error) {
	if strings.TrimSpace(code) == "" {
		return false, nil
	}
	level, err := s.ResolveLevel(ctx, principal, code)
	if err != nil {
		return false, err
	}
	return level.Satisfies(min), nil
}

// CreatePermissionInput describes a new catalog entry.
type CreatePermissionInput struct {
	Code        string `validate:"required,max=80"`
	Name        string `validate:"required,max=120"`
	Description string `validate:"max=255"`
}

// CreatePermission adds a capability to the catalog.
func (s *Service) CreatePermission(ctx context.Context, actor shared.Principal, input CreatePermissionInput) (Permission, error) {
	input.Code = strings.TrimSpace(input.Code)
	if input.Code == "" {
		return Permission{}, fmt.Errorf("dashboard: permission code required")
	}
	perm, err := s.repo.InsertPermission(ctx, Permission{
		Code:        input.Code,
		Name:        strings.TrimSpace(input.Name),
		Description: strings.TrimSpace(input.Description),
		IsActive:    true,
	})
	if err != nil {
		return Permission{}, err
	}
	s.recordAudit(ctx, actor, "permission.create", "admin_permission", perm.ID, map[string]any{"code": perm.Code})
	return perm, nil
}

// UpdatePermission corrects name, description and active flag. The code is
// immutable: codes are deactivated, never repurposed.
func (s *Service) UpdatePermission(ctx context.Context, actor shared.Principal, perm Permission) error {
	if err := s.repo.UpdatePermission(ctx, perm); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actor, "permission.update", "admin_permission", perm.ID, map[string]any{"is_active": perm.IsActive})
	return nil
}

// DeactivatePermission soft-deletes a catalog entry. Resolution treats the
// code as unknown from this point on.
func (s *Service) DeactivatePermission(ctx context.Context, actor shared.Principal, id int64) error {
	if err := s.repo.SoftDeletePermission(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actor, "permission.delete", "admin_permission", id, nil)
	return nil
}

// RestorePermission clears the soft-delete marker.
func (s *Service) RestorePermission(ctx context.Context, actor shared.Principal, id int64) error {
	if err := s.repo.RestorePermission(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actor, "permission.restore", "admin_permission", id, nil)
	return nil
}

// ListPermissions returns catalog entries; includeDeleted switches between
// the active and the all view.
func (s *Service) ListPermissions(ctx context.Context, includeDeleted bool) ([]Permission, error) {
	if includeDeleted {
		return s.repo.ListAllPermissions(ctx)
	}
	return s.repo.ListActivePermissions(ctx)
}

// CreateRoleInput describes a new role.
type CreateRoleInput struct {
	Name string `validate:"required,max=80"`
	Slug string `validate:"max=80"`
}

// CreateRole adds a non-system role.
func (s *Service) CreateRole(ctx context.Context, actor shared.Principal, input CreateRoleInput) (Role, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Role{}, fmt.Errorf("dashboard: role name required")
	}
	slug := strings.TrimSpace(input.Slug)
	if slug == "" {
		slug = shared.Slugify(name)
	}
	role, err := s.repo.InsertRole(ctx, Role{Name: name, Slug: slug, IsActive: true})
	if err != nil {
		return Role{}, err
	}
	s.recordAudit(ctx, actor, "role.create", "admin_role", role.ID, map[string]any{"slug": role.Slug})
	return role, nil
}

// UpdateRole corrects name and active flag. System roles keep their flag.
func (s *Service) UpdateRole(ctx context.Context, actor shared.Principal, role Role) error {
	current, err := s.repo.RoleByID(ctx, role.ID)
	if err != nil {
		return err
	}
	role.IsSystemRole = current.IsSystemRole
	if err := s.repo.UpdateRole(ctx, role); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actor, "role.update", "admin_role", role.ID, map[string]any{"is_active": role.IsActive})
	return nil
}

// DeactivateRole soft-deletes a role; its grants stop contributing to
// resolution until it is restored.
func (s *Service) DeactivateRole(ctx context.Context, actor shared.Principal, id int64) error {
	if err := s.repo.SoftDeleteRole(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actor, "role.delete", "admin_role", id, nil)
	return nil
}

// RestoreRole clears the soft-delete marker.
func (s *Service) RestoreRole(ctx context.Context, actor shared.Principal, id int64) error {
	if err := s.repo.RestoreRole(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actor, "role.restore", "admin_role", id, nil)
	return nil
}

// PurgeRole permanently removes a soft-deleted role and its grants.
// Reserved for cleanup tooling; blocked while active memberships remain.
func (s *Service) PurgeRole(ctx context.Context, actor shared.Principal, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		return tx.HardDeleteRole(ctx, id)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actor, "role.purge", "admin_role", id, nil)
	return nil
}

// ListRoles returns roles; includeDeleted switches between views.
func (s *Service) ListRoles(ctx context.Context, includeDeleted bool) ([]Role, error) {
	if includeDeleted {
		return s.repo.ListAllRoles(ctx)
	}
	return s.repo.ListActiveRoles(ctx)
}

// RoleGrants returns the live grants of a role.
func (s *Service) RoleGrants(ctx context.Context, roleID int64) ([]Grant, error) {
	return s.repo.ListActiveGrantsForRole(ctx, roleID)
}

// UpsertGrant sets the level for a (role, permission) pair, creating,
// restoring or correcting the single live grant row. Two concurrent calls
// for the same pair cannot both insert: the loser of the uniqueness race
// retries as an update.
func (s *Service) UpsertGrant(ctx context.Context, actor shared.Principal, roleID, permissionID int64, level Level) (Grant, error) {
	if !level.Valid() {
		return Grant{}, fmt.Errorf("dashboard: invalid level %d", int(level))
	}
	var grant Grant
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		var err error
		grant, err = upsertGrant(ctx, tx, roleID, permissionID, level)
		return err
	})
	if err != nil {
		return Grant{}, err
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actor, "grant.upsert", "admin_role_permission", grant.ID, map[string]any{
		"role_id": roleID, "permission_id": permissionID, "level": level.String(),
	})
	return grant, nil
}

// upsertGrant is shared between the admin surface and the seeder.
func upsertGrant(ctx context.Context, tx Repository, roleID, permissionID int64, level Level) (Grant, error) {
	grant, err := tx.GrantByRolePermissionAny(ctx, roleID, permissionID)
	if errors.Is(err, shared.ErrNotFound) {
		grant, err = tx.InsertGrant(ctx, Grant{RoleID: roleID, PermissionID: permissionID, Level: level})
		if errors.Is(err, shared.ErrDuplicate) {
			// Lost the race against a concurrent insert: fall through to update.
			grant, err = tx.GrantByRolePermissionAny(ctx, roleID, permissionID)
		}
	}
	if err != nil {
		return Grant{}, err
	}
	if grant.IsDeleted() {
		if err := tx.RestoreGrant(ctx, grant.ID); err != nil {
			return Grant{}, err
		}
		grant.DeletedAt = nil
	}
	if grant.Level != level {
		if err := tx.UpdateGrantLevel(ctx, grant.ID, level); err != nil {
			return Grant{}, err
		}
		grant.Level = level
	}
	return grant, nil
}

// RevokeGrant soft-deletes the grant for a (role, permission) pair.
func (s *Service) RevokeGrant(ctx context.Context, actor shared.Principal, roleID, permissionID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		grant, err := tx.GrantByRolePermissionAny(ctx, roleID, permissionID)
		if err != nil {
			return err
		}
		if grant.IsDeleted() {
			return nil
		}
		return tx.SoftDeleteGrant(ctx, grant.ID)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actor, "grant.revoke", "admin_role_permission", roleID, map[string]any{"permission_id": permissionID})
	return nil
}

// AssignMembership gives a user a role, creating, restoring or reactivating
// the single live (user, role) row.
func (s *Service) AssignMembership(ctx context.Context, actor shared.Principal, userID, roleID int64) (Membership, error) {
	var member Membership
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		var err error
		member, err = tx.MembershipByUserRoleAny(ctx, userID, roleID)
		if errors.Is(err, shared.ErrNotFound) {
			member, err = tx.InsertMembership(ctx, Membership{UserID: userID, RoleID: roleID, IsActive: true})
			if errors.Is(err, shared.ErrDuplicate) {
				member, err = tx.MembershipByUserRoleAny(ctx, userID, roleID)
			}
		}
		if err != nil {
			return err
		}
		if member.IsDeleted() {
			if err := tx.RestoreMembership(ctx, member.ID); err != nil {
				return err
			}
			member.DeletedAt = nil
		}
		if !member.IsActive {
			if err := tx.SetMembershipActive(ctx, member.ID, true); err != nil {
				return err
			}
			member.IsActive = true
		}
		return nil
	})
	if err != nil {
		return Membership{}, err
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actor, "membership.assign", "admin_membership", member.ID, map[string]any{"user_id": userID, "role_id": roleID})
	return member, nil
}

// DeactivateMembership keeps the row but stops it contributing to resolution.
func (s *Service) DeactivateMembership(ctx context.Context, actor shared.Principal, userID, roleID int64) error {
	return s.membershipMutation(ctx, actor, userID, roleID, "membership.deactivate", func(ctx context.Context, tx Repository, m Membership) error {
		if !m.IsActive {
			return nil
		}
		return tx.SetMembershipActive(ctx, m.ID, false)
	})
}

// RevokeMembership soft-deletes the (user, role) row.
func (s *Service) RevokeMembership(ctx context.Context, actor shared.Principal, userID, roleID int64) error {
	return s.membershipMutation(ctx, actor, userID, roleID, "membership.revoke", func(ctx context.Context, tx Repository, m Membership) error {
		if m.IsDeleted() {
			return nil
		}
		return tx.SoftDeleteMembership(ctx, m.ID)
	})
}

func (s *Service) membershipMutation(ctx context.Context, actor shared.Principal, userID, roleID int64, action string, fn func(context.Context, Repository, Membership) error) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		member, err := tx.MembershipByUserRoleAny(ctx, userID, roleID)
		if err != nil {
			return err
		}
		return fn(ctx, tx, member)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	s.recordAudit(ctx, actor, action, "admin_membership", userID, map[string]any{"role_id": roleID})
	return nil
}

// UserMemberships lists a user's undeleted memberships, deactivated rows
// included so the admin surface can offer reactivation. Callers deciding
// access must check IsActive themselves.
func (s *Service) UserMemberships(ctx context.Context, userID int64) ([]Membership, error) {
	return s.repo.ListActiveMembershipsForUser(ctx, userID)
}

// invalidate bumps the level cache after any mutation. A failed bump is
// logged loudly: a stale cache here means stale authorization answers.
func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Error("level cache invalidation failed", slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Principal, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	var actorID int64
	if actor != nil {
		actorID = actor.GetID()
	}
	log := shared.AuditLog{ActorID: actorID, Action: action, Entity: entity, EntityID: strconv.FormatInt(entityID, 10), Meta: meta}
	if err := s.audit.Record(ctx, log); err != nil && s.logger != nil {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
