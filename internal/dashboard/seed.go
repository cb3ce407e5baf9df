package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pathshala-edu/pathshala/internal/shared"
)

// WildcardCode in a role policy expands to every permission in the declared
// catalog at the given level.
const WildcardCode = "*"

// PermissionDef declares one catalog entry for seeding.
type PermissionDef struct {
	Code        string
	Name        string
	Description string
}

// RolePolicy declares a system role and its grants by permission code.
type RolePolicy struct {
	Name   string
	Slug   string
	Grants map[string]Level
}

// Seeder provisions the permission catalog and system roles. Running it any
// number of times converges on the same state: rows are created when absent,
// restored when soft-deleted and corrected when drifted, never deleted.
type Seeder struct {
	repo   Repository
	cache  *LevelCache
	logger *slog.Logger
}

// NewSeeder constructs a Seeder. The cache may be nil.
func NewSeeder(repo Repository, cache *LevelCache, logger *slog.Logger) *Seeder {
	return &Seeder{repo: repo, cache: cache, logger: logger}
}

// Run seeds the declared permissions and role policies inside one
// transaction. Policy entries referencing unknown permission codes are
// skipped with a warning; the rest of the run proceeds.
func (s *Seeder) Run(ctx context.Context, perms []PermissionDef, policies []RolePolicy) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		permsByCode, err := s.seedPermissions(ctx, tx, perms)
		if err != nil {
			return err
		}
		return s.seedRoles(ctx, tx, policies, permsByCode)
	})
	if err != nil {
		return fmt.Errorf("dashboard: seed: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
			s.logger.Warn("seed cache invalidation failed", slog.Any("error", err))
		}
	}
	return nil
}

func (s *Seeder) seedPermissions(ctx context.Context, tx Repository, perms []PermissionDef) (map[string]Permission, error) {
	permsByCode := make(map[string]Permission, len(perms))
	for _, def := range perms {
		perm, err := tx.PermissionByCodeAny(ctx, def.Code)
		if errors.Is(err, shared.ErrNotFound) {
			perm, err = tx.InsertPermission(ctx, Permission{
				Code:        def.Code,
				Name:        def.Name,
				Description: def.Description,
				IsActive:    true,
			})
			if err != nil {
				return nil, fmt.Errorf("insert permission %s: %w", def.Code, err)
			}
			permsByCode[def.Code] = perm
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load permission %s: %w", def.Code, err)
		}
		if perm.IsDeleted() {
			if err := tx.RestorePermission(ctx, perm.ID); err != nil {
				return nil, fmt.Errorf("restore permission %s: %w", def.Code, err)
			}
			perm.DeletedAt = nil
		}
		if perm.Name != def.Name || perm.Description != def.Description || !perm.IsActive {
			perm.Name = def.Name
			perm.Description = def.Description
			perm.IsActive = true
			if err := tx.UpdatePermission(ctx, perm); err != nil {
				return nil, fmt.Errorf("update permission %s: %w", def.Code, err)
			}
		}
		permsByCode[def.Code] = perm
	}
	if s.logger != nil {
		s.logger.Info("permission catalog ready", slog.Int("count", len(permsByCode)))
	}
	return permsByCode, nil
}

func (s *Seeder) seedRoles(ctx context.Context, tx Repository, policies []RolePolicy, permsByCode map[string]Permission) error {
	for _, policy := range policies {
		role, err := tx.RoleBySlugAny(ctx, policy.Slug)
		if errors.Is(err, shared.ErrNotFound) {
			role, err = tx.InsertRole(ctx, Role{
				Name:         policy.Name,
				Slug:         policy.Slug,
				IsSystemRole: true,
				IsActive:     true,
			})
		}
		if err != nil {
			return fmt.Errorf("role %s: %w", policy.Slug, err)
		}
		if role.IsDeleted() {
			if err := tx.RestoreRole(ctx, role.ID); err != nil {
				return fmt.Errorf("restore role %s: %w", policy.Slug, err)
			}
			role.DeletedAt = nil
		}
		if role.Name != policy.Name || !role.IsSystemRole || !role.IsActive {
			role.Name = policy.Name
			role.IsSystemRole = true
			role.IsActive = true
			if err := tx.UpdateRole(ctx, role); err != nil {
				return fmt.Errorf("update role %s: %w", policy.Slug, err)
			}
		}

		for code, level := range expandPolicy(policy.Grants, permsByCode) {
			perm, ok := permsByCode[code]
			if !ok {
				if s.logger != nil {
					s.logger.Warn("policy references unknown permission code",
						slog.String("role", policy.Slug), slog.String("code", code))
				}
				continue
			}
			if _, err := upsertGrant(ctx, tx, role.ID, perm.ID, level); err != nil {
				return fmt.Errorf("grant %s:%s: %w", policy.Slug, code, err)
			}
		}
	}
	if s.logger != nil {
		s.logger.Info("system roles seeded", slog.Int("count", len(policies)))
	}
	return nil
}

// expandPolicy resolves the wildcard entry against the loaded catalog.
// Expansion is two-phase by construction: the catalog is fully seeded before
// any policy is expanded, so the wildcard covers permissions declared in the
// same run.
func expandPolicy(grants map[string]Level, permsByCode map[string]Permission) map[string]Level {
	level, ok := grants[WildcardCode]
	if !ok {
		return grants
	}
	expanded := make(map[string]Level, len(permsByCode))
	for code := range permsByCode {
		expanded[code] = level
	}
	// Explicit entries override the wildcard.
	for code, lv := range grants {
		if code == WildcardCode {
			continue
		}
		expanded[code] = lv
	}
	return expanded
}

// DefaultPermissions is the dashboard capability catalog.
func DefaultPermissions() []PermissionDef {
	return []PermissionDef{
		{PermAdminRoles, "Manage Roles & Admin Members", "Create roles, assign/remove admin members"},

		{PermContentGrade, "Manage Grades", "CRUD grade levels"},
		{PermContentSubject, "Manage Subjects", "CRUD subjects"},
		{PermContentCourse, "Manage Courses", "CRUD courses"},
		{PermContentPlacement, "Manage Course Placement", "Place courses into grade+subject shelves"},
		{PermContentModule, "Manage Modules", "CRUD modules"},
		{PermContentLesson, "Manage Lessons", "CRUD lessons"},
		{PermContentBlock, "Manage Content Blocks", "CRUD lesson content blocks"},
		{PermContentPublish, "Publish Content", "Publish/unpublish content"},

		{PermUsersView, "View Users", "Search and view users"},
		{PermRelationshipsView, "View Parent-Student Links", "View guardian relationships"},
		{PermEnrollmentsManage, "Manage Enrollments", "Grant/revoke/extend enrollments"},

		{PermPurchasesView, "View Purchases", "View payment and orders"},
		{PermPurchasesRefund, "Refund Purchases", "Issue refunds / reversals"},
	}
}

// SystemRolePolicies is the fixed set of bootstrap-provisioned roles.
func SystemRolePolicies() []RolePolicy {
	return []RolePolicy{
		{
			Name: "Super Admin",
			Slug: "super-admin",
			Grants: map[string]Level{
				WildcardCode: LevelAdmin,
			},
		},
		{
			Name: "Content Admin",
			Slug: "content-admin",
			Grants: map[string]Level{
				PermContentGrade:     LevelWrite,
				PermContentSubject:   LevelWrite,
				PermContentCourse:    LevelWrite,
				PermContentPlacement: LevelWrite,
				PermContentModule:    LevelWrite,
				PermContentLesson:    LevelWrite,
				PermContentBlock:     LevelWrite,
				PermContentPublish:   LevelWrite, // set LevelAdmin for strict publishing
			},
		},
		{
			Name: "Support Admin",
			Slug: "support-admin",
			Grants: map[string]Level{
				PermUsersView:         LevelRead,
				PermRelationshipsView: LevelRead,
				PermEnrollmentsManage: LevelWrite,
			},
		},
		{
			Name: "Finance Admin",
			Slug: "finance-admin",
			Grants: map[string]Level{
				PermPurchasesView:   LevelRead,
				PermPurchasesRefund: LevelAdmin,
			},
		},
	}
}
