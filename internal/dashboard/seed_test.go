package dashboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeedProvisionsCatalogAndRoles(t *testing.T) {
	repo := newMemoryRepo()
	seeder := NewSeeder(repo, nil, testLogger())
	ctx := context.Background()

	require.NoError(t, seeder.Run(ctx, DefaultPermissions(), SystemRolePolicies()))

	require.Len(t, repo.perms, len(DefaultPermissions()))
	require.Len(t, repo.roles, len(SystemRolePolicies()))
	for _, ro := range repo.roles {
		require.True(t, ro.IsSystemRole)
		require.True(t, ro.IsActive)
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	seeder := NewSeeder(repo, nil, testLogger())
	ctx := context.Background()

	require.NoError(t, seeder.Run(ctx, DefaultPermissions(), SystemRolePolicies()))
	permCount := len(repo.perms)
	roleCount := len(repo.roles)
	grantCount := len(repo.grants)
	levelsBefore := grantLevels(repo)

	require.NoError(t, seeder.Run(ctx, DefaultPermissions(), SystemRolePolicies()))

	require.Len(t, repo.perms, permCount)
	require.Len(t, repo.roles, roleCount)
	require.Len(t, repo.grants, grantCount)
	require.Equal(t, levelsBefore, grantLevels(repo))
}

func TestSeedWildcardFanOut(t *testing.T) {
	repo := newMemoryRepo()
	seeder := NewSeeder(repo, nil, testLogger())
	ctx := context.Background()

	perms := DefaultPermissions()
	require.NoError(t, seeder.Run(ctx, perms, SystemRolePolicies()))

	superAdmin, err := repo.RoleBySlugAny(ctx, "super-admin")
	require.NoError(t, err)
	grants, err := repo.ListActiveGrantsForRole(ctx, superAdmin.ID)
	require.NoError(t, err)
	require.Len(t, grants, len(perms))
	for _, g := range grants {
		require.Equal(t, LevelAdmin, g.Level)
	}
}

func TestSeedRestoresSoftDeletedRows(t *testing.T) {
	repo := newMemoryRepo()
	seeder := NewSeeder(repo, nil, testLogger())
	ctx := context.Background()

	require.NoError(t, seeder.Run(ctx, DefaultPermissions(), SystemRolePolicies()))

	perm, err := repo.PermissionByCodeAny(ctx, PermContentCourse)
	require.NoError(t, err)
	require.NoError(t, repo.SoftDeletePermission(ctx, perm.ID))
	role, err := repo.RoleBySlugAny(ctx, "content-admin")
	require.NoError(t, err)
	require.NoError(t, repo.SoftDeleteRole(ctx, role.ID))

	require.NoError(t, seeder.Run(ctx, DefaultPermissions(), SystemRolePolicies()))

	perm, err = repo.PermissionByCodeAny(ctx, PermContentCourse)
	require.NoError(t, err)
	require.False(t, perm.IsDeleted())
	role, err = repo.RoleBySlugAny(ctx, "content-admin")
	require.NoError(t, err)
	require.False(t, role.IsDeleted())
}

func TestSeedCorrectsDrift(t *testing.T) {
	repo := newMemoryRepo()
	seeder := NewSeeder(repo, nil, testLogger())
	ctx := context.Background()

	require.NoError(t, seeder.Run(ctx, DefaultPermissions(), SystemRolePolicies()))

	// Drift: someone bumped a grant level and renamed a permission.
	role, err := repo.RoleBySlugAny(ctx, "finance-admin")
	require.NoError(t, err)
	perm, err := repo.PermissionByCodeAny(ctx, PermPurchasesView)
	require.NoError(t, err)
	grant, err := repo.GrantByRolePermissionAny(ctx, role.ID, perm.ID)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateGrantLevel(ctx, grant.ID, LevelAdmin))
	perm.Name = "tampered"
	require.NoError(t, repo.UpdatePermission(ctx, perm))

	require.NoError(t, seeder.Run(ctx, DefaultPermissions(), SystemRolePolicies()))

	grant, err = repo.GrantByRolePermissionAny(ctx, role.ID, perm.ID)
	require.NoError(t, err)
	require.Equal(t, LevelRead, grant.Level)
	perm, err = repo.PermissionByCodeAny(ctx, PermPurchasesView)
	require.NoError(t, err)
	require.Equal(t, "View Purchases", perm.Name)
}

func TestSeedSkipsUnknownPolicyCode(t *testing.T) {
	repo := newMemoryRepo()
	seeder := NewSeeder(repo, nil, testLogger())
	ctx := context.Background()

	perms := []PermissionDef{{Code: "content.course", Name: "Courses"}}
	policies := []RolePolicy{{
		Name: "Mixed",
		Slug: "mixed",
		Grants: map[string]Level{
			"content.course":  LevelWrite,
			"no.such.code":    LevelAdmin,
			"another.missing": LevelRead,
		},
	}}

	// The malformed entries are skipped; the run still completes and the
	// valid grant lands.
	require.NoError(t, seeder.Run(ctx, perms, policies))

	role, err := repo.RoleBySlugAny(ctx, "mixed")
	require.NoError(t, err)
	grants, err := repo.ListActiveGrantsForRole(ctx, role.ID)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	require.Equal(t, LevelWrite, grants[0].Level)
}

func TestSeedNeverDeletesExtraGrants(t *testing.T) {
	repo := newMemoryRepo()
	seeder := NewSeeder(repo, nil, testLogger())
	ctx := context.Background()

	require.NoError(t, seeder.Run(ctx, DefaultPermissions(), SystemRolePolicies()))

	// An operator hand-granted something outside the declared policy.
	role, err := repo.RoleBySlugAny(ctx, "support-admin")
	require.NoError(t, err)
	perm, err := repo.PermissionByCodeAny(ctx, PermContentCourse)
	require.NoError(t, err)
	extra, err := repo.InsertGrant(ctx, Grant{RoleID: role.ID, PermissionID: perm.ID, Level: LevelRead})
	require.NoError(t, err)

	require.NoError(t, seeder.Run(ctx, DefaultPermissions(), SystemRolePolicies()))

	kept, err := repo.GrantByRolePermissionAny(ctx, role.ID, perm.ID)
	require.NoError(t, err)
	require.Equal(t, extra.ID, kept.ID)
	require.False(t, kept.IsDeleted())
}

func grantLevels(repo *memoryRepo) map[int64]Level {
	levels := make(map[int64]Level, len(repo.grants))
	for id, g := range repo.grants {
		levels[id] = g.Level
	}
	return levels
}
