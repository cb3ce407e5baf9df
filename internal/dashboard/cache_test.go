package dashboard

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLevelCache(t *testing.T) *LevelCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewLevelCache(client, time.Minute)
}

func TestLevelCacheRoundTrip(t *testing.T) {
	cache := newTestLevelCache(t)
	ctx := context.Background()

	_, ok := cache.Get(ctx, 7, "content.course")
	require.False(t, ok)

	cache.Set(ctx, 7, "content.course", LevelWrite, cache.Snapshot(ctx))

	level, ok := cache.Get(ctx, 7, "content.course")
	require.True(t, ok)
	require.Equal(t, LevelWrite, level)

	// Other users and codes stay cold.
	_, ok = cache.Get(ctx, 8, "content.course")
	require.False(t, ok)
	_, ok = cache.Get(ctx, 7, "users.view")
	require.False(t, ok)
}

func TestLevelCacheBumpInvalidatesEverything(t *testing.T) {
	cache := newTestLevelCache(t)
	ctx := context.Background()

	cache.Set(ctx, 7, "content.course", LevelWrite, cache.Snapshot(ctx))
	cache.Set(ctx, 9, "users.view", LevelRead, cache.Snapshot(ctx))

	require.NoError(t, cache.Bump(ctx))

	_, ok := cache.Get(ctx, 7, "content.course")
	require.False(t, ok)
	_, ok = cache.Get(ctx, 9, "users.view")
	require.False(t, ok)

	// The cache keeps working under the new version.
	cache.Set(ctx, 7, "content.course", LevelRead, cache.Snapshot(ctx))
	level, ok := cache.Get(ctx, 7, "content.course")
	require.True(t, ok)
	require.Equal(t, LevelRead, level)
}

func TestLevelCacheSetUnderBumpedVersionIsUnreadable(t *testing.T) {
	cache := newTestLevelCache(t)
	ctx := context.Background()

	// A version captured before a bump must not produce a readable entry.
	version := cache.Snapshot(ctx)
	require.NoError(t, cache.Bump(ctx))
	cache.Set(ctx, 7, "content.course", LevelWrite, version)

	_, ok := cache.Get(ctx, 7, "content.course")
	require.False(t, ok)
}

func TestLevelCacheNilIsNoop(t *testing.T) {
	var cache *LevelCache
	ctx := context.Background()

	_, ok := cache.Get(ctx, 1, "content.course")
	require.False(t, ok)
	require.Zero(t, cache.Snapshot(ctx))
	cache.Set(ctx, 1, "content.course", LevelAdmin, 1)
	require.NoError(t, cache.Bump(ctx))
}

func TestServiceUsesCacheAndBumpsOnMutation(t *testing.T) {
	repo := newMemoryRepo()
	perm := fixture(t, repo, "content.course", LevelRead)
	cache := newTestLevelCache(t)
	svc := NewService(repo, testLogger(), WithLevelCache(cache))
	ctx := context.Background()

	level, err := svc.ResolveLevel(ctx, testPrincipal{id: 1}, "content.course")
	require.NoError(t, err)
	require.Equal(t, LevelRead, level)

	// Second resolve is served from cache even if the store goes away.
	repo.failErr = context.DeadlineExceeded
	level, err = svc.ResolveLevel(ctx, testPrincipal{id: 1}, "content.course")
	require.NoError(t, err)
	require.Equal(t, LevelRead, level)
	repo.failErr = nil

	// A grant mutation bumps the version, so the next resolve sees it.
	role, err := repo.InsertRole(ctx, Role{Name: "Escalated", Slug: "escalated", IsActive: true})
	require.NoError(t, err)
	_, err = svc.UpsertGrant(ctx, testPrincipal{id: 99, super: true}, role.ID, perm.ID, LevelAdmin)
	require.NoError(t, err)
	_, err = svc.AssignMembership(ctx, testPrincipal{id: 99, super: true}, 1, role.ID)
	require.NoError(t, err)

	level, err = svc.ResolveLevel(ctx, testPrincipal{id: 1}, "content.course")
	require.NoError(t, err)
	require.Equal(t, LevelAdmin, level)
}

// interleavingRepo runs a hook right after the resolver's grant read, before
// the resolver can publish to the cache.
type interleavingRepo struct {
	*memoryRepo
	afterMaxGrantLevel func()
}

func (r *interleavingRepo) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return fn(ctx, r)
}

func (r *interleavingRepo) MaxGrantLevel(ctx context.Context, userID, permissionID int64) (Level, error) {
	level, err := r.memoryRepo.MaxGrantLevel(ctx, userID, permissionID)
	if hook := r.afterMaxGrantLevel; hook != nil {
		r.afterMaxGrantLevel = nil
		hook()
	}
	return level, err
}

func TestResolveLevelDoesNotCacheStaleLevelAcrossMutation(t *testing.T) {
	mem := newMemoryRepo()
	perm := fixture(t, mem, "content.course", LevelRead)
	repo := &interleavingRepo{memoryRepo: mem}
	cache := newTestLevelCache(t)
	svc := NewService(repo, testLogger(), WithLevelCache(cache))
	ctx := context.Background()
	admin := testPrincipal{id: 99, super: true}

	var roleID int64
	for _, g := range mem.grants {
		roleID = g.RoleID
	}

	// Escalate the grant to ADMIN after the resolver has read READ from the
	// store but before it writes to the cache. The mutation bumps the cache
	// version, so the READ result must land on a dead key.
	repo.afterMaxGrantLevel = func() {
		_, err := svc.UpsertGrant(ctx, admin, roleID, perm.ID, LevelAdmin)
		require.NoError(t, err)
	}

	level, err := svc.ResolveLevel(ctx, testPrincipal{id: 1}, "content.course")
	require.NoError(t, err)
	require.Equal(t, LevelRead, level)

	// The next resolution must see the escalation, not the stale READ.
	level, err = svc.ResolveLevel(ctx, testPrincipal{id: 1}, "content.course")
	require.NoError(t, err)
	require.Equal(t, LevelAdmin, level)
}
