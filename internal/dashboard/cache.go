package dashboard

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const levelCacheVersionKey = "rbac:version"

// LevelCache memoises resolved levels in Redis. Every grant, membership, role
// or permission mutation bumps a global version, so stale entries become
// unreachable immediately (staleness bound zero). A nil cache disables
// memoisation entirely.
type LevelCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLevelCache instantiates the cache helper.
func NewLevelCache(client *redis.Client, ttl time.Duration) *LevelCache {
	return &LevelCache{client: client, ttl: ttl}
}

func (c *LevelCache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, levelCacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, levelCacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func levelKey(version, userID int64, code string) string {
	return fmt.Sprintf("rbac:level:%d:%d:%s", version, userID, code)
}

// Snapshot returns the version a resolution must publish under. The caller
// captures it before reading the store; if a mutation bumps the version in
// between, the write lands on a key no reader can reach instead of
// resurrecting the pre-mutation level. Zero means the cache is unusable
// and disables the write.
func (c *LevelCache) Snapshot(ctx context.Context) int64 {
	if c == nil || c.client == nil {
		return 0
	}
	ver, err := c.version(ctx)
	if err != nil {
		return 0
	}
	return ver
}

// Get returns the cached level for (user, code) when present. Cache failures
// degrade to a miss: the caller falls through to the store.
func (c *LevelCache) Get(ctx context.Context, userID int64, code string) (Level, bool) {
	if c == nil || c.client == nil {
		return LevelNone, false
	}
	ver, err := c.version(ctx)
	if err != nil {
		return LevelNone, false
	}
	raw, err := c.client.Get(ctx, levelKey(ver, userID, code)).Result()
	if err != nil {
		return LevelNone, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return LevelNone, false
	}
	return Level(n), true
}

// Set stores a resolved level under the version captured by Snapshot before
// the store read. Writes under version zero are dropped.
func (c *LevelCache) Set(ctx context.Context, userID int64, code string, level Level, version int64) {
	if c == nil || c.client == nil || version == 0 {
		return
	}
	_ = c.client.Set(ctx, levelKey(version, userID, code), strconv.Itoa(int(level)), c.ttl).Err()
}

// Bump invalidates every cached level by advancing the global version.
// It must be called synchronously from any mutation touching the grant,
// membership, role or permission tables.
func (c *LevelCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, levelCacheVersionKey).Err()
}
