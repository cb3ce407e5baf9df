package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/pathshala-edu/pathshala/internal/jobs"
)

// Purger hard-deletes rows that have sat soft deleted past the retention
// window. It is the only code path that removes rows; everything else in the
// application soft deletes.
type Purger struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewPurger constructs Purger instance. Metrics may be nil.
func NewPurger(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) *Purger {
	return &Purger{pool: pool, logger: logger, metrics: metrics}
}

// PurgeResult summarizes a purge run.
type PurgeResult struct {
	Deleted      map[string]int64
	SkippedRoles int64
}

// purgeOrder lists tables child-first so foreign keys never block a delete.
var purgeOrder = []string{
	"content_blocks",
	"lessons",
	"modules",
	"course_placements",
	"courses",
	"subjects",
	"grade_levels",
	"guardian_relationships",
	"admin_memberships",
	"admin_role_permissions",
	"student_profiles",
	"parent_profiles",
	"teacher_profiles",
}

// Run removes rows soft deleted before now minus retention. Roles still
// referenced by an active membership are skipped and logged, never deleted.
func (p *Purger) Run(ctx context.Context, retention time.Duration) (PurgeResult, error) {
	if p == nil || p.pool == nil {
		return PurgeResult{}, errors.New("jobs: purger not configured")
	}
	tracker := p.metrics.Track("retention_purge")
	result, err := p.run(ctx, retention)
	return result, tracker.End(err)
}

func (p *Purger) run(ctx context.Context, retention time.Duration) (PurgeResult, error) {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	cutoff := time.Now().Add(-retention)
	result := PurgeResult{Deleted: map[string]int64{}}

	for _, table := range purgeOrder {
		tag, err := p.pool.Exec(ctx,
			`DELETE FROM `+table+` WHERE deleted_at IS NOT NULL AND deleted_at < $1`, cutoff)
		if err != nil {
			p.logger.Error("purge table failed", slog.String("table", table), slog.Any("error", err))
			return result, err
		}
		result.Deleted[table] = tag.RowsAffected()
	}

	skipped, err := p.purgeRoles(ctx, cutoff, &result)
	if err != nil {
		return result, err
	}
	result.SkippedRoles = skipped

	tag, err := p.pool.Exec(ctx, `
		DELETE FROM admin_permissions perm
		WHERE perm.deleted_at IS NOT NULL AND perm.deleted_at < $1
		  AND NOT EXISTS (SELECT 1 FROM admin_role_permissions g WHERE g.permission_id = perm.id)`, cutoff)
	if err != nil {
		return result, err
	}
	result.Deleted["admin_permissions"] = tag.RowsAffected()

	tag, err = p.pool.Exec(ctx, `
		DELETE FROM users u
		WHERE u.deleted_at IS NOT NULL AND u.deleted_at < $1
		  AND NOT EXISTS (SELECT 1 FROM admin_memberships m WHERE m.user_id = u.id)
		  AND NOT EXISTS (SELECT 1 FROM guardian_relationships r WHERE r.parent_id = u.id OR r.student_id = u.id)`, cutoff)
	if err != nil {
		return result, err
	}
	result.Deleted["users"] = tag.RowsAffected()

	for table, count := range result.Deleted {
		p.metrics.AddPurged(table, count)
	}
	p.metrics.AddSkippedRoles(result.SkippedRoles)

	p.logger.Info("retention purge finished",
		slog.Time("cutoff", cutoff),
		slog.Int64("skipped_roles", result.SkippedRoles))
	return result, nil
}

// purgeRoles deletes expired roles unless an active membership still points
// at them. Such rows stay soft deleted and get another chance next run.
func (p *Purger) purgeRoles(ctx context.Context, cutoff time.Time, result *PurgeResult) (int64, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT r.id, r.slug FROM admin_roles r
		WHERE r.deleted_at IS NOT NULL AND r.deleted_at < $1
		  AND EXISTS (
			SELECT 1 FROM admin_memberships m
			WHERE m.role_id = r.id AND m.is_active AND m.deleted_at IS NULL
		  )`, cutoff)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var skipped int64
	for rows.Next() {
		var id int64
		var slug string
		if err := rows.Scan(&id, &slug); err != nil {
			return skipped, err
		}
		skipped++
		p.logger.Warn("purge skipped role with active memberships",
			slog.Int64("role_id", id), slog.String("slug", slug))
	}
	if err := rows.Err(); err != nil {
		return skipped, err
	}

	tag, err := p.pool.Exec(ctx, `
		DELETE FROM admin_roles r
		WHERE r.deleted_at IS NOT NULL AND r.deleted_at < $1
		  AND NOT EXISTS (SELECT 1 FROM admin_role_permissions g WHERE g.role_id = r.id)
		  AND NOT EXISTS (SELECT 1 FROM admin_memberships m WHERE m.role_id = r.id)`, cutoff)
	if err != nil {
		return skipped, err
	}
	result.Deleted["admin_roles"] = tag.RowsAffected()
	return skipped, nil
}
