package guardian

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pathshala-edu/pathshala/internal/shared"
)

// Repository persists guardian relationships.
type Repository interface {
	ByID(ctx context.Context, id int64) (Relationship, error)
	ActiveOrPendingByPair(ctx context.Context, parentID, studentID int64) (Relationship, error)
	Insert(ctx context.Context, rel Relationship) (Relationship, error)
	SetStatus(ctx context.Context, id int64, status RelationshipStatus) error
	UpdateFlags(ctx context.Context, rel Relationship) error
	SoftDelete(ctx context.Context, id int64) error
	ListForParent(ctx context.Context, parentID int64) ([]Relationship, error)
	ListForStudent(ctx context.Context, studentID int64) ([]Relationship, error)
	List(ctx context.Context, status RelationshipStatus, limit, offset int) ([]Relationship, error)
	Count(ctx context.Context, status RelationshipStatus) (int, error)
}

type dbtx interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

type repository struct {
	db dbtx
}

// NewRepository constructs a repository backed by the provided pool.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const relationshipColumns = `id, parent_id, student_id, relation, status,
	can_view_progress, can_receive_reports, can_view_assessments,
	requested_by, requested_at, responded_at, created_at, updated_at, deleted_at`

func scanRelationship(row pgx.Row) (Relationship, error) {
	var rel Relationship
	err := row.Scan(
		&rel.ID, &rel.ParentID, &rel.StudentID, &rel.Relation, &rel.Status,
		&rel.CanViewProgress, &rel.CanReceiveReports, &rel.CanViewAssessments,
		&rel.RequestedBy, &rel.RequestedAt, &rel.RespondedAt,
		&rel.CreatedAt, &rel.UpdatedAt, &rel.DeletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Relationship{}, shared.ErrNotFound
	}
	return rel, err
}

func (r *repository) ByID(ctx context.Context, id int64) (Relationship, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+relationshipColumns+`
		FROM guardian_relationships WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanRelationship(row)
}

// ActiveOrPendingByPair returns the live non-terminal row for a pair, if any.
// Terminal rows do not block a new request.
func (r *repository) ActiveOrPendingByPair(ctx context.Context, parentID, studentID int64) (Relationship, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+relationshipColumns+`
		FROM guardian_relationships
		WHERE parent_id = $1 AND student_id = $2 AND deleted_at IS NULL
		  AND status IN ('pending', 'active')`, parentID, studentID)
	return scanRelationship(row)
}

func (r *repository) Insert(ctx context.Context, rel Relationship) (Relationship, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO guardian_relationships
			(parent_id, student_id, relation, status,
			 can_view_progress, can_receive_reports, can_view_assessments,
			 requested_by, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		RETURNING id, requested_at, created_at, updated_at`,
		rel.ParentID, rel.StudentID, rel.Relation, rel.Status,
		rel.CanViewProgress, rel.CanReceiveReports, rel.CanViewAssessments,
		rel.RequestedBy,
	).Scan(&rel.ID, &rel.RequestedAt, &rel.CreatedAt, &rel.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return Relationship{}, fmt.Errorf("guardian: pair %d/%d: %w", rel.ParentID, rel.StudentID, shared.ErrDuplicate)
		}
		return Relationship{}, err
	}
	return rel, nil
}

func (r *repository) SetStatus(ctx context.Context, id int64, status RelationshipStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE guardian_relationships
		SET status = $2, responded_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) UpdateFlags(ctx context.Context, rel Relationship) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE guardian_relationships
		SET can_view_progress = $2, can_receive_reports = $3, can_view_assessments = $4, updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`,
		rel.ID, rel.CanViewProgress, rel.CanReceiveReports, rel.CanViewAssessments)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) SoftDelete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE guardian_relationships SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) ListForParent(ctx context.Context, parentID int64) ([]Relationship, error) {
	return r.list(ctx, `
		SELECT `+relationshipColumns+`
		FROM guardian_relationships
		WHERE parent_id = $1 AND deleted_at IS NULL ORDER BY requested_at DESC`, parentID)
}

func (r *repository) ListForStudent(ctx context.Context, studentID int64) ([]Relationship, error) {
	return r.list(ctx, `
		SELECT `+relationshipColumns+`
		FROM guardian_relationships
		WHERE student_id = $1 AND deleted_at IS NULL ORDER BY requested_at DESC`, studentID)
}

func (r *repository) List(ctx context.Context, status RelationshipStatus, limit, offset int) ([]Relationship, error) {
	if status == "" {
		return r.list(ctx, `
			SELECT `+relationshipColumns+`
			FROM guardian_relationships
			WHERE deleted_at IS NULL ORDER BY requested_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	}
	return r.list(ctx, `
		SELECT `+relationshipColumns+`
		FROM guardian_relationships
		WHERE deleted_at IS NULL AND status = $1
		ORDER BY requested_at DESC LIMIT $2 OFFSET $3`, status, limit, offset)
}

func (r *repository) Count(ctx context.Context, status RelationshipStatus) (int, error) {
	var n int
	var err error
	if status == "" {
		err = r.db.QueryRow(ctx, `SELECT COUNT(*) FROM guardian_relationships WHERE deleted_at IS NULL`).Scan(&n)
	} else {
		err = r.db.QueryRow(ctx, `SELECT COUNT(*) FROM guardian_relationships WHERE deleted_at IS NULL AND status = $1`, status).Scan(&n)
	}
	return n, err
}

func (r *repository) list(ctx context.Context, query string, args ...interface{}) ([]Relationship, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Relationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}
