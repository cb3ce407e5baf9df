package guardian

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pathshala-edu/pathshala/internal/accounts"
	"github.com/pathshala-edu/pathshala/internal/shared"
)

type memoryRepo struct {
	rels   map[int64]*Relationship
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{rels: map[int64]*Relationship{}}
}

func (r *memoryRepo) ByID(ctx context.Context, id int64) (Relationship, error) {
	rel, ok := r.rels[id]
	if !ok || rel.IsDeleted() {
		return Relationship{}, shared.ErrNotFound
	}
	return *rel, nil
}

func (r *memoryRepo) ActiveOrPendingByPair(ctx context.Context, parentID, studentID int64) (Relationship, error) {
	for _, rel := range r.rels {
		if rel.IsDeleted() || rel.ParentID != parentID || rel.StudentID != studentID {
			continue
		}
		if rel.Status == StatusPending || rel.Status == StatusActive {
			return *rel, nil
		}
	}
	return Relationship{}, shared.ErrNotFound
}

func (r *memoryRepo) Insert(ctx context.Context, rel Relationship) (Relationship, error) {
	r.nextID++
	rel.ID = r.nextID
	rel.RequestedAt = time.Now()
	r.rels[rel.ID] = &rel
	return rel, nil
}

func (r *memoryRepo) SetStatus(ctx context.Context, id int64, status RelationshipStatus) error {
	rel, ok := r.rels[id]
	if !ok || rel.IsDeleted() {
		return shared.ErrNotFound
	}
	now := time.Now()
	rel.Status = status
	rel.RespondedAt = &now
	return nil
}

func (r *memoryRepo) UpdateFlags(ctx context.Context, in Relationship) error {
	rel, ok := r.rels[in.ID]
	if !ok || rel.IsDeleted() {
		return shared.ErrNotFound
	}
	rel.CanViewProgress = in.CanViewProgress
	rel.CanReceiveReports = in.CanReceiveReports
	rel.CanViewAssessments = in.CanViewAssessments
	return nil
}

func (r *memoryRepo) SoftDelete(ctx context.Context, id int64) error {
	rel, ok := r.rels[id]
	if !ok || rel.IsDeleted() {
		return shared.ErrNotFound
	}
	now := time.Now()
	rel.DeletedAt = &now
	return nil
}

func (r *memoryRepo) ListForParent(ctx context.Context, parentID int64) ([]Relationship, error) {
	var out []Relationship
	for id := int64(1); id <= r.nextID; id++ {
		if rel, ok := r.rels[id]; ok && !rel.IsDeleted() && rel.ParentID == parentID {
			out = append(out, *rel)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListForStudent(ctx context.Context, studentID int64) ([]Relationship, error) {
	var out []Relationship
	for id := int64(1); id <= r.nextID; id++ {
		if rel, ok := r.rels[id]; ok && !rel.IsDeleted() && rel.StudentID == studentID {
			out = append(out, *rel)
		}
	}
	return out, nil
}

func (r *memoryRepo) List(ctx context.Context, status RelationshipStatus, limit, offset int) ([]Relationship, error) {
	var all []Relationship
	for id := int64(1); id <= r.nextID; id++ {
		rel, ok := r.rels[id]
		if !ok || rel.IsDeleted() {
			continue
		}
		if status != "" && rel.Status != status {
			continue
		}
		all = append(all, *rel)
	}
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *memoryRepo) Count(ctx context.Context, status RelationshipStatus) (int, error) {
	n := 0
	for _, rel := range r.rels {
		if rel.IsDeleted() {
			continue
		}
		if status == "" || rel.Status == status {
			n++
		}
	}
	return n, nil
}

type fakeUsers struct {
	users map[int64]accounts.User
}

func (f *fakeUsers) GetUser(ctx context.Context, id int64) (accounts.User, error) {
	u, ok := f.users[id]
	if !ok {
		return accounts.User{}, shared.ErrNotFound
	}
	return u, nil
}

const (
	parentID  = int64(10)
	studentID = int64(20)
)

func testService() (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	users := &fakeUsers{users: map[int64]accounts.User{
		parentID:  {ID: parentID, IsActive: true, Roles: []accounts.PlatformRole{accounts.RoleParent}},
		studentID: {ID: studentID, IsActive: true, Roles: []accounts.PlatformRole{accounts.RoleStudent}},
		30:        {ID: 30, IsActive: true, Roles: []accounts.PlatformRole{accounts.RoleTeacher}},
		40:        {ID: 40, IsActive: false, Roles: []accounts.PlatformRole{accounts.RoleStudent}},
	}}
	return NewService(repo, users, slog.New(slog.DiscardHandler)), repo
}

func requestLink(t *testing.T, svc *Service) Relationship {
	t.Helper()
	rel, err := svc.RequestLink(context.Background(), parentID, RequestLinkInput{
		ParentID: parentID, StudentID: studentID, Relation: "mother",
		CanViewProgress: true, CanReceiveReports: true,
	})
	require.NoError(t, err)
	return rel
}

func TestRequestLinkOpensPending(t *testing.T) {
	svc, _ := testService()
	rel := requestLink(t, svc)
	require.Equal(t, StatusPending, rel.Status)
	require.Equal(t, parentID, rel.RequestedBy)
	require.Nil(t, rel.RespondedAt)
	require.True(t, rel.CanViewProgress)
	require.False(t, rel.CanViewAssessments)
}

func TestRequestLinkValidatesRoles(t *testing.T) {
	svc, _ := testService()
	ctx := context.Background()

	// Teacher cannot stand in for a student.
	_, err := svc.RequestLink(ctx, parentID, RequestLinkInput{ParentID: parentID, StudentID: 30, Relation: "father"})
	require.ErrorIs(t, err, shared.ErrNotFound)

	// Deactivated student.
	_, err = svc.RequestLink(ctx, parentID, RequestLinkInput{ParentID: parentID, StudentID: 40, Relation: "father"})
	require.ErrorIs(t, err, shared.ErrNotFound)

	// Student on the parent side.
	_, err = svc.RequestLink(ctx, parentID, RequestLinkInput{ParentID: studentID, StudentID: 40, Relation: "father"})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRequestLinkRejectsLivePair(t *testing.T) {
	svc, _ := testService()
	ctx := context.Background()
	rel := requestLink(t, svc)

	_, err := svc.RequestLink(ctx, parentID, RequestLinkInput{ParentID: parentID, StudentID: studentID, Relation: "mother"})
	require.ErrorIs(t, err, shared.ErrDuplicate)

	// Still blocked while active.
	_, err = svc.Approve(ctx, rel.ID)
	require.NoError(t, err)
	_, err = svc.RequestLink(ctx, parentID, RequestLinkInput{ParentID: parentID, StudentID: studentID, Relation: "mother"})
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestApproveActivatesAndStampsResponse(t *testing.T) {
	svc, _ := testService()
	rel := requestLink(t, svc)

	approved, err := svc.Approve(context.Background(), rel.ID)
	require.NoError(t, err)
	require.Equal(t, StatusActive, approved.Status)
	require.NotNil(t, approved.RespondedAt)
}

func TestStatusMachineRejectsIllegalMoves(t *testing.T) {
	svc, _ := testService()
	ctx := context.Background()
	rel := requestLink(t, svc)

	// pending cannot be revoked.
	_, err := svc.Revoke(ctx, rel.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Reject(ctx, rel.ID)
	require.NoError(t, err)

	// rejected is terminal.
	_, err = svc.Approve(ctx, rel.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = svc.Revoke(ctx, rel.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRevokeEndsActiveLink(t *testing.T) {
	svc, _ := testService()
	ctx := context.Background()
	rel := requestLink(t, svc)

	_, err := svc.Approve(ctx, rel.ID)
	require.NoError(t, err)
	revoked, err := svc.Revoke(ctx, rel.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRevoked, revoked.Status)

	// revoked is terminal.
	_, err = svc.Approve(ctx, rel.ID)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTerminalPairCanRequestAgainAfterRemoval(t *testing.T) {
	svc, _ := testService()
	ctx := context.Background()
	rel := requestLink(t, svc)

	_, err := svc.Reject(ctx, rel.ID)
	require.NoError(t, err)

	// Terminal row no longer blocks the pair.
	fresh := requestLink(t, svc)
	require.NotEqual(t, rel.ID, fresh.ID)
	require.Equal(t, StatusPending, fresh.Status)
}

func TestUpdateFlagsRequiresActiveStatus(t *testing.T) {
	svc, repo := testService()
	ctx := context.Background()
	rel := requestLink(t, svc)

	err := svc.UpdateFlags(ctx, rel.ID, true, true, true)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Approve(ctx, rel.ID)
	require.NoError(t, err)
	require.NoError(t, svc.UpdateFlags(ctx, rel.ID, true, false, true))
	require.True(t, repo.rels[rel.ID].CanViewAssessments)
	require.False(t, repo.rels[rel.ID].CanReceiveReports)
}

func TestListFiltersByStatus(t *testing.T) {
	svc, _ := testService()
	ctx := context.Background()
	rel := requestLink(t, svc)
	_, err := svc.Approve(ctx, rel.ID)
	require.NoError(t, err)

	active, pagination, err := svc.List(ctx, StatusActive, 1, 20)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, 1, pagination.Total)

	pending, _, err := svc.List(ctx, StatusPending, 1, 20)
	require.NoError(t, err)
	require.Empty(t, pending)
}
