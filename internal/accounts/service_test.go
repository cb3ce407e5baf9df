package accounts

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pathshala-edu/pathshala/internal/shared"
)

type memoryRepo struct {
	users    map[int64]*User
	roles    map[int64][]PlatformRole
	students map[int64]*StudentProfile
	parents  map[int64]*ParentProfile
	teachers map[int64]*TeacherProfile
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		users:    map[int64]*User{},
		roles:    map[int64][]PlatformRole{},
		students: map[int64]*StudentProfile{},
		parents:  map[int64]*ParentProfile{},
		teachers: map[int64]*TeacherProfile{},
	}
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) UserByID(ctx context.Context, id int64) (User, error) {
	u, ok := r.users[id]
	if !ok || u.IsDeleted() {
		return User{}, shared.ErrNotFound
	}
	out := *u
	out.Roles = r.roles[id]
	return out, nil
}

func (r *memoryRepo) ActiveUserByPhone(ctx context.Context, phone string) (User, error) {
	for _, u := range r.users {
		if u.Phone == phone && u.IsActive && !u.IsDeleted() {
			out := *u
			out.Roles = r.roles[u.ID]
			return out, nil
		}
	}
	return User{}, shared.ErrNotFound
}

func (r *memoryRepo) InsertUser(ctx context.Context, u User) (User, error) {
	for _, existing := range r.users {
		if existing.Phone == u.Phone {
			return User{}, shared.ErrDuplicate
		}
	}
	u.ID = r.id()
	r.users[u.ID] = &u
	return u, nil
}

func (r *memoryRepo) UpdateUser(ctx context.Context, u User) error {
	existing, ok := r.users[u.ID]
	if !ok || existing.IsDeleted() {
		return shared.ErrNotFound
	}
	existing.Email = u.Email
	existing.FullName = u.FullName
	existing.PasswordHash = u.PasswordHash
	existing.IsStaff = u.IsStaff
	return nil
}

func (r *memoryRepo) SetUserActive(ctx context.Context, id int64, active bool) error {
	u, ok := r.users[id]
	if !ok || u.IsDeleted() {
		return shared.ErrNotFound
	}
	u.IsActive = active
	return nil
}

func (r *memoryRepo) SoftDeleteUser(ctx context.Context, id int64) error {
	u, ok := r.users[id]
	if !ok || u.IsDeleted() {
		return shared.ErrNotFound
	}
	now := time.Now()
	u.DeletedAt = &now
	return nil
}

func (r *memoryRepo) SearchUsers(ctx context.Context, query string, limit, offset int) ([]User, error) {
	var matched []User
	for id := int64(1); id <= r.nextID; id++ {
		u, ok := r.users[id]
		if !ok || u.IsDeleted() {
			continue
		}
		if query == "" || strings.Contains(u.Phone, query) || strings.Contains(u.FullName, query) {
			matched = append(matched, *u)
		}
	}
	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *memoryRepo) CountUsers(ctx context.Context, query string) (int, error) {
	users, err := r.SearchUsers(ctx, query, len(r.users)+1, 0)
	return len(users), err
}

func (r *memoryRepo) AddPlatformRole(ctx context.Context, userID int64, role PlatformRole) error {
	for _, existing := range r.roles[userID] {
		if existing == role {
			return nil
		}
	}
	r.roles[userID] = append(r.roles[userID], role)
	return nil
}

func (r *memoryRepo) RemovePlatformRole(ctx context.Context, userID int64, role PlatformRole) error {
	kept := r.roles[userID][:0]
	for _, existing := range r.roles[userID] {
		if existing != role {
			kept = append(kept, existing)
		}
	}
	r.roles[userID] = kept
	return nil
}

func (r *memoryRepo) PlatformRoles(ctx context.Context, userID int64) ([]PlatformRole, error) {
	return r.roles[userID], nil
}

func (r *memoryRepo) UpsertStudentProfile(ctx context.Context, p StudentProfile) (StudentProfile, error) {
	if existing, ok := r.students[p.UserID]; ok {
		p.ID = existing.ID
	} else {
		p.ID = r.id()
	}
	r.students[p.UserID] = &p
	return p, nil
}

func (r *memoryRepo) UpsertParentProfile(ctx context.Context, p ParentProfile) (ParentProfile, error) {
	if existing, ok := r.parents[p.UserID]; ok {
		p.ID = existing.ID
	} else {
		p.ID = r.id()
	}
	r.parents[p.UserID] = &p
	return p, nil
}

func (r *memoryRepo) UpsertTeacherProfile(ctx context.Context, p TeacherProfile) (TeacherProfile, error) {
	if existing, ok := r.teachers[p.UserID]; ok {
		p.ID = existing.ID
	} else {
		p.ID = r.id()
	}
	r.teachers[p.UserID] = &p
	return p, nil
}

func (r *memoryRepo) StudentProfileByUser(ctx context.Context, userID int64) (StudentProfile, error) {
	p, ok := r.students[userID]
	if !ok {
		return StudentProfile{}, shared.ErrNotFound
	}
	return *p, nil
}

func (r *memoryRepo) ParentProfileByUser(ctx context.Context, userID int64) (ParentProfile, error) {
	p, ok := r.parents[userID]
	if !ok {
		return ParentProfile{}, shared.ErrNotFound
	}
	return *p, nil
}

func (r *memoryRepo) TeacherProfileByUser(ctx context.Context, userID int64) (TeacherProfile, error) {
	p, ok := r.teachers[userID]
	if !ok {
		return TeacherProfile{}, shared.ErrNotFound
	}
	return *p, nil
}

func testService() (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	return NewService(repo, slog.New(slog.DiscardHandler)), repo
}

func TestCreateUserHashesPassword(t *testing.T) {
	svc, repo := testService()
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, CreateUserInput{
		Phone: "+8801711000001", FullName: "Ayesha Rahman", Password: "s3cret-pass", Role: RoleTeacher,
	})
	require.NoError(t, err)
	require.NotEqual(t, "s3cret-pass", user.PasswordHash)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("s3cret-pass")))
	require.Equal(t, []PlatformRole{RoleTeacher}, repo.roles[user.ID])
	require.True(t, user.IsActive)
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	svc, _ := testService()
	_, err := svc.CreateUser(context.Background(), CreateUserInput{
		Phone: "+8801711000001", FullName: "X", Password: "s3cret-pass", Role: "wizard",
	})
	require.Error(t, err)
}

func TestCreateUserDuplicatePhone(t *testing.T) {
	svc, _ := testService()
	ctx := context.Background()
	input := CreateUserInput{Phone: "+8801711000001", FullName: "A", Password: "s3cret-pass", Role: RoleStudent}
	_, err := svc.CreateUser(ctx, input)
	require.NoError(t, err)
	_, err = svc.CreateUser(ctx, input)
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestAuthenticate(t *testing.T) {
	svc, _ := testService()
	ctx := context.Background()
	created, err := svc.CreateUser(ctx, CreateUserInput{
		Phone: "+8801711000002", FullName: "Admin", Password: "correct-horse", Role: RoleAdmin, IsStaff: true,
	})
	require.NoError(t, err)

	user, err := svc.Authenticate(ctx, "+8801711000002", "correct-horse")
	require.NoError(t, err)
	require.Equal(t, created.ID, user.ID)

	_, err = svc.Authenticate(ctx, "+8801711000002", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "+8801799999999", "correct-horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestAuthenticateRejectsDeactivated(t *testing.T) {
	svc, _ := testService()
	ctx := context.Background()
	user, err := svc.CreateUser(ctx, CreateUserInput{
		Phone: "+8801711000003", FullName: "Gone", Password: "correct-horse", Role: RoleAdmin,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, user.ID))

	_, err = svc.Authenticate(ctx, "+8801711000003", "correct-horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestSearchUsersPaginates(t *testing.T) {
	svc, _ := testService()
	ctx := context.Background()
	for _, phone := range []string{"+11", "+12", "+13", "+14", "+15"} {
		_, err := svc.CreateUser(ctx, CreateUserInput{Phone: phone, FullName: "U" + phone, Password: "password1", Role: RoleStudent})
		require.NoError(t, err)
	}

	users, pagination, err := svc.SearchUsers(ctx, "", 2, 2)
	require.NoError(t, err)
	require.Len(t, users, 2)
	require.Equal(t, 5, pagination.Total)
	require.Equal(t, 3, pagination.TotalPages)
}

func TestPlatformRoleAssignment(t *testing.T) {
	svc, repo := testService()
	ctx := context.Background()
	user, err := svc.CreateUser(ctx, CreateUserInput{Phone: "+21", FullName: "T", Password: "password1", Role: RoleTeacher})
	require.NoError(t, err)

	require.NoError(t, svc.AssignPlatformRole(ctx, user.ID, RoleAdmin))
	require.Error(t, svc.AssignPlatformRole(ctx, user.ID, "wizard"))
	require.ErrorIs(t, svc.AssignPlatformRole(ctx, 999, RoleAdmin), shared.ErrNotFound)

	require.NoError(t, svc.RemovePlatformRole(ctx, user.ID, RoleTeacher))
	require.Equal(t, []PlatformRole{RoleAdmin}, repo.roles[user.ID])
}

func TestProfileUpsertKeepsOneRowPerUser(t *testing.T) {
	svc, _ := testService()
	ctx := context.Background()
	user, err := svc.CreateUser(ctx, CreateUserInput{Phone: "+31", FullName: "S", Password: "password1", Role: RoleStudent})
	require.NoError(t, err)

	first, err := svc.SaveStudentProfile(ctx, StudentProfile{UserID: user.ID, GradeLabel: "Class 5"})
	require.NoError(t, err)
	second, err := svc.SaveStudentProfile(ctx, StudentProfile{UserID: user.ID, GradeLabel: "Class 6"})
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)

	got, err := svc.StudentProfile(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "Class 6", got.GradeLabel)
}
