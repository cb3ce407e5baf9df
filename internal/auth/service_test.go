package auth

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pathshala-edu/pathshala/internal/accounts"
	"github.com/pathshala-edu/pathshala/internal/dashboard"
	"github.com/pathshala-edu/pathshala/internal/shared"
)

type fakeAccounts struct {
	users map[string]accounts.User
}

func (f *fakeAccounts) Authenticate(ctx context.Context, phone, password string) (accounts.User, error) {
	user, ok := f.users[phone]
	if !ok || !user.IsActive {
		return accounts.User{}, shared.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return accounts.User{}, shared.ErrInvalidCredentials
	}
	return user, nil
}

func (f *fakeAccounts) GetUser(ctx context.Context, id int64) (accounts.User, error) {
	for _, user := range f.users {
		if user.ID == id {
			return user, nil
		}
	}
	return accounts.User{}, shared.ErrNotFound
}

type fakeMemberships struct {
	byUser map[int64][]dashboard.Membership
	err    error
}

func (f *fakeMemberships) UserMemberships(ctx context.Context, userID int64) ([]dashboard.Membership, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byUser[userID], nil
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func testAuthService(t *testing.T, users *fakeAccounts, members *fakeMemberships) *Service {
	t.Helper()
	issuer := NewTokenIssuer([]byte("test-secret"), 15*time.Minute, 24*time.Hour)
	return NewService(users, members, issuer, slog.New(slog.DiscardHandler), nil)
}

func TestLoginIssuesTokenPair(t *testing.T) {
	users := &fakeAccounts{users: map[string]accounts.User{
		"+88017": {ID: 1, Phone: "+88017", PasswordHash: hashOf(t, "pass-123"), IsActive: true, IsStaff: true},
	}}
	svc := testAuthService(t, users, &fakeMemberships{})

	user, pair, err := svc.Login(context.Background(), "+88017", "pass-123")
	require.NoError(t, err)
	require.Equal(t, int64(1), user.ID)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)
}

func TestLoginWrongPassword(t *testing.T) {
	users := &fakeAccounts{users: map[string]accounts.User{
		"+88017": {ID: 1, Phone: "+88017", PasswordHash: hashOf(t, "pass-123"), IsActive: true, IsStaff: true},
	}}
	svc := testAuthService(t, users, &fakeMemberships{})

	_, _, err := svc.Login(context.Background(), "+88017", "nope")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginRequiresDashboardEligibility(t *testing.T) {
	users := &fakeAccounts{users: map[string]accounts.User{
		"+88017": {ID: 1, Phone: "+88017", PasswordHash: hashOf(t, "pass-123"), IsActive: true},
	}}
	members := &fakeMemberships{byUser: map[int64][]dashboard.Membership{}}
	svc := testAuthService(t, users, members)

	// No staff flag, no memberships: same error as a bad password.
	_, _, err := svc.Login(context.Background(), "+88017", "pass-123")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	// An active membership makes the same account eligible.
	members.byUser[1] = []dashboard.Membership{{ID: 10, UserID: 1, RoleID: 3, IsActive: true}}
	_, pair, err := svc.Login(context.Background(), "+88017", "pass-123")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
}

func TestLoginDeactivatedMembershipIsNotEligible(t *testing.T) {
	users := &fakeAccounts{users: map[string]accounts.User{
		"+88017": {ID: 1, Phone: "+88017", PasswordHash: hashOf(t, "pass-123"), IsActive: true},
	}}
	// The membership row survives deactivation but must not grant access.
	members := &fakeMemberships{byUser: map[int64][]dashboard.Membership{
		1: {{ID: 10, UserID: 1, RoleID: 3, IsActive: false}},
	}}
	svc := testAuthService(t, users, members)

	_, _, err := svc.Login(context.Background(), "+88017", "pass-123")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLoginMembershipLookupFailureIsNotDenial(t *testing.T) {
	users := &fakeAccounts{users: map[string]accounts.User{
		"+88017": {ID: 1, Phone: "+88017", PasswordHash: hashOf(t, "pass-123"), IsActive: true},
	}}
	members := &fakeMemberships{err: shared.ErrUnavailable}
	svc := testAuthService(t, users, members)

	_, _, err := svc.Login(context.Background(), "+88017", "pass-123")
	require.ErrorIs(t, err, shared.ErrUnavailable)
}

func TestRefreshRoundTrip(t *testing.T) {
	users := &fakeAccounts{users: map[string]accounts.User{
		"+88017": {ID: 1, Phone: "+88017", PasswordHash: hashOf(t, "pass-123"), IsActive: true, IsStaff: true},
	}}
	svc := testAuthService(t, users, &fakeMemberships{})

	_, pair, err := svc.Login(context.Background(), "+88017", "pass-123")
	require.NoError(t, err)

	next, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, next.AccessToken)

	// An access token is not exchangeable.
	_, err = svc.Refresh(context.Background(), pair.AccessToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshRejectsDeactivatedUser(t *testing.T) {
	user := accounts.User{ID: 1, Phone: "+88017", PasswordHash: hashOf(t, "pass-123"), IsActive: true, IsStaff: true}
	users := &fakeAccounts{users: map[string]accounts.User{"+88017": user}}
	svc := testAuthService(t, users, &fakeMemberships{})

	_, pair, err := svc.Login(context.Background(), "+88017", "pass-123")
	require.NoError(t, err)

	user.IsActive = false
	users.users["+88017"] = user

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenPurposeAndExpiry(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), -time.Minute, 24*time.Hour)
	pair, err := issuer.Issue(7)
	require.NoError(t, err)

	// Already expired access token.
	_, err = issuer.Parse(pair.AccessToken, TokenUseAccess)
	require.ErrorIs(t, err, ErrInvalidToken)

	// Valid refresh token parsed with the wrong purpose.
	_, err = issuer.Parse(pair.RefreshToken, TokenUseAccess)
	require.ErrorIs(t, err, ErrInvalidToken)

	claims, err := issuer.Parse(pair.RefreshToken, TokenUseRefresh)
	require.NoError(t, err)
	require.Equal(t, int64(7), claims.UserID)
	require.NotEmpty(t, claims.ID)
}

func TestTokenRejectsForeignSignature(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), time.Minute, time.Hour)
	other := NewTokenIssuer([]byte("other-secret"), time.Minute, time.Hour)

	pair, err := other.Issue(7)
	require.NoError(t, err)

	_, err = issuer.Parse(pair.AccessToken, TokenUseAccess)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerMiddleware(t *testing.T) {
	users := &fakeAccounts{users: map[string]accounts.User{
		"+88017": {ID: 1, Phone: "+88017", PasswordHash: hashOf(t, "pass-123"), IsActive: true, IsStaff: true},
	}}
	svc := testAuthService(t, users, &fakeMemberships{})
	_, pair, err := svc.Login(context.Background(), "+88017", "pass-123")
	require.NoError(t, err)

	var principalID int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if p := shared.PrincipalFromContext(r.Context()); p != nil {
			principalID = p.GetID()
		}
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("valid token sets principal", func(t *testing.T) {
		principalID = 0
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		rec := httptest.NewRecorder()
		Bearer(svc)(next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, int64(1), principalID)
	})

	t.Run("missing header passes through anonymous", func(t *testing.T) {
		principalID = 0
		rec := httptest.NewRecorder()
		Bearer(svc)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Zero(t, principalID)
	})

	t.Run("garbage token is 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set("Authorization", "Bearer not-a-token")
		rec := httptest.NewRecorder()
		Bearer(svc)(next).ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
