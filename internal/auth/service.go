package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pathshala-edu/pathshala/internal/accounts"
	"github.com/pathshala-edu/pathshala/internal/dashboard"
	"github.com/pathshala-edu/pathshala/internal/shared"
)

// AccountsPort is the slice of the accounts service the login flow needs.
type AccountsPort interface {
	Authenticate(ctx context.Context, phone, password string) (accounts.User, error)
	GetUser(ctx context.Context, id int64) (accounts.User, error)
}

// MembershipPort answers whether a user holds any live dashboard membership.
type MembershipPort interface {
	UserMemberships(ctx context.Context, userID int64) ([]dashboard.Membership, error)
}

// AttemptRecorder counts login outcomes for monitoring.
type AttemptRecorder interface {
	RecordLoginAttempt(result string)
}

// Service implements the admin dashboard login and refresh flows.
type Service struct {
	users    AccountsPort
	members  MembershipPort
	issuer   *TokenIssuer
	logger   *slog.Logger
	attempts AttemptRecorder
}

// NewService builds a Service instance. attempts may be nil.
func NewService(users AccountsPort, members MembershipPort, issuer *TokenIssuer, logger *slog.Logger, attempts AttemptRecorder) *Service {
	return &Service{users: users, members: members, issuer: issuer, logger: logger, attempts: attempts}
}

// Login verifies credentials and dashboard eligibility, then issues a token
// pair. Non-staff users without any active dashboard membership get the same
// generic invalid-credentials error as a wrong password: the login endpoint
// must not reveal which accounts are dashboard-capable.
func (s *Service) Login(ctx context.Context, phone, password string) (accounts.User, TokenPair, error) {
	user, err := s.users.Authenticate(ctx, phone, password)
	if err != nil {
		s.record("failure")
		return accounts.User{}, TokenPair{}, err
	}

	eligible, err := s.dashboardEligible(ctx, user)
	if err != nil {
		s.record("error")
		return accounts.User{}, TokenPair{}, err
	}
	if !eligible {
		s.record("failure")
		return accounts.User{}, TokenPair{}, shared.ErrInvalidCredentials
	}

	pair, err := s.issuer.Issue(user.ID)
	if err != nil {
		s.record("error")
		return accounts.User{}, TokenPair{}, err
	}
	s.record("success")
	s.logger.Info("admin login", slog.Int64("user_id", user.ID))
	return user, pair, nil
}

func (s *Service) dashboardEligible(ctx context.Context, user accounts.User) (bool, error) {
	if user.IsSuperuser || user.IsStaff {
		return true, nil
	}
	members, err := s.members.UserMemberships(ctx, user.ID)
	if err != nil {
		return false, err
	}
	// Deactivated memberships keep their row but confer no dashboard access.
	for _, m := range members {
		if m.IsActive {
			return true, nil
		}
	}
	return false, nil
}

// Refresh exchanges a valid refresh token for a new pair. The user row is
// re-checked so deactivation takes effect at the next refresh at the latest.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.issuer.Parse(refreshToken, TokenUseRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	user, err := s.users.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return TokenPair{}, ErrInvalidToken
		}
		return TokenPair{}, err
	}
	if !user.IsActive {
		return TokenPair{}, ErrInvalidToken
	}
	return s.issuer.Issue(user.ID)
}

// UserFromAccessToken resolves the live user behind a bearer token.
func (s *Service) UserFromAccessToken(ctx context.Context, accessToken string) (accounts.User, error) {
	claims, err := s.issuer.Parse(accessToken, TokenUseAccess)
	if err != nil {
		return accounts.User{}, err
	}
	user, err := s.users.GetUser(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return accounts.User{}, ErrInvalidToken
		}
		return accounts.User{}, err
	}
	if !user.IsActive {
		return accounts.User{}, ErrInvalidToken
	}
	return user, nil
}

func (s *Service) record(result string) {
	if s.attempts != nil {
		s.attempts.RecordLoginAttempt(result)
	}
}
