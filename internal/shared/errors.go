package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a uniqueness constraint was violated.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrForbidden indicates the caller lacks the required permission level.
	ErrForbidden = errors.New("forbidden")
	// ErrUnavailable signals that a backing store could not answer. Authorization
	// checks must surface it instead of coercing the failure into a denial.
	ErrUnavailable = errors.New("dependency unavailable")
)

// UserSafeMessage maps internal errors to a message safe to show callers.
// Unexpected errors collapse into a generic message so internals never leak.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "The requested resource was not found."
	case errors.Is(err, ErrDuplicate):
		return "A record with the same identifier already exists."
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid credentials."
	case errors.Is(err, ErrForbidden):
		return "You do not have permission to perform this action."
	default:
		return "Something went wrong. Please try again."
	}
}
