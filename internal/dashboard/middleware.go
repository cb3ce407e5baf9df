package dashboard

import (
	"net/http"

	"log/slog"

	"github.com/pathshala-edu/pathshala/internal/platform/httpx"
	"github.com/pathshala-edu/pathshala/internal/shared"
)

// DecisionRecorder counts authorization outcomes for monitoring.
type DecisionRecorder interface {
	RecordAuthzDecision(outcome string)
}

// Middleware wires the authorization gate for HTTP handlers. Every protected
// route declares a permission code and a minimum level; requests proceed only
// when the resolved level satisfies the declaration.
type Middleware struct {
	Service   *Service
	Logger    *slog.Logger
	Decisions DecisionRecorder
}

// Require enforces (code, min) on the wrapped handler.
//
// Failure modes are deliberately distinct: a missing principal is 401, an
// insufficient level is a generic 403 that does not echo the required code or
// level, and a resolver failure is a 5xx so outages are never mistaken for
// denials. An empty code denies unconditionally.
func (m Middleware) Require(code string, min Level) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if code == "" {
				// The route forgot to declare its permission. Deny rather
				// than guess a default.
				if m.Logger != nil {
					m.Logger.Error("protected route without permission declaration", slog.String("path", r.URL.Path))
				}
				m.record("denied")
				httpx.Problem(w, http.StatusForbidden, "Forbidden", shared.UserSafeMessage(shared.ErrForbidden))
				return
			}

			principal := shared.PrincipalFromContext(r.Context())
			if principal == nil {
				m.record("unauthenticated")
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Authentication required.")
				return
			}

			ok, err := m.Service.Authorized(r.Context(), principal, code, min)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("authorization check failed", slog.String("code", code), slog.Any("error", err))
				}
				m.record("indeterminate")
				httpx.RespondError(w, err)
				return
			}
			if !ok {
				m.record("denied")
				httpx.Problem(w, http.StatusForbidden, "Forbidden", shared.UserSafeMessage(shared.ErrForbidden))
				return
			}
			m.record("allowed")
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRead is shorthand for Require(code, LevelRead).
func (m Middleware) RequireRead(code string) func(http.Handler) http.Handler {
	return m.Require(code, LevelRead)
}

// RequireWrite is shorthand for Require(code, LevelWrite).
func (m Middleware) RequireWrite(code string) func(http.Handler) http.Handler {
	return m.Require(code, LevelWrite)
}

// RequireAdmin is shorthand for Require(code, LevelAdmin).
func (m Middleware) RequireAdmin(code string) func(http.Handler) http.Handler {
	return m.Require(code, LevelAdmin)
}

func (m Middleware) record(outcome string) {
	if m.Decisions != nil {
		m.Decisions.RecordAuthzDecision(outcome)
	}
}
