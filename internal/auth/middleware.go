package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/pathshala-edu/pathshala/internal/accounts"
	"github.com/pathshala-edu/pathshala/internal/platform/httpx"
	"github.com/pathshala-edu/pathshala/internal/shared"
)

// Verifier is what the bearer middleware needs from the auth service.
type Verifier interface {
	UserFromAccessToken(ctx context.Context, accessToken string) (accounts.User, error)
}

// Bearer authenticates requests carrying an Authorization: Bearer header and
// places the resolved user in the request context as the principal. Requests
// without a token pass through unauthenticated; the authorization gate
// downstream turns a missing principal into a 401 on protected routes.
func Bearer(service Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Invalid authorization header format.")
				return
			}
			user, err := service.UserFromAccessToken(r.Context(), parts[1])
			if err != nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "Invalid or expired token.")
				return
			}
			ctx := shared.ContextWithPrincipal(r.Context(), &user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
