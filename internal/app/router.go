package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pathshala-edu/pathshala/internal/accounts"
	"github.com/pathshala-edu/pathshala/internal/auth"
	"github.com/pathshala-edu/pathshala/internal/content"
	"github.com/pathshala-edu/pathshala/internal/dashboard"
	"github.com/pathshala-edu/pathshala/internal/guardian"
	"github.com/pathshala-edu/pathshala/internal/observability"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config
	Pool   *pgxpool.Pool

	AuthHandler      *auth.Handler
	AuthService      *auth.Service
	DashboardHandler *dashboard.Handler
	AccountsHandler  *accounts.Handler
	ContentHandler   *content.Handler
	GuardianHandler  *guardian.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with platform defaults. Admin routes sit
// behind bearer authentication; permission checks live in each handler.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", params.AuthHandler.MountRoutes)

		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.Bearer(params.AuthService))
			r.Route("/rbac", params.DashboardHandler.MountRoutes)
			r.Route("/users", params.AccountsHandler.MountRoutes)
			r.Route("/content", params.ContentHandler.MountRoutes)
			r.Route("/relationships", params.GuardianHandler.MountRoutes)
		})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
