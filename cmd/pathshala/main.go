package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pathshala-edu/pathshala/internal/accounts"
	"github.com/pathshala-edu/pathshala/internal/app"
	"github.com/pathshala-edu/pathshala/internal/auth"
	"github.com/pathshala-edu/pathshala/internal/content"
	"github.com/pathshala-edu/pathshala/internal/dashboard"
	"github.com/pathshala-edu/pathshala/internal/guardian"
	"github.com/pathshala-edu/pathshala/internal/observability"
	"github.com/pathshala-edu/pathshala/internal/platform/cache"
	"github.com/pathshala-edu/pathshala/internal/platform/db"
	"github.com/pathshala-edu/pathshala/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	var redisClient *redis.Client
	var levelCache *dashboard.LevelCache
	if cfg.RBACCacheEnabled {
		redisClient, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			// Resolution works without the cache, just slower.
			logger.Warn("redis unavailable, level cache disabled", slog.Any("error", err))
		} else {
			levelCache = dashboard.NewLevelCache(redisClient, cfg.RBACCacheTTL)
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
		}
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	dashboardOpts := []dashboard.ServiceOption{
		dashboard.WithLevelCache(levelCache),
		dashboard.WithAudit(auditLogger),
	}
	if cfg.RBACLogUnknownCodes {
		dashboardOpts = append(dashboardOpts, dashboard.WithUnknownCodeLogging())
	}
	dashboardRepo := dashboard.NewRepository(dbpool)
	dashboardService := dashboard.NewService(dashboardRepo, logger, dashboardOpts...)
	authz := dashboard.Middleware{Service: dashboardService, Logger: logger, Decisions: metrics}
	dashboardHandler := dashboard.NewHandler(logger, dashboardService, authz)

	accountsRepo := accounts.NewRepository(dbpool)
	accountsService := accounts.NewService(accountsRepo, logger)
	accountsHandler := accounts.NewHandler(logger, accountsService, authz)

	tokenIssuer := auth.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	authService := auth.NewService(accountsService, dashboardService, tokenIssuer, logger, metrics)
	authHandler := auth.NewHandler(logger, authService)

	contentRepo := content.NewRepository(dbpool)
	contentService := content.NewService(contentRepo, logger)
	contentHandler := content.NewHandler(logger, contentService, authz)

	guardianRepo := guardian.NewRepository(dbpool)
	guardianService := guardian.NewService(guardianRepo, accountsService, logger)
	guardianHandler := guardian.NewHandler(logger, guardianService, authz)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Pool:             dbpool,
		AuthHandler:      authHandler,
		AuthService:      authService,
		DashboardHandler: dashboardHandler,
		AccountsHandler:  accountsHandler,
		ContentHandler:   contentHandler,
		GuardianHandler:  guardianHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
