package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adminory/adminory/cmd/adminory/cli"
	"github.com/adminory/adminory/internal/app"
	"github.com/adminory/adminory/internal/audit"
	"github.com/adminory/adminory/internal/auth"
	jobmetrics "github.com/adminory/adminory/internal/jobs"
	"github.com/adminory/adminory/internal/observability"
	"github.com/adminory/adminory/internal/platform/cache"
	"github.com/adminory/adminory/internal/platform/db"
	"github.com/adminory/adminory/internal/rbac"
	"github.com/adminory/adminory/internal/shared"
	"github.com/adminory/adminory/internal/users"
	"github.com/adminory/adminory/internal/workspaces"
	"github.com/adminory/adminory/jobs"
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

	if len(os.Args) > 1 && os.Args[1] != "serve" {
		os.Exit(runOps(ctx, cfg, logger, os.Args[1:]))
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts, jobmetrics.NewMetrics(metrics.Registerer()))
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	authRepo := auth.NewRepository(dbpool)
	tokens, err := auth.NewTokenService(
		auth.NewRedisRevocationStore(redisClient),
		authRepo,
		cfg.JWTSecret,
		cfg.JWTRefreshSecret,
		auth.WithAccessTTL(cfg.AccessTokenTTL),
		auth.WithRefreshTTL(cfg.RefreshTokenTTL),
		auth.WithStrictRotation(cfg.StrictRotation),
		auth.WithTokenMetrics(metrics),
	)
	if err != nil {
		logger.Error("init token service", slog.Any("error", err))
		os.Exit(1)
	}
	oneTime := auth.NewRedisOneTimeStore(redisClient)
	authService := auth.NewService(auth.ServiceDeps{
		Repo:                 authRepo,
		Tokens:               tokens,
		OneTime:              oneTime,
		Notifier:             jobClient,
		Audit:                auditLogger,
		Logger:               logger,
		PasswordResetTTL:     cfg.PasswordResetTTL,
		EmailVerificationTTL: cfg.EmailVerificationTTL,
	})
	authenticator := auth.NewAuthenticator(tokens, authRepo, logger)
	authHandler := auth.NewHandler(logger, authService, authenticator)

	rbacMiddleware := rbac.Middleware{Logger: logger}
	usersService := users.NewService(users.NewRepository(dbpool), tokens, auditLogger, logger)
	usersHandler := users.NewHandler(logger, usersService, rbacMiddleware)

	workspacesService := workspaces.NewService(workspaces.ServiceDeps{
		Repo:      workspaces.NewRepository(dbpool),
		Users:     authRepo,
		OneTime:   oneTime,
		Notifier:  jobClient,
		Audit:     auditLogger,
		Logger:    logger,
		InviteTTL: cfg.InviteTTL,
	})
	workspacesHandler := workspaces.NewHandler(logger, workspacesService)

	auditHandler := audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), rbacMiddleware)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		Authenticator:     authenticator,
		AuthHandler:       authHandler,
		UsersHandler:      usersHandler,
		WorkspacesHandler: workspacesHandler,
		AuditHandler:      auditHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.Bool("strict_rotation", cfg.StrictRotation))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// runOps executes an operator subcommand and returns its exit code.
func runOps(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		return 1
	}
	defer func() { _ = redisClient.Close() }()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() { _ = inspector.Close() }()

	return cli.Run(ctx, args, cli.Deps{
		Jobs:     cli.NewJobsCLI(inspector),
		Sessions: cli.NewSessionsCLI(auth.NewRedisRevocationStore(redisClient)),
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	})
}
