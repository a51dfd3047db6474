package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trikaweb/trikaweb/internal/auth/sso"
	"github.com/trikaweb/trikaweb/internal/config"
	"github.com/trikaweb/trikaweb/internal/database"
	"github.com/trikaweb/trikaweb/internal/gate"
	"github.com/trikaweb/trikaweb/internal/handlers"
	"github.com/trikaweb/trikaweb/internal/metrics"
	"github.com/trikaweb/trikaweb/internal/middleware"
	"github.com/trikaweb/trikaweb/internal/repository"
	"github.com/trikaweb/trikaweb/internal/repository/postgres"
	"github.com/trikaweb/trikaweb/internal/repository/sqlite"
	"github.com/trikaweb/trikaweb/internal/search"
	"github.com/trikaweb/trikaweb/internal/static"
	"github.com/trikaweb/trikaweb/internal/storage"
	fsstorage "github.com/trikaweb/trikaweb/internal/storage/filesystem"
	s3storage "github.com/trikaweb/trikaweb/internal/storage/s3"
	"github.com/trikaweb/trikaweb/internal/utils"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("starting trikaweb",
		"port", cfg.Port,
		"database_backend", cfg.DatabaseBackend,
		"storage_backend", cfg.StorageBackend,
		"admin_enabled", cfg.AdminEnabled(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the datastore
	repos, err := buildRepositories(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize datastore", "error", err)
		os.Exit(1)
	}
	defer repos.Cleanup()
	slog.Info("datastore initialized", "backend", repos.DatabaseType)

	// Initialize file storage
	backend, err := buildStorage(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Moderation wordlist
	bannedWords, err := cfg.LoadBannedWords()
	if err != nil {
		slog.Error("failed to load banned words", "error", err)
		os.Exit(1)
	}
	slog.Info("moderation wordlist loaded", "words", len(bannedWords))

	// Write gate over the shared counter store
	window := time.Duration(cfg.RateLimitWindowMin) * time.Minute
	writeGate := gate.New(repos.WriteLimits, window)

	// Ranked search
	searchSvc := search.NewService(search.NewRepositoryStore(repos))

	startTime := time.Now()

	mux := http.NewServeMux()

	// Public read
	mux.HandleFunc("GET /api/courses", handlers.ListCoursesHandler(repos.Courses))
	mux.HandleFunc("GET /api/courses/{code}", handlers.GetCourseHandler(repos.Courses))
	mux.HandleFunc("GET /api/sheets/top", handlers.TopSheetsHandler(repos.Sheets))
	mux.HandleFunc("POST /api/sheets/batch", handlers.BatchSheetsHandler(repos.Sheets))
	mux.HandleFunc("GET /api/sheets/{id}/file", handlers.SheetFileHandler(repos.Sheets, backend, cfg))
	mux.HandleFunc("GET /api/sheets/{id}/solution", handlers.SheetSolutionHandler(repos.Sheets, backend, cfg))
	mux.HandleFunc("GET /api/teachers", handlers.ListTeachersHandler(repos.Teachers))
	mux.HandleFunc("GET /api/teachers/top", handlers.TopTeachersHandler(repos.Teachers))
	mux.HandleFunc("GET /api/teachers/{id}/detail", handlers.TeacherDetailHandler(repos.Teachers))
	mux.HandleFunc("GET /api/search", handlers.SearchHandler(searchSvc))
	mux.HandleFunc("GET /api/search/suggest", handlers.SuggestHandler(searchSvc))

	// Public write (gated)
	mux.HandleFunc("POST /api/sheets/{id}/rate", handlers.RateSheetHandler(repos.Sheets, writeGate, cfg))
	mux.HandleFunc("POST /api/sheets/{id}/view", handlers.ViewSheetHandler(repos.Sheets, writeGate, cfg))
	mux.HandleFunc("POST /api/teachers/{id}/rate", handlers.RateTeacherHandler(repos.Teachers, writeGate, cfg, bannedWords))

	mux.HandleFunc("GET /health", handlers.HealthHandler(repos.Ping, startTime))
	mux.Handle("GET /metrics", promhttp.Handler())

	// Admin
	if cfg.AdminEnabled() {
		registerAdminRoutes(ctx, mux, cfg, repos, backend, writeGate, bannedWords)
		mux.Handle("GET /admin/", static.Handler())
	} else {
		slog.Warn("admin area disabled: no admin credentials or OIDC configured")
	}

	// Middleware chain (order: Recovery -> Logging -> Security -> Metrics -> handlers)
	handler := middleware.RecoveryMiddleware(
		middleware.LoggingMiddleware(
			middleware.SecurityHeadersMiddleware(
				metrics.Middleware(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Background cleanup of stale gate counters and expired sessions
	go startCleanupWorker(ctx, cfg, repos, window)

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "address", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		slog.Error("server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		slog.Info("shutdown signal received", "signal", sig)

		// Stop background workers
		cancel()

		// Give outstanding requests 10 seconds to complete
		drainCtx, drainCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer drainCancel()

		if err := server.Shutdown(drainCtx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
			if err := server.Close(); err != nil {
				slog.Error("server close failed", "error", err)
			}
			os.Exit(1)
		}

		slog.Info("server shutdown complete")
	}
}

func buildRepositories(ctx context.Context, cfg *config.Config) (*repository.Repositories, error) {
	switch cfg.DatabaseBackend {
	case config.DatabasePostgres:
		return postgres.NewRepositories(ctx, cfg)
	default:
		db, err := database.Initialize(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return sqlite.NewRepositories(db)
	}
}

func buildStorage(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.StorageBackend {
	case config.StorageS3:
		return s3storage.New(ctx, s3storage.Config{
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
			PathStyle:       cfg.S3PathStyle,
			BucketNames: map[string]string{
				storage.BucketExams:     cfg.ExamsBucket,
				storage.BucketSolutions: cfg.SolutionsBucket,
			},
		})
	default:
		return fsstorage.New(cfg.DataDir)
	}
}

func registerAdminRoutes(ctx context.Context, mux *http.ServeMux, cfg *config.Config, repos *repository.Repositories, backend storage.Backend, writeGate *gate.Gate, bannedWords []string) {
	// The env password is hashed once at startup so only the hash stays
	// in memory for comparisons.
	var passwordHash string
	if cfg.AdminPassword != "" {
		var err error
		passwordHash, err = utils.HashPassword(cfg.AdminPassword)
		if err != nil {
			slog.Error("failed to hash admin password", "error", err)
			os.Exit(1)
		}
	}

	mux.HandleFunc("POST /admin/api/login", handlers.LoginHandler(cfg, passwordHash, repos.Sessions, writeGate))
	mux.HandleFunc("POST /admin/api/logout", handlers.LogoutHandler(repos.Sessions))

	if cfg.OIDCEnabled() {
		provider, err := sso.NewOIDCProvider(ctx, sso.Config{
			IssuerURL:    cfg.OIDCIssuerURL,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.OIDCRedirectURL,
		})
		if err != nil {
			slog.Error("failed to configure OIDC provider", "error", err)
			os.Exit(1)
		}
		mux.HandleFunc("GET /admin/api/sso/login", handlers.SSOLoginHandler(provider))
		mux.HandleFunc("GET /admin/api/sso/callback", handlers.SSOCallbackHandler(provider, repos.Sessions, cfg))
		slog.Info("admin SSO enabled", "issuer", cfg.OIDCIssuerURL)
	}

	auth := middleware.AdminAuth(repos.Sessions)
	protected := func(h http.HandlerFunc) http.Handler { return auth(h) }

	mux.Handle("POST /admin/api/teachers", protected(handlers.AdminTeachersHandler(repos.Teachers)))
	mux.Handle("POST /admin/api/teachers/add", protected(handlers.AdminAddTeacherHandler(repos.Teachers)))
	mux.Handle("POST /admin/api/teachers/toggle", protected(handlers.AdminToggleTeacherHandler(repos.Teachers)))
	mux.Handle("POST /admin/api/comments/pending", protected(handlers.PendingCommentsHandler(repos.Teachers)))
	mux.Handle("POST /admin/api/comments/approve", protected(handlers.ApproveCommentHandler(repos.Teachers)))
	mux.Handle("POST /admin/api/comments/hide", protected(handlers.HideCommentHandler(repos.Teachers, bannedWords)))
	mux.Handle("POST /admin/api/ratings", protected(handlers.AdminRatingsHandler(repos.Teachers)))
	mux.Handle("POST /admin/api/ratings/delete", protected(handlers.DeleteRatingHandler(repos.Teachers)))
	mux.Handle("POST /admin/api/upload", protected(handlers.UploadHandler(repos.Courses, repos.Sheets, backend)))
	mux.Handle("POST /admin/api/upload-url", protected(handlers.UploadURLHandler(backend, cfg)))
	mux.Handle("POST /admin/api/drive-sync", protected(handlers.DriveSyncHandler(cfg, repos.Courses, repos.Sheets, backend)))
}

// startCleanupWorker periodically removes stale gate counters and
// expired admin sessions.
func startCleanupWorker(ctx context.Context, cfg *config.Config, repos *repository.Repositories, window time.Duration) {
	interval := time.Duration(cfg.CleanupIntervalMinutes) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Counters older than two windows can never affect a verdict
			cutoff := time.Now().Add(-2 * window)
			if n, err := repos.WriteLimits.DeleteStale(ctx, cutoff); err != nil {
				slog.Error("failed to clean up write limits", "error", err)
			} else if n > 0 {
				slog.Info("cleaned up stale write limits", "removed", n)
			}

			if n, err := repos.Sessions.DeleteExpired(ctx); err != nil {
				slog.Error("failed to clean up sessions", "error", err)
			} else if n > 0 {
				slog.Info("cleaned up expired sessions", "removed", n)
			}
		}
	}
}
