// Command drive-sync mirrors exam and solution PDFs from the shared
// Google Drive folders into file storage, for cron jobs and one-off
// imports outside the server's admin endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/trikaweb/trikaweb/internal/config"
	"github.com/trikaweb/trikaweb/internal/database"
	"github.com/trikaweb/trikaweb/internal/drive"
	"github.com/trikaweb/trikaweb/internal/repository"
	"github.com/trikaweb/trikaweb/internal/repository/postgres"
	"github.com/trikaweb/trikaweb/internal/repository/sqlite"
	"github.com/trikaweb/trikaweb/internal/storage"
	fsstorage "github.com/trikaweb/trikaweb/internal/storage/filesystem"
	s3storage "github.com/trikaweb/trikaweb/internal/storage/s3"
)

func main() {
	syncType := flag.String("type", "all", "what to sync: exams, solutions or all")
	timeout := flag.Duration("timeout", 30*time.Minute, "overall sync timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	// Local env files are optional; real deployments set the environment
	// directly.
	for _, f := range []string{".env", ".env.local"} {
		if err := godotenv.Load(f); err == nil {
			slog.Info("loaded environment file", "file", f)
		}
	}

	if err := run(*syncType, *timeout); err != nil {
		slog.Error("sync failed", "error", err)
		os.Exit(1)
	}
}

func run(syncType string, timeout time.Duration) error {
	switch syncType {
	case "exams", "solutions", "all":
	default:
		return fmt.Errorf("invalid -type %q: must be exams, solutions or all", syncType)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if missing := cfg.DriveMissingVars(syncType); len(missing) > 0 {
		return fmt.Errorf("drive sync is not configured, missing: %s", strings.Join(missing, ", "))
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	repos, err := buildRepositories(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize datastore: %w", err)
	}
	defer repos.Cleanup()

	backend, err := buildStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	client, err := drive.NewClient(ctx, cfg.DriveCredentialsFile)
	if err != nil {
		return fmt.Errorf("failed to create drive client: %w", err)
	}

	syncer := drive.NewSyncer(client, backend, repos.Courses, repos.Sheets)

	if syncType == "exams" || syncType == "all" {
		res, err := syncer.SyncExams(ctx, cfg.DriveExamsFolderID)
		if err != nil {
			return fmt.Errorf("exam sync failed: %w", err)
		}
		slog.Info("exam sync finished",
			"synced", res.Synced, "skipped", res.Skipped, "failed", res.Failed)
	}

	if syncType == "solutions" || syncType == "all" {
		res, err := syncer.SyncSolutions(ctx, cfg.DriveSolutionsFolderID)
		if err != nil {
			return fmt.Errorf("solution sync failed: %w", err)
		}
		slog.Info("solution sync finished",
			"synced", res.Synced, "skipped", res.Skipped,
			"no_sheet", res.NoSheet, "failed", res.Failed)
	}

	return nil
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
