// Package testutil provides shared helpers for package tests: an
// in-memory datastore, a ready-to-use configuration and seed fixtures.
package testutil

import (
	"database/sql"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/trikaweb/trikaweb/internal/config"
	"github.com/trikaweb/trikaweb/internal/database"
	"github.com/trikaweb/trikaweb/internal/repository"
	"github.com/trikaweb/trikaweb/internal/repository/sqlite"
)

// SetupTestDB creates an in-memory SQLite database with the full schema.
// The connection is closed when the test completes.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	// Each pooled connection would get its own :memory: database, so the
	// schema and the queries must share a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := database.CreateSchema(db); err != nil {
		db.Close()
		t.Fatalf("failed to create schema: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// SetupRepositories creates the full repository set over an in-memory
// SQLite database.
func SetupRepositories(t *testing.T) *repository.Repositories {
	t.Helper()

	db := SetupTestDB(t)
	repos, err := sqlite.NewRepositories(db)
	if err != nil {
		t.Fatalf("failed to create repositories: %v", err)
	}
	return repos
}

// SetupTestConfig returns a configuration suitable for handler tests:
// filesystem storage in a temp dir, permissive rate limits, fixed salt.
func SetupTestConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Port:            "8080",
		DatabaseBackend: config.DatabaseSQLite,
		DBPath:          ":memory:",

		IPSalt:             "test-salt",
		RateLimitRating:    100,
		RateLimitView:      100,
		RateLimitWindowMin: 60,

		StorageBackend:  config.StorageFilesystem,
		DataDir:         t.TempDir(),
		ExamsBucket:     "exams",
		SolutionsBucket: "solutions",
		SignedURLTTLSec: 120,

		AdminUsername:   "admin",
		AdminPassword:   "test-password",
		SessionTTLHours: 12,

		CleanupIntervalMinutes: 60,
	}
}
