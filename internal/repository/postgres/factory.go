package postgres

import (
	"context"
	"fmt"

	"github.com/trikaweb/trikaweb/internal/config"
	"github.com/trikaweb/trikaweb/internal/repository"
)

// NewRepositories creates all PostgreSQL repository implementations.
// It opens a connection pool, applies migrations and returns the
// repositories with a Cleanup that closes the pool.
func NewRepositories(ctx context.Context, cfg *config.Config) (*repository.Repositories, error) {
	pool, err := NewPool(ctx, cfg.PostgresURL, int32(cfg.PostgresMaxConns))
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &repository.Repositories{
		Courses:      NewCourseRepository(pool),
		Teachers:     NewTeacherRepository(pool),
		Sheets:       NewSheetRepository(pool),
		WriteLimits:  NewWriteLimitRepository(pool),
		Sessions:     NewSessionRepository(pool),
		DatabaseType: repository.DatabaseTypePostgreSQL,
		Ping:         pool.Ping,
		Cleanup: func() {
			pool.Close()
		},
	}, nil
}
