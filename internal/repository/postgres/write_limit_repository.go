package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/trikaweb/trikaweb/internal/gate"
)

// WriteLimitRepository implements repository.WriteLimitRepository for PostgreSQL.
type WriteLimitRepository struct {
	pool *Pool
}

// NewWriteLimitRepository creates a new PostgreSQL write limit repository.
func NewWriteLimitRepository(pool *Pool) *WriteLimitRepository {
	return &WriteLimitRepository{pool: pool}
}

func (r *WriteLimitRepository) Get(ctx context.Context, key string) (*gate.Counter, error) {
	var c gate.Counter
	err := r.pool.QueryRow(ctx, `
		SELECT ip_hash, count, last_seen, created_at
		FROM write_limits WHERE ip_hash = $1`, key).
		Scan(&c.Key, &c.Count, &c.LastSeen, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read write limit: %w", err)
	}
	return &c, nil
}

func (r *WriteLimitRepository) Put(ctx context.Context, c gate.Counter) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO write_limits (ip_hash, count, last_seen, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ip_hash) DO UPDATE SET
			count = EXCLUDED.count,
			last_seen = EXCLUDED.last_seen`,
		c.Key, c.Count, c.LastSeen.UTC(), c.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to write write limit: %w", err)
	}
	return nil
}

func (r *WriteLimitRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM write_limits WHERE last_seen < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale write limits: %w", err)
	}
	return tag.RowsAffected(), nil
}
