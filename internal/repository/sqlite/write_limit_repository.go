package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trikaweb/trikaweb/internal/gate"
)

// WriteLimitRepository implements repository.WriteLimitRepository for SQLite.
type WriteLimitRepository struct {
	db *sql.DB
}

// NewWriteLimitRepository creates a new SQLite write limit repository.
func NewWriteLimitRepository(db *sql.DB) *WriteLimitRepository {
	return &WriteLimitRepository{db: db}
}

func (r *WriteLimitRepository) Get(ctx context.Context, key string) (*gate.Counter, error) {
	var c gate.Counter
	err := r.db.QueryRowContext(ctx, `
		SELECT ip_hash, count, last_seen, created_at
		FROM write_limits WHERE ip_hash = ?`, key).
		Scan(&c.Key, &c.Count, &c.LastSeen, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read write limit: %w", err)
	}
	return &c, nil
}

func (r *WriteLimitRepository) Put(ctx context.Context, c gate.Counter) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO write_limits (ip_hash, count, last_seen, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (ip_hash) DO UPDATE SET
			count = excluded.count,
			last_seen = excluded.last_seen`,
		c.Key, c.Count, c.LastSeen.UTC(), c.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to write write limit: %w", err)
	}
	return nil
}

func (r *WriteLimitRepository) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM write_limits WHERE last_seen < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale write limits: %w", err)
	}
	return res.RowsAffected()
}
