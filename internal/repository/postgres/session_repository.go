package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/trikaweb/trikaweb/internal/repository"
)

// SessionRepository implements repository.SessionRepository for PostgreSQL.
type SessionRepository struct {
	pool *Pool
}

// NewSessionRepository creates a new PostgreSQL session repository.
func NewSessionRepository(pool *Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func (r *SessionRepository) Create(ctx context.Context, s repository.AdminSession) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO admin_sessions (token, username, created_at, expires_at, last_activity)
		VALUES ($1, $2, $3, $4, $5)`,
		s.Token, s.Username, s.CreatedAt.UTC(), s.ExpiresAt.UTC(), s.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, token string) (*repository.AdminSession, error) {
	var s repository.AdminSession
	err := r.pool.QueryRow(ctx, `
		SELECT token, username, created_at, expires_at, last_activity
		FROM admin_sessions WHERE token = $1`, token).
		Scan(&s.Token, &s.Username, &s.CreatedAt, &s.ExpiresAt, &s.LastActivity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return &s, nil
}

func (r *SessionRepository) Touch(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE admin_sessions SET last_activity = NOW() WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM admin_sessions WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM admin_sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
