package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/trikaweb/trikaweb/internal/repository"
)

// SessionRepository implements repository.SessionRepository for SQLite.
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new SQLite session repository.
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s repository.AdminSession) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO admin_sessions (token, username, created_at, expires_at, last_activity)
		VALUES (?, ?, ?, ?, ?)`,
		s.Token, s.Username, s.CreatedAt.UTC(), s.ExpiresAt.UTC(), s.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, token string) (*repository.AdminSession, error) {
	var s repository.AdminSession
	err := r.db.QueryRowContext(ctx, `
		SELECT token, username, created_at, expires_at, last_activity
		FROM admin_sessions WHERE token = ?`, token).
		Scan(&s.Token, &s.Username, &s.CreatedAt, &s.ExpiresAt, &s.LastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}
	return &s, nil
}

func (r *SessionRepository) Touch(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE admin_sessions SET last_activity = CURRENT_TIMESTAMP WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM admin_sessions WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM admin_sessions WHERE expires_at < CURRENT_TIMESTAMP`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return res.RowsAffected()
}
