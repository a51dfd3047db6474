package postgres

import (
	"context"
	"fmt"
)

// migrations are applied in order at startup. Each statement is
// idempotent so repeated runs are harmless.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS courses (
		id BIGSERIAL PRIMARY KEY,
		code TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS teachers (
		id BIGSERIAL PRIMARY KEY,
		full_name TEXT NOT NULL,
		bio TEXT NOT NULL DEFAULT '',
		avg_overall DOUBLE PRECISION,
		rating_count INTEGER NOT NULL DEFAULT 0,
		avatar_url TEXT,
		is_hidden BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS courses_teachers (
		course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		teacher_id BIGINT NOT NULL REFERENCES teachers(id) ON DELETE CASCADE,
		PRIMARY KEY (course_id, teacher_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sheets (
		id BIGSERIAL PRIMARY KEY,
		course_id BIGINT NOT NULL REFERENCES courses(id) ON DELETE CASCADE,
		exam_type TEXT NOT NULL,
		cycle TEXT NOT NULL,
		exam_storage_path TEXT NOT NULL,
		solution_kind TEXT,
		solution_storage_path TEXT,
		solution_video_url TEXT,
		teacher_hint TEXT,
		avg_difficulty DOUBLE PRECISION,
		rating_count INTEGER NOT NULL DEFAULT 0,
		view_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS sheet_ratings (
		id BIGSERIAL PRIMARY KEY,
		sheet_id BIGINT NOT NULL REFERENCES sheets(id) ON DELETE CASCADE,
		device_id TEXT NOT NULL,
		ip_hash TEXT NOT NULL,
		score INTEGER NOT NULL CHECK (score BETWEEN 1 AND 5),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (sheet_id, device_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sheet_views (
		id BIGSERIAL PRIMARY KEY,
		sheet_id BIGINT NOT NULL REFERENCES sheets(id) ON DELETE CASCADE,
		device_id TEXT,
		ip_hash TEXT NOT NULL,
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS teacher_ratings (
		id BIGSERIAL PRIMARY KEY,
		teacher_id BIGINT NOT NULL REFERENCES teachers(id) ON DELETE CASCADE,
		device_id TEXT NOT NULL,
		overall DOUBLE PRECISION NOT NULL,
		difficulty INTEGER NOT NULL CHECK (difficulty BETWEEN 1 AND 5),
		didactic INTEGER NOT NULL CHECK (didactic BETWEEN 1 AND 5),
		resources INTEGER NOT NULL CHECK (resources BETWEEN 1 AND 5),
		responsability INTEGER NOT NULL CHECK (responsability BETWEEN 1 AND 5),
		grading INTEGER NOT NULL CHECK (grading BETWEEN 1 AND 5),
		comment TEXT,
		ip_hash TEXT NOT NULL,
		is_hidden BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ,
		UNIQUE (teacher_id, device_id)
	)`,
	`CREATE TABLE IF NOT EXISTS write_limits (
		ip_hash TEXT PRIMARY KEY,
		count INTEGER NOT NULL DEFAULT 1,
		last_seen TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS admin_sessions (
		token TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ NOT NULL,
		last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sheets_course ON sheets(course_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sheet_ratings_sheet ON sheet_ratings(sheet_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sheet_views_sheet ON sheet_views(sheet_id)`,
	`CREATE INDEX IF NOT EXISTS idx_teacher_ratings_teacher ON teacher_ratings(teacher_id)`,
	`CREATE INDEX IF NOT EXISTS idx_teacher_ratings_iphash ON teacher_ratings(ip_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_admin_sessions_expires ON admin_sessions(expires_at)`,
	`CREATE INDEX IF NOT EXISTS idx_write_limits_last_seen ON write_limits(last_seen)`,
}

// RunMigrations applies the schema to the connected database.
func RunMigrations(ctx context.Context, pool *Pool) error {
	for i, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
