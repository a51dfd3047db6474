package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/trikaweb/trikaweb/internal/models"
	"github.com/trikaweb/trikaweb/internal/repository"
)

// SheetRepository implements repository.SheetRepository for PostgreSQL.
type SheetRepository struct {
	pool *Pool
}

// NewSheetRepository creates a new PostgreSQL sheet repository.
func NewSheetRepository(pool *Pool) *SheetRepository {
	return &SheetRepository{pool: pool}
}

const sheetSelect = `
	SELECT s.id, s.course_id, s.exam_type, s.cycle, s.exam_storage_path,
	       s.solution_kind, s.solution_storage_path, s.solution_video_url,
	       s.teacher_hint, s.avg_difficulty, s.rating_count, s.view_count,
	       s.created_at, c.code, c.name
	FROM sheets s
	JOIN courses c ON c.id = s.course_id`

func (r *SheetRepository) GetByID(ctx context.Context, id int64) (*models.Sheet, error) {
	row := r.pool.QueryRow(ctx, sheetSelect+` WHERE s.id = $1`, id)
	s, err := scanSheet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sheet: %w", err)
	}
	return s, nil
}

func (r *SheetRepository) GetBatch(ctx context.Context, ids []int64) ([]models.Sheet, error) {
	if len(ids) == 0 {
		return []models.Sheet{}, nil
	}

	rows, err := r.pool.Query(ctx, sheetSelect+` WHERE s.id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to batch sheets: %w", err)
	}
	defer rows.Close()

	return scanSheets(rows)
}

func (r *SheetRepository) Top(ctx context.Context, by string, limit int) ([]models.Sheet, error) {
	query := sheetSelect + `
		ORDER BY s.view_count DESC, s.id
		LIMIT $1`
	args := []any{limit}

	if by == repository.TopByDifficulty {
		query = sheetSelect + `
			WHERE s.rating_count >= $1 AND s.avg_difficulty IS NOT NULL
			ORDER BY s.avg_difficulty DESC, s.id
			LIMIT $2`
		args = []any{repository.MinRatingsForTop, limit}
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list top sheets: %w", err)
	}
	defer rows.Close()

	return scanSheets(rows)
}

func (r *SheetRepository) Create(ctx context.Context, s *models.Sheet) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO sheets (course_id, exam_type, cycle, exam_storage_path,
			solution_kind, solution_storage_path, solution_video_url, teacher_hint)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		s.CourseID, s.ExamType, s.Cycle, s.ExamStoragePath,
		s.SolutionKind, s.SolutionStoragePath, s.SolutionVideoURL, s.TeacherHint).
		Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create sheet: %w", err)
	}
	return id, nil
}

func (r *SheetRepository) ExistsByStoragePath(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM sheets WHERE exam_storage_path = $1)`, path).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check storage path: %w", err)
	}
	return exists, nil
}

func (r *SheetRepository) FindByCourseExam(ctx context.Context, courseID int64, examType, cycle string) (*models.Sheet, error) {
	row := r.pool.QueryRow(ctx, sheetSelect+`
		WHERE s.course_id = $1 AND s.exam_type = $2 AND s.cycle = $3`,
		courseID, examType, cycle)
	s, err := scanSheet(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find sheet: %w", err)
	}
	return s, nil
}

func (r *SheetRepository) SetSolution(ctx context.Context, sheetID int64, kind string, storagePath, videoURL *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sheets SET solution_kind = $1, solution_storage_path = $2, solution_video_url = $3
		WHERE id = $4`, kind, storagePath, videoURL, sheetID)
	if err != nil {
		return fmt.Errorf("failed to set solution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *SheetRepository) UpdateExam(ctx context.Context, sheetID int64, storagePath string, teacherHint *string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sheets SET exam_storage_path = $1,
			teacher_hint = COALESCE($2, teacher_hint)
		WHERE id = $3`, storagePath, teacherHint, sheetID)
	if err != nil {
		return fmt.Errorf("failed to update exam: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *SheetRepository) UpsertRating(ctx context.Context, rating *models.SheetRating) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// A device re-rating a sheet replaces its previous vote
	_, err = tx.Exec(ctx, `
		INSERT INTO sheet_ratings (sheet_id, device_id, ip_hash, score)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (sheet_id, device_id) DO UPDATE SET
			score = EXCLUDED.score,
			ip_hash = EXCLUDED.ip_hash,
			created_at = NOW()`,
		rating.SheetID, rating.DeviceID, rating.IPHash, rating.Score)
	if err != nil {
		return fmt.Errorf("failed to upsert rating: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE sheets SET
			avg_difficulty = (SELECT ROUND(AVG(score)::numeric, 2)::float8 FROM sheet_ratings WHERE sheet_id = $1),
			rating_count = (SELECT COUNT(*) FROM sheet_ratings WHERE sheet_id = $1)
		WHERE id = $1`, rating.SheetID)
	if err != nil {
		return fmt.Errorf("failed to refresh sheet aggregates: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (r *SheetRepository) HasRatingByDevice(ctx context.Context, sheetID int64, deviceID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM sheet_ratings WHERE sheet_id = $1 AND device_id = $2)`,
		sheetID, deviceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check device rating: %w", err)
	}
	return exists, nil
}

func (r *SheetRepository) CountRatingsByIP(ctx context.Context, sheetID int64, ipHash string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM sheet_ratings WHERE sheet_id = $1 AND ip_hash = $2`,
		sheetID, ipHash).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ratings by ip: %w", err)
	}
	return count, nil
}

func (r *SheetRepository) InsertView(ctx context.Context, v *models.SheetView) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO sheet_views (sheet_id, device_id, ip_hash)
		VALUES ($1, $2, $3)`, v.SheetID, v.DeviceID, v.IPHash); err != nil {
		return fmt.Errorf("failed to insert view: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE sheets SET view_count = (SELECT COUNT(*) FROM sheet_views WHERE sheet_id = $1)
		WHERE id = $1`, v.SheetID)
	if err != nil {
		return fmt.Errorf("failed to refresh view count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (r *SheetRepository) SearchPrefilter(ctx context.Context, query string, courseIDs []int64, limit int) ([]models.Sheet, error) {
	pattern := containsPattern(query)

	var rows pgx.Rows
	var err error
	if len(courseIDs) > 0 {
		rows, err = r.pool.Query(ctx, sheetSelect+`
			WHERE (s.exam_type LIKE $1 OR s.cycle LIKE $1 OR c.code LIKE $1 OR c.name LIKE $1)
				OR s.course_id = ANY($2)
			ORDER BY s.id
			LIMIT $3`, pattern, courseIDs, limit)
	} else {
		rows, err = r.pool.Query(ctx, sheetSelect+`
			WHERE s.exam_type LIKE $1 OR s.cycle LIKE $1 OR c.code LIKE $1 OR c.name LIKE $1
			ORDER BY s.id
			LIMIT $2`, pattern, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to prefilter sheets: %w", err)
	}
	defer rows.Close()

	return scanSheets(rows)
}

func scanSheet(row pgx.Row) (*models.Sheet, error) {
	var s models.Sheet
	err := row.Scan(&s.ID, &s.CourseID, &s.ExamType, &s.Cycle, &s.ExamStoragePath,
		&s.SolutionKind, &s.SolutionStoragePath, &s.SolutionVideoURL,
		&s.TeacherHint, &s.AvgDifficulty, &s.RatingCount, &s.ViewCount,
		&s.CreatedAt, &s.CourseCode, &s.CourseName)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func scanSheets(rows pgx.Rows) ([]models.Sheet, error) {
	sheets := []models.Sheet{}
	for rows.Next() {
		s, err := scanSheet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sheet: %w", err)
		}
		sheets = append(sheets, *s)
	}
	return sheets, rows.Err()
}
