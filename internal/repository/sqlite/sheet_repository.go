package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/trikaweb/trikaweb/internal/models"
	"github.com/trikaweb/trikaweb/internal/repository"
)

// SheetRepository implements repository.SheetRepository for SQLite.
type SheetRepository struct {
	db *sql.DB
}

// NewSheetRepository creates a new SQLite sheet repository.
func NewSheetRepository(db *sql.DB) *SheetRepository {
	return &SheetRepository{db: db}
}

const sheetSelect = `
	SELECT s.id, s.course_id, s.exam_type, s.cycle, s.exam_storage_path,
	       s.solution_kind, s.solution_storage_path, s.solution_video_url,
	       s.teacher_hint, s.avg_difficulty, s.rating_count, s.view_count,
	       s.created_at, c.code, c.name
	FROM sheets s
	JOIN courses c ON c.id = s.course_id`

func (r *SheetRepository) GetByID(ctx context.Context, id int64) (*models.Sheet, error) {
	row := r.db.QueryRowContext(ctx, sheetSelect+` WHERE s.id = ?`, id)
	s, err := scanSheet(row)
	if errors.Is(err, sql.ErrNoRows) {
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

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.QueryContext(ctx,
		sheetSelect+` WHERE s.id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to batch sheets: %w", err)
	}
	defer rows.Close()

	return scanSheets(rows)
}

func (r *SheetRepository) Top(ctx context.Context, by string, limit int) ([]models.Sheet, error) {
	query := sheetSelect + `
		ORDER BY s.view_count DESC, s.id
		LIMIT ?`
	args := []any{limit}

	if by == repository.TopByDifficulty {
		query = sheetSelect + `
			WHERE s.rating_count >= ? AND s.avg_difficulty IS NOT NULL
			ORDER BY s.avg_difficulty DESC, s.id
			LIMIT ?`
		args = []any{repository.MinRatingsForTop, limit}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list top sheets: %w", err)
	}
	defer rows.Close()

	return scanSheets(rows)
}

func (r *SheetRepository) Create(ctx context.Context, s *models.Sheet) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO sheets (course_id, exam_type, cycle, exam_storage_path,
			solution_kind, solution_storage_path, solution_video_url, teacher_hint)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.CourseID, s.ExamType, s.Cycle, s.ExamStoragePath,
		nullString(s.SolutionKind), nullString(s.SolutionStoragePath),
		nullString(s.SolutionVideoURL), nullString(s.TeacherHint))
	if err != nil {
		return 0, fmt.Errorf("failed to create sheet: %w", err)
	}
	return res.LastInsertId()
}

func (r *SheetRepository) ExistsByStoragePath(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM sheets WHERE exam_storage_path = ?)`, path).
		Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check storage path: %w", err)
	}
	return exists, nil
}

func (r *SheetRepository) FindByCourseExam(ctx context.Context, courseID int64, examType, cycle string) (*models.Sheet, error) {
	row := r.db.QueryRowContext(ctx, sheetSelect+`
		WHERE s.course_id = ? AND s.exam_type = ? AND s.cycle = ?`,
		courseID, examType, cycle)
	s, err := scanSheet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find sheet: %w", err)
	}
	return s, nil
}

func (r *SheetRepository) SetSolution(ctx context.Context, sheetID int64, kind string, storagePath, videoURL *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sheets SET solution_kind = ?, solution_storage_path = ?, solution_video_url = ?
		WHERE id = ?`, kind, nullString(storagePath), nullString(videoURL), sheetID)
	if err != nil {
		return fmt.Errorf("failed to set solution: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *SheetRepository) UpdateExam(ctx context.Context, sheetID int64, storagePath string, teacherHint *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sheets SET exam_storage_path = ?,
			teacher_hint = COALESCE(?, teacher_hint)
		WHERE id = ?`, storagePath, nullString(teacherHint), sheetID)
	if err != nil {
		return fmt.Errorf("failed to update exam: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *SheetRepository) UpsertRating(ctx context.Context, rating *models.SheetRating) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// A device re-rating a sheet replaces its previous vote
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sheet_ratings (sheet_id, device_id, ip_hash, score)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (sheet_id, device_id) DO UPDATE SET
			score = excluded.score,
			ip_hash = excluded.ip_hash,
			created_at = CURRENT_TIMESTAMP`,
		rating.SheetID, rating.DeviceID, rating.IPHash, rating.Score)
	if err != nil {
		return fmt.Errorf("failed to upsert rating: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE sheets SET
			avg_difficulty = (SELECT ROUND(AVG(score), 2) FROM sheet_ratings WHERE sheet_id = ?),
			rating_count = (SELECT COUNT(*) FROM sheet_ratings WHERE sheet_id = ?)
		WHERE id = ?`, rating.SheetID, rating.SheetID, rating.SheetID)
	if err != nil {
		return fmt.Errorf("failed to refresh sheet aggregates: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return repository.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (r *SheetRepository) HasRatingByDevice(ctx context.Context, sheetID int64, deviceID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM sheet_ratings WHERE sheet_id = ? AND device_id = ?)`,
		sheetID, deviceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check device rating: %w", err)
	}
	return exists, nil
}

func (r *SheetRepository) CountRatingsByIP(ctx context.Context, sheetID int64, ipHash string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sheet_ratings WHERE sheet_id = ? AND ip_hash = ?`,
		sheetID, ipHash).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ratings by ip: %w", err)
	}
	return count, nil
}

func (r *SheetRepository) InsertView(ctx context.Context, v *models.SheetView) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sheet_views (sheet_id, device_id, ip_hash)
		VALUES (?, ?, ?)`, v.SheetID, nullString(v.DeviceID), v.IPHash); err != nil {
		return fmt.Errorf("failed to insert view: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE sheets SET view_count = (SELECT COUNT(*) FROM sheet_views WHERE sheet_id = ?)
		WHERE id = ?`, v.SheetID, v.SheetID)
	if err != nil {
		return fmt.Errorf("failed to refresh view count: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return repository.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (r *SheetRepository) SearchPrefilter(ctx context.Context, query string, courseIDs []int64, limit int) ([]models.Sheet, error) {
	pattern := containsPattern(query)
	args := []any{pattern, pattern, pattern, pattern}

	where := `(s.exam_type LIKE ? ESCAPE '\' OR s.cycle LIKE ? ESCAPE '\'
		OR c.code LIKE ? ESCAPE '\' OR c.name LIKE ? ESCAPE '\')`

	if len(courseIDs) > 0 {
		where += ` OR s.course_id IN (` + placeholders(len(courseIDs)) + `)`
		for _, id := range courseIDs {
			args = append(args, id)
		}
	}
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, sheetSelect+`
		WHERE `+where+`
		ORDER BY s.id
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to prefilter sheets: %w", err)
	}
	defer rows.Close()

	return scanSheets(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSheet(row rowScanner) (*models.Sheet, error) {
	var s models.Sheet
	var kind, solPath, video, hint sql.NullString
	var avg sql.NullFloat64
	err := row.Scan(&s.ID, &s.CourseID, &s.ExamType, &s.Cycle, &s.ExamStoragePath,
		&kind, &solPath, &video, &hint, &avg, &s.RatingCount, &s.ViewCount,
		&s.CreatedAt, &s.CourseCode, &s.CourseName)
	if err != nil {
		return nil, err
	}
	s.SolutionKind = fromNullString(kind)
	s.SolutionStoragePath = fromNullString(solPath)
	s.SolutionVideoURL = fromNullString(video)
	s.TeacherHint = fromNullString(hint)
	s.AvgDifficulty = fromNullFloat(avg)
	return &s, nil
}

func scanSheets(rows *sql.Rows) ([]models.Sheet, error) {
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
