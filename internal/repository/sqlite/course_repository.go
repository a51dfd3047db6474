package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/trikaweb/trikaweb/internal/models"
	"github.com/trikaweb/trikaweb/internal/repository"
)

// CourseRepository implements repository.CourseRepository for SQLite.
type CourseRepository struct {
	db *sql.DB
}

// NewCourseRepository creates a new SQLite course repository.
func NewCourseRepository(db *sql.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseSummarySelect = `
	SELECT c.id, c.code, c.name, COUNT(s.id) AS sheet_count
	FROM courses c
	LEFT JOIN sheets s ON s.course_id = c.id`

func (r *CourseRepository) List(ctx context.Context) ([]models.CourseSummary, error) {
	rows, err := r.db.QueryContext(ctx, courseSummarySelect+`
		GROUP BY c.id ORDER BY c.code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	defer rows.Close()

	return scanCourseSummaries(rows)
}

func (r *CourseRepository) GetByCode(ctx context.Context, code string) (*models.CourseDetail, error) {
	var detail models.CourseDetail
	err := r.db.QueryRowContext(ctx, courseSummarySelect+`
		WHERE c.code = ? GROUP BY c.id`, code).
		Scan(&detail.ID, &detail.Code, &detail.Name, &detail.SheetCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, exam_type, cycle, avg_difficulty, rating_count, view_count, teacher_hint, solution_kind
		FROM sheets
		WHERE course_id = ?
		ORDER BY cycle DESC, exam_type`, detail.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list course sheets: %w", err)
	}
	defer rows.Close()

	detail.Sheets = []models.SheetSummary{}
	for rows.Next() {
		var s models.SheetSummary
		var avg sql.NullFloat64
		var hint, kind sql.NullString
		if err := rows.Scan(&s.ID, &s.ExamType, &s.Cycle, &avg, &s.RatingCount, &s.ViewCount, &hint, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan sheet: %w", err)
		}
		s.AvgDifficulty = fromNullFloat(avg)
		s.TeacherHint = fromNullString(hint)
		s.SolutionKind = fromNullString(kind)
		detail.Sheets = append(detail.Sheets, s)
	}
	return &detail, rows.Err()
}

func (r *CourseRepository) GetByID(ctx context.Context, id int64) (*models.Course, error) {
	var c models.Course
	err := r.db.QueryRowContext(ctx,
		`SELECT id, code, name FROM courses WHERE id = ?`, id).
		Scan(&c.ID, &c.Code, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return &c, nil
}

func (r *CourseRepository) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	var c models.Course
	err := r.db.QueryRowContext(ctx,
		`SELECT id, code, name FROM courses WHERE code = ?`, code).
		Scan(&c.ID, &c.Code, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find course: %w", err)
	}
	return &c, nil
}

func (r *CourseRepository) Create(ctx context.Context, code, name string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO courses (code, name) VALUES (?, ?)`, code, name)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return 0, repository.ErrDuplicateKey
		}
		return 0, fmt.Errorf("failed to create course: %w", err)
	}
	return res.LastInsertId()
}

func (r *CourseRepository) SearchPrefilter(ctx context.Context, query string, limit int) ([]models.CourseSummary, error) {
	pattern := containsPattern(query)
	rows, err := r.db.QueryContext(ctx, courseSummarySelect+`
		WHERE c.code LIKE ? ESCAPE '\' OR c.name LIKE ? ESCAPE '\'
		GROUP BY c.id
		ORDER BY c.code
		LIMIT ?`, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to prefilter courses: %w", err)
	}
	defer rows.Close()

	return scanCourseSummaries(rows)
}

func scanCourseSummaries(rows *sql.Rows) ([]models.CourseSummary, error) {
	summaries := []models.CourseSummary{}
	for rows.Next() {
		var c models.CourseSummary
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.SheetCount); err != nil {
			return nil, fmt.Errorf("failed to scan course: %w", err)
		}
		summaries = append(summaries, c)
	}
	return summaries, rows.Err()
}
