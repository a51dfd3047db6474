package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/trikaweb/trikaweb/internal/models"
	"github.com/trikaweb/trikaweb/internal/repository"
)

// CourseRepository implements repository.CourseRepository for PostgreSQL.
type CourseRepository struct {
	pool *Pool
}

// NewCourseRepository creates a new PostgreSQL course repository.
func NewCourseRepository(pool *Pool) *CourseRepository {
	return &CourseRepository{pool: pool}
}

const courseSummarySelect = `
	SELECT c.id, c.code, c.name, COUNT(s.id) AS sheet_count
	FROM courses c
	LEFT JOIN sheets s ON s.course_id = c.id`

func (r *CourseRepository) List(ctx context.Context) ([]models.CourseSummary, error) {
	rows, err := r.pool.Query(ctx, courseSummarySelect+`
		GROUP BY c.id ORDER BY c.code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list courses: %w", err)
	}
	defer rows.Close()

	return scanCourseSummaries(rows)
}

func (r *CourseRepository) GetByCode(ctx context.Context, code string) (*models.CourseDetail, error) {
	var detail models.CourseDetail
	err := r.pool.QueryRow(ctx, courseSummarySelect+`
		WHERE c.code = $1 GROUP BY c.id`, code).
		Scan(&detail.ID, &detail.Code, &detail.Name, &detail.SheetCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, exam_type, cycle, avg_difficulty, rating_count, view_count, teacher_hint, solution_kind
		FROM sheets
		WHERE course_id = $1
		ORDER BY cycle DESC, exam_type`, detail.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list course sheets: %w", err)
	}
	defer rows.Close()

	detail.Sheets = []models.SheetSummary{}
	for rows.Next() {
		var s models.SheetSummary
		if err := rows.Scan(&s.ID, &s.ExamType, &s.Cycle, &s.AvgDifficulty,
			&s.RatingCount, &s.ViewCount, &s.TeacherHint, &s.SolutionKind); err != nil {
			return nil, fmt.Errorf("failed to scan sheet: %w", err)
		}
		detail.Sheets = append(detail.Sheets, s)
	}
	return &detail, rows.Err()
}

func (r *CourseRepository) GetByID(ctx context.Context, id int64) (*models.Course, error) {
	var c models.Course
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, name FROM courses WHERE id = $1`, id).
		Scan(&c.ID, &c.Code, &c.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course: %w", err)
	}
	return &c, nil
}

func (r *CourseRepository) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	var c models.Course
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, name FROM courses WHERE code = $1`, code).
		Scan(&c.ID, &c.Code, &c.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find course: %w", err)
	}
	return &c, nil
}

func (r *CourseRepository) Create(ctx context.Context, code, name string) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO courses (code, name) VALUES ($1, $2) RETURNING id`, code, name).
		Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, repository.ErrDuplicateKey
		}
		return 0, fmt.Errorf("failed to create course: %w", err)
	}
	return id, nil
}

func (r *CourseRepository) SearchPrefilter(ctx context.Context, query string, limit int) ([]models.CourseSummary, error) {
	pattern := containsPattern(query)
	rows, err := r.pool.Query(ctx, courseSummarySelect+`
		WHERE c.code LIKE $1 OR c.name LIKE $1
		GROUP BY c.id
		ORDER BY c.code
		LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to prefilter courses: %w", err)
	}
	defer rows.Close()

	return scanCourseSummaries(rows)
}

func scanCourseSummaries(rows pgx.Rows) ([]models.CourseSummary, error) {
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
