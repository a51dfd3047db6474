package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/trikaweb/trikaweb/internal/models"
	"github.com/trikaweb/trikaweb/internal/repository"
)

// TeacherRepository implements repository.TeacherRepository for PostgreSQL.
type TeacherRepository struct {
	pool *Pool
}

// NewTeacherRepository creates a new PostgreSQL teacher repository.
func NewTeacherRepository(pool *Pool) *TeacherRepository {
	return &TeacherRepository{pool: pool}
}

const teacherSelect = `
	SELECT id, full_name, bio, avg_overall, rating_count, avatar_url, is_hidden
	FROM teachers`

func (r *TeacherRepository) List(ctx context.Context, courseCode string) ([]models.TeacherSummary, error) {
	var rows pgx.Rows
	var err error

	if courseCode != "" {
		rows, err = r.pool.Query(ctx, `
			SELECT t.id, t.full_name, t.bio, t.avg_overall, t.rating_count, t.avatar_url, t.is_hidden
			FROM teachers t
			JOIN courses_teachers ct ON ct.teacher_id = t.id
			JOIN courses c ON c.id = ct.course_id
			WHERE NOT t.is_hidden AND c.code = $1
			ORDER BY t.full_name`, courseCode)
	} else {
		rows, err = r.pool.Query(ctx, teacherSelect+`
			WHERE NOT is_hidden ORDER BY full_name`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list teachers: %w", err)
	}
	defer rows.Close()

	return r.scanWithCourses(ctx, rows)
}

func (r *TeacherRepository) ListAll(ctx context.Context) ([]models.TeacherSummary, error) {
	rows, err := r.pool.Query(ctx, teacherSelect+` ORDER BY full_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list teachers: %w", err)
	}
	defer rows.Close()

	return r.scanWithCourses(ctx, rows)
}

func (r *TeacherRepository) Top(ctx context.Context, limit int) ([]models.TeacherSummary, error) {
	rows, err := r.pool.Query(ctx, teacherSelect+`
		WHERE NOT is_hidden AND rating_count >= $1
		ORDER BY avg_overall DESC, rating_count DESC
		LIMIT $2`, repository.MinRatingsForTop, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top teachers: %w", err)
	}
	defer rows.Close()

	return r.scanWithCourses(ctx, rows)
}

func (r *TeacherRepository) GetByID(ctx context.Context, id int64) (*models.Teacher, error) {
	var t models.Teacher
	err := r.pool.QueryRow(ctx, teacherSelect+` WHERE id = $1`, id).
		Scan(&t.ID, &t.FullName, &t.Bio, &t.AvgOverall, &t.RatingCount, &t.AvatarURL, &t.IsHidden)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get teacher: %w", err)
	}
	return &t, nil
}

func (r *TeacherRepository) Stats(ctx context.Context, id int64) (*models.TeacherStats, error) {
	var s models.TeacherStats
	err := r.pool.QueryRow(ctx, `
		SELECT ROUND(AVG(overall)::numeric, 2)::float8, ROUND(AVG(difficulty)::numeric, 2)::float8,
		       ROUND(AVG(didactic)::numeric, 2)::float8, ROUND(AVG(resources)::numeric, 2)::float8,
		       ROUND(AVG(responsability)::numeric, 2)::float8, ROUND(AVG(grading)::numeric, 2)::float8
		FROM teacher_ratings
		WHERE teacher_id = $1 AND NOT is_hidden`, id).
		Scan(&s.AvgOverall, &s.AvgDifficulty, &s.AvgDidactic,
			&s.AvgResources, &s.AvgResponsability, &s.AvgGrading)
	if err != nil {
		return nil, fmt.Errorf("failed to compute teacher stats: %w", err)
	}
	return &s, nil
}

func (r *TeacherRepository) CoursesFor(ctx context.Context, teacherID int64) ([]models.CourseRef, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.code, c.name
		FROM courses c
		JOIN courses_teachers ct ON ct.course_id = c.id
		WHERE ct.teacher_id = $1
		ORDER BY c.code`, teacherID)
	if err != nil {
		return nil, fmt.Errorf("failed to list teacher courses: %w", err)
	}
	defer rows.Close()

	refs := []models.CourseRef{}
	for rows.Next() {
		var ref models.CourseRef
		if err := rows.Scan(&ref.ID, &ref.Code, &ref.Name); err != nil {
			return nil, fmt.Errorf("failed to scan course ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (r *TeacherRepository) Reviews(ctx context.Context, teacherID int64, page, pageSize int) ([]models.TeacherRating, int, error) {
	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM teacher_ratings WHERE teacher_id = $1 AND NOT is_hidden`, teacherID).
		Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count reviews: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := r.pool.Query(ctx, `
		SELECT id, overall, difficulty, didactic, resources, responsability, grading, comment, created_at
		FROM teacher_ratings
		WHERE teacher_id = $1 AND NOT is_hidden
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, teacherID, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []models.TeacherRating{}
	for rows.Next() {
		var rt models.TeacherRating
		if err := rows.Scan(&rt.ID, &rt.Overall, &rt.Difficulty, &rt.Didactic, &rt.Resources,
			&rt.Responsability, &rt.Grading, &rt.Comment, &rt.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan review: %w", err)
		}
		reviews = append(reviews, rt)
	}
	return reviews, total, rows.Err()
}

func (r *TeacherRepository) Create(ctx context.Context, t *models.Teacher, courseIDs []int64) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO teachers (full_name, bio, avatar_url, is_hidden)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		t.FullName, t.Bio, t.AvatarURL, t.IsHidden).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create teacher: %w", err)
	}

	if err := linkCourses(ctx, tx, id, courseIDs); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return id, nil
}

func (r *TeacherRepository) Update(ctx context.Context, t *models.Teacher, courseIDs []int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE teachers SET full_name = $1, bio = $2, avatar_url = $3, is_hidden = $4
		WHERE id = $5`,
		t.FullName, t.Bio, t.AvatarURL, t.IsHidden, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update teacher: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM courses_teachers WHERE teacher_id = $1`, t.ID); err != nil {
		return fmt.Errorf("failed to clear course links: %w", err)
	}
	if err := linkCourses(ctx, tx, t.ID, courseIDs); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (r *TeacherRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM teachers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete teacher: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *TeacherRepository) SetHidden(ctx context.Context, id int64, hidden bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE teachers SET is_hidden = $1 WHERE id = $2`, hidden, id)
	if err != nil {
		return fmt.Errorf("failed to set teacher visibility: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *TeacherRepository) UpsertRating(ctx context.Context, rt *models.TeacherRating, ipHash string) (int64, error) {
	// A device re-reviewing a teacher replaces its previous review.
	// Both paths leave the row hidden so edits go back through moderation.
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO teacher_ratings
			(teacher_id, device_id, overall, difficulty, didactic, resources, responsability, grading, comment, ip_hash, is_hidden)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE)
		ON CONFLICT (teacher_id, device_id) DO UPDATE SET
			overall = EXCLUDED.overall,
			difficulty = EXCLUDED.difficulty,
			didactic = EXCLUDED.didactic,
			resources = EXCLUDED.resources,
			responsability = EXCLUDED.responsability,
			grading = EXCLUDED.grading,
			comment = EXCLUDED.comment,
			ip_hash = EXCLUDED.ip_hash,
			is_hidden = TRUE,
			updated_at = NOW()
		RETURNING id`,
		rt.TeacherID, rt.DeviceID, rt.Overall, rt.Difficulty, rt.Didactic, rt.Resources,
		rt.Responsability, rt.Grading, rt.Comment, ipHash).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert rating: %w", err)
	}
	return id, nil
}

func (r *TeacherRepository) HasRatingByDevice(ctx context.Context, teacherID int64, deviceID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM teacher_ratings WHERE teacher_id = $1 AND device_id = $2)`,
		teacherID, deviceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check device rating: %w", err)
	}
	return exists, nil
}

func (r *TeacherRepository) CountRatingsByIP(ctx context.Context, teacherID int64, ipHash string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM teacher_ratings WHERE teacher_id = $1 AND ip_hash = $2`,
		teacherID, ipHash).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ratings by ip: %w", err)
	}
	return count, nil
}

func (r *TeacherRepository) GetRating(ctx context.Context, ratingID int64) (*models.TeacherRating, error) {
	var rt models.TeacherRating
	err := r.pool.QueryRow(ctx, `
		SELECT tr.id, tr.teacher_id, tr.overall, tr.difficulty, tr.didactic, tr.resources,
		       tr.responsability, tr.grading, tr.comment, tr.is_hidden, tr.created_at, tr.updated_at, t.full_name
		FROM teacher_ratings tr
		JOIN teachers t ON t.id = tr.teacher_id
		WHERE tr.id = $1`, ratingID).
		Scan(&rt.ID, &rt.TeacherID, &rt.Overall, &rt.Difficulty, &rt.Didactic,
			&rt.Resources, &rt.Responsability, &rt.Grading, &rt.Comment, &rt.IsHidden,
			&rt.CreatedAt, &rt.UpdatedAt, &rt.TeacherName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rating: %w", err)
	}
	return &rt, nil
}

func (r *TeacherRepository) ListVisibleRatings(ctx context.Context, teacherID int64, query string, page, pageSize int) ([]models.TeacherRating, int, error) {
	where := ` WHERE NOT tr.is_hidden`
	args := []any{}
	if teacherID > 0 {
		args = append(args, teacherID)
		where += fmt.Sprintf(` AND tr.teacher_id = $%d`, len(args))
	}
	if query != "" {
		args = append(args, containsPattern(query))
		where += fmt.Sprintf(` AND (t.full_name ILIKE $%d OR tr.comment ILIKE $%d)`, len(args), len(args))
	}

	var total int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM teacher_ratings tr
		JOIN teachers t ON t.id = tr.teacher_id`+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count ratings: %w", err)
	}

	offset := (page - 1) * pageSize
	args = append(args, pageSize, offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT tr.id, tr.teacher_id, tr.overall, tr.difficulty, tr.didactic, tr.resources,
		       tr.responsability, tr.grading, tr.comment, tr.is_hidden, tr.created_at, tr.updated_at, t.full_name
		FROM teacher_ratings tr
		JOIN teachers t ON t.id = tr.teacher_id%s
		ORDER BY tr.created_at DESC, tr.id DESC
		LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list ratings: %w", err)
	}
	defer rows.Close()

	ratings := []models.TeacherRating{}
	for rows.Next() {
		var rt models.TeacherRating
		if err := rows.Scan(&rt.ID, &rt.TeacherID, &rt.Overall, &rt.Difficulty, &rt.Didactic,
			&rt.Resources, &rt.Responsability, &rt.Grading, &rt.Comment, &rt.IsHidden,
			&rt.CreatedAt, &rt.UpdatedAt, &rt.TeacherName); err != nil {
			return nil, 0, fmt.Errorf("failed to scan rating: %w", err)
		}
		ratings = append(ratings, rt)
	}
	return ratings, total, rows.Err()
}

func (r *TeacherRepository) ListRatings(ctx context.Context, onlyHidden bool, page, pageSize int) ([]models.TeacherRating, int, error) {
	where := ""
	if onlyHidden {
		where = " WHERE tr.is_hidden"
	}

	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM teacher_ratings tr`+where).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count ratings: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := r.pool.Query(ctx, `
		SELECT tr.id, tr.teacher_id, tr.overall, tr.difficulty, tr.didactic, tr.resources,
		       tr.responsability, tr.grading, tr.comment, tr.is_hidden, tr.created_at, tr.updated_at, t.full_name
		FROM teacher_ratings tr
		JOIN teachers t ON t.id = tr.teacher_id`+where+`
		ORDER BY tr.created_at DESC, tr.id DESC
		LIMIT $1 OFFSET $2`, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list ratings: %w", err)
	}
	defer rows.Close()

	ratings := []models.TeacherRating{}
	for rows.Next() {
		var rt models.TeacherRating
		if err := rows.Scan(&rt.ID, &rt.TeacherID, &rt.Overall, &rt.Difficulty, &rt.Didactic,
			&rt.Resources, &rt.Responsability, &rt.Grading, &rt.Comment, &rt.IsHidden,
			&rt.CreatedAt, &rt.UpdatedAt, &rt.TeacherName); err != nil {
			return nil, 0, fmt.Errorf("failed to scan rating: %w", err)
		}
		ratings = append(ratings, rt)
	}
	return ratings, total, rows.Err()
}

func (r *TeacherRepository) SetRatingHidden(ctx context.Context, ratingID int64, hidden bool) (int64, error) {
	var teacherID int64
	err := r.pool.QueryRow(ctx, `
		UPDATE teacher_ratings SET is_hidden = $1 WHERE id = $2
		RETURNING teacher_id`, hidden, ratingID).Scan(&teacherID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, repository.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to set rating visibility: %w", err)
	}
	return teacherID, nil
}

func (r *TeacherRepository) DeleteRating(ctx context.Context, ratingID int64) (int64, error) {
	var teacherID int64
	err := r.pool.QueryRow(ctx, `
		DELETE FROM teacher_ratings WHERE id = $1
		RETURNING teacher_id`, ratingID).Scan(&teacherID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, repository.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to delete rating: %w", err)
	}
	return teacherID, nil
}

func (r *TeacherRepository) RecomputeAggregates(ctx context.Context, teacherID int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE teachers SET
			avg_overall = (SELECT ROUND(AVG(overall)::numeric, 2)::float8 FROM teacher_ratings WHERE teacher_id = $1 AND NOT is_hidden),
			rating_count = (SELECT COUNT(*) FROM teacher_ratings WHERE teacher_id = $1 AND NOT is_hidden)
		WHERE id = $1`, teacherID)
	if err != nil {
		return fmt.Errorf("failed to recompute teacher aggregates: %w", err)
	}
	return nil
}

func (r *TeacherRepository) SearchPrefilter(ctx context.Context, query string, limit int) ([]models.TeacherSummary, error) {
	pattern := containsPattern(query)
	rows, err := r.pool.Query(ctx, teacherSelect+`
		WHERE NOT is_hidden AND full_name LIKE $1
		ORDER BY full_name
		LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to prefilter teachers: %w", err)
	}
	defer rows.Close()

	return r.scanWithCourses(ctx, rows)
}

func (r *TeacherRepository) scanWithCourses(ctx context.Context, rows pgx.Rows) ([]models.TeacherSummary, error) {
	summaries := []models.TeacherSummary{}
	for rows.Next() {
		var t models.TeacherSummary
		if err := rows.Scan(&t.ID, &t.FullName, &t.Bio, &t.AvgOverall,
			&t.RatingCount, &t.AvatarURL, &t.IsHidden); err != nil {
			return nil, fmt.Errorf("failed to scan teacher: %w", err)
		}
		summaries = append(summaries, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range summaries {
		courses, err := r.CoursesFor(ctx, summaries[i].ID)
		if err != nil {
			return nil, err
		}
		summaries[i].Courses = courses
	}
	return summaries, nil
}

func linkCourses(ctx context.Context, tx pgx.Tx, teacherID int64, courseIDs []int64) error {
	for _, courseID := range courseIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO courses_teachers (course_id, teacher_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, courseID, teacherID); err != nil {
			return fmt.Errorf("failed to link course %d: %w", courseID, err)
		}
	}
	return nil
}
