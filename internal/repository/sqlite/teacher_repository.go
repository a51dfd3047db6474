package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/trikaweb/trikaweb/internal/models"
	"github.com/trikaweb/trikaweb/internal/repository"
)

// TeacherRepository implements repository.TeacherRepository for SQLite.
type TeacherRepository struct {
	db *sql.DB
}

// NewTeacherRepository creates a new SQLite teacher repository.
func NewTeacherRepository(db *sql.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

const teacherSelect = `
	SELECT id, full_name, bio, avg_overall, rating_count, avatar_url, is_hidden
	FROM teachers`

func (r *TeacherRepository) List(ctx context.Context, courseCode string) ([]models.TeacherSummary, error) {
	var rows *sql.Rows
	var err error

	if courseCode != "" {
		rows, err = r.db.QueryContext(ctx, `
			SELECT t.id, t.full_name, t.bio, t.avg_overall, t.rating_count, t.avatar_url, t.is_hidden
			FROM teachers t
			JOIN courses_teachers ct ON ct.teacher_id = t.id
			JOIN courses c ON c.id = ct.course_id
			WHERE t.is_hidden = 0 AND c.code = ?
			ORDER BY t.full_name`, courseCode)
	} else {
		rows, err = r.db.QueryContext(ctx, teacherSelect+`
			WHERE is_hidden = 0 ORDER BY full_name`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list teachers: %w", err)
	}
	defer rows.Close()

	return r.scanWithCourses(ctx, rows)
}

func (r *TeacherRepository) ListAll(ctx context.Context) ([]models.TeacherSummary, error) {
	rows, err := r.db.QueryContext(ctx, teacherSelect+` ORDER BY full_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list teachers: %w", err)
	}
	defer rows.Close()

	return r.scanWithCourses(ctx, rows)
}

func (r *TeacherRepository) Top(ctx context.Context, limit int) ([]models.TeacherSummary, error) {
	rows, err := r.db.QueryContext(ctx, teacherSelect+`
		WHERE is_hidden = 0 AND rating_count >= ?
		ORDER BY avg_overall DESC, rating_count DESC
		LIMIT ?`, repository.MinRatingsForTop, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list top teachers: %w", err)
	}
	defer rows.Close()

	return r.scanWithCourses(ctx, rows)
}

func (r *TeacherRepository) GetByID(ctx context.Context, id int64) (*models.Teacher, error) {
	var t models.Teacher
	var avg sql.NullFloat64
	var avatar sql.NullString
	err := r.db.QueryRowContext(ctx, teacherSelect+` WHERE id = ?`, id).
		Scan(&t.ID, &t.FullName, &t.Bio, &avg, &t.RatingCount, &avatar, &t.IsHidden)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get teacher: %w", err)
	}
	t.AvgOverall = fromNullFloat(avg)
	t.AvatarURL = fromNullString(avatar)
	return &t, nil
}

func (r *TeacherRepository) Stats(ctx context.Context, id int64) (*models.TeacherStats, error) {
	var s models.TeacherStats
	var overall, difficulty, didactic, resources, responsability, grading sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
		SELECT ROUND(AVG(overall), 2), ROUND(AVG(difficulty), 2), ROUND(AVG(didactic), 2),
		       ROUND(AVG(resources), 2), ROUND(AVG(responsability), 2), ROUND(AVG(grading), 2)
		FROM teacher_ratings
		WHERE teacher_id = ? AND is_hidden = 0`, id).
		Scan(&overall, &difficulty, &didactic, &resources, &responsability, &grading)
	if err != nil {
		return nil, fmt.Errorf("failed to compute teacher stats: %w", err)
	}
	s.AvgOverall = fromNullFloat(overall)
	s.AvgDifficulty = fromNullFloat(difficulty)
	s.AvgDidactic = fromNullFloat(didactic)
	s.AvgResources = fromNullFloat(resources)
	s.AvgResponsability = fromNullFloat(responsability)
	s.AvgGrading = fromNullFloat(grading)
	return &s, nil
}

func (r *TeacherRepository) CoursesFor(ctx context.Context, teacherID int64) ([]models.CourseRef, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.code, c.name
		FROM courses c
		JOIN courses_teachers ct ON ct.course_id = c.id
		WHERE ct.teacher_id = ?
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
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM teacher_ratings WHERE teacher_id = ? AND is_hidden = 0`, teacherID).
		Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count reviews: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, overall, difficulty, didactic, resources, responsability, grading, comment, created_at
		FROM teacher_ratings
		WHERE teacher_id = ? AND is_hidden = 0
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, teacherID, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reviews: %w", err)
	}
	defer rows.Close()

	reviews := []models.TeacherRating{}
	for rows.Next() {
		var rt models.TeacherRating
		var comment sql.NullString
		if err := rows.Scan(&rt.ID, &rt.Overall, &rt.Difficulty, &rt.Didactic, &rt.Resources,
			&rt.Responsability, &rt.Grading, &comment, &rt.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan review: %w", err)
		}
		rt.Comment = fromNullString(comment)
		reviews = append(reviews, rt)
	}
	return reviews, total, rows.Err()
}

func (r *TeacherRepository) Create(ctx context.Context, t *models.Teacher, courseIDs []int64) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO teachers (full_name, bio, avatar_url, is_hidden)
		VALUES (?, ?, ?, ?)`,
		t.FullName, t.Bio, nullString(t.AvatarURL), t.IsHidden)
	if err != nil {
		return 0, fmt.Errorf("failed to create teacher: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get teacher id: %w", err)
	}

	if err := linkCourses(ctx, tx, id, courseIDs); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return id, nil
}

func (r *TeacherRepository) Update(ctx context.Context, t *models.Teacher, courseIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE teachers SET full_name = ?, bio = ?, avatar_url = ?, is_hidden = ?
		WHERE id = ?`,
		t.FullName, t.Bio, nullString(t.AvatarURL), t.IsHidden, t.ID)
	if err != nil {
		return fmt.Errorf("failed to update teacher: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return repository.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM courses_teachers WHERE teacher_id = ?`, t.ID); err != nil {
		return fmt.Errorf("failed to clear course links: %w", err)
	}
	if err := linkCourses(ctx, tx, t.ID, courseIDs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (r *TeacherRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM teachers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete teacher: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *TeacherRepository) SetHidden(ctx context.Context, id int64, hidden bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE teachers SET is_hidden = ? WHERE id = ?`, hidden, id)
	if err != nil {
		return fmt.Errorf("failed to set teacher visibility: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *TeacherRepository) UpsertRating(ctx context.Context, rt *models.TeacherRating, ipHash string) (int64, error) {
	// A device re-reviewing a teacher replaces its previous review.
	// Both paths leave the row hidden so edits go back through moderation.
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO teacher_ratings
			(teacher_id, device_id, overall, difficulty, didactic, resources, responsability, grading, comment, ip_hash, is_hidden)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT (teacher_id, device_id) DO UPDATE SET
			overall = excluded.overall,
			difficulty = excluded.difficulty,
			didactic = excluded.didactic,
			resources = excluded.resources,
			responsability = excluded.responsability,
			grading = excluded.grading,
			comment = excluded.comment,
			ip_hash = excluded.ip_hash,
			is_hidden = 1,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id`,
		rt.TeacherID, rt.DeviceID, rt.Overall, rt.Difficulty, rt.Didactic, rt.Resources,
		rt.Responsability, rt.Grading, nullString(rt.Comment), ipHash).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert rating: %w", err)
	}
	return id, nil
}

func (r *TeacherRepository) HasRatingByDevice(ctx context.Context, teacherID int64, deviceID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM teacher_ratings WHERE teacher_id = ? AND device_id = ?)`,
		teacherID, deviceID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check device rating: %w", err)
	}
	return exists, nil
}

func (r *TeacherRepository) CountRatingsByIP(ctx context.Context, teacherID int64, ipHash string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM teacher_ratings WHERE teacher_id = ? AND ip_hash = ?`,
		teacherID, ipHash).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ratings by ip: %w", err)
	}
	return count, nil
}

func (r *TeacherRepository) GetRating(ctx context.Context, ratingID int64) (*models.TeacherRating, error) {
	var rt models.TeacherRating
	var comment sql.NullString
	var updated sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT tr.id, tr.teacher_id, tr.overall, tr.difficulty, tr.didactic, tr.resources,
		       tr.responsability, tr.grading, tr.comment, tr.is_hidden, tr.created_at, tr.updated_at, t.full_name
		FROM teacher_ratings tr
		JOIN teachers t ON t.id = tr.teacher_id
		WHERE tr.id = ?`, ratingID).
		Scan(&rt.ID, &rt.TeacherID, &rt.Overall, &rt.Difficulty, &rt.Didactic,
			&rt.Resources, &rt.Responsability, &rt.Grading, &comment, &rt.IsHidden,
			&rt.CreatedAt, &updated, &rt.TeacherName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rating: %w", err)
	}
	rt.Comment = fromNullString(comment)
	rt.UpdatedAt = fromNullTime(updated)
	return &rt, nil
}

func (r *TeacherRepository) ListVisibleRatings(ctx context.Context, teacherID int64, query string, page, pageSize int) ([]models.TeacherRating, int, error) {
	where := ` WHERE tr.is_hidden = 0`
	args := []any{}
	if teacherID > 0 {
		where += ` AND tr.teacher_id = ?`
		args = append(args, teacherID)
	}
	if query != "" {
		pattern := containsPattern(query)
		where += ` AND (t.full_name LIKE ? ESCAPE '\' OR tr.comment LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern)
	}

	var total int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM teacher_ratings tr
		JOIN teachers t ON t.id = tr.teacher_id`+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count ratings: %w", err)
	}

	offset := (page - 1) * pageSize
	args = append(args, pageSize, offset)
	rows, err := r.db.QueryContext(ctx, `
		SELECT tr.id, tr.teacher_id, tr.overall, tr.difficulty, tr.didactic, tr.resources,
		       tr.responsability, tr.grading, tr.comment, tr.is_hidden, tr.created_at, tr.updated_at, t.full_name
		FROM teacher_ratings tr
		JOIN teachers t ON t.id = tr.teacher_id`+where+`
		ORDER BY tr.created_at DESC, tr.id DESC
		LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list ratings: %w", err)
	}
	defer rows.Close()

	ratings := []models.TeacherRating{}
	for rows.Next() {
		var rt models.TeacherRating
		var comment sql.NullString
		var updated sql.NullTime
		if err := rows.Scan(&rt.ID, &rt.TeacherID, &rt.Overall, &rt.Difficulty, &rt.Didactic,
			&rt.Resources, &rt.Responsability, &rt.Grading, &comment, &rt.IsHidden,
			&rt.CreatedAt, &updated, &rt.TeacherName); err != nil {
			return nil, 0, fmt.Errorf("failed to scan rating: %w", err)
		}
		rt.Comment = fromNullString(comment)
		rt.UpdatedAt = fromNullTime(updated)
		ratings = append(ratings, rt)
	}
	return ratings, total, rows.Err()
}

func (r *TeacherRepository) ListRatings(ctx context.Context, onlyHidden bool, page, pageSize int) ([]models.TeacherRating, int, error) {
	where := ""
	if onlyHidden {
		where = " WHERE tr.is_hidden = 1"
	}

	var total int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM teacher_ratings tr`+where).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count ratings: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := r.db.QueryContext(ctx, `
		SELECT tr.id, tr.teacher_id, tr.overall, tr.difficulty, tr.didactic, tr.resources,
		       tr.responsability, tr.grading, tr.comment, tr.is_hidden, tr.created_at, tr.updated_at, t.full_name
		FROM teacher_ratings tr
		JOIN teachers t ON t.id = tr.teacher_id`+where+`
		ORDER BY tr.created_at DESC, tr.id DESC
		LIMIT ? OFFSET ?`, pageSize, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list ratings: %w", err)
	}
	defer rows.Close()

	ratings := []models.TeacherRating{}
	for rows.Next() {
		var rt models.TeacherRating
		var comment sql.NullString
		var updated sql.NullTime
		if err := rows.Scan(&rt.ID, &rt.TeacherID, &rt.Overall, &rt.Difficulty, &rt.Didactic,
			&rt.Resources, &rt.Responsability, &rt.Grading, &comment, &rt.IsHidden,
			&rt.CreatedAt, &updated, &rt.TeacherName); err != nil {
			return nil, 0, fmt.Errorf("failed to scan rating: %w", err)
		}
		rt.Comment = fromNullString(comment)
		rt.UpdatedAt = fromNullTime(updated)
		ratings = append(ratings, rt)
	}
	return ratings, total, rows.Err()
}

func (r *TeacherRepository) SetRatingHidden(ctx context.Context, ratingID int64, hidden bool) (int64, error) {
	var teacherID int64
	err := r.db.QueryRowContext(ctx,
		`SELECT teacher_id FROM teacher_ratings WHERE id = ?`, ratingID).Scan(&teacherID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, repository.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up rating: %w", err)
	}

	if _, err := r.db.ExecContext(ctx,
		`UPDATE teacher_ratings SET is_hidden = ? WHERE id = ?`, hidden, ratingID); err != nil {
		return 0, fmt.Errorf("failed to set rating visibility: %w", err)
	}
	return teacherID, nil
}

func (r *TeacherRepository) DeleteRating(ctx context.Context, ratingID int64) (int64, error) {
	var teacherID int64
	err := r.db.QueryRowContext(ctx,
		`SELECT teacher_id FROM teacher_ratings WHERE id = ?`, ratingID).Scan(&teacherID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, repository.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up rating: %w", err)
	}

	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM teacher_ratings WHERE id = ?`, ratingID); err != nil {
		return 0, fmt.Errorf("failed to delete rating: %w", err)
	}
	return teacherID, nil
}

func (r *TeacherRepository) RecomputeAggregates(ctx context.Context, teacherID int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE teachers SET
			avg_overall = (SELECT ROUND(AVG(overall), 2) FROM teacher_ratings WHERE teacher_id = ? AND is_hidden = 0),
			rating_count = (SELECT COUNT(*) FROM teacher_ratings WHERE teacher_id = ? AND is_hidden = 0)
		WHERE id = ?`, teacherID, teacherID, teacherID)
	if err != nil {
		return fmt.Errorf("failed to recompute teacher aggregates: %w", err)
	}
	return nil
}

func (r *TeacherRepository) SearchPrefilter(ctx context.Context, query string, limit int) ([]models.TeacherSummary, error) {
	pattern := containsPattern(query)
	rows, err := r.db.QueryContext(ctx, teacherSelect+`
		WHERE is_hidden = 0 AND full_name LIKE ? ESCAPE '\'
		ORDER BY full_name
		LIMIT ?`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to prefilter teachers: %w", err)
	}
	defer rows.Close()

	return r.scanWithCourses(ctx, rows)
}

func (r *TeacherRepository) scanWithCourses(ctx context.Context, rows *sql.Rows) ([]models.TeacherSummary, error) {
	summaries := []models.TeacherSummary{}
	for rows.Next() {
		var t models.TeacherSummary
		var avg sql.NullFloat64
		var avatar sql.NullString
		if err := rows.Scan(&t.ID, &t.FullName, &t.Bio, &avg, &t.RatingCount, &avatar, &t.IsHidden); err != nil {
			return nil, fmt.Errorf("failed to scan teacher: %w", err)
		}
		t.AvgOverall = fromNullFloat(avg)
		t.AvatarURL = fromNullString(avatar)
		summaries = append(summaries, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range summaries {
		courses, err := r.CoursesFor(ctx, summaries[i].ID)
		if err != nil {
			return nil, err
		}
		summaries[i].Courses = courses
	}
	return summaries, nil
}

func linkCourses(ctx context.Context, tx *sql.Tx, teacherID int64, courseIDs []int64) error {
	for _, courseID := range courseIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO courses_teachers (course_id, teacher_id) VALUES (?, ?)`,
			courseID, teacherID); err != nil {
			return fmt.Errorf("failed to link course %d: %w", courseID, err)
		}
	}
	return nil
}
