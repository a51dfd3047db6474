// Package repository defines interfaces for data access operations.
// It lets the SQLite and PostgreSQL backends be swapped without
// touching handlers or services.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/trikaweb/trikaweb/internal/gate"
	"github.com/trikaweb/trikaweb/internal/models"
)

// Common errors returned by repository operations.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicateKey is returned when an insert violates a uniqueness constraint.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrNilDatabase is returned when a nil database connection is provided.
	ErrNilDatabase = errors.New("nil database connection")
)

// Orderings accepted by SheetRepository.Top.
const (
	TopByViews      = "views"
	TopByDifficulty = "difficulty"
)

// MinRatingsForTop is the vote floor for difficulty and teacher top lists.
const MinRatingsForTop = 3

// AdminSession is a logged-in admin session row.
type AdminSession struct {
	Token        string
	Username     string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastActivity time.Time
}

// CourseRepository provides access to courses.
type CourseRepository interface {
	// List returns all courses with their sheet counts, ordered by code.
	List(ctx context.Context) ([]models.CourseSummary, error)

	// GetByCode returns a course with all of its sheets.
	GetByCode(ctx context.Context, code string) (*models.CourseDetail, error)

	// GetByID returns the bare course row.
	GetByID(ctx context.Context, id int64) (*models.Course, error)

	// FindByCode returns the bare course row for a code.
	FindByCode(ctx context.Context, code string) (*models.Course, error)

	// Create inserts a course and returns its ID.
	Create(ctx context.Context, code, name string) (int64, error)

	// SearchPrefilter returns courses whose code or name contains the
	// raw query, with sheet counts, capped at limit rows.
	SearchPrefilter(ctx context.Context, query string, limit int) ([]models.CourseSummary, error)
}

// TeacherRepository provides access to teachers and their ratings.
type TeacherRepository interface {
	// List returns visible teachers, optionally filtered by course code.
	List(ctx context.Context, courseCode string) ([]models.TeacherSummary, error)

	// ListAll returns every teacher including hidden ones, for the admin panel.
	ListAll(ctx context.Context) ([]models.TeacherSummary, error)

	// Top returns the best-rated visible teachers.
	Top(ctx context.Context, limit int) ([]models.TeacherSummary, error)

	// GetByID returns a teacher row; hidden teachers are returned too,
	// visibility is the caller's concern.
	GetByID(ctx context.Context, id int64) (*models.Teacher, error)

	// Stats returns per-dimension averages over visible ratings.
	Stats(ctx context.Context, id int64) (*models.TeacherStats, error)

	// CoursesFor returns the courses a teacher is linked to.
	CoursesFor(ctx context.Context, teacherID int64) ([]models.CourseRef, error)

	// Reviews returns one page of visible reviews plus the total count.
	Reviews(ctx context.Context, teacherID int64, page, pageSize int) ([]models.TeacherRating, int, error)

	// Create inserts a teacher and links it to the given course IDs.
	Create(ctx context.Context, t *models.Teacher, courseIDs []int64) (int64, error)

	// Update rewrites a teacher's editable fields and course links.
	Update(ctx context.Context, t *models.Teacher, courseIDs []int64) error

	// Delete removes a teacher and cascades to its ratings.
	Delete(ctx context.Context, id int64) error

	// SetHidden toggles a teacher's public visibility.
	SetHidden(ctx context.Context, id int64, hidden bool) error

	// UpsertRating stores a review, replacing any earlier review from the
	// same device. Both new and updated reviews are hidden until an admin
	// approves them.
	UpsertRating(ctx context.Context, r *models.TeacherRating, ipHash string) (int64, error)

	// HasRatingByDevice reports whether the device already reviewed the teacher.
	HasRatingByDevice(ctx context.Context, teacherID int64, deviceID string) (bool, error)

	// CountRatingsByIP counts reviews a hashed IP has left for one teacher.
	CountRatingsByIP(ctx context.Context, teacherID int64, ipHash string) (int, error)

	// GetRating returns one review with its teacher name joined in.
	GetRating(ctx context.Context, ratingID int64) (*models.TeacherRating, error)

	// ListRatings returns one admin page of reviews across all teachers.
	ListRatings(ctx context.Context, onlyHidden bool, page, pageSize int) ([]models.TeacherRating, int, error)

	// ListVisibleRatings returns one admin page of visible reviews,
	// optionally filtered by teacher and by a text search over the
	// teacher name and comment.
	ListVisibleRatings(ctx context.Context, teacherID int64, query string, page, pageSize int) ([]models.TeacherRating, int, error)

	// SetRatingHidden toggles one review and returns its teacher ID so
	// aggregates can be recomputed.
	SetRatingHidden(ctx context.Context, ratingID int64, hidden bool) (int64, error)

	// DeleteRating removes one review and returns its teacher ID.
	DeleteRating(ctx context.Context, ratingID int64) (int64, error)

	// RecomputeAggregates refreshes avg_overall and rating_count from
	// visible ratings.
	RecomputeAggregates(ctx context.Context, teacherID int64) error

	// SearchPrefilter returns visible teachers whose name contains the
	// raw query, capped at limit rows, with their course links loaded.
	SearchPrefilter(ctx context.Context, query string, limit int) ([]models.TeacherSummary, error)
}

// SheetRepository provides access to exam sheets.
type SheetRepository interface {
	// GetByID returns a sheet with its course code and name joined in.
	GetByID(ctx context.Context, id int64) (*models.Sheet, error)

	// GetBatch returns the sheets for the given IDs, skipping unknown ones.
	GetBatch(ctx context.Context, ids []int64) ([]models.Sheet, error)

	// Top returns the top sheets ordered by TopByViews or TopByDifficulty.
	// The difficulty ordering only considers sheets with at least
	// MinRatingsForTop votes.
	Top(ctx context.Context, by string, limit int) ([]models.Sheet, error)

	// Create inserts a sheet and returns its ID.
	Create(ctx context.Context, s *models.Sheet) (int64, error)

	// ExistsByStoragePath reports whether any sheet references the path.
	ExistsByStoragePath(ctx context.Context, path string) (bool, error)

	// FindByCourseExam locates a sheet by its natural key.
	FindByCourseExam(ctx context.Context, courseID int64, examType, cycle string) (*models.Sheet, error)

	// SetSolution attaches a solution to a sheet.
	SetSolution(ctx context.Context, sheetID int64, kind string, storagePath, videoURL *string) error

	// UpdateExam replaces a sheet's exam file path and teacher hint.
	UpdateExam(ctx context.Context, sheetID int64, storagePath string, teacherHint *string) error

	// UpsertRating stores a difficulty vote, replacing any earlier vote
	// from the same device, and refreshes the sheet's aggregates.
	UpsertRating(ctx context.Context, r *models.SheetRating) error

	// HasRatingByDevice reports whether the device already voted on the sheet.
	HasRatingByDevice(ctx context.Context, sheetID int64, deviceID string) (bool, error)

	// CountRatingsByIP counts votes a hashed IP has cast on one sheet.
	CountRatingsByIP(ctx context.Context, sheetID int64, ipHash string) (int, error)

	// InsertView logs a view and refreshes the sheet's view count.
	InsertView(ctx context.Context, v *models.SheetView) error

	// SearchPrefilter returns sheets matching the raw query in their own
	// fields or belonging to one of courseIDs, capped at limit rows.
	SearchPrefilter(ctx context.Context, query string, courseIDs []int64, limit int) ([]models.Sheet, error)
}

// WriteLimitRepository persists gate counters plus their maintenance.
type WriteLimitRepository interface {
	gate.CounterStore

	// DeleteStale removes counters whose last_seen is before cutoff.
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionRepository persists admin sessions.
type SessionRepository interface {
	Create(ctx context.Context, s AdminSession) error
	Get(ctx context.Context, token string) (*AdminSession, error)

	// Touch moves the session's last_activity to now.
	Touch(ctx context.Context, token string) error

	Delete(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// Repositories holds all repository implementations.
type Repositories struct {
	Courses     CourseRepository
	Teachers    TeacherRepository
	Sheets      SheetRepository
	WriteLimits WriteLimitRepository
	Sessions    SessionRepository

	DatabaseType string
	Ping         func(ctx context.Context) error
	Cleanup      func()
}
