package sqlite

import (
	"database/sql"

	"github.com/trikaweb/trikaweb/internal/repository"
)

// NewRepositories creates all SQLite repository implementations over an
// open database connection. The returned Cleanup closes the connection.
func NewRepositories(db *sql.DB) (*repository.Repositories, error) {
	if db == nil {
		return nil, repository.ErrNilDatabase
	}

	return &repository.Repositories{
		Courses:      NewCourseRepository(db),
		Teachers:     NewTeacherRepository(db),
		Sheets:       NewSheetRepository(db),
		WriteLimits:  NewWriteLimitRepository(db),
		Sessions:     NewSessionRepository(db),
		DatabaseType: repository.DatabaseTypeSQLite,
		Ping:         db.PingContext,
		Cleanup: func() {
			db.Close()
		},
	}, nil
}
