package search

import (
	"context"

	"github.com/trikaweb/trikaweb/internal/models"
	"github.com/trikaweb/trikaweb/internal/repository"
)

// RepositoryStore adapts the repository layer to the Store interface.
type RepositoryStore struct {
	Courses  repository.CourseRepository
	Teachers repository.TeacherRepository
	Sheets   repository.SheetRepository
}

// NewRepositoryStore builds a Store over the configured repositories.
func NewRepositoryStore(repos *repository.Repositories) *RepositoryStore {
	return &RepositoryStore{
		Courses:  repos.Courses,
		Teachers: repos.Teachers,
		Sheets:   repos.Sheets,
	}
}

func (s *RepositoryStore) CourseCandidates(ctx context.Context, query string, limit int) ([]models.CourseSummary, error) {
	return s.Courses.SearchPrefilter(ctx, query, limit)
}

func (s *RepositoryStore) TeacherCandidates(ctx context.Context, query string, limit int) ([]models.TeacherSummary, error) {
	return s.Teachers.SearchPrefilter(ctx, query, limit)
}

func (s *RepositoryStore) SheetCandidates(ctx context.Context, query string, courseIDs []int64, limit int) ([]models.Sheet, error) {
	return s.Sheets.SearchPrefilter(ctx, query, courseIDs, limit)
}
