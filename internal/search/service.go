package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/trikaweb/trikaweb/internal/models"
)

const (
	// DefaultLimit is the per-entity result cap when none is given.
	DefaultLimit = 6
	// MaxLimit is the hard per-entity result cap.
	MaxLimit = 25

	// MinSuggestQuery is the minimum query length (in runes) for autocomplete.
	MinSuggestQuery = 2
)

// Store supplies coarse candidate sets for scoring. The substring
// prefilter runs against the raw query; precise matching happens here.
type Store interface {
	CourseCandidates(ctx context.Context, query string, limit int) ([]models.CourseSummary, error)
	TeacherCandidates(ctx context.Context, query string, limit int) ([]models.TeacherSummary, error)
	SheetCandidates(ctx context.Context, query string, courseIDs []int64, limit int) ([]models.Sheet, error)
}

// Results is the three-list search payload.
type Results struct {
	Courses  []models.CourseSummary  `json:"courses"`
	Teachers []models.TeacherSummary `json:"teachers"`
	Sheets   []models.SheetSummary   `json:"sheets"`
}

// Service ranks prefiltered candidates against a normalized query.
type Service struct {
	store Store
}

// NewService creates a search service over the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// ClampLimit applies the default and hard cap to a requested limit.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Search runs the full ranked search. An empty or whitespace-only
// query returns empty lists without touching the store.
func (s *Service) Search(ctx context.Context, query string, limit int) (*Results, error) {
	limit = ClampLimit(limit)
	empty := &Results{
		Courses:  []models.CourseSummary{},
		Teachers: []models.TeacherSummary{},
		Sheets:   []models.SheetSummary{},
	}

	raw := strings.TrimSpace(query)
	if raw == "" {
		return empty, nil
	}
	nq := Normalize(raw)

	// Prefetch twice the limit so scoring has headroom to drop
	// non-matches and re-rank.
	prefetch := 2 * limit

	var courses []models.CourseSummary
	var teachers []models.TeacherSummary

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		courses, err = s.store.CourseCandidates(gctx, raw, prefetch)
		return err
	})
	g.Go(func() error {
		var err error
		teachers, err = s.store.TeacherCandidates(gctx, raw, prefetch)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("search prefilter failed: %w", err)
	}

	// Sheets whose course matched the query stay eligible even when
	// their own fields do not match.
	courseIDs := make([]int64, 0, len(courses))
	for _, c := range courses {
		courseIDs = append(courseIDs, c.ID)
	}

	sheets, err := s.store.SheetCandidates(ctx, raw, courseIDs, prefetch)
	if err != nil {
		return nil, fmt.Errorf("search prefilter failed: %w", err)
	}

	results := empty
	results.Courses = rankCourses(nq, courses, limit)
	results.Teachers = rankTeachers(nq, teachers, limit)
	results.Sheets = rankSheets(nq, sheets, limit)
	return results, nil
}

// Suggest flattens search results into autocomplete entries. Queries
// shorter than MinSuggestQuery runes return an empty list.
func (s *Service) Suggest(ctx context.Context, query string, limit int) ([]models.Suggestion, error) {
	raw := strings.TrimSpace(query)
	if utf8.RuneCountInString(raw) < MinSuggestQuery {
		return []models.Suggestion{}, nil
	}

	results, err := s.Search(ctx, raw, limit)
	if err != nil {
		return nil, err
	}

	suggestions := []models.Suggestion{}
	for _, c := range results.Courses {
		suggestions = append(suggestions, models.Suggestion{
			Text: c.Code + " - " + c.Name,
			Type: models.SuggestionCourse,
			URL:  "/curso/" + c.Code,
		})
	}
	for _, t := range results.Teachers {
		suggestions = append(suggestions, models.Suggestion{
			Text: t.FullName,
			Type: models.SuggestionTeacher,
			URL:  fmt.Sprintf("/profesores/%d", t.ID),
		})
	}
	for _, sh := range results.Sheets {
		suggestions = append(suggestions, models.Suggestion{
			Text: sh.CourseCode + " " + sh.ExamType + " " + sh.Cycle,
			Type: models.SuggestionSheet,
			URL:  fmt.Sprintf("/exams/%d", sh.ID),
		})
	}
	return suggestions, nil
}

type scored[T any] struct {
	item  T
	score float64
	tie   int
}

func rank[T any](items []scored[T], limit int) []T {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].tie > items[j].tie
	})
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]T, len(items))
	for i, it := range items {
		out[i] = it.item
	}
	return out
}

func rankCourses(nq string, candidates []models.CourseSummary, limit int) []models.CourseSummary {
	scoredList := []scored[models.CourseSummary]{}
	for _, c := range candidates {
		sc := scoreFields(nq, []string{c.Code, c.Name})
		if sc == 0 {
			continue
		}
		scoredList = append(scoredList, scored[models.CourseSummary]{item: c, score: sc, tie: c.SheetCount})
	}
	return rank(scoredList, limit)
}

func rankTeachers(nq string, candidates []models.TeacherSummary, limit int) []models.TeacherSummary {
	scoredList := []scored[models.TeacherSummary]{}
	for _, t := range candidates {
		sc := scoreFields(nq, []string{t.FullName})
		if sc == 0 {
			continue
		}
		scoredList = append(scoredList, scored[models.TeacherSummary]{item: t, score: sc, tie: t.RatingCount})
	}
	return rank(scoredList, limit)
}

func rankSheets(nq string, candidates []models.Sheet, limit int) []models.SheetSummary {
	scoredList := []scored[models.SheetSummary]{}
	for _, sh := range candidates {
		sc := scoreFields(nq, []string{sh.CourseCode, sh.CourseName, sh.ExamType, sh.Cycle})
		if sc == 0 {
			continue
		}
		scoredList = append(scoredList, scored[models.SheetSummary]{item: sh.Summary(), score: sc, tie: sh.ViewCount})
	}
	return rank(scoredList, limit)
}
