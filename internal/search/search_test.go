package search

import (
	"context"
	"strings"
	"testing"

	"github.com/trikaweb/trikaweb/internal/models"
)

type fakeStore struct {
	courses  []models.CourseSummary
	teachers []models.TeacherSummary
	sheets   []models.Sheet

	calls          int
	sheetCourseIDs []int64
}

func (f *fakeStore) CourseCandidates(ctx context.Context, query string, limit int) ([]models.CourseSummary, error) {
	f.calls++
	out := []models.CourseSummary{}
	for _, c := range f.courses {
		if containsFold(c.Code, query) || containsFold(c.Name, query) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeStore) TeacherCandidates(ctx context.Context, query string, limit int) ([]models.TeacherSummary, error) {
	f.calls++
	out := []models.TeacherSummary{}
	for _, t := range f.teachers {
		if containsFold(t.FullName, query) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) SheetCandidates(ctx context.Context, query string, courseIDs []int64, limit int) ([]models.Sheet, error) {
	f.calls++
	f.sheetCourseIDs = courseIDs
	ids := map[int64]bool{}
	for _, id := range courseIDs {
		ids[id] = true
	}
	out := []models.Sheet{}
	for _, s := range f.sheets {
		if containsFold(s.ExamType, query) || containsFold(s.Cycle, query) ||
			containsFold(s.CourseCode, query) || containsFold(s.CourseName, query) ||
			ids[s.CourseID] {
			out = append(out, s)
		}
	}
	return out, nil
}

// containsFold mimics a case-insensitive LIKE, without diacritic folding.
func containsFold(field, query string) bool {
	return strings.Contains(strings.ToLower(field), strings.ToLower(query))
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Cálculo", "calculo"},
		{"BMA01", "bma01"},
		{"ÑANDÚ", "nandu"},
		{"física", "fisica"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestScorePrefixBeatsSubstring(t *testing.T) {
	fields := []string{"BMA01", "Cálculo"}

	prefix := scoreFields(Normalize("BMA"), fields)
	substring := scoreFields(Normalize("lculo"), fields)

	if prefix == 0 || substring == 0 {
		t.Fatalf("both queries must match: prefix=%v substring=%v", prefix, substring)
	}
	if prefix <= substring {
		t.Errorf("prefix match on the primary field must outrank a bare substring: %v <= %v", prefix, substring)
	}
}

func TestScoreDiacriticInsensitive(t *testing.T) {
	fields := []string{"Cálculo"}
	plain := scoreFields(Normalize("calculo"), fields)
	accented := scoreFields(Normalize("cálculo"), fields)

	if plain == 0 {
		t.Fatal("unaccented query must match accented field")
	}
	if plain != accented {
		t.Errorf("accented and unaccented queries must score identically: %v != %v", plain, accented)
	}
}

func TestScoreNoMatchIsZero(t *testing.T) {
	if sc := scoreFields(Normalize("química"), []string{"BMA01", "Cálculo"}); sc != 0 {
		t.Errorf("expected zero score, got %v", sc)
	}
}

func TestSearchEmptyQuerySkipsStore(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store)

	for _, q := range []string{"", "   ", "\t"} {
		results, err := svc.Search(context.Background(), q, 6)
		if err != nil {
			t.Fatalf("Search(%q) failed: %v", q, err)
		}
		if len(results.Courses) != 0 || len(results.Teachers) != 0 || len(results.Sheets) != 0 {
			t.Errorf("expected empty results for %q", q)
		}
	}
	if store.calls != 0 {
		t.Errorf("empty queries must not hit the store, got %d calls", store.calls)
	}
}

func TestSearchZeroScoreDropped(t *testing.T) {
	// "Matemática Básica" survives a LIKE on "mat" but a query that
	// only prefilter-matches must still be dropped by scoring.
	store := &fakeStore{
		courses: []models.CourseSummary{
			{ID: 1, Code: "BMA01", Name: "Cálculo I", SheetCount: 5},
		},
		sheets: []models.Sheet{
			{ID: 10, CourseID: 1, ExamType: "parcial", Cycle: "2024-1", CourseCode: "BMA01", CourseName: "Cálculo I", ViewCount: 3},
		},
	}
	svc := NewService(store)

	results, err := svc.Search(context.Background(), "BMA", 6)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results.Courses) != 1 {
		t.Fatalf("expected the course to match, got %d", len(results.Courses))
	}
	// Sheet matches through its course code field, so it scores > 0
	if len(results.Sheets) != 1 {
		t.Errorf("sheet carrying the matching course code should rank, got %d", len(results.Sheets))
	}

	// A query matching nothing scores everything to zero
	results, err = svc.Search(context.Background(), "a", 6)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for _, c := range results.Courses {
		if scoreFields(Normalize("a"), []string{c.Code, c.Name}) == 0 {
			t.Errorf("zero-score course %q leaked into results", c.Code)
		}
	}
}

func TestSearchCourseIDsForwardedToSheets(t *testing.T) {
	store := &fakeStore{
		courses: []models.CourseSummary{
			{ID: 7, Code: "BMA01", Name: "Cálculo I"},
		},
	}
	svc := NewService(store)

	if _, err := svc.Search(context.Background(), "BMA", 6); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(store.sheetCourseIDs) != 1 || store.sheetCourseIDs[0] != 7 {
		t.Errorf("course prefilter IDs must reach the sheet prefilter, got %v", store.sheetCourseIDs)
	}
}

func TestSearchTieBreakBySheetCount(t *testing.T) {
	store := &fakeStore{
		courses: []models.CourseSummary{
			{ID: 2, Code: "BMA02", Name: "Cálculo II", SheetCount: 2},
			{ID: 1, Code: "BMA01", Name: "Cálculo I", SheetCount: 5},
		},
	}
	svc := NewService(store)

	results, err := svc.Search(context.Background(), "calc", 6)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results.Courses) != 2 {
		t.Fatalf("expected 2 courses, got %d", len(results.Courses))
	}
	if results.Courses[0].Code != "BMA01" {
		t.Errorf("tie must break by sheet count: expected BMA01 first, got %s", results.Courses[0].Code)
	}
}

func TestSearchLimitApplied(t *testing.T) {
	courses := []models.CourseSummary{}
	for i := 0; i < 10; i++ {
		courses = append(courses, models.CourseSummary{
			ID: int64(i), Code: "BMA0", Name: "Cálculo", SheetCount: i,
		})
	}
	store := &fakeStore{courses: courses}
	svc := NewService(store)

	results, err := svc.Search(context.Background(), "BMA", 3)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results.Courses) != 3 {
		t.Errorf("expected 3 courses, got %d", len(results.Courses))
	}
}

func TestClampLimit(t *testing.T) {
	if got := ClampLimit(0); got != DefaultLimit {
		t.Errorf("expected default %d, got %d", DefaultLimit, got)
	}
	if got := ClampLimit(100); got != MaxLimit {
		t.Errorf("expected max %d, got %d", MaxLimit, got)
	}
	if got := ClampLimit(10); got != 10 {
		t.Errorf("expected 10, got %d", got)
	}
}

func TestSuggest(t *testing.T) {
	store := &fakeStore{
		courses: []models.CourseSummary{
			{ID: 1, Code: "BMA01", Name: "Cálculo I", SheetCount: 5},
		},
		teachers: []models.TeacherSummary{
			{ID: 3, FullName: "Calderón Rojas", RatingCount: 2},
		},
	}
	svc := NewService(store)

	t.Run("TooShortQuery", func(t *testing.T) {
		suggestions, err := svc.Suggest(context.Background(), "c", 6)
		if err != nil {
			t.Fatalf("Suggest failed: %v", err)
		}
		if len(suggestions) != 0 {
			t.Errorf("single-rune query must return nothing, got %d", len(suggestions))
		}
	})

	t.Run("FlattensAndLinks", func(t *testing.T) {
		suggestions, err := svc.Suggest(context.Background(), "cal", 6)
		if err != nil {
			t.Fatalf("Suggest failed: %v", err)
		}
		if len(suggestions) != 2 {
			t.Fatalf("expected 2 suggestions, got %d", len(suggestions))
		}
		if suggestions[0].Type != models.SuggestionCourse || suggestions[0].URL != "/curso/BMA01" {
			t.Errorf("unexpected course suggestion: %+v", suggestions[0])
		}
		if suggestions[1].Type != models.SuggestionTeacher || suggestions[1].URL != "/profesores/3" {
			t.Errorf("unexpected teacher suggestion: %+v", suggestions[1])
		}
	})
}
