package handlers

import (
	"net/http"
	"testing"

	"github.com/trikaweb/trikaweb/internal/search"
	"github.com/trikaweb/trikaweb/internal/testutil"
)

func setupSearchMux(t *testing.T) *http.ServeMux {
	t.Helper()

	repos := testutil.SetupRepositories(t)
	bma := testutil.SeedCourse(t, repos, "BMA01", "Cálculo Diferencial")
	testutil.SeedCourse(t, repos, "BFI01", "Física I")
	testutil.SeedTeacher(t, repos, "María Calderón", bma)
	testutil.SeedSheet(t, repos, bma, "PC1", "2024-1")

	svc := search.NewService(search.NewRepositoryStore(repos))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/search", SearchHandler(svc))
	mux.HandleFunc("GET /api/search/suggest", SuggestHandler(svc))
	return mux
}

func TestSearch(t *testing.T) {
	mux := setupSearchMux(t)

	t.Run("DiacriticInsensitive", func(t *testing.T) {
		rr := doJSON(t, mux, "GET", "/api/search?q=calculo", "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		payload := decodeResponse(t, rr)
		courses := payload["courses"].([]any)
		if len(courses) != 1 {
			t.Fatalf("expected 1 course for 'calculo', got %d", len(courses))
		}
		if courses[0].(map[string]any)["code"] != "BMA01" {
			t.Errorf("unexpected course match")
		}
		// The sheet rides along via its course match.
		if sheets := payload["sheets"].([]any); len(sheets) != 1 {
			t.Errorf("expected course-matched sheet, got %d", len(sheets))
		}
	})

	t.Run("TeacherByName", func(t *testing.T) {
		rr := doJSON(t, mux, "GET", "/api/search?q=calderon", "", "")
		payload := decodeResponse(t, rr)
		if teachers := payload["teachers"].([]any); len(teachers) != 1 {
			t.Errorf("expected 1 teacher for 'calderon', got %d", len(teachers))
		}
	})

	t.Run("EmptyQuery", func(t *testing.T) {
		rr := doJSON(t, mux, "GET", "/api/search?q=", "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		payload := decodeResponse(t, rr)
		for _, key := range []string{"courses", "teachers", "sheets"} {
			if got := len(payload[key].([]any)); got != 0 {
				t.Errorf("empty query must return empty %s, got %d", key, got)
			}
		}
	})

	t.Run("NoMatches", func(t *testing.T) {
		rr := doJSON(t, mux, "GET", "/api/search?q=zzzzz", "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		payload := decodeResponse(t, rr)
		if got := len(payload["courses"].([]any)); got != 0 {
			t.Errorf("expected no matches, got %d courses", got)
		}
	})
}

func TestSuggest(t *testing.T) {
	mux := setupSearchMux(t)

	t.Run("ReturnsTypedEntries", func(t *testing.T) {
		rr := doJSON(t, mux, "GET", "/api/search/suggest?q=fisica", "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		payload := decodeResponse(t, rr)
		suggestions := payload["suggestions"].([]any)
		if len(suggestions) != 1 {
			t.Fatalf("expected 1 suggestion, got %d", len(suggestions))
		}
		entry := suggestions[0].(map[string]any)
		if entry["type"] != "curso" {
			t.Errorf("expected type curso, got %v", entry["type"])
		}
		if entry["url"] != "/curso/BFI01" {
			t.Errorf("unexpected url %v", entry["url"])
		}
	})

	t.Run("QueryTooShort", func(t *testing.T) {
		rr := doJSON(t, mux, "GET", "/api/search/suggest?q=f", "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		payload := decodeResponse(t, rr)
		if got := len(payload["suggestions"].([]any)); got != 0 {
			t.Errorf("expected no suggestions for short query, got %d", got)
		}
	})
}
