package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/trikaweb/trikaweb/internal/gate"
	"github.com/trikaweb/trikaweb/internal/repository"
	"github.com/trikaweb/trikaweb/internal/storage"
	"github.com/trikaweb/trikaweb/internal/storage/filesystem"
	"github.com/trikaweb/trikaweb/internal/testutil"
)

func newGate(repos *repository.Repositories) *gate.Gate {
	return gate.New(repos.WriteLimits, time.Hour)
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return payload
}

func TestRateSheet(t *testing.T) {
	repos := testutil.SetupRepositories(t)
	cfg := testutil.SetupTestConfig(t)
	courseID := testutil.SeedCourse(t, repos, "BMA01", "Cálculo I")
	sheetID := testutil.SeedSheet(t, repos, courseID, "PC1", "2024-1")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sheets/{id}/rate", RateSheetHandler(repos.Sheets, newGate(repos), cfg))

	path := fmt.Sprintf("/api/sheets/%d/rate", sheetID)

	t.Run("RecordsVote", func(t *testing.T) {
		rr := doJSON(t, mux, "POST", path, `{"score": 4, "device_id": "dev-1"}`, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		payload := decodeResponse(t, rr)
		if payload["rating_count"].(float64) != 1 {
			t.Errorf("expected rating_count 1, got %v", payload["rating_count"])
		}
		if payload["avg_difficulty"].(float64) != 4 {
			t.Errorf("expected avg_difficulty 4, got %v", payload["avg_difficulty"])
		}
	})

	t.Run("ReVoteReplacesScore", func(t *testing.T) {
		rr := doJSON(t, mux, "POST", path, `{"score": 2, "device_id": "dev-1"}`, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		payload := decodeResponse(t, rr)
		if payload["rating_count"].(float64) != 1 {
			t.Errorf("re-vote must not add a rating, got count %v", payload["rating_count"])
		}
		if payload["avg_difficulty"].(float64) != 2 {
			t.Errorf("expected avg_difficulty 2 after re-vote, got %v", payload["avg_difficulty"])
		}
	})

	t.Run("ScoreOutOfRange", func(t *testing.T) {
		rr := doJSON(t, mux, "POST", path, `{"score": 6, "device_id": "dev-2"}`, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("NonIntegralScore", func(t *testing.T) {
		rr := doJSON(t, mux, "POST", path, `{"score": 3.5, "device_id": "dev-2"}`, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("MissingDeviceID", func(t *testing.T) {
		rr := doJSON(t, mux, "POST", path, `{"score": 3}`, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownSheet", func(t *testing.T) {
		rr := doJSON(t, mux, "POST", "/api/sheets/9999/rate", `{"score": 3, "device_id": "dev-2"}`, "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestRateSheetVoteCeiling(t *testing.T) {
	repos := testutil.SetupRepositories(t)
	cfg := testutil.SetupTestConfig(t)
	courseID := testutil.SeedCourse(t, repos, "BMA01", "Cálculo I")
	sheetID := testutil.SeedSheet(t, repos, courseID, "PC1", "2024-1")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sheets/{id}/rate", RateSheetHandler(repos.Sheets, newGate(repos), cfg))

	path := fmt.Sprintf("/api/sheets/%d/rate", sheetID)
	addr := "203.0.113.7:1234"

	// Three distinct devices from the same IP fill the ceiling.
	for i := 1; i <= gate.MaxVotesPerResource; i++ {
		body := fmt.Sprintf(`{"score": 3, "device_id": "dev-%d"}`, i)
		rr := doJSON(t, mux, "POST", path, body, addr)
		if rr.Code != http.StatusOK {
			t.Fatalf("vote %d: expected 200, got %d: %s", i, rr.Code, rr.Body.String())
		}
	}

	t.Run("FourthDeviceDenied", func(t *testing.T) {
		rr := doJSON(t, mux, "POST", path, `{"score": 3, "device_id": "dev-99"}`, addr)
		if rr.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d: %s", rr.Code, rr.Body.String())
		}
		payload := decodeResponse(t, rr)
		if payload["code"] != "RESOURCE_VOTE_LIMIT" {
			t.Errorf("expected code RESOURCE_VOTE_LIMIT, got %v", payload["code"])
		}
		if rr.Header().Get("Retry-After") == "" {
			t.Error("expected Retry-After header")
		}
	})

	t.Run("KnownDeviceStillReVotes", func(t *testing.T) {
		rr := doJSON(t, mux, "POST", path, `{"score": 5, "device_id": "dev-1"}`, addr)
		if rr.Code != http.StatusOK {
			t.Errorf("re-vote past ceiling: expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("OtherIPNotAffected", func(t *testing.T) {
		rr := doJSON(t, mux, "POST", path, `{"score": 3, "device_id": "dev-other"}`, "198.51.100.9:1234")
		if rr.Code != http.StatusOK {
			t.Errorf("other IP: expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestRateSheetRateLimit(t *testing.T) {
	repos := testutil.SetupRepositories(t)
	cfg := testutil.SetupTestConfig(t)
	cfg.RateLimitRating = 2
	courseID := testutil.SeedCourse(t, repos, "BMA01", "Cálculo I")
	sheetID := testutil.SeedSheet(t, repos, courseID, "PC1", "2024-1")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sheets/{id}/rate", RateSheetHandler(repos.Sheets, newGate(repos), cfg))

	path := fmt.Sprintf("/api/sheets/%d/rate", sheetID)
	addr := "203.0.113.7:1234"

	for i := 1; i <= 2; i++ {
		body := fmt.Sprintf(`{"score": 3, "device_id": "dev-%d"}`, i)
		if rr := doJSON(t, mux, "POST", path, body, addr); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}

	rr := doJSON(t, mux, "POST", path, `{"score": 3, "device_id": "dev-3"}`, addr)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d: %s", rr.Code, rr.Body.String())
	}
	if payload := decodeResponse(t, rr); payload["code"] != "RATE_LIMIT" {
		t.Errorf("expected code RATE_LIMIT, got %v", payload["code"])
	}
}

func TestViewSheet(t *testing.T) {
	repos := testutil.SetupRepositories(t)
	cfg := testutil.SetupTestConfig(t)
	courseID := testutil.SeedCourse(t, repos, "BMA01", "Cálculo I")
	sheetID := testutil.SeedSheet(t, repos, courseID, "PC1", "2024-1")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sheets/{id}/view", ViewSheetHandler(repos.Sheets, newGate(repos), cfg))

	t.Run("LogsView", func(t *testing.T) {
		rr := doJSON(t, mux, "POST", fmt.Sprintf("/api/sheets/%d/view", sheetID), `{}`, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}

		sheet, err := repos.Sheets.GetByID(testContext(t), sheetID)
		if err != nil {
			t.Fatalf("failed to reload sheet: %v", err)
		}
		if sheet.ViewCount != 1 {
			t.Errorf("expected view_count 1, got %d", sheet.ViewCount)
		}
	})

	t.Run("UnknownSheet", func(t *testing.T) {
		rr := doJSON(t, mux, "POST", "/api/sheets/9999/view", `{}`, "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestTopSheets(t *testing.T) {
	repos := testutil.SetupRepositories(t)
	cfg := testutil.SetupTestConfig(t)
	courseID := testutil.SeedCourse(t, repos, "BMA01", "Cálculo I")
	rated := testutil.SeedSheet(t, repos, courseID, "PC1", "2024-1")
	testutil.SeedSheet(t, repos, courseID, "PC2", "2024-1")

	rateMux := http.NewServeMux()
	rateMux.HandleFunc("POST /api/sheets/{id}/rate", RateSheetHandler(repos.Sheets, newGate(repos), cfg))
	for i := 1; i <= repository.MinRatingsForTop; i++ {
		body := fmt.Sprintf(`{"score": 4, "device_id": "dev-%d"}`, i)
		addr := fmt.Sprintf("203.0.113.%d:1234", i)
		if rr := doJSON(t, rateMux, "POST", fmt.Sprintf("/api/sheets/%d/rate", rated), body, addr); rr.Code != http.StatusOK {
			t.Fatalf("seed vote %d failed: %d", i, rr.Code)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sheets/top", TopSheetsHandler(repos.Sheets))

	t.Run("ByDifficultyNeedsVoteFloor", func(t *testing.T) {
		rr := doJSON(t, mux, "GET", "/api/sheets/top?by=difficulty", "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		payload := decodeResponse(t, rr)
		sheets := payload["sheets"].([]any)
		if len(sheets) != 1 {
			t.Fatalf("expected only the rated sheet, got %d entries", len(sheets))
		}
	})

	t.Run("ByViewsDefault", func(t *testing.T) {
		rr := doJSON(t, mux, "GET", "/api/sheets/top", "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		payload := decodeResponse(t, rr)
		if len(payload["sheets"].([]any)) != 2 {
			t.Errorf("expected both sheets in the views list")
		}
	})

	t.Run("InvalidOrdering", func(t *testing.T) {
		rr := doJSON(t, mux, "GET", "/api/sheets/top?by=bogus", "", "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})
}

func TestBatchSheets(t *testing.T) {
	repos := testutil.SetupRepositories(t)
	courseID := testutil.SeedCourse(t, repos, "BMA01", "Cálculo I")
	sheetID := testutil.SeedSheet(t, repos, courseID, "PC1", "2024-1")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sheets/batch", BatchSheetsHandler(repos.Sheets))

	t.Run("SkipsUnknownIDs", func(t *testing.T) {
		body := fmt.Sprintf(`{"ids": [%d, 9999]}`, sheetID)
		rr := doJSON(t, mux, "POST", "/api/sheets/batch", body, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		payload := decodeResponse(t, rr)
		if len(payload["sheets"].([]any)) != 1 {
			t.Errorf("expected 1 sheet, got %v", payload["sheets"])
		}
	})

	t.Run("TooManyIDs", func(t *testing.T) {
		ids := make([]string, maxBatchIDs+1)
		for i := range ids {
			ids[i] = fmt.Sprintf("%d", i+1)
		}
		body := fmt.Sprintf(`{"ids": [%s]}`, strings.Join(ids, ","))
		rr := doJSON(t, mux, "POST", "/api/sheets/batch", body, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("NonArrayIDs", func(t *testing.T) {
		rr := doJSON(t, mux, "POST", "/api/sheets/batch", `{"ids": "1,2"}`, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("NegativeID", func(t *testing.T) {
		rr := doJSON(t, mux, "POST", "/api/sheets/batch", `{"ids": [-1]}`, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})
}

func TestSheetFile(t *testing.T) {
	repos := testutil.SetupRepositories(t)
	cfg := testutil.SetupTestConfig(t)
	courseID := testutil.SeedCourse(t, repos, "BMA01", "Cálculo I")
	sheetID := testutil.SeedSheet(t, repos, courseID, "PC1", "2024-1")

	backend, err := filesystem.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	content := "%PDF-1.4 test"
	err = backend.Store(testContext(t), storage.BucketExams, "seed/PC1/2024-1.pdf",
		strings.NewReader(content), int64(len(content)), "application/pdf")
	if err != nil {
		t.Fatalf("failed to store exam: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sheets/{id}/file", SheetFileHandler(repos.Sheets, backend, cfg))

	path := fmt.Sprintf("/api/sheets/%d/file", sheetID)

	t.Run("StreamsWhenPresignUnsupported", func(t *testing.T) {
		rr := doJSON(t, mux, "GET", path, "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/pdf" {
			t.Errorf("expected pdf content type, got %q", ct)
		}
		if !strings.HasPrefix(rr.Header().Get("Content-Disposition"), "inline") {
			t.Errorf("expected inline disposition, got %q", rr.Header().Get("Content-Disposition"))
		}
		if rr.Body.String() != content {
			t.Error("streamed body does not match stored object")
		}
	})

	t.Run("DownloadMode", func(t *testing.T) {
		rr := doJSON(t, mux, "GET", path+"?mode=download", "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		cd := rr.Header().Get("Content-Disposition")
		if !strings.HasPrefix(cd, "attachment") || !strings.Contains(cd, "BMA01") {
			t.Errorf("unexpected disposition %q", cd)
		}
	})

	t.Run("InvalidMode", func(t *testing.T) {
		rr := doJSON(t, mux, "GET", path+"?mode=carrier-pigeon", "", "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownSheet", func(t *testing.T) {
		rr := doJSON(t, mux, "GET", "/api/sheets/9999/file", "", "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})
}

func TestSheetSolution(t *testing.T) {
	repos := testutil.SetupRepositories(t)
	cfg := testutil.SetupTestConfig(t)
	courseID := testutil.SeedCourse(t, repos, "BMA01", "Cálculo I")
	sheetID := testutil.SeedSheet(t, repos, courseID, "PC1", "2024-1")

	backend, err := filesystem.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/sheets/{id}/solution", SheetSolutionHandler(repos.Sheets, backend, cfg))

	path := fmt.Sprintf("/api/sheets/%d/solution", sheetID)

	t.Run("NoSolution", func(t *testing.T) {
		rr := doJSON(t, mux, "GET", path, "", "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("VideoRedirect", func(t *testing.T) {
		videoURL := "https://videos.example.com/sol-1"
		err := repos.Sheets.SetSolution(testContext(t), sheetID, "video", nil, &videoURL)
		if err != nil {
			t.Fatalf("failed to set solution: %v", err)
		}

		rr := doJSON(t, mux, "GET", path, "", "")
		if rr.Code != http.StatusFound {
			t.Fatalf("expected 302, got %d", rr.Code)
		}
		if loc := rr.Header().Get("Location"); loc != videoURL {
			t.Errorf("expected redirect to %q, got %q", videoURL, loc)
		}
	})

	t.Run("PDFStreamFallback", func(t *testing.T) {
		key := "seed/PC1/2024-1.pdf"
		content := "%PDF-1.4 sol"
		err := backend.Store(testContext(t), storage.BucketSolutions, key,
			strings.NewReader(content), int64(len(content)), "application/pdf")
		if err != nil {
			t.Fatalf("failed to store solution: %v", err)
		}
		if err := repos.Sheets.SetSolution(testContext(t), sheetID, "pdf", &key, nil); err != nil {
			t.Fatalf("failed to set solution: %v", err)
		}

		rr := doJSON(t, mux, "GET", path, "", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if rr.Body.String() != content {
			t.Error("streamed solution does not match stored object")
		}
	})
}
