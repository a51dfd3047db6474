package handlers

import (
	"log/slog"
	"net/http"

	"github.com/trikaweb/trikaweb/internal/metrics"
	"github.com/trikaweb/trikaweb/internal/search"
)

// SearchHandler handles ranked search requests across courses, teachers
// and sheets. Empty queries and empty result sets are both a 200.
func SearchHandler(svc *search.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.SearchesTotal.WithLabelValues("search").Inc()

		query := r.URL.Query().Get("q")
		limit := parseLimit(r, search.DefaultLimit, search.MaxLimit)

		results, err := svc.Search(r.Context(), query, limit)
		if err != nil {
			slog.Error("search failed", "query", query, "error", err)
			metrics.ErrorsTotal.WithLabelValues("search").Inc()
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		sendJSON(w, http.StatusOK, results)
	}
}

// SuggestHandler handles autocomplete requests.
func SuggestHandler(svc *search.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.SearchesTotal.WithLabelValues("suggest").Inc()

		query := r.URL.Query().Get("q")
		limit := parseLimit(r, search.DefaultLimit, search.MaxLimit)

		suggestions, err := svc.Suggest(r.Context(), query, limit)
		if err != nil {
			slog.Error("suggest failed", "query", query, "error", err)
			metrics.ErrorsTotal.WithLabelValues("search").Inc()
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		sendJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
	}
}
