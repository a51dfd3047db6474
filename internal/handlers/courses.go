package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/trikaweb/trikaweb/internal/repository"
)

// ListCoursesHandler returns all courses with their sheet counts.
func ListCoursesHandler(courses repository.CourseRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := courses.List(r.Context())
		if err != nil {
			slog.Error("failed to list courses", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		sendJSON(w, http.StatusOK, map[string]any{"courses": list})
	}
}

// GetCourseHandler returns one course with its sheets. Codes are
// matched case-insensitively.
func GetCourseHandler(courses repository.CourseRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.ToUpper(strings.TrimSpace(r.PathValue("code")))
		if code == "" {
			sendError(w, "Course code is required", "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		course, err := courses.GetByCode(r.Context(), code)
		if errors.Is(err, repository.ErrNotFound) {
			sendError(w, "Course not found", "NOT_FOUND", http.StatusNotFound)
			return
		}
		if err != nil {
			slog.Error("failed to get course", "code", code, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		sendJSON(w, http.StatusOK, course)
	}
}
