package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/trikaweb/trikaweb/internal/config"
	"github.com/trikaweb/trikaweb/internal/gate"
	"github.com/trikaweb/trikaweb/internal/metrics"
	"github.com/trikaweb/trikaweb/internal/models"
	"github.com/trikaweb/trikaweb/internal/repository"
	"github.com/trikaweb/trikaweb/internal/utils"
)

const (
	defaultReviewPageSize = 10
	maxReviewPageSize     = 50
)

// ratingDimensions are the five scores of a teacher review.
var ratingDimensions = []string{"difficulty", "didactic", "resources", "responsability", "grading"}

// ListTeachersHandler returns visible teachers, optionally filtered by
// the ?course= query parameter.
func ListTeachersHandler(teachers repository.TeacherRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		courseCode := r.URL.Query().Get("course")

		list, err := teachers.List(r.Context(), courseCode)
		if err != nil {
			slog.Error("failed to list teachers", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		sendJSON(w, http.StatusOK, map[string]any{"teachers": list})
	}
}

// TopTeachersHandler returns the best-rated visible teachers.
func TopTeachersHandler(teachers repository.TeacherRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseLimit(r, 10, 50)

		list, err := teachers.Top(r.Context(), limit)
		if err != nil {
			slog.Error("failed to list top teachers", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		sendJSON(w, http.StatusOK, map[string]any{"teachers": list})
	}
}

// TeacherDetailHandler returns a teacher's full page payload: summary,
// per-dimension averages, courses and one page of visible reviews.
func TeacherDetailHandler(teachers repository.TeacherRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			sendError(w, "Invalid teacher id", "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		teacher, err := teachers.GetByID(r.Context(), id)
		if errors.Is(err, repository.ErrNotFound) {
			sendError(w, "Teacher not found", "NOT_FOUND", http.StatusNotFound)
			return
		}
		if err != nil {
			slog.Error("failed to get teacher", "teacher_id", id, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		if teacher.IsHidden {
			sendError(w, "Teacher not found", "NOT_FOUND", http.StatusNotFound)
			return
		}

		page := parsePositiveQuery(r, "page", 1)
		pageSize := parsePositiveQuery(r, "pageSize", defaultReviewPageSize)
		if pageSize > maxReviewPageSize {
			pageSize = maxReviewPageSize
		}

		stats, err := teachers.Stats(r.Context(), id)
		if err != nil {
			slog.Error("failed to get teacher stats", "teacher_id", id, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		courses, err := teachers.CoursesFor(r.Context(), id)
		if err != nil {
			slog.Error("failed to get teacher courses", "teacher_id", id, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		reviews, total, err := teachers.Reviews(r.Context(), id, page, pageSize)
		if err != nil {
			slog.Error("failed to get teacher reviews", "teacher_id", id, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		totalPages := (total + pageSize - 1) / pageSize

		detail := models.TeacherDetail{
			Teacher: models.TeacherSummary{
				ID:          teacher.ID,
				FullName:    teacher.FullName,
				Bio:         teacher.Bio,
				AvgOverall:  teacher.AvgOverall,
				RatingCount: teacher.RatingCount,
				AvatarURL:   teacher.AvatarURL,
				Courses:     courses,
			},
			Stats:   *stats,
			Courses: courses,
			Reviews: reviews,
			Pagination: models.Pagination{
				Page:       page,
				PageSize:   pageSize,
				Total:      total,
				TotalPages: totalPages,
			},
		}
		sendJSON(w, http.StatusOK, detail)
	}
}

// RateTeacherHandler records a teacher review. Reviews always enter the
// moderation queue hidden; the public aggregates only move once an
// admin approves them.
func RateTeacherHandler(teachers repository.TeacherRepository, g *gate.Gate, cfg *config.Config, bannedWords []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			sendError(w, "Invalid teacher id", "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		body, err := decodeBody(w, r)
		if err != nil {
			sendError(w, err.Error(), "INVALID_BODY", http.StatusBadRequest)
			return
		}

		scores := make(map[string]int, len(ratingDimensions))
		for _, dim := range ratingDimensions {
			score, err := intInRange(body, dim, 1, 5)
			if err != nil {
				sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
				return
			}
			scores[dim] = score
		}

		var comment *string
		if s, ok, err := optionalString(body, "comment"); err != nil {
			sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		} else if ok && s != "" {
			if matches := bannedWordMatches(s, bannedWords); len(matches) > 0 {
				sendError(w, "Comment contains disallowed language", "COMMENT_REJECTED", http.StatusBadRequest)
				return
			}
			comment = &s
		}

		deviceID, err := stringField(body, "device_id")
		if err != nil {
			sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		teacher, err := teachers.GetByID(r.Context(), id)
		if errors.Is(err, repository.ErrNotFound) {
			sendError(w, "Teacher not found", "NOT_FOUND", http.StatusNotFound)
			return
		}
		if err != nil {
			slog.Error("failed to get teacher", "teacher_id", id, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		if teacher.IsHidden {
			sendError(w, "Teacher not found", "NOT_FOUND", http.StatusNotFound)
			return
		}

		ipHash := utils.HashIP(utils.GetClientIP(r), cfg.IPSalt)

		verdict := g.CheckAndRecord(r.Context(), ipHash, cfg.RateLimitRating)
		if !verdict.Allowed {
			sendGateDenial(w, verdict)
			return
		}
		metrics.RecordGateDecision(true, verdict.Reason)

		// A device editing its review updates in place; only new reviews
		// count against the per-teacher ceiling.
		hasReview, err := teachers.HasRatingByDevice(r.Context(), id, deviceID)
		if err != nil {
			slog.Error("failed to check device review", "teacher_id", id, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		if !hasReview {
			count, err := teachers.CountRatingsByIP(r.Context(), id, ipHash)
			if err != nil {
				slog.Error("failed to count teacher votes", "teacher_id", id, "error", err)
				sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
				return
			}
			if count >= gate.MaxVotesPerResource {
				sendGateDenial(w, gate.Verdict{Allowed: false, Reason: gate.ReasonResourceLimit})
				return
			}
		}

		overall := float64(scores["difficulty"]+scores["didactic"]+scores["resources"]+
			scores["responsability"]+scores["grading"]) / float64(len(ratingDimensions))

		rating := &models.TeacherRating{
			TeacherID:      id,
			DeviceID:       deviceID,
			Overall:        overall,
			Difficulty:     scores["difficulty"],
			Didactic:       scores["didactic"],
			Resources:      scores["resources"],
			Responsability: scores["responsability"],
			Grading:        scores["grading"],
			Comment:        comment,
		}
		if _, err := teachers.UpsertRating(r.Context(), rating, ipHash); err != nil {
			slog.Error("failed to store teacher rating", "teacher_id", id, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		metrics.RatingsTotal.WithLabelValues("teacher").Inc()

		if err := teachers.RecomputeAggregates(r.Context(), id); err != nil {
			slog.Error("failed to recompute teacher aggregates", "teacher_id", id, "error", err)
		}

		stats, err := teachers.Stats(r.Context(), id)
		if err != nil {
			slog.Error("failed to get teacher stats", "teacher_id", id, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		sendJSON(w, http.StatusCreated, map[string]any{
			"status": "pending_review",
			"stats":  stats,
		})
	}
}

// parsePositiveQuery reads a positive integer query parameter.
func parsePositiveQuery(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}
