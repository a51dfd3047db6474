package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/trikaweb/trikaweb/internal/auth/sso"
	"github.com/trikaweb/trikaweb/internal/config"
	"github.com/trikaweb/trikaweb/internal/drive"
	"github.com/trikaweb/trikaweb/internal/gate"
	"github.com/trikaweb/trikaweb/internal/middleware"
	"github.com/trikaweb/trikaweb/internal/models"
	"github.com/trikaweb/trikaweb/internal/repository"
	"github.com/trikaweb/trikaweb/internal/storage"
	"github.com/trikaweb/trikaweb/internal/utils"
)

const (
	// adminLoginRateLimit caps login attempts per gate window per hashed IP.
	adminLoginRateLimit = 10

	maxUploadBytes = 32 << 20 // 32MB

	resourceKindExam     = "PLANCHA"
	resourceKindSolution = "SOLUCIONARIO"
)

// LoginHandler authenticates the configured admin user and issues a
// session cookie.
func LoginHandler(cfg *config.Config, passwordHash string, sessions repository.SessionRepository, g *gate.Gate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ipHash := utils.HashIP(utils.GetClientIP(r), cfg.IPSalt)
		verdict := g.CheckAndRecord(r.Context(), ipHash, adminLoginRateLimit)
		if !verdict.Allowed {
			sendGateDenial(w, verdict)
			return
		}

		body, err := decodeBody(w, r)
		if err != nil {
			sendError(w, err.Error(), "INVALID_BODY", http.StatusBadRequest)
			return
		}
		username, err := stringField(body, "username")
		if err != nil {
			sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}
		password, err := stringField(body, "password")
		if err != nil {
			sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		if username != cfg.AdminUsername || !utils.VerifyPassword(password, passwordHash) {
			slog.Warn("admin login failed", "username", username)
			sendError(w, "Invalid credentials", "INVALID_CREDENTIALS", http.StatusUnauthorized)
			return
		}

		if err := issueSession(w, r, sessions, cfg, username); err != nil {
			slog.Error("failed to create session", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		slog.Info("admin logged in", "username", username)
		sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// LogoutHandler deletes the admin session and clears the cookie.
func LogoutHandler(sessions repository.SessionRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil {
			if err := sessions.Delete(r.Context(), cookie.Value); err != nil && !errors.Is(err, repository.ErrNotFound) {
				slog.Error("failed to delete session", "error", err)
			}
		}

		http.SetCookie(w, &http.Cookie{
			Name:     middleware.SessionCookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
		sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// SSOLoginHandler redirects the browser to the OIDC provider.
func SSOLoginHandler(provider *sso.OIDCProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url, err := provider.AuthorizationURL()
		if err != nil {
			slog.Error("failed to build authorization URL", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
	}
}

// SSOCallbackHandler completes the OIDC flow and issues a session.
func SSOCallbackHandler(provider *sso.OIDCProvider, sessions repository.SessionRepository, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := r.URL.Query().Get("state")
		code := r.URL.Query().Get("code")
		if state == "" || code == "" {
			sendError(w, "Missing state or code", "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		user, err := provider.Exchange(r.Context(), state, code)
		if err != nil {
			slog.Warn("SSO login failed", "error", err)
			sendError(w, "Authentication failed", "SSO_FAILED", http.StatusUnauthorized)
			return
		}
		if !user.Verified {
			sendError(w, "Email not verified", "SSO_FAILED", http.StatusUnauthorized)
			return
		}

		if err := issueSession(w, r, sessions, cfg, user.Email); err != nil {
			slog.Error("failed to create session", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		slog.Info("admin logged in via SSO", "email", user.Email)
		http.Redirect(w, r, "/admin", http.StatusFound)
	}
}

func issueSession(w http.ResponseWriter, r *http.Request, sessions repository.SessionRepository, cfg *config.Config, username string) error {
	token := uuid.NewString() + uuid.NewString()
	now := time.Now()
	session := repository.AdminSession{
		Token:     token,
		Username:  username,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(cfg.SessionTTLHours) * time.Hour),
	}
	if err := sessions.Create(r.Context(), session); err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil || strings.HasPrefix(cfg.PublicURL, "https://"),
	})
	return nil
}

// AdminTeachersHandler returns a paginated teacher list including
// hidden teachers, with an optional name/bio search.
func AdminTeachersHandler(teachers repository.TeacherRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeBody(w, r)
		if err != nil {
			sendError(w, err.Error(), "INVALID_BODY", http.StatusBadRequest)
			return
		}
		page, pageSize := paginationFields(body)
		searchTerm, _, err := optionalString(body, "search")
		if err != nil {
			sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		all, err := teachers.ListAll(r.Context())
		if err != nil {
			slog.Error("failed to list teachers", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		if searchTerm != "" {
			needle := strings.ToLower(searchTerm)
			filtered := all[:0]
			for _, t := range all {
				if strings.Contains(strings.ToLower(t.FullName), needle) ||
					strings.Contains(strings.ToLower(t.Bio), needle) {
					filtered = append(filtered, t)
				}
			}
			all = filtered
		}

		total := len(all)
		start := (page - 1) * pageSize
		if start > total {
			start = total
		}
		end := start + pageSize
		if end > total {
			end = total
		}

		sendJSON(w, http.StatusOK, map[string]any{
			"teachers": all[start:end],
			"pagination": models.Pagination{
				Page:       page,
				PageSize:   pageSize,
				Total:      total,
				TotalPages: (total + pageSize - 1) / pageSize,
			},
		})
	}
}

// AdminAddTeacherHandler creates a teacher with optional course links.
// A failure linking courses does not fail the create.
func AdminAddTeacherHandler(teachers repository.TeacherRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeBody(w, r)
		if err != nil {
			sendError(w, err.Error(), "INVALID_BODY", http.StatusBadRequest)
			return
		}

		name, err := stringField(body, "full_name")
		if err != nil {
			sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}
		name = strings.TrimSpace(name)
		if len([]rune(name)) < 2 {
			sendError(w, "Teacher name must be at least 2 characters", "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		bio, _, err := optionalString(body, "bio")
		if err != nil {
			sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		var courseIDs []int64
		if raw, ok := body["course_ids"].([]any); ok {
			for _, v := range raw {
				f, ok := v.(float64)
				if !ok || f != float64(int64(f)) {
					sendError(w, "Field 'course_ids' must contain integers", "INVALID_PARAMETER", http.StatusBadRequest)
					return
				}
				courseIDs = append(courseIDs, int64(f))
			}
		}

		// Dedup by case-insensitive name
		existing, err := teachers.ListAll(r.Context())
		if err != nil {
			slog.Error("failed to list teachers", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		for _, t := range existing {
			if strings.EqualFold(t.FullName, name) {
				sendError(w, "Teacher already exists", "DUPLICATE", http.StatusConflict)
				return
			}
		}

		teacher := &models.Teacher{FullName: name, Bio: bio}
		id, err := teachers.Create(r.Context(), teacher, nil)
		if err != nil {
			slog.Error("failed to create teacher", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		if len(courseIDs) > 0 {
			teacher.ID = id
			if err := teachers.Update(r.Context(), teacher, courseIDs); err != nil {
				slog.Warn("failed to link teacher courses", "teacher_id", id, "error", err)
			}
		}

		sendJSON(w, http.StatusCreated, map[string]any{"id": id})
	}
}

// AdminToggleTeacherHandler sets a teacher's visibility.
func AdminToggleTeacherHandler(teachers repository.TeacherRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeBody(w, r)
		if err != nil {
			sendError(w, err.Error(), "INVALID_BODY", http.StatusBadRequest)
			return
		}
		id, err := idField(body, "id")
		if err != nil {
			sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}
		hidden, ok := body["hidden"].(bool)
		if !ok {
			sendError(w, "Field 'hidden' must be a boolean", "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		if err := teachers.SetHidden(r.Context(), id, hidden); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				sendError(w, "Teacher not found", "NOT_FOUND", http.StatusNotFound)
				return
			}
			slog.Error("failed to toggle teacher", "teacher_id", id, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// PendingCommentsHandler returns hidden reviews awaiting moderation,
// newest first.
func PendingCommentsHandler(teachers repository.TeacherRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeBody(w, r)
		if err != nil {
			sendError(w, err.Error(), "INVALID_BODY", http.StatusBadRequest)
			return
		}
		page, pageSize := paginationFields(body)

		ratings, total, err := teachers.ListRatings(r.Context(), true, page, pageSize)
		if err != nil {
			slog.Error("failed to list pending comments", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		sendJSON(w, http.StatusOK, map[string]any{
			"ratings": ratings,
			"pagination": models.Pagination{
				Page:       page,
				PageSize:   pageSize,
				Total:      total,
				TotalPages: (total + pageSize - 1) / pageSize,
			},
		})
	}
}

// ApproveCommentHandler unhides a review and refreshes the teacher's
// public aggregates.
func ApproveCommentHandler(teachers repository.TeacherRepository) http.HandlerFunc {
	return setRatingVisibility(teachers, false)
}

// HideCommentHandler hides a review, refreshes aggregates and reports
// banned-word matches found in the comment.
func HideCommentHandler(teachers repository.TeacherRepository, bannedWords []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeBody(w, r)
		if err != nil {
			sendError(w, err.Error(), "INVALID_BODY", http.StatusBadRequest)
			return
		}
		id, err := idField(body, "id")
		if err != nil {
			sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		rating, err := teachers.GetRating(r.Context(), id)
		if errors.Is(err, repository.ErrNotFound) {
			sendError(w, "Rating not found", "NOT_FOUND", http.StatusNotFound)
			return
		}
		if err != nil {
			slog.Error("failed to get rating", "rating_id", id, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		teacherID, err := teachers.SetRatingHidden(r.Context(), id, true)
		if err != nil {
			slog.Error("failed to hide rating", "rating_id", id, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		if err := teachers.RecomputeAggregates(r.Context(), teacherID); err != nil {
			slog.Error("failed to recompute teacher aggregates", "teacher_id", teacherID, "error", err)
		}

		var matches []string
		if rating.Comment != nil {
			matches = bannedWordMatches(*rating.Comment, bannedWords)
		}
		if matches == nil {
			matches = []string{}
		}

		sendJSON(w, http.StatusOK, map[string]any{
			"status":              "ok",
			"banned_word_matches": matches,
		})
	}
}

func setRatingVisibility(teachers repository.TeacherRepository, hidden bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeBody(w, r)
		if err != nil {
			sendError(w, err.Error(), "INVALID_BODY", http.StatusBadRequest)
			return
		}
		id, err := idField(body, "id")
		if err != nil {
			sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		teacherID, err := teachers.SetRatingHidden(r.Context(), id, hidden)
		if errors.Is(err, repository.ErrNotFound) {
			sendError(w, "Rating not found", "NOT_FOUND", http.StatusNotFound)
			return
		}
		if err != nil {
			slog.Error("failed to set rating visibility", "rating_id", id, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		if err := teachers.RecomputeAggregates(r.Context(), teacherID); err != nil {
			slog.Error("failed to recompute teacher aggregates", "teacher_id", teacherID, "error", err)
		}
		sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// AdminRatingsHandler returns visible reviews with optional teacher
// filter and text search.
func AdminRatingsHandler(teachers repository.TeacherRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeBody(w, r)
		if err != nil {
			sendError(w, err.Error(), "INVALID_BODY", http.StatusBadRequest)
			return
		}
		page, pageSize := paginationFields(body)

		var teacherID int64
		if _, ok := body["teacher_id"]; ok {
			teacherID, err = idField(body, "teacher_id")
			if err != nil {
				sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
				return
			}
		}
		searchTerm, _, err := optionalString(body, "search")
		if err != nil {
			sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		ratings, total, err := teachers.ListVisibleRatings(r.Context(), teacherID, searchTerm, page, pageSize)
		if err != nil {
			slog.Error("failed to list ratings", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		sendJSON(w, http.StatusOK, map[string]any{
			"ratings": ratings,
			"pagination": models.Pagination{
				Page:       page,
				PageSize:   pageSize,
				Total:      total,
				TotalPages: (total + pageSize - 1) / pageSize,
			},
		})
	}
}

// DeleteRatingHandler hard-deletes a review and refreshes aggregates.
func DeleteRatingHandler(teachers repository.TeacherRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeBody(w, r)
		if err != nil {
			sendError(w, err.Error(), "INVALID_BODY", http.StatusBadRequest)
			return
		}
		id, err := idField(body, "id")
		if err != nil {
			sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		teacherID, err := teachers.DeleteRating(r.Context(), id)
		if errors.Is(err, repository.ErrNotFound) {
			sendError(w, "Rating not found", "NOT_FOUND", http.StatusNotFound)
			return
		}
		if err != nil {
			slog.Error("failed to delete rating", "rating_id", id, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		if err := teachers.RecomputeAggregates(r.Context(), teacherID); err != nil {
			slog.Error("failed to recompute teacher aggregates", "teacher_id", teacherID, "error", err)
		}
		sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// UploadHandler accepts a multipart exam or solution PDF and wires it
// into the sheet catalog.
func UploadHandler(courses repository.CourseRepository, sheets repository.SheetRepository, backend storage.Backend) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			sendError(w, "File too large or invalid form data", "FILE_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return
		}

		examType := strings.TrimSpace(r.FormValue("exam_type"))
		cycle := strings.TrimSpace(r.FormValue("cycle"))
		kind := strings.TrimSpace(r.FormValue("resource_kind"))
		if examType == "" || cycle == "" {
			sendError(w, "Fields 'exam_type' and 'cycle' are required", "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}
		if kind != resourceKindExam && kind != resourceKindSolution {
			sendError(w, "Field 'resource_kind' must be PLANCHA or SOLUCIONARIO", "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		course, err := resolveCourse(r.Context(), courses, r.FormValue("course"))
		if errors.Is(err, repository.ErrNotFound) {
			sendError(w, "Course not found", "NOT_FOUND", http.StatusNotFound)
			return
		}
		if err != nil {
			sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			sendError(w, "No file provided", "NO_FILE", http.StatusBadRequest)
			return
		}
		defer file.Close()

		var buf bytes.Buffer
		if _, err := io.Copy(&buf, file); err != nil {
			slog.Error("failed to read upload", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		if !mimetype.Detect(buf.Bytes()).Is("application/pdf") {
			sendError(w, "File must be a PDF", "INVALID_FILE_TYPE", http.StatusBadRequest)
			return
		}

		var teacherHint *string
		if hint := strings.TrimSpace(r.FormValue("teacher_hint")); hint != "" {
			teacherHint = &hint
		}

		key := objectKey(course.Code, examType, cycle)
		bucket := storage.BucketExams
		if kind == resourceKindSolution {
			bucket = storage.BucketSolutions
		}

		sheet, err := sheets.FindByCourseExam(r.Context(), course.ID, examType, cycle)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to look up sheet", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		if kind == resourceKindSolution && sheet == nil {
			sendError(w, "No sheet exists for this exam", "NOT_FOUND", http.StatusNotFound)
			return
		}

		if err := backend.Store(r.Context(), bucket, key, &buf, int64(buf.Len()), "application/pdf"); err != nil {
			slog.Error("failed to store upload", "bucket", bucket, "key", key, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		var sheetID int64
		switch {
		case kind == resourceKindSolution:
			sheetID = sheet.ID
			if err := sheets.SetSolution(r.Context(), sheet.ID, models.SolutionKindPDF, &key, nil); err != nil {
				slog.Error("failed to set solution", "sheet_id", sheet.ID, "error", err)
				sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
				return
			}
		case sheet != nil:
			sheetID = sheet.ID
			if err := sheets.UpdateExam(r.Context(), sheet.ID, key, teacherHint); err != nil {
				slog.Error("failed to update sheet", "sheet_id", sheet.ID, "error", err)
				sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
				return
			}
		default:
			sheetID, err = sheets.Create(r.Context(), &models.Sheet{
				CourseID:        course.ID,
				ExamType:        examType,
				Cycle:           cycle,
				ExamStoragePath: key,
				TeacherHint:     teacherHint,
			})
			if err != nil {
				slog.Error("failed to create sheet", "error", err)
				sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
				return
			}
		}

		slog.Info("file uploaded", "course", course.Code, "exam_type", examType,
			"cycle", cycle, "kind", kind, "sheet_id", sheetID)
		sendJSON(w, http.StatusCreated, map[string]any{"sheet_id": sheetID, "storage_path": key})
	}
}

// UploadURLHandler issues a presigned PUT URL for browser-direct
// uploads. Backends without presign support return 501.
func UploadURLHandler(backend storage.Backend, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeBody(w, r)
		if err != nil {
			sendError(w, err.Error(), "INVALID_BODY", http.StatusBadRequest)
			return
		}
		courseCode, err := stringField(body, "course")
		if err != nil {
			sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}
		examType, err := stringField(body, "exam_type")
		if err != nil {
			sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}
		cycle, err := stringField(body, "cycle")
		if err != nil {
			sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}
		kind, err := stringField(body, "resource_kind")
		if err != nil {
			sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}
		if kind != resourceKindExam && kind != resourceKindSolution {
			sendError(w, "Field 'resource_kind' must be PLANCHA or SOLUCIONARIO", "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		bucket := storage.BucketExams
		if kind == resourceKindSolution {
			bucket = storage.BucketSolutions
		}
		key := objectKey(strings.ToUpper(courseCode), examType, cycle)
		ttl := time.Duration(cfg.SignedURLTTLSec) * time.Second

		url, err := backend.SignedUploadURL(r.Context(), bucket, key, ttl)
		if errors.Is(err, storage.ErrPresignUnsupported) {
			sendError(w, "Storage backend does not support presigned uploads", "PRESIGN_UNSUPPORTED", http.StatusNotImplemented)
			return
		}
		if err != nil {
			slog.Error("failed to presign upload", "bucket", bucket, "key", key, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		sendJSON(w, http.StatusOK, map[string]string{"upload_url": url, "storage_path": key})
	}
}

// DriveSyncHandler triggers a background drive sync run. Only one run
// may be active at a time.
func DriveSyncHandler(cfg *config.Config, courses repository.CourseRepository, sheets repository.SheetRepository, backend storage.Backend) http.HandlerFunc {
	var running atomic.Bool

	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeBody(w, r)
		if err != nil {
			sendError(w, err.Error(), "INVALID_BODY", http.StatusBadRequest)
			return
		}
		syncType, _, err := optionalString(body, "type")
		if err != nil {
			sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}
		if syncType == "" {
			syncType = "all"
		}
		if syncType != "exams" && syncType != "solutions" && syncType != "all" {
			sendError(w, "Field 'type' must be exams, solutions or all", "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		if missing := cfg.DriveMissingVars(syncType); len(missing) > 0 {
			sendJSON(w, http.StatusServiceUnavailable, map[string]any{
				"error":   "Drive sync is not configured",
				"code":    "DRIVE_NOT_CONFIGURED",
				"missing": missing,
			})
			return
		}

		if !running.CompareAndSwap(false, true) {
			sendError(w, "A sync is already running", "SYNC_IN_PROGRESS", http.StatusConflict)
			return
		}

		go func() {
			defer running.Store(false)
			ctx := context.Background()

			client, err := drive.NewClient(ctx, cfg.DriveCredentialsFile)
			if err != nil {
				slog.Error("failed to create drive client", "error", err)
				return
			}
			syncer := drive.NewSyncer(client, backend, courses, sheets)

			if syncType == "exams" || syncType == "all" {
				res, err := syncer.SyncExams(ctx, cfg.DriveExamsFolderID)
				if err != nil {
					slog.Error("exam sync failed", "error", err)
				} else {
					slog.Info("exam sync finished", "synced", res.Synced,
						"skipped", res.Skipped, "failed", res.Failed)
				}
			}
			if syncType == "solutions" || syncType == "all" {
				res, err := syncer.SyncSolutions(ctx, cfg.DriveSolutionsFolderID)
				if err != nil {
					slog.Error("solution sync failed", "error", err)
				} else {
					slog.Info("solution sync finished", "synced", res.Synced,
						"skipped", res.Skipped, "no_sheet", res.NoSheet, "failed", res.Failed)
				}
			}
		}()

		sendJSON(w, http.StatusAccepted, map[string]string{"status": "started", "type": syncType})
	}
}

// resolveCourse accepts a numeric course ID or a course code.
func resolveCourse(ctx context.Context, courses repository.CourseRepository, raw string) (*models.Course, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("field 'course' is required")
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return courses.GetByID(ctx, id)
	}
	return courses.FindByCode(ctx, strings.ToUpper(raw))
}

// objectKey builds the storage key for an exam or solution PDF.
func objectKey(courseCode, examType, cycle string) string {
	return fmt.Sprintf("%s/%s/%s.pdf",
		utils.SanitizePathComponent(courseCode),
		utils.SanitizePathComponent(examType),
		utils.SanitizePathComponent(cycle))
}

// paginationFields reads page/pageSize from an admin request body.
func paginationFields(body map[string]any) (int, int) {
	page := 1
	pageSize := 20
	if f, ok := body["page"].(float64); ok && f >= 1 {
		page = int(f)
	}
	if f, ok := body["pageSize"].(float64); ok && f >= 1 {
		pageSize = int(f)
	}
	if pageSize > maxReviewPageSize {
		pageSize = maxReviewPageSize
	}
	return page, pageSize
}

// idField extracts a positive integer ID from an untyped body.
func idField(body map[string]any, field string) (int64, error) {
	raw, ok := body[field]
	if !ok {
		return 0, fmt.Errorf("missing field %q", field)
	}
	f, ok := raw.(float64)
	if !ok || f != float64(int64(f)) || f <= 0 {
		return 0, fmt.Errorf("field %q must be a positive integer", field)
	}
	return int64(f), nil
}
