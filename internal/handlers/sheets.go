package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/trikaweb/trikaweb/internal/config"
	"github.com/trikaweb/trikaweb/internal/gate"
	"github.com/trikaweb/trikaweb/internal/metrics"
	"github.com/trikaweb/trikaweb/internal/models"
	"github.com/trikaweb/trikaweb/internal/repository"
	"github.com/trikaweb/trikaweb/internal/storage"
	"github.com/trikaweb/trikaweb/internal/utils"
)

const maxBatchIDs = 50

// TopSheetsHandler returns the top sheets by views or difficulty.
func TopSheetsHandler(sheets repository.SheetRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		by := r.URL.Query().Get("by")
		if by == "" {
			by = repository.TopByViews
		}
		if by != repository.TopByViews && by != repository.TopByDifficulty {
			sendError(w, "Parameter 'by' must be 'views' or 'difficulty'", "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}
		limit := parseLimit(r, 10, 50)

		list, err := sheets.Top(r.Context(), by, limit)
		if err != nil {
			slog.Error("failed to list top sheets", "by", by, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		summaries := make([]models.SheetSummary, len(list))
		for i := range list {
			summaries[i] = list[i].Summary()
		}
		sendJSON(w, http.StatusOK, map[string]any{"sheets": summaries})
	}
}

// BatchSheetsHandler resolves a list of sheet IDs into summaries.
// Unknown IDs are silently skipped.
func BatchSheetsHandler(sheets repository.SheetRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := decodeBody(w, r)
		if err != nil {
			sendError(w, err.Error(), "INVALID_BODY", http.StatusBadRequest)
			return
		}

		rawIDs, ok := body["ids"].([]any)
		if !ok {
			sendError(w, "Field 'ids' must be an array", "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}
		if len(rawIDs) > maxBatchIDs {
			sendError(w, fmt.Sprintf("At most %d ids per request", maxBatchIDs), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		ids := make([]int64, 0, len(rawIDs))
		for _, raw := range rawIDs {
			f, ok := raw.(float64)
			if !ok || f != float64(int64(f)) || f <= 0 {
				sendError(w, "Field 'ids' must contain positive integers", "INVALID_PARAMETER", http.StatusBadRequest)
				return
			}
			ids = append(ids, int64(f))
		}

		list, err := sheets.GetBatch(r.Context(), ids)
		if err != nil {
			slog.Error("failed to batch sheets", "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		summaries := make([]models.SheetSummary, len(list))
		for i := range list {
			summaries[i] = list[i].Summary()
		}
		sendJSON(w, http.StatusOK, map[string]any{"sheets": summaries})
	}
}

// RateSheetHandler records a difficulty vote. Votes pass the write gate;
// a device re-voting replaces its earlier score and bypasses the
// per-sheet ceiling, new votes from an IP are capped.
func RateSheetHandler(sheets repository.SheetRepository, g *gate.Gate, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			sendError(w, "Invalid sheet id", "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		body, err := decodeBody(w, r)
		if err != nil {
			sendError(w, err.Error(), "INVALID_BODY", http.StatusBadRequest)
			return
		}
		score, err := intInRange(body, "score", 1, 5)
		if err != nil {
			sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}
		deviceID, err := stringField(body, "device_id")
		if err != nil {
			sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		ipHash := utils.HashIP(utils.GetClientIP(r), cfg.IPSalt)

		verdict := g.CheckAndRecord(r.Context(), ipHash, cfg.RateLimitRating)
		if !verdict.Allowed {
			sendGateDenial(w, verdict)
			return
		}
		metrics.RecordGateDecision(true, verdict.Reason)

		// Re-votes from a known device update in place; only new votes
		// count against the per-sheet ceiling.
		hasVote, err := sheets.HasRatingByDevice(r.Context(), id, deviceID)
		if err != nil {
			slog.Error("failed to check device vote", "sheet_id", id, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		if !hasVote {
			count, err := sheets.CountRatingsByIP(r.Context(), id, ipHash)
			if err != nil {
				slog.Error("failed to count sheet votes", "sheet_id", id, "error", err)
				sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
				return
			}
			if count >= gate.MaxVotesPerResource {
				sendGateDenial(w, gate.Verdict{Allowed: false, Reason: gate.ReasonResourceLimit})
				return
			}
		}

		rating := &models.SheetRating{
			SheetID:  id,
			DeviceID: deviceID,
			IPHash:   ipHash,
			Score:    score,
		}
		if err := sheets.UpsertRating(r.Context(), rating); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				sendError(w, "Sheet not found", "NOT_FOUND", http.StatusNotFound)
				return
			}
			slog.Error("failed to store sheet rating", "sheet_id", id, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		metrics.RatingsTotal.WithLabelValues("sheet").Inc()

		sheet, err := sheets.GetByID(r.Context(), id)
		if err != nil {
			slog.Error("failed to reload sheet", "sheet_id", id, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		sendJSON(w, http.StatusOK, map[string]any{
			"avg_difficulty": sheet.AvgDifficulty,
			"rating_count":   sheet.RatingCount,
		})
	}
}

// ViewSheetHandler logs a sheet view. The body is optional.
func ViewSheetHandler(sheets repository.SheetRepository, g *gate.Gate, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			sendError(w, "Invalid sheet id", "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		body, err := decodeBody(w, r)
		if err != nil {
			sendError(w, err.Error(), "INVALID_BODY", http.StatusBadRequest)
			return
		}
		var deviceID *string
		if s, ok, err := optionalString(body, "device_id"); err != nil {
			sendError(w, err.Error(), "INVALID_PARAMETER", http.StatusBadRequest)
			return
		} else if ok && s != "" {
			deviceID = &s
		}

		ipHash := utils.HashIP(utils.GetClientIP(r), cfg.IPSalt)

		verdict := g.CheckAndRecord(r.Context(), ipHash, cfg.RateLimitView)
		if !verdict.Allowed {
			sendGateDenial(w, verdict)
			return
		}
		metrics.RecordGateDecision(true, verdict.Reason)

		view := &models.SheetView{SheetID: id, DeviceID: deviceID, IPHash: ipHash}
		if err := sheets.InsertView(r.Context(), view); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				sendError(w, "Sheet not found", "NOT_FOUND", http.StatusNotFound)
				return
			}
			slog.Error("failed to log view", "sheet_id", id, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}
		metrics.SheetViewsTotal.Inc()

		sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// SheetFileHandler serves a sheet's exam PDF. The default is a redirect
// to a signed URL; ?mode=stream or ?mode=download pipe the file through
// the server instead, which is also the fallback when the storage
// backend cannot presign.
func SheetFileHandler(sheets repository.SheetRepository, backend storage.Backend, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			sendError(w, "Invalid sheet id", "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		sheet, err := sheets.GetByID(r.Context(), id)
		if errors.Is(err, repository.ErrNotFound) {
			sendError(w, "Sheet not found", "NOT_FOUND", http.StatusNotFound)
			return
		}
		if err != nil {
			slog.Error("failed to get sheet", "sheet_id", id, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		mode := r.URL.Query().Get("mode")
		switch mode {
		case "":
			ttl := time.Duration(cfg.SignedURLTTLSec) * time.Second
			url, err := backend.SignedURL(r.Context(), storage.BucketExams, sheet.ExamStoragePath, ttl)
			if err == nil {
				http.Redirect(w, r, url, http.StatusFound)
				return
			}
			if !errors.Is(err, storage.ErrPresignUnsupported) {
				slog.Error("failed to sign exam URL", "sheet_id", id, "error", err)
				sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
				return
			}
			streamSheetFile(w, r, backend, storage.BucketExams, sheet, "inline")
		case "stream":
			streamSheetFile(w, r, backend, storage.BucketExams, sheet, "inline")
		case "download":
			streamSheetFile(w, r, backend, storage.BucketExams, sheet, "attachment")
		default:
			sendError(w, "Parameter 'mode' must be 'stream' or 'download'", "INVALID_PARAMETER", http.StatusBadRequest)
		}
	}
}

// SheetSolutionHandler serves a sheet's solution: a signed URL for PDF
// solutions, a redirect for video solutions.
func SheetSolutionHandler(sheets repository.SheetRepository, backend storage.Backend, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			sendError(w, "Invalid sheet id", "INVALID_PARAMETER", http.StatusBadRequest)
			return
		}

		sheet, err := sheets.GetByID(r.Context(), id)
		if errors.Is(err, repository.ErrNotFound) {
			sendError(w, "Sheet not found", "NOT_FOUND", http.StatusNotFound)
			return
		}
		if err != nil {
			slog.Error("failed to get sheet", "sheet_id", id, "error", err)
			sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
			return
		}

		if sheet.SolutionKind == nil {
			sendError(w, "Sheet has no solution", "NOT_FOUND", http.StatusNotFound)
			return
		}

		switch *sheet.SolutionKind {
		case models.SolutionKindVideo:
			if sheet.SolutionVideoURL == nil {
				sendError(w, "Sheet has no solution", "NOT_FOUND", http.StatusNotFound)
				return
			}
			http.Redirect(w, r, *sheet.SolutionVideoURL, http.StatusFound)
		case models.SolutionKindPDF:
			if sheet.SolutionStoragePath == nil {
				sendError(w, "Sheet has no solution", "NOT_FOUND", http.StatusNotFound)
				return
			}
			ttl := time.Duration(cfg.SignedURLTTLSec) * time.Second
			url, err := backend.SignedURL(r.Context(), storage.BucketSolutions, *sheet.SolutionStoragePath, ttl)
			if err == nil {
				http.Redirect(w, r, url, http.StatusFound)
				return
			}
			if !errors.Is(err, storage.ErrPresignUnsupported) {
				slog.Error("failed to sign solution URL", "sheet_id", id, "error", err)
				sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
				return
			}
			streamObject(r.Context(), w, backend, storage.BucketSolutions, *sheet.SolutionStoragePath,
				"inline", utils.DownloadFilename(sheet.CourseCode, sheet.ExamType, sheet.Cycle))
		default:
			sendError(w, "Sheet has no solution", "NOT_FOUND", http.StatusNotFound)
		}
	}
}

func streamSheetFile(w http.ResponseWriter, r *http.Request, backend storage.Backend, bucket string, sheet *models.Sheet, disposition string) {
	filename := utils.DownloadFilename(sheet.CourseCode, sheet.ExamType, sheet.Cycle)
	streamObject(r.Context(), w, backend, bucket, sheet.ExamStoragePath, disposition, filename)
}

func streamObject(ctx context.Context, w http.ResponseWriter, backend storage.Backend, bucket, key, disposition, filename string) {
	reader, err := backend.Retrieve(ctx, bucket, key)
	if errors.Is(err, storage.ErrNotFound) {
		sendError(w, "File not found", "NOT_FOUND", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("failed to retrieve object", "bucket", bucket, "key", key, "error", err)
		sendError(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename=%q", disposition, filename))
	if _, err := io.Copy(w, reader); err != nil {
		slog.Error("failed to stream object", "bucket", bucket, "key", key, "error", err)
	}
}
