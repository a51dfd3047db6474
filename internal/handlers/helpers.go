// Package handlers implements the HTTP API.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/trikaweb/trikaweb/internal/gate"
	"github.com/trikaweb/trikaweb/internal/metrics"
	"github.com/trikaweb/trikaweb/internal/models"
)

// maxJSONBody caps JSON request bodies
const maxJSONBody = 64 * 1024

// sendError sends a JSON error response
func sendError(w http.ResponseWriter, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	errResp := models.ErrorResponse{
		Error: message,
		Code:  code,
	}

	json.NewEncoder(w).Encode(errResp)
}

// sendJSON sends a JSON success response
func sendJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// decodeBody parses a JSON request body into an untyped map so each
// field can be validated individually. An empty body yields an empty map.
func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, error) {
	body := make(map[string]any)
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)

	err := json.NewDecoder(r.Body).Decode(&body)
	if errors.Is(err, io.EOF) {
		return body, nil
	}
	if err != nil {
		return nil, fmt.Errorf("invalid JSON body")
	}
	return body, nil
}

// intInRange extracts an integer field from an untyped body and checks
// its bounds. JSON numbers arrive as float64; non-integral values fail.
func intInRange(body map[string]any, field string, min, max int) (int, error) {
	raw, ok := body[field]
	if !ok {
		return 0, fmt.Errorf("missing field %q", field)
	}
	f, ok := raw.(float64)
	if !ok || f != float64(int(f)) {
		return 0, fmt.Errorf("field %q must be an integer", field)
	}
	n := int(f)
	if n < min || n > max {
		return 0, fmt.Errorf("field %q must be between %d and %d", field, min, max)
	}
	return n, nil
}

// stringField extracts a required non-empty string field.
func stringField(body map[string]any, field string) (string, error) {
	raw, ok := body[field]
	if !ok {
		return "", fmt.Errorf("missing field %q", field)
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("field %q must be a non-empty string", field)
	}
	return s, nil
}

// optionalString extracts a string field that may be absent.
func optionalString(body map[string]any, field string) (string, bool, error) {
	raw, ok := body[field]
	if !ok || raw == nil {
		return "", false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", false, fmt.Errorf("field %q must be a string", field)
	}
	return s, true, nil
}

// pathID parses the {id} segment of the request path.
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id")
	}
	return id, nil
}

// parseLimit reads a ?limit= query parameter with a default and ceiling.
func parseLimit(r *http.Request, def, max int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// sendGateDenial maps a gate verdict to its HTTP response. Callers must
// only invoke it for denied verdicts.
func sendGateDenial(w http.ResponseWriter, verdict gate.Verdict) {
	metrics.RecordGateDecision(false, verdict.Reason)

	switch verdict.Reason {
	case gate.ReasonRateLimit:
		w.Header().Set("Retry-After", "3600")
		sendError(w, "Too many requests, try again later", "RATE_LIMIT", http.StatusTooManyRequests)
	case gate.ReasonResourceLimit:
		w.Header().Set("Retry-After", "3600")
		sendError(w, "Vote limit reached for this resource", "RESOURCE_VOTE_LIMIT", http.StatusTooManyRequests)
	default:
		sendError(w, "Internal server error", "RATE_LIMIT_INTERNAL", http.StatusInternalServerError)
	}
}
