package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// healthCheckTimeout bounds the database ping.
const healthCheckTimeout = 5 * time.Second

// HealthHandler reports process liveness and datastore reachability.
func HealthHandler(ping func(context.Context) error, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")

		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := ping(ctx); err != nil {
			slog.Error("health check failed: database ping error", "error", err)
			sendJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":         "unhealthy",
				"uptime_seconds": int64(time.Since(startTime).Seconds()),
			})
			return
		}

		sendJSON(w, http.StatusOK, map[string]any{
			"status":         "healthy",
			"uptime_seconds": int64(time.Since(startTime).Seconds()),
		})
	}
}
