package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/trikaweb/trikaweb/internal/repository"
	"github.com/trikaweb/trikaweb/internal/utils"
)

// SessionCookieName is the admin session cookie.
const SessionCookieName = "admin_session"

// AdminAuth middleware checks for a valid admin session
func AdminAuth(sessions repository.SessionRepository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil {
				slog.Warn("admin authentication failed - no session cookie",
					"path", r.URL.Path,
					"ip", utils.GetClientIP(r),
				)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			session, err := sessions.Get(r.Context(), cookie.Value)
			if errors.Is(err, repository.ErrNotFound) {
				slog.Warn("admin authentication failed - invalid session token",
					"path", r.URL.Path,
					"ip", utils.GetClientIP(r),
				)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if err != nil {
				slog.Error("failed to validate admin session",
					"error", err,
					"ip", utils.GetClientIP(r),
				)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			if time.Now().After(session.ExpiresAt) {
				// Expired sessions are swept by the cleanup worker;
				// reject eagerly here regardless
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			if err := sessions.Touch(r.Context(), session.Token); err != nil {
				slog.Warn("failed to record session activity",
					"error", err,
					"username", session.Username,
				)
			}

			next.ServeHTTP(w, r)
		})
	}
}
