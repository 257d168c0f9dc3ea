package handlers

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/jewelhouse/jewelhouse/internal/auth"
	"github.com/jewelhouse/jewelhouse/internal/models"
	"github.com/jewelhouse/jewelhouse/internal/observability"
)

// RequireUser admits any caller with a valid bearer token.
func (h *Handlers) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := h.authenticate(w, r)
		if !ok {
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	})
}

// RequireAdmin admits only callers whose token carries the admin role.
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := h.authenticate(w, r)
		if !ok {
			return
		}
		if !identity.IsAdmin() {
			observability.MeterFromContext(r.Context()).Count("auth.rejected", 1, sentry.WithAttributes(attribute.String("reason", "forbidden")))
			h.loggerFromContext(r.Context()).Warn("non-admin caller rejected", "user_id", identity.UserID)
			writeMessage(w, http.StatusForbidden, "Admin only")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
	})
}

func (h *Handlers) authenticate(w http.ResponseWriter, r *http.Request) (*models.Identity, bool) {
	meter := observability.MeterFromContext(r.Context())

	token, err := auth.BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		meter.Count("auth.rejected", 1, sentry.WithAttributes(attribute.String("reason", "missing_token")))
		writeMessage(w, http.StatusUnauthorized, "Authentication required")
		return nil, false
	}

	identity, err := h.verifier.Verify(token)
	if err != nil || identity == nil {
		meter.Count("auth.rejected", 1, sentry.WithAttributes(attribute.String("reason", "invalid_token")))
		h.loggerFromContext(r.Context()).Debug("bearer token rejected", "error", err)
		writeMessage(w, http.StatusUnauthorized, "Invalid token")
		return nil, false
	}

	meter.SetAttributes(
		attribute.String("user.id", identity.UserID.String()),
		attribute.String("user.role", string(identity.Role)),
	)
	return identity, true
}
