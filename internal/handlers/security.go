package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/jewelhouse/jewelhouse/internal/observability"
)

const (
	corsAllowMethods = "GET, POST, PUT, OPTIONS"
	corsAllowHeaders = "Authorization, Content-Type, X-Request-ID"
	corsMaxAge       = "600"
)

// SecurityHeaders sets baseline security headers for all responses.
func (h *Handlers) SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("X-Frame-Options", "DENY")
		headers.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		headers.Set("Cross-Origin-Opener-Policy", "same-origin")

		next.ServeHTTP(w, r)
	})
}

// CORS lets the storefront and admin origins call the API with bearer
// tokens. Preflight requests from other origins are refused.
func (h *Handlers) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Add("Vary", "Origin")

		allowed := h.originAllowed(origin)
		if allowed {
			headers.Set("Access-Control-Allow-Origin", origin)
			headers.Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
			next.ServeHTTP(w, r)
			return
		}

		if !allowed {
			observability.MeterFromContext(r.Context()).Count("security.cors.blocked", 1, sentry.WithAttributes(attribute.String("reason", "origin_not_allowed")))
			h.loggerFromContext(r.Context()).Warn("blocked preflight from unknown origin", "origin", origin)
			w.WriteHeader(http.StatusForbidden)
			return
		}

		headers.Set("Access-Control-Allow-Methods", corsAllowMethods)
		headers.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		headers.Set("Access-Control-Max-Age", corsMaxAge)
		w.WriteHeader(http.StatusNoContent)
	})
}

func (h *Handlers) originAllowed(origin string) bool {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	normalized := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
	for _, candidate := range h.config.AllowedOrigins() {
		if candidate == normalized {
			return true
		}
	}
	return false
}
