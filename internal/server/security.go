package server

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/conneroisu/sfclive/internal/errors"
)

// previewCSP allows the inline styles and reload script of the preview
// document and nothing from other origins.
const previewCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; " +
	"script-src 'self' 'unsafe-inline'; img-src 'self' data:; connect-src 'self' ws: wss:; " +
	"object-src 'none'; frame-ancestors 'self'; base-uri 'self'"

// addMiddleware wraps handler with security headers, CORS, origin checks on
// state-changing requests and request logging.
func (s *PreviewServer) addMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		applySecurityHeaders(w)

		origin := r.Header.Get("Origin")
		if s.isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Browsers always send Origin on cross-site POSTs; tools such as curl
		// send none and are allowed.
		if r.Method == http.MethodPost && origin != "" && !s.isAllowedOrigin(origin) {
			s.logger.Warn(r.Context(),
				errors.NewValidationError("INVALID_ORIGIN", "request origin is not allowed"),
				"Security: Invalid origin",
				"origin", origin,
				"ip", getClientIP(r))
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		start := time.Now()
		handler.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "Request served", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func applySecurityHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Security-Policy", previewCSP)
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "SAMEORIGIN")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Cross-Origin-Opener-Policy", "same-origin")
}

// isAllowedOrigin checks if the origin is in the allowed origins list
func (s *PreviewServer) isAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	for _, allowed := range s.config.Server.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// getClientIP returns the request's remote address without the port.
// Forwarding headers are ignored since the server is meant to run locally.
func getClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
