package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "object-src 'none'")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSAndOriginChecks(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantCORS   string
	}{
		{name: "allowed preflight", method: http.MethodOptions, origin: "http://localhost:8080", wantStatus: http.StatusNoContent, wantCORS: "http://localhost:8080"},
		{name: "allowed post", method: http.MethodPost, origin: "http://127.0.0.1:8080", wantStatus: http.StatusOK, wantCORS: "http://127.0.0.1:8080"},
		{name: "post without origin", method: http.MethodPost, wantStatus: http.StatusOK},
		{name: "cross-site post", method: http.MethodPost, origin: "http://evil.example", wantStatus: http.StatusForbidden},
		{name: "cross-site get", method: http.MethodGet, origin: "http://evil.example", wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			req := httptest.NewRequest(tt.method, "/api/destroy", strings.NewReader("{}"))
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCORS, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")
	assert.Equal(t, "10.0.0.1", getClientIP(r))

	r.RemoteAddr = "pipe"
	assert.Equal(t, "pipe", getClientIP(r))
}
