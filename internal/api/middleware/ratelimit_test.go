package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/urbanscope/urbanscope/internal/api/middleware"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func serveFrom(h http.Handler, method, path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 3, WindowLength: time.Minute}
	handler := middleware.RateLimitByIP(cfg)(http.HandlerFunc(okHandler))

	for i := 0; i < 3; i++ {
		rec := serveFrom(handler, http.MethodGet, "/v1/metadata/layers", "10.0.0.1:12345")
		assert.Equal(t, http.StatusOK, rec.Code, "request %d should be allowed", i+1)
	}

	rec := serveFrom(handler, http.MethodGet, "/v1/metadata/layers", "10.0.0.1:12345")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Rate limit exceeded")
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	rec = serveFrom(handler, http.MethodGet, "/v1/metadata/layers", "10.0.0.2:12345")
	assert.Equal(t, http.StatusOK, rec.Code, "other clients keep their own budget")
}

func TestRateLimitBySession(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 2, WindowLength: 30 * time.Second}

	r := chi.NewRouter()
	r.Route("/v1/sessions/{sessionID}", func(r chi.Router) {
		r.Use(middleware.RateLimitBySession(cfg))
		r.Post("/pick/hover", okHandler)
	})

	// Same session from two addresses shares one budget.
	assert.Equal(t, http.StatusOK, serveFrom(r, http.MethodPost, "/v1/sessions/s1/pick/hover", "192.168.1.1:1").Code)
	assert.Equal(t, http.StatusOK, serveFrom(r, http.MethodPost, "/v1/sessions/s1/pick/hover", "192.168.1.2:1").Code)

	rec := serveFrom(r, http.MethodPost, "/v1/sessions/s1/pick/hover", "192.168.1.3:1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	// Another session is unaffected, even from the same address.
	assert.Equal(t, http.StatusOK, serveFrom(r, http.MethodPost, "/v1/sessions/s2/pick/hover", "192.168.1.1:1").Code)
}

func TestRateLimitBySession_FallsBackToIP(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 1, WindowLength: time.Minute}
	handler := middleware.RateLimitBySession(cfg)(http.HandlerFunc(okHandler))

	assert.Equal(t, http.StatusOK, serveFrom(handler, http.MethodPost, "/v1/sessions", "203.0.113.9:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, serveFrom(handler, http.MethodPost, "/v1/sessions", "203.0.113.9:1").Code)
	assert.Equal(t, http.StatusOK, serveFrom(handler, http.MethodPost, "/v1/sessions", "203.0.113.10:1").Code)
}

func TestRateLimitExceededResponse_Format(t *testing.T) {
	cfg := middleware.RateLimitConfig{RequestLimit: 1, WindowLength: time.Minute}
	handler := middleware.RequestID(middleware.RateLimitByIP(cfg)(http.HandlerFunc(okHandler)))

	assert.Equal(t, http.StatusOK, serveFrom(handler, http.MethodGet, "/test/path", "203.0.113.1:12345").Code)

	rec := serveFrom(handler, http.MethodGet, "/test/path", "203.0.113.1:12345")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	body := rec.Body.String()
	assert.Contains(t, body, "too-many-requests")
	assert.Contains(t, body, "/test/path")
}

func TestDefaultRateLimitConfigs(t *testing.T) {
	assert.Equal(t, 30, middleware.AdminRateLimit.RequestLimit)
	assert.Equal(t, 20, middleware.SessionCreateRateLimit.RequestLimit)
	assert.Equal(t, 100, middleware.StandardRateLimit.RequestLimit)
	assert.Equal(t, 1200, middleware.ControlRateLimit.RequestLimit)

	for _, cfg := range []middleware.RateLimitConfig{
		middleware.AdminRateLimit,
		middleware.SessionCreateRateLimit,
		middleware.StandardRateLimit,
		middleware.ControlRateLimit,
	} {
		assert.Equal(t, time.Minute, cfg.WindowLength)
	}
}
