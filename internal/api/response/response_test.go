package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/urbanscope/urbanscope/internal/api/middleware"
	"github.com/urbanscope/urbanscope/internal/api/models"
	"github.com/urbanscope/urbanscope/internal/api/response"
)

// requestWithContext returns a request that has passed through the RequestID
// middleware, so its context carries a request id.
func requestWithContext(t *testing.T, method, path string) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(method, path, http.NoBody)

	var processed *http.Request
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		processed = r
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.NotNil(t, processed)

	return processed, httptest.NewRecorder()
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	var problem models.Problem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&problem))
	return problem
}

func TestJSON_IncludesRequestID(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodGet, "/test")

	response.JSON(rec, req, http.StatusOK, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "hello", body["message"])
}

func TestJSON_WithoutRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()

	response.JSON(rec, req, http.StatusOK, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Request-Id"))
}

func TestCreated_SetsLocation(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodPost, "/v1/sessions")

	response.Created(rec, req, "/v1/sessions/abc", map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/v1/sessions/abc", rec.Header().Get("Location"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestNoContent_HasEmptyBody(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodDelete, "/v1/sessions/abc")

	response.NoContent(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Zero(t, rec.Body.Len())
}

func TestProblemHelpers(t *testing.T) {
	tests := []struct {
		name      string
		write     func(w http.ResponseWriter, r *http.Request)
		status    int
		errorType string
	}{
		{
			name:      "not found",
			write:     func(w http.ResponseWriter, r *http.Request) { response.NotFound(w, r, "no such session") },
			status:    http.StatusNotFound,
			errorType: models.ProblemTypeNotFound,
		},
		{
			name:      "conflict",
			write:     func(w http.ResponseWriter, r *http.Request) { response.Conflict(w, r, "closed") },
			status:    http.StatusConflict,
			errorType: models.ProblemTypeConflict,
		},
		{
			name:      "feature disabled",
			write:     func(w http.ResponseWriter, r *http.Request) { response.FeatureDisabled(w, r, "forecast off") },
			status:    http.StatusForbidden,
			errorType: models.ProblemTypeFeatureDisabled,
		},
		{
			name:      "too many requests",
			write:     func(w http.ResponseWriter, r *http.Request) { response.TooManyRequests(w, r, "slow down") },
			status:    http.StatusTooManyRequests,
			errorType: models.ProblemTypeTooManyRequests,
		},
		{
			name:      "internal error",
			write:     func(w http.ResponseWriter, r *http.Request) { response.InternalError(w, r, "boom") },
			status:    http.StatusInternalServerError,
			errorType: models.ProblemTypeInternal,
		},
		{
			name:      "service unavailable",
			write:     func(w http.ResponseWriter, r *http.Request) { response.ServiceUnavailable(w, r, "no data") },
			status:    http.StatusServiceUnavailable,
			errorType: models.ProblemTypeUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := requestWithContext(t, http.MethodGet, "/v1/sessions/abc")

			tt.write(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			problem := decodeProblem(t, rec)
			assert.Equal(t, tt.status, problem.Status)
			assert.Equal(t, tt.errorType, problem.Type)
			assert.Equal(t, "/v1/sessions/abc", problem.Instance)
			assert.Equal(t, rec.Header().Get("X-Request-Id"), problem.TraceID)
		})
	}
}

func TestBadRequest_IncludesFieldErrors(t *testing.T) {
	req, rec := requestWithContext(t, http.MethodPost, "/v1/sessions")

	response.BadRequest(rec, req, "validation failed", []models.FieldError{
		{Field: "mode", Message: "unknown visual mode", Code: models.CodeInvalid},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, "validation failed", problem.Detail)
	require.Len(t, problem.Errors, 1)
	assert.Equal(t, "mode", problem.Errors[0].Field)
	assert.NotEmpty(t, problem.TraceID)
}

func TestDecode(t *testing.T) {
	type payload struct {
		Speed int `json:"speed"`
	}

	t.Run("valid body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"speed":4}`))
		var p payload
		require.NoError(t, response.Decode(req, &p))
		assert.Equal(t, 4, p.Speed)
	})

	t.Run("empty body keeps defaults", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
		p := payload{Speed: 2}
		require.NoError(t, response.Decode(req, &p))
		assert.Equal(t, 2, p.Speed)
	})

	t.Run("unknown field", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"sped":4}`))
		var p payload
		assert.Error(t, response.Decode(req, &p))
	})

	t.Run("malformed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"speed":`))
		var p payload
		assert.Error(t, response.Decode(req, &p))
	})
}

func TestDecodeOrBadRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader(`nope`))
	rec := httptest.NewRecorder()

	var v map[string]interface{}
	ok := response.DecodeOrBadRequest(rec, req, &v)

	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.ProblemTypeValidation, decodeProblem(t, rec).Type)
}
