package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/OldStager01/elastic-orchestrator/api/middleware"
	"github.com/OldStager01/elastic-orchestrator/internal/auth"
	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func perform(r http.Handler, method, path string, headers map[string]string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth(t *testing.T) {
	svc := auth.NewService("secret", time.Hour)
	token, err := svc.GenerateToken("admin", "operator")
	require.NoError(t, err)

	r := gin.New()
	r.GET("/private", middleware.JWTAuth(svc), func(c *gin.Context) {
		c.String(http.StatusOK, middleware.GetUsername(c))
	})

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer " + token, http.StatusOK, "admin"},
		{"missing", "", http.StatusUnauthorized, "missing authorization header"},
		{"not bearer", "Basic abc", http.StatusUnauthorized, "invalid authorization header format"},
		{"bad token", "Bearer nope", http.StatusUnauthorized, "invalid token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.header != "" {
				headers[middleware.AuthorizationHeader] = tt.header
			}
			w := perform(r, http.MethodGet, "/private", headers, "")
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := middleware.NewRateLimiter(2, time.Hour)
	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))

	unlimited := middleware.NewRateLimiter(0, time.Hour)
	for i := 0; i < 10; i++ {
		assert.True(t, unlimited.Allow("a"))
	}
}

func TestEndpointRateLimiter(t *testing.T) {
	erl := middleware.NewEndpointRateLimiter()
	erl.AddEndpoint("/opstrings/:name", 1, time.Hour)

	r := gin.New()
	r.Use(erl.Middleware())
	r.DELETE("/opstrings/:name", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/opstrings", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusNoContent, perform(r, http.MethodDelete, "/opstrings/a", nil, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, perform(r, http.MethodDelete, "/opstrings/b", nil, "").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/opstrings", nil, "").Code)
	assert.Equal(t, http.StatusOK, perform(r, http.MethodGet, "/opstrings", nil, "").Code)
}

func TestTraceID(t *testing.T) {
	r := gin.New()
	r.Use(middleware.TraceID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, logger.TraceIDFromContext(c.Request.Context()))
	})

	w := perform(r, http.MethodGet, "/", map[string]string{middleware.TraceIDHeader: "abc"}, "")
	assert.Equal(t, "abc", w.Header().Get(middleware.TraceIDHeader))
	assert.Equal(t, "abc", w.Body.String())

	w = perform(r, http.MethodGet, "/", nil, "")
	assert.NotEmpty(t, w.Header().Get(middleware.TraceIDHeader))
	assert.Equal(t, w.Header().Get(middleware.TraceIDHeader), w.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	r := gin.New()
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := perform(r, http.MethodOptions, "/", map[string]string{"Origin": "http://ui"}, "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://ui", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "PUT")
}

func TestRequestSizeLimit(t *testing.T) {
	r := gin.New()
	r.Use(middleware.RequestSizeLimit(8))
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, perform(r, http.MethodPost, "/", nil, "small").Code)
	assert.Equal(t, http.StatusRequestEntityTooLarge, perform(r, http.MethodPost, "/", nil, "much too large").Code)
}
