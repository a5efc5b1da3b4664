package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"model-invoke-api/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (s *stubLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allowed, s.err
}

func limitedEngine(limiter RateLimiter) *gin.Engine {
	e := gin.New()
	mw := TenantRateLimit(RateLimitConfig{Enabled: true, PerTenantPerMinute: 10}, limiter,
		func(tenantID, endpoint string) string { return tenantID + "|" + endpoint },
		TenantFromParam("tenant_id"))
	e.GET("/quota/:tenant_id", mw, func(c *gin.Context) { c.Status(http.StatusOK) })
	return e
}

func TestTenantRateLimit(t *testing.T) {
	tests := []struct {
		name    string
		limiter *stubLimiter
		want    int
	}{
		{name: "allowed", limiter: &stubLimiter{allowed: true}, want: http.StatusOK},
		{name: "rejected", limiter: &stubLimiter{}, want: http.StatusTooManyRequests},
		{name: "limiter down", limiter: &stubLimiter{err: errors.New("redis down")}, want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			limitedEngine(tt.limiter).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/quota/t1", nil))
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, []string{"t1|/quota/:tenant_id"}, tt.limiter.keys)
		})
	}
}

func TestTenantRateLimit_Disabled(t *testing.T) {
	limiter := &stubLimiter{}
	e := gin.New()
	e.GET("/x", TenantRateLimit(RateLimitConfig{Enabled: false, PerTenantPerMinute: 1}, limiter, nil, nil),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	e.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, limiter.keys)
}

func preflight(e *gin.Engine, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

func TestCORS(t *testing.T) {
	t.Run("wildcard without credentials", func(t *testing.T) {
		e := gin.New()
		e.Use(CORS(config.CORSConfig{AllowedOrigins: []string{"*"}}))
		e.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := preflight(e, "https://console.example.com")
		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("explicit origins", func(t *testing.T) {
		e := gin.New()
		e.Use(CORS(config.CORSConfig{AllowedOrigins: []string{"https://console.example.com"}}))
		e.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

		w := preflight(e, "https://console.example.com")
		assert.Equal(t, "https://console.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

		w = preflight(e, "https://evil.example.com")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
