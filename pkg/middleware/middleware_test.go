package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizzlechizzle/aupat/pkg/configs"
	ctxPkg "github.com/bizzlechizzle/aupat/pkg/context"
	"github.com/bizzlechizzle/aupat/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func engine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.POST("/api/v1/sync/push", func(c *gin.Context) {
		c.String(http.StatusOK, ctxPkg.DeviceID(c.Request.Context()))
	})
	r.GET("/api/v1/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	return r
}

func do(r http.Handler, method, path string, headers map[string]string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func TestDeviceAuth(t *testing.T) {
	conf := configs.AuthConfig{
		Enabled:   true,
		SkipPaths: []string{"/api/v1/health"},
		Devices:   map[string]string{"pixel-7": "", "ipad": "s3cret"},
	}
	r := engine(middleware.DeviceAuthMiddleware(conf))

	cases := []struct {
		name    string
		headers map[string]string
		want    int
	}{
		{"missing device", nil, http.StatusUnauthorized},
		{"unknown device", map[string]string{middleware.HeaderDeviceID: "stolen"}, http.StatusForbidden},
		{"allow-listed", map[string]string{middleware.HeaderDeviceID: "pixel-7"}, http.StatusOK},
		{"allow-listed, case folded", map[string]string{middleware.HeaderDeviceID: "Pixel-7"}, http.StatusOK},
		{"token missing", map[string]string{middleware.HeaderDeviceID: "ipad"}, http.StatusUnauthorized},
		{"token ok", map[string]string{middleware.HeaderDeviceID: "ipad", middleware.HeaderDeviceToken: "s3cret"}, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/v1/sync/push", tc.headers, "")
			assert.Equal(t, tc.want, w.Code)
		})
	}

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/health", nil, "").Code)
}

func TestDeviceIDReachesContextWhenAuthDisabled(t *testing.T) {
	r := engine(middleware.DeviceAuthMiddleware(configs.AuthConfig{}))

	w := do(r, http.MethodPost, "/api/v1/sync/push", map[string]string{middleware.HeaderDeviceID: "pixel-7"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pixel-7", w.Body.String())
}

func TestBodyLimit(t *testing.T) {
	r := engine(middleware.BodyLimitMiddleware(8))

	assert.Equal(t, http.StatusRequestEntityTooLarge,
		do(r, http.MethodPost, "/api/v1/sync/push", nil, strings.Repeat("x", 64)).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/v1/sync/push", nil, "tiny").Code)
}

func TestRateLimitPerDevice(t *testing.T) {
	r := engine(middleware.RateLimitMiddleware(configs.RateLimitConfig{
		Enabled: true, RPS: 1, Burst: 1, Key: "header:X-Device-ID",
	}))

	a := map[string]string{middleware.HeaderDeviceID: "a"}
	b := map[string]string{middleware.HeaderDeviceID: "b"}

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/v1/sync/push", a, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodPost, "/api/v1/sync/push", a, "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/v1/sync/push", b, "").Code)
}

func TestRateLimitDeviceMode(t *testing.T) {
	r := engine(middleware.RateLimitMiddleware(configs.RateLimitConfig{
		Enabled: true, RPS: 1, Burst: 1, Key: "device",
	}))

	a := map[string]string{middleware.HeaderDeviceID: "tablet-1"}

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/health", a, "").Code)

	w := do(r, http.MethodGet, "/api/v1/health", a, "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestCircuitBreakerOpensOnServerErrors(t *testing.T) {
	r := gin.New()
	r.Use(middleware.CircuitBreakerMiddleware(configs.CircuitBreakerConfig{
		Enabled: true, FailureRate: 0.5, MinRequests: 2, Interval: time.Minute, OpenTimeout: time.Minute, HalfOpenMax: 1,
	}))
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodGet, "/boom", nil, "").Code)
	assert.Equal(t, http.StatusInternalServerError, do(r, http.MethodGet, "/boom", nil, "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/boom", nil, "").Code)
}
