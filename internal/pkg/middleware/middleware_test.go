package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"peb_market/pkg/metrics"
	"peb_market/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter() *gin.Engine {
	r := gin.New()
	r.Use(TraceMiddleware(), LoggerMiddleware(zap.NewNop()))
	auth := r.Group("", AuthMiddleware(testSecret))
	auth.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, CurrentUserID(c))
	})
	auth.GET("/admin", AdminMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func doGet(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()

	t.Run("Missing header", func(t *testing.T) {
		w := doGet(r, "/me", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
	})

	t.Run("Valid token sets user", func(t *testing.T) {
		token, _, err := utils.GenerateToken(testSecret, "user-1", "user", time.Hour)
		require.NoError(t, err)

		w := doGet(r, "/me", token)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "user-1", w.Body.String())
	})

	t.Run("Token signed with another secret", func(t *testing.T) {
		token, _, err := utils.GenerateToken("another-secret-another-secret-xx", "user-1", "user", time.Hour)
		require.NoError(t, err)

		w := doGet(r, "/me", token)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAdminMiddleware(t *testing.T) {
	r := newRouter()

	userToken, _, _ := utils.GenerateToken(testSecret, "user-1", "vendor", time.Hour)
	adminToken, _, _ := utils.GenerateToken(testSecret, "admin-1", "admin", time.Hour)

	assert.Equal(t, http.StatusForbidden, doGet(r, "/admin", userToken).Code)
	assert.Equal(t, http.StatusNoContent, doGet(r, "/admin", adminToken).Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewIPRateLimiter(1, 2)
	r := gin.New()
	r.Use(RateLimitMiddleware(limiter))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, doGet(r, "/", "").Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	assert.Equal(t, 0, limiter.Cleanup(time.Hour))
	assert.Equal(t, 1, limiter.Cleanup(-time.Second))
}

func TestTraceMiddlewareKeepsIncomingID(t *testing.T) {
	r := gin.New()
	r.Use(TraceMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextTraceID)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace-ID", "trace-abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "trace-abc", w.Body.String())
	assert.Equal(t, "trace-abc", w.Header().Get("X-Trace-ID"))
}

func TestMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := gin.New()
	r.Use(MetricsMiddleware(metrics.NewMetricsCollector(reg)))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	doGet(r, "/ping", "")
	doGet(r, "/nope", "")

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}
