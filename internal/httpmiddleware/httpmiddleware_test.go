package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func init() { gin.SetMode(gin.TestMode) }

func TestKeyedLimiterRefills(t *testing.T) {
	l := NewKeyedLimiter(2, 60)
	now := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("station-1")
	assert.True(t, ok)
	ok, _ = l.Allow("station-1")
	assert.True(t, ok)
	ok, retry := l.Allow("station-1")
	assert.False(t, ok)
	assert.InDelta(t, time.Second, retry, float64(10*time.Millisecond))

	// Other keys are independent.
	ok, _ = l.Allow("station-2")
	assert.True(t, ok)

	now = now.Add(time.Second)
	ok, _ = l.Allow("station-1")
	assert.True(t, ok)
	assert.Equal(t, 2, l.Len())
}

func TestKeyedLimiterRejectionsDoNotConsume(t *testing.T) {
	l := NewKeyedLimiter(1, 60)
	now := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	ok, _ := l.Allow("station-1")
	require.True(t, ok)
	for i := 0; i < 5; i++ {
		ok, _ = l.Allow("station-1")
		assert.False(t, ok)
	}

	now = now.Add(500 * time.Millisecond)
	ok, retry := l.Allow("station-1")
	assert.False(t, ok)
	assert.InDelta(t, 500*time.Millisecond, retry, float64(10*time.Millisecond))

	now = now.Add(500 * time.Millisecond)
	ok, _ = l.Allow("station-1")
	assert.True(t, ok)
}

func TestKeyedLimiterEvictsIdleKeys(t *testing.T) {
	l := NewKeyedLimiter(1, 60)
	now := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.Allow("old")

	now = now.Add(time.Hour)
	for i := 0; i < sweepEvery; i++ {
		l.Allow("fresh")
	}
	assert.Equal(t, 1, l.Len())
}

func TestMiddlewareRejects(t *testing.T) {
	l := NewKeyedLimiter(1, 1)
	r := gin.New()
	r.Use(l.Middleware(SessionOrIP))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRequestLoggerAndRecovery(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	r := gin.New()
	r.Use(RequestLogger(logger, "/healthz"), Recovery(logger), SecurityHeaders(true))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(*gin.Context) { panic("kaboom") })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/healthz", "/ok", "/boom"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		if path == "/boom" {
			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
		}
	}

	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
	requests := logs.FilterMessage("request").All()
	require.Len(t, requests, 2)
	assert.Equal(t, "/ok", requests[0].ContextMap()["path"])
	assert.Equal(t, int64(http.StatusInternalServerError), requests[1].ContextMap()["status"])
}
