package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIPRateLimiter_Burst(t *testing.T) {
	l := NewIPRateLimiter(60, 3)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "buckets are per ip")

	now = now.Add(time.Second)
	assert.True(t, l.Allow("10.0.0.1"), "one token refills per second at 60/min")
	assert.False(t, l.Allow("10.0.0.1"))
}

func TestIPRateLimiter_EvictsIdle(t *testing.T) {
	l := NewIPRateLimiter(60, 1)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	l.Allow("10.0.0.1")
	now = now.Add(time.Hour)
	l.Allow("10.0.0.2")

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.limiters, "10.0.0.1")
	assert.Contains(t, l.limiters, "10.0.0.2")
}

func TestRateLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.POST("/auth/login", RateLimitMiddleware(NewIPRateLimiter(1, 2)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRequestDumpMiddleware_PreservesBody(t *testing.T) {
	r := gin.New()
	r.Use(RequestDumpMiddleware())
	r.POST("/echo", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		require.NoError(t, err)
		c.String(http.StatusOK, string(body))
	})

	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(`{"a":1}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, `{"a":1}`, w.Body.String())
}

// captureLog routes the global logger into a buffer for the test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestRequestDumpMiddleware_LargeBodyTruncatedInLog(t *testing.T) {
	buf := captureLog(t)
	r := gin.New()
	r.Use(RequestDumpMiddleware())
	r.POST("/echo", func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		require.NoError(t, err)
		c.String(http.StatusOK, string(body))
	})

	payload := strings.Repeat("x", 3*maxDumpBytes)
	req := httptest.NewRequest(http.MethodPost, "/echo", strings.NewReader(payload))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, payload, w.Body.String())

	var entry struct {
		Body string `json:"body"`
	}
	line, _, _ := strings.Cut(buf.String(), "\n")
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Len(t, entry.Body, maxDumpBytes)
}

func TestRequestDumpMiddleware_UnreadableBody(t *testing.T) {
	buf := captureLog(t)
	readErr := errors.New("connection reset")
	r := gin.New()
	r.Use(RequestDumpMiddleware())
	r.POST("/upload", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		assert.ErrorIs(t, err, readErr)
		c.Status(http.StatusBadRequest)
	})

	req := httptest.NewRequest(http.MethodPost, "/upload", iotest.ErrReader(readErr))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, buf.String(), "connection reset")
	assert.NotContains(t, buf.String(), `"message":"request"`)
}
