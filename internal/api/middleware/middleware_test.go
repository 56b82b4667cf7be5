package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"expense-service/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type countingLimiter struct {
	allowUpTo int
	calls     int
	err       error
}

func (l *countingLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	l.calls++
	if l.err != nil {
		return false, l.err
	}
	return l.calls <= l.allowUpTo, nil
}

func serve(engine *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	verifier := auth.NewJWTVerifier("mw-secret")
	engine := gin.New()
	engine.GET("/me", NewAuthMiddleware(verifier).RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})

	w := serve(engine, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(engine, http.MethodGet, "/me", http.Header{"Authorization": {"Bearer nope"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := verifier.IssueToken("42", "a@example.com", time.Hour)
	require.NoError(t, err)
	w = serve(engine, http.MethodGet, "/me", http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "42", w.Body.String())
}

func TestRequireService(t *testing.T) {
	verifier := auth.NewJWTVerifier("mw-secret")
	am := NewAuthMiddleware(verifier)
	engine := gin.New()
	engine.POST("/publish", am.RequireAuth(), am.RequireService(), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})

	userToken, err := verifier.IssueToken("42", "a@example.com", time.Hour)
	require.NoError(t, err)
	w := serve(engine, http.MethodPost, "/publish", http.Header{"Authorization": {"Bearer " + userToken}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	serviceToken, err := verifier.IssueServiceToken("receipts", time.Hour)
	require.NoError(t, err)
	w = serve(engine, http.MethodPost, "/publish", http.Header{"Authorization": {"Bearer " + serviceToken}})
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestCORS(t *testing.T) {
	engine := gin.New()
	engine.Use(CORS([]string{"https://app.example.com"}))
	engine.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(engine, http.MethodGet, "/x", http.Header{"Origin": {"https://app.example.com"}})
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(engine, http.MethodGet, "/x", http.Header{"Origin": {"https://evil.example.com"}})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(engine, http.MethodGet, "/x", http.Header{"Origin": {"https://localhost.attacker.net"}})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(engine, http.MethodOptions, "/x", http.Header{"Origin": {"http://localhost:3000"}})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	limiter := &countingLimiter{allowUpTo: 2}
	engine := gin.New()
	engine.GET("/x", NewRateLimitMiddleware(limiter).RateLimitIP(2, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/x", nil).Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/x", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(engine, http.MethodGet, "/x", nil).Code)
}

func TestRateLimitFailsOpen(t *testing.T) {
	engine := gin.New()
	engine.GET("/x", NewRateLimitMiddleware(&countingLimiter{err: errors.New("redis down")}).RateLimit(1, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/x", nil).Code)

	disabled := gin.New()
	disabled.GET("/x", NewRateLimitMiddleware(nil).RateLimit(1, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	assert.Equal(t, http.StatusOK, serve(disabled, http.MethodGet, "/x", nil).Code)
	assert.Equal(t, http.StatusOK, serve(disabled, http.MethodGet, "/x", nil).Code)
}
