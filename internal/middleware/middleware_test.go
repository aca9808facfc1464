package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yapper-space/core/internal/pkg/apperr"
	"github.com/yapper-space/core/internal/session"
	"github.com/yapper-space/core/internal/store/memory"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header  string
		token   string
		message string
	}{
		{header: "", message: "Authentication required"},
		{header: "Basic abc", message: "Authentication required"},
		{header: "bearer abc", message: "Authentication required"},
		{header: "Bearer", message: "Token is required"},
		{header: "Bearer   ", message: "Token is required"},
		{header: "Bearer abc123", token: "abc123"},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			token, err := BearerToken(tt.header)
			if tt.message != "" {
				require.Error(t, err)
				assert.Equal(t, tt.message, apperr.PublicMessage(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.token, token)
		})
	}
}

func newAuthRouter(t *testing.T) (*gin.Engine, *session.Manager) {
	t.Helper()
	m := session.NewManager(memory.New(memory.WithBcryptCost(bcrypt.MinCost)), session.WithAutoVerify(true))
	r := gin.New()
	r.GET("/me", Auth(m), func(c *gin.Context) {
		id := CurrentIdentity(c)
		c.JSON(http.StatusOK, gin.H{"userId": CurrentUserID(c), "email": id.Email, "token": CurrentToken(c)})
	})
	return r, m
}

func TestAuthAcceptsValidSession(t *testing.T) {
	r, m := newAuthRouter(t)
	ctx := context.Background()
	user, err := m.Register(ctx, session.RegisterInput{Email: "a@b.com", Password: "secret1"}, session.Meta{})
	require.NoError(t, err)
	issued, err := m.Issue(ctx, "a@b.com", "secret1", session.Meta{})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, user.ID, body["userId"])
	assert.Equal(t, "a@b.com", body["email"])
	assert.Equal(t, issued.Token, body["token"])
}

func TestAuthRejects(t *testing.T) {
	r, _ := newAuthRouter(t)
	tests := []struct {
		name    string
		header  string
		message string
	}{
		{"missing", "", "Authentication required"},
		{"wrong scheme", "Token abc", "Authentication required"},
		{"unknown token", "Bearer deadbeef", "Session expired or invalid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tt.message, decode(t, w)["error"])
		})
	}
}

func TestRequestMetaPrefersForwardedFor(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	c.Request.Header.Set("User-Agent", "yapper-ext/1.0")

	meta := RequestMeta(c)
	assert.Equal(t, "203.0.113.7", meta.IP)
	assert.Equal(t, "yapper-ext/1.0", meta.UserAgent)
}

func newLimitedRouter(t *testing.T, rdb *redis.Client, max int64, now func() time.Time) *gin.Engine {
	t.Helper()
	r := gin.New()
	r.Use(rateLimit(rdb, zap.NewNop(), max, now))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	now := time.Unix(1_700_000_000, 0)
	r := newLimitedRouter(t, rdb, 2, func() time.Time { return now })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests {
			assert.Equal(t, "1", w.Header().Get("Retry-After"))
		}
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	now = now.Add(time.Second)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitSkipsAuthorizedRequests(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	r := newLimitedRouter(t, rdb, 0, time.Now)
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	r := newLimitedRouter(t, rdb, 0, time.Now)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLoggerPassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(Logger(zap.NewNop()))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
