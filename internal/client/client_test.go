package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	engine "github.com/yapper-space/core/internal/autocomment"
	"github.com/yapper-space/core/internal/pkg/apperr"
	"github.com/yapper-space/core/internal/pkg/upstream"
)

func TestFileProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "yapper", "credentials.json")
	p := NewFileProvider(path)

	creds, err := p.Get()
	require.NoError(t, err)
	assert.False(t, creds.LoggedIn())

	require.NoError(t, p.Set(&Credentials{ServerURL: "http://api", Token: "tok", Email: "a@b.c"}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	creds, err = p.Get()
	require.NoError(t, err)
	assert.Equal(t, "tok", creds.Token)
	assert.Equal(t, "http://api", creds.ServerURL)

	require.NoError(t, p.Clear())
	require.NoError(t, p.Clear())
	creds, err = p.Get()
	require.NoError(t, err)
	assert.Equal(t, Credentials{}, *creds)
}

func TestFileProviderRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err := NewFileProvider(path).Get()
	assert.Error(t, err)
}

func TestDefaultCredentialsPathFollowsXDG(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CONFIG_HOME only applies on linux")
	}
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	path, err := DefaultCredentialsPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "yapper", "credentials.json"), path)
}

type apiCall struct {
	Path    string
	Auth    string
	Twitter string
	Body    map[string]string
}

func newTestClient(t *testing.T, h func(w http.ResponseWriter, r *http.Request)) (*Client, *MemoryProvider, *[]apiCall) {
	t.Helper()
	var calls []apiCall
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := apiCall{Path: r.URL.Path, Auth: r.Header.Get("Authorization"), Twitter: r.Header.Get(twitterHeader)}
		_ = json.NewDecoder(r.Body).Decode(&call.Body)
		calls = append(calls, call)
		w.Header().Set("Content-Type", "application/json")
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	creds := &MemoryProvider{}
	require.NoError(t, creds.Set(&Credentials{ServerURL: srv.URL + "/"}))
	api := upstream.New("yapper-api", upstream.WithMaxRetries(0))
	return New(api, creds), creds, &calls
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLoginStoresSession(t *testing.T) {
	c, creds, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true, "token": "sess", "userId": "u1", "email": "a@b.c", "role": "user", "expiresInHours": 24,
		})
	})

	res, err := c.Login(context.Background(), "a@b.c", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "u1", res.UserID)
	assert.Equal(t, 24, res.ExpiresInHours)

	stored, _ := creds.Get()
	assert.Equal(t, "sess", stored.Token)
	assert.Equal(t, "a@b.c", stored.Email)

	require.Len(t, *calls, 1)
	assert.Equal(t, "/api/v1/auth/login", (*calls)[0].Path)
	assert.Empty(t, (*calls)[0].Auth)
	assert.Equal(t, "secret1", (*calls)[0].Body["password"])
}

func TestLoginFailureKeepsServerMessage(t *testing.T) {
	c, creds, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"ok": 0, "code": 401, "error": "Invalid email or password", "message": "Invalid email or password"})
	})

	_, err := c.Login(context.Background(), "a@b.c", "wrong")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindAuth))
	assert.Equal(t, "Invalid email or password", apperr.PublicMessage(err))

	stored, _ := creds.Get()
	assert.False(t, stored.LoggedIn())
}

func TestRegisterConflict(t *testing.T) {
	c, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": "Email already exists", "message": "Email already exists"})
	})
	_, err := c.Register(context.Background(), RegisterInput{Email: "a@b.c", Password: "secret1"})
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, apperr.HTTPStatus(err))
	assert.Equal(t, "Email already exists", apperr.PublicMessage(err))
}

func TestAuthedCallsRequireSession(t *testing.T) {
	c, _, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{})
	})
	_, err := c.Search(context.Background(), "gm", 10)
	assert.ErrorIs(t, err, ErrNotLoggedIn)
	assert.Empty(t, *calls)
}

func TestSearchAndGenerate(t *testing.T) {
	c, creds, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/twitter/search":
			assert.Equal(t, "gm frens", r.URL.Query().Get("query"))
			assert.Equal(t, "25", r.URL.Query().Get("max_results"))
			writeJSON(w, http.StatusOK, map[string]interface{}{"data": []map[string]interface{}{{"id": "1", "content": "gm", "handle": "@a"}}})
		case "/api/v1/ai/generate-comment":
			writeJSON(w, http.StatusOK, map[string]string{"comment": "nice one", "tone": "casual"})
		case "/api/v1/twitter/generate-tweet":
			writeJSON(w, http.StatusOK, map[string]string{"tweet": "1. hello"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	stored, _ := creds.Get()
	stored.Token = "sess"
	require.NoError(t, creds.Set(stored))

	tweets, err := c.Search(context.Background(), "gm frens", 25)
	require.NoError(t, err)
	require.Len(t, tweets, 1)
	assert.Equal(t, "@a", tweets[0].Handle)

	comment, err := c.GenerateComment(context.Background(), "gm", engine.ToneCasual)
	require.NoError(t, err)
	assert.Equal(t, "nice one", comment)

	text, err := c.GenerateTweets(context.Background(), "launch")
	require.NoError(t, err)
	assert.Equal(t, "1. hello", text)

	for _, call := range *calls {
		assert.Equal(t, "Bearer sess", call.Auth)
	}
	assert.Equal(t, map[string]string{"tweet": "gm", "tone": "casual"}, (*calls)[1].Body)
}

func TestPostCommentSendsTwitterToken(t *testing.T) {
	c, creds, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "data": map[string]string{"id": "9"}})
	})
	stored, _ := creds.Get()
	stored.Token = "sess"
	require.NoError(t, creds.Set(stored))

	err := c.PostComment(context.Background(), "1", "hi")
	assert.ErrorIs(t, err, ErrNoTwitterToken)
	assert.Empty(t, *calls)

	require.NoError(t, c.SetTwitterToken(" tw "))
	require.NoError(t, c.PostComment(context.Background(), "1", "hi"))
	require.Len(t, *calls, 1)
	assert.Equal(t, "tw", (*calls)[0].Twitter)
	assert.Equal(t, map[string]string{"tweetId": "1", "comment": "hi"}, (*calls)[0].Body)
}

func TestRejectedSessionIsDropped(t *testing.T) {
	c, creds, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Session expired or invalid", "message": "Session expired or invalid"})
	})
	require.NoError(t, creds.Set(&Credentials{ServerURL: c.ServerURL(), Token: "old", Email: "a@b.c", TwitterToken: "tw"}))

	_, err := c.Session(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, apperr.HTTPStatus(err))

	stored, _ := creds.Get()
	assert.False(t, stored.LoggedIn())
	assert.Equal(t, "tw", stored.TwitterToken)
}

func TestMissingTwitterTokenKeepsSession(t *testing.T) {
	c, creds, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		msg := "Twitter access token not found. Please login again."
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": msg, "message": msg})
	})
	require.NoError(t, creds.Set(&Credentials{ServerURL: c.ServerURL(), Token: "sess", TwitterToken: "stale"}))

	err := c.PostComment(context.Background(), "1", "hi")
	require.Error(t, err)

	stored, _ := creds.Get()
	assert.True(t, stored.LoggedIn())
}

func TestLogoutForgetsSessionEvenOnFailure(t *testing.T) {
	c, creds, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	})
	require.NoError(t, creds.Set(&Credentials{ServerURL: c.ServerURL(), Token: "sess", Email: "a@b.c"}))

	err := c.Logout(context.Background())
	require.Error(t, err)
	require.Len(t, *calls, 1)
	assert.Equal(t, "Bearer sess", (*calls)[0].Auth)

	stored, _ := creds.Get()
	assert.False(t, stored.LoggedIn())

	assert.NoError(t, c.Logout(context.Background()))
}
