// Package client is the typed HTTP client of the yapper API used by the CLI.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	engine "github.com/yapper-space/core/internal/autocomment"
	"github.com/yapper-space/core/internal/pkg/apperr"
	"github.com/yapper-space/core/internal/pkg/upstream"
)

const (
	DefaultServerURL = "http://localhost:3000"
	apiPrefix        = "/api/v1"
	twitterHeader    = "X-Twitter-Token"
)

var (
	ErrNotLoggedIn       = apperr.Auth("Not logged in. Run `yapper login` first.")
	ErrNoTwitterToken    = apperr.Auth("No Twitter token stored. Run `yapper twitter-token <token>` first.")
	errMalformedResponse = errors.New("malformed server response")
)

// Messages the server uses when it rejects the session itself. Any other 401,
// such as a missing Twitter token, leaves the stored session alone.
var sessionRejected = map[string]bool{
	"Authentication required":    true,
	"Token is required":          true,
	"Session expired or invalid": true,
}

type Tweet struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Handle    string `json:"handle"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Likes     int    `json:"likes"`
	Retweets  int    `json:"retweets"`
	Replies   int    `json:"replies"`
	URL       string `json:"url"`
}

type Identity struct {
	UserID   string  `json:"userId"`
	Email    string  `json:"email"`
	Role     string  `json:"role"`
	FullName string  `json:"fullName,omitempty"`
	Username *string `json:"username,omitempty"`
}

type LoginResult struct {
	Token          string  `json:"token"`
	UserID         string  `json:"userId"`
	Email          string  `json:"email"`
	FullName       string  `json:"fullName"`
	Username       *string `json:"username"`
	Role           string  `json:"role"`
	ExpiresInHours int     `json:"expiresInHours"`
}

type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName,omitempty"`
	Username string `json:"username,omitempty"`
}

// Client calls the API with the credentials held by a CredentialProvider.
// It implements the orchestrator's Generator and Poster.
type Client struct {
	api   *upstream.Client
	creds CredentialProvider
}

func New(api *upstream.Client, creds CredentialProvider) *Client {
	return &Client{api: api, creds: creds}
}

// ServerURL is the stored server address or DefaultServerURL.
func (c *Client) ServerURL() string {
	creds, err := c.creds.Get()
	if err != nil || creds.ServerURL == "" {
		return DefaultServerURL
	}
	return strings.TrimRight(creds.ServerURL, "/")
}

func (c *Client) Register(ctx context.Context, in RegisterInput) (string, error) {
	var out struct {
		UserID string `json:"userId"`
	}
	if err := c.call(ctx, http.MethodPost, "/auth/register", in, &out, false); err != nil {
		return "", err
	}
	return out.UserID, nil
}

// Login issues a session and stores its token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	var out LoginResult
	body := map[string]string{"email": email, "password": password}
	if err := c.call(ctx, http.MethodPost, "/auth/login", body, &out, false); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, apperr.Upstream(http.StatusBadGateway, "Server returned no session token", errMalformedResponse)
	}

	creds, err := c.creds.Get()
	if err != nil {
		return nil, err
	}
	creds.Token = out.Token
	creds.Email = out.Email
	if err := c.creds.Set(creds); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes the session on the server and forgets it locally. The
// local copy is dropped even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	err := c.call(ctx, http.MethodPost, "/auth/logout", nil, nil, true)
	if dropErr := c.dropSession(); dropErr != nil {
		return dropErr
	}
	if errors.Is(err, ErrNotLoggedIn) {
		return nil
	}
	return err
}

func (c *Client) Session(ctx context.Context) (*Identity, error) {
	var out Identity
	if err := c.call(ctx, http.MethodGet, "/auth/session", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]Tweet, error) {
	q := url.Values{"query": {query}}
	if maxResults > 0 {
		q.Set("max_results", strconv.Itoa(maxResults))
	}
	var out struct {
		Data []Tweet `json:"data"`
	}
	if err := c.call(ctx, http.MethodGet, "/twitter/search?"+q.Encode(), nil, &out, true); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *Client) GenerateTweets(ctx context.Context, prompt string) (string, error) {
	var out struct {
		Tweet string `json:"tweet"`
	}
	if err := c.call(ctx, http.MethodPost, "/twitter/generate-tweet", map[string]string{"prompt": prompt}, &out, true); err != nil {
		return "", err
	}
	return out.Tweet, nil
}

func (c *Client) GenerateComment(ctx context.Context, content string, tone engine.Tone) (string, error) {
	var out struct {
		Comment string `json:"comment"`
	}
	body := map[string]string{"tweet": content, "tone": string(tone)}
	if err := c.call(ctx, http.MethodPost, "/ai/generate-comment", body, &out, true); err != nil {
		return "", err
	}
	return out.Comment, nil
}

func (c *Client) PostComment(ctx context.Context, tweetID, comment string) error {
	creds, err := c.creds.Get()
	if err != nil {
		return err
	}
	if creds.TwitterToken == "" {
		return ErrNoTwitterToken
	}
	body := map[string]string{"tweetId": tweetID, "comment": comment}
	return c.call(ctx, http.MethodPost, "/twitter/post-comment", body, nil, true)
}

// SetTwitterToken stores the Twitter user token sent with posting calls.
func (c *Client) SetTwitterToken(token string) error {
	creds, err := c.creds.Get()
	if err != nil {
		return err
	}
	creds.TwitterToken = strings.TrimSpace(token)
	return c.creds.Set(creds)
}

func (c *Client) dropSession() error {
	creds, err := c.creds.Get()
	if err != nil {
		return err
	}
	if !creds.LoggedIn() {
		return nil
	}
	creds.Token = ""
	creds.Email = ""
	return c.creds.Set(creds)
}

func (c *Client) call(ctx context.Context, method, path string, body, out interface{}, authed bool) error {
	creds, err := c.creds.Get()
	if err != nil {
		return err
	}
	header := http.Header{}
	if authed {
		if !creds.LoggedIn() {
			return ErrNotLoggedIn
		}
		header.Set("Authorization", "Bearer "+creds.Token)
		if creds.TwitterToken != "" {
			header.Set(twitterHeader, creds.TwitterToken)
		}
	}

	base := DefaultServerURL
	if creds.ServerURL != "" {
		base = strings.TrimRight(creds.ServerURL, "/")
	}
	req := upstream.Request{
		Method:     method,
		URL:        base + apiPrefix + path,
		Header:     header,
		JSON:       body,
		Idempotent: method == http.MethodGet,
	}
	err = c.api.JSON(ctx, req, out)
	if err == nil {
		return nil
	}

	err = serverError(err)
	if authed && apperr.HTTPStatus(err) == http.StatusUnauthorized && sessionRejected[apperr.PublicMessage(err)] {
		_ = c.dropSession()
	}
	return err
}

// serverError turns an upstream status error into the kind the server
// answered with, carrying the server's own message.
func serverError(err error) error {
	var se *upstream.StatusError
	if !errors.As(err, &se) {
		return err
	}
	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(se.Body, &envelope)
	msg := envelope.Message
	if msg == "" {
		msg = envelope.Error
	}
	if msg == "" {
		msg = http.StatusText(se.Status)
	}

	switch se.Status {
	case http.StatusBadRequest:
		return apperr.Validation(msg)
	case http.StatusUnauthorized:
		return apperr.Auth(msg)
	case http.StatusNotFound:
		return apperr.NotFound(msg)
	case http.StatusConflict:
		return apperr.Conflict(msg)
	default:
		return apperr.Upstream(se.Status, msg, err)
	}
}
