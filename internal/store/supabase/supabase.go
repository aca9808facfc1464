// Package supabase implements the credential store on a Supabase project
// through PostgREST: the create_user, authenticate_user, create_session,
// validate_session and log_user_activity functions, plus a direct update of
// user_sessions for logout.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yapper-space/core/internal/pkg/upstream"
	"github.com/yapper-space/core/internal/store"
)

const uniqueViolation = "23505"

type Store struct {
	baseURL    string
	serviceKey string
	client     *upstream.Client
}

// New returns a store for the project at baseURL. client carries the timeout
// and retry policy.
func New(baseURL, serviceKey string, client *upstream.Client) *Store {
	return &Store{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		client:     client,
	}
}

var _ store.CredentialStore = (*Store)(nil)

// postgrestError is the error body PostgREST returns for failed calls.
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

// userRow is a user as the functions return it. The flags are optional:
// validate_session only returns rows of active users and may omit them.
type userRow struct {
	UserID     string  `json:"user_id"`
	Email      string  `json:"email"`
	Username   *string `json:"username"`
	FullName   *string `json:"full_name"`
	Role       string  `json:"role"`
	IsActive   *bool   `json:"is_active"`
	IsVerified *bool   `json:"is_verified"`
}

// user converts the row; absent flags take the value of filtered, which says
// whether the function already excluded inactive users.
func (r userRow) user(filtered bool) *store.User {
	u := &store.User{
		ID:         r.UserID,
		Email:      r.Email,
		Username:   r.Username,
		Role:       r.Role,
		IsActive:   flag(r.IsActive, filtered),
		IsVerified: flag(r.IsVerified, filtered),
	}
	if r.FullName != nil {
		u.FullName = *r.FullName
	}
	if u.Role == "" {
		u.Role = "user"
	}
	return u
}

// sessionRow is one row of validate_session: the session joined with its
// owner. The function only returns live sessions, so the session columns
// may be missing.
type sessionRow struct {
	userRow
	SessionID     string     `json:"session_id"`
	ExpiresAt     *time.Time `json:"expires_at"`
	SessionActive *bool      `json:"session_active"`
}

func flag(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func (s *Store) headers() http.Header {
	return http.Header{
		"apikey":        {s.serviceKey},
		"Authorization": {"Bearer " + s.serviceKey},
		"Accept":        {"application/json"},
	}
}

func (s *Store) rpc(ctx context.Context, fn string, args interface{}, idempotent bool, out interface{}) error {
	resp, err := s.client.Do(ctx, upstream.Request{
		Method:     http.MethodPost,
		URL:        s.baseURL + "/rest/v1/rpc/" + fn,
		Header:     s.headers(),
		JSON:       args,
		Idempotent: idempotent,
	})
	if err != nil {
		return classify(fn, err)
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return store.E(fn, store.KindUnavailable, err)
	}
	return nil
}

// classify turns an upstream failure into a tagged store error, reading the
// PostgREST error code rather than its message where one is available.
func classify(op string, err error) error {
	var se *upstream.StatusError
	if !errors.As(err, &se) {
		return store.E(op, store.KindUnavailable, err)
	}
	var pe postgrestError
	if json.Unmarshal(se.Body, &pe) != nil {
		return store.E(op, store.KindUnavailable, err)
	}
	detail := strings.ToLower(pe.Message + " " + pe.Details)
	// create_user raises "Email already exists" itself before the constraint fires.
	if pe.Code != uniqueViolation && !strings.Contains(detail, "already exists") {
		return store.E(op, store.KindUnavailable, err)
	}
	if strings.Contains(detail, "username") {
		return store.E(op, store.KindUsernameExists, err)
	}
	return store.E(op, store.KindEmailExists, err)
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (s *Store) CreateUser(ctx context.Context, u store.NewUser) (*store.User, error) {
	var username interface{}
	if u.Username != nil {
		username = *u.Username
	}
	args := map[string]interface{}{
		"p_email":     strings.ToLower(strings.TrimSpace(u.Email)),
		"p_password":  u.Password,
		"p_full_name": nullable(u.FullName),
		"p_username":  username,
	}
	// PostgREST picks the function by argument names; the four-argument form
	// is the one every deployment has.
	if u.Verified {
		args["p_is_verified"] = true
	}
	var id string
	err := s.rpc(ctx, "create_user", args, false, &id)
	if err != nil {
		return nil, err
	}
	return &store.User{
		ID:         id,
		Email:      strings.ToLower(strings.TrimSpace(u.Email)),
		Username:   u.Username,
		FullName:   u.FullName,
		Role:       "user",
		IsActive:   true,
		IsVerified: u.Verified,
	}, nil
}

func (s *Store) AuthenticateUser(ctx context.Context, email, password string) (*store.User, error) {
	var rows []userRow
	err := s.rpc(ctx, "authenticate_user", map[string]interface{}{
		"p_email":    strings.ToLower(strings.TrimSpace(email)),
		"p_password": password,
	}, true, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.E("authenticate_user", store.KindNotFound, nil)
	}
	return rows[0].user(false), nil
}

func (s *Store) CreateSession(ctx context.Context, in store.Session) (*store.Session, error) {
	var id string
	err := s.rpc(ctx, "create_session", map[string]interface{}{
		"p_user_id":    in.UserID,
		"p_token_hash": in.TokenHash,
		"p_expires_at": in.ExpiresAt.UTC().Format(time.RFC3339),
		"p_user_agent": nullable(in.UserAgent),
		"p_ip_address": nullable(in.IP),
	}, false, &id)
	if err != nil {
		return nil, err
	}
	out := in
	out.ID = id
	return &out, nil
}

func (s *Store) LookupSession(ctx context.Context, tokenHash string) (*store.Session, *store.User, error) {
	var rows []sessionRow
	err := s.rpc(ctx, "validate_session", map[string]interface{}{
		"p_token_hash": tokenHash,
	}, true, &rows)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, store.E("validate_session", store.KindNotFound, nil)
	}
	row := rows[0]
	sess := &store.Session{
		ID:        row.SessionID,
		UserID:    row.UserID,
		TokenHash: tokenHash,
		IsActive:  flag(row.SessionActive, true),
	}
	if row.ExpiresAt != nil {
		sess.ExpiresAt = *row.ExpiresAt
	}
	return sess, row.user(true), nil
}

func (s *Store) DeactivateSession(ctx context.Context, tokenHash string) error {
	const op = "deactivate_session"

	h := s.headers()
	h.Set("Prefer", "return=representation")
	resp, err := s.client.Do(ctx, upstream.Request{
		Method: http.MethodPatch,
		URL:    s.baseURL + "/rest/v1/user_sessions?token_hash=eq." + url.QueryEscape(tokenHash),
		Header: h,
		JSON:   map[string]bool{"is_active": false},
	})
	if err != nil {
		return classify(op, err)
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(resp.Body, &rows); err != nil {
		return store.E(op, store.KindUnavailable, err)
	}
	if len(rows) == 0 {
		return store.E(op, store.KindNotFound, nil)
	}
	return nil
}

func (s *Store) LogActivity(ctx context.Context, a store.Activity) error {
	return s.rpc(ctx, "log_user_activity", map[string]interface{}{
		"p_user_id":       a.UserID,
		"p_activity_type": a.Type,
		"p_description":   a.Description,
		"p_metadata":      a.Metadata,
	}, false, nil)
}
