// Package session issues, validates and revokes bearer tokens. Only the
// SHA-256 of a token is ever handed to the credential store.
package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/yapper-space/core/internal/models"
	"github.com/yapper-space/core/internal/pkg/apperr"
	"github.com/yapper-space/core/internal/pkg/metrics"
	"github.com/yapper-space/core/internal/store"
	"go.uber.org/zap"
)

const (
	DefaultTTL        = 24 * time.Hour
	TokenBytes        = 32
	MinPasswordLength = 6
)

var (
	ErrCredentialsRequired = apperr.Validation("Email and password are required")
	ErrPasswordTooShort    = apperr.Validation(fmt.Sprintf("Password must be at least %d characters long", MinPasswordLength))
	ErrInvalidEmail        = apperr.Validation("Invalid email format")
	ErrEmailExists         = apperr.Conflict("Email already exists")
	ErrUsernameExists      = apperr.Conflict("Username already exists")

	ErrInvalidCredentials = apperr.Auth("Invalid email or password")
	ErrAccountDeactivated = apperr.Auth("Account is deactivated")
	ErrAccountUnverified  = apperr.Auth("Account not verified. Please verify your email first.")
	ErrTokenRequired      = apperr.Auth("Token is required")
	ErrSessionInvalid     = apperr.Auth("Session expired or invalid")
)

// Meta describes the client a request came from. It is recorded on sessions
// and in activity metadata.
type Meta struct {
	UserAgent string
	IP        string
}

// Identity is the authenticated principal behind a valid token.
type Identity struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	FullName  string    `json:"fullName,omitempty"`
	Username  *string   `json:"username,omitempty"`
	SessionID string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Issued is returned once at login. Token is not retrievable afterwards.
type Issued struct {
	Token     string
	User      store.User
	ExpiresAt time.Time
}

// RegisterInput is a sign-up request.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Username string
}

type Manager struct {
	store      store.CredentialStore
	ttl        time.Duration
	now        func() time.Time
	random     io.Reader
	autoVerify bool
	logger     *zap.Logger
}

type Option func(*Manager)

func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithRandom replaces crypto/rand as the token entropy source.
func WithRandom(r io.Reader) Option {
	return func(m *Manager) { m.random = r }
}

// WithAutoVerify marks accounts verified when they register.
func WithAutoVerify(v bool) Option {
	return func(m *Manager) { m.autoVerify = v }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

func NewManager(s store.CredentialStore, opts ...Option) *Manager {
	m := &Manager{
		store:  s,
		ttl:    DefaultTTL,
		now:    time.Now,
		random: rand.Reader,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the lifetime given to new sessions.
func (m *Manager) TTL() time.Duration { return m.ttl }

// HashToken returns the lowercase hex SHA-256 of the token's UTF-8 bytes.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateToken reads TokenBytes from r and returns them hex encoded.
func GenerateToken(r io.Reader) (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Register validates the input before any store call and creates the account.
func (m *Manager) Register(ctx context.Context, in RegisterInput, meta Meta) (*store.User, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return nil, ErrCredentialsRequired
	}
	if utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return nil, ErrPasswordTooShort
	}
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}

	var username *string
	if u := strings.TrimSpace(in.Username); u != "" {
		username = &u
	}

	user, err := m.store.CreateUser(ctx, store.NewUser{
		Email:    email,
		Password: in.Password,
		FullName: strings.TrimSpace(in.FullName),
		Username: username,
		Verified: m.autoVerify,
	})
	switch {
	case store.IsKind(err, store.KindEmailExists):
		return nil, ErrEmailExists
	case store.IsKind(err, store.KindUsernameExists):
		return nil, ErrUsernameExists
	case err != nil:
		m.logger.Error("create user failed", zap.Error(err))
		return nil, apperr.Internal(err)
	}

	m.LogActivity(ctx, user.ID, models.ActivityRegister, "New user registration", meta, map[string]interface{}{
		"method":        "extension_register",
		"email":         user.Email,
		"has_username":  username != nil,
		"has_full_name": strings.TrimSpace(in.FullName) != "",
	})
	return user, nil
}

// Issue checks the credentials and opens a new session.
func (m *Manager) Issue(ctx context.Context, email, password string, meta Meta) (*Issued, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrCredentialsRequired
	}

	user, err := m.store.AuthenticateUser(ctx, email, password)
	if store.IsKind(err, store.KindNotFound) {
		metrics.AuthFailures.WithLabelValues("invalid_credentials").Inc()
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		m.logger.Error("authenticate user failed", zap.Error(err))
		return nil, apperr.Internal(err)
	}
	if !user.IsActive {
		metrics.AuthFailures.WithLabelValues("deactivated").Inc()
		return nil, ErrAccountDeactivated
	}
	if !user.IsVerified {
		metrics.AuthFailures.WithLabelValues("unverified").Inc()
		return nil, ErrAccountUnverified
	}

	token, err := GenerateToken(m.random)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	expiresAt := m.now().Add(m.ttl)

	_, err = m.store.CreateSession(ctx, store.Session{
		UserID:    user.ID,
		TokenHash: HashToken(token),
		ExpiresAt: expiresAt,
		IsActive:  true,
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
	})
	if err != nil {
		m.logger.Error("create session failed", zap.String("user_id", user.ID), zap.Error(err))
		return nil, apperr.Internal(err)
	}
	metrics.SessionsIssued.Inc()

	m.LogActivity(ctx, user.ID, models.ActivityLogin, "User logged in via extension", meta, map[string]interface{}{
		"method": "extension_login",
	})
	return &Issued{Token: token, User: *user, ExpiresAt: expiresAt}, nil
}

// Validate resolves a raw token to its identity. Every rejection other than
// an empty token is the same ErrSessionInvalid; the reason is only logged.
func (m *Manager) Validate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrTokenRequired
	}

	sess, user, err := m.store.LookupSession(ctx, HashToken(token))
	if store.IsKind(err, store.KindNotFound) {
		return nil, m.reject("not_found")
	}
	if err != nil {
		m.logger.Error("lookup session failed", zap.Error(err))
		return nil, apperr.Internal(err)
	}
	switch {
	case !sess.IsActive:
		return nil, m.reject("revoked")
	case !sess.ExpiresAt.IsZero() && !m.now().Before(sess.ExpiresAt):
		return nil, m.reject("expired")
	case !user.IsActive:
		return nil, m.reject("user_deactivated")
	}

	return &Identity{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		FullName:  user.FullName,
		Username:  user.Username,
		SessionID: sess.ID,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

func (m *Manager) reject(reason string) error {
	metrics.AuthFailures.WithLabelValues(reason).Inc()
	m.logger.Debug("session rejected", zap.String("reason", reason))
	return ErrSessionInvalid
}

// Revoke validates the token and then deactivates its session. Revoking an
// already revoked token fails validation.
func (m *Manager) Revoke(ctx context.Context, token string, meta Meta) error {
	id, err := m.Validate(ctx, token)
	if err != nil {
		return err
	}

	err = m.store.DeactivateSession(ctx, HashToken(token))
	if store.IsKind(err, store.KindNotFound) {
		return ErrSessionInvalid
	}
	if err != nil {
		m.logger.Error("deactivate session failed", zap.String("user_id", id.UserID), zap.Error(err))
		return apperr.Internal(err)
	}

	m.LogActivity(ctx, id.UserID, models.ActivityLogout, "User logged out via extension", meta, map[string]interface{}{
		"method": "extension_logout",
	})
	return nil
}

// LogActivity appends to the audit log. Failures are logged, never returned:
// the action being audited has already happened.
func (m *Manager) LogActivity(ctx context.Context, userID, activityType, description string, meta Meta, extra map[string]interface{}) {
	md := map[string]interface{}{
		"user_agent": meta.UserAgent,
		"ip_address": meta.IP,
	}
	for k, v := range extra {
		md[k] = v
	}
	err := m.store.LogActivity(ctx, store.Activity{
		UserID:      userID,
		Type:        activityType,
		Description: description,
		Metadata:    md,
	})
	if err != nil {
		m.logger.Warn("log activity failed",
			zap.String("user_id", userID),
			zap.String("type", activityType),
			zap.Error(err),
		)
	}
}
