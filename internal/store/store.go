// Package store defines the credential store used by the session manager:
// users, sessions keyed by token hash, and the activity log.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// User is the identity record as seen by the API. The password hash never
// leaves the store.
type User struct {
	ID         string  `json:"id"`
	Email      string  `json:"email"`
	Username   *string `json:"username,omitempty"`
	FullName   string  `json:"full_name,omitempty"`
	Role       string  `json:"role"`
	IsActive   bool    `json:"is_active"`
	IsVerified bool    `json:"is_verified"`
}

// NewUser is the input to CreateUser. Password is plain text; hashing is the
// store's job.
type NewUser struct {
	Email    string
	Password string
	FullName string
	Username *string
	Verified bool
}

// Session is a persisted login keyed by the SHA-256 of its bearer token.
// A zero ExpiresAt from LookupSession means the store enforced expiry itself.
type Session struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	IsActive  bool
	UserAgent string
	IP        string
	CreatedAt time.Time
}

// Activity is one audit log entry.
type Activity struct {
	UserID      string
	Type        string
	Description string
	Metadata    map[string]interface{}
}

// CredentialStore is implemented by the MySQL, Supabase and in-memory stores.
type CredentialStore interface {
	CreateUser(ctx context.Context, u NewUser) (*User, error)
	// AuthenticateUser returns KindNotFound both for an unknown email and for a
	// wrong password.
	AuthenticateUser(ctx context.Context, email, password string) (*User, error)
	CreateSession(ctx context.Context, s Session) (*Session, error)
	// LookupSession returns the session stored under tokenHash and its owner,
	// whatever its state. Validity is decided by the caller.
	LookupSession(ctx context.Context, tokenHash string) (*Session, *User, error)
	DeactivateSession(ctx context.Context, tokenHash string) error
	LogActivity(ctx context.Context, a Activity) error
}

// ErrorKind tags store failures so callers never match on message text.
type ErrorKind int

const (
	KindNotFound ErrorKind = iota + 1
	KindEmailExists
	KindUsernameExists
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindEmailExists:
		return "email exists"
	case KindUsernameExists:
		return "username exists"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Error is returned by every CredentialStore implementation.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("store %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a tagged store error.
func E(op string, kind ErrorKind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// IsKind reports whether err is a store error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
