// Package memory is an in-process CredentialStore for development and tests.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yapper-space/core/internal/store"
	"golang.org/x/crypto/bcrypt"
)

type userRow struct {
	user store.User
	hash []byte
}

// Store keeps everything in maps guarded by one mutex.
type Store struct {
	mu         sync.Mutex
	cost       int
	passwords  *store.Passwords
	users      map[string]*userRow // by id
	byEmail    map[string]string
	byUsername map[string]string
	sessions   map[string]*store.Session // by token hash
	activities []store.Activity
	now        func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Store) { s.cost = cost }
}

func New(opts ...Option) *Store {
	s := &Store{
		cost:       bcrypt.DefaultCost,
		users:      make(map[string]*userRow),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
		sessions:   make(map[string]*store.Session),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.passwords = store.NewPasswords(s.cost)
	return s
}

var _ store.CredentialStore = (*Store)(nil)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Store) CreateUser(_ context.Context, u store.NewUser) (*store.User, error) {
	hash, err := s.passwords.Hash(u.Password)
	if err != nil {
		return nil, store.E("create_user", store.KindUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalizeEmail(u.Email)
	if _, ok := s.byEmail[email]; ok {
		return nil, store.E("create_user", store.KindEmailExists, nil)
	}
	if u.Username != nil {
		if _, ok := s.byUsername[*u.Username]; ok {
			return nil, store.E("create_user", store.KindUsernameExists, nil)
		}
	}

	row := &userRow{
		user: store.User{
			ID:         uuid.New().String(),
			Email:      email,
			Username:   u.Username,
			FullName:   u.FullName,
			Role:       "user",
			IsActive:   true,
			IsVerified: u.Verified,
		},
		hash: hash,
	}
	s.users[row.user.ID] = row
	s.byEmail[email] = row.user.ID
	if u.Username != nil {
		s.byUsername[*u.Username] = row.user.ID
	}
	out := row.user
	return &out, nil
}

func (s *Store) AuthenticateUser(_ context.Context, email, password string) (*store.User, error) {
	s.mu.Lock()
	id, ok := s.byEmail[normalizeEmail(email)]
	var row *userRow
	if ok {
		row = s.users[id]
	}
	s.mu.Unlock()

	var hash []byte
	if row != nil {
		hash = row.hash
	}
	if !s.passwords.Check(hash, password) {
		return nil, store.E("authenticate_user", store.KindNotFound, nil)
	}
	out := row.user
	return &out, nil
}

func (s *Store) CreateSession(_ context.Context, in store.Session) (*store.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[in.UserID]; !ok {
		return nil, store.E("create_session", store.KindNotFound, nil)
	}
	sess := in
	sess.ID = uuid.New().String()
	sess.CreatedAt = s.now()
	s.sessions[sess.TokenHash] = &sess
	out := sess
	return &out, nil
}

func (s *Store) LookupSession(_ context.Context, tokenHash string) (*store.Session, *store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[tokenHash]
	if !ok {
		return nil, nil, store.E("validate_session", store.KindNotFound, nil)
	}
	row, ok := s.users[sess.UserID]
	if !ok {
		return nil, nil, store.E("validate_session", store.KindNotFound, nil)
	}
	outSess, outUser := *sess, row.user
	return &outSess, &outUser, nil
}

func (s *Store) DeactivateSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[tokenHash]
	if !ok {
		return store.E("deactivate_session", store.KindNotFound, nil)
	}
	sess.IsActive = false
	return nil
}

func (s *Store) LogActivity(_ context.Context, a store.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, a)
	return nil
}

// SetUserState flips the active and verified flags of an account. Account
// moderation has no API surface; this exists for seeding and tests.
func (s *Store) SetUserState(userID string, active, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.users[userID]
	if !ok {
		return store.E("set_user_state", store.KindNotFound, nil)
	}
	row.user.IsActive = active
	row.user.IsVerified = verified
	return nil
}

// Activities returns a copy of the activity log.
func (s *Store) Activities() []store.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Activity, len(s.activities))
	copy(out, s.activities)
	return out
}
