package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yapper-space/core/internal/store"
	"golang.org/x/crypto/bcrypt"
)

func strPtr(s string) *string { return &s }

func TestCreateUserConflicts(t *testing.T) {
	ctx := context.Background()
	s := New(WithBcryptCost(bcrypt.MinCost))

	_, err := s.CreateUser(ctx, store.NewUser{Email: "a@b.com", Password: "secret1", Username: strPtr("alice")})
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, store.NewUser{Email: "A@B.com", Password: "secret1"})
	assert.True(t, store.IsKind(err, store.KindEmailExists))

	_, err = s.CreateUser(ctx, store.NewUser{Email: "c@d.com", Password: "secret1", Username: strPtr("alice")})
	assert.True(t, store.IsKind(err, store.KindUsernameExists))
}

func TestAuthenticateUser(t *testing.T) {
	ctx := context.Background()
	s := New(WithBcryptCost(bcrypt.MinCost))
	created, err := s.CreateUser(ctx, store.NewUser{Email: "a@b.com", Password: "correct", Verified: true})
	require.NoError(t, err)

	u, err := s.AuthenticateUser(ctx, "a@b.com", "correct")
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)
	assert.True(t, u.IsVerified)

	_, err = s.AuthenticateUser(ctx, "a@b.com", "wrong")
	assert.True(t, store.IsKind(err, store.KindNotFound))

	_, err = s.AuthenticateUser(ctx, "nobody@b.com", "correct")
	assert.True(t, store.IsKind(err, store.KindNotFound))
}

func TestUnknownEmailStillComparesPassword(t *testing.T) {
	ctx := context.Background()
	s := New(WithBcryptCost(bcrypt.MinCost))
	calls := 0
	s.passwords.Compare = func(hash, password []byte) error {
		calls++
		return bcrypt.CompareHashAndPassword(hash, password)
	}

	_, err := s.AuthenticateUser(ctx, "nobody@b.com", "correct")
	assert.True(t, store.IsKind(err, store.KindNotFound))
	assert.Equal(t, 1, calls)
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New(WithBcryptCost(bcrypt.MinCost))
	u, err := s.CreateUser(ctx, store.NewUser{Email: "a@b.com", Password: "correct"})
	require.NoError(t, err)

	exp := time.Now().Add(time.Hour)
	_, err = s.CreateSession(ctx, store.Session{UserID: u.ID, TokenHash: "h1", ExpiresAt: exp, IsActive: true})
	require.NoError(t, err)

	sess, owner, err := s.LookupSession(ctx, "h1")
	require.NoError(t, err)
	assert.True(t, sess.IsActive)
	assert.Equal(t, u.ID, owner.ID)

	require.NoError(t, s.DeactivateSession(ctx, "h1"))
	sess, _, err = s.LookupSession(ctx, "h1")
	require.NoError(t, err)
	assert.False(t, sess.IsActive)

	_, _, err = s.LookupSession(ctx, "missing")
	assert.True(t, store.IsKind(err, store.KindNotFound))
	assert.True(t, store.IsKind(s.DeactivateSession(ctx, "missing"), store.KindNotFound))
}

func TestLogActivity(t *testing.T) {
	s := New()
	require.NoError(t, s.LogActivity(context.Background(), store.Activity{UserID: "u", Type: "login"}))
	require.Len(t, s.Activities(), 1)
	assert.Equal(t, "login", s.Activities()[0].Type)
}
