package gormstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yapper-space/core/internal/database"
	"github.com/yapper-space/core/internal/models"
	"github.com/yapper-space/core/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "yapper.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return New(db, WithBcryptCost(bcrypt.MinCost)), db
}

func strPtr(s string) *string { return &s }

func TestCreateUser(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	u, err := s.CreateUser(ctx, store.NewUser{Email: " A@B.com ", Password: "secret1", FullName: "Alice", Username: strPtr("alice")})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "a@b.com", u.Email)
	assert.Equal(t, "user", u.Role)
	assert.True(t, u.IsActive)
	assert.False(t, u.IsVerified)

	_, err = s.CreateUser(ctx, store.NewUser{Email: "a@b.com", Password: "secret1"})
	assert.True(t, store.IsKind(err, store.KindEmailExists), "got %v", err)

	_, err = s.CreateUser(ctx, store.NewUser{Email: "c@d.com", Password: "secret1", Username: strPtr("alice")})
	assert.True(t, store.IsKind(err, store.KindUsernameExists), "got %v", err)

	// Several accounts without a username must coexist.
	_, err = s.CreateUser(ctx, store.NewUser{Email: "e@f.com", Password: "secret1"})
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, store.NewUser{Email: "g@h.com", Password: "secret1"})
	require.NoError(t, err)
}

func TestAuthenticateUser(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	created, err := s.CreateUser(ctx, store.NewUser{Email: "a@b.com", Password: "correct", Verified: true})
	require.NoError(t, err)

	u, err := s.AuthenticateUser(ctx, "a@b.com", "correct")
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)

	_, errWrong := s.AuthenticateUser(ctx, "a@b.com", "nope")
	_, errUnknown := s.AuthenticateUser(ctx, "x@b.com", "correct")
	assert.True(t, store.IsKind(errWrong, store.KindNotFound))
	assert.True(t, store.IsKind(errUnknown, store.KindNotFound))
}

func TestUnknownEmailStillComparesPassword(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)
	_, err := s.CreateUser(ctx, store.NewUser{Email: "a@b.com", Password: "correct", Verified: true})
	require.NoError(t, err)

	var compared [][]byte
	s.passwords.Compare = func(hash, password []byte) error {
		compared = append(compared, hash)
		return bcrypt.CompareHashAndPassword(hash, password)
	}

	_, err = s.AuthenticateUser(ctx, "x@b.com", "correct")
	assert.True(t, store.IsKind(err, store.KindNotFound))
	require.Len(t, compared, 1)
	cost, err := bcrypt.Cost(compared[0])
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)

	_, err = s.AuthenticateUser(ctx, "a@b.com", "nope")
	assert.True(t, store.IsKind(err, store.KindNotFound))
	assert.Len(t, compared, 2)
}

func TestLastLoginFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	_, db := newTestStore(t)
	core, logs := observer.New(zap.WarnLevel)
	s := New(db, WithBcryptCost(bcrypt.MinCost), WithLogger(zap.New(core)))
	created, err := s.CreateUser(ctx, store.NewUser{Email: "a@b.com", Password: "correct", Verified: true})
	require.NoError(t, err)

	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:fail_update", func(tx *gorm.DB) {
		_ = tx.AddError(errors.New("read-only replica"))
	}))

	u, err := s.AuthenticateUser(ctx, "a@b.com", "correct")
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)
	require.Equal(t, 1, logs.FilterMessage("update last login failed").Len())
	assert.Equal(t, created.ID, logs.All()[0].ContextMap()["user_id"])
}

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, db := newTestStore(t)
	u, err := s.CreateUser(ctx, store.NewUser{Email: "a@b.com", Password: "correct"})
	require.NoError(t, err)

	exp := time.Now().Add(24 * time.Hour).UTC().Truncate(time.Second)
	created, err := s.CreateSession(ctx, store.Session{
		UserID: u.ID, TokenHash: "abc", ExpiresAt: exp, IsActive: true, UserAgent: " ua ", IP: "1.2.3.4",
	})
	require.NoError(t, err)
	assert.Equal(t, "ua", created.UserAgent)

	sess, owner, err := s.LookupSession(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, sess.IsActive)
	assert.True(t, exp.Equal(sess.ExpiresAt.UTC()))
	assert.Equal(t, u.Email, owner.Email)

	require.NoError(t, s.DeactivateSession(ctx, "abc"))
	sess, _, err = s.LookupSession(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, sess.IsActive)

	var count int64
	require.NoError(t, db.Model(&models.UserSession{}).Where("token_hash = ?", "abc").Count(&count).Error)
	assert.EqualValues(t, 1, count, "revocation is a soft delete")

	_, _, err = s.LookupSession(ctx, "missing")
	assert.True(t, store.IsKind(err, store.KindNotFound))
	assert.True(t, store.IsKind(s.DeactivateSession(ctx, "missing"), store.KindNotFound))
}

func TestLogActivity(t *testing.T) {
	ctx := context.Background()
	s, db := newTestStore(t)

	require.NoError(t, s.LogActivity(ctx, store.Activity{
		UserID:      "8d3c1f3e-0000-0000-0000-000000000000",
		Type:        models.ActivityLogin,
		Description: "User logged in via extension",
		Metadata:    map[string]interface{}{"method": "extension_login"},
	}))

	var row models.UserActivity
	require.NoError(t, db.First(&row).Error)
	assert.Equal(t, models.ActivityLogin, row.Type)
	assert.Equal(t, "extension_login", row.Metadata["method"])
}
