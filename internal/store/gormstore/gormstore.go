// Package gormstore implements the credential store on MySQL through gorm.
package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yapper-space/core/internal/models"
	"github.com/yapper-space/core/internal/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type Store struct {
	db        *gorm.DB
	cost      int
	passwords *store.Passwords
	logger    *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithBcryptCost overrides the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(s *Store) { s.cost = cost }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

func New(db *gorm.DB, opts ...Option) *Store {
	s := &Store{db: db, cost: bcrypt.DefaultCost, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.passwords = store.NewPasswords(s.cost)
	return s
}

var _ store.CredentialStore = (*Store)(nil)

func toUser(m *models.UserModel) *store.User {
	return &store.User{
		ID:         m.ID,
		Email:      m.Email,
		Username:   m.Username,
		FullName:   m.FullName,
		Role:       m.Role,
		IsActive:   m.IsActive,
		IsVerified: m.IsVerified,
	}
}

func toSession(m *models.UserSession) *store.Session {
	return &store.Session{
		ID:        m.ID,
		UserID:    m.UserID,
		TokenHash: m.TokenHash,
		ExpiresAt: m.ExpiresAt,
		IsActive:  m.IsActive,
		UserAgent: m.UA,
		IP:        m.IP,
		CreatedAt: m.CreatedAt,
	}
}

func unavailable(op string, err error) error {
	return store.E(op, store.KindUnavailable, err)
}

func (s *Store) CreateUser(ctx context.Context, u store.NewUser) (*store.User, error) {
	const op = "create_user"

	hash, err := s.passwords.Hash(u.Password)
	if err != nil {
		return nil, unavailable(op, err)
	}

	user := &models.UserModel{
		Email:        strings.ToLower(strings.TrimSpace(u.Email)),
		Username:     u.Username,
		PasswordHash: string(hash),
		FullName:     u.FullName,
		Role:         "user",
		IsActive:     true,
		IsVerified:   u.Verified,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.UserModel{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
			return unavailable(op, err)
		}
		if count > 0 {
			return store.E(op, store.KindEmailExists, nil)
		}
		if user.Username != nil {
			if err := tx.Model(&models.UserModel{}).Where("username = ?", *user.Username).Count(&count).Error; err != nil {
				return unavailable(op, err)
			}
			if count > 0 {
				return store.E(op, store.KindUsernameExists, nil)
			}
		}
		if err := tx.Create(user).Error; err != nil {
			// A concurrent insert won the race between the checks and the insert.
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return store.E(op, store.KindEmailExists, err)
			}
			return unavailable(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toUser(user), nil
}

func (s *Store) AuthenticateUser(ctx context.Context, email, password string) (*store.User, error) {
	const op = "authenticate_user"

	var user models.UserModel
	err := s.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		s.passwords.Check(nil, password)
		return nil, store.E(op, store.KindNotFound, nil)
	}
	if err != nil {
		return nil, unavailable(op, err)
	}
	if !s.passwords.Check([]byte(user.PasswordHash), password) {
		return nil, store.E(op, store.KindNotFound, nil)
	}

	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_at", &now).Error; err != nil {
		s.logger.Warn("update last login failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	return toUser(&user), nil
}

func (s *Store) CreateSession(ctx context.Context, in store.Session) (*store.Session, error) {
	row := &models.UserSession{
		UserID:    in.UserID,
		TokenHash: in.TokenHash,
		ExpiresAt: in.ExpiresAt,
		IsActive:  in.IsActive,
		IP:        strings.TrimSpace(in.IP),
		UA:        strings.TrimSpace(in.UserAgent),
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, unavailable("create_session", err)
	}
	return toSession(row), nil
}

func (s *Store) LookupSession(ctx context.Context, tokenHash string) (*store.Session, *store.User, error) {
	const op = "validate_session"

	var row models.UserSession
	err := s.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, store.E(op, store.KindNotFound, nil)
	}
	if err != nil {
		return nil, nil, unavailable(op, err)
	}

	var user models.UserModel
	err = s.db.WithContext(ctx).Where("id = ?", row.UserID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, store.E(op, store.KindNotFound, nil)
	}
	if err != nil {
		return nil, nil, unavailable(op, err)
	}
	return toSession(&row), toUser(&user), nil
}

func (s *Store) DeactivateSession(ctx context.Context, tokenHash string) error {
	const op = "deactivate_session"

	res := s.db.WithContext(ctx).Model(&models.UserSession{}).
		Where("token_hash = ?", tokenHash).
		Update("is_active", false)
	if res.Error != nil {
		return unavailable(op, res.Error)
	}
	if res.RowsAffected == 0 {
		return store.E(op, store.KindNotFound, nil)
	}
	return nil
}

func (s *Store) LogActivity(ctx context.Context, a store.Activity) error {
	row := &models.UserActivity{
		UserID:      a.UserID,
		Type:        a.Type,
		Description: a.Description,
		Metadata:    a.Metadata,
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return unavailable("log_user_activity", err)
	}
	return nil
}
