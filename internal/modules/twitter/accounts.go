package twitter

import (
	"context"

	"github.com/yapper-space/core/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccountStore persists Twitter accounts linked through OAuth.
type AccountStore interface {
	UpsertAccount(ctx context.Context, a *models.TwitterAccount) error
}

type gormAccounts struct{ db *gorm.DB }

// NewAccountStore returns a gorm backed AccountStore.
func NewAccountStore(db *gorm.DB) AccountStore {
	return &gormAccounts{db: db}
}

func (s *gormAccounts) UpsertAccount(ctx context.Context, a *models.TwitterAccount) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "twitter_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "name", "profile_image_url",
			"access_token", "refresh_token", "expires_at", "updated_at",
		}),
	}).Create(a).Error
}
