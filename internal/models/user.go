package models

import "time"

// UserModel is an extension account.
type UserModel struct {
	Base
	Email        string     `json:"email"         gorm:"uniqueIndex;not null"`
	Username     *string    `json:"username"      gorm:"uniqueIndex"`
	PasswordHash string     `json:"-"             gorm:"not null"`
	FullName     string     `json:"full_name"`
	Role         string     `json:"role"          gorm:"not null;default:user"`
	IsActive     bool       `json:"is_active"     gorm:"not null"`
	IsVerified   bool       `json:"is_verified"   gorm:"not null;default:false"`
	LastLoginAt  *time.Time `json:"last_login_at"`
}

func (UserModel) TableName() string { return "users" }

// TwitterAccount is the Twitter/X profile linked through the OAuth callback.
type TwitterAccount struct {
	Base
	TwitterID       string     `json:"twitter_id"        gorm:"uniqueIndex;not null"`
	Username        string     `json:"username"          gorm:"index"`
	Name            string     `json:"name"`
	ProfileImageURL string     `json:"profile_image_url" gorm:"type:text"`
	AccessToken     string     `json:"-"                 gorm:"type:text"`
	RefreshToken    string     `json:"-"                 gorm:"type:text"`
	ExpiresAt       *time.Time `json:"expires_at"`
}

func (TwitterAccount) TableName() string { return "twitter_accounts" }
