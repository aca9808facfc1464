package models

import "time"

// UserSession is one logged-in client. Only the SHA-256 of the bearer token is stored.
type UserSession struct {
	Base
	UserID    string    `json:"user_id"    gorm:"type:char(36);index;not null"`
	TokenHash string    `json:"-"          gorm:"type:char(64);uniqueIndex;not null"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index;not null"`
	IsActive  bool      `json:"is_active"  gorm:"not null"`
	IP        string    `json:"ip_address"`
	UA        string    `json:"user_agent" gorm:"type:text"`
}

func (UserSession) TableName() string { return "user_sessions" }
