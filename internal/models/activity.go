package models

// Activity types written by the API.
const (
	ActivityLogin           = "login"
	ActivityLogout          = "logout"
	ActivityRegister        = "register"
	ActivityGenerateComment = "generate_comment"
	ActivityAutoComment     = "auto_comment"
)

// UserActivity is an append-only audit record.
type UserActivity struct {
	Base
	UserID      string                 `json:"user_id"       gorm:"type:char(36);index;not null"`
	Type        string                 `json:"activity_type" gorm:"column:activity_type;index;not null"`
	Description string                 `json:"description"   gorm:"type:text"`
	Metadata    map[string]interface{} `json:"metadata"      gorm:"type:longtext;serializer:json"`
}

func (UserActivity) TableName() string { return "user_activities" }
