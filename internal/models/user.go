package models

import (
	"database/sql"
	"time"
)

// User represents an account. Account lifecycle (signup, password,
// profile edits) is owned by the hosting application; this core only
// reads users to join author data into feeds and notifications.
type User struct {
	ID           string       `gorm:"type:uuid;primaryKey;column:id"`
	Username     string       `gorm:"type:varchar(30);uniqueIndex;not null;column:username"`
	FullName     string       `gorm:"type:varchar(100);column:full_name"`
	AvatarURL    string       `gorm:"type:text;column:avatar_url"`
	IsVerified   bool         `gorm:"not null;default:false;column:is_verified"`
	IsPrivate    bool         `gorm:"not null;default:false;column:is_private"`
	IsActive     bool         `gorm:"not null;default:true;column:is_active"`
	LastActiveAt sql.NullTime `gorm:"column:last_active_at"`
	CreatedAt    time.Time    `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// UserSummary is the denormalized author shape embedded in feed items,
// notifications and live events.
type UserSummary struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	FullName   string `json:"fullName"`
	AvatarURL  string `json:"avatarUrl"`
	IsVerified bool   `json:"isVerified"`
}

// Summary returns the embeddable shape of a user.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:         u.ID,
		Username:   u.Username,
		FullName:   u.FullName,
		AvatarURL:  u.AvatarURL,
		IsVerified: u.IsVerified,
	}
}
