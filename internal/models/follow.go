package models

import (
	"time"
)

// Follow represents a follow relationship. Follows of private accounts
// sit in pending until accepted; only accepted follows contribute to
// feed visibility.
type Follow struct {
	FollowerID  string    `gorm:"type:uuid;primaryKey;column:follower_id"`
	FollowingID string    `gorm:"type:uuid;primaryKey;column:following_id"`
	Status      string    `gorm:"type:varchar(16);not null;default:'accepted';column:status"`
	CreatedAt   time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for Follow
func (Follow) TableName() string {
	return "follows"
}

// Follow status constants
const (
	FollowStatusPending  = "pending"
	FollowStatusAccepted = "accepted"
)
