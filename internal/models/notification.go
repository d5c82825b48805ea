package models

import (
	"database/sql"
	"time"
)

// Notification represents a durable notification row. SenderID is null
// for system notifications. Recipient == sender is not rejected here;
// callers filter self-notification before writing.
type Notification struct {
	ID          int64          `gorm:"primaryKey;autoIncrement;column:id"`
	RecipientID string         `gorm:"type:uuid;not null;index:idx_notifications_recipient_created;column:recipient_id"`
	SenderID    sql.NullString `gorm:"type:uuid;column:sender_id"`
	Type        string         `gorm:"type:varchar(20);not null;column:type"`
	Title       string         `gorm:"type:varchar(100);not null;column:title"`
	Message     string         `gorm:"type:text;column:message"`
	PostID      sql.NullString `gorm:"type:uuid;column:post_id"`
	CommentID   sql.NullString `gorm:"type:uuid;column:comment_id"`
	StoryID     sql.NullString `gorm:"type:uuid;column:story_id"`
	IsRead      bool           `gorm:"not null;default:false;column:is_read"`
	ReadAt      sql.NullTime   `gorm:"column:read_at"`
	CreatedAt   time.Time      `gorm:"not null;index:idx_notifications_recipient_created,sort:desc;column:created_at"`

	// Relationships
	Sender *User `gorm:"foreignKey:SenderID;references:ID"`
}

// TableName specifies the table name for Notification
func (Notification) TableName() string {
	return "notifications"
}

// Notification type constants
const (
	NotifyTypeLike          = "like"
	NotifyTypeComment       = "comment"
	NotifyTypeFollow        = "follow"
	NotifyTypeFollowRequest = "follow_request"
	NotifyTypeMention       = "mention"
	NotifyTypeStory         = "story"
	NotifyTypeStoryView     = "story_view"
)

// ValidNotifyType reports whether t is a known notification type.
func ValidNotifyType(t string) bool {
	switch t {
	case NotifyTypeLike, NotifyTypeComment, NotifyTypeFollow,
		NotifyTypeFollowRequest, NotifyTypeMention,
		NotifyTypeStory, NotifyTypeStoryView:
		return true
	}
	return false
}
