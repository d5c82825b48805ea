package models

import (
	"time"
)

// Story represents ephemeral content. Visibility is governed purely by
// ExpiresAt: reads filter expired rows, physical deletion is deferred
// to the janitor.
type Story struct {
	ID              string    `gorm:"type:uuid;primaryKey;column:id"`
	UserID          string    `gorm:"type:uuid;not null;index;column:user_id"`
	MediaURL        string    `gorm:"type:text;not null;column:media_url"`
	MediaType       string    `gorm:"type:varchar(16);column:media_type"`
	TextOverlay     string    `gorm:"type:text;column:text_overlay"`
	BackgroundColor string    `gorm:"type:varchar(16);column:background_color"`
	ViewsCount      int       `gorm:"not null;default:0;column:views_count"`
	CreatedAt       time.Time `gorm:"not null;column:created_at"`
	ExpiresAt       time.Time `gorm:"not null;index;column:expires_at"`

	// Relationships
	Owner *User `gorm:"foreignKey:UserID;references:ID"`
}

// TableName specifies the table name for Story
func (Story) TableName() string {
	return "stories"
}

// Active reports whether the story is still visible at now.
func (s *Story) Active(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// StoryView records a viewer having seen a story.
type StoryView struct {
	StoryID  string    `gorm:"type:uuid;primaryKey;column:story_id"`
	ViewerID string    `gorm:"type:uuid;primaryKey;column:viewer_id"`
	ViewedAt time.Time `gorm:"not null;column:viewed_at"`
}

// TableName specifies the table name for StoryView
func (StoryView) TableName() string {
	return "story_views"
}
