package models

import (
	"database/sql"
	"time"
)

// Post represents a published post. Engagement counters are maintained
// by the like/comment write paths and read by the explore ranking.
type Post struct {
	ID            string    `gorm:"type:uuid;primaryKey;column:id"`
	UserID        string    `gorm:"type:uuid;not null;index;column:user_id"`
	Caption       string    `gorm:"type:text;column:caption"`
	MediaURLs     string    `gorm:"type:text;column:media_urls"` // JSON-encoded array
	MediaType     string    `gorm:"type:varchar(16);column:media_type"`
	Location      string    `gorm:"type:varchar(255);column:location"`
	Hashtags      string    `gorm:"type:text;column:hashtags"` // JSON-encoded array
	LikesCount    int       `gorm:"not null;default:0;column:likes_count"`
	CommentsCount int       `gorm:"not null;default:0;column:comments_count"`
	IsArchived    bool      `gorm:"not null;default:false;column:is_archived"`
	IsHidden      bool      `gorm:"not null;default:false;column:is_hidden"`
	CreatedAt     time.Time `gorm:"not null;index;column:created_at"`

	// Relationships
	Author *User `gorm:"foreignKey:UserID;references:ID"`
}

// TableName specifies the table name for Post
func (Post) TableName() string {
	return "posts"
}

// Like represents a user liking a post.
type Like struct {
	UserID    string    `gorm:"type:uuid;primaryKey;column:user_id"`
	PostID    string    `gorm:"type:uuid;primaryKey;column:post_id"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for Like
func (Like) TableName() string {
	return "likes"
}

// Comment represents a comment on a post, optionally replying to
// another comment.
type Comment struct {
	ID        string         `gorm:"type:uuid;primaryKey;column:id"`
	PostID    string         `gorm:"type:uuid;not null;index;column:post_id"`
	UserID    string         `gorm:"type:uuid;not null;column:user_id"`
	ParentID  sql.NullString `gorm:"type:uuid;column:parent_id"`
	Content   string         `gorm:"type:text;not null;column:content"`
	CreatedAt time.Time      `gorm:"not null;column:created_at"`
}

// TableName specifies the table name for Comment
func (Comment) TableName() string {
	return "comments"
}
