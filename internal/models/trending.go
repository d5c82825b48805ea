package models

import (
	"time"
)

// TrendingHashtag is a per-hashtag accumulator. The trend score only
// ever grows; staleness is filtered by the last-used recency window at
// read time, not by decaying the stored value.
type TrendingHashtag struct {
	Hashtag    string    `gorm:"type:varchar(100);primaryKey;column:hashtag"`
	PostsCount int64     `gorm:"not null;default:0;column:posts_count"`
	TrendScore int64     `gorm:"not null;default:0;column:trend_score"`
	LastUsedAt time.Time `gorm:"not null;index;column:last_used_at"`
}

// TableName specifies the table name for TrendingHashtag
func (TrendingHashtag) TableName() string {
	return "trending_hashtags"
}
