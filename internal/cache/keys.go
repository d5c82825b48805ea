package cache

import "fmt"

// Key builders. A key must incorporate every parameter that affects
// the cached result so distinct queries never share an entry.

// FeedKey is one offset-paginated feed page for a viewer.
func FeedKey(viewerID string, page, limit int) string {
	return fmt.Sprintf("feed:%s:%d:%d", viewerID, page, limit)
}

// FeedPattern matches every cached feed page of every viewer.
func FeedPattern() string {
	return "feed:*"
}

// ViewerFeedPattern matches every cached feed page of one viewer.
func ViewerFeedPattern(viewerID string) string {
	return fmt.Sprintf("feed:%s:*", viewerID)
}

// ExploreKey is one explore page. Explore results exclude the viewer's
// own and followed authors, so the viewer is part of the key.
func ExploreKey(viewerID string, page, limit int) string {
	return fmt.Sprintf("explore:%s:%d:%d", viewerID, page, limit)
}

// ExplorePattern matches the whole explore namespace.
func ExplorePattern() string {
	return "explore:*"
}

// ViewerExplorePattern matches every cached explore page of one viewer.
func ViewerExplorePattern(viewerID string) string {
	return fmt.Sprintf("explore:%s:*", viewerID)
}

// PostKey is a single cached post.
func PostKey(postID string) string {
	return fmt.Sprintf("post:%s", postID)
}

// UserPostsPattern matches every cached page of one author's posts.
func UserPostsPattern(userID string) string {
	return fmt.Sprintf("user_posts:%s*", userID)
}

// PostLikesPattern matches cached like lists of a post.
func PostLikesPattern(postID string) string {
	return fmt.Sprintf("post_likes:%s*", postID)
}

// UnreadCountKey is the per-user unread notification counter.
func UnreadCountKey(userID string) string {
	return fmt.Sprintf("unread_notifications:%s", userID)
}

// TrendingKey is the trending hashtag list for a given limit.
func TrendingKey(limit int) string {
	return fmt.Sprintf("trending_hashtags:%d", limit)
}

// TrendingPattern matches every cached trending listing.
func TrendingPattern() string {
	return "trending_hashtags:*"
}

// StoriesPattern matches every cached story feed page.
func StoriesPattern() string {
	return "stories:*"
}

// OnlineKey is the cached online flag for a user.
func OnlineKey(userID string) string {
	return fmt.Sprintf("user_online:%s", userID)
}
