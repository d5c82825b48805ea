package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// getFeed serves the home feed. With a `cursor` parameter the read
// walks by created-at; without one it is offset paginated.
func (r *Router) getFeed(c *gin.Context) {
	viewerID := callerID(c)
	limit := queryInt(c, "limit", 10)

	if raw := c.Query("cursor"); raw != "" {
		cursor, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
			return
		}
		page, err := r.feeds.FeedBefore(c.Request.Context(), viewerID, cursor, limit)
		if err != nil {
			r.logger.Error("feed cursor read failed",
				zap.String("viewer_id", viewerID), zap.Error(err))
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
		return
	}

	page, err := r.feeds.Feed(c.Request.Context(), viewerID, queryInt(c, "page", 1), limit)
	if err != nil {
		r.logger.Error("feed read failed",
			zap.String("viewer_id", viewerID), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// getExplore serves the ranked explore page.
func (r *Router) getExplore(c *gin.Context) {
	viewerID := callerID(c)

	page, err := r.feeds.Explore(c.Request.Context(), viewerID, queryInt(c, "page", 1), queryInt(c, "limit", 10))
	if err != nil {
		r.logger.Error("explore read failed",
			zap.String("viewer_id", viewerID), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// getTrending serves the trending hashtag listing.
func (r *Router) getTrending(c *gin.Context) {
	tags, err := r.trends.Top(c.Request.Context(), queryInt(c, "limit", 10))
	if err != nil {
		r.logger.Error("trending read failed", zap.Error(err))
		respondError(c, err)
		return
	}

	type entry struct {
		Hashtag    string    `json:"hashtag"`
		PostsCount int64     `json:"postsCount"`
		TrendScore int64     `json:"trendScore"`
		LastUsedAt time.Time `json:"lastUsedAt"`
	}
	out := make([]entry, len(tags))
	for i, tag := range tags {
		out[i] = entry{
			Hashtag:    tag.Hashtag,
			PostsCount: tag.PostsCount,
			TrendScore: tag.TrendScore,
			LastUsedAt: tag.LastUsedAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{"hashtags": out})
}
