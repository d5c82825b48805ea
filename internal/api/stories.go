package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// getStoryFeed serves the caller's story feed, grouped per owner.
func (r *Router) getStoryFeed(c *gin.Context) {
	viewerID := callerID(c)

	groups, err := r.stories.Feed(c.Request.Context(), viewerID)
	if err != nil {
		r.logger.Error("story feed failed",
			zap.String("viewer_id", viewerID), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// getUserStories serves one owner's unexpired stories.
func (r *Router) getUserStories(c *gin.Context) {
	ownerID := c.Param("id")

	stories, err := r.stories.ActiveByOwner(c.Request.Context(), ownerID)
	if err != nil {
		r.logger.Error("user stories failed",
			zap.String("owner_id", ownerID), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stories": stories})
}
