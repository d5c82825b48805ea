package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// listNotifications serves one page of the caller's notifications.
// `unread=true` restricts to unread ones.
func (r *Router) listNotifications(c *gin.Context) {
	userID := callerID(c)
	unreadOnly := c.Query("unread") == "true"

	notifs, page, err := r.notifs.List(c.Request.Context(), userID, unreadOnly,
		queryInt(c, "page", 1), queryInt(c, "limit", 20))
	if err != nil {
		r.logger.Error("notification list failed",
			zap.String("user_id", userID), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": notifs,
		"pagination":    page,
	})
}

// getUnreadCount serves the caller's unread counter.
func (r *Router) getUnreadCount(c *gin.Context) {
	userID := callerID(c)

	count, err := r.notifs.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		r.logger.Error("unread count failed",
			zap.String("user_id", userID), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unreadCount": count})
}

// markRead marks the given notification IDs read for the caller.
func (r *Router) markRead(c *gin.Context) {
	userID := callerID(c)

	var body struct {
		IDs []int64 `json:"ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "ids required"})
		return
	}

	updated, err := r.notifs.MarkRead(c.Request.Context(), userID, body.IDs)
	if err != nil {
		r.logger.Error("mark read failed",
			zap.String("user_id", userID), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// markAllRead marks every unread notification of the caller.
func (r *Router) markAllRead(c *gin.Context) {
	userID := callerID(c)

	updated, err := r.notifs.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		r.logger.Error("mark all read failed",
			zap.String("user_id", userID), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

// deleteNotification removes one notification owned by the caller.
func (r *Router) deleteNotification(c *gin.Context) {
	userID := callerID(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	deleted, err := r.notifs.Delete(c.Request.Context(), userID, id)
	if err != nil {
		r.logger.Error("notification delete failed",
			zap.String("user_id", userID), zap.Error(err))
		respondError(c, err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "notification not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// deleteReadNotifications clears every read notification of the caller.
func (r *Router) deleteReadNotifications(c *gin.Context) {
	userID := callerID(c)

	deleted, err := r.notifs.DeleteRead(c.Request.Context(), userID)
	if err != nil {
		r.logger.Error("read notification delete failed",
			zap.String("user_id", userID), zap.Error(err))
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
