package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gramnet/pulse/internal/feed"
	"github.com/gramnet/pulse/internal/notify"
	"github.com/gramnet/pulse/internal/realtime"
	"github.com/gramnet/pulse/internal/stories"
	"github.com/gramnet/pulse/internal/trending"
	"github.com/gramnet/pulse/pkg/config"
	"github.com/gramnet/pulse/pkg/logging"
)

// Router sets up API routes
type Router struct {
	rt         *realtime.Router
	dispatcher *realtime.Dispatcher
	feeds      *feed.Service
	notifs     *notify.Service
	trends     *trending.Service
	stories    *stories.Service
	cfg        *config.RealtimeConfig
	logger     *zap.Logger
}

// NewRouter creates a new API router
func NewRouter(
	rt *realtime.Router,
	dispatcher *realtime.Dispatcher,
	feeds *feed.Service,
	notifs *notify.Service,
	trends *trending.Service,
	storySvc *stories.Service,
	cfg *config.RealtimeConfig,
) *Router {
	return &Router{
		rt:         rt,
		dispatcher: dispatcher,
		feeds:      feeds,
		notifs:     notifs,
		trends:     trends,
		stories:    storySvc,
		cfg:        cfg,
		logger:     logging.WithComponent("api-router"),
	}
}

// SetupRoutes sets up all API routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Health check endpoints
	engine.GET("/health", r.healthHandler)
	engine.GET("/.well-known/healthcheck.json", r.healthHandler)

	// WebSocket endpoint
	engine.GET("/ws", r.wsHandler)

	api := engine.Group("/api", requireIdentity())
	{
		api.GET("/feed", r.getFeed)
		api.GET("/explore", r.getExplore)
		api.GET("/trending", r.getTrending)

		api.GET("/notifications", r.listNotifications)
		api.GET("/notifications/unread-count", r.getUnreadCount)
		api.PUT("/notifications/mark-read", r.markRead)
		api.PUT("/notifications/mark-all-read", r.markAllRead)
		api.DELETE("/notifications/read", r.deleteReadNotifications)
		api.DELETE("/notifications/:id", r.deleteNotification)

		api.GET("/stories", r.getStoryFeed)
		api.GET("/users/:id/stories", r.getUserStories)
	}
}

// healthHandler handles health check requests
func (r *Router) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "OK",
		"service":     "pulse",
		"connections": r.rt.ConnectionCount(),
	})
}

// identityKey is the gin context key carrying the caller's user ID.
const identityKey = "userID"

// requireIdentity resolves the caller's identity. Authentication is
// owned by the edge in front of this service; here the verified user
// ID arrives as a header, with a query fallback for tooling.
func requireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader("X-User-ID")
		if userID == "" {
			userID = c.Query("user_id")
		}
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}
		c.Set(identityKey, userID)
		c.Next()
	}
}

func callerID(c *gin.Context) string {
	return c.GetString(identityKey)
}
