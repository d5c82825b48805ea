package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gramnet/pulse/internal/realtime"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by the edge.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsHandler upgrades the request and runs the connection's read loop
// until the peer goes away. Identity comes the same way the REST
// endpoints get it.
func (r *Router) wsHandler(c *gin.Context) {
	userID := c.GetHeader("X-User-ID")
	if userID == "" {
		userID = c.Query("user_id")
	}
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed",
			zap.String("user_id", userID), zap.Error(err))
		return
	}

	conn := realtime.NewWSConn(uuid.NewString(), userID, ws, realtime.WSConnConfig{
		SendBuffer:   r.cfg.SendBuffer,
		WriteTimeout: r.cfg.WriteTimeout,
		PingInterval: r.cfg.PingInterval,
	})
	r.rt.Register(conn)
	r.logger.Info("websocket connected",
		zap.String("conn_id", conn.ID()),
		zap.String("user_id", userID))

	go r.readLoop(conn, ws)
}

// readLoop feeds inbound frames to the dispatcher. It owns the
// unregister: whatever ends the loop, the connection leaves the router
// exactly once.
func (r *Router) readLoop(conn *realtime.WSConn, ws *websocket.Conn) {
	defer func() {
		r.rt.Unregister(conn.ID())
		r.logger.Info("websocket disconnected",
			zap.String("conn_id", conn.ID()),
			zap.String("user_id", conn.UserID()))
	}()

	if r.cfg.ReadLimit > 0 {
		ws.SetReadLimit(r.cfg.ReadLimit)
	}
	readWait := r.cfg.PingInterval + r.cfg.WriteTimeout
	ws.SetReadDeadline(time.Now().Add(readWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readWait))
	})

	ctx := context.Background()
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Debug("websocket read failed",
					zap.String("conn_id", conn.ID()), zap.Error(err))
			}
			return
		}
		ws.SetReadDeadline(time.Now().Add(readWait))
		r.dispatcher.Dispatch(ctx, conn, raw)
	}
}
