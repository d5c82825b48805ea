package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gramnet/pulse/pkg/logging"
)

var (
	// ErrSlowConsumer is returned when a connection's outbound queue is
	// full. The router drops such connections rather than letting them
	// backpressure delivery to everyone else.
	ErrSlowConsumer = errors.New("connection cannot keep up with outbound events")

	// ErrConnClosed is returned when sending on a closed connection.
	ErrConnClosed = errors.New("connection is closed")
)

// Conn is one live transport session belonging to exactly one
// authenticated user. Send must never block the caller.
type Conn interface {
	ID() string
	UserID() string
	Send(Event) error
	Close() error
}

// WSConn is the gorilla/websocket-backed Conn. All writes go through a
// single pump goroutine draining a bounded queue, which gives
// per-connection delivery ordering for free.
type WSConn struct {
	id        string
	userID    string
	ws        *websocket.Conn
	out       chan Event
	done      chan struct{}
	closeOnce sync.Once

	writeTimeout time.Duration
	pingInterval time.Duration
	logger       *zap.Logger
	createdAt    time.Time
}

// WSConnConfig bundles transport tuning for new connections.
type WSConnConfig struct {
	SendBuffer   int
	WriteTimeout time.Duration
	PingInterval time.Duration
}

// NewWSConn wraps an upgraded websocket and starts its write pump.
func NewWSConn(id, userID string, ws *websocket.Conn, cfg WSConnConfig) *WSConn {
	c := &WSConn{
		id:           id,
		userID:       userID,
		ws:           ws,
		out:          make(chan Event, cfg.SendBuffer),
		done:         make(chan struct{}),
		writeTimeout: cfg.WriteTimeout,
		pingInterval: cfg.PingInterval,
		logger: logging.WithComponent("conn").With(
			zap.String("conn_id", id),
			zap.String("user_id", userID)),
		createdAt: time.Now().UTC(),
	}
	go c.writePump()
	return c
}

// ID returns the connection identifier.
func (c *WSConn) ID() string { return c.id }

// UserID returns the owning user.
func (c *WSConn) UserID() string { return c.userID }

// CreatedAt returns when the connection was accepted.
func (c *WSConn) CreatedAt() time.Time { return c.createdAt }

// Send enqueues an event for delivery. It never blocks: a full queue
// means the peer is too slow and the connection should be dropped.
func (c *WSConn) Send(ev Event) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.out <- ev:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSlowConsumer
	}
}

// Close shuts the connection down; safe to call more than once.
func (c *WSConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

// writePump is the single writer for the socket. Ordering between
// events enqueued for this connection is preserved here.
func (c *WSConn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case ev := <-c.out:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteJSON(ev); err != nil {
				c.logger.Debug("write failed, closing connection", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
