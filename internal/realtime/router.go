package realtime

import (
	"errors"
	"hash/fnv"
	"sync"

	"go.uber.org/zap"

	"github.com/gramnet/pulse/pkg/logging"
)

const routerShards = 32

// connEntry pairs a connection with the channels it has joined, so
// teardown can leave them all without scanning every channel.
type connEntry struct {
	conn     Conn
	channels map[string]struct{}
}

type connShard struct {
	mu    sync.Mutex
	conns map[string]*connEntry
}

type channelShard struct {
	mu       sync.Mutex
	channels map[string]map[string]struct{} // channel -> set of connIDs
}

// Router delivers events to connections: a user's personal channel, a
// resource-scoped channel, or everyone. Delivery is best-effort;
// events for absent users are dropped, never queued for replay.
type Router struct {
	presence *Registry
	conns    [routerShards]*connShard
	channels [routerShards]*channelShard
	logger   *zap.Logger
}

// NewRouter creates a router on top of a presence registry.
func NewRouter(presence *Registry) *Router {
	r := &Router{
		presence: presence,
		logger:   logging.WithComponent("router"),
	}
	for i := range r.conns {
		r.conns[i] = &connShard{conns: make(map[string]*connEntry)}
	}
	for i := range r.channels {
		r.channels[i] = &channelShard{channels: make(map[string]map[string]struct{})}
	}
	return r
}

func shardIndex(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() % routerShards
}

func (r *Router) connShardFor(connID string) *connShard {
	return r.conns[shardIndex(connID)]
}

func (r *Router) channelShardFor(channel string) *channelShard {
	return r.channels[shardIndex(channel)]
}

// Register adds a connection, records presence, and joins the user's
// personal channel.
func (r *Router) Register(conn Conn) {
	s := r.connShardFor(conn.ID())
	s.mu.Lock()
	s.conns[conn.ID()] = &connEntry{
		conn:     conn,
		channels: make(map[string]struct{}),
	}
	s.mu.Unlock()

	r.presence.Register(conn.UserID(), conn.ID())
	r.JoinChannel(conn.ID(), UserChannel(conn.UserID()))
}

// Unregister removes a connection from presence and every channel it
// joined, and closes it.
func (r *Router) Unregister(connID string) {
	s := r.connShardFor(connID)
	s.mu.Lock()
	entry, ok := s.conns[connID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.conns, connID)
	joined := make([]string, 0, len(entry.channels))
	for ch := range entry.channels {
		joined = append(joined, ch)
	}
	s.mu.Unlock()

	for _, ch := range joined {
		r.removeFromChannel(connID, ch)
	}
	r.presence.Unregister(entry.conn.UserID(), connID)
	entry.conn.Close()
}

// JoinChannel subscribes a connection to a channel. Idempotent; a
// join for an unknown connection is ignored.
func (r *Router) JoinChannel(connID, channel string) {
	s := r.connShardFor(connID)
	s.mu.Lock()
	entry, ok := s.conns[connID]
	if !ok {
		s.mu.Unlock()
		return
	}
	entry.channels[channel] = struct{}{}
	s.mu.Unlock()

	cs := r.channelShardFor(channel)
	cs.mu.Lock()
	set, ok := cs.channels[channel]
	if !ok {
		set = make(map[string]struct{})
		cs.channels[channel] = set
	}
	set[connID] = struct{}{}
	cs.mu.Unlock()
}

// LeaveChannel unsubscribes a connection from a channel. Idempotent.
func (r *Router) LeaveChannel(connID, channel string) {
	s := r.connShardFor(connID)
	s.mu.Lock()
	if entry, ok := s.conns[connID]; ok {
		delete(entry.channels, channel)
	}
	s.mu.Unlock()

	r.removeFromChannel(connID, channel)
}

func (r *Router) removeFromChannel(connID, channel string) {
	cs := r.channelShardFor(channel)
	cs.mu.Lock()
	if set, ok := cs.channels[channel]; ok {
		delete(set, connID)
		if len(set) == 0 {
			delete(cs.channels, channel)
		}
	}
	cs.mu.Unlock()
}

// connByID returns the live connection or nil.
func (r *Router) connByID(connID string) Conn {
	s := r.connShardFor(connID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.conns[connID]; ok {
		return entry.conn
	}
	return nil
}

// EmitToUser pushes an event to every live connection of a user. A
// user with no connections is a no-op, not an error.
func (r *Router) EmitToUser(userID string, ev Event) {
	for _, connID := range r.presence.ConnectionsFor(userID) {
		r.deliver(connID, ev)
	}
}

// EmitToChannel pushes an event to every subscriber of a channel,
// optionally excluding the originating connection (typing indicators
// never echo to their sender).
func (r *Router) EmitToChannel(channel string, ev Event, excludeConnID string) {
	cs := r.channelShardFor(channel)
	cs.mu.Lock()
	ids := make([]string, 0, len(cs.channels[channel]))
	for connID := range cs.channels[channel] {
		if connID != excludeConnID {
			ids = append(ids, connID)
		}
	}
	cs.mu.Unlock()

	// Delivery happens after the membership snapshot; locks are never
	// held across sends.
	for _, connID := range ids {
		r.deliver(connID, ev)
	}
}

// Broadcast pushes an event to every known connection. Reserved for
// rare system-wide announcements.
func (r *Router) Broadcast(ev Event) {
	for _, s := range r.conns {
		s.mu.Lock()
		conns := make([]Conn, 0, len(s.conns))
		for _, entry := range s.conns {
			conns = append(conns, entry.conn)
		}
		s.mu.Unlock()

		for _, conn := range conns {
			r.send(conn, ev)
		}
	}
}

func (r *Router) deliver(connID string, ev Event) {
	conn := r.connByID(connID)
	if conn == nil {
		return
	}
	r.send(conn, ev)
}

// send pushes one event. A connection that cannot keep up is dropped
// here; the failure is logged and never reaches the business action
// that triggered the event.
func (r *Router) send(conn Conn, ev Event) {
	err := conn.Send(ev)
	if err == nil {
		return
	}
	if errors.Is(err, ErrSlowConsumer) {
		r.logger.Warn("dropping slow connection",
			zap.String("conn_id", conn.ID()),
			zap.String("user_id", conn.UserID()),
			zap.String("event", string(ev.Kind)))
		r.Unregister(conn.ID())
		return
	}
	r.logger.Debug("delivery failed",
		zap.String("conn_id", conn.ID()),
		zap.String("event", string(ev.Kind)),
		zap.Error(err))
}

// ConnectionCount returns the number of live connections.
func (r *Router) ConnectionCount() int {
	total := 0
	for _, s := range r.conns {
		s.mu.Lock()
		total += len(s.conns)
		s.mu.Unlock()
	}
	return total
}

// Presence exposes the registry for collaborators that only need
// online checks.
func (r *Router) Presence() *Registry {
	return r.presence
}
