package realtime

import (
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gramnet/pulse/pkg/logging"
)

// presenceShards bounds lock contention: presence is touched by every
// connect, disconnect and user-targeted delivery.
const presenceShards = 32

// TransitionFunc observes online/offline transitions. It runs outside
// the shard lock so it may safely touch the store or cache.
type TransitionFunc func(userID string, online bool)

type presenceShard struct {
	mu sync.Mutex
	// conns maps userID -> set of connection IDs.
	conns map[string]map[string]struct{}
	// grace holds the pending offline timer per user, if any.
	grace map[string]*time.Timer
}

// Registry tracks which users are reachable over at least one live
// connection. A user is online while they hold a connection, and for a
// grace window after the last one closes, absorbing quick reconnects.
//
// Registry operations never fail the caller: presence is best-effort
// and must not block connection teardown or delivery.
type Registry struct {
	shards       [presenceShards]*presenceShard
	gracePeriod  time.Duration
	onTransition TransitionFunc
	logger       *zap.Logger
}

// NewRegistry creates a presence registry. onTransition may be nil.
func NewRegistry(gracePeriod time.Duration, onTransition TransitionFunc) *Registry {
	r := &Registry{
		gracePeriod:  gracePeriod,
		onTransition: onTransition,
		logger:       logging.WithComponent("presence"),
	}
	for i := range r.shards {
		r.shards[i] = &presenceShard{
			conns: make(map[string]map[string]struct{}),
			grace: make(map[string]*time.Timer),
		}
	}
	return r
}

func (r *Registry) shardFor(userID string) *presenceShard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return r.shards[h.Sum32()%presenceShards]
}

// Register adds a connection under a user. The first connection
// transitions the user online; a pending offline-grace timer for the
// user is cancelled.
func (r *Registry) Register(userID, connID string) {
	s := r.shardFor(userID)

	s.mu.Lock()
	t, graced := s.grace[userID]
	if graced {
		t.Stop()
		delete(s.grace, userID)
	}
	set, ok := s.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		s.conns[userID] = set
	}
	// A user re-registering inside the grace window never went offline,
	// so a cancelled timer means no transition.
	becameOnline := len(set) == 0 && !graced
	set[connID] = struct{}{}
	s.mu.Unlock()

	r.logger.Debug("connection registered",
		zap.String("user_id", userID),
		zap.String("conn_id", connID))

	if becameOnline && r.onTransition != nil {
		r.onTransition(userID, true)
	}
}

// Unregister removes a connection. When the user's last connection
// goes, a grace timer is started instead of marking them offline
// immediately; a re-register before it fires cancels it.
func (r *Registry) Unregister(userID, connID string) {
	s := r.shardFor(userID)

	s.mu.Lock()
	set, ok := s.conns[userID]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(set, connID)
	startGrace := len(set) == 0
	if startGrace {
		delete(s.conns, userID)
		if t, ok := s.grace[userID]; ok {
			t.Stop()
		}
		s.grace[userID] = time.AfterFunc(r.gracePeriod, func() {
			r.graceFired(userID)
		})
	}
	s.mu.Unlock()

	r.logger.Debug("connection unregistered",
		zap.String("user_id", userID),
		zap.String("conn_id", connID),
		zap.Bool("grace_started", startGrace))
}

// graceFired runs when a user's offline grace timer elapses. Finding
// the user back online is a race to ignore, not an error.
func (r *Registry) graceFired(userID string) {
	s := r.shardFor(userID)

	s.mu.Lock()
	if _, reconnected := s.conns[userID]; reconnected {
		delete(s.grace, userID)
		s.mu.Unlock()
		return
	}
	if _, pending := s.grace[userID]; !pending {
		// Cancelled after firing was scheduled; nothing to do.
		s.mu.Unlock()
		return
	}
	delete(s.grace, userID)
	s.mu.Unlock()

	r.logger.Debug("user offline after grace", zap.String("user_id", userID))

	if r.onTransition != nil {
		r.onTransition(userID, false)
	}
}

// IsOnline reports whether a user has a live connection or is inside
// the offline grace window.
func (r *Registry) IsOnline(userID string) bool {
	s := r.shardFor(userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[userID]; ok {
		return true
	}
	_, graced := s.grace[userID]
	return graced
}

// ConnectionsFor returns the IDs of a user's live connections.
func (r *Registry) ConnectionsFor(userID string) []string {
	s := r.shardFor(userID)

	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.conns[userID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// OnlineAmong reports presence for a set of users in one call.
func (r *Registry) OnlineAmong(userIDs []string) map[string]bool {
	out := make(map[string]bool, len(userIDs))
	for _, id := range userIDs {
		out[id] = r.IsOnline(id)
	}
	return out
}

// ConnectedUsers returns how many distinct users hold at least one
// live connection (grace-window users excluded).
func (r *Registry) ConnectedUsers() int {
	total := 0
	for _, s := range r.shards {
		s.mu.Lock()
		total += len(s.conns)
		s.mu.Unlock()
	}
	return total
}
