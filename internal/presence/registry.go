package presence

import (
	"sync"
	"time"

	"counsel-chat-be/internal/dto"
	"counsel-chat-be/internal/pkg/logger"
)

// Conn is a live, joined connection as seen by the registry.
// Push must not block; implementations queue the frame and return.
type Conn interface {
	ID() string
	Push(env dto.WsEnvelope) error
	Close()
}

// Change is emitted to listeners on every register and deregister. At is strictly
// increasing across the registry at microsecond precision, so sinks can drop any change
// that is not newer than what they hold.
type Change struct {
	UserID string    `json:"user_id"`
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
}

type Listener interface {
	OnPresenceChange(change Change)
}

type ListenerFunc func(change Change)

func (f ListenerFunc) OnPresenceChange(change Change) {
	f(change)
}

type entry struct {
	conn     Conn
	lastSeen time.Time
}

// Registry maps a user to its single active connection. It is the only writer of
// presence state; everything else reads through Lookup or listens for Changes.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	// notifyMu is taken before mu is released so broadcasts leave in mutation order.
	notifyMu  sync.Mutex
	listeners []Listener

	logger logger.ILogger
	now    func() time.Time

	// guarded by mu
	lastStamp time.Time
}

func NewRegistry(log logger.ILogger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		logger:  log,
		now:     time.Now,
	}
}

// AddListener must be called before the registry is used.
func (r *Registry) AddListener(l Listener) {
	r.listeners = append(r.listeners, l)
}

// Register binds conn to userID and returns the handle it replaced, if any. The caller
// owns closing the previous handle. Registering the same handle again only refreshes
// lastSeen.
func (r *Registry) Register(userID string, conn Conn) Conn {
	now := r.now()

	r.mu.Lock()
	prev, existed := r.entries[userID]
	if existed && prev.conn == conn {
		prev.lastSeen = now
		r.mu.Unlock()
		return nil
	}
	now = r.stampLocked(now)
	r.entries[userID] = &entry{conn: conn, lastSeen: now}
	others := r.othersLocked(userID)
	r.notifyMu.Lock()
	r.mu.Unlock()
	defer r.notifyMu.Unlock()

	var previous Conn
	if existed {
		previous = prev.conn
		r.logger.Info("PRESENCE", "Session replaced", map[string]interface{}{
			"user_id":  userID,
			"previous": prev.conn.ID(),
			"current":  conn.ID(),
		})
	} else {
		// A replaced session means the user never went offline for the others.
		r.broadcast(others, dto.WsEnvelope{Type: dto.WsEventUserOnline, Data: userID})
		r.logger.Info("PRESENCE", "User online", map[string]interface{}{"user_id": userID, "conn_id": conn.ID()})
	}

	r.emit(Change{UserID: userID, Online: true, At: now})
	return previous
}

// Deregister removes userID only while conn is still its registered handle and reports
// whether it did. A stale handle is ignored.
func (r *Registry) Deregister(userID string, conn Conn) bool {
	r.mu.Lock()
	current, ok := r.entries[userID]
	if !ok || current.conn != conn {
		r.mu.Unlock()
		r.logger.Debug("PRESENCE", "Stale deregister ignored", map[string]interface{}{"user_id": userID, "conn_id": conn.ID()})
		return false
	}
	delete(r.entries, userID)
	now := r.stampLocked(r.now())
	others := r.othersLocked(userID)
	r.notifyMu.Lock()
	r.mu.Unlock()
	defer r.notifyMu.Unlock()

	r.broadcast(others, dto.WsEnvelope{Type: dto.WsEventUserOffline, Data: userID})
	r.logger.Info("PRESENCE", "User offline", map[string]interface{}{"user_id": userID, "conn_id": conn.ID()})

	r.emit(Change{UserID: userID, Online: false, At: now})
	return true
}

func (r *Registry) Lookup(userID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[userID]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// LastSeen is the time of the latest register for an online user.
func (r *Registry) LastSeen(userID string) (time.Time, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[userID]
	if !ok {
		return time.Time{}, false
	}
	return e.lastSeen, true
}

// OnlineUsers returns a snapshot of the registered user ids.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	return ids
}

// stampLocked truncates t to microseconds and bumps it past the previous stamp.
func (r *Registry) stampLocked(t time.Time) time.Time {
	t = t.Truncate(time.Microsecond)
	if !t.After(r.lastStamp) {
		t = r.lastStamp.Add(time.Microsecond)
	}
	r.lastStamp = t
	return t
}

func (r *Registry) othersLocked(userID string) []Conn {
	others := make([]Conn, 0, len(r.entries))
	for id, e := range r.entries {
		if id != userID {
			others = append(others, e.conn)
		}
	}
	return others
}

func (r *Registry) broadcast(conns []Conn, env dto.WsEnvelope) {
	for _, c := range conns {
		if err := c.Push(env); err != nil {
			r.logger.Warn("PRESENCE", "Broadcast push failed", map[string]interface{}{
				"conn_id": c.ID(),
				"event":   env.Type,
				"error":   err.Error(),
			})
		}
	}
}

func (r *Registry) emit(change Change) {
	for _, l := range r.listeners {
		l.OnPresenceChange(change)
	}
}
