package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

var wsSessions = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "ws_sessions",
	Help: "Current number of connected websocket sessions.",
})

func init() {
	prometheus.MustRegister(wsSessions)
}

// Conn is the transport half of a session: something that can accept ordered
// writes and be closed. The websocket adapter in session.go implements it;
// tests use in-memory fakes.
type Conn interface {
	// Send enqueues one encoded event. It must not block indefinitely; a
	// saturated transport should drop and return false so the registry never
	// stalls fan-out on one slow consumer.
	Send(data []byte) bool
	// Close tears the transport down. Safe to call more than once.
	Close()
}

// Session is one live connection of a principal. A principal may hold any
// number of simultaneous sessions (multi-device); each keeps its own room
// set, so a reconnect never orphans an older session's memberships.
type Session struct {
	ID          string
	PrincipalID string
	Role        string
	ConnectedAt time.Time

	conn  Conn
	rooms map[string]struct{} // guarded by the registry mutex
}

// Deliver encodes and sends one event to this session only, bypassing room
// fan-out. Used for connection-scoped events like the hello frame.
func (s *Session) Deliver(e Event) bool {
	data, err := e.encode()
	if err != nil {
		return false
	}
	return s.conn.Send(data)
}

// Registry owns all presence state: sessions by ID, the principal index, and
// room membership. All maps are mutated only through Registry methods under
// one mutex; callers never receive references into the internal structures.
//
// Presence is process-local. Cross-process delivery is layered on top by the
// Bus's Bridge, not by sharing this state.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*Session            // session ID -> session
	byPrincipal map[string]map[string]*Session // principal ID -> session ID -> session
	rooms       map[string]map[string]*Session // room -> session ID -> session
	closed      bool
}

// NewRegistry constructs an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions:    make(map[string]*Session),
		byPrincipal: make(map[string]map[string]*Session),
		rooms:       make(map[string]map[string]*Session),
	}
}

// Connect registers a new session for the principal and auto-joins its
// principal room and role room. Returns nil after Shutdown.
func (r *Registry) Connect(principalID, role string, conn Conn) *Session {
	s := &Session{
		ID:          uuid.NewString(),
		PrincipalID: principalID,
		Role:        role,
		ConnectedAt: time.Now().UTC(),
		conn:        conn,
		rooms:       make(map[string]struct{}),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.sessions[s.ID] = s
	if r.byPrincipal[principalID] == nil {
		r.byPrincipal[principalID] = make(map[string]*Session)
	}
	r.byPrincipal[principalID][s.ID] = s
	r.joinLocked(s, PrincipalRoom(principalID))
	r.joinLocked(s, RoleRoom(role))
	r.mu.Unlock()

	wsSessions.Inc()
	return s
}

// Join adds the session to roomID, creating the room on first join.
func (r *Registry) Join(s *Session, roomID string) {
	if s == nil || roomID == "" {
		return
	}
	r.mu.Lock()
	if _, live := r.sessions[s.ID]; live {
		r.joinLocked(s, roomID)
	}
	r.mu.Unlock()
}

func (r *Registry) joinLocked(s *Session, roomID string) {
	if r.rooms[roomID] == nil {
		r.rooms[roomID] = make(map[string]*Session)
	}
	r.rooms[roomID][s.ID] = s
	s.rooms[roomID] = struct{}{}
}

// Leave removes the session from roomID; an emptied room is deleted.
func (r *Registry) Leave(s *Session, roomID string) {
	if s == nil {
		return
	}
	r.mu.Lock()
	r.leaveLocked(s, roomID)
	r.mu.Unlock()
}

func (r *Registry) leaveLocked(s *Session, roomID string) {
	if members, ok := r.rooms[roomID]; ok {
		delete(members, s.ID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	delete(s.rooms, roomID)
}

// Disconnect removes the session from every room it belongs to, drops it
// from the indexes, and closes its transport. Idempotent.
func (r *Registry) Disconnect(s *Session) {
	if s == nil {
		return
	}
	r.mu.Lock()
	_, live := r.sessions[s.ID]
	if live {
		for roomID := range s.rooms {
			r.leaveLocked(s, roomID)
		}
		delete(r.sessions, s.ID)
		if peers, ok := r.byPrincipal[s.PrincipalID]; ok {
			delete(peers, s.ID)
			if len(peers) == 0 {
				delete(r.byPrincipal, s.PrincipalID)
			}
		}
	}
	r.mu.Unlock()

	if live {
		wsSessions.Dec()
		s.conn.Close()
	}
}

// SessionsOf returns a snapshot of the active sessions for a principal
// (zero, one, or more — multi-session fan-out is the policy here).
func (r *Registry) SessionsOf(principalID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := r.byPrincipal[principalID]
	out := make([]*Session, 0, len(peers))
	for _, s := range peers {
		out = append(out, s)
	}
	return out
}

// RoomMembers returns a snapshot of the sessions in roomID at call time.
// Fan-out iterates the snapshot, never the live map, so delivery happens
// outside the registry lock.
func (r *Registry) RoomMembers(roomID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[roomID]
	out := make([]*Session, 0, len(members))
	for _, s := range members {
		out = append(out, s)
	}
	return out
}

// InRoom reports whether the session currently belongs to roomID.
func (r *Registry) InRoom(s *Session, roomID string) bool {
	if s == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	members, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	_, in := members[s.ID]
	return in
}

// SessionCount returns the number of live sessions.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Shutdown disconnects every session and rejects further connects.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	for _, s := range all {
		r.Disconnect(s)
	}
}
