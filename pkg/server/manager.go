package server

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/emberfall-mud/emberfall/pkg/events"
)

// ErrAccountInUse is returned by Authenticate when another live session is
// already bound to the account.
var ErrAccountInUse = errors.New("server: account already has an active session")

// SessionManager is the process-wide registry of live sessions plus the
// room-presence index. All mutation of the registry and the index goes
// through its methods; a single mutex makes read-then-write sequences
// (move between rooms, authenticate, remove) one critical section each.
//
// Broadcast methods hold the same lock across delivery, so broadcasts to a
// room are observed in the order the calls were issued and never see a
// half-applied move. Session.Send drops writes after close, which makes
// delivery racing a teardown harmless.
type SessionManager struct {
	mu        sync.Mutex
	sessions  map[string]*Session            // session ID -> session
	byAccount map[string]*Session            // account ID -> session
	byName    map[string]*Session            // lower(display name) -> session
	presence  map[string]map[string]*Session // room ID -> session ID -> session
	bus       *events.Bus
	metrics   *Metrics
}

// NewSessionManager creates an empty registry around an event bus.
func NewSessionManager(bus *events.Bus) *SessionManager {
	return &SessionManager{
		sessions:  make(map[string]*Session),
		byAccount: make(map[string]*Session),
		byName:    make(map[string]*Session),
		presence:  make(map[string]map[string]*Session),
		bus:       bus,
	}
}

// Bus returns the underlying event bus.
func (m *SessionManager) Bus() *events.Bus {
	return m.bus
}

// Add registers a new session and subscribes it to the bus.
func (m *SessionManager) Add(s *Session) {
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	m.bus.Subscribe(s.ID, s)
}

// Remove unregisters a session, clearing every index it appears in. It
// returns the identity the session held so the caller can announce the
// departure exactly once; a second call for the same ID reports found=false.
func (m *SessionManager) Remove(sessionID string) (name, room string, wasAuthenticated, found bool) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return "", "", false, false
	}
	delete(m.sessions, sessionID)
	name = s.Name()
	room = s.Room()
	wasAuthenticated = s.State() == StateAuthenticated
	if acct := s.AccountID(); acct != "" {
		delete(m.byAccount, acct)
	}
	if name != "" {
		delete(m.byName, strings.ToLower(name))
	}
	if room != "" {
		if set := m.presence[room]; set != nil {
			delete(set, sessionID)
			if len(set) == 0 {
				delete(m.presence, room)
			}
		}
	}
	s.SetState(StateDisconnected)
	m.mu.Unlock()

	m.bus.Unsubscribe(sessionID, s)
	return name, room, wasAuthenticated, true
}

// Authenticate promotes a session to StateAuthenticated, binds its
// identity, and inserts it into the presence index, all in one critical
// section. It fails with ErrAccountInUse if the account already has a live
// session; the existing session is never evicted.
func (m *SessionManager) Authenticate(s *Session, accountID, name, room string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return errors.New("server: session no longer registered")
	}
	if other, ok := m.byAccount[accountID]; ok && other.ID != s.ID {
		return ErrAccountInUse
	}
	s.promote(accountID, name, room)
	m.byAccount[accountID] = s
	m.byName[strings.ToLower(name)] = s
	if m.presence[room] == nil {
		m.presence[room] = make(map[string]*Session)
	}
	m.presence[room][s.ID] = s
	return nil
}

// Move relocates an authenticated session between rooms. Removal from the
// old room's set, the room-field update, and insertion into the new set
// are one critical section, so a concurrent broadcast sees the session in
// exactly one room.
func (m *SessionManager) Move(s *Session, toRoom string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := s.Room()
	if from != "" {
		if set := m.presence[from]; set != nil {
			delete(set, s.ID)
			if len(set) == 0 {
				delete(m.presence, from)
			}
		}
	}
	s.setRoom(toRoom)
	if m.presence[toRoom] == nil {
		m.presence[toRoom] = make(map[string]*Session)
	}
	m.presence[toRoom][s.ID] = s
}

// GetByAccount returns the live session bound to an account, or nil.
func (m *SessionManager) GetByAccount(accountID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byAccount[accountID]
}

// GetByName returns the live session with the given display name
// (case-insensitive), or nil.
func (m *SessionManager) GetByName(name string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byName[strings.ToLower(name)]
}

// SessionsInRoom returns the sessions currently in a room, sorted by
// display name for stable rendering.
func (m *SessionManager) SessionsInRoom(roomID string) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedByName(m.presence[roomID])
}

// AuthenticatedSessions returns all authenticated sessions sorted by name.
func (m *SessionManager) AuthenticatedSessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := make(map[string]*Session, len(m.byAccount))
	for _, s := range m.byAccount {
		byID[s.ID] = s
	}
	return sortedByName(byID)
}

func sortedByName(set map[string]*Session) []*Session {
	out := make([]*Session, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		ni, nj := out[i].Name(), out[j].Name()
		if ni == nj {
			return out[i].ID < out[j].ID
		}
		return ni < nj
	})
	return out
}

// Count returns the number of live sessions (any state).
func (m *SessionManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// AuthenticatedCount returns the number of authenticated sessions.
func (m *SessionManager) AuthenticatedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byAccount)
}

// BroadcastToRoom delivers an event to every session whose current room is
// roomID, except the named one. An empty room is a no-op.
func (m *SessionManager) BroadcastToRoom(roomID string, ev events.Event, excludeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.Room = roomID
	m.bus.EmitTo(m.recipients(m.presence[roomID], excludeID), ev)
	m.countBroadcast()
}

// BroadcastToAuthenticated delivers an event to every authenticated
// session except the named one.
func (m *SessionManager) BroadcastToAuthenticated(ev events.Event, excludeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := make(map[string]*Session, len(m.byAccount))
	for _, s := range m.byAccount {
		byID[s.ID] = s
	}
	m.bus.EmitTo(m.recipients(byID, excludeID), ev)
	m.countBroadcast()
}

// BroadcastAll delivers an event to every live session, authenticated or
// not, except the named one. Used for server-wide notices.
func (m *SessionManager) BroadcastAll(ev events.Event, excludeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bus.EmitTo(m.recipients(m.sessions, excludeID), ev)
	m.countBroadcast()
}

// recipients flattens a session set into an ordered ID list. Callers hold
// the manager lock.
func (m *SessionManager) recipients(set map[string]*Session, excludeID string) []string {
	ids := make([]string, 0, len(set))
	for _, s := range sortedByName(set) {
		if s.ID != excludeID {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

func (m *SessionManager) countBroadcast() {
	if m.metrics != nil {
		m.metrics.broadcastsTotal.Inc()
	}
}
