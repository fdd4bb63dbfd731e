package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/SnProjects/snooze/internal/core"
	"github.com/SnProjects/snooze/internal/domain"
)

// SessionState is the connection lifecycle: Connecting -> Authenticated ->
// RoomsJoined -> Active -> Disconnected. Driven by the presence
// coordinator, never by transport callbacks.
type SessionState int

const (
	StateConnecting SessionState = iota
	StateAuthenticated
	StateRoomsJoined
	StateActive
	StateDisconnected
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateRoomsJoined:
		return "rooms-joined"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

type sessionEntry struct {
	user    *domain.User
	session core.MemberSession
	state   SessionState
	rooms   map[domain.RoomKey]struct{}
}

// SessionRegistry maps live session ids to their authenticated identity,
// transport session and joined room keys.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[core.SessionID]*sessionEntry)}
}

func (r *SessionRegistry) Bind(sid core.SessionID, user *domain.User, ms core.MemberSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sid] = &sessionEntry{
		user:    user,
		session: ms,
		state:   StateAuthenticated,
		rooms:   make(map[domain.RoomKey]struct{}),
	}
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Str("user", string(user.ID)).Msg("session bound")
}

func (r *SessionRegistry) Get(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.session, true
	}
	return nil, false
}

func (r *SessionRegistry) UserOf(sid core.SessionID) (*domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.user, true
	}
	return nil, false
}

func (r *SessionRegistry) SetState(sid core.SessionID, state SessionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		e.state = state
	}
}

func (r *SessionRegistry) StateOf(sid core.SessionID) SessionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.state
	}
	return StateDisconnected
}

func (r *SessionRegistry) TrackRoom(sid core.SessionID, key domain.RoomKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		e.rooms[key] = struct{}{}
	}
}

func (r *SessionRegistry) UntrackRoom(sid core.SessionID, key domain.RoomKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		delete(e.rooms, key)
	}
}

func (r *SessionRegistry) RoomsOf(sid core.SessionID) []domain.RoomKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil
	}
	out := make([]domain.RoomKey, 0, len(e.rooms))
	for key := range e.rooms {
		out = append(out, key)
	}
	return out
}

func (r *SessionRegistry) Unbind(sid core.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[sid]; ok {
		e.state = StateDisconnected
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.sessions").Str("sid", string(sid)).Msg("session unbound")
}
