package core

import (
	"sync"

	"github.com/SnProjects/snooze/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry tracks which sessions belong to which room and delivers frames
// to all or one member. It is the single owner of the room map: components
// receive a *Registry handle, never ambient globals.
//
// Rooms are created lazily on first join and dropped when the member set
// empties. Broadcasts through one Registry instance are delivered to each
// member in the order they were issued.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomKey]*Room
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[domain.RoomKey]*Room)}
}

// Join adds the session to the room, creating the room if absent.
// Idempotent; no error condition.
func (r *Registry) Join(key domain.RoomKey, sid SessionID, ms MemberSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[key]
	if !ok {
		room = newRoom(key)
		r.rooms[key] = room
		log.Debug().Str("module", "core.registry").Str("room", string(key)).Msg("room created")
	}
	room.add(sid, ms)
}

// Leave removes the session. An emptied room is deleted.
func (r *Registry) Leave(key domain.RoomKey, sid SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[key]
	if !ok {
		return
	}
	room.remove(sid)
	if room.count() == 0 {
		delete(r.rooms, key)
		log.Debug().Str("module", "core.registry").Str("room", string(key)).Msg("empty room removed")
	}
}

// Broadcast delivers to every member of the room except exclude.
// A missing or empty room is a silent no-op.
func (r *Registry) Broadcast(key domain.RoomKey, data Frame, exclude SessionID) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[key]
	if !ok {
		return PublishResult{}
	}
	return room.broadcast(data, exclude)
}

// SendTo delivers directly to one member of the room.
func (r *Registry) SendTo(key domain.RoomKey, sid SessionID, data Frame) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[key]
	if !ok {
		return ErrNoSuchSession
	}
	return room.sendTo(sid, data)
}

func (r *Registry) Contains(key domain.RoomKey, sid SessionID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[key]
	return ok && room.has(sid)
}

func (r *Registry) MemberCount(key domain.RoomKey) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if room, ok := r.rooms[key]; ok {
		return room.count()
	}
	return 0
}

// MembersSnapshot is a read-only copy of the room's peers for APIs.
func (r *Registry) MembersSnapshot(key domain.RoomKey) []domain.Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if room, ok := r.rooms[key]; ok {
		return room.snapshot()
	}
	return nil
}

func (r *Registry) List() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for key, room := range r.rooms {
		out = append(out, RoomInfo{Key: key, MemberCount: room.count()})
	}
	return out
}
