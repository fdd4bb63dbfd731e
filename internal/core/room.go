package core

import (
	"github.com/SnProjects/snooze/internal/domain"
	"github.com/rs/zerolog/log"
)

// Room is a threadsafe in-memory broadcast domain. It owns the membership
// set but never closes adapter-owned transport resources. All mutation goes
// through the registry so empty-room collection stays consistent; rooms are
// never handed out for external map surgery.
type Room struct {
	key     domain.RoomKey
	members map[SessionID]MemberSession
}

func newRoom(key domain.RoomKey) *Room {
	return &Room{key: key, members: make(map[SessionID]MemberSession)}
}

func (r *Room) Key() domain.RoomKey { return r.key }

// add is idempotent: joining an already-joined room replaces the same entry.
func (r *Room) add(sid SessionID, ms MemberSession) {
	r.members[sid] = ms
}

func (r *Room) remove(sid SessionID) {
	delete(r.members, sid)
}

func (r *Room) has(sid SessionID) bool {
	_, ok := r.members[sid]
	return ok
}

func (r *Room) count() int { return len(r.members) }

// broadcast delivers to every member except exclude. Delivery is
// best-effort per member; one slow consumer never aborts the rest.
func (r *Room) broadcast(data Frame, exclude SessionID) PublishResult {
	res := PublishResult{}
	for sid, ms := range r.members {
		if sid == exclude {
			continue
		}
		if err := ms.Signal().TrySend(data); err != nil {
			res.Dropped++
			log.Debug().Str("module", "core.room").Str("room", string(r.key)).Str("sid", string(sid)).Err(err).Msg("dropped frame")
			continue
		}
		res.SentTo++
	}
	return res
}

func (r *Room) sendTo(sid SessionID, data Frame) error {
	ms, ok := r.members[sid]
	if !ok {
		return ErrNoSuchSession
	}
	return ms.Signal().TrySend(data)
}

func (r *Room) snapshot() []domain.Peer {
	out := make([]domain.Peer, 0, len(r.members))
	for _, ms := range r.members {
		u := ms.User()
		out = append(out, domain.Peer{ID: u.ID, Username: u.Username})
	}
	return out
}
