package app

import (
	"github.com/rs/zerolog/log"

	"github.com/SnProjects/snooze/internal/core"
	"github.com/SnProjects/snooze/internal/domain"
	"github.com/SnProjects/snooze/internal/protocol"
)

// Relay forwards WebRTC negotiation payloads between peers of a voice
// room without interpreting them. The whole room receives the tagged
// payload; clients drop frames whose toUserId is not theirs. That trades
// a little bandwidth for not needing a user-id to session lookup here.
type Relay struct {
	rooms *core.Registry
}

func NewRelay(rooms *core.Registry) *Relay {
	return &Relay{rooms: rooms}
}

func (r *Relay) RelayOffer(sig protocol.Signal, from core.SessionID) {
	r.relay(sig, from)
}

func (r *Relay) RelayAnswer(sig protocol.Signal, from core.SessionID) {
	r.relay(sig, from)
}

func (r *Relay) RelayICECandidate(sig protocol.Signal, from core.SessionID) {
	r.relay(sig, from)
}

// relay is a silent no-op on an empty room: the target peer may have
// already disconnected and signaling frames are never queued.
func (r *Relay) relay(sig protocol.Signal, from core.SessionID) {
	key := domain.VoiceRoom(sig.ServerID, sig.ChannelID)
	res := r.rooms.Broadcast(key, protocol.SignalEvent(sig), from)
	log.Debug().
		Str("module", "app.relay").
		Str("kind", string(sig.Kind)).
		Str("room", string(key)).
		Str("from", string(sig.FromUserID)).
		Str("to", string(sig.ToUserID)).
		Int("sent_to", res.SentTo).
		Int("dropped", res.Dropped).
		Msg("relayed signal")
}
