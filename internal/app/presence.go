package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/SnProjects/snooze/internal/auth"
	"github.com/SnProjects/snooze/internal/core"
	"github.com/SnProjects/snooze/internal/domain"
	"github.com/SnProjects/snooze/internal/protocol"
	"github.com/SnProjects/snooze/internal/store"
)

// Presence translates connection-lifecycle events into room registry and
// membership store operations. The store is the source of truth for active
// voice channels; room membership is the derived in-memory view, so every
// mutation commits to storage before any broadcast goes out.
//
// Same-channel join/leave races are serialized with a keyed mutex: the
// user key guards the active-voice pointer read-modify-write, the channel
// keys guard the peer-list computation and its broadcast. User locks are
// always taken before channel locks, and channel locks in sorted order.
type Presence struct {
	verifier auth.Verifier
	store    store.MembershipStore
	rooms    *core.Registry
	sessions *SessionRegistry
	locks    *keyedMutex
}

func NewPresence(verifier auth.Verifier, st store.MembershipStore, rooms *core.Registry, sessions *SessionRegistry) *Presence {
	return &Presence{
		verifier: verifier,
		store:    st,
		rooms:    rooms,
		sessions: sessions,
		locks:    newKeyedMutex(),
	}
}

func userLockKey(userID domain.UserID) string { return "user:" + string(userID) }

func channelLockKey(serverID domain.ServerID, channelID domain.ChannelID) string {
	return fmt.Sprintf("vc:%s:%s", serverID, channelID)
}

// Connect verifies the credential, binds the session and joins the
// updates room of every server the user belongs to. On error no session
// state is left behind and the adapter closes the connection.
func (p *Presence) Connect(ctx context.Context, sid core.SessionID, conn core.SignalConnection, credential string) (*domain.User, error) {
	identity, err := p.verifier.Verify(ctx, credential)
	if err != nil {
		return nil, err
	}
	user, err := domain.NewUser(identity.UserID, identity.Username)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", auth.ErrInvalidCredential, err)
	}

	memberships, err := p.store.LoadMemberships(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("load memberships: %w", err)
	}

	ms := core.NewMemberSession(user, conn)
	p.sessions.Bind(sid, user, ms)
	for _, m := range memberships {
		key := domain.UpdatesRoom(m.ServerID)
		p.rooms.Join(key, sid, ms)
		p.sessions.TrackRoom(sid, key)
	}
	p.sessions.SetState(sid, StateRoomsJoined)

	log.Info().Str("module", "app.presence").Str("sid", string(sid)).Str("user", string(user.ID)).Int("servers", len(memberships)).Msg("connected")
	return user, nil
}

// JoinVoice joins the session's user into a voice channel. Joining while
// another channel is active performs the full leave side effects there
// first, so a user is in at most one voice channel at a time.
func (p *Presence) JoinVoice(ctx context.Context, sid core.SessionID, serverID domain.ServerID, channelID domain.ChannelID) error {
	user, ok := p.sessions.UserOf(sid)
	if !ok {
		return ErrNotConnected
	}
	ms, _ := p.sessions.Get(sid)

	if err := p.validateVoiceRequest(ctx, user.ID, serverID, channelID); err != nil {
		return err
	}

	unlockUser := p.locks.Lock(userLockKey(user.ID))
	defer unlockUser()

	cur, err := p.store.GetActiveVoiceChannel(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("active voice lookup: %w", err)
	}
	switching := cur != nil && (cur.ServerID != serverID || cur.ChannelID != channelID)

	keys := []string{channelLockKey(serverID, channelID)}
	if switching {
		keys = append(keys, channelLockKey(cur.ServerID, cur.ChannelID))
	}
	unlockChannels := p.locks.LockAll(keys...)
	defer unlockChannels()

	if switching {
		if err := p.leaveLocked(ctx, sid, user, cur.ServerID, cur.ChannelID); err != nil {
			return err
		}
	}

	voiceKey := domain.VoiceRoom(serverID, channelID)
	rejoin := p.rooms.Contains(voiceKey, sid)

	if err := p.store.SetActiveVoiceChannel(ctx, user.ID, serverID, channelID); err != nil {
		return fmt.Errorf("persist voice membership: %w", err)
	}
	p.rooms.Join(voiceKey, sid, ms)
	p.sessions.TrackRoom(sid, voiceKey)
	p.sessions.SetState(sid, StateActive)

	peers, err := p.store.VoicePeers(ctx, serverID, channelID)
	if err != nil {
		return fmt.Errorf("peer list: %w", err)
	}

	if !rejoin {
		p.rooms.Broadcast(voiceKey, protocol.UserJoined(user.ID), sid)
		p.rooms.Broadcast(domain.UpdatesRoom(serverID), protocol.VCUserJoined(channelID, peers), "")
	}

	log.Info().Str("module", "app.presence").Str("user", string(user.ID)).Str("room", string(voiceKey)).Bool("switched", switching).Msg("joined voice channel")
	return nil
}

// LeaveVoice is the mirror image of JoinVoice.
func (p *Presence) LeaveVoice(ctx context.Context, sid core.SessionID, serverID domain.ServerID, channelID domain.ChannelID) error {
	user, ok := p.sessions.UserOf(sid)
	if !ok {
		return ErrNotConnected
	}
	if err := p.validateVoiceRequest(ctx, user.ID, serverID, channelID); err != nil {
		return err
	}

	unlockUser := p.locks.Lock(userLockKey(user.ID))
	defer unlockUser()
	unlockChannel := p.locks.Lock(channelLockKey(serverID, channelID))
	defer unlockChannel()

	if err := p.leaveLocked(ctx, sid, user, serverID, channelID); err != nil {
		return err
	}
	p.sessions.SetState(sid, StateRoomsJoined)
	log.Info().Str("module", "app.presence").Str("user", string(user.ID)).Str("room", string(domain.VoiceRoom(serverID, channelID))).Msg("left voice channel")
	return nil
}

// Disconnect tears down voice presence and room membership for a closed
// connection. Cleanup failures are logged, never propagated: the session
// is unbound regardless. A user with no active voice channel is a no-op
// beyond leaving the updates rooms.
func (p *Presence) Disconnect(ctx context.Context, sid core.SessionID) {
	user, ok := p.sessions.UserOf(sid)
	if !ok {
		return
	}

	unlockUser := p.locks.Lock(userLockKey(user.ID))
	cur, err := p.store.GetActiveVoiceChannel(ctx, user.ID)
	if err != nil {
		log.Error().Str("module", "app.presence").Str("sid", string(sid)).Err(err).Msg("active voice lookup during disconnect")
	}
	if cur != nil {
		unlockChannel := p.locks.Lock(channelLockKey(cur.ServerID, cur.ChannelID))
		if err := p.leaveLocked(ctx, sid, user, cur.ServerID, cur.ChannelID); err != nil {
			log.Error().Str("module", "app.presence").Str("sid", string(sid)).Err(err).Msg("voice cleanup during disconnect")
		}
		unlockChannel()
	}
	unlockUser()

	for _, key := range p.sessions.RoomsOf(sid) {
		p.rooms.Leave(key, sid)
	}
	p.sessions.Unbind(sid)
	log.Info().Str("module", "app.presence").Str("sid", string(sid)).Str("user", string(user.ID)).Msg("disconnected")
}

func (p *Presence) validateVoiceRequest(ctx context.Context, userID domain.UserID, serverID domain.ServerID, channelID domain.ChannelID) error {
	ch, err := p.store.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.ServerID != serverID {
		return ErrChannelNotFound
	}
	if ch.Kind != domain.ChannelVoice {
		return ErrNotVoiceChannel
	}
	member, err := p.store.IsServerMember(ctx, userID, serverID)
	if err != nil {
		return fmt.Errorf("membership lookup: %w", err)
	}
	if !member {
		return ErrNotAMember
	}
	return nil
}

// leaveLocked performs the leave side effects for one voice channel.
// Caller holds the user lock and the channel lock. Storage is cleared
// before the room mutation and broadcasts, so a failed clear surfaces as
// a failed leave with no peer-list update sent.
func (p *Presence) leaveLocked(ctx context.Context, sid core.SessionID, user *domain.User, serverID domain.ServerID, channelID domain.ChannelID) error {
	cur, err := p.store.GetActiveVoiceChannel(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("active voice lookup: %w", err)
	}
	if cur != nil && cur.ServerID == serverID && cur.ChannelID == channelID {
		if err := p.store.ClearActiveVoiceChannel(ctx, user.ID); err != nil {
			return fmt.Errorf("clear voice membership: %w", err)
		}
	}

	voiceKey := domain.VoiceRoom(serverID, channelID)
	p.rooms.Leave(voiceKey, sid)
	p.sessions.UntrackRoom(sid, voiceKey)

	peers, err := p.store.VoicePeers(ctx, serverID, channelID)
	if err != nil {
		return fmt.Errorf("peer list: %w", err)
	}
	p.rooms.Broadcast(voiceKey, protocol.UserLeft(user.ID), sid)
	p.rooms.Broadcast(domain.UpdatesRoom(serverID), protocol.VCUserLeft(channelID, peers), "")
	return nil
}
