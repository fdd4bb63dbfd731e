package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/SnProjects/snooze/internal/core"
	"github.com/SnProjects/snooze/internal/domain"
	"github.com/SnProjects/snooze/internal/protocol"
	"github.com/SnProjects/snooze/internal/store"
)

// Whiteboard maintains one authoritative document session per whiteboard
// channel. Sessions fan out mutations to their attached sockets directly;
// persistence happens on a background sweep so the hot message path never
// blocks on storage.
type Whiteboard struct {
	channels store.MembershipStore
	docs     store.DocumentStore
	interval time.Duration

	mu       sync.Mutex
	sessions map[domain.ChannelID]*DocSession
}

func NewWhiteboard(channels store.MembershipStore, docs store.DocumentStore, sweepInterval time.Duration) *Whiteboard {
	return &Whiteboard{
		channels: channels,
		docs:     docs,
		interval: sweepInterval,
		sessions: make(map[domain.ChannelID]*DocSession),
	}
}

// DocSession is the in-memory document state plus the attached sockets of
// one whiteboard channel. Sockets are keyed by a client-chosen session id,
// distinct from the transport connection, so the same logical client can
// reconnect and resume its slot.
type DocSession struct {
	channelID domain.ChannelID

	mu      sync.Mutex
	records map[string]json.RawMessage
	sockets map[string]core.SignalConnection
	dirty   bool
	closed  bool
}

// Attach validates the channel and connects a socket to the channel's
// document session, creating the session from the last persisted snapshot
// when none is open. The new socket receives the current document state.
func (w *Whiteboard) Attach(ctx context.Context, channelID domain.ChannelID, sessionID string, conn core.SignalConnection) error {
	ch, err := w.channels.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.Kind != domain.ChannelWhiteboard {
		return ErrNotWhiteboardChannel
	}

	for {
		ds, err := w.admit(ctx, channelID)
		if err != nil {
			return err
		}
		if ds.attach(sessionID, conn) {
			log.Info().Str("module", "app.whiteboard").Str("channel", string(channelID)).Str("session", sessionID).Msg("socket attached")
			return nil
		}
		// Session closed between lookup and attach; admit a fresh one.
	}
}

// admit returns the open session for the channel, creating it from the
// last snapshot if needed. The manager lock protects check-and-create so
// no two sessions can exist for one channel.
func (w *Whiteboard) admit(ctx context.Context, channelID domain.ChannelID) (*DocSession, error) {
	w.mu.Lock()
	if ds, ok := w.sessions[channelID]; ok && !ds.isClosed() {
		w.mu.Unlock()
		return ds, nil
	}
	w.mu.Unlock()

	// Load outside the lock; mutations never wait on storage reads.
	records, err := w.loadRecords(ctx, channelID)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if ds, ok := w.sessions[channelID]; ok && !ds.isClosed() {
		return ds, nil
	}
	ds := &DocSession{
		channelID: channelID,
		records:   records,
		sockets:   make(map[string]core.SignalConnection),
	}
	w.sessions[channelID] = ds
	log.Info().Str("module", "app.whiteboard").Str("channel", string(channelID)).Int("records", len(records)).Msg("document session opened")
	return ds, nil
}

func (w *Whiteboard) loadRecords(ctx context.Context, channelID domain.ChannelID) (map[string]json.RawMessage, error) {
	raw, err := w.docs.LoadDocumentSnapshot(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if raw == nil {
		return make(map[string]json.RawMessage), nil
	}
	var snap protocol.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot for %s: %w", channelID, err)
	}
	if snap.Records == nil {
		snap.Records = make(map[string]json.RawMessage)
	}
	return snap.Records, nil
}

// HandleMessage applies one mutating message from an attached socket and
// fans the result out to the channel's other sockets.
func (w *Whiteboard) HandleMessage(channelID domain.ChannelID, sessionID string, data []byte) error {
	w.mu.Lock()
	ds, ok := w.sessions[channelID]
	w.mu.Unlock()
	if !ok {
		return ErrSessionClosed
	}

	msg, err := protocol.DecodeDoc(data)
	if err != nil {
		return err
	}
	return ds.apply(sessionID, msg)
}

// Detach removes the socket registered under sessionID, if it is still
// conn: a resumed client replaces its old socket, and the old transport's
// teardown must not evict the new one. The last socket out closes the
// session; a later connect reloads from the persisted snapshot.
func (w *Whiteboard) Detach(ctx context.Context, channelID domain.ChannelID, sessionID string, conn core.SignalConnection) {
	w.mu.Lock()
	ds, ok := w.sessions[channelID]
	w.mu.Unlock()
	if !ok {
		return
	}

	closedNow, needsFlush := ds.detach(sessionID, conn)
	if !closedNow {
		return
	}
	log.Info().Str("module", "app.whiteboard").Str("channel", string(channelID)).Msg("document session closed")
	if needsFlush {
		if err := w.persist(ctx, ds); err != nil {
			log.Error().Str("module", "app.whiteboard").Str("channel", string(channelID)).Err(err).Msg("final snapshot flush failed")
		}
	}
}

// Run drives the persistence sweep until ctx is cancelled. A final sweep
// flushes whatever is still dirty on shutdown.
func (w *Whiteboard) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.Sweep(context.Background())
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep writes a snapshot for every dirty session and drops closed ones
// from the registry. The dirty flag is cleared before the write starts; a
// failed write re-marks the session so the next tick retries.
func (w *Whiteboard) Sweep(ctx context.Context) {
	w.mu.Lock()
	open := make([]*DocSession, 0, len(w.sessions))
	for channelID, ds := range w.sessions {
		if ds.isClosed() {
			delete(w.sessions, channelID)
			continue
		}
		open = append(open, ds)
	}
	w.mu.Unlock()

	for _, ds := range open {
		if !ds.clearDirty() {
			continue
		}
		if err := w.persist(ctx, ds); err != nil {
			log.Error().Str("module", "app.whiteboard").Str("channel", string(ds.channelID)).Err(err).Msg("snapshot write failed, will retry")
			ds.markDirty()
		}
	}
}

func (w *Whiteboard) persist(ctx context.Context, ds *DocSession) error {
	snap := protocol.Snapshot{Records: ds.recordsCopy()}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return w.docs.SaveDocumentSnapshot(ctx, ds.channelID, raw)
}

func (ds *DocSession) attach(sessionID string, conn core.SignalConnection) bool {
	ds.mu.Lock()
	if ds.closed {
		ds.mu.Unlock()
		return false
	}
	if old, ok := ds.sockets[sessionID]; ok && old != conn {
		old.Close()
	}
	ds.sockets[sessionID] = conn
	snapshot := protocol.SnapshotEvent(ds.records)
	ds.mu.Unlock()

	if err := conn.TrySend(snapshot); err != nil {
		log.Debug().Str("module", "app.whiteboard").Str("channel", string(ds.channelID)).Str("session", sessionID).Err(err).Msg("snapshot send dropped")
	}
	return true
}

func (ds *DocSession) detach(sessionID string, conn core.SignalConnection) (closedNow, needsFlush bool) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if cur, ok := ds.sockets[sessionID]; !ok || cur != conn {
		return false, false
	}
	delete(ds.sockets, sessionID)
	if len(ds.sockets) > 0 || ds.closed {
		return false, false
	}
	ds.closed = true
	needsFlush = ds.dirty
	ds.dirty = false
	return true, needsFlush
}

func (ds *DocSession) apply(sessionID string, msg protocol.DocMessage) error {
	ds.mu.Lock()
	if ds.closed {
		ds.mu.Unlock()
		return ErrSessionClosed
	}

	var frame core.Frame
	switch m := msg.(type) {
	case protocol.Update:
		for id, rec := range m.Records {
			ds.records[id] = rec
		}
		frame = protocol.UpdateEvent(m.Records)
	case protocol.Delete:
		for _, id := range m.IDs {
			delete(ds.records, id)
		}
		frame = protocol.DeleteEvent(m.IDs)
	default:
		ds.mu.Unlock()
		return protocol.ErrUnknownKind{}
	}
	ds.dirty = true

	type target struct {
		id   string
		conn core.SignalConnection
	}
	targets := make([]target, 0, len(ds.sockets))
	for id, conn := range ds.sockets {
		if id == sessionID {
			continue
		}
		targets = append(targets, target{id, conn})
	}
	ds.mu.Unlock()

	for _, t := range targets {
		if err := t.conn.TrySend(frame); err != nil {
			log.Debug().Str("module", "app.whiteboard").Str("channel", string(ds.channelID)).Str("session", t.id).Err(err).Msg("fanout dropped")
		}
	}
	return nil
}

func (ds *DocSession) isClosed() bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.closed
}

func (ds *DocSession) clearDirty() bool {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	was := ds.dirty
	ds.dirty = false
	return was
}

func (ds *DocSession) markDirty() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	if !ds.closed {
		ds.dirty = true
	}
}

func (ds *DocSession) recordsCopy() map[string]json.RawMessage {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	out := make(map[string]json.RawMessage, len(ds.records))
	for id, rec := range ds.records {
		out[id] = rec
	}
	return out
}
