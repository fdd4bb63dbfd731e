package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/SnProjects/snooze/internal/domain"
	"github.com/SnProjects/snooze/internal/store"
)

type failingDocs struct {
	*store.Memory
	failSave bool
}

func (s *failingDocs) SaveDocumentSnapshot(ctx context.Context, channelID domain.ChannelID, snapshot json.RawMessage) error {
	if s.failSave {
		return errors.New("storage down")
	}
	return s.Memory.SaveDocumentSnapshot(ctx, channelID, snapshot)
}

func wbStore() *store.Memory {
	st := seededStore()
	st.AddChannel(domain.Channel{ID: "7", ServerID: "10", Kind: domain.ChannelWhiteboard, Name: "sketches"})
	return st
}

func attachWB(t *testing.T, w *Whiteboard, sessionID string) *fakeConn {
	t.Helper()
	conn := &fakeConn{}
	if err := w.Attach(context.Background(), "7", sessionID, conn); err != nil {
		t.Fatalf("attach %s: %v", sessionID, err)
	}
	return conn
}

func updateFrame(id, shape string) []byte {
	return []byte(`{"type":"update","records":{"` + id + `":{"shape":"` + shape + `"}}}`)
}

func TestWhiteboardAttachValidation(t *testing.T) {
	ctx := context.Background()
	w := NewWhiteboard(wbStore(), wbStore(), time.Hour)

	if err := w.Attach(ctx, "404", "s1", &fakeConn{}); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
	if err := w.Attach(ctx, "5", "s1", &fakeConn{}); !errors.Is(err, ErrNotWhiteboardChannel) {
		t.Fatalf("expected ErrNotWhiteboardChannel, got %v", err)
	}
}

func TestWhiteboardAttachSendsSnapshot(t *testing.T) {
	st := wbStore()
	w := NewWhiteboard(st, st, time.Hour)

	conn := attachWB(t, w, "s1")
	snaps := conn.eventsOf("snapshot")
	if len(snaps) != 1 {
		t.Fatalf("expected one snapshot on attach, got %d", len(snaps))
	}
	if recs := snaps[0]["records"].(map[string]any); len(recs) != 0 {
		t.Fatalf("fresh document must be empty, got %v", recs)
	}
}

func TestWhiteboardFanout(t *testing.T) {
	st := wbStore()
	w := NewWhiteboard(st, st, time.Hour)
	conn1 := attachWB(t, w, "s1")
	conn2 := attachWB(t, w, "s2")

	if err := w.HandleMessage("7", "s1", updateFrame("r1", "rect")); err != nil {
		t.Fatalf("update: %v", err)
	}

	ups := conn2.eventsOf("update")
	if len(ups) != 1 {
		t.Fatalf("expected one update at s2, got %d", len(ups))
	}
	recs := ups[0]["records"].(map[string]any)
	if _, ok := recs["r1"]; !ok {
		t.Fatalf("update must carry the mutated record, got %v", recs)
	}
	if got := len(conn1.eventsOf("update")); got != 0 {
		t.Fatalf("originator must not be echoed, got %d updates", got)
	}

	if err := w.HandleMessage("7", "s2", []byte(`{"type":"delete","ids":["r1"]}`)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	dels := conn1.eventsOf("delete")
	if len(dels) != 1 {
		t.Fatalf("expected one delete at s1, got %d", len(dels))
	}
}

func TestWhiteboardRejectsSnapshotFromClient(t *testing.T) {
	st := wbStore()
	w := NewWhiteboard(st, st, time.Hour)
	attachWB(t, w, "s1")

	if err := w.HandleMessage("7", "s1", []byte(`{"type":"snapshot","records":{}}`)); err == nil {
		t.Fatalf("snapshot frames from clients must be rejected")
	}
}

func TestWhiteboardSweepPersists(t *testing.T) {
	ctx := context.Background()
	st := wbStore()
	w := NewWhiteboard(st, st, time.Hour)
	attachWB(t, w, "s1")

	if err := w.HandleMessage("7", "s1", updateFrame("r1", "rect")); err != nil {
		t.Fatalf("update: %v", err)
	}
	w.Sweep(ctx)

	raw, err := st.LoadDocumentSnapshot(ctx, "7")
	if err != nil || raw == nil {
		t.Fatalf("expected persisted snapshot, got %v %v", raw, err)
	}
	var snap struct {
		Records map[string]json.RawMessage `json:"records"`
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("bad snapshot: %v", err)
	}
	if _, ok := snap.Records["r1"]; !ok {
		t.Fatalf("snapshot missing record, got %v", snap.Records)
	}

	// A clean session is not rewritten.
	if err := st.SaveDocumentSnapshot(ctx, "7", json.RawMessage(`{"records":{}}`)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	w.Sweep(ctx)
	raw, _ = st.LoadDocumentSnapshot(ctx, "7")
	if string(raw) != `{"records":{}}` {
		t.Fatalf("clean sweep must not rewrite, got %s", raw)
	}
}

func TestWhiteboardSweepRetriesAfterWriteFailure(t *testing.T) {
	ctx := context.Background()
	docs := &failingDocs{Memory: wbStore(), failSave: true}
	w := NewWhiteboard(docs.Memory, docs, time.Hour)
	attachWB(t, w, "s1")

	if err := w.HandleMessage("7", "s1", updateFrame("r1", "rect")); err != nil {
		t.Fatalf("update: %v", err)
	}

	w.Sweep(ctx)
	if raw, _ := docs.Memory.LoadDocumentSnapshot(ctx, "7"); raw != nil {
		t.Fatalf("failed write must not persist, got %s", raw)
	}

	docs.failSave = false
	w.Sweep(ctx)
	raw, _ := docs.Memory.LoadDocumentSnapshot(ctx, "7")
	if raw == nil {
		t.Fatalf("expected retry to persist the dirty session")
	}
}

func TestWhiteboardLastDetachClosesAndFlushes(t *testing.T) {
	ctx := context.Background()
	st := wbStore()
	w := NewWhiteboard(st, st, time.Hour)
	conn1 := attachWB(t, w, "s1")

	if err := w.HandleMessage("7", "s1", updateFrame("r1", "rect")); err != nil {
		t.Fatalf("update: %v", err)
	}
	w.Detach(ctx, "7", "s1", conn1)

	// The final flush lands without waiting for a sweep.
	raw, _ := st.LoadDocumentSnapshot(ctx, "7")
	if raw == nil {
		t.Fatalf("expected final flush on close")
	}
	if err := w.HandleMessage("7", "s1", updateFrame("r2", "line")); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("closed session must not accept mutations, got %v", err)
	}

	// Reconnect reloads the flushed document.
	conn2 := attachWB(t, w, "s1")
	snaps := conn2.eventsOf("snapshot")
	if len(snaps) != 1 {
		t.Fatalf("expected snapshot on re-attach, got %d", len(snaps))
	}
	recs := snaps[0]["records"].(map[string]any)
	if _, ok := recs["r1"]; !ok {
		t.Fatalf("re-attach must see persisted state, got %v", recs)
	}
}

func TestWhiteboardResumeReplacesSocket(t *testing.T) {
	ctx := context.Background()
	st := wbStore()
	w := NewWhiteboard(st, st, time.Hour)
	conn1 := attachWB(t, w, "s1")
	conn2 := attachWB(t, w, "s2")

	// Same logical session reconnects on a new transport.
	conn1b := attachWB(t, w, "s1")
	conn1.mu.Lock()
	oldClosed := conn1.closed
	conn1.mu.Unlock()
	if !oldClosed {
		t.Fatalf("replaced socket must be closed")
	}

	// The old transport's teardown must not evict the replacement.
	w.Detach(ctx, "7", "s1", conn1)

	if err := w.HandleMessage("7", "s2", updateFrame("r1", "rect")); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := len(conn1b.eventsOf("update")); got != 1 {
		t.Fatalf("resumed socket must stay attached, got %d updates", got)
	}
	if got := len(conn2.eventsOf("update")); got != 0 {
		t.Fatalf("originator must not be echoed, got %d updates", got)
	}
}

func TestWhiteboardSweepDropsClosedSessions(t *testing.T) {
	ctx := context.Background()
	st := wbStore()
	w := NewWhiteboard(st, st, time.Hour)
	conn := attachWB(t, w, "s1")

	w.Detach(ctx, "7", "s1", conn)
	w.Sweep(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.sessions) != 0 {
		t.Fatalf("expected closed session to be dropped, have %d", len(w.sessions))
	}
}
