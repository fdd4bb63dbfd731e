package store

import (
	"context"
	"errors"
	"testing"

	"github.com/SnProjects/snooze/internal/domain"
)

func seeded() *Memory {
	s := NewMemory()
	s.AddUser(domain.User{ID: "a", Username: "alice"})
	s.AddUser(domain.User{ID: "b", Username: "bob"})
	s.AddChannel(domain.Channel{ID: "5", ServerID: "10", Kind: domain.ChannelVoice, Name: "general"})
	s.AddChannel(domain.Channel{ID: "6", ServerID: "10", Kind: domain.ChannelVoice, Name: "gaming"})
	s.AddServerMember("a", "10", "5", "6")
	s.AddServerMember("b", "10", "5", "6")
	return s
}

func TestActiveVoicePointerIsSingle(t *testing.T) {
	ctx := context.Background()
	s := seeded()

	if err := s.SetActiveVoiceChannel(ctx, "a", "10", "5"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.SetActiveVoiceChannel(ctx, "a", "10", "6"); err != nil {
		t.Fatalf("set: %v", err)
	}

	vm, err := s.GetActiveVoiceChannel(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if vm == nil || vm.ChannelID != "6" {
		t.Fatalf("expected pointer at channel 6, got %+v", vm)
	}

	// The old channel's peer set must not keep the user.
	peers, err := s.VoicePeers(ctx, "10", "5")
	if err != nil {
		t.Fatalf("peers: %v", err)
	}
	if len(peers) != 0 {
		t.Fatalf("expected user moved out of channel 5, got %+v", peers)
	}
	peers, _ = s.VoicePeers(ctx, "10", "6")
	if len(peers) != 1 || peers[0].Username != "alice" {
		t.Fatalf("expected alice in channel 6, got %+v", peers)
	}
}

func TestClearActiveVoiceChannel(t *testing.T) {
	ctx := context.Background()
	s := seeded()

	if err := s.ClearActiveVoiceChannel(ctx, "a"); err != nil {
		t.Fatalf("clearing with no pointer must be a no-op, got %v", err)
	}

	_ = s.SetActiveVoiceChannel(ctx, "a", "10", "5")
	if err := s.ClearActiveVoiceChannel(ctx, "a"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	vm, _ := s.GetActiveVoiceChannel(ctx, "a")
	if vm != nil {
		t.Fatalf("expected cleared pointer, got %+v", vm)
	}
	peers, _ := s.VoicePeers(ctx, "10", "5")
	if len(peers) != 0 {
		t.Fatalf("expected empty peer set, got %+v", peers)
	}
}

func TestGetChannelNotFound(t *testing.T) {
	s := seeded()
	if _, err := s.GetChannel(context.Background(), "missing"); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("expected ErrChannelNotFound, got %v", err)
	}
}

func TestLoadMemberships(t *testing.T) {
	s := seeded()
	ms, err := s.LoadMemberships(context.Background(), "a")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(ms) != 1 || ms[0].ServerID != "10" || len(ms[0].Channels) != 2 {
		t.Fatalf("unexpected memberships: %+v", ms)
	}

	ok, err := s.IsServerMember(context.Background(), "a", "10")
	if err != nil || !ok {
		t.Fatalf("expected membership, got %v %v", ok, err)
	}
	ok, _ = s.IsServerMember(context.Background(), "a", "99")
	if ok {
		t.Fatalf("unexpected membership in server 99")
	}
}

func TestDocumentSnapshotRoundtrip(t *testing.T) {
	ctx := context.Background()
	s := seeded()

	snap, err := s.LoadDocumentSnapshot(ctx, "7")
	if err != nil || snap != nil {
		t.Fatalf("expected no snapshot, got %s %v", snap, err)
	}

	if err := s.SaveDocumentSnapshot(ctx, "7", []byte(`{"records":{}}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	snap, err = s.LoadDocumentSnapshot(ctx, "7")
	if err != nil || string(snap) != `{"records":{}}` {
		t.Fatalf("unexpected snapshot: %s %v", snap, err)
	}
}
