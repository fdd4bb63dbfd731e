package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/SnProjects/snooze/internal/domain"
)

// Memory is a map-backed store for tests and for running the gateway
// without a redis (debug mode). Safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	users     map[domain.UserID]domain.User
	servers   map[domain.UserID]map[domain.ServerID][]domain.ChannelID
	channels  map[domain.ChannelID]domain.Channel
	active    map[domain.UserID]domain.VoiceMembership
	peers     map[string]map[domain.UserID]struct{}
	snapshots map[domain.ChannelID]json.RawMessage
}

func NewMemory() *Memory {
	return &Memory{
		users:     make(map[domain.UserID]domain.User),
		servers:   make(map[domain.UserID]map[domain.ServerID][]domain.ChannelID),
		channels:  make(map[domain.ChannelID]domain.Channel),
		active:    make(map[domain.UserID]domain.VoiceMembership),
		peers:     make(map[string]map[domain.UserID]struct{}),
		snapshots: make(map[domain.ChannelID]json.RawMessage),
	}
}

// AddUser seeds a user record.
func (s *Memory) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// AddChannel seeds a channel record.
func (s *Memory) AddChannel(ch domain.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[ch.ID] = ch
}

// AddServerMember seeds a server membership for a user.
func (s *Memory) AddServerMember(userID domain.UserID, serverID domain.ServerID, channels ...domain.ChannelID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byServer, ok := s.servers[userID]
	if !ok {
		byServer = make(map[domain.ServerID][]domain.ChannelID)
		s.servers[userID] = byServer
	}
	byServer[serverID] = append(byServer[serverID], channels...)
}

func (s *Memory) GetUser(_ context.Context, userID domain.UserID) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &u, nil
}

func (s *Memory) LoadMemberships(_ context.Context, userID domain.UserID) ([]domain.ServerMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ServerMembership, 0, len(s.servers[userID]))
	for serverID, channels := range s.servers[userID] {
		out = append(out, domain.ServerMembership{ServerID: serverID, Channels: append([]domain.ChannelID(nil), channels...)})
	}
	return out, nil
}

func (s *Memory) IsServerMember(_ context.Context, userID domain.UserID, serverID domain.ServerID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.servers[userID][serverID]
	return ok, nil
}

func (s *Memory) GetChannel(_ context.Context, channelID domain.ChannelID) (*domain.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[channelID]
	if !ok {
		return nil, ErrChannelNotFound
	}
	return &ch, nil
}

func (s *Memory) GetActiveVoiceChannel(_ context.Context, userID domain.UserID) (*domain.VoiceMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vm, ok := s.active[userID]
	if !ok {
		return nil, nil
	}
	return &vm, nil
}

func (s *Memory) SetActiveVoiceChannel(_ context.Context, userID domain.UserID, serverID domain.ServerID, channelID domain.ChannelID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.active[userID]; ok {
		delete(s.peers[memPeersKey(old.ServerID, old.ChannelID)], userID)
	}
	s.active[userID] = domain.VoiceMembership{UserID: userID, ServerID: serverID, ChannelID: channelID}
	key := memPeersKey(serverID, channelID)
	if s.peers[key] == nil {
		s.peers[key] = make(map[domain.UserID]struct{})
	}
	s.peers[key][userID] = struct{}{}
	return nil
}

func (s *Memory) ClearActiveVoiceChannel(_ context.Context, userID domain.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.active[userID]
	if !ok {
		return nil
	}
	delete(s.peers[memPeersKey(old.ServerID, old.ChannelID)], userID)
	delete(s.active, userID)
	return nil
}

func (s *Memory) VoicePeers(_ context.Context, serverID domain.ServerID, channelID domain.ChannelID) ([]domain.Peer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.peers[memPeersKey(serverID, channelID)]
	peers := make([]domain.Peer, 0, len(set))
	for id := range set {
		if u, ok := s.users[id]; ok {
			peers = append(peers, domain.Peer{ID: u.ID, Username: u.Username})
			continue
		}
		peers = append(peers, domain.Peer{ID: id, Username: string(id)})
	}
	return peers, nil
}

func (s *Memory) LoadDocumentSnapshot(_ context.Context, channelID domain.ChannelID) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[channelID]
	if !ok {
		return nil, nil
	}
	return append(json.RawMessage(nil), snap...), nil
}

func (s *Memory) SaveDocumentSnapshot(_ context.Context, channelID domain.ChannelID, snapshot json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[channelID] = append(json.RawMessage(nil), snapshot...)
	return nil
}

func memPeersKey(serverID domain.ServerID, channelID domain.ChannelID) string {
	return string(serverID) + ":" + string(channelID)
}
