// Package store is the persistence boundary of the realtime gateway: the
// durable membership view that in-memory room state must converge with,
// plus whiteboard document snapshots.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/SnProjects/snooze/internal/domain"
)

var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrUserNotFound    = errors.New("user not found")
)

// MembershipStore is the single source of truth for server memberships and
// "whose voice channel is active". In-memory room membership is a derived
// cache reconstructed from it on restart.
type MembershipStore interface {
	GetUser(ctx context.Context, userID domain.UserID) (*domain.User, error)
	LoadMemberships(ctx context.Context, userID domain.UserID) ([]domain.ServerMembership, error)
	IsServerMember(ctx context.Context, userID domain.UserID, serverID domain.ServerID) (bool, error)
	GetChannel(ctx context.Context, channelID domain.ChannelID) (*domain.Channel, error)

	// GetActiveVoiceChannel returns nil when the user is in no voice channel.
	GetActiveVoiceChannel(ctx context.Context, userID domain.UserID) (*domain.VoiceMembership, error)
	// SetActiveVoiceChannel overwrites the user's active-voice pointer and
	// moves the user between the channels' peer sets in one step.
	SetActiveVoiceChannel(ctx context.Context, userID domain.UserID, serverID domain.ServerID, channelID domain.ChannelID) error
	// ClearActiveVoiceChannel drops the pointer and the peer-set entry.
	// Clearing an absent pointer is a no-op.
	ClearActiveVoiceChannel(ctx context.Context, userID domain.UserID) error
	VoicePeers(ctx context.Context, serverID domain.ServerID, channelID domain.ChannelID) ([]domain.Peer, error)
}

// DocumentStore persists whiteboard snapshots. A snapshot is an opaque
// JSON blob to this layer.
type DocumentStore interface {
	// LoadDocumentSnapshot returns nil when no snapshot has been written.
	LoadDocumentSnapshot(ctx context.Context, channelID domain.ChannelID) (json.RawMessage, error)
	SaveDocumentSnapshot(ctx context.Context, channelID domain.ChannelID, snapshot json.RawMessage) error
}
