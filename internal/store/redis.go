package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/SnProjects/snooze/internal/domain"
)

// Key scheme:
//
//	user:{userId}                    JSON user record
//	member:servers:{userId}          set of serverIds
//	member:channels:{userId}:{sid}   set of channelIds within that server
//	channel:{channelId}              JSON channel record
//	vc:active:{userId}               "{serverId}:{channelId}" pointer
//	vc:peers:{serverId}:{channelId}  set of userIds
//	wb:snapshot:{channelId}          JSON document snapshot
type Redis struct {
	rdb *redis.Client
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Redis{rdb: rdb}, nil
}

func (s *Redis) Close() error { return s.rdb.Close() }

func userKey(id domain.UserID) string        { return "user:" + string(id) }
func serversKey(id domain.UserID) string     { return "member:servers:" + string(id) }
func channelKey(id domain.ChannelID) string  { return "channel:" + string(id) }
func activeVCKey(id domain.UserID) string    { return "vc:active:" + string(id) }
func snapshotKey(id domain.ChannelID) string { return "wb:snapshot:" + string(id) }

func memberChannelsKey(userID domain.UserID, serverID domain.ServerID) string {
	return fmt.Sprintf("member:channels:%s:%s", userID, serverID)
}

func peersKey(serverID domain.ServerID, channelID domain.ChannelID) string {
	return fmt.Sprintf("vc:peers:%s:%s", serverID, channelID)
}

func (s *Redis) GetUser(ctx context.Context, userID domain.UserID) (*domain.User, error) {
	data, err := s.rdb.Get(ctx, userKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	var u domain.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("parse user %s: %w", userID, err)
	}
	return &u, nil
}

func (s *Redis) LoadMemberships(ctx context.Context, userID domain.UserID) ([]domain.ServerMembership, error) {
	serverIDs, err := s.rdb.SMembers(ctx, serversKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load memberships for %s: %w", userID, err)
	}
	out := make([]domain.ServerMembership, 0, len(serverIDs))
	for _, sid := range serverIDs {
		serverID := domain.ServerID(sid)
		channels, err := s.rdb.SMembers(ctx, memberChannelsKey(userID, serverID)).Result()
		if err != nil {
			return nil, fmt.Errorf("load channels for %s in %s: %w", userID, serverID, err)
		}
		m := domain.ServerMembership{ServerID: serverID, Channels: make([]domain.ChannelID, 0, len(channels))}
		for _, ch := range channels {
			m.Channels = append(m.Channels, domain.ChannelID(ch))
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Redis) IsServerMember(ctx context.Context, userID domain.UserID, serverID domain.ServerID) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, serversKey(userID), string(serverID)).Result()
	if err != nil {
		return false, fmt.Errorf("membership check for %s in %s: %w", userID, serverID, err)
	}
	return ok, nil
}

func (s *Redis) GetChannel(ctx context.Context, channelID domain.ChannelID) (*domain.Channel, error) {
	data, err := s.rdb.Get(ctx, channelKey(channelID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrChannelNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get channel %s: %w", channelID, err)
	}
	var ch domain.Channel
	if err := json.Unmarshal(data, &ch); err != nil {
		return nil, fmt.Errorf("parse channel %s: %w", channelID, err)
	}
	return &ch, nil
}

func (s *Redis) GetActiveVoiceChannel(ctx context.Context, userID domain.UserID) (*domain.VoiceMembership, error) {
	val, err := s.rdb.Get(ctx, activeVCKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active vc for %s: %w", userID, err)
	}
	vm, ok := parsePointer(userID, val)
	if !ok {
		return nil, fmt.Errorf("corrupt active vc pointer for %s: %q", userID, val)
	}
	return vm, nil
}

func (s *Redis) SetActiveVoiceChannel(ctx context.Context, userID domain.UserID, serverID domain.ServerID, channelID domain.ChannelID) error {
	old, err := s.GetActiveVoiceChannel(ctx, userID)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	if old != nil {
		pipe.SRem(ctx, peersKey(old.ServerID, old.ChannelID), string(userID))
	}
	pipe.Set(ctx, activeVCKey(userID), fmt.Sprintf("%s:%s", serverID, channelID), 0)
	pipe.SAdd(ctx, peersKey(serverID, channelID), string(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set active vc for %s: %w", userID, err)
	}
	return nil
}

func (s *Redis) ClearActiveVoiceChannel(ctx context.Context, userID domain.UserID) error {
	old, err := s.GetActiveVoiceChannel(ctx, userID)
	if err != nil {
		return err
	}
	if old == nil {
		return nil
	}
	pipe := s.rdb.TxPipeline()
	pipe.SRem(ctx, peersKey(old.ServerID, old.ChannelID), string(userID))
	pipe.Del(ctx, activeVCKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("clear active vc for %s: %w", userID, err)
	}
	return nil
}

func (s *Redis) VoicePeers(ctx context.Context, serverID domain.ServerID, channelID domain.ChannelID) ([]domain.Peer, error) {
	ids, err := s.rdb.SMembers(ctx, peersKey(serverID, channelID)).Result()
	if err != nil {
		return nil, fmt.Errorf("voice peers of %s/%s: %w", serverID, channelID, err)
	}
	peers := make([]domain.Peer, 0, len(ids))
	for _, id := range ids {
		userID := domain.UserID(id)
		u, err := s.GetUser(ctx, userID)
		if errors.Is(err, ErrUserNotFound) {
			// Deleted account still listed in the peer set; show the id.
			peers = append(peers, domain.Peer{ID: userID, Username: id})
			continue
		}
		if err != nil {
			return nil, err
		}
		peers = append(peers, domain.Peer{ID: u.ID, Username: u.Username})
	}
	return peers, nil
}

func parsePointer(userID domain.UserID, val string) (*domain.VoiceMembership, bool) {
	for i := 0; i < len(val); i++ {
		if val[i] == ':' {
			return &domain.VoiceMembership{
				UserID:    userID,
				ServerID:  domain.ServerID(val[:i]),
				ChannelID: domain.ChannelID(val[i+1:]),
			}, true
		}
	}
	return nil, false
}

func (s *Redis) LoadDocumentSnapshot(ctx context.Context, channelID domain.ChannelID) (json.RawMessage, error) {
	data, err := s.rdb.Get(ctx, snapshotKey(channelID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot for %s: %w", channelID, err)
	}
	return json.RawMessage(data), nil
}

func (s *Redis) SaveDocumentSnapshot(ctx context.Context, channelID domain.ChannelID, snapshot json.RawMessage) error {
	if err := s.rdb.Set(ctx, snapshotKey(channelID), []byte(snapshot), 0).Err(); err != nil {
		return fmt.Errorf("save snapshot for %s: %w", channelID, err)
	}
	return nil
}
