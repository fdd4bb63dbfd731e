package domain

type (
	ServerID  string
	ChannelID string
)

// ChannelKind values match the persisted channel records.
type ChannelKind string

const (
	ChannelText       ChannelKind = "TEXT"
	ChannelVoice      ChannelKind = "VOICE"
	ChannelWhiteboard ChannelKind = "WHITEBOARD"
)

type Channel struct {
	ID       ChannelID   `json:"id"`
	ServerID ServerID    `json:"serverId"`
	Kind     ChannelKind `json:"kind"`
	Name     string      `json:"name"`
}

// ServerMembership is one entry of a user's server list.
type ServerMembership struct {
	ServerID ServerID    `json:"serverId"`
	Channels []ChannelID `json:"channels"`
}

// VoiceMembership records a user's active voice channel. A user has at
// most one at any time.
type VoiceMembership struct {
	UserID    UserID    `json:"userId"`
	ServerID  ServerID  `json:"serverId"`
	ChannelID ChannelID `json:"channelId"`
}
