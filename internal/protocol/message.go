// Package protocol defines the realtime wire messages as a tagged union of
// known kinds. Unrecognized tags are rejected at decode time instead of
// being passed through untyped.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/SnProjects/snooze/internal/domain"
)

type Kind string

const (
	// Client to server.
	KindJoinVoice    Kind = "join-voice-channel"
	KindLeaveVoice   Kind = "leave-voice-channel"
	KindOffer        Kind = "offer"
	KindAnswer       Kind = "answer"
	KindICECandidate Kind = "ice-candidate"

	// Server to clients.
	KindUserJoined   Kind = "user-joined"
	KindUserLeft     Kind = "user-left"
	KindVCUserJoined Kind = "vc-user-joined"
	KindVCUserLeft   Kind = "vc-user-left"
	KindReady        Kind = "ready"
	KindError        Kind = "error"
)

// ErrUnknownKind reports a tag outside the union.
type ErrUnknownKind struct{ Kind Kind }

func (e ErrUnknownKind) Error() string { return fmt.Sprintf("unknown message kind %q", e.Kind) }

// Message is one decoded client message.
type Message interface{ kind() Kind }

type JoinVoice struct {
	ServerID  domain.ServerID  `json:"serverId"`
	ChannelID domain.ChannelID `json:"channelId"`
	UserID    domain.UserID    `json:"userId"`
}

type LeaveVoice struct {
	ServerID  domain.ServerID  `json:"serverId"`
	ChannelID domain.ChannelID `json:"channelId"`
	UserID    domain.UserID    `json:"userId"`
}

// Signal carries one WebRTC negotiation blob between two peers. The
// payload is never interpreted here.
type Signal struct {
	Kind       Kind
	ServerID   domain.ServerID
	ChannelID  domain.ChannelID
	Payload    json.RawMessage
	FromUserID domain.UserID
	ToUserID   domain.UserID
}

func (JoinVoice) kind() Kind  { return KindJoinVoice }
func (LeaveVoice) kind() Kind { return KindLeaveVoice }
func (s Signal) kind() Kind   { return s.Kind }

// payloadField names the kind-specific blob field on the wire:
// offers arrive as {"type":"offer","offer":{...},...} and so on.
func payloadField(k Kind) string {
	switch k {
	case KindOffer:
		return "offer"
	case KindAnswer:
		return "answer"
	default:
		return "candidate"
	}
}

// Decode parses one client frame into its typed message.
func Decode(data []byte) (Message, error) {
	var env struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("bad message envelope: %w", err)
	}

	switch env.Type {
	case KindJoinVoice:
		var m JoinVoice
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("bad %s payload: %w", env.Type, err)
		}
		return m, nil
	case KindLeaveVoice:
		var m LeaveVoice
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("bad %s payload: %w", env.Type, err)
		}
		return m, nil
	case KindOffer, KindAnswer, KindICECandidate:
		var raw struct {
			ServerID   domain.ServerID  `json:"serverId"`
			ChannelID  domain.ChannelID `json:"channelId"`
			FromUserID domain.UserID    `json:"fromUserId"`
			ToUserID   domain.UserID    `json:"toUserId"`
			Offer      json.RawMessage  `json:"offer"`
			Answer     json.RawMessage  `json:"answer"`
			Candidate  json.RawMessage  `json:"candidate"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("bad %s payload: %w", env.Type, err)
		}
		m := Signal{
			Kind:       env.Type,
			ServerID:   raw.ServerID,
			ChannelID:  raw.ChannelID,
			FromUserID: raw.FromUserID,
			ToUserID:   raw.ToUserID,
		}
		switch env.Type {
		case KindOffer:
			m.Payload = raw.Offer
		case KindAnswer:
			m.Payload = raw.Answer
		default:
			m.Payload = raw.Candidate
		}
		return m, nil
	default:
		return nil, ErrUnknownKind{Kind: env.Type}
	}
}
