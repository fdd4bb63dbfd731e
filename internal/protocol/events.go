package protocol

import (
	"encoding/json"

	"github.com/SnProjects/snooze/internal/domain"
)

// Server-side event builders. Frames are pre-encoded once per broadcast.

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// Only reachable with unmarshalable fields, which these builders
		// never accept.
		panic(err)
	}
	return b
}

// Ready acknowledges a verified handshake.
func Ready(userID domain.UserID) []byte {
	return mustMarshal(struct {
		Type   Kind          `json:"type"`
		UserID domain.UserID `json:"userId"`
	}{KindReady, userID})
}

// UserJoined goes to the voice room when a peer joins it.
func UserJoined(userID domain.UserID) []byte {
	return mustMarshal(struct {
		Type   Kind          `json:"type"`
		UserID domain.UserID `json:"userId"`
	}{KindUserJoined, userID})
}

// UserLeft goes to the voice room when a peer leaves it.
func UserLeft(userID domain.UserID) []byte {
	return mustMarshal(struct {
		Type   Kind          `json:"type"`
		UserID domain.UserID `json:"userId"`
	}{KindUserLeft, userID})
}

// VCUserJoined carries the committed peer list to the server's updates room.
func VCUserJoined(channelID domain.ChannelID, peers []domain.Peer) []byte {
	return vcEvent(KindVCUserJoined, channelID, peers)
}

func VCUserLeft(channelID domain.ChannelID, peers []domain.Peer) []byte {
	return vcEvent(KindVCUserLeft, channelID, peers)
}

func vcEvent(kind Kind, channelID domain.ChannelID, peers []domain.Peer) []byte {
	if peers == nil {
		peers = []domain.Peer{}
	}
	return mustMarshal(struct {
		Type      Kind             `json:"type"`
		ChannelID domain.ChannelID `json:"channelId"`
		Peers     []domain.Peer    `json:"peers"`
	}{kind, channelID, peers})
}

// SignalEvent re-tags a relayed negotiation blob for the room broadcast.
// Receivers inspect toUserId and ignore payloads not addressed to them.
func SignalEvent(s Signal) []byte {
	out := map[string]any{
		"type":       s.Kind,
		"fromUserId": s.FromUserID,
		"toUserId":   s.ToUserID,
	}
	out[payloadField(s.Kind)] = s.Payload
	return mustMarshal(out)
}

// ErrorEvent is a per-request rejection; the connection stays open.
func ErrorEvent(code, message string) []byte {
	return mustMarshal(struct {
		Type    Kind   `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}{KindError, code, message})
}
