package app

import (
	"errors"

	"github.com/SnProjects/snooze/internal/store"
)

// Validation errors reject the specific request; the connection stays open.
var (
	ErrChannelNotFound      = store.ErrChannelNotFound
	ErrNotVoiceChannel      = errors.New("channel is not a voice channel")
	ErrNotWhiteboardChannel = errors.New("channel is not a whiteboard channel")
	ErrNotAMember           = errors.New("user is not a member of this server")
	ErrNotConnected         = errors.New("session is not connected")
	ErrSessionClosed        = errors.New("document session is closed")
)

// ErrorCode maps a rejection to the wire error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrChannelNotFound):
		return "channel-not-found"
	case errors.Is(err, ErrNotVoiceChannel), errors.Is(err, ErrNotWhiteboardChannel):
		return "wrong-channel-type"
	case errors.Is(err, ErrNotAMember):
		return "not-a-member"
	case errors.Is(err, ErrNotConnected):
		return "not-connected"
	default:
		return "internal"
	}
}
