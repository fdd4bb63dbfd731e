package core

import (
	"errors"

	"github.com/SnProjects/snooze/internal/domain"
)

// Frame is a raw encoded message payload.
type Frame []byte

// SessionID identifies one live connection. Opaque, unique per connection.
type SessionID string

// ErrNoSuchSession is returned by direct sends when the target session is
// no longer a member. Callers log and move on; frames are never queued.
var ErrNoSuchSession = errors.New("no such session in room")

// SignalConnection abstracts the messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// MemberSession binds an authenticated user and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	User() *domain.User
	Signal() SignalConnection
}

type memberSession struct {
	user *domain.User
	conn SignalConnection
}

func NewMemberSession(user *domain.User, conn SignalConnection) MemberSession {
	return &memberSession{user: user, conn: conn}
}

func (m *memberSession) User() *domain.User       { return m.user }
func (m *memberSession) Signal() SignalConnection { return m.conn }

// PublishResult reports delivery stats/backpressure to the caller.
type PublishResult struct {
	SentTo  int
	Dropped int
}

type RoomInfo struct {
	Key         domain.RoomKey `json:"key"`
	MemberCount int            `json:"member_count"`
}
