package adapters

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/SnProjects/snooze/internal/core"
)

// ErrBackpressure means a member's send buffer is full. The frame is
// dropped for that member only.
var ErrBackpressure = errors.New("send buffer full")

// ErrConnClosed means the frame arrived after the connection shut down.
var ErrConnClosed = errors.New("connection closed")

const sendBufferSize = 64

// wsConn adapts one gorilla connection to core.SignalConnection: a
// buffered send channel drained by writePump, with TrySend dropping
// instead of blocking room broadcasts on a slow reader. The mutex keeps
// late TrySend calls off the closed channel: fanout paths release their
// own locks before sending, so a send can race the teardown.
type wsConn struct {
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan core.Frame
	closed bool
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn, send: make(chan core.Frame, sendBufferSize)}
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
	_ = c.conn.Close()
}

// closeWith sends a close frame with a protocol code and reason before
// tearing the connection down.
func (c *wsConn) closeWith(code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	c.Close()
}

// writePump drains the send buffer and keeps the connection alive with
// pings. It owns all writes to the socket.
func (c *wsConn) writePump(pingPeriod, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Str("module", "adapters.ws").Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
