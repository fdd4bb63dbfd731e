package adapters

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/SnProjects/snooze/internal/app"
	"github.com/SnProjects/snooze/internal/auth"
	"github.com/SnProjects/snooze/internal/config"
	"github.com/SnProjects/snooze/internal/core"
	"github.com/SnProjects/snooze/internal/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checking is handled by the router middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// VoiceController drives the voice/presence socket: handshake, the
// per-connection read loop, and dispatch of decoded messages into the
// presence coordinator and the signaling relay.
type VoiceController struct {
	presence *app.Presence
	relay    *app.Relay
	cfg      *config.Config
}

func NewVoiceController(presence *app.Presence, relay *app.Relay, cfg *config.Config) *VoiceController {
	return &VoiceController{presence: presence, relay: relay, cfg: cfg}
}

// credential pulls the bearer token from the query or the Authorization
// header. The credential travels out-of-band of the message stream.
func credential(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	header := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return ""
}

func (ctl *VoiceController) Handle(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Str("module", "adapters.voice").Err(err).Msg("upgrade failed")
		return
	}

	conn := newWSConn(ws)
	sid := core.SessionID(uuid.NewString())
	go conn.writePump(ctl.cfg.PingPeriod, ctl.cfg.WriteTimeout)

	user, err := ctl.presence.Connect(c.Request.Context(), sid, conn, credential(c))
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredential) {
			log.Warn().Str("module", "adapters.voice").Str("sid", string(sid)).Msg("rejected connection: bad credential")
			conn.closeWith(websocket.ClosePolicyViolation, "invalid credential")
		} else {
			log.Error().Str("module", "adapters.voice").Str("sid", string(sid)).Err(err).Msg("handshake failed")
			conn.closeWith(websocket.CloseInternalServerErr, "handshake failed")
		}
		return
	}

	if err := conn.TrySend(protocol.Ready(user.ID)); err != nil {
		log.Debug().Str("module", "adapters.voice").Str("sid", string(sid)).Err(err).Msg("ready frame dropped")
	}
	ctl.readPump(sid, conn)
}

func (ctl *VoiceController) readPump(sid core.SessionID, conn *wsConn) {
	defer func() {
		// Disconnect cleanup always runs, whatever ended the read loop.
		ctl.presence.Disconnect(context.Background(), sid)
		conn.Close()
	}()

	pongWait := ctl.cfg.PingPeriod + ctl.cfg.WriteTimeout
	conn.conn.SetReadLimit(ctl.cfg.ReadLimit)
	_ = conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn().Str("module", "adapters.voice").Str("sid", string(sid)).Err(err).Msg("read error")
			}
			return
		}
		ctl.dispatch(sid, conn, data)
	}
}

func (ctl *VoiceController) dispatch(sid core.SessionID, conn *wsConn, data []byte) {
	ctx := context.Background()

	msg, err := protocol.Decode(data)
	if err != nil {
		var unknown protocol.ErrUnknownKind
		if errors.As(err, &unknown) {
			log.Debug().Str("module", "adapters.voice").Str("sid", string(sid)).Str("kind", string(unknown.Kind)).Msg("ignoring unknown message kind")
			return
		}
		log.Debug().Str("module", "adapters.voice").Str("sid", string(sid)).Err(err).Msg("bad message")
		return
	}

	switch m := msg.(type) {
	case protocol.JoinVoice:
		if err := ctl.presence.JoinVoice(ctx, sid, m.ServerID, m.ChannelID); err != nil {
			ctl.reject(sid, conn, err)
		}
	case protocol.LeaveVoice:
		if err := ctl.presence.LeaveVoice(ctx, sid, m.ServerID, m.ChannelID); err != nil {
			ctl.reject(sid, conn, err)
		}
	case protocol.Signal:
		switch m.Kind {
		case protocol.KindOffer:
			ctl.relay.RelayOffer(m, sid)
		case protocol.KindAnswer:
			ctl.relay.RelayAnswer(m, sid)
		case protocol.KindICECandidate:
			ctl.relay.RelayICECandidate(m, sid)
		}
	}
}

// reject answers a failed request on the same socket; the connection
// stays open.
func (ctl *VoiceController) reject(sid core.SessionID, conn *wsConn, err error) {
	code := app.ErrorCode(err)
	if code == "internal" {
		log.Error().Str("module", "adapters.voice").Str("sid", string(sid)).Err(err).Msg("request failed")
	} else {
		log.Info().Str("module", "adapters.voice").Str("sid", string(sid)).Str("code", code).Msg("request rejected")
	}
	if sendErr := conn.TrySend(protocol.ErrorEvent(code, err.Error())); sendErr != nil {
		log.Debug().Str("module", "adapters.voice").Str("sid", string(sid)).Err(sendErr).Msg("error frame dropped")
	}
}
