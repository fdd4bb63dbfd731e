package adapters

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/SnProjects/snooze/internal/app"
	"github.com/SnProjects/snooze/internal/auth"
	"github.com/SnProjects/snooze/internal/config"
	"github.com/SnProjects/snooze/internal/domain"
)

// WhiteboardController connects sockets to whiteboard document sessions.
// The handshake carries channelId, sessionId and token as query
// parameters; every validation failure closes the socket with a policy
// close code and a reason instead of a generic drop.
type WhiteboardController struct {
	verifier auth.Verifier
	board    *app.Whiteboard
	cfg      *config.Config
}

func NewWhiteboardController(verifier auth.Verifier, board *app.Whiteboard, cfg *config.Config) *WhiteboardController {
	return &WhiteboardController{verifier: verifier, board: board, cfg: cfg}
}

func (ctl *WhiteboardController) Handle(c *gin.Context) {
	channelID := domain.ChannelID(c.Query("channelId"))
	sessionID := c.Query("sessionId")
	token := c.Query("token")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Str("module", "adapters.whiteboard").Err(err).Msg("upgrade failed")
		return
	}
	conn := newWSConn(ws)
	go conn.writePump(ctl.cfg.PingPeriod, ctl.cfg.WriteTimeout)

	if channelID == "" || sessionID == "" || token == "" {
		conn.closeWith(websocket.ClosePolicyViolation, "missing required query parameters")
		return
	}
	if _, err := ctl.verifier.Verify(c.Request.Context(), token); err != nil {
		log.Warn().Str("module", "adapters.whiteboard").Str("channel", string(channelID)).Msg("rejected connection: bad credential")
		conn.closeWith(websocket.ClosePolicyViolation, "invalid token")
		return
	}

	if err := ctl.board.Attach(c.Request.Context(), channelID, sessionID, conn); err != nil {
		if errors.Is(err, app.ErrChannelNotFound) || errors.Is(err, app.ErrNotWhiteboardChannel) {
			conn.closeWith(websocket.ClosePolicyViolation, "invalid channel")
		} else {
			log.Error().Str("module", "adapters.whiteboard").Str("channel", string(channelID)).Err(err).Msg("attach failed")
			conn.closeWith(websocket.CloseInternalServerErr, "attach failed")
		}
		return
	}

	ctl.readPump(channelID, sessionID, conn)
}

func (ctl *WhiteboardController) readPump(channelID domain.ChannelID, sessionID string, conn *wsConn) {
	defer func() {
		ctl.board.Detach(context.Background(), channelID, sessionID, conn)
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
				log.Warn().Str("module", "adapters.whiteboard").Str("channel", string(channelID)).Err(err).Msg("read error")
			}
			return
		}
		if err := ctl.board.HandleMessage(channelID, sessionID, data); err != nil {
			log.Debug().Str("module", "adapters.whiteboard").Str("channel", string(channelID)).Str("session", sessionID).Err(err).Msg("message rejected")
		}
	}
}
