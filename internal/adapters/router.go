package adapters

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"

	"github.com/SnProjects/snooze/internal/auth"
	"github.com/SnProjects/snooze/internal/config"
	"github.com/SnProjects/snooze/internal/core"
	"github.com/SnProjects/snooze/internal/domain"
)

// SetupRouter wires the HTTP surface: health, room listing, RTC config
// for clients, and the two websocket endpoints.
func SetupRouter(cfg *config.Config, rooms *core.Registry, voice *VoiceController, board *WhiteboardController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(OriginFilter(cfg.AllowedOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, rooms.List())
	})
	api.GET("/rooms/:key/peers", func(c *gin.Context) {
		peers := rooms.MembersSnapshot(domain.RoomKey(c.Param("key")))
		if peers == nil {
			peers = []domain.Peer{}
		}
		c.JSON(http.StatusOK, peers)
	})
	api.GET("/voice/rtc-config", rtcConfig(cfg))
	if cfg.Mode == "debug" {
		api.POST("/auth/dev-token", devToken(cfg.JWTSecret))
	}

	ws := r.Group("/ws")
	ws.GET("/voice", voice.Handle)
	ws.GET("/whiteboard", board.Handle)

	return r
}

// rtcConfig hands clients the ICE servers to negotiate with; media flows
// peer-to-peer, the server never terminates it.
func rtcConfig(cfg *config.Config) gin.HandlerFunc {
	rtc := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: cfg.ICEServers}},
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, rtc)
	}
}

// devToken issues a signed credential for local development. Only mounted
// in debug mode; production tokens come from the account backend.
func devToken(secret string) gin.HandlerFunc {
	type request struct {
		UserID   string `json:"userId" binding:"required"`
		Username string `json:"username"`
	}
	return func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		if req.Username == "" {
			req.Username = req.UserID
		}
		token, err := auth.IssueToken(secret, domain.UserID(req.UserID), req.Username, 24*time.Hour)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign token"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "userId": req.UserID})
	}
}
