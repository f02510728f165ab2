package http

import (
	"context"
	"net/http"
	"slices"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/Gerondiz/backend-mediasoup/internal/adapters/signal"
	"github.com/Gerondiz/backend-mediasoup/internal/app"
	"github.com/Gerondiz/backend-mediasoup/internal/config"
)

const clientTokenCookie = "ct"

// ClientTokenMiddleware issues a long-lived browser token. The signaling
// layer uses it as the session identifier when a client joins without one.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(clientTokenCookie)
		if token == "" {
			token = uuid.NewString()
			c.SetCookie(clientTokenCookie, token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func corsMiddleware(allowed []string) gin.HandlerFunc {
	allowAll := len(allowed) == 0 || slices.Contains(allowed, "*")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || slices.Contains(allowed, origin)) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// ICEServerLister exposes the ICE servers handed to clients.
type ICEServerLister interface {
	ICEServers() []webrtc.ICEServer
}

func SetupRouter(ctx context.Context, cfg *config.Config, rooms *app.RoomRegistry, ice ICEServerLister, ctl *signal.SignalWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(cfg.AllowedOrigins))

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("sfu_session", store))
	r.Use(ClientTokenMiddleware())

	h := &adminHandlers{rooms: rooms, ice: ice}

	api := r.Group("/api")
	api.GET("/health", h.health)
	api.POST("/create-room", h.createRoom)
	api.POST("/join-room", h.joinRoom)
	api.GET("/rooms", h.listRooms)
	api.GET("/ws", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	r.GET("/router-capabilities", h.routerCapabilities)
	r.GET("/ice-servers", h.iceServers)

	log.Info().Str("module", "adapters.http").Strs("origins", cfg.AllowedOrigins).Msg("router setup")
	return r
}
