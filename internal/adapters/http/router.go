// Package http wires the REST signaling surface and the websocket
// notification endpoint onto gin.
package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/drossen/confer/internal/adapters/signal"
	"github.com/drossen/confer/internal/app"
	"github.com/drossen/confer/internal/config"
	"github.com/drossen/confer/internal/notify"
)

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, session *app.Session, notifier *notify.Router) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ConferSessions", store))
	r.Use(ClientTokenMiddleware())

	h := &Handlers{Session: session}

	r.GET("/healthz", h.Health)

	api := r.Group("/api")
	api.GET("/rooms", h.ListRooms)
	api.POST("/join-room", h.JoinRoom)
	api.POST("/create-transport", h.CreateTransport)
	api.POST("/connect-transport", h.ConnectTransport)
	api.POST("/produce", h.Produce)
	api.POST("/consume", h.Consume)
	api.POST("/resume-consumer", h.ResumeConsumer)
	api.POST("/leave", h.Leave)

	ctl := signal.NewNotifyController(session, notifier, cfg)
	api.GET("/ws/notify", func(c *gin.Context) {
		ctl.HandleNotify(ctx, c)
	})

	return r
}
