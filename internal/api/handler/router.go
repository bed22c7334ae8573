package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter wires every route. Everything but registration and login
// requires a bearer token.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)

	authed := r.Group("/", h.Auth.Middleware())
	authed.POST("/auth/logout", h.Logout)
	authed.GET("/candidates", h.Candidates)
	authed.GET("/sessions/open", h.OpenSessions)
	authed.GET("/requests", h.ListRequests)
	authed.POST("/requests", h.SendRequest)
	authed.POST("/requests/:from/accept", h.AcceptRequest)
	authed.POST("/requests/:from/decline", h.DeclineRequest)
	authed.GET("/partners", h.ListPartners)
	authed.GET("/blind/received", h.ReceivedBlind)
	authed.POST("/media", h.UploadImage)
	authed.GET("/ws", h.ServeWebSocket) // WebSocket Upgrade

	return r
}
