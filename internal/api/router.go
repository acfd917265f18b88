package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parley-chat/parley/internal/auth"
	"github.com/parley-chat/parley/internal/middleware"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth          *AuthHandler
	Conversations *ConversationHandler
	Chat          *ChatHandler
	Health        *HealthHandler
}

// NewRouter builds the gin engine: recovery, request logging, and CORS in
// front of every route, then the public endpoints, then everything behind
// bearer auth.
func NewRouter(h Handlers, tokens *auth.Manager, logger *zap.Logger, allowedOrigins string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(allowedOrigins))

	r.GET("/health", h.Health.Check)
	r.POST("/auth/register", h.Auth.Register)
	r.POST("/auth/login", h.Auth.Login)

	authed := r.Group("/", middleware.Auth(tokens))
	{
		authed.GET("/auth/me", h.Auth.Me)
		authed.PUT("/auth/profile", h.Auth.UpdateProfile)

		authed.POST("/conversations", h.Conversations.Create)
		authed.GET("/conversations", h.Conversations.List)
		authed.GET("/conversations/search", h.Conversations.Search)
		authed.GET("/conversations/:id", h.Conversations.Get)
		authed.PUT("/conversations/:id", h.Conversations.Update)
		authed.DELETE("/conversations/:id", h.Conversations.Delete)
		authed.POST("/conversations/:id/messages", h.Conversations.AppendMessage)

		authed.POST("/chat", h.Chat.Chat)
	}

	return r
}
