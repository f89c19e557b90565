package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/scentmatch/scentmatch/internal/cache"
	"github.com/scentmatch/scentmatch/internal/interfaces"
	"github.com/scentmatch/scentmatch/internal/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Server bundles the HTTP surface over the core services.
type Server struct {
	matching      interfaces.MatchingServiceInterface
	conversations interfaces.ConversationServiceInterface
	scents        interfaces.ScentServiceInterface
	redis         *cache.RedisService
	router        *gin.Engine
}

// Options carries the dependencies for a Server. Redis is optional.
type Options struct {
	Matching      interfaces.MatchingServiceInterface
	Conversations interfaces.ConversationServiceInterface
	Scents        interfaces.ScentServiceInterface
	Redis         *cache.RedisService
}

// New builds the router with tracing, request logging, and error handling
// applied to every route.
func New(opts Options) *Server {
	s := &Server{
		matching:      opts.Matching,
		conversations: opts.Conversations,
		scents:        opts.Scents,
		redis:         opts.Redis,
	}

	router := gin.New()
	router.Use(otelgin.Middleware("scentmatch-core"))
	router.Use(middleware.RequestLogging(nil))
	router.Use(middleware.ErrorHandler())

	router.GET("/health", s.handleHealth)

	api := router.Group("/api/v1")
	{
		api.POST("/likes", s.handleLike)
		api.POST("/passes", s.handlePass)

		api.GET("/matches", s.handleGetMatches)
		api.GET("/matches/stats", s.handleGetStats)
		api.GET("/matches/:id", s.handleGetMatch)
		api.DELETE("/matches/:id", s.handleUnmatch)

		api.POST("/matches/:id/messages", s.handleSendMessage)
		api.GET("/matches/:id/messages", s.handleGetMessages)
		api.POST("/matches/:id/read", s.handleMarkRead)

		api.GET("/conversations", s.handleGetConversations)
		api.GET("/messages/unread-count", s.handleUnreadCount)

		api.GET("/profile", s.handleGetProfile)
		api.PUT("/profile", s.handleSaveProfile)
		api.GET("/compatibility/:user_id", s.handleCompatibility)
	}

	s.router = router
	return s
}

// Handler exposes the router for an http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	status := gin.H{
		"status":  "healthy",
		"service": "scentmatch-core",
	}
	if s.redis != nil {
		if s.redis.HealthCheck(c.Request.Context()) {
			status["cache"] = "up"
		} else {
			status["cache"] = "down"
		}
	}
	c.JSON(http.StatusOK, status)
}
