package routes

import (
	"net/http"
	"time"

	"expense-service/internal/api/handlers"
	"expense-service/internal/api/middleware"
	"expense-service/internal/auth"
	"expense-service/internal/services"
	"expense-service/internal/websocket"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// Dependencies are the wired components the router exposes. Notifications,
// Participants, Presence, Limiter and Metrics may be nil.
type Dependencies struct {
	Gateway        *websocket.Gateway
	Registry       *websocket.Registry
	Verifier       auth.TokenVerifier
	Notifications  *services.NotificationService
	Resources      *services.ResourceBroadcaster
	Participants   handlers.ParticipantLister
	Presence       handlers.PresenceReader
	Limiter        middleware.Limiter
	Metrics        http.Handler
	HealthChecks   []handlers.HealthCheck
	AllowedOrigins []string
}

type Router struct {
	engine              *gin.Engine
	wsHandler           *handlers.WSHandler
	notificationHandler *handlers.NotificationHandler
	resourceHandler     *handlers.ResourceEventHandler
	healthHandler       *handlers.HealthHandler
	metrics             http.Handler
	rateLimitMW         *middleware.RateLimitMiddleware
	authMW              *middleware.AuthMiddleware
}

func NewRouter(deps Dependencies) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	// Add middlewares
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(deps.AllowedOrigins))
	engine.Use(middleware.LogApi("/healthz", "/metrics"))

	r := &Router{
		engine:          engine,
		wsHandler:       handlers.NewWSHandler(deps.Gateway, deps.Registry, deps.Presence),
		resourceHandler: handlers.NewResourceEventHandler(deps.Resources, deps.Participants),
		healthHandler:   handlers.NewHealthHandler(deps.HealthChecks...),
		metrics:         deps.Metrics,
		rateLimitMW:     middleware.NewRateLimitMiddleware(deps.Limiter),
		authMW:          middleware.NewAuthMiddleware(deps.Verifier),
	}
	if deps.Notifications != nil {
		r.notificationHandler = handlers.NewNotificationHandler(deps.Notifications)
	}
	return r
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/healthz", r.healthHandler.Health)
	if r.metrics != nil {
		r.engine.GET("/metrics", gin.WrapH(r.metrics))
	}
	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.engine.Group("/api/v1")

	// Authentication is optional on the upgrade; anonymous sockets may still
	// follow resource and table channels.
	api.GET("/ws",
		r.rateLimitMW.RateLimitIP(30, time.Minute),
		r.wsHandler.HandleWebSocket,
	)
	api.GET("/realtime/stats", r.wsHandler.GetStats)

	// Authenticated routes
	authed := api.Group("/")
	authed.Use(r.authMW.RequireAuth())
	{
		if r.notificationHandler != nil {
			notifications := authed.Group("/notifications")
			notifications.Use(r.rateLimitMW.RateLimit(100, time.Minute))
			{
				notifications.GET("", r.notificationHandler.ListNotifications)
				notifications.POST("", r.authMW.RequireService(), r.notificationHandler.CreateNotification)
				notifications.PATCH("/:id/read", r.notificationHandler.MarkRead)
			}
		}

		if r.wsHandler.HasPresence() {
			authed.GET("/realtime/presence/:userId", r.wsHandler.GetPresence)
		}

		// Only domain services publish resource events.
		resources := authed.Group("/resources")
		resources.Use(r.authMW.RequireService(), r.rateLimitMW.RateLimit(300, time.Minute))
		{
			resources.POST("/:id/events", r.resourceHandler.PublishEvent)
		}
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
