package main

// @title           Expense Realtime Service API
// @version         1.0
// @description     Realtime notifications and shared-receipt events over WebSocket
// @host            localhost:8080
// @BasePath        /api/v1
// @schemes         http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"expense-service/internal/api/handlers"
	"expense-service/internal/api/middleware"
	"expense-service/internal/api/routes"
	"expense-service/internal/auth"
	"expense-service/internal/changefeed"
	"expense-service/internal/config"
	"expense-service/internal/database"
	"expense-service/internal/logging"
	"expense-service/internal/metrics"
	"expense-service/internal/repositories/postgres"
	"expense-service/internal/services"
	"expense-service/internal/websocket"

	"github.com/jonboulle/clockwork"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logging.InitLogger(cfg.Log.Level, cfg.Log.Format)
	slog.Info("Starting realtime server")

	clock := clockwork.NewRealClock()
	promReg := metrics.NewRegistry()
	realtimeMetrics := metrics.NewRealtimeMetrics(promReg)
	feed := changefeed.NewFeed()

	registryOpts := []websocket.Option{
		websocket.WithClock(clock),
		websocket.WithMetrics(realtimeMetrics),
		websocket.WithHeartbeat(websocket.HeartbeatConfig{
			Interval:        cfg.Realtime.HeartbeatInterval,
			Timeout:         cfg.Realtime.HeartbeatTimeout,
			JanitorInterval: cfg.Realtime.JanitorInterval,
		}),
	}
	gatewayOpts := []websocket.GatewayOption{websocket.WithChangeSource(feed)}
	var healthChecks []handlers.HealthCheck
	var limiter middleware.Limiter
	var presence handlers.PresenceReader

	// Initialize Redis connection
	var redisClient *database.RedisClient
	if cfg.Redis.Enabled {
		redisClient, err = database.NewRedisConnection(cfg.Redis)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		presenceService := services.NewPresenceService(redisClient, clock)
		registryOpts = append(registryOpts, websocket.WithPresence(presenceService))
		presence = presenceService
		limiter = services.NewRateLimiter(redisClient, clock)
		healthChecks = append(healthChecks, handlers.HealthCheck{Name: "redis", Check: redisClient.Ping})
	}

	registry := websocket.NewRegistry(registryOpts...)
	verifier := auth.NewJWTVerifier(cfg.JWT.Secret)

	deps := routes.Dependencies{
		Registry:       registry,
		Verifier:       verifier,
		Resources:      services.NewResourceBroadcaster(registry, clock),
		Presence:       presence,
		Limiter:        limiter,
		Metrics:        metrics.Handler(promReg),
		AllowedOrigins: cfg.Realtime.AllowedOrigins,
	}

	// Initialize PostgreSQL connection
	if cfg.Database.Enabled {
		db, err := database.NewPostgresConnection(cfg.Database.URI, changefeed.NewGormPlugin(feed))
		if err != nil {
			slog.Error("Failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		sqlDB, err := db.DB()
		if err != nil {
			slog.Error("Failed to get database handle", "error", err)
			os.Exit(1)
		}
		defer sqlDB.Close()

		participants := postgres.NewParticipantRepository(db)
		deps.Participants = participants
		deps.Notifications = services.NewNotificationService(
			postgres.NewNotificationRepository(db),
			services.NewNotificationBroadcaster(registry),
		)
		if cfg.Realtime.RequireResourceAuth {
			gatewayOpts = append(gatewayOpts, websocket.WithResourceAuthorizer(participants))
		}
		healthChecks = append(healthChecks, handlers.HealthCheck{Name: "postgres", Check: sqlDB.PingContext})
	} else if cfg.Realtime.RequireResourceAuth {
		slog.Warn("Resource authorization requested but the database is disabled; receipt subscriptions stay open")
	}

	deps.HealthChecks = healthChecks
	deps.Gateway = websocket.NewGateway(registry, verifier, websocket.GatewayConfig{
		SendBufferSize: cfg.Realtime.SendBufferSize,
		WriteWait:      cfg.Realtime.WriteWait,
		MaxMessageSize: cfg.Realtime.MaxMessageSize,
		AllowedOrigins: cfg.Realtime.AllowedOrigins,
	}, gatewayOpts...)

	supervisorCtx, stopSupervisor := context.WithCancel(context.Background())
	go registry.RunJanitor(supervisorCtx)

	router := routes.NewRouter(deps)
	router.SetupRoutes()

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("Server shutting down...", "signal", sig.String())

	// Stop the janitor, then tell every client before the listener goes away.
	stopSupervisor()
	registry.CloseAll(websocket.NewShutdownMessage("Server is shutting down"))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Shutdown HTTP server
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			slog.Error("Failed to close Redis", "error", err)
		}
	}

	slog.Info("Server stopped")
}
