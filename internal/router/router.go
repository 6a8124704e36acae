package router

import (
	"time"

	"channel-service/internal/bus"
	"channel-service/internal/client"
	"channel-service/internal/config"
	"channel-service/internal/directory"
	"channel-service/internal/handler"
	"channel-service/internal/lifecycle"
	"channel-service/internal/middleware"
	"channel-service/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func Setup(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, logger *zap.Logger) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.Server.CORSOrigins))
	r.Use(middleware.Metrics())

	// Repositories
	channelRepo := repository.NewChannelRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	// Change bus and domain services
	changeBus := bus.New(redisClient, logger)
	directoryService := directory.NewService(channelRepo, messageRepo, changeBus, logger)

	// External service clients
	roleClient := client.NewRoleClient(cfg.Auth.ServiceURL, 10*time.Second)
	profileClient := client.NewProfileClient(cfg.Services.UserServiceURL, 10*time.Second)

	validator := middleware.NewAuthValidator(roleClient, cfg.Auth.SecretKey, logger)

	// The REST surface shares one coordinator so delete windows for the
	// same message converge regardless of which request started them.
	restCoordinator := lifecycle.NewCoordinator(
		messageRepo, changeBus, lifecycle.DefaultGracePeriod, lifecycle.Callbacks{}, logger)

	// Handlers
	channelHandler := handler.NewChannelHandler(directoryService, channelRepo, roleClient)
	messageHandler := handler.NewMessageHandler(restCoordinator, messageRepo, channelRepo, roleClient)
	healthHandler := handler.NewHealthHandler(db, redisClient)
	wsHandler := handler.NewWSHandler(
		logger, validator, roleClient, profileClient,
		channelRepo, messageRepo, changeBus, redisClient)

	// Health endpoints (no auth)
	r.GET("/health", healthHandler.Health)
	r.GET("/ready", healthHandler.Ready)
	r.GET("/metrics", middleware.MetricsHandler())

	// API routes with base path
	api := r.Group(cfg.Server.BasePath)
	{
		api.GET("/health", healthHandler.Health)
		api.GET("/ready", healthHandler.Ready)

		// WebSocket endpoints (static route must come before dynamic route)
		api.GET("/ws/directory", wsHandler.HandleDirectorySocket)
		api.GET("/ws/channels/:channelId", wsHandler.HandleChannelSocket)

		// Authenticated routes
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(validator))
		{
			// Channel directory routes
			authenticated.POST("", channelHandler.CreateChannel)
			authenticated.GET("/public", channelHandler.ListPublic)
			authenticated.GET("/private", channelHandler.ListPrivate)
			authenticated.GET("/:channelId", channelHandler.GetChannel)
			authenticated.PATCH("/:channelId", channelHandler.UpdateChannel)
			authenticated.DELETE("/:channelId", channelHandler.DeleteChannel)

			// Message routes
			authenticated.GET("/:channelId/messages", messageHandler.ListMessages)
			authenticated.POST("/:channelId/messages", messageHandler.SendMessage)
			authenticated.PATCH("/:channelId/messages/:messageId", messageHandler.EditMessage)
			authenticated.DELETE("/:channelId/messages/:messageId", messageHandler.RequestDelete)
			authenticated.POST("/:channelId/messages/:messageId/undo", messageHandler.UndoDelete)

			// Reaction routes
			authenticated.POST("/:channelId/messages/:messageId/reactions", messageHandler.AddReaction)
			authenticated.DELETE("/:channelId/messages/:messageId/reactions", messageHandler.RemoveReaction)
		}
	}

	return r
}
