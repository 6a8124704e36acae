// @title           Channel Service API
// @version         1.0
// @description     Real-time community channel and messaging service

// @host      localhost:8002
// @BasePath  /api/channels

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

package main

import (
	"fmt"
	"log"
	"os"

	"channel-service/internal/config"
	"channel-service/internal/database"
	"channel-service/internal/router"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting Channel Service",
		zap.Int("port", cfg.Server.Port),
		zap.String("basePath", cfg.Server.BasePath),
		zap.String("env", cfg.Server.Env))

	db, err := database.NewPostgres(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	logger.Info("PostgreSQL connected")

	redisClient, err := database.NewRedis(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	logger.Info("Redis connected")

	r := router.Setup(cfg, db, redisClient, logger)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Channel Service started", zap.String("address", addr))

	if err := r.Run(addr); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Server.Env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
