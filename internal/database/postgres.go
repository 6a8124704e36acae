package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"channel-service/internal/config"
	"channel-service/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewPostgres opens the durable store connection, configures the pool,
// and runs migrations.
func NewPostgres(cfg *config.Config) (*gorm.DB, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database URL is not configured")
	}

	logLevel := logger.Silent
	if cfg.Server.Env == "dev" || cfg.Server.Env == "development" {
		logLevel = logger.Info
	}

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.Database.URL), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	createIndexes(db)

	return db, nil
}

func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Channel{},
		&domain.Message{},
		&domain.Reaction{},
	)
}

func createIndexes(db *gorm.DB) {
	// Channel names are unique within their scope; platform-wide
	// channels (null workspace) get their own partial index.
	db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_channel_name_workspace
		ON channels (name, workspace_id) WHERE workspace_id IS NOT NULL`)
	db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_channel_name_global
		ON channels (name) WHERE workspace_id IS NULL`)

	db.Exec(`CREATE INDEX IF NOT EXISTS idx_messages_channel_created
		ON messages (channel_id, created_at DESC)`)
}
