package database

import (
	"fmt"

	"swish-forms/internal/config"
	"swish-forms/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the configured driver and runs the auto-migration.
func Open(cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	level := logger.Warn
	if cfg.LogLevel == "debug" {
		level = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.DBDriver, err)
	}
	log.Info("Connected to database", zap.String("driver", cfg.DBDriver))

	if err := Migrate(db); err != nil {
		return nil, err
	}
	log.Info("Database migration completed")
	return db, nil
}

// Dialector picks the gorm dialector for DB_DRIVER.
func Dialector(cfg *config.Config) (gorm.Dialector, error) {
	switch cfg.DBDriver {
	case "", "sqlite":
		return sqlite.Open(cfg.DBPath), nil
	case "postgres":
		return postgres.Open(PostgresDSN(cfg)), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}

func PostgresDSN(cfg *config.Config) string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
}

// Migrate creates or updates every table the pipeline uses.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Entry{},
		&models.Page{},
		&models.FormRecord{},
		&models.RateLimitCounter{},
		&models.SystemSetting{},
	)
	if err != nil {
		return fmt.Errorf("auto-migration: %w", err)
	}
	return nil
}
