package main

import (
	"fmt"

	"swish-forms/internal/database"
	"swish-forms/internal/models"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var migrateDataCmd = &cobra.Command{
	Use:   "migrate-data",
	Short: "Copy the SQLite database into PostgreSQL",
	Long: `Read every table from the SQLite file at DB_PATH and insert the rows
into the PostgreSQL database described by DB_HOST, DB_PORT, DB_USER,
DB_PASSWORD, DB_NAME and DB_SSLMODE. Rows whose key already exists are
skipped, so the command can be re-run. Run sync-sequences afterwards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sqliteDB, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
		if err != nil {
			return fmt.Errorf("connect to SQLite: %w", err)
		}
		logger.Info("Connected to SQLite", zap.String("path", cfg.DBPath))

		pgCfg := *cfg
		pgCfg.DBDriver = "postgres"
		pgDB, err := database.Open(&pgCfg, logger)
		if err != nil {
			return err
		}

		logger.Info("Starting data migration...")
		steps := []struct {
			table string
			copy  func(src, dst *gorm.DB) (int, error)
		}{
			{"entries", copyTable[models.Entry]},
			{"pages", copyTable[models.Page]},
			{"forms", copyTable[models.FormRecord]},
			{"system_settings", copyTable[models.SystemSetting]},
		}

		failed := 0
		for _, step := range steps {
			n, err := step.copy(sqliteDB, pgDB)
			if err != nil {
				failed++
				logger.Error("Error migrating table", zap.String("table", step.table), zap.Error(err))
				continue
			}
			logger.Info("Successfully migrated table", zap.String("table", step.table), zap.Int("rows", n))
		}
		if failed > 0 {
			return fmt.Errorf("%d table(s) failed to migrate", failed)
		}

		logger.Info("Migration completed!")
		return nil
	},
}

// copyTable moves every row of T in one transaction.
func copyTable[T any](src, dst *gorm.DB) (int, error) {
	var rows []T
	if err := src.Find(&rows).Error; err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	err := dst.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&rows, 200).Error
	})
	if err != nil {
		return 0, fmt.Errorf("write: %w", err)
	}
	return len(rows), nil
}
