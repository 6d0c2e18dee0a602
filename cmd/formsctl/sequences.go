package main

import (
	"fmt"

	"swish-forms/internal/database"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// serialTables have auto-increment ids backed by a sequence.
var serialTables = []string{
	"entries",
	"pages",
}

var syncSequencesCmd = &cobra.Command{
	Use:   "sync-sequences",
	Short: "Resync PostgreSQL id sequences after a data copy",
	RunE: func(cmd *cobra.Command, args []string) error {
		pgCfg := *cfg
		pgCfg.DBDriver = "postgres"
		db, err := database.Open(&pgCfg, logger)
		if err != nil {
			return err
		}

		logger.Info("Syncing PostgreSQL sequences...")
		if failed := syncSequences(db, logger); failed > 0 {
			return fmt.Errorf("%d sequence(s) failed to sync", failed)
		}
		logger.Info("DONE!")
		return nil
	},
}

func syncSequences(db *gorm.DB, log *zap.Logger) int {
	failed := 0
	for _, table := range serialTables {
		query := "SELECT setval(pg_get_serial_sequence('" + table + "', 'id'), coalesce(max(id), 0) + 1, false) FROM " + table
		if err := db.Exec(query).Error; err != nil {
			failed++
			log.Error("Error syncing sequence", zap.String("table", table), zap.Error(err))
		} else {
			log.Info("Successfully synced sequence", zap.String("table", table))
		}
	}
	return failed
}
