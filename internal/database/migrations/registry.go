// Package migrations provides database migration management for vidarr.
package migrations

import (
	"github.com/vibeacademy/vidarr/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order.
// - 001: Schema creation using GORM AutoMigrate
// - 002: Chain columns on jobs (chain_id, stage_index) for pipeline gating
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
		migration002ChainColumns(),
	}
}

// migration001Schema creates all database tables using GORM AutoMigrate.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create all database tables",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(
				&models.Project{},
				&models.Job{},
				&models.JobHistory{},
			)
		},
		Down: func(tx *gorm.DB) error {
			tables := []string{
				"job_history",
				"jobs",
				"projects",
			}
			for _, table := range tables {
				if tx.Migrator().HasTable(table) {
					if err := tx.Migrator().DropTable(table); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

// migration002ChainColumns backfills the chain columns on installations
// created before jobs carried chain metadata. AutoMigrate adds the columns;
// orphaned pre-chain jobs are finished rows only, so no data rewrite is needed.
func migration002ChainColumns() Migration {
	return Migration{
		Version:     "002",
		Description: "Add chain_id and stage_index columns to jobs",
		Up: func(tx *gorm.DB) error {
			return tx.AutoMigrate(&models.Job{}, &models.JobHistory{})
		},
		Down: func(tx *gorm.DB) error {
			// Column drops are not supported on SQLite without a table
			// rebuild; leaving the columns in place is harmless.
			return nil
		},
	}
}
