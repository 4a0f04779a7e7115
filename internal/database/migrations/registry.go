package migrations

import (
	"github.com/proxyforge/proxyforge/internal/models"
	"gorm.io/gorm"
)

// AllMigrations returns all registered migrations in order.
// - 001: Schema creation using GORM AutoMigrate
func AllMigrations() []Migration {
	return []Migration{
		migration001Schema(),
	}
}

// migration001Schema creates all database tables.
func migration001Schema() Migration {
	return Migration{
		Version:     "001",
		Description: "Create all database tables",
		Up: func(tx *gorm.DB) error {
			// AutoMigrate all models in dependency order: jobs before the
			// tables that reference them by foreign key.
			return tx.AutoMigrate(
				&models.Job{},
				&models.ClipTask{},
				&models.JobPresetBinding{},

				&models.WatchFolder{},
				&models.ProcessedFile{},

				&models.ExecutionEvent{},
			)
		},
		Down: func(tx *gorm.DB) error {
			tables := []string{
				"execution_events",
				"processed_files",
				"watch_folders",
				"preset_bindings",
				"clip_tasks",
				"jobs",
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
