package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/fitmirror/fitmirror/internal/config"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// Non-postgres targets (sqlite in local smoke setups) are
			// migrated by the test harness instead.
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
