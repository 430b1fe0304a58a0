package migration

import (
	"github.com/smallbiznis/payoutd/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(Run),
)

// Run applies migrations for PostgreSQL deployments. Other dialects are
// development conveniences and are expected to be provisioned out of band.
func Run(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
	if cfg.DBType != "postgres" {
		log.Warn("skipping migrations for non-postgres database", zap.String("db_type", cfg.DBType))
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	if err := RunMigrations(sqlDB); err != nil {
		return err
	}
	log.Info("database migrations applied")
	return nil
}
