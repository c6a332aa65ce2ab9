package cmd

import (
	"fmt"
	"log/slog"

	"github.com/csw48/AI-autonomous-platform/db"
)

// runMigrate applies pending migrations and exits. Useful for deployment
// pipelines that migrate before rolling the service.
func runMigrate() error {
	logger := initLogger()
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")
	return nil
}
