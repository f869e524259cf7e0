package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-settlement/pkg/config"
	"github.com/angelmondragon/storefront-settlement/pkg/db"
	"github.com/angelmondragon/storefront-settlement/pkg/logger"
)

// MaybeRunDev applies pending migrations at process start, but only in dev
// with STOREFRONT_AUTO_MIGRATE enabled. Other environments run cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.App.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": DefaultDir})
	logg.Info(ctx, "applying migrations on startup")
	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return err
	}
	logg.Info(ctx, "migrations applied")
	return nil
}
