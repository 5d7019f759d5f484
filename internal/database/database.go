// Package database opens the configured store and runs its migrations.
package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/keygate/internal/config"
	"github.com/prn-tf/keygate/internal/repository"
	"github.com/prn-tf/keygate/internal/repository/postgres"
	"github.com/prn-tf/keygate/internal/repository/sqlite"
)

// Open connects to the database selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*repository.CreateRepositoriesResult, error) {
	logger = logger.With().Str("driver", cfg.Driver).Logger()

	switch cfg.Driver {
	case "sqlite":
		return sqlite.CreateRepositories(ctx, cfg, logger)
	case "postgres":
		return postgres.CreateRepositories(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// OpenAndMigrate connects and brings the schema up to date.
func OpenAndMigrate(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*repository.CreateRepositoriesResult, error) {
	result, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := result.Database.Migrate(ctx); err != nil {
		_ = result.Database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return result, nil
}
