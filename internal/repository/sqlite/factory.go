package sqlite

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/prn-tf/keygate/internal/config"
	"github.com/prn-tf/keygate/internal/repository"
)

// ConfigFromDatabase maps the shared database settings onto a SQLite Config.
// Zero values fall back to DefaultConfig.
func ConfigFromDatabase(cfg config.DatabaseConfig) Config {
	c := DefaultConfig(cfg.Path)
	if cfg.JournalMode != "" {
		c.JournalMode = cfg.JournalMode
	}
	if cfg.BusyTimeout > 0 {
		c.BusyTimeout = cfg.BusyTimeout
	}
	if cfg.CacheSize != 0 {
		c.CacheSize = cfg.CacheSize
	}
	if cfg.SynchronousMode != "" {
		c.SynchronousMode = cfg.SynchronousMode
	}
	return c
}

// NewRepositories wires every repository onto db.
func NewRepositories(db *DB) *repository.Repositories {
	return &repository.Repositories{
		Key:       NewKeyRepository(db),
		Account:   NewAccountRepository(db),
		AccessLog: NewAccessLogRepository(db),
	}
}

// CreateRepositories opens the SQLite database described by cfg.
func CreateRepositories(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*repository.CreateRepositoriesResult, error) {
	db, err := NewDB(ctx, ConfigFromDatabase(cfg), logger)
	if err != nil {
		return nil, err
	}

	return &repository.CreateRepositoriesResult{
		Repos:    NewRepositories(db),
		Database: db,
		Driver:   "sqlite",
	}, nil
}
