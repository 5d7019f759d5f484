package postgres

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/prn-tf/keygate/internal/config"
	"github.com/prn-tf/keygate/internal/repository"
)

// NewRepositories wires every repository onto db.
func NewRepositories(db *DB) *repository.Repositories {
	return &repository.Repositories{
		Key:       NewKeyRepository(db),
		Account:   NewAccountRepository(db),
		AccessLog: NewAccessLogRepository(db),
	}
}

// CreateRepositories connects to the PostgreSQL database described by cfg.
func CreateRepositories(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*repository.CreateRepositoriesResult, error) {
	db, err := NewDB(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	return &repository.CreateRepositoriesResult{
		Repos:    NewRepositories(db),
		Database: db,
		Driver:   "postgres",
	}, nil
}
