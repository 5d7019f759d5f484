package repository

import (
	"context"
)

// Repositories holds all repository instances.
type Repositories struct {
	Key       KeyRepository
	Account   AccountRepository
	AccessLog AccessLogRepository
}

// DatabaseHealth is an interface for database health checks.
// The router and action handler use it before serving requests.
type DatabaseHealth interface {
	Ping(ctx context.Context) error
	Health(ctx context.Context) error
	Close() error
}

// Migrator applies and reports the embedded schema.
type Migrator interface {
	// Migrate creates missing tables. It is idempotent.
	Migrate(ctx context.Context) error

	// SchemaVersion returns the highest applied migration version (0 if none).
	SchemaVersion(ctx context.Context) (int, error)
}

// Database is a connected store that can be health-checked and migrated.
type Database interface {
	DatabaseHealth
	Migrator
}

// CreateRepositoriesResult contains the created repositories and database connection.
type CreateRepositoriesResult struct {
	Repos    *Repositories
	Database Database
	Driver   string
}
