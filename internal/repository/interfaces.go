// Package repository defines data access interfaces for Keygate.
// These interfaces abstract database operations, allowing for different implementations
// (SQLite, PostgreSQL, in-memory for testing) while keeping the service layer clean.
package repository

import (
	"context"
	"time"

	"github.com/prn-tf/keygate/internal/domain"
)

// =============================================================================
// Key Repository
// =============================================================================

// KeyRepository defines the interface for activation key data access.
type KeyRepository interface {
	// Create inserts a new key.
	// Returns domain.ErrKeyAlreadyExists if the value is taken.
	Create(ctx context.Context, key *domain.Key) error

	// GetByValue retrieves a key by its token value.
	GetByValue(ctx context.Context, value string) (*domain.Key, error)

	// ExistsByValue checks if a key with the given value exists.
	ExistsByValue(ctx context.Context, value string) (bool, error)

	// Bind classifies the key against hwid and, if the key is unused, marks it
	// used and binds it in the same transaction. The transition is a
	// conditional update guarded by the affected row count, so at most one
	// caller moves a key from unused to used.
	// Returns domain.BindingBound when this call performed the transition.
	// Update failures are reported wrapping domain.ErrKeyMarkFailed.
	Bind(ctx context.Context, value, hwid string, usedAt time.Time) (domain.BindingState, error)

	// List returns keys, optionally filtered by status, newest first.
	List(ctx context.Context, opts KeyListOptions) (*ListResult[domain.Key], error)

	// CountAll returns the total number of keys.
	CountAll(ctx context.Context) (int64, error)

	// CountByStatus returns the number of keys in the given status.
	CountByStatus(ctx context.Context, status domain.KeyStatus) (int64, error)
}

// KeyListOptions contains options for listing keys.
type KeyListOptions struct {
	ListOptions

	// Status filters by key status when non-empty.
	Status domain.KeyStatus
}

// =============================================================================
// Account Repository
// =============================================================================

// AccountRepository defines the interface for account data access.
type AccountRepository interface {
	// Create creates a new account.
	// Returns domain.ErrAccountAlreadyExists if the username is taken.
	Create(ctx context.Context, account *domain.Account) error

	// GetByUsername retrieves an account by username.
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)

	// ExistsByUsername checks if an account with the given username exists.
	ExistsByUsername(ctx context.Context, username string) (bool, error)

	// Count returns the total number of accounts.
	Count(ctx context.Context) (int64, error)
}

// =============================================================================
// Access Log Repository
// =============================================================================

// AccessLogRepository defines the interface for the append-only audit trail.
// Rows are never updated or deleted.
type AccessLogRepository interface {
	// Append writes a new audit row.
	Append(ctx context.Context, entry *domain.AccessLog) error

	// List returns audit rows, newest first.
	List(ctx context.Context, opts ListOptions) (*ListResult[domain.AccessLog], error)
}

// =============================================================================
// Common Types
// =============================================================================

// ListOptions contains common pagination options.
type ListOptions struct {
	// Offset is the number of records to skip.
	Offset int

	// Limit is the maximum number of records to return.
	Limit int
}

// ListResult is a generic paginated list result.
type ListResult[T any] struct {
	// Items is the list of items.
	Items []*T

	// Total is the total number of items (without pagination).
	Total int64

	// Offset is the current offset.
	Offset int

	// Limit is the current limit.
	Limit int
}
