package domain

import (
	"time"
)

// Account validation bounds.
const (
	MinUsernameLength = 3
	MinPasswordLength = 4
)

// Account represents a registered user bound to one machine.
type Account struct {
	// ID is the unique identifier for the account (auto-generated).
	ID int64 `json:"id"`

	// Username is the unique login name.
	Username string `json:"username"`

	// PasswordHash is the bcrypt hash of the account password.
	// This should never be exposed in API responses.
	PasswordHash string `json:"-"`

	// HWID is the hardware identity bound at creation time.
	// Login requires an exact match.
	HWID string `json:"hwid"`

	// ActivationKey is the key value supplied at creation, kept for traceability.
	ActivationKey string `json:"activation_key"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_date"`

	// LastLoginAt exists in the schema but no operation updates it.
	LastLoginAt *time.Time `json:"last_login,omitempty"`

	// IsActive exists in the schema but no operation reads it.
	IsActive bool `json:"is_active"`
}

// NewAccount creates a new Account with default values.
func NewAccount(username, passwordHash, hwid, activationKey string) *Account {
	return &Account{
		Username:      username,
		PasswordHash:  passwordHash,
		HWID:          hwid,
		ActivationKey: activationKey,
		CreatedAt:     time.Now().UTC(),
		IsActive:      true,
	}
}

// MatchesHWID returns true if the account is bound to hwid.
func (a *Account) MatchesHWID(hwid string) bool {
	return a.HWID == hwid
}
