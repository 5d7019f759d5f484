// Package service provides business logic services for Keygate.
package service

import (
	"errors"
	"fmt"

	"github.com/prn-tf/keygate/internal/domain"
)

// Common service errors. Each maps to one client-visible message.
var (
	// Key errors
	ErrKeyUsedElsewhere = errors.New("key already used on another PC")
	ErrKeyInvalid       = errors.New("invalid or already used key")
	ErrKeyMarkFailed    = errors.New("failed to mark key as used")
	ErrInvalidKeyCount  = fmt.Errorf("invalid count: must be between %d and %d", domain.MinKeyBatch, domain.MaxKeyBatch)
	ErrNoKeysGenerated  = errors.New("failed to generate any keys")

	// Account errors
	ErrUsernameTooShort          = errors.New("username must have at least 3 characters")
	ErrPasswordTooShort          = errors.New("password must have at least 4 characters")
	ErrUsernameTaken             = errors.New("username already exists")
	ErrActivationKeyNotValidated = errors.New("activation key not validated")
	ErrInvalidCredentials        = errors.New("invalid username, password or HWID mismatch")

	// General errors
	ErrInternalError = errors.New("internal server error")
)
