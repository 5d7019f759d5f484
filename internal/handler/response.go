// Package handler provides HTTP handlers for Keygate.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/prn-tf/keygate/internal/domain"
)

// Client-facing messages.
const (
	msgInvalidAction    = "Invalid action"
	msgDatabaseFailed   = "Database connection failed"
	msgUnauthorized     = "Unauthorized"
	msgTooManyRequests  = "Too many requests"
	msgInternalError    = "Internal server error"
	msgKeyAlreadyHere   = "Key already used on this PC"
	msgKeyElsewhere     = "Key already used on another PC"
	msgKeyValidated     = "Key validated successfully"
	msgKeyMarkFailed    = "Failed to mark key as used"
	msgKeyInvalid       = "Invalid or already used key"
	msgUsernameTooShort = "Username must have at least 3 characters"
	msgPasswordTooShort = "Password must have at least 4 characters"
	msgUsernameTaken    = "Username already exists"
	msgKeyNotValidated  = "Activation key not validated"
	msgAccountCreated   = "Account created successfully"
	msgAccountFailed    = "Failed to create account"
	msgLoginSuccessful  = "Login successful"
	msgLoginFailed      = "Invalid username, password or HWID mismatch"
	msgInvalidCount     = "Invalid count. Must be between 1 and 100."
	msgKeysGenerated    = "Keys generated successfully"
	msgNoKeysGenerated  = "Failed to generate any keys"
	msgGenerateError    = "Error generating keys"
	msgStatsRetrieved   = "Statistics retrieved successfully"
	msgStatsError       = "Error getting statistics"
)

// Response is the envelope returned by every action.
type Response struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	HWID    string        `json:"hwid,omitempty"`
	Keys    []string      `json:"keys,omitempty"`
	Stats   *domain.Stats `json:"stats,omitempty"`
}

// failure builds an unsuccessful response.
func failure(message string) Response {
	return Response{Success: false, Message: message}
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to write response")
	}
}
