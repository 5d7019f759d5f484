// Package domain contains the core business entities for Keygate.
// These are pure Go structs with no external dependencies, representing
// activation keys, the accounts they unlock, and the audit trail.
package domain

import (
	"fmt"
	"regexp"
	"time"
)

// KeyStatus represents the lifecycle state of an activation key.
type KeyStatus string

const (
	// KeyStatusUnused indicates the key has been issued but never validated.
	KeyStatusUnused KeyStatus = "unused"

	// KeyStatusUsed indicates the key is bound to a hardware identity.
	KeyStatusUsed KeyStatus = "used"
)

// DefaultKeyPrefix is used when a generation request carries no prefix.
const DefaultKeyPrefix = "GOU"

// Key generation batch bounds.
const (
	MinKeyBatch = 1
	MaxKeyBatch = 100
)

// KeyGroupLength is the number of characters in each dash-separated group.
const KeyGroupLength = 4

// Key represents one issuable activation credential.
type Key struct {
	// ID is the unique identifier for the key record (auto-generated).
	ID int64 `json:"id"`

	// Value is the token handed to customers.
	// Format: <PREFIX>-XXXX-XXXX-XXXX.
	Value string `json:"key_value"`

	// Status is unused until the first successful validation.
	Status KeyStatus `json:"status"`

	// HWID is the hardware identity that consumed the key.
	// Nil until the key is used; immutable afterwards.
	HWID *string `json:"hwid,omitempty"`

	// CreatedAt is the timestamp when the key was issued.
	CreatedAt time.Time `json:"created_date"`

	// UsedAt is the timestamp of the binding, nil while unused.
	UsedAt *time.Time `json:"used_date,omitempty"`
}

// NewKey creates a new unused Key.
func NewKey(value string) *Key {
	return &Key{
		Value:     value,
		Status:    KeyStatusUnused,
		CreatedAt: time.Now().UTC(),
	}
}

// IsUsed returns true if the key has been bound.
func (k *Key) IsUsed() bool {
	return k.Status == KeyStatusUsed
}

// BoundTo returns true if the key carries exactly the given hwid.
func (k *Key) BoundTo(hwid string) bool {
	return k.HWID != nil && *k.HWID == hwid
}

// FormatKey assembles a key token from a prefix and its groups.
func FormatKey(prefix string, groups ...string) string {
	s := prefix
	for _, g := range groups {
		s += "-" + g
	}
	return s
}

// KeyPattern returns a regular expression matching keys issued under prefix.
func KeyPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`^%s-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`, regexp.QuoteMeta(prefix)))
}

// BindingState is the outcome of evaluating a key against a hardware identity.
type BindingState int

const (
	// BindingNotFound means the key does not exist or cannot be bound.
	BindingNotFound BindingState = iota

	// BindingAlreadyHere means the key is already bound to this hwid.
	BindingAlreadyHere

	// BindingElsewhere means the key is used by a different hwid.
	BindingElsewhere

	// BindingAvailable means the key is unused and may be bound.
	BindingAvailable

	// BindingBound means the key was bound by this request.
	BindingBound
)

// String implements fmt.Stringer.
func (s BindingState) String() string {
	switch s {
	case BindingAlreadyHere:
		return "already_here"
	case BindingElsewhere:
		return "elsewhere"
	case BindingAvailable:
		return "available"
	case BindingBound:
		return "bound"
	default:
		return "not_found"
	}
}

// ClassifyBinding evaluates a key row against a hwid.
// Checks run in strict precedence: a matching hwid wins regardless of
// status, then a foreign hwid on a used key, then an unused key.
// A nil key classifies as BindingNotFound.
func ClassifyBinding(k *Key, hwid string) BindingState {
	switch {
	case k == nil:
		return BindingNotFound
	case k.BoundTo(hwid):
		return BindingAlreadyHere
	case k.HWID != nil && k.IsUsed():
		return BindingElsewhere
	case k.Status == KeyStatusUnused:
		return BindingAvailable
	default:
		return BindingNotFound
	}
}
